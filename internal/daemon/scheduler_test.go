package daemon

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/vncguard/internal/model"
)

func TestSchedulerJobLifecycle(t *testing.T) {
	s := NewScheduler(context.Background())

	var runs atomic.Int32
	s.AddJob(&Job{
		Name:     "noop",
		Interval: time.Minute,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	job := s.GetJob("noop")
	require.NotNil(t, job)
	assert.Nil(t, s.GetJob("missing"))

	s.runJob(job)
	assert.EqualValues(t, 1, runs.Load())

	statuses := s.GetJobStatuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "noop", statuses[0].Name)
	assert.False(t, statuses[0].LastRun.IsZero())
	assert.Empty(t, statuses[0].LastError)
	assert.Zero(t, statuses[0].ErrorCount)

	// Success schedules the next run a full interval out.
	assert.True(t, statuses[0].NextRun.After(time.Now().Add(30*time.Second)))
}

func TestSchedulerFailureRetriesSooner(t *testing.T) {
	s := NewScheduler(context.Background())

	s.AddJob(&Job{
		Name:     "flaky",
		Interval: time.Minute,
		Run: func(ctx context.Context) error {
			return errors.New("transient failure")
		},
	})

	s.runJob(s.GetJob("flaky"))

	statuses := s.GetJobStatuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "transient failure", statuses[0].LastError)
	assert.Equal(t, 1, statuses[0].ErrorCount)

	// Failed jobs retry at half the interval.
	assert.True(t, statuses[0].NextRun.Before(time.Now().Add(31*time.Second)))
}

func TestTriggerJob(t *testing.T) {
	s := NewScheduler(context.Background())
	s.AddJob(&Job{
		Name:     "poll",
		Interval: time.Hour,
		Run:      func(ctx context.Context) error { return nil },
	})

	before := s.GetJobStatuses()[0].NextRun
	assert.True(t, s.TriggerJob("poll"))
	after := s.GetJobStatuses()[0].NextRun
	assert.True(t, after.Before(before), "triggering pulls the next run forward")

	assert.False(t, s.TriggerJob("missing"))
}

func TestStatusFileRoundTrip(t *testing.T) {
	dir := t.TempDir()

	status := &Status{
		Running:   true,
		PID:       4242,
		StartTime: time.Now().Add(-time.Hour),
		Uptime:    time.Hour,
		Jobs: []JobStatus{
			{Name: "connection_poll", Interval: 5 * time.Second},
		},
	}
	stats := &model.SessionStats{
		ActiveSessions:  3,
		TotalSessions:   120,
		ThreatsDetected: 7,
		ActiveBlocks:    2,
	}

	require.NoError(t, WriteStatusFile(dir, status, stats))

	sf, err := ReadStatusFile(dir)
	require.NoError(t, err)
	assert.True(t, sf.Running)
	assert.Equal(t, 4242, sf.PID)
	assert.Equal(t, "1h0m0s", sf.Uptime)
	require.NotNil(t, sf.Stats)
	assert.Equal(t, 3, sf.Stats.ActiveSessions)
	require.Len(t, sf.Jobs, 1)
	assert.Equal(t, "connection_poll", sf.Jobs[0].Name)
}

func TestReadStatusFileMissing(t *testing.T) {
	_, err := ReadStatusFile(t.TempDir())
	assert.Error(t, err)
}

func TestCheckRunningWithoutPIDFile(t *testing.T) {
	running, pid := CheckRunning(t.TempDir())
	assert.False(t, running)
	assert.Zero(t, pid)
}
