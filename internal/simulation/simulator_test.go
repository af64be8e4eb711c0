package simulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioCatalog(t *testing.T) {
	names := Scenarios()
	assert.Len(t, names, 6)
	assert.Contains(t, names, "file_exfiltration")
	assert.Contains(t, names, "screenshot_spam")
	assert.Contains(t, names, "clipboard_stealing")
	assert.Contains(t, names, "large_data_transfer")
	assert.Contains(t, names, "credential_harvesting")
	assert.Contains(t, names, "lateral_movement")

	desc, err := Describe("file_exfiltration")
	require.NoError(t, err)
	assert.NotEmpty(t, desc)

	_, err = Describe("nonsense")
	assert.Error(t, err)
}

func TestStartUnknownScenario(t *testing.T) {
	s := New("192.168.1.10")

	_, err := s.Start("nonsense", time.Now())
	assert.Error(t, err)
	assert.Empty(t, s.Active())
}

func TestPollReportsGrowingCounters(t *testing.T) {
	s := New("192.168.1.10")

	run, err := s.Start("file_exfiltration", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.5", run.ClientIP)

	first, err := s.Poll()
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "192.168.1.10", first[0].ServerIP)
	assert.Equal(t, "203.0.113.5", first[0].ClientIP)
	assert.InDelta(t, 120, first[0].DataTransferredMB, 15,
		"a minute of file exfiltration moves about 120 MB")
	assert.Greater(t, first[0].FileOperations, int64(0))

	second, err := s.Poll()
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.GreaterOrEqual(t, second[0].DataTransferredMB, first[0].DataTransferredMB)
	assert.Equal(t, first[0].ClientPort, second[0].ClientPort,
		"the connection key must stay stable across polls")
}

func TestPollDropsExpiredRuns(t *testing.T) {
	s := New("192.168.1.10")
	s.duration = time.Millisecond

	_, err := s.Start("screenshot_spam", time.Now().Add(-time.Second))
	require.NoError(t, err)

	descriptors, err := s.Poll()
	require.NoError(t, err)
	assert.Empty(t, descriptors)
	assert.Empty(t, s.Active())
}

func TestStop(t *testing.T) {
	s := New("192.168.1.10")

	run, err := s.Start("lateral_movement", time.Now())
	require.NoError(t, err)
	require.Len(t, s.Active(), 1)

	assert.True(t, s.Stop(run.ID))
	assert.Empty(t, s.Active())
	assert.False(t, s.Stop(run.ID), "stopping twice reports the run as unknown")
}
