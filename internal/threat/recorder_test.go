package threat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/vncguard/internal/model"
	"github.com/user/vncguard/internal/response"
	"github.com/user/vncguard/internal/storage"
)

type fakeEnforcer struct {
	blocked []string
}

func (f *fakeEnforcer) Block(addr string) error   { f.blocked = append(f.blocked, addr); return nil }
func (f *fakeEnforcer) Unblock(addr string) error { return nil }

func newTestRecorder(t *testing.T) (*Recorder, *storage.ThreatStorage, *response.Engine) {
	t.Helper()
	db, err := storage.Initialize(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	threats := storage.NewThreatStorage(db)
	blocker := response.NewEngine(&fakeEnforcer{},
		storage.NewRuleStorage(db), storage.NewAuditStorage(db), nil, nil, []int{5900})

	return NewRecorder(threats, blocker, nil, nil, nil), threats, blocker
}

func TestRecordMediumSeverityOnlyLogs(t *testing.T) {
	rec, threats, blocker := newTestRecorder(t)

	threat := &model.ThreatRecord{
		ThreatType:      model.ThreatTrafficAnomaly,
		Severity:        model.SeverityMedium,
		SourceIP:        "203.0.113.5",
		Confidence:      0.75,
		DetectionMethod: model.MethodRuleBased,
	}
	require.NoError(t, rec.Record(threat))
	require.NotZero(t, threat.ID)

	assert.Equal(t, "logged", threat.ActionTaken)
	assert.False(t, threat.BlockedAutomatically)
	assert.False(t, blocker.IsBlocked("203.0.113.5", time.Now()))

	stored, err := threats.GetByID(threat.ID)
	require.NoError(t, err)
	assert.Equal(t, "logged", stored.ActionTaken)
}

func TestRecordHighSeverityBlocksSource(t *testing.T) {
	rec, threats, blocker := newTestRecorder(t)

	threat := &model.ThreatRecord{
		ThreatType:      model.ThreatMLAnomaly,
		Severity:        model.SeverityHigh,
		SourceIP:        "203.0.113.9",
		Confidence:      0.95,
		DetectionMethod: model.MethodML,
	}
	require.NoError(t, rec.Record(threat))

	assert.Equal(t, "blocked", threat.ActionTaken)
	assert.True(t, threat.BlockedAutomatically)
	assert.True(t, blocker.IsBlocked("203.0.113.9", time.Now()))

	stored, err := threats.GetByID(threat.ID)
	require.NoError(t, err)
	assert.Equal(t, "blocked", stored.ActionTaken)
	assert.True(t, stored.BlockedAutomatically)
}

func TestRecordHighSeverityInternalSourceStaysLogged(t *testing.T) {
	rec, _, blocker := newTestRecorder(t)

	// Internal addresses are refused by the response engine; the record
	// must reflect that nothing was blocked.
	threat := &model.ThreatRecord{
		ThreatType:      model.ThreatTrafficAnomaly,
		Severity:        model.SeverityCritical,
		SourceIP:        "192.168.1.50",
		Confidence:      0.99,
		DetectionMethod: model.MethodRuleBased,
	}
	require.NoError(t, rec.Record(threat))

	assert.Equal(t, "logged", threat.ActionTaken)
	assert.False(t, threat.BlockedAutomatically)
	assert.False(t, blocker.IsBlocked("192.168.1.50", time.Now()))
}

func TestRecordFillsDefaults(t *testing.T) {
	rec, _, _ := newTestRecorder(t)

	threat := &model.ThreatRecord{
		ThreatType:      model.ThreatClipboardAbuse,
		Severity:        model.SeverityLow,
		SourceIP:        "203.0.113.11",
		DetectionMethod: model.MethodRuleBased,
	}
	require.NoError(t, rec.Record(threat))

	assert.False(t, threat.Timestamp.IsZero())
	assert.Equal(t, "logged", threat.ActionTaken)
}
