package threat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/vncguard/internal/baseline"
	"github.com/user/vncguard/internal/ensemble"
	"github.com/user/vncguard/internal/intel"
	"github.com/user/vncguard/internal/model"
	"github.com/user/vncguard/internal/response"
	"github.com/user/vncguard/internal/storage"
)

func newTestAnalyzer(t *testing.T, suspicious []string) (*Analyzer, *storage.SessionStorage, *storage.ThreatStorage) {
	t.Helper()
	db, err := storage.Initialize(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sessions := storage.NewSessionStorage(db)
	threats := storage.NewThreatStorage(db)

	rep, err := intel.NewReputation(suspicious, "", 128)
	require.NoError(t, err)

	blocker := response.NewEngine(&fakeEnforcer{},
		storage.NewRuleStorage(db), storage.NewAuditStorage(db), nil, nil, []int{5900})
	recorder := NewRecorder(threats, blocker, nil, nil, nil)

	rules := baseline.NewEngine(sessions, rep, 7*24*time.Hour)
	scorer := ensemble.NewScorer(sessions, t.TempDir())

	analyzer := NewAnalyzer(sessions, nil, rules, scorer, recorder, nil, nil, 70, 0.7, time.Hour)
	return analyzer, sessions, threats
}

func insertSession(t *testing.T, store *storage.SessionStorage, sess *model.Session) {
	t.Helper()
	require.NoError(t, store.Insert(sess))
}

func TestRunQuietSessionProducesNoThreats(t *testing.T) {
	analyzer, sessions, threats := newTestAnalyzer(t, nil)
	now := time.Now()

	insertSession(t, sessions, &model.Session{
		ClientIP:   "192.168.1.50",
		ServerIP:   "192.168.1.10",
		ClientPort: 41000,
		ServerPort: 5900,
		StartTime:  now.Add(-30 * time.Minute),
		LastSeen:   now,
		Status:     model.StatusActive,
	})

	require.NoError(t, analyzer.Run(now))

	recent, err := threats.GetRecent(10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestRunRecordsMediumThreatAboveRiskThreshold(t *testing.T) {
	analyzer, sessions, threats := newTestAnalyzer(t, []string{"185.220.101.5"})
	now := time.Now()

	// Suspicious external client carrying its initial risk of 55; the
	// outsized transfer adds 30 and lands the session at 85: over the
	// threshold, under the high-severity cutoff.
	sess := &model.Session{
		ClientIP:          "185.220.101.5",
		ServerIP:          "192.168.1.10",
		ClientPort:        41000,
		ServerPort:        5900,
		StartTime:         now.Add(-30 * time.Minute),
		LastSeen:          now,
		Status:            model.StatusActive,
		DataTransferredMB: 40,
		RiskScore:         55,
	}
	insertSession(t, sessions, sess)

	require.NoError(t, analyzer.Run(now))

	recent, err := threats.GetRecent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, model.ThreatTrafficAnomaly, recent[0].ThreatType)
	assert.Equal(t, model.SeverityMedium, recent[0].Severity)
	assert.Equal(t, model.MethodRuleBased, recent[0].DetectionMethod)
	assert.InDelta(t, 0.85, recent[0].Confidence, 0.001)
	require.NotNil(t, recent[0].SessionID)
	assert.Equal(t, sess.ID, *recent[0].SessionID)
	assert.Equal(t, "logged", recent[0].ActionTaken)

	// The evaluated risk is persisted on the session.
	stored, err := sessions.GetByID(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 85.0, stored.RiskScore)
}

func TestRunRecordsHighThreatAndBlocks(t *testing.T) {
	analyzer, sessions, threats := newTestAnalyzer(t, []string{"185.220.101.5"})
	now := time.Now()

	// Screenshot spam on top pushes the score past the high cutoff, which
	// triggers the automatic block.
	sess := &model.Session{
		ClientIP:          "185.220.101.5",
		ServerIP:          "192.168.1.10",
		ClientPort:        41000,
		ServerPort:        5900,
		StartTime:         now.Add(-1 * time.Minute),
		LastSeen:          now,
		Status:            model.StatusActive,
		DataTransferredMB: 40,
		ScreenshotCount:   30,
		RiskScore:         55,
	}
	insertSession(t, sessions, sess)

	require.NoError(t, analyzer.Run(now))

	recent, err := threats.GetRecent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, model.SeverityHigh, recent[0].Severity)
	assert.Equal(t, "blocked", recent[0].ActionTaken)
	assert.True(t, recent[0].BlockedAutomatically)
}

func TestRunSkipsEnsembleUntilTrained(t *testing.T) {
	analyzer, sessions, _ := newTestAnalyzer(t, nil)
	now := time.Now()

	sess := &model.Session{
		ClientIP:   "192.168.1.50",
		ServerIP:   "192.168.1.10",
		ClientPort: 41000,
		ServerPort: 5900,
		StartTime:  now.Add(-10 * time.Minute),
		LastSeen:   now,
		Status:     model.StatusActive,
	}
	insertSession(t, sessions, sess)

	require.NoError(t, analyzer.Run(now))

	stored, err := sessions.GetByID(sess.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.AnomalyScore, "an untrained ensemble must not write scores")
}
