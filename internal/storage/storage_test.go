package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/vncguard/internal/model"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Initialize(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleSession(clientIP string, start time.Time) *model.Session {
	return &model.Session{
		ClientIP:   clientIP,
		ServerIP:   "192.168.1.10",
		ClientPort: 41000,
		ServerPort: 5900,
		StartTime:  start,
		LastSeen:   start,
		Status:     model.StatusActive,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	store := NewSessionStorage(testDB(t))
	start := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)

	sess := sampleSession("203.0.113.5", start)
	sess.DataTransferredMB = 42.5
	sess.ScreenshotCount = 7
	sess.RiskScore = 30

	require.NoError(t, store.Insert(sess))
	require.NotZero(t, sess.ID)

	got, err := store.GetByID(sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "203.0.113.5", got.ClientIP)
	assert.Equal(t, 42.5, got.DataTransferredMB)
	assert.Equal(t, int64(7), got.ScreenshotCount)
	assert.Equal(t, model.StatusActive, got.Status)
	assert.Nil(t, got.EndTime)
}

func TestSessionGetByIDMissing(t *testing.T) {
	store := NewSessionStorage(testDB(t))

	got, err := store.GetByID(9999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionCloseOnlyOnce(t *testing.T) {
	store := NewSessionStorage(testDB(t))
	start := time.Now().Add(-time.Hour)

	sess := sampleSession("192.168.1.50", start)
	require.NoError(t, store.Insert(sess))

	first := start.Add(30 * time.Minute)
	require.NoError(t, store.Close(sess.ID, first))

	// A second close must not move the end time.
	require.NoError(t, store.Close(sess.ID, first.Add(time.Hour)))

	got, err := store.GetByID(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusTerminated, got.Status)
	require.NotNil(t, got.EndTime)
	assert.WithinDuration(t, first, *got.EndTime, time.Second)
}

func TestSessionThreatPartition(t *testing.T) {
	db := testDB(t)
	sessions := NewSessionStorage(db)
	threats := NewThreatStorage(db)
	now := time.Now()

	linked := sampleSession("203.0.113.5", now.Add(-2*time.Hour))
	clean := sampleSession("192.168.1.50", now.Add(-time.Hour))
	require.NoError(t, sessions.Insert(linked))
	require.NoError(t, sessions.Insert(clean))

	threat := &model.ThreatRecord{
		Timestamp:       now,
		ThreatType:      model.ThreatTrafficAnomaly,
		Severity:        model.SeverityMedium,
		SourceIP:        linked.ClientIP,
		SessionID:       &linked.ID,
		DetectionMethod: model.MethodRuleBased,
		Confidence:      0.8,
	}
	require.NoError(t, threats.Insert(threat))

	positives, err := sessions.GetThreatLinked()
	require.NoError(t, err)
	require.Len(t, positives, 1)
	assert.Equal(t, linked.ID, positives[0].ID)

	negatives, err := sessions.GetThreatFree(10)
	require.NoError(t, err)
	require.Len(t, negatives, 1)
	assert.Equal(t, clean.ID, negatives[0].ID)
}

func TestThreatRoundTripAndCounts(t *testing.T) {
	store := NewThreatStorage(testDB(t))
	now := time.Now().UTC().Truncate(time.Second)

	rec := &model.ThreatRecord{
		Timestamp:       now,
		ThreatType:      model.ThreatMLAnomaly,
		Severity:        model.SeverityHigh,
		SourceIP:        "203.0.113.9",
		Confidence:      0.92,
		DetectionMethod: model.MethodML,
		ActionTaken:     "logged",
	}
	require.NoError(t, store.Insert(rec))
	require.NotZero(t, rec.ID)

	require.NoError(t, store.UpdateAction(rec.ID, "blocked", true))

	got, err := store.GetByID(rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "blocked", got.ActionTaken)
	assert.True(t, got.BlockedAutomatically)
	assert.Equal(t, model.SeverityHigh, got.Severity)

	n, err := store.CountSince(now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	blocked, err := store.CountBlocked()
	require.NoError(t, err)
	assert.Equal(t, 1, blocked)

	bySeverity, err := store.CountBySeverity()
	require.NoError(t, err)
	assert.Equal(t, map[model.Severity]int{model.SeverityHigh: 1}, bySeverity)
}

func TestRuleUpsertRefreshes(t *testing.T) {
	store := NewRuleStorage(testDB(t))
	now := time.Now().UTC().Truncate(time.Second)
	exp1 := now.Add(30 * time.Minute)
	exp2 := now.Add(4 * time.Hour)

	rule := &model.FirewallRule{
		RuleName:    "vncguard-block-203.0.113.5",
		SourceIP:    "203.0.113.5",
		Ports:       "5900,5901",
		Protocol:    "tcp",
		Action:      "deny",
		IsActive:    true,
		AutoCreated: true,
		ExpiresAt:   &exp1,
		Description: "first",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, store.Upsert(rule))
	firstID := rule.ID
	require.NotZero(t, firstID)

	refresh := *rule
	refresh.ID = 0
	refresh.ExpiresAt = &exp2
	refresh.Description = "second"
	require.NoError(t, store.Upsert(&refresh))
	assert.Equal(t, firstID, refresh.ID, "upsert must reuse the existing row")

	active, err := store.GetActive()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "second", active[0].Description)
	require.NotNil(t, active[0].ExpiresAt)
	assert.WithinDuration(t, exp2, *active[0].ExpiresAt, time.Second)
}

func TestRuleDeactivate(t *testing.T) {
	store := NewRuleStorage(testDB(t))
	now := time.Now()

	rule := &model.FirewallRule{
		RuleName:  "vncguard-block-203.0.113.7",
		SourceIP:  "203.0.113.7",
		Protocol:  "tcp",
		Action:    "deny",
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.Upsert(rule))

	n, err := store.Deactivate("203.0.113.7", now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = store.Deactivate("203.0.113.7", now)
	require.NoError(t, err)
	assert.Zero(t, n, "deactivating an inactive rule affects nothing")

	got, err := store.GetActiveByIP("203.0.113.7")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAuditRoundTrip(t *testing.T) {
	store := NewAuditStorage(testDB(t))
	now := time.Now().UTC().Truncate(time.Second)

	entry := &model.AuditEntry{
		Timestamp: now,
		EventType: "ip_blocked",
		Actor:     "system",
		Action:    "block",
		Target:    "203.0.113.5",
		Success:   true,
	}
	require.NoError(t, store.Insert(entry))

	entries, err := store.GetRecent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "block", entries[0].Action)
	assert.Equal(t, "203.0.113.5", entries[0].Target)
	assert.True(t, entries[0].Success)
}
