package response

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/vncguard/internal/model"
	"github.com/user/vncguard/internal/storage"
)

// fakeEnforcer records every call so tests can assert enforcement happened.
type fakeEnforcer struct {
	blocked   []string
	unblocked []string
}

func (f *fakeEnforcer) Block(addr string) error   { f.blocked = append(f.blocked, addr); return nil }
func (f *fakeEnforcer) Unblock(addr string) error { f.unblocked = append(f.unblocked, addr); return nil }

func newTestEngine(t *testing.T) (*Engine, *fakeEnforcer, *storage.DB) {
	t.Helper()
	db, err := storage.Initialize(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fw := &fakeEnforcer{}
	eng := NewEngine(fw, storage.NewRuleStorage(db), storage.NewAuditStorage(db), nil, nil, []int{5900, 5901})
	return eng, fw, db
}

func TestBlockAndUnblock(t *testing.T) {
	eng, fw, _ := newTestEngine(t)

	entry, err := eng.Block("203.0.113.5", 30*time.Minute, "test block", nil, ActorAdmin)
	require.NoError(t, err)
	require.NotNil(t, entry.ExpiresAt)
	assert.Equal(t, []string{"203.0.113.5"}, fw.blocked)
	assert.True(t, eng.IsBlocked("203.0.113.5", time.Now()))

	ok, err := eng.Unblock("203.0.113.5", ActorAdmin)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"203.0.113.5"}, fw.unblocked)
	assert.False(t, eng.IsBlocked("203.0.113.5", time.Now()))
}

func TestBlockRefusesInternalAddresses(t *testing.T) {
	eng, fw, _ := newTestEngine(t)

	for _, addr := range []string{"127.0.0.1", "10.1.2.3", "192.168.0.5", "172.16.0.1"} {
		_, err := eng.Block(addr, time.Hour, "should fail", nil, ActorSystem)
		assert.Error(t, err, "internal address %s must be refused", addr)
	}
	assert.Empty(t, fw.blocked, "refused blocks must not reach the firewall")
	assert.Empty(t, eng.List())
}

func TestBlockRejectsInvalidAddress(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	_, err := eng.Block("not-an-ip", time.Hour, "bad input", nil, ActorAdmin)
	assert.Error(t, err)
}

func TestBlockPermanentWhenDurationZero(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	entry, err := eng.Block("198.51.100.7", 0, "permanent", nil, ActorAdmin)
	require.NoError(t, err)
	assert.Nil(t, entry.ExpiresAt)

	// Permanent blocks survive any sweep.
	removed, err := eng.SweepExpired(time.Now().Add(365 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.True(t, eng.IsBlocked("198.51.100.7", time.Now()))
}

func TestReblockRefreshesWithoutDuplicating(t *testing.T) {
	eng, _, db := newTestEngine(t)

	first, err := eng.Block("203.0.113.9", 30*time.Minute, "first", nil, ActorSystem)
	require.NoError(t, err)
	second, err := eng.Block("203.0.113.9", 4*time.Hour, "second", nil, ActorSystem)
	require.NoError(t, err)
	assert.True(t, second.ExpiresAt.After(*first.ExpiresAt))

	assert.Len(t, eng.List(), 1)

	rules := storage.NewRuleStorage(db)
	active, err := rules.GetActive()
	require.NoError(t, err)
	require.Len(t, active, 1, "re-blocking must refresh the rule, not add one")
	assert.Equal(t, "second", active[0].Description)
}

func TestAutoBlockDurationsBySeverity(t *testing.T) {
	tests := []struct {
		severity model.Severity
		want     time.Duration
	}{
		{model.SeverityLow, 30 * time.Minute},
		{model.SeverityMedium, 60 * time.Minute},
		{model.SeverityHigh, 240 * time.Minute},
		{model.SeverityCritical, 1440 * time.Minute},
	}

	addrs := []string{"203.0.113.1", "203.0.113.2", "203.0.113.3", "203.0.113.4"}
	eng, _, _ := newTestEngine(t)

	for i, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			threat := &model.ThreatRecord{
				ID:         int64(i + 1),
				SourceIP:   addrs[i],
				ThreatType: model.ThreatTrafficAnomaly,
				Severity:   tt.severity,
			}
			before := time.Now()
			entry, err := eng.AutoBlockFromThreat(threat)
			require.NoError(t, err)
			require.NotNil(t, entry.ExpiresAt)

			got := entry.ExpiresAt.Sub(before)
			assert.InDelta(t, tt.want.Seconds(), got.Seconds(), 5,
				"expiry should land the severity duration out")
			require.NotNil(t, entry.ThreatID)
			assert.Equal(t, threat.ID, *entry.ThreatID)
		})
	}
}

func TestSweepExpiredRemovesOnlyExpired(t *testing.T) {
	eng, fw, _ := newTestEngine(t)

	_, err := eng.Block("203.0.113.10", time.Millisecond, "expires fast", nil, ActorSystem)
	require.NoError(t, err)
	_, err = eng.Block("203.0.113.11", 2*time.Millisecond, "expires fast too", nil, ActorSystem)
	require.NoError(t, err)
	_, err = eng.Block("203.0.113.12", time.Hour, "still valid", nil, ActorSystem)
	require.NoError(t, err)

	removed, err := eng.SweepExpired(time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.ElementsMatch(t, []string{"203.0.113.10", "203.0.113.11"}, fw.unblocked)
	assert.True(t, eng.IsBlocked("203.0.113.12", time.Now()))
}

func TestUnblockUnknownAddress(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	ok, err := eng.Unblock("203.0.113.200", ActorAdmin)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRestoreRebuildsLedgerAndDropsExpired(t *testing.T) {
	db, err := storage.Initialize(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rules := storage.NewRuleStorage(db)
	audit := storage.NewAuditStorage(db)

	first := NewEngine(&fakeEnforcer{}, rules, audit, nil, nil, []int{5900})
	_, err = first.Block("203.0.113.20", time.Millisecond, "gone by restart", nil, ActorSystem)
	require.NoError(t, err)
	_, err = first.Block("203.0.113.21", 24*time.Hour, "survives restart", nil, ActorSystem)
	require.NoError(t, err)

	// Simulate a restart: fresh engine, same database.
	fw := &fakeEnforcer{}
	second := NewEngine(fw, rules, audit, nil, nil, []int{5900})
	require.NoError(t, second.Restore(time.Now().Add(time.Minute)))

	assert.False(t, second.IsBlocked("203.0.113.20", time.Now()))
	assert.True(t, second.IsBlocked("203.0.113.21", time.Now()))
	assert.Equal(t, []string{"203.0.113.21"}, fw.blocked, "surviving blocks are re-enforced")

	active, err := rules.GetActive()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "203.0.113.21", active[0].SourceIP)
}

func TestAllowVPNOnly(t *testing.T) {
	eng, fw, db := newTestEngine(t)

	rule, err := eng.AllowVPNOnly("10.8.0.0/24", ActorAdmin)
	require.NoError(t, err)
	assert.Equal(t, "allow", rule.Action)
	assert.Equal(t, "5900,5901", rule.Ports)
	assert.Empty(t, fw.blocked, "allow rules are records, not firewall inserts")

	active, err := storage.NewRuleStorage(db).GetActive()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "10.8.0.0/24", active[0].SourceIP)

	_, err = eng.AllowVPNOnly("not-a-network", ActorAdmin)
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	_, err := eng.Block("203.0.113.30", time.Hour, "timed", nil, ActorSystem)
	require.NoError(t, err)
	_, err = eng.Block("203.0.113.31", 0, "permanent", nil, ActorAdmin)
	require.NoError(t, err)

	s := eng.Stats()
	assert.Equal(t, 2, s.ActiveBlocks)
	assert.Equal(t, 1, s.TimedBlocks)
	assert.Equal(t, 1, s.AutoCreated)
}
