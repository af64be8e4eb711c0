package sessions

import (
	"fmt"
	"sync"
	"time"

	"github.com/user/vncguard/internal/intel"
	"github.com/user/vncguard/internal/metrics"
	"github.com/user/vncguard/internal/model"
	"github.com/user/vncguard/internal/notify"
	"github.com/user/vncguard/internal/storage"
	"github.com/user/vncguard/internal/util"
)

// Initial risk contributions applied when a session is first observed.
const (
	riskExternalClient = 15
	riskSuspiciousIP   = 40
)

// Tracker maintains the live-session map and keeps the session store in
// sync with what the connection source reports.
type Tracker struct {
	mu     sync.Mutex
	live   map[string]*model.Session
	source ConnectionSource

	store      *storage.SessionStorage
	reputation *intel.Reputation
	sink       notify.Sink
	metrics    *metrics.Metrics
}

// NewTracker builds a tracker over the given source and storage.
func NewTracker(source ConnectionSource, store *storage.SessionStorage,
	reputation *intel.Reputation, sink notify.Sink, m *metrics.Metrics) *Tracker {
	if sink == nil {
		sink = notify.NopSink{}
	}
	return &Tracker{
		live:       make(map[string]*model.Session),
		source:     source,
		store:      store,
		reputation: reputation,
		sink:       sink,
		metrics:    m,
	}
}

// Restore rebuilds the live map from sessions the store still marks active.
// Called once at startup so a restart does not orphan open sessions.
func (t *Tracker) Restore() error {
	active, err := t.store.GetActive()
	if err != nil {
		return fmt.Errorf("failed to restore active sessions: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range active {
		sess := active[i]
		t.live[sess.Key()] = &sess
	}
	t.updateGaugeLocked()

	util.Debug("restored %d active sessions", len(active))
	return nil
}

// Poll runs one observation cycle: reads the source, starts sessions for
// new connections, updates counters for known ones, and closes sessions
// whose connections have disappeared.
func (t *Tracker) Poll(now time.Time) error {
	descriptors, err := t.source.Poll()
	if err != nil {
		return fmt.Errorf("connection poll failed: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]struct{}, len(descriptors))
	for _, d := range descriptors {
		key := model.ConnectionKey(d.ServerIP, d.ServerPort, d.ClientIP, d.ClientPort)
		seen[key] = struct{}{}

		if sess, ok := t.live[key]; ok {
			t.updateLocked(sess, d, now)
			continue
		}
		t.startLocked(d, now)
	}

	t.closeMissingLocked(seen, now)
	t.updateGaugeLocked()
	return nil
}

// Active returns a snapshot of the live sessions.
func (t *Tracker) Active() []model.Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.Session, 0, len(t.live))
	for _, sess := range t.live {
		out = append(out, *sess)
	}
	return out
}

// MarkBlocked transitions every live session from the given client address
// to blocked and drops it from the live map.
func (t *Tracker) MarkBlocked(clientIP string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, sess := range t.live {
		if sess.ClientIP != clientIP {
			continue
		}
		if err := t.store.SetStatus(sess.ID, model.StatusBlocked, now); err != nil {
			util.Error("failed to mark session %d blocked: %v", sess.ID, err)
			continue
		}
		delete(t.live, key)
		t.sink.Publish(notify.NewEvent(notify.EventSessionEnded, sess))
	}
	t.updateGaugeLocked()
}

// UpdateRisk overwrites the risk score for a live session and persists it.
func (t *Tracker) UpdateRisk(id int64, score float64) error {
	score = model.ClampRisk(score)

	t.mu.Lock()
	for _, sess := range t.live {
		if sess.ID == id {
			sess.RiskScore = score
			break
		}
	}
	t.mu.Unlock()

	return t.store.UpdateRisk(id, score)
}

func (t *Tracker) startLocked(d ConnectionDescriptor, now time.Time) {
	sess := &model.Session{
		ClientIP:   d.ClientIP,
		ServerIP:   d.ServerIP,
		ClientPort: d.ClientPort,
		ServerPort: d.ServerPort,
		StartTime:  now,
		LastSeen:   now,
		Status:     model.StatusActive,

		DataTransferredMB:   d.DataTransferredMB,
		PacketsSent:         d.PacketsSent,
		PacketsReceived:     d.PacketsReceived,
		ScreenshotCount:     d.ScreenshotCount,
		ClipboardOperations: d.ClipboardOperations,
		FileOperations:      d.FileOperations,
	}
	sess.RiskScore = t.initialRisk(d.ClientIP)

	if err := t.store.Insert(sess); err != nil {
		util.Error("failed to persist new session %s: %v", sess.Key(), err)
		return
	}

	t.live[sess.Key()] = sess
	if t.metrics != nil {
		t.metrics.SessionsTracked.Inc()
	}
	t.sink.Publish(notify.NewEvent(notify.EventSessionStarted, sess))
	util.Info("session started: %s -> %s:%d (risk %.0f)",
		sess.ClientIP, sess.ServerIP, sess.ServerPort, sess.RiskScore)
}

// updateLocked folds a new observation into a live session. Counters only
// ever move forward; a source that cannot see a counter reports zero and
// must not reset accumulated values.
func (t *Tracker) updateLocked(sess *model.Session, d ConnectionDescriptor, now time.Time) {
	sess.LastSeen = now
	sess.DataTransferredMB = maxFloat(sess.DataTransferredMB, d.DataTransferredMB)
	sess.PacketsSent = maxInt(sess.PacketsSent, d.PacketsSent)
	sess.PacketsReceived = maxInt(sess.PacketsReceived, d.PacketsReceived)
	sess.ScreenshotCount = maxInt(sess.ScreenshotCount, d.ScreenshotCount)
	sess.ClipboardOperations = maxInt(sess.ClipboardOperations, d.ClipboardOperations)
	sess.FileOperations = maxInt(sess.FileOperations, d.FileOperations)

	if err := t.store.UpdateActivity(sess); err != nil {
		util.Error("failed to update session %d: %v", sess.ID, err)
	}
}

func (t *Tracker) closeMissingLocked(seen map[string]struct{}, now time.Time) {
	for key, sess := range t.live {
		if _, ok := seen[key]; ok {
			continue
		}
		if err := t.store.Close(sess.ID, now); err != nil {
			util.Error("failed to close session %d: %v", sess.ID, err)
			continue
		}

		end := now
		sess.EndTime = &end
		sess.Status = model.StatusTerminated
		delete(t.live, key)

		t.sink.Publish(notify.NewEvent(notify.EventSessionEnded, sess))
		util.Info("session ended: %s -> %s:%d after %s",
			sess.ClientIP, sess.ServerIP, sess.ServerPort,
			sess.Duration(now).Round(time.Second))
	}
}

func (t *Tracker) initialRisk(clientIP string) float64 {
	risk := 0.0
	if !util.IsInternalIP(clientIP) {
		risk += riskExternalClient
	}
	if t.reputation != nil && t.reputation.IsSuspicious(clientIP) {
		risk += riskSuspiciousIP
	}
	return model.ClampRisk(risk)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func maxInt(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func (t *Tracker) updateGaugeLocked() {
	if t.metrics != nil {
		t.metrics.ActiveSessions.Set(float64(len(t.live)))
	}
}
