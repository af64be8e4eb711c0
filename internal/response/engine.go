package response

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/user/vncguard/internal/metrics"
	"github.com/user/vncguard/internal/model"
	"github.com/user/vncguard/internal/notify"
	"github.com/user/vncguard/internal/storage"
	"github.com/user/vncguard/internal/util"
)

// Actors recorded in the audit trail.
const (
	ActorSystem = "system"
	ActorAdmin  = "admin"
)

// Stats summarizes the block ledger.
type Stats struct {
	ActiveBlocks int `json:"active_blocks"`
	TimedBlocks  int `json:"timed_blocks"`
	AutoCreated  int `json:"auto_created"`
}

// Engine owns the in-memory block ledger and keeps it consistent with the
// firewall_rules table: every active block has an active rule and vice
// versa.
type Engine struct {
	mu     sync.Mutex
	blocks map[string]*model.BlockEntry

	enforcer Enforcer
	rules    *storage.RuleStorage
	audit    *storage.AuditStorage
	sink     notify.Sink
	metrics  *metrics.Metrics

	vncPorts []int
}

// NewEngine builds an empty engine; call Restore to rebuild state after a
// restart.
func NewEngine(enforcer Enforcer, rules *storage.RuleStorage, audit *storage.AuditStorage,
	sink notify.Sink, m *metrics.Metrics, vncPorts []int) *Engine {
	if sink == nil {
		sink = notify.NopSink{}
	}
	return &Engine{
		blocks:   make(map[string]*model.BlockEntry),
		enforcer: enforcer,
		rules:    rules,
		audit:    audit,
		sink:     sink,
		metrics:  m,
		vncPorts: vncPorts,
	}
}

// Restore rebuilds the in-memory ledger from active rules and re-applies
// enforcement. Rules that already expired while the process was down are
// deactivated instead.
func (e *Engine) Restore(now time.Time) error {
	active, err := e.rules.GetActive()
	if err != nil {
		return fmt.Errorf("failed to restore block rules: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	restored, expired := 0, 0
	for i := range active {
		rule := &active[i]
		if rule.Action != "deny" {
			continue
		}
		if rule.ExpiresAt != nil && !now.Before(*rule.ExpiresAt) {
			if _, err := e.rules.Deactivate(rule.SourceIP, now); err != nil {
				util.Error("failed to deactivate stale rule for %s: %v", rule.SourceIP, err)
			}
			expired++
			continue
		}

		e.blocks[rule.SourceIP] = &model.BlockEntry{
			Address:   rule.SourceIP,
			CreatedAt: rule.CreatedAt,
			ExpiresAt: rule.ExpiresAt,
			Reason:    rule.Description,
			ThreatID:  rule.ThreatID,
		}
		if err := e.enforcer.Block(rule.SourceIP); err != nil {
			util.Warn("enforcement failed for restored block %s: %v", rule.SourceIP, err)
		}
		restored++
	}

	e.updateGaugeLocked()
	util.Info("restored %d active blocks, dropped %d expired", restored, expired)
	return nil
}

// Block blocks an address for the given duration (zero means permanent).
// Re-blocking an already blocked address refreshes its expiry. Internal,
// loopback, and link-local addresses are refused.
func (e *Engine) Block(addr string, d time.Duration, reason string, threatID *int64, actor string) (*model.BlockEntry, error) {
	if !util.ValidIP(addr) {
		return nil, fmt.Errorf("invalid address %q", addr)
	}
	if util.IsInternalIP(addr) {
		e.recordAudit(notify.EventIPBlocked, actor, "block refused", addr, false,
			"internal addresses cannot be blocked")
		return nil, fmt.Errorf("refusing to block internal address %s", addr)
	}

	now := time.Now()
	entry := &model.BlockEntry{
		Address:   addr,
		CreatedAt: now,
		Reason:    reason,
		ThreatID:  threatID,
	}
	if d > 0 {
		exp := now.Add(d)
		entry.ExpiresAt = &exp
	}

	rule := &model.FirewallRule{
		RuleName:    "vncguard-block-" + addr,
		SourceIP:    addr,
		Ports:       util.PortsCSV(e.vncPorts),
		Protocol:    "tcp",
		Action:      "deny",
		IsActive:    true,
		AutoCreated: actor == ActorSystem,
		ThreatID:    threatID,
		ExpiresAt:   entry.ExpiresAt,
		Description: reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.rules.Upsert(rule); err != nil {
		e.recordAudit(notify.EventIPBlocked, actor, "block", addr, false, err.Error())
		return nil, err
	}

	e.mu.Lock()
	_, already := e.blocks[addr]
	e.blocks[addr] = entry
	e.updateGaugeLocked()
	e.mu.Unlock()

	if err := e.enforcer.Block(addr); err != nil {
		// The ledger and rule stand; the host just is not enforcing yet.
		util.Warn("firewall enforcement failed for %s: %v", addr, err)
	}

	if !already && e.metrics != nil {
		e.metrics.BlocksCreated.Inc()
	}
	e.recordAudit(notify.EventIPBlocked, actor, "block", addr, true, "")
	e.sink.Publish(notify.NewEvent(notify.EventIPBlocked, entry))
	util.Info("blocked %s (%s, expires %s)", addr, reason, expiryString(entry.ExpiresAt))

	return entry, nil
}

// AutoBlockFromThreat blocks the threat's source for the duration its
// severity dictates.
func (e *Engine) AutoBlockFromThreat(threat *model.ThreatRecord) (*model.BlockEntry, error) {
	d, ok := model.BlockDurations[threat.Severity]
	if !ok {
		d = model.BlockDurations[model.SeverityMedium]
	}
	id := threat.ID
	reason := fmt.Sprintf("automatic block: %s (%s)", threat.ThreatType, threat.Severity)
	return e.Block(threat.SourceIP, d, reason, &id, ActorSystem)
}

// AllowVPNOnly records a persistent allow rule for a VPN network so the
// VNC ports can be restricted to it. The rule is informational until the
// host firewall is configured with a matching default-deny policy.
func (e *Engine) AllowVPNOnly(cidr string, actor string) (*model.FirewallRule, error) {
	if _, _, err := net.ParseCIDR(cidr); err != nil {
		return nil, fmt.Errorf("invalid network %q: %w", cidr, err)
	}

	now := time.Now()
	rule := &model.FirewallRule{
		RuleName:    "vncguard-vpn-only-" + cidr,
		SourceIP:    cidr,
		Ports:       util.PortsCSV(e.vncPorts),
		Protocol:    "tcp",
		Action:      "allow",
		IsActive:    true,
		AutoCreated: actor == ActorSystem,
		Description: fmt.Sprintf("allow VNC access from VPN network %s only", cidr),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.rules.Upsert(rule); err != nil {
		e.recordAudit("rule_change", actor, "allow_vpn", cidr, false, err.Error())
		return nil, err
	}

	e.recordAudit("rule_change", actor, "allow_vpn", cidr, true, "")
	util.Info("vpn-only allow rule recorded for %s", cidr)
	return rule, nil
}

// Unblock removes an address block. Returns false when the address was not
// blocked.
func (e *Engine) Unblock(addr string, actor string) (bool, error) {
	now := time.Now()

	e.mu.Lock()
	_, present := e.blocks[addr]
	delete(e.blocks, addr)
	e.updateGaugeLocked()
	e.mu.Unlock()

	n, err := e.rules.Deactivate(addr, now)
	if err != nil {
		e.recordAudit(notify.EventIPUnblocked, actor, "unblock", addr, false, err.Error())
		return false, err
	}
	if !present && n == 0 {
		return false, nil
	}

	if err := e.enforcer.Unblock(addr); err != nil {
		util.Warn("firewall removal failed for %s: %v", addr, err)
	}

	if e.metrics != nil {
		e.metrics.BlocksRemoved.Inc()
	}
	e.recordAudit(notify.EventIPUnblocked, actor, "unblock", addr, true, "")
	e.sink.Publish(notify.NewEvent(notify.EventIPUnblocked, addr))
	util.Info("unblocked %s", addr)

	return true, nil
}

// SweepExpired removes every block whose expiry has passed and returns how
// many were removed. Permanent blocks are never touched.
func (e *Engine) SweepExpired(now time.Time) (int, error) {
	e.mu.Lock()
	var expired []string
	for addr, entry := range e.blocks {
		if entry.Expired(now) {
			expired = append(expired, addr)
		}
	}
	e.mu.Unlock()

	removed := 0
	for _, addr := range expired {
		ok, err := e.Unblock(addr, ActorSystem)
		if err != nil {
			util.Error("sweep failed to unblock %s: %v", addr, err)
			continue
		}
		if ok {
			removed++
			if e.metrics != nil {
				e.metrics.SweepRemoved.Inc()
			}
		}
	}

	if removed > 0 {
		util.Info("expiry sweep removed %d blocks", removed)
	}
	return removed, nil
}

// IsBlocked reports whether the address has an active, unexpired block.
func (e *Engine) IsBlocked(addr string, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.blocks[addr]
	return ok && !entry.Expired(now)
}

// List returns a snapshot of active blocks.
func (e *Engine) List() []model.BlockEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.BlockEntry, 0, len(e.blocks))
	for _, entry := range e.blocks {
		out = append(out, *entry)
	}
	return out
}

// Stats summarizes the ledger.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{ActiveBlocks: len(e.blocks)}
	for _, entry := range e.blocks {
		if entry.ExpiresAt != nil {
			s.TimedBlocks++
		}
	}

	if n, err := e.rules.CountAutoCreated(); err == nil {
		s.AutoCreated = n
	}
	return s
}

func (e *Engine) recordAudit(eventType, actor, action, target string, success bool, errMsg string) {
	if e.audit == nil {
		return
	}
	entry := &model.AuditEntry{
		Timestamp: time.Now(),
		EventType: eventType,
		Actor:     actor,
		Action:    action,
		Target:    target,
		Success:   success,
		Error:     errMsg,
	}
	if err := e.audit.Insert(entry); err != nil {
		util.Error("failed to write audit entry: %v", err)
	}
}

func (e *Engine) updateGaugeLocked() {
	if e.metrics != nil {
		e.metrics.ActiveBlocks.Set(float64(len(e.blocks)))
	}
}

func expiryString(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}
