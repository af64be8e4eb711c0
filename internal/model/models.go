// Package model defines core data structures for vncguard.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a tracked VNC session.
type SessionStatus string

const (
	StatusActive     SessionStatus = "active"
	StatusTerminated SessionStatus = "terminated"
	StatusBlocked    SessionStatus = "blocked"
)

// Terminal reports whether a session in this status can never become active again.
func (s SessionStatus) Terminal() bool {
	return s == StatusTerminated || s == StatusBlocked
}

// Severity is the ordinal threat classification driving block duration.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// BlockDurations maps severity to the automatic block duration.
// Fixed policy; tests pin these values.
var BlockDurations = map[Severity]time.Duration{
	SeverityLow:      30 * time.Minute,
	SeverityMedium:   60 * time.Minute,
	SeverityHigh:     240 * time.Minute,
	SeverityCritical: 1440 * time.Minute,
}

// DetectionMethod identifies which detector produced a threat record.
type DetectionMethod string

const (
	MethodRuleBased  DetectionMethod = "rule_based"
	MethodML         DetectionMethod = "machine_learning"
	MethodSimulation DetectionMethod = "simulation"
)

// Threat type categories.
const (
	ThreatTrafficAnomaly   = "traffic_analysis_anomaly"
	ThreatMLAnomaly        = "ml_anomaly_detection"
	ThreatLargeTransfer    = "large_data_transfer"
	ThreatScreenshotSpam   = "screenshot_spam"
	ThreatClipboardAbuse   = "clipboard_stealing"
	ThreatFileExfiltration = "file_exfiltration"
)

// ConnectionKey builds the live-connection identity for a session tuple.
func ConnectionKey(serverIP string, serverPort int, clientIP string, clientPort int) string {
	return fmt.Sprintf("%s:%d-%s:%d", serverIP, serverPort, clientIP, clientPort)
}

// Session represents one tracked VNC connection and its accumulated counters.
type Session struct {
	ID         int64         `json:"id"`
	ClientIP   string        `json:"client_ip"`
	ServerIP   string        `json:"server_ip"`
	ClientPort int           `json:"client_port"`
	ServerPort int           `json:"server_port"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    *time.Time    `json:"end_time,omitempty"`
	LastSeen   time.Time     `json:"last_seen"`
	Status     SessionStatus `json:"status"`

	// Activity counters, monotonically non-decreasing while active.
	DataTransferredMB   float64 `json:"data_transferred_mb"`
	PacketsSent         int64   `json:"packets_sent"`
	PacketsReceived     int64   `json:"packets_received"`
	ScreenshotCount     int64   `json:"screenshot_count"`
	ClipboardOperations int64   `json:"clipboard_operations"`
	FileOperations      int64   `json:"file_operations"`

	// Derived scores.
	RiskScore    float64 `json:"risk_score"`    // clamped 0-100
	AnomalyScore float64 `json:"anomaly_score"` // informational accumulator
}

// Key returns the connection identity used by the tracker's live-session map.
func (s *Session) Key() string {
	return ConnectionKey(s.ServerIP, s.ServerPort, s.ClientIP, s.ClientPort)
}

// Duration returns the session length, using now for still-active sessions.
func (s *Session) Duration(now time.Time) time.Duration {
	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	return now.Sub(s.StartTime)
}

// ClampRisk bounds a risk score to the 0-100 scale.
func ClampRisk(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// ThreatRecord is one persisted detection event.
type ThreatRecord struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	ThreatType string    `json:"threat_type"`
	Severity   Severity  `json:"severity"`
	Confidence float64   `json:"confidence"` // 0-1
	SourceIP   string    `json:"source_ip"`
	SourcePort int       `json:"source_port,omitempty"`

	Description     string          `json:"description"`
	DetectionMethod DetectionMethod `json:"detection_method"`

	ActionTaken          string `json:"action_taken"`
	BlockedAutomatically bool   `json:"blocked_automatically"`

	// Metadata is the serialized detail blob; immutable once written.
	Metadata string `json:"metadata,omitempty"`

	SessionID *int64 `json:"session_id,omitempty"`
}

// SetMetadata stores an arbitrary detail structure as JSON.
func (t *ThreatRecord) SetMetadata(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	t.Metadata = string(data)
	return nil
}

// GetMetadata decodes the metadata blob into out.
func (t *ThreatRecord) GetMetadata(out interface{}) error {
	if t.Metadata == "" {
		return nil
	}
	return json.Unmarshal([]byte(t.Metadata), out)
}

// Baseline holds rolling statistics used for z-score comparisons.
// Owned by the baseline engine, read-only everywhere else.
type Baseline struct {
	ComputedAt time.Time `json:"computed_at"`
	Samples    int       `json:"samples"`

	AvgDataTransferMB float64 `json:"avg_data_transfer_mb"`
	StdDataTransferMB float64 `json:"std_data_transfer_mb"`
	AvgDurationHours  float64 `json:"avg_duration_hours"`
	StdDurationHours  float64 `json:"std_duration_hours"`

	// Fixed reference rates, per minute.
	NormalScreenshotRate float64 `json:"normal_screenshot_rate"`
	NormalClipboardRate  float64 `json:"normal_clipboard_rate"`
}

// DefaultBaseline returns the fallback baseline used when no history exists.
func DefaultBaseline() Baseline {
	return Baseline{
		AvgDataTransferMB:    10.0,
		StdDataTransferMB:    5.0,
		AvgDurationHours:     1.0,
		StdDurationHours:     0.5,
		NormalScreenshotRate: 2.0,
		NormalClipboardRate:  5.0,
	}
}

// BlockEntry is an active or expired address block.
type BlockEntry struct {
	Address   string     `json:"address"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"` // nil = permanent
	Reason    string     `json:"reason"`
	ThreatID  *int64     `json:"threat_id,omitempty"`
}

// Expired reports whether the entry's TTL has passed at the given time.
func (b *BlockEntry) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && !now.Before(*b.ExpiresAt)
}

// FirewallRule is the persisted counterpart of a block (or manual rule).
type FirewallRule struct {
	ID          int64      `json:"id"`
	RuleName    string     `json:"rule_name"`
	SourceIP    string     `json:"source_ip"`
	Ports       string     `json:"ports"` // comma-separated destination ports
	Protocol    string     `json:"protocol"`
	Action      string     `json:"action"` // allow, deny
	IsActive    bool       `json:"is_active"`
	AutoCreated bool       `json:"auto_created"`
	ThreatID    *int64     `json:"trigger_threat_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// AuditEntry records a response-engine action for the audit trail.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"` // ip_blocked, ip_unblocked, rule_change
	Actor     string    `json:"actor"`      // system, admin
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// SessionStats is a point-in-time summary for status and dashboard surfaces.
type SessionStats struct {
	ActiveSessions  int `json:"active_sessions"`
	TotalSessions   int `json:"total_sessions"`
	ThreatsDetected int `json:"threats_detected"`
	ThreatsBlocked  int `json:"threats_blocked"`
	ActiveBlocks    int `json:"active_blocks"`
	ActiveRules     int `json:"active_rules"`
}
