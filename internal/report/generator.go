// Package report generates security incident reports.
package report

import (
	"fmt"
	"time"

	"github.com/user/vncguard/internal/model"
	"github.com/user/vncguard/internal/storage"
)

// Generator creates incident reports from recorded history.
type Generator struct {
	db *storage.DB
}

// NewGenerator creates a new report generator.
func NewGenerator(db *storage.DB) *Generator {
	return &Generator{db: db}
}

// Data holds everything a rendered report needs.
type Data struct {
	GeneratedAt time.Time
	Since       time.Time

	Sessions      []model.Session
	SessionCount  int
	ActiveCount   int
	HighRiskCount int

	Threats           []model.ThreatRecord
	ThreatCount       int
	BlockedCount      int
	ThreatsBySeverity map[model.Severity]int

	Blocks []model.FirewallRule
	Audit  []model.AuditEntry
}

// Generate collects report data for everything since the given time.
func (g *Generator) Generate(since time.Time) (*Data, error) {
	data := &Data{
		GeneratedAt: time.Now(),
		Since:       since,
	}

	sessionStore := storage.NewSessionStorage(g.db)
	sessions, err := sessionStore.GetStartedSince(since)
	if err != nil {
		return nil, fmt.Errorf("failed to get sessions: %w", err)
	}
	data.Sessions = sessions
	data.SessionCount = len(sessions)
	for _, s := range sessions {
		if s.Status == model.StatusActive {
			data.ActiveCount++
		}
		if s.RiskScore > 70 {
			data.HighRiskCount++
		}
	}

	threatStore := storage.NewThreatStorage(g.db)
	threats, err := threatStore.GetSince(since)
	if err != nil {
		return nil, fmt.Errorf("failed to get threats: %w", err)
	}
	data.Threats = threats
	data.ThreatCount = len(threats)
	data.ThreatsBySeverity = make(map[model.Severity]int)
	for _, t := range threats {
		data.ThreatsBySeverity[t.Severity]++
		if t.BlockedAutomatically {
			data.BlockedCount++
		}
	}

	ruleStore := storage.NewRuleStorage(g.db)
	if blocks, err := ruleStore.GetActive(); err == nil {
		data.Blocks = blocks
	}

	auditStore := storage.NewAuditStorage(g.db)
	if audit, err := auditStore.GetRecent(50); err == nil {
		data.Audit = audit
	}

	return data, nil
}
