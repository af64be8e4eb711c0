package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/user/vncguard/internal/model"
)

// RuleStorage handles firewall rule persistence.
type RuleStorage struct {
	db *DB
}

// NewRuleStorage creates a new firewall rule storage handler.
func NewRuleStorage(db *DB) *RuleStorage {
	return &RuleStorage{db: db}
}

const ruleColumns = `id, rule_name, source_ip, ports, protocol, action, is_active,
	auto_created, trigger_threat_id, expires_at, description, created_at, updated_at`

// Upsert records a rule keyed by its name. Re-writing an existing rule
// refreshes its expiry, trigger, and description instead of creating a
// duplicate.
func (r *RuleStorage) Upsert(rule *model.FirewallRule) error {
	query := `INSERT INTO firewall_rules
		(rule_name, source_ip, ports, protocol, action, is_active, auto_created,
		 trigger_threat_id, expires_at, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(rule_name) DO UPDATE SET
			is_active = 1,
			auto_created = excluded.auto_created,
			trigger_threat_id = excluded.trigger_threat_id,
			expires_at = excluded.expires_at,
			description = excluded.description,
			updated_at = excluded.updated_at`

	_, err := r.db.Exec(query,
		rule.RuleName, rule.SourceIP, rule.Ports, rule.Protocol, rule.Action,
		rule.AutoCreated, nullableInt64(rule.ThreatID),
		nullableTime(rule.ExpiresAt), rule.Description,
		rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert block rule: %w", err)
	}

	row := r.db.QueryRow(`SELECT id FROM firewall_rules WHERE rule_name = ?`, rule.RuleName)
	if err := row.Scan(&rule.ID); err != nil {
		return fmt.Errorf("failed to resolve rule ID: %w", err)
	}

	return nil
}

// Deactivate marks all active rules for an address as inactive and returns
// how many were affected.
func (r *RuleStorage) Deactivate(sourceIP string, now time.Time) (int, error) {
	result, err := r.db.Exec(
		`UPDATE firewall_rules SET is_active = 0, updated_at = ?
		 WHERE source_ip = ? AND is_active = 1`, now, sourceIP)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate rules: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// GetActiveByIP returns the active rule for an address, or nil if none exists.
func (r *RuleStorage) GetActiveByIP(sourceIP string) (*model.FirewallRule, error) {
	row := r.db.QueryRow(`SELECT `+ruleColumns+` FROM firewall_rules
		WHERE source_ip = ? AND is_active = 1
		ORDER BY updated_at DESC LIMIT 1`, sourceIP)

	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// GetActive returns all active rules.
func (r *RuleStorage) GetActive() ([]model.FirewallRule, error) {
	return r.query(`SELECT ` + ruleColumns + ` FROM firewall_rules
		WHERE is_active = 1 ORDER BY created_at DESC`)
}

// GetActiveTimed returns active rules that carry an expiry. Used at startup
// to rebuild the in-memory block list and by the expiry sweep.
func (r *RuleStorage) GetActiveTimed() ([]model.FirewallRule, error) {
	return r.query(`SELECT ` + ruleColumns + ` FROM firewall_rules
		WHERE is_active = 1 AND expires_at IS NOT NULL ORDER BY expires_at ASC`)
}

// CountActive returns the number of active rules.
func (r *RuleStorage) CountActive() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM firewall_rules WHERE is_active = 1`).Scan(&count)
	return count, err
}

// CountAutoCreated returns the number of active rules created automatically.
func (r *RuleStorage) CountAutoCreated() (int, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM firewall_rules WHERE is_active = 1 AND auto_created = 1`).Scan(&count)
	return count, err
}

func (r *RuleStorage) query(query string, args ...interface{}) ([]model.FirewallRule, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []model.FirewallRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}

	return rules, rows.Err()
}

func scanRule(row rowScanner) (*model.FirewallRule, error) {
	var rule model.FirewallRule
	var threatID sql.NullInt64
	var expires sql.NullTime

	err := row.Scan(
		&rule.ID, &rule.RuleName, &rule.SourceIP, &rule.Ports, &rule.Protocol,
		&rule.Action, &rule.IsActive, &rule.AutoCreated, &threatID, &expires,
		&rule.Description, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if threatID.Valid {
		id := threatID.Int64
		rule.ThreatID = &id
	}
	if expires.Valid {
		t := expires.Time
		rule.ExpiresAt = &t
	}

	return &rule, nil
}
