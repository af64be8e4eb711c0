package storage

import (
	"fmt"

	"github.com/user/vncguard/internal/model"
)

// AuditStorage handles audit log persistence.
type AuditStorage struct {
	db *DB
}

// NewAuditStorage creates a new audit storage handler.
func NewAuditStorage(db *DB) *AuditStorage {
	return &AuditStorage{db: db}
}

// Insert persists an audit entry and sets its ID.
func (a *AuditStorage) Insert(entry *model.AuditEntry) error {
	query := `INSERT INTO audit_logs
		(timestamp, event_type, actor, action, target, success, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := a.db.Exec(query,
		entry.Timestamp, entry.EventType, entry.Actor, entry.Action,
		entry.Target, entry.Success, entry.Error)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	entry.ID = id

	return nil
}

// GetRecent returns the most recent audit entries, newest first.
func (a *AuditStorage) GetRecent(limit int) ([]model.AuditEntry, error) {
	rows, err := a.db.Query(`SELECT id, timestamp, event_type, actor, action,
		target, success, error_message
		FROM audit_logs ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &e.Actor,
			&e.Action, &e.Target, &e.Success, &e.Error); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
