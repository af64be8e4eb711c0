package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/user/vncguard/internal/model"
)

// ThreatStorage handles threat log persistence.
type ThreatStorage struct {
	db *DB
}

// NewThreatStorage creates a new threat storage handler.
func NewThreatStorage(db *DB) *ThreatStorage {
	return &ThreatStorage{db: db}
}

const threatColumns = `id, timestamp, threat_type, severity, confidence,
	source_ip, source_port, description, detection_method,
	action_taken, blocked_automatically, metadata, session_id`

// Insert persists a threat record and sets its ID.
func (t *ThreatStorage) Insert(rec *model.ThreatRecord) error {
	query := `INSERT INTO threat_logs
		(timestamp, threat_type, severity, confidence, source_ip, source_port,
		 description, detection_method, action_taken, blocked_automatically,
		 metadata, session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := t.db.Exec(query,
		rec.Timestamp, rec.ThreatType, string(rec.Severity), rec.Confidence,
		rec.SourceIP, rec.SourcePort, rec.Description, string(rec.DetectionMethod),
		rec.ActionTaken, rec.BlockedAutomatically, rec.Metadata,
		nullableInt64(rec.SessionID))
	if err != nil {
		return fmt.Errorf("failed to insert threat: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	rec.ID = id

	return nil
}

// UpdateAction records the response taken for a threat.
func (t *ThreatStorage) UpdateAction(id int64, action string, blockedAuto bool) error {
	_, err := t.db.Exec(
		`UPDATE threat_logs SET action_taken = ?, blocked_automatically = ? WHERE id = ?`,
		action, blockedAuto, id)
	if err != nil {
		return fmt.Errorf("failed to update threat action: %w", err)
	}
	return nil
}

// GetByID returns a threat record, or nil if it does not exist.
func (t *ThreatStorage) GetByID(id int64) (*model.ThreatRecord, error) {
	row := t.db.QueryRow(`SELECT `+threatColumns+` FROM threat_logs WHERE id = ?`, id)

	rec, err := scanThreat(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get threat: %w", err)
	}
	return rec, nil
}

// GetRecent returns the most recent threats, newest first.
func (t *ThreatStorage) GetRecent(limit int) ([]model.ThreatRecord, error) {
	return t.query(`SELECT `+threatColumns+` FROM threat_logs
		ORDER BY timestamp DESC LIMIT ?`, limit)
}

// GetSince returns threats recorded at or after the given time.
func (t *ThreatStorage) GetSince(since time.Time) ([]model.ThreatRecord, error) {
	return t.query(`SELECT `+threatColumns+` FROM threat_logs
		WHERE timestamp >= ? ORDER BY timestamp DESC`, since)
}

// GetBySession returns all threats associated with a session.
func (t *ThreatStorage) GetBySession(sessionID int64) ([]model.ThreatRecord, error) {
	return t.query(`SELECT `+threatColumns+` FROM threat_logs
		WHERE session_id = ? ORDER BY timestamp DESC`, sessionID)
}

// CountSince returns the number of threats recorded at or after the given time.
func (t *ThreatStorage) CountSince(since time.Time) (int, error) {
	var count int
	err := t.db.QueryRow(`SELECT COUNT(*) FROM threat_logs WHERE timestamp >= ?`, since).Scan(&count)
	return count, err
}

// CountBlocked returns the number of threats that triggered an automatic block.
func (t *ThreatStorage) CountBlocked() (int, error) {
	var count int
	err := t.db.QueryRow(`SELECT COUNT(*) FROM threat_logs WHERE blocked_automatically = 1`).Scan(&count)
	return count, err
}

// CountBySeverity returns threat counts grouped by severity.
func (t *ThreatStorage) CountBySeverity() (map[model.Severity]int, error) {
	rows, err := t.db.Query(`SELECT severity, COUNT(*) FROM threat_logs GROUP BY severity`)
	if err != nil {
		return nil, fmt.Errorf("failed to count threats: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Severity]int)
	for rows.Next() {
		var sev string
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, err
		}
		counts[model.Severity(sev)] = n
	}

	return counts, rows.Err()
}

func (t *ThreatStorage) query(query string, args ...interface{}) ([]model.ThreatRecord, error) {
	rows, err := t.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query threats: %w", err)
	}
	defer rows.Close()

	var threats []model.ThreatRecord
	for rows.Next() {
		rec, err := scanThreat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan threat: %w", err)
		}
		threats = append(threats, *rec)
	}

	return threats, rows.Err()
}

func scanThreat(row rowScanner) (*model.ThreatRecord, error) {
	var rec model.ThreatRecord
	var severity, method string
	var sessionID sql.NullInt64

	err := row.Scan(
		&rec.ID, &rec.Timestamp, &rec.ThreatType, &severity, &rec.Confidence,
		&rec.SourceIP, &rec.SourcePort, &rec.Description, &method,
		&rec.ActionTaken, &rec.BlockedAutomatically, &rec.Metadata, &sessionID)
	if err != nil {
		return nil, err
	}

	rec.Severity = model.Severity(severity)
	rec.DetectionMethod = model.DetectionMethod(method)
	if sessionID.Valid {
		id := sessionID.Int64
		rec.SessionID = &id
	}

	return &rec, nil
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
