package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/user/vncguard/internal/model"
)

// SessionStorage handles VNC session persistence.
type SessionStorage struct {
	db *DB
}

// NewSessionStorage creates a new session storage handler.
func NewSessionStorage(db *DB) *SessionStorage {
	return &SessionStorage{db: db}
}

const sessionColumns = `id, client_ip, server_ip, client_port, server_port,
	start_time, end_time, last_seen, status,
	data_transferred, packets_sent, packets_received,
	screenshots_count, clipboard_operations, file_operations,
	risk_score, anomaly_score`

// Insert persists a new session and sets its ID.
func (s *SessionStorage) Insert(sess *model.Session) error {
	query := `INSERT INTO vnc_sessions
		(client_ip, server_ip, client_port, server_port, start_time, end_time,
		 last_seen, status, data_transferred, packets_sent, packets_received,
		 screenshots_count, clipboard_operations, file_operations,
		 risk_score, anomaly_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.Exec(query,
		sess.ClientIP, sess.ServerIP, sess.ClientPort, sess.ServerPort,
		sess.StartTime, nullableTime(sess.EndTime), sess.LastSeen, string(sess.Status),
		sess.DataTransferredMB, sess.PacketsSent, sess.PacketsReceived,
		sess.ScreenshotCount, sess.ClipboardOperations, sess.FileOperations,
		sess.RiskScore, sess.AnomalyScore)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	sess.ID = id

	return nil
}

// UpdateActivity persists counters and last_seen for an active session.
func (s *SessionStorage) UpdateActivity(sess *model.Session) error {
	query := `UPDATE vnc_sessions SET
		last_seen = ?, data_transferred = ?, packets_sent = ?, packets_received = ?,
		screenshots_count = ?, clipboard_operations = ?, file_operations = ?,
		anomaly_score = ?
		WHERE id = ?`

	_, err := s.db.Exec(query,
		sess.LastSeen, sess.DataTransferredMB, sess.PacketsSent, sess.PacketsReceived,
		sess.ScreenshotCount, sess.ClipboardOperations, sess.FileOperations,
		sess.AnomalyScore, sess.ID)
	if err != nil {
		return fmt.Errorf("failed to update session activity: %w", err)
	}
	return nil
}

// Close marks a session terminated. Closing a session that no longer exists
// or is already terminal is a no-op, not an error.
func (s *SessionStorage) Close(id int64, endTime time.Time) error {
	query := `UPDATE vnc_sessions SET end_time = ?, status = ?
		WHERE id = ? AND status = ?`

	_, err := s.db.Exec(query, endTime, string(model.StatusTerminated), id, string(model.StatusActive))
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

// UpdateRisk overwrites the risk score, clamped to [0,100]. Last writer wins.
func (s *SessionStorage) UpdateRisk(id int64, score float64) error {
	_, err := s.db.Exec(`UPDATE vnc_sessions SET risk_score = ? WHERE id = ?`,
		model.ClampRisk(score), id)
	if err != nil {
		return fmt.Errorf("failed to update risk score: %w", err)
	}
	return nil
}

// UpdateAnomalyScore overwrites the informational anomaly accumulator.
func (s *SessionStorage) UpdateAnomalyScore(id int64, score float64) error {
	_, err := s.db.Exec(`UPDATE vnc_sessions SET anomaly_score = ? WHERE id = ?`, score, id)
	if err != nil {
		return fmt.Errorf("failed to update anomaly score: %w", err)
	}
	return nil
}

// SetStatus transitions a session to the given status. Blocked sessions also
// get an end time if they have none yet.
func (s *SessionStorage) SetStatus(id int64, status model.SessionStatus, now time.Time) error {
	var err error
	if status.Terminal() {
		_, err = s.db.Exec(
			`UPDATE vnc_sessions SET status = ?, end_time = COALESCE(end_time, ?) WHERE id = ?`,
			string(status), now, id)
	} else {
		_, err = s.db.Exec(`UPDATE vnc_sessions SET status = ? WHERE id = ?`, string(status), id)
	}
	if err != nil {
		return fmt.Errorf("failed to set session status: %w", err)
	}
	return nil
}

// GetByID returns a session, or nil if it does not exist.
func (s *SessionStorage) GetByID(id int64) (*model.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM vnc_sessions WHERE id = ?`, id)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

// GetActive returns all sessions currently marked active.
func (s *SessionStorage) GetActive() ([]model.Session, error) {
	return s.query(`SELECT `+sessionColumns+` FROM vnc_sessions
		WHERE status = ? ORDER BY start_time DESC`, string(model.StatusActive))
}

// GetStartedSince returns sessions started at or after the given time.
func (s *SessionStorage) GetStartedSince(since time.Time) ([]model.Session, error) {
	return s.query(`SELECT `+sessionColumns+` FROM vnc_sessions
		WHERE start_time >= ? ORDER BY start_time DESC`, since)
}

// GetRecent returns the most recently started sessions, newest first.
func (s *SessionStorage) GetRecent(limit int) ([]model.Session, error) {
	return s.query(`SELECT `+sessionColumns+` FROM vnc_sessions
		ORDER BY start_time DESC LIMIT ?`, limit)
}

// GetThreatLinked returns sessions that have at least one associated threat.
// Used as positive examples when training the anomaly models.
func (s *SessionStorage) GetThreatLinked() ([]model.Session, error) {
	return s.query(`SELECT ` + sessionColumns + ` FROM vnc_sessions
		WHERE id IN (SELECT DISTINCT session_id FROM threat_logs WHERE session_id IS NOT NULL)
		ORDER BY start_time DESC`)
}

// GetThreatFree returns up to limit sessions with no associated threats.
func (s *SessionStorage) GetThreatFree(limit int) ([]model.Session, error) {
	return s.query(`SELECT `+sessionColumns+` FROM vnc_sessions
		WHERE id NOT IN (SELECT DISTINCT session_id FROM threat_logs WHERE session_id IS NOT NULL)
		ORDER BY start_time DESC LIMIT ?`, limit)
}

// Count returns the total number of sessions.
func (s *SessionStorage) Count() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM vnc_sessions`).Scan(&count)
	return count, err
}

// CountActive returns the number of active sessions.
func (s *SessionStorage) CountActive() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM vnc_sessions WHERE status = ?`,
		string(model.StatusActive)).Scan(&count)
	return count, err
}

func (s *SessionStorage) query(query string, args ...interface{}) ([]model.Session, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}

	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var sess model.Session
	var status string
	var endTime, lastSeen sql.NullTime

	err := row.Scan(
		&sess.ID, &sess.ClientIP, &sess.ServerIP, &sess.ClientPort, &sess.ServerPort,
		&sess.StartTime, &endTime, &lastSeen, &status,
		&sess.DataTransferredMB, &sess.PacketsSent, &sess.PacketsReceived,
		&sess.ScreenshotCount, &sess.ClipboardOperations, &sess.FileOperations,
		&sess.RiskScore, &sess.AnomalyScore)
	if err != nil {
		return nil, err
	}

	sess.Status = model.SessionStatus(status)
	if endTime.Valid {
		t := endTime.Time
		sess.EndTime = &t
	}
	if lastSeen.Valid {
		sess.LastSeen = lastSeen.Time
	}

	return &sess, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
