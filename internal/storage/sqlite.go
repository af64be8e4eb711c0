// Package storage provides SQLite persistence for vncguard.
package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection.
type DB struct {
	*sql.DB
	mu sync.RWMutex
}

// Initialize opens (and creates, if needed) the database in dataDir.
func Initialize(dataDir string) (*DB, error) {
	dbPath := filepath.Join(dataDir, "vncguard.db")
	return Open(dbPath)
}

// Open opens a database at an explicit path.
func Open(dbPath string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	db := &DB{DB: sqlDB}
	if err := db.createTables(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

func (db *DB) createTables() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS vnc_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_ip TEXT NOT NULL,
			server_ip TEXT NOT NULL,
			client_port INTEGER DEFAULT 0,
			server_port INTEGER DEFAULT 5900,
			start_time DATETIME NOT NULL,
			end_time DATETIME,
			last_seen DATETIME,
			status TEXT NOT NULL DEFAULT 'active',
			data_transferred REAL DEFAULT 0,
			packets_sent INTEGER DEFAULT 0,
			packets_received INTEGER DEFAULT 0,
			screenshots_count INTEGER DEFAULT 0,
			clipboard_operations INTEGER DEFAULT 0,
			file_operations INTEGER DEFAULT 0,
			risk_score REAL DEFAULT 0,
			anomaly_score REAL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_client_ip ON vnc_sessions(client_ip)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON vnc_sessions(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_status ON vnc_sessions(status)`,

		`CREATE TABLE IF NOT EXISTS threat_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			threat_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			confidence REAL DEFAULT 0,
			source_ip TEXT NOT NULL,
			source_port INTEGER,
			description TEXT NOT NULL,
			detection_method TEXT NOT NULL,
			action_taken TEXT NOT NULL DEFAULT 'logged',
			blocked_automatically INTEGER DEFAULT 0,
			metadata TEXT,
			session_id INTEGER,
			FOREIGN KEY (session_id) REFERENCES vnc_sessions(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_threats_timestamp ON threat_logs(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_threats_source_ip ON threat_logs(source_ip)`,
		`CREATE INDEX IF NOT EXISTS idx_threats_type ON threat_logs(threat_type)`,
		`CREATE INDEX IF NOT EXISTS idx_threats_session ON threat_logs(session_id)`,

		`CREATE TABLE IF NOT EXISTS firewall_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			rule_name TEXT NOT NULL UNIQUE,
			source_ip TEXT NOT NULL,
			ports TEXT,
			protocol TEXT DEFAULT 'tcp',
			action TEXT NOT NULL,
			is_active INTEGER DEFAULT 1,
			auto_created INTEGER DEFAULT 0,
			trigger_threat_id INTEGER,
			expires_at DATETIME,
			description TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (trigger_threat_id) REFERENCES threat_logs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_source_ip ON firewall_rules(source_ip)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_active ON firewall_rules(is_active)`,

		`CREATE TABLE IF NOT EXISTS audit_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			event_type TEXT NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			target TEXT,
			success INTEGER NOT NULL,
			error_message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_logs(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_event_type ON audit_logs(event_type)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to execute: %s: %w", table, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// WithLock executes a function with write lock.
func (db *DB) WithLock(fn func() error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn()
}

// WithRLock executes a function with read lock.
func (db *DB) WithRLock(fn func() error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return fn()
}
