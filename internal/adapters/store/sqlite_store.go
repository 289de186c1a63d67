package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteSchema = []string{`
	CREATE TABLE IF NOT EXISTS triage_records (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		thread_id TEXT NOT NULL DEFAULT '',
		sender TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		message_date TEXT NOT NULL DEFAULT '',
		snippet TEXT NOT NULL DEFAULT '',
		processed BOOLEAN NOT NULL DEFAULT 0,
		importance_score INTEGER NOT NULL,
		identified_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_triage_records_seq ON triage_records(seq)`,
}

// SQLiteStore is a SQLite implementation of the TriageStore interface
type SQLiteStore struct {
	*sqlStore
}

// NewSQLiteStore opens a SQLite store in WAL mode so readers never wait on the writer
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	inner, err := newSQLStore(db, "sqlite", sqliteSchema, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Opened SQLite store", zap.String("path", dbPath))
	return &SQLiteStore{sqlStore: inner}, nil
}
