package store

import (
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlSchema = []string{`
	CREATE TABLE IF NOT EXISTS triage_records (
		id VARCHAR(255) PRIMARY KEY,
		seq BIGINT NOT NULL,
		thread_id VARCHAR(255) NOT NULL DEFAULT '',
		sender TEXT NOT NULL,
		subject TEXT NOT NULL,
		message_date VARCHAR(255) NOT NULL DEFAULT '',
		snippet TEXT NOT NULL,
		processed BOOLEAN NOT NULL DEFAULT FALSE,
		importance_score INT NOT NULL,
		identified_at VARCHAR(40) NOT NULL,
		INDEX idx_triage_records_seq (seq)
	) CHARACTER SET utf8mb4`,
}

// MySQLStore is a MySQL implementation of the TriageStore interface
type MySQLStore struct {
	*sqlStore
}

// NewMySQLStore connects to MySQL and ensures the schema exists
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	// Report matched rows, so updates that leave a value unchanged still count
	cfg.ClientFoundRows = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	inner, err := newSQLStore(db, "mysql", mysqlSchema, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Connected to MySQL store")
	return &MySQLStore{sqlStore: inner}, nil
}
