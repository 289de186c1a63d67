package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/NickCassab/email-buddy/internal/core"
	"go.uber.org/zap"
)

// sqlStore implements TriageStore on database/sql. Every record row doubles
// as the record's processed-id entry, so the two can never drift apart.
type sqlStore struct {
	db     *sql.DB
	name   string
	logger *zap.Logger
}

func newSQLStore(db *sql.DB, name string, schema []string, logger *zap.Logger) (*sqlStore, error) {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create %s schema: %w", name, err)
		}
	}
	return &sqlStore{db: db, name: name, logger: logger}, nil
}

// Load reads all records in insertion order with a single query
func (s *sqlStore) Load(ctx context.Context) (*core.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, sender, subject, message_date, snippet, processed, importance_score, identified_at
		FROM triage_records
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query triage records: %w", err)
	}
	defer rows.Close()

	snap := core.EmptySnapshot()
	for rows.Next() {
		var r core.TriageRecord
		var identifiedAt string
		if err := rows.Scan(&r.ID, &r.ThreadID, &r.Sender, &r.Subject, &r.Date, &r.Snippet,
			&r.Processed, &r.ImportanceScore, &identifiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan triage record: %w", err)
		}
		if r.IdentifiedAt, err = time.Parse(time.RFC3339Nano, identifiedAt); err != nil {
			return nil, fmt.Errorf("%w: bad identified_at for %q: %v", ErrSnapshotCorrupt, r.ID, err)
		}
		snap.ProcessedIDs = append(snap.ProcessedIDs, r.ID)
		snap.TriageRecords = append(snap.TriageRecords, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read triage records: %w", err)
	}
	return snap, nil
}

// Apply commits a changeset in one transaction
func (s *sqlStore) Apply(ctx context.Context, cs *core.Changeset) error {
	if cs.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(cs.Added) > 0 {
		var seq int64
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM triage_records`).Scan(&seq); err != nil {
			return fmt.Errorf("failed to read sequence: %w", err)
		}
		for _, r := range cs.Added {
			seq++
			_, err := tx.ExecContext(ctx, `
				INSERT INTO triage_records
					(id, seq, thread_id, sender, subject, message_date, snippet, processed, importance_score, identified_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, r.ID, seq, r.ThreadID, r.Sender, r.Subject, r.Date, r.Snippet, r.Processed, r.ImportanceScore,
				r.IdentifiedAt.UTC().Format(time.RFC3339Nano))
			if err != nil {
				return fmt.Errorf("failed to insert record %q: %w", r.ID, err)
			}
		}
	}

	for id, score := range cs.Rescored {
		res, err := tx.ExecContext(ctx, `UPDATE triage_records SET importance_score = ? WHERE id = ?`, score, id)
		if err != nil {
			return fmt.Errorf("failed to update score of %q: %w", id, err)
		}
		if err := requireRow(res, "rescore", id); err != nil {
			return err
		}
	}

	for _, id := range cs.Processed {
		res, err := tx.ExecContext(ctx, `UPDATE triage_records SET processed = ? WHERE id = ?`, true, id)
		if err != nil {
			return fmt.Errorf("failed to mark %q processed: %w", id, err)
		}
		if err := requireRow(res, "mark", id); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("Committed changeset",
		zap.String("store", s.name),
		zap.Int("added", len(cs.Added)),
		zap.Int("rescored", len(cs.Rescored)),
		zap.Int("processed", len(cs.Processed)))
	return nil
}

// requireRow fails when an update matched no record
func requireRow(res sql.Result, action, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("cannot %s unknown record %q", action, id)
	}
	return nil
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close %s database: %w", s.name, err)
	}
	return nil
}
