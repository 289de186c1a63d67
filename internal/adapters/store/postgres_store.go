package store

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/NickCassab/email-buddy/internal/core"
)

//go:embed postgres_schema.sql
var postgresSchema string

// PostgresStore persists triage records in PostgreSQL
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore connects to PostgreSQL, applies the schema, and returns a ready store
func NewPostgresStore(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("Connected to PostgreSQL store")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Load reads all records in insertion order inside a read-only
// repeatable-read transaction
func (s *PostgresStore) Load(ctx context.Context) (*core.Snapshot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only, nothing to keep

	rows, err := tx.Query(ctx, `
		SELECT id, thread_id, sender, subject, message_date, snippet, processed, importance_score, identified_at
		FROM triage_records
		ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query triage records: %w", err)
	}
	defer rows.Close()

	snap := core.EmptySnapshot()
	for rows.Next() {
		var r core.TriageRecord
		if err := rows.Scan(&r.ID, &r.ThreadID, &r.Sender, &r.Subject, &r.Date, &r.Snippet,
			&r.Processed, &r.ImportanceScore, &r.IdentifiedAt); err != nil {
			return nil, fmt.Errorf("scan triage record: %w", err)
		}
		snap.ProcessedIDs = append(snap.ProcessedIDs, r.ID)
		snap.TriageRecords = append(snap.TriageRecords, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read triage records: %w", err)
	}
	return snap, nil
}

// Apply commits a changeset in one transaction
func (s *PostgresStore) Apply(ctx context.Context, cs *core.Changeset) error {
	if cs.Empty() {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if len(cs.Added) > 0 {
		var seq int64
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM triage_records`).Scan(&seq); err != nil {
			return fmt.Errorf("read sequence: %w", err)
		}

		batch := &pgx.Batch{}
		for _, r := range cs.Added {
			seq++
			batch.Queue(`
				INSERT INTO triage_records
					(id, seq, thread_id, sender, subject, message_date, snippet, processed, importance_score, identified_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				r.ID, seq, r.ThreadID, r.Sender, r.Subject, r.Date, r.Snippet, r.Processed, r.ImportanceScore, r.IdentifiedAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert records: %w", err)
		}
	}

	for id, score := range cs.Rescored {
		tag, err := tx.Exec(ctx, `UPDATE triage_records SET importance_score = $1 WHERE id = $2`, score, id)
		if err != nil {
			return fmt.Errorf("update score of %q: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("cannot rescore unknown record %q", id)
		}
	}

	if len(cs.Processed) > 0 {
		ids := uniqueIDs(cs.Processed)
		tag, err := tx.Exec(ctx, `UPDATE triage_records SET processed = TRUE WHERE id = ANY($1)`, ids)
		if err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
		if tag.RowsAffected() != int64(len(ids)) {
			return fmt.Errorf("cannot mark unknown records: %d of %d matched", tag.RowsAffected(), len(ids))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("Committed changeset",
		zap.String("store", "postgres"),
		zap.Int("added", len(cs.Added)),
		zap.Int("rescored", len(cs.Rescored)),
		zap.Int("processed", len(cs.Processed)))
	return nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Close shuts down the connection pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
