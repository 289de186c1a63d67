package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/NickCassab/email-buddy/internal/core"
)

// ErrSnapshotCorrupt is returned when a persisted snapshot cannot be decoded or is inconsistent
var ErrSnapshotCorrupt = errors.New("snapshot is corrupt")

// FileStore persists the triage document as a single JSON file. Commits
// take an exclusive lock file, re-read the document, and rename a
// temporary file over it, so several processes can share one path.
type FileStore struct {
	path    string
	lock    *flock.Flock
	current atomic.Pointer[core.Snapshot]
	mu      sync.Mutex
	stamp   fileStamp
	logger  *zap.Logger
}

// fileStamp identifies the on-disk version the cached snapshot came from
type fileStamp struct {
	modTime time.Time
	size    int64
}

const lockRetryDelay = 10 * time.Millisecond

// NewFileStore opens or creates a JSON file store at path
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &FileStore{path: path, lock: flock.New(path + ".lock"), logger: logger}
	snap, stamp, err := readSnapshotFile(path)
	if err != nil {
		return nil, err
	}
	s.current.Store(snap)
	s.stamp = stamp

	logger.Info("Opened file store",
		zap.String("path", path),
		zap.Int("records", len(snap.TriageRecords)))
	return s, nil
}

// readSnapshotFile decodes the document at path. A missing file is an empty snapshot.
func readSnapshotFile(path string) (*core.Snapshot, fileStamp, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return core.EmptySnapshot(), fileStamp{}, nil
	}
	if err != nil {
		return nil, fileStamp{}, fmt.Errorf("failed to stat snapshot file: %w", err)
	}
	stamp := fileStamp{modTime: info.ModTime(), size: info.Size()}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return core.EmptySnapshot(), fileStamp{}, nil
	}
	if err != nil {
		return nil, fileStamp{}, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	snap, err := decodeSnapshot(data)
	if err != nil {
		return nil, fileStamp{}, fmt.Errorf("%w: %s: %v", ErrSnapshotCorrupt, path, err)
	}
	return snap, stamp, nil
}

// Load returns a copy of the last committed snapshot, picking up commits
// made by other processes since the previous call
func (s *FileStore) Load(ctx context.Context) (*core.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s.current.Load().Clone(), nil
	case err != nil:
		return nil, fmt.Errorf("failed to stat snapshot file: %w", err)
	}
	if info.ModTime().Equal(s.stamp.modTime) && info.Size() == s.stamp.size {
		return s.current.Load().Clone(), nil
	}

	snap, stamp, err := readSnapshotFile(s.path)
	if err != nil {
		return nil, err
	}
	s.current.Store(snap)
	s.stamp = stamp
	return snap.Clone(), nil
}

// Apply locks the file, applies the changeset to the document currently on
// disk, writes it back, and then publishes it to readers
func (s *FileStore) Apply(ctx context.Context, cs *core.Changeset) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to lock snapshot file: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to lock snapshot file: %w", ctx.Err())
	}
	defer s.lock.Unlock()

	latest, _, err := readSnapshotFile(s.path)
	if err != nil {
		return err
	}
	next, err := latest.Apply(cs)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return err
	}

	if info, err := os.Stat(s.path); err == nil {
		s.stamp = fileStamp{modTime: info.ModTime(), size: info.Size()}
	}
	s.current.Store(next)

	s.logger.Debug("Committed changeset to file",
		zap.String("path", s.path),
		zap.Int("records", len(next.TriageRecords)))
	return nil
}

// Close is a no-op for the file store
func (s *FileStore) Close() error {
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	committed = true

	// Persist the rename itself
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}

// document accepts both the current layout and the older
// {"important_emails", "processed_ids"} layout
type document struct {
	ProcessedIDs  []string            `json:"processedIds"`
	TriageRecords []core.TriageRecord `json:"triageRecords"`

	LegacyProcessedIDs []string       `json:"processed_ids"`
	LegacyRecords      []legacyRecord `json:"important_emails"`
}

// legacyRecord carries identified_at as a timestamp without a zone
type legacyRecord struct {
	ID              string `json:"id"`
	ThreadID        string `json:"threadId"`
	Sender          string `json:"sender"`
	Subject         string `json:"subject"`
	Date            string `json:"date"`
	Snippet         string `json:"snippet"`
	Processed       bool   `json:"processed"`
	ImportanceScore int    `json:"importance_score"`
	IdentifiedAt    string `json:"identified_at"`
}

const naiveTimestampLayout = "2006-01-02T15:04:05.999999"

func decodeSnapshot(data []byte) (*core.Snapshot, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	var snap *core.Snapshot
	if doc.ProcessedIDs == nil && doc.TriageRecords == nil && (doc.LegacyProcessedIDs != nil || doc.LegacyRecords != nil) {
		converted, err := convertLegacy(doc.LegacyRecords)
		if err != nil {
			return nil, err
		}
		snap = converted
	} else {
		snap = &core.Snapshot{ProcessedIDs: doc.ProcessedIDs, TriageRecords: doc.TriageRecords}
	}

	if snap.ProcessedIDs == nil {
		snap.ProcessedIDs = []string{}
	}
	if snap.TriageRecords == nil {
		snap.TriageRecords = []core.TriageRecord{}
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

// convertLegacy rebuilds the processed ids from the records. Ids the older
// layout marked processed without storing a record are dropped so the next
// ingestion fetches them again.
func convertLegacy(records []legacyRecord) (*core.Snapshot, error) {
	snap := core.EmptySnapshot()
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}

		identifiedAt, err := parseLegacyTimestamp(r.IdentifiedAt)
		if err != nil {
			return nil, fmt.Errorf("bad identified_at for %q: %w", r.ID, err)
		}
		snap.ProcessedIDs = append(snap.ProcessedIDs, r.ID)
		snap.TriageRecords = append(snap.TriageRecords, core.TriageRecord{
			ID:              r.ID,
			ThreadID:        r.ThreadID,
			Sender:          r.Sender,
			Subject:         r.Subject,
			Date:            r.Date,
			Snippet:         r.Snippet,
			Processed:       r.Processed,
			ImportanceScore: r.ImportanceScore,
			IdentifiedAt:    identifiedAt,
		})
	}
	return snap, nil
}

func parseLegacyTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.ParseInLocation(naiveTimestampLayout, value, time.Local)
}
