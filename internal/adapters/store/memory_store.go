package store

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/NickCassab/email-buddy/internal/core"
	"go.uber.org/zap"
)

// MemoryStore is an in-memory implementation of the TriageStore interface
type MemoryStore struct {
	current atomic.Pointer[core.Snapshot]
	mu      sync.Mutex
	logger  *zap.Logger
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	s := &MemoryStore{logger: logger}
	s.current.Store(core.EmptySnapshot())
	return s
}

// Load returns a copy of the last committed snapshot
func (s *MemoryStore) Load(ctx context.Context) (*core.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.current.Load().Clone(), nil
}

// Apply commits a changeset by swapping in a new snapshot
func (s *MemoryStore) Apply(ctx context.Context, cs *core.Changeset) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.current.Load().Apply(cs)
	if err != nil {
		return err
	}
	s.current.Store(next)

	s.logger.Debug("Committed changeset in memory",
		zap.Int("added", len(cs.Added)),
		zap.Int("rescored", len(cs.Rescored)),
		zap.Int("processed", len(cs.Processed)))
	return nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	return nil
}
