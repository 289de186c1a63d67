package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/NickCassab/email-buddy/internal/core"
)

const redisMaxCommitAttempts = 5

// RedisStore keeps the whole triage document under one key. Commits use
// WATCH/MULTI/EXEC so a reader always sees one complete document.
type RedisStore struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, opts *redis.Options, key string, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis store", zap.String("addr", opts.Addr), zap.String("key", key))
	return &RedisStore{client: client, key: key, logger: logger}, nil
}

func decodeRedisSnapshot(data []byte) (*core.Snapshot, error) {
	snap, err := decodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	return snap, nil
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getRedisSnapshot(ctx context.Context, cmd redisGetter, key string) (*core.Snapshot, error) {
	data, err := cmd.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.EmptySnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return decodeRedisSnapshot(data)
}

// Load reads the committed document
func (s *RedisStore) Load(ctx context.Context) (*core.Snapshot, error) {
	return getRedisSnapshot(ctx, s.client, s.key)
}

// Apply commits a changeset with optimistic locking, retrying on concurrent modification
func (s *RedisStore) Apply(ctx context.Context, cs *core.Changeset) error {
	if cs.Empty() {
		return nil
	}

	commit := func(tx *redis.Tx) error {
		current, err := getRedisSnapshot(ctx, tx, s.key)
		if err != nil {
			return err
		}
		next, err := current.Apply(cs)
		if err != nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, data, 0)
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= redisMaxCommitAttempts; attempt++ {
		err := s.client.Watch(ctx, commit, s.key)
		if err == nil {
			s.logger.Debug("Committed changeset",
				zap.String("store", "redis"),
				zap.Int("added", len(cs.Added)),
				zap.Int("rescored", len(cs.Rescored)),
				zap.Int("processed", len(cs.Processed)))
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		s.logger.Debug("Snapshot changed during commit, retrying", zap.Int("attempt", attempt))
	}
	return fmt.Errorf("failed to commit snapshot after %d attempts: %w", redisMaxCommitAttempts, redis.TxFailedErr)
}

// Close closes the Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
