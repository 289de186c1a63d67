package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/NickCassab/email-buddy/internal/adapters/store"
	"github.com/NickCassab/email-buddy/internal/config"
	"github.com/NickCassab/email-buddy/internal/core"
)

const storeConnectTimeout = 15 * time.Second

// StoreFactory creates triage stores based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateTriageStore creates a triage store based on the configuration
func (f *StoreFactory) CreateTriageStore() (core.TriageStore, error) {
	storeCfg := f.cfg.GetStore()
	if err := config.Check(storeCfg); err != nil {
		return nil, core.NewError(core.KindConfig, "create_store", "", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeConnectTimeout)
	defer cancel()

	switch storeCfg.Type {
	case "memory":
		return store.NewMemoryStore(f.logger), nil
	case "file":
		return store.NewFileStore(storeCfg.FilePath, f.logger)
	case "sqlite":
		return store.NewSQLiteStore(storeCfg.SQLitePath, f.logger)
	case "mysql":
		return store.NewMySQLStore(storeCfg.MySQLDSN, f.logger)
	case "postgres":
		return store.NewPostgresStore(ctx, storeCfg.PostgresURL, f.logger)
	case "redis":
		return store.NewRedisStore(ctx, &redis.Options{
			Addr:     storeCfg.RedisAddr,
			Password: storeCfg.RedisPassword,
			DB:       storeCfg.RedisDB,
		}, storeCfg.RedisKey, f.logger)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeCfg.Type)
	}
}
