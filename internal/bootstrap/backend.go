package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/scc-sat-api/internal/repository"
	"github.com/noah-isme/scc-sat-api/pkg/cache"
	"github.com/noah-isme/scc-sat-api/pkg/config"
	"github.com/noah-isme/scc-sat-api/pkg/database"
	"github.com/noah-isme/scc-sat-api/pkg/storage"
)

const connectTimeout = 5 * time.Second

// Backend is the opened key-value store plus the raw clients behind it, if any.
type Backend struct {
	Name  string
	Store repository.KVStore
	Keys  repository.Keys
	Redis *redis.Client
	DB    *sqlx.DB
}

// OpenBackend connects the ledger backend named by LEDGER_BACKEND.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Backend{Name: cfg.Ledger.Backend, Keys: repository.Keys{Prefix: cfg.Ledger.KeyPrefix}}

	switch cfg.Ledger.Backend {
	case config.BackendMemory:
		b.Store = repository.NewMemoryStore()
	case config.BackendFile, "":
		b.Name = config.BackendFile
		files, err := storage.NewLocalStorage(cfg.Ledger.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open ledger data dir: %w", err)
		}
		b.Store = repository.NewFileStore(files)
	case config.BackendRedis:
		client, err := cache.NewRedis(ctx, cfg.Redis, connectTimeout)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		b.Redis = client
		b.Store = repository.NewRedisStore(client)
	case config.BackendPostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := repository.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("prepare kv schema: %w", err)
		}
		b.DB = db
		b.Store = store
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}

	logger.Info("ledger backend ready", zap.String("backend", b.Name), zap.String("key_prefix", b.Keys.Prefix))
	return b, nil
}

// Ping checks the network backend, if there is one.
func (b *Backend) Ping(ctx context.Context) error {
	switch {
	case b.Redis != nil:
		return b.Redis.Ping(ctx).Err()
	case b.DB != nil:
		return b.DB.PingContext(ctx)
	}
	return nil
}

// Close releases network clients.
func (b *Backend) Close() error {
	if b.Redis != nil {
		return b.Redis.Close()
	}
	if b.DB != nil {
		return b.DB.Close()
	}
	return nil
}
