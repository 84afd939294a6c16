package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/scc-sat-api/pkg/errors"
)

// cacheKeyStats names the admin statistics entry inside the cache namespace.
const cacheKeyStats = "stats"

// CacheRepository stores derived ledger payloads by name.
type CacheRepository interface {
	Get(ctx context.Context, name string, dest interface{}) error
	Set(ctx context.Context, name string, value interface{}, ttl time.Duration) error
	Purge(ctx context.Context) error
}

// CacheService fronts the derived-payload cache. A nil or disabled service misses on
// every read, so the ledger always falls back to computing from its records.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger.Named("cache"), enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get loads the named entry into dest and reports whether it was present.
func (s *CacheService) Get(ctx context.Context, name string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, name, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
		return false, nil
	}
	s.logger.Warn("cache read failed, computing from the ledger", zap.String("entry", name), zap.Error(err))
	return false, err
}

// Set stores value under name. A non-positive ttl uses the configured default.
func (s *CacheService) Set(ctx context.Context, name string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, name, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache write failed", zap.String("entry", name), zap.Error(err))
	}
	return err
}

// Invalidate drops every derived entry. The ledger calls it after each mutation.
func (s *CacheService) Invalidate(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.Purge(ctx); err != nil {
		s.logger.Warn("cache purge failed, stale statistics possible until expiry", zap.Error(err))
		return err
	}
	return nil
}
