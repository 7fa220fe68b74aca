package resolver

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/desk-migrator/internal/config"
	"github.com/spec-kit/desk-migrator/pkg/util"
)

// Searcher finds a destination user id by the originating source id.
type Searcher interface {
	SearchUserID(ctx context.Context, sourceID int) (int64, error)
}

// Cache stores resolved destination ids keyed by source id. Only positive
// resolutions are cached; a miss must always re-check the destination
// because the user may have been posted since.
type Cache interface {
	Get(ctx context.Context, sourceID int) (int64, bool)
	Set(ctx context.Context, sourceID int, destID int64)
}

// Resolver answers cross-system user lookups for the transformers.
type Resolver struct {
	search Searcher
	cache  Cache
	logger *zap.Logger
}

// New constructs a resolver over the given search backend and cache.
func New(search Searcher, cache Cache, logger *zap.Logger) *Resolver {
	return &Resolver{search: search, cache: cache, logger: logger}
}

// UserID resolves the destination id for a source user. A user that does
// not exist at the destination yields an unresolved-reference error; the
// caller must skip the dependent record rather than submit it orphaned.
func (r *Resolver) UserID(ctx context.Context, sourceID int) (int64, error) {
	if id, ok := r.cache.Get(ctx, sourceID); ok {
		return id, nil
	}
	id, err := r.search.SearchUserID(ctx, sourceID)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, util.NewUnresolvedReference("user", sourceID)
	}
	r.cache.Set(ctx, sourceID, id)
	return id, nil
}

// MemoryCache is a process-local cache used when redis is not configured.
type MemoryCache struct {
	mu  sync.RWMutex
	ids map[int]int64
}

// NewMemoryCache initializes the in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{ids: make(map[int]int64)}
}

// Get returns a cached destination id.
func (m *MemoryCache) Get(_ context.Context, sourceID int) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.ids[sourceID]
	return id, ok
}

// Set stores a resolved destination id.
func (m *MemoryCache) Set(_ context.Context, sourceID int, destID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[sourceID] = destID
}

const redisKeyPrefix = "deskmigrate:userid:"

const redisTTL = 24 * time.Hour

// RedisCache shares resolutions across runs and processes.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCache connects to redis using the provided configuration.
func NewRedisCache(cfg config.RedisConfig, logger *zap.Logger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &RedisCache{client: client, logger: logger}
}

// Get returns a cached destination id.
func (r *RedisCache) Get(ctx context.Context, sourceID int) (int64, bool) {
	val, err := r.client.Get(ctx, redisKeyPrefix+strconv.Itoa(sourceID)).Int64()
	if err != nil {
		return 0, false
	}
	return val, true
}

// Set stores a resolved destination id with a bounded lifetime.
func (r *RedisCache) Set(ctx context.Context, sourceID int, destID int64) {
	err := r.client.Set(ctx, redisKeyPrefix+strconv.Itoa(sourceID), destID, redisTTL).Err()
	if err != nil {
		r.logger.Warn("failed to cache resolution", zap.Int("source_id", sourceID), zap.Error(err))
	}
}

// Close closes the redis client.
func (r *RedisCache) Close() {
	if r != nil && r.client != nil {
		_ = r.client.Close()
	}
}
