package oracle

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tokenproof/ticket-gate/internal/config"
	"github.com/tokenproof/ticket-gate/internal/metrics"
	"github.com/tokenproof/ticket-gate/internal/models"
)

// cacheStore is the backend of the resolution cache
type cacheStore interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// memoryCache is a TTL map for single-process deployments
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryCacheEntry
}

type memoryCacheEntry struct {
	value   string
	expires time.Time
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]memoryCacheEntry)}
}

func (c *memoryCache) Get(ctx context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, key)
		return "", false
	}
	return e.value, true
}

func (c *memoryCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryCacheEntry{value: value, expires: time.Now().Add(ttl)}
}

// redisCache shares resolution results across processes
type redisCache struct {
	client *redis.Client
}

func newRedisCache(addr string, db int) *redisCache {
	return &redisCache{
		client: redis.NewClient(&redis.Options{Addr: addr, DB: db}),
	}
}

func (c *redisCache) Get(ctx context.Context, key string) (string, bool) {
	value, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return value, true
}

func (c *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	c.client.Set(ctx, key, value, ttl)
}

// CachedOracle caches definitive oracle answers for a TTL. Errors,
// including ErrUnavailable, pass through uncached so a flaky node does
// not poison the cache.
type CachedOracle struct {
	inner Oracle
	store cacheStore
	ttl   time.Duration

	metricsManager *metrics.Manager
}

// NewCachedOracle wraps an oracle with the configured cache backend.
// Backend "none" returns the inner oracle unchanged.
func NewCachedOracle(inner Oracle, cfg config.OracleConfig) Oracle {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}

	switch strings.ToLower(cfg.CacheBackend) {
	case "redis":
		return &CachedOracle{inner: inner, store: newRedisCache(cfg.RedisAddr, cfg.RedisDB), ttl: ttl}
	case "memory", "":
		return &CachedOracle{inner: inner, store: newMemoryCache(), ttl: ttl}
	default:
		return inner
	}
}

// SetMetricsManager attaches a metrics manager for cache instrumentation
func (o *CachedOracle) SetMetricsManager(m *metrics.Manager) {
	o.metricsManager = m
}

func (o *CachedOracle) recordLookup(hit bool) {
	if o.metricsManager != nil {
		o.metricsManager.RecordCacheLookup(hit)
	}
}

func ownershipKey(account string, nft models.NFT) string {
	return "gate:own:" + strings.ToLower(strings.Join([]string{
		nft.ChainID, string(nft.TokenType), nft.ContractAddress, nft.TokenID, account,
	}, "|"))
}

func (o *CachedOracle) IsOwner(ctx context.Context, account string, nft models.NFT) (bool, error) {
	key := ownershipKey(account, nft)
	if value, ok := o.store.Get(ctx, key); ok {
		o.recordLookup(true)
		return value == "1", nil
	}
	o.recordLookup(false)

	owns, err := o.inner.IsOwner(ctx, account, nft)
	if err != nil {
		return false, err
	}

	value := "0"
	if owns {
		value = "1"
	}
	o.store.Set(ctx, key, value, o.ttl)
	return owns, nil
}

func (o *CachedOracle) ResolveName(ctx context.Context, name string) (string, error) {
	key := "gate:name:" + strings.ToLower(name)
	if value, ok := o.store.Get(ctx, key); ok {
		o.recordLookup(true)
		return value, nil
	}
	o.recordLookup(false)

	address, err := o.inner.ResolveName(ctx, name)
	if err != nil {
		return "", err
	}
	o.store.Set(ctx, key, address, o.ttl)
	return address, nil
}

func (o *CachedOracle) ReverseResolve(ctx context.Context, address string) (string, error) {
	key := "gate:rev:" + strings.ToLower(address)
	if value, ok := o.store.Get(ctx, key); ok {
		o.recordLookup(true)
		return value, nil
	}
	o.recordLookup(false)

	name, err := o.inner.ReverseResolve(ctx, address)
	if err != nil {
		return "", err
	}
	o.store.Set(ctx, key, name, o.ttl)
	return name, nil
}
