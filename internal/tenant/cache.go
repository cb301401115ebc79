package tenant

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// DefaultCacheTTL is how long a resolved configuration stays cached.
const DefaultCacheTTL = 24 * time.Hour

// defaultCacheSize bounds the in-memory cache. Eviction of a live
// tenant only costs a re-fetch from the durable source.
const defaultCacheSize = 4096

// ConfigCache is a cache-aside layer over a ConfigSource.
type ConfigCache struct {
	src    ConfigSource
	cache  *expirable.LRU[string, *DBConfig]
	logger *zap.Logger
}

// NewConfigCache builds a cache over src. A non-positive ttl uses
// DefaultCacheTTL.
func NewConfigCache(src ConfigSource, ttl time.Duration, logger *zap.Logger) *ConfigCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigCache{
		src:    src,
		cache:  expirable.NewLRU[string, *DBConfig](defaultCacheSize, nil, ttl),
		logger: logger.With(zap.String("component", "config-cache")),
	}
}

// Get resolves clientID, consulting the cache first and populating it
// from the durable source on a miss. A tenant with no active
// configuration is ErrConfigNotFound.
func (c *ConfigCache) Get(ctx context.Context, clientID string) (*DBConfig, error) {
	if cfg, ok := c.cache.Get(clientID); ok {
		return cfg, nil
	}
	cfg, err := c.src.Fetch(ctx, clientID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(clientID, cfg)
	c.logger.Debug("config cached", zap.String("client_id", clientID))
	return cfg, nil
}

// GetMultiple resolves several client ids, tolerating partial
// failures: failing keys are logged and skipped.
func (c *ConfigCache) GetMultiple(ctx context.Context, clientIDs []string) (map[string]*DBConfig, error) {
	out := make(map[string]*DBConfig, len(clientIDs))
	for _, cid := range clientIDs {
		cfg, err := c.Get(ctx, cid)
		if err != nil {
			c.logger.Warn("config resolution failed, skipping",
				zap.String("client_id", cid), zap.Error(err))
			continue
		}
		out[cid] = cfg
	}
	return out, nil
}

// Invalidate removes a cached entry so the next Get re-fetches from
// the durable source. Used after a tenant's configuration changes.
func (c *ConfigCache) Invalidate(clientID string) {
	c.cache.Remove(clientID)
}

// InvalidateMultiple removes several cached entries.
func (c *ConfigCache) InvalidateMultiple(clientIDs []string) {
	for _, cid := range clientIDs {
		c.cache.Remove(cid)
	}
}
