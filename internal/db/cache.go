package db

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const tablesCacheKey = "tables"

// schemaCache holds table listings and descriptions. A nil cache is disabled.
type schemaCache struct {
	cache *ttlcache.Cache[string, any]
}

func newSchemaCache(ttl time.Duration) *schemaCache {
	if ttl < 0 {
		return nil
	}
	return &schemaCache{
		cache: ttlcache.New(
			ttlcache.WithTTL[string, any](ttl),
			ttlcache.WithDisableTouchOnHit[string, any](),
		),
	}
}

func tableCacheKey(table string) string {
	return "table:" + table
}

func (c *schemaCache) get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	item := c.cache.Get(key)
	if item == nil || item.IsExpired() {
		return nil, false
	}
	return item.Value(), true
}

func (c *schemaCache) set(key string, value any) {
	if c == nil {
		return
	}
	c.cache.Set(key, value, ttlcache.DefaultTTL)
}

// invalidate drops every cached entry.
func (c *schemaCache) invalidate() {
	if c == nil {
		return
	}
	c.cache.DeleteAll()
}
