package application

import (
	"context"
	"sync"
	"time"

	sensors "warehouse-sentinel/internal/sensors/domain"
)

const defaultConfigCacheTTL = 30 * time.Second

type configLister interface {
	ListActiveBySensor(ctx context.Context, tenantID, sensorID string) ([]sensors.ThresholdConfig, error)
}

type cacheEntry struct {
	configs  []sensors.ThresholdConfig
	loadedAt time.Time
}

// ConfigCache is a read-through cache over the configuration store. The
// hot path evaluates every reading, so config lookups must not hit the
// database each time.
type ConfigCache struct {
	source  configLister
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewConfigCache constructs a cache. A non-positive ttl uses the default.
func NewConfigCache(source configLister, ttl time.Duration) *ConfigCache {
	if ttl <= 0 {
		ttl = defaultConfigCacheTTL
	}
	return &ConfigCache{
		source:  source,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// ListActiveBySensor serves from cache within the ttl, loading through on
// miss or expiry.
func (c *ConfigCache) ListActiveBySensor(ctx context.Context, tenantID, sensorID string) ([]sensors.ThresholdConfig, error) {
	key := tenantID + "|" + sensorID

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Since(entry.loadedAt) < c.ttl {
		return entry.configs, nil
	}

	configs, err := c.source.ListActiveBySensor(ctx, tenantID, sensorID)
	if err != nil {
		// Serve stale rather than failing the evaluation path.
		if ok {
			return entry.configs, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{configs: configs, loadedAt: time.Now()}
	c.mu.Unlock()
	return configs, nil
}

// Invalidate drops the cached entry for one sensor.
func (c *ConfigCache) Invalidate(tenantID, sensorID string) {
	c.mu.Lock()
	delete(c.entries, tenantID+"|"+sensorID)
	c.mu.Unlock()
}

// InvalidateAll drops every cached entry.
func (c *ConfigCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
