package ratelimit

import (
	"context"
	"log"
	"sync"
	"time"

	"botforge-backend/internal/models"
)

const settingsTTL = 60 * time.Second

// SettingsCache keeps the rate-limit settings row in memory for a short TTL
// so the login path does not hit the settings table on every request.
// Brief staleness across concurrent requests is acceptable; only thresholds
// live here, nothing security-invalidating.
type SettingsCache struct {
	store Store
	ttl   time.Duration

	mu       sync.Mutex
	cached   models.RateLimitSettings
	loadedAt time.Time
}

func NewSettingsCache(store Store) *SettingsCache {
	return &SettingsCache{store: store, ttl: settingsTTL}
}

func (c *SettingsCache) Get(ctx context.Context) models.RateLimitSettings {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loadedAt.IsZero() && time.Since(c.loadedAt) < c.ttl {
		return c.cached
	}

	settings, err := c.store.GetRateLimitSettings(ctx)
	if err != nil {
		log.Printf("WARN Rate limit settings load failed, using defaults: %v", err)
		// Cache the fallback too, so a down settings table is not re-queried
		// on every login.
		settings = DefaultSettings
	}

	c.cached = settings
	c.loadedAt = time.Now()
	return c.cached
}

// Invalidate drops the cached row; the next Get reloads from storage. Called
// after the admin settings endpoint writes new values.
func (c *SettingsCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadedAt = time.Time{}
}
