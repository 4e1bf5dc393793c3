package ratelimit

import (
	"context"
	"log"
	"time"

	"botforge-backend/internal/models"
)

// DefaultSettings apply when the settings row cannot be loaded. They err on
// the strict side: 5 attempts per 15-minute window, 15-minute block.
var DefaultSettings = models.RateLimitSettings{
	MaxAttempts:          5,
	WindowMinutes:        15,
	BlockDurationMinutes: 15,
	Enabled:              true,
}

// Store is the persistence surface for failed-attempt tracking.
// *storage.Storage satisfies it.
type Store interface {
	GetRateLimitRecord(ctx context.Context, ip, email string) (*models.RateLimitRecord, error)
	RecordFailedAttempt(ctx context.Context, ip, email string, settings models.RateLimitSettings) (bool, error)
	ClearAttempts(ctx context.Context, ip, email string) error
	GetRateLimitSettings(ctx context.Context) (models.RateLimitSettings, error)
}

// Limiter tracks failed login attempts per (ip, email) pair. Storage errors
// fail open: availability wins over strictness on this path, and every
// degradation is logged.
type Limiter struct {
	store    Store
	settings *SettingsCache
}

func NewLimiter(store Store, settings *SettingsCache) *Limiter {
	return &Limiter{store: store, settings: settings}
}

// IsBlocked returns the remaining block duration in whole seconds, or 0 when
// the pair may attempt a login.
func (l *Limiter) IsBlocked(ctx context.Context, ip, email string) int {
	if !l.settings.Get(ctx).Enabled {
		return 0
	}

	rec, err := l.store.GetRateLimitRecord(ctx, ip, email)
	if err != nil {
		log.Printf("WARN Rate limit lookup failed (failing open): %v", err)
		return 0
	}
	if rec == nil || rec.BlockedUntil == nil {
		return 0
	}

	remaining := time.Until(*rec.BlockedUntil)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Round(time.Second).Seconds())
}

// RecordFailure counts a failed attempt. When this attempt reached the
// threshold it returns (true, retryAfterSeconds) and the caller should
// answer 429 immediately.
func (l *Limiter) RecordFailure(ctx context.Context, ip, email string) (bool, int) {
	settings := l.settings.Get(ctx)
	if !settings.Enabled {
		return false, 0
	}

	blocked, err := l.store.RecordFailedAttempt(ctx, ip, email, settings)
	if err != nil {
		log.Printf("WARN Rate limit record failed (failing open): %v", err)
		return false, 0
	}
	if !blocked {
		return false, 0
	}
	return true, settings.BlockDurationMinutes * 60
}

// Clear resets the counter after a successful login. Best-effort.
func (l *Limiter) Clear(ctx context.Context, ip, email string) {
	if err := l.store.ClearAttempts(ctx, ip, email); err != nil {
		log.Printf("WARN Rate limit clear failed: %v", err)
	}
}
