package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"botforge-backend/internal/models"
)

type fakeStore struct {
	recordFn      func(ctx context.Context, ip, email string) (*models.RateLimitRecord, error)
	failFn        func(ctx context.Context, ip, email string, settings models.RateLimitSettings) (bool, error)
	clearFn       func(ctx context.Context, ip, email string) error
	settingsFn    func(ctx context.Context) (models.RateLimitSettings, error)
	settingsCalls int
}

func (f *fakeStore) GetRateLimitRecord(ctx context.Context, ip, email string) (*models.RateLimitRecord, error) {
	if f.recordFn == nil {
		return nil, nil
	}
	return f.recordFn(ctx, ip, email)
}

func (f *fakeStore) RecordFailedAttempt(ctx context.Context, ip, email string, settings models.RateLimitSettings) (bool, error) {
	if f.failFn == nil {
		return false, nil
	}
	return f.failFn(ctx, ip, email, settings)
}

func (f *fakeStore) ClearAttempts(ctx context.Context, ip, email string) error {
	if f.clearFn == nil {
		return nil
	}
	return f.clearFn(ctx, ip, email)
}

func (f *fakeStore) GetRateLimitSettings(ctx context.Context) (models.RateLimitSettings, error) {
	f.settingsCalls++
	if f.settingsFn == nil {
		return DefaultSettings, nil
	}
	return f.settingsFn(ctx)
}

func newLimiter(store *fakeStore) *Limiter {
	return NewLimiter(store, NewSettingsCache(store))
}

func TestIsBlockedWithActiveBlock(t *testing.T) {
	until := time.Now().Add(10 * time.Minute)
	store := &fakeStore{
		recordFn: func(ctx context.Context, ip, email string) (*models.RateLimitRecord, error) {
			return &models.RateLimitRecord{
				IPAddress:    ip,
				Email:        email,
				AttemptCount: 5,
				BlockedUntil: &until,
			}, nil
		},
	}

	retry := newLimiter(store).IsBlocked(context.Background(), "1.2.3.4", "alice@x.com")
	if retry <= 0 || retry > 600 {
		t.Fatalf("expected retry-after within (0, 600], got %d", retry)
	}
}

func TestIsBlockedExpiredBlock(t *testing.T) {
	until := time.Now().Add(-time.Minute)
	store := &fakeStore{
		recordFn: func(ctx context.Context, ip, email string) (*models.RateLimitRecord, error) {
			return &models.RateLimitRecord{BlockedUntil: &until}, nil
		},
	}

	if retry := newLimiter(store).IsBlocked(context.Background(), "1.2.3.4", "alice@x.com"); retry != 0 {
		t.Fatalf("expected expired block to read as clear, got %d", retry)
	}
}

func TestIsBlockedFailsOpenOnStoreError(t *testing.T) {
	store := &fakeStore{
		recordFn: func(ctx context.Context, ip, email string) (*models.RateLimitRecord, error) {
			return nil, errors.New("db down")
		},
	}

	if retry := newLimiter(store).IsBlocked(context.Background(), "1.2.3.4", "alice@x.com"); retry != 0 {
		t.Fatalf("expected fail-open on store error, got %d", retry)
	}
}

func TestRecordFailureImposesBlockAtThreshold(t *testing.T) {
	store := &fakeStore{
		failFn: func(ctx context.Context, ip, email string, settings models.RateLimitSettings) (bool, error) {
			return true, nil
		},
	}

	blocked, retry := newLimiter(store).RecordFailure(context.Background(), "1.2.3.4", "alice@x.com")
	if !blocked {
		t.Fatal("expected block to be reported")
	}
	if want := DefaultSettings.BlockDurationMinutes * 60; retry != want {
		t.Fatalf("expected retry-after %d, got %d", want, retry)
	}
}

func TestRecordFailureBelowThreshold(t *testing.T) {
	store := &fakeStore{
		failFn: func(ctx context.Context, ip, email string, settings models.RateLimitSettings) (bool, error) {
			return false, nil
		},
	}

	if blocked, _ := newLimiter(store).RecordFailure(context.Background(), "1.2.3.4", "alice@x.com"); blocked {
		t.Fatal("expected no block below threshold")
	}
}

func TestLimiterDisabledBySettings(t *testing.T) {
	recorded := 0
	store := &fakeStore{
		settingsFn: func(ctx context.Context) (models.RateLimitSettings, error) {
			return models.RateLimitSettings{Enabled: false}, nil
		},
		failFn: func(ctx context.Context, ip, email string, settings models.RateLimitSettings) (bool, error) {
			recorded++
			return true, nil
		},
	}
	limiter := newLimiter(store)

	if retry := limiter.IsBlocked(context.Background(), "1.2.3.4", "alice@x.com"); retry != 0 {
		t.Fatalf("disabled limiter must never block, got %d", retry)
	}
	if blocked, _ := limiter.RecordFailure(context.Background(), "1.2.3.4", "alice@x.com"); blocked {
		t.Fatal("disabled limiter must not record blocks")
	}
	if recorded != 0 {
		t.Fatal("disabled limiter must not write attempts")
	}
}

func TestClearSwallowsErrors(t *testing.T) {
	store := &fakeStore{
		clearFn: func(ctx context.Context, ip, email string) error {
			return errors.New("db down")
		},
	}

	// Must not panic or propagate.
	newLimiter(store).Clear(context.Background(), "1.2.3.4", "alice@x.com")
}

func TestSettingsCacheCachesWithinTTL(t *testing.T) {
	store := &fakeStore{}
	cache := NewSettingsCache(store)

	ctx := context.Background()
	cache.Get(ctx)
	cache.Get(ctx)
	cache.Get(ctx)

	if store.settingsCalls != 1 {
		t.Fatalf("expected one settings load within TTL, got %d", store.settingsCalls)
	}
}

func TestSettingsCacheInvalidate(t *testing.T) {
	store := &fakeStore{}
	cache := NewSettingsCache(store)

	ctx := context.Background()
	cache.Get(ctx)
	cache.Invalidate()
	cache.Get(ctx)

	if store.settingsCalls != 2 {
		t.Fatalf("expected reload after Invalidate, got %d loads", store.settingsCalls)
	}
}

func TestSettingsCacheFallsBackToDefaults(t *testing.T) {
	store := &fakeStore{
		settingsFn: func(ctx context.Context) (models.RateLimitSettings, error) {
			return models.RateLimitSettings{}, errors.New("db down")
		},
	}
	cache := NewSettingsCache(store)

	if got := cache.Get(context.Background()); got != DefaultSettings {
		t.Fatalf("expected defaults on load failure, got %+v", got)
	}
	// The fallback is cached too.
	cache.Get(context.Background())
	if store.settingsCalls != 1 {
		t.Fatalf("expected the failed load to be cached, got %d loads", store.settingsCalls)
	}
}
