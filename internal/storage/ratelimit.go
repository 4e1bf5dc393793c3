package storage

import (
	"context"
	"database/sql"
	"fmt"

	"botforge-backend/internal/models"
)

func (s *Storage) GetRateLimitRecord(ctx context.Context, ip, email string) (*models.RateLimitRecord, error) {
	query := `
		SELECT ip_address, email, attempt_count, window_start, blocked_until
		FROM login_attempts
		WHERE ip_address = $1 AND email = $2
	`

	var rec models.RateLimitRecord
	if err := s.db.GetContext(ctx, &rec, query, ip, normalizeEmail(email)); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// RecordFailedAttempt upserts the (ip, email) counter. An attempt outside the
// rolling window restarts the count at 1. Returns true when this attempt
// pushed the count to the threshold and imposed a block.
func (s *Storage) RecordFailedAttempt(ctx context.Context, ip, email string, settings models.RateLimitSettings) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO login_attempts (ip_address, email, attempt_count, window_start)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (ip_address, email) DO UPDATE SET
			attempt_count = CASE
				WHEN login_attempts.window_start < now() - ($3 * interval '1 minute') THEN 1
				ELSE login_attempts.attempt_count + 1
			END,
			window_start = CASE
				WHEN login_attempts.window_start < now() - ($3 * interval '1 minute') THEN now()
				ELSE login_attempts.window_start
			END,
			blocked_until = CASE
				WHEN login_attempts.window_start < now() - ($3 * interval '1 minute') THEN NULL
				ELSE login_attempts.blocked_until
			END
		RETURNING attempt_count
	`, ip, normalizeEmail(email), settings.WindowMinutes).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("upsert login attempt: %w", err)
	}

	if count < settings.MaxAttempts {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE login_attempts
		SET blocked_until = now() + ($3 * interval '1 minute')
		WHERE ip_address = $1 AND email = $2
	`, ip, normalizeEmail(email), settings.BlockDurationMinutes)
	if err != nil {
		return false, fmt.Errorf("impose block: %w", err)
	}
	return true, nil
}

func (s *Storage) ClearAttempts(ctx context.Context, ip, email string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM login_attempts
		WHERE ip_address = $1 AND email = $2
	`, ip, normalizeEmail(email))
	return err
}

func (s *Storage) GetRateLimitSettings(ctx context.Context) (models.RateLimitSettings, error) {
	query := `
		SELECT max_attempts, window_minutes, block_duration_minutes, enabled
		FROM platform_settings
		WHERE id = 1
	`

	var settings models.RateLimitSettings
	if err := s.db.GetContext(ctx, &settings, query); err != nil {
		return models.RateLimitSettings{}, err
	}
	return settings, nil
}

func (s *Storage) UpdateRateLimitSettings(ctx context.Context, settings models.RateLimitSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO platform_settings (id, max_attempts, window_minutes, block_duration_minutes, enabled)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			max_attempts = EXCLUDED.max_attempts,
			window_minutes = EXCLUDED.window_minutes,
			block_duration_minutes = EXCLUDED.block_duration_minutes,
			enabled = EXCLUDED.enabled
	`, settings.MaxAttempts, settings.WindowMinutes, settings.BlockDurationMinutes, settings.Enabled)
	return err
}
