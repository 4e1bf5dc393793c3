package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"botforge-backend/internal/models"
)

const (
	refreshTokenPrefix = "bf_rt_"
	refreshTokenBytes  = 32
	refreshTokenTTL    = 7 * 24 * time.Hour
)

func generateRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return refreshTokenPrefix + hex.EncodeToString(buf), nil
}

func (s *Storage) CreateRefreshToken(ctx context.Context, userID, ip, userAgent string) (*models.RefreshToken, error) {
	token, err := generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	rt := models.RefreshToken{
		Token:     token,
		UserID:    userID,
		ExpiresAt: time.Now().Add(refreshTokenTTL),
		IPAddress: ip,
		UserAgent: userAgent,
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO refresh_tokens (token, user_id, expires_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, rt.Token, rt.UserID, rt.ExpiresAt, nullIfEmpty(ip), nullIfEmpty(userAgent)).Scan(&rt.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert refresh token: %w", err)
	}
	return &rt, nil
}

// RotateRefreshToken revokes the presented token and issues a replacement for
// the same user in one transaction. The revoke is a conditional update on
// revoked_at IS NULL, so concurrent rotations of the same token cannot both
// succeed; the loser gets ErrRefreshTokenInvalid.
func (s *Storage) RotateRefreshToken(ctx context.Context, token, ip, userAgent string) (*models.RefreshToken, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin rotation tx: %w", err)
	}
	defer tx.Rollback()

	var userID string
	err = tx.QueryRowContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = now()
		WHERE token = $1 AND revoked_at IS NULL AND expires_at > now()
		RETURNING user_id
	`, token).Scan(&userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRefreshTokenInvalid
		}
		return nil, fmt.Errorf("revoke presented token: %w", err)
	}

	next, err := generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	rt := models.RefreshToken{
		Token:     next,
		UserID:    userID,
		ExpiresAt: time.Now().Add(refreshTokenTTL),
		IPAddress: ip,
		UserAgent: userAgent,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO refresh_tokens (token, user_id, expires_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, rt.Token, rt.UserID, rt.ExpiresAt, nullIfEmpty(ip), nullIfEmpty(userAgent)).Scan(&rt.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert replacement token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rotation tx: %w", err)
	}
	return &rt, nil
}

func (s *Storage) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = now()
		WHERE token = $1 AND revoked_at IS NULL
	`, token)
	return err
}

func (s *Storage) RevokeAllRefreshTokens(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = now()
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
