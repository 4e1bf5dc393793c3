package storage

import (
	"context"
	"time"

	"botforge-backend/internal/models"
)

func (s *Storage) InsertAuthEvent(ctx context.Context, ev models.AuthEvent) error {
	occurred := time.Unix(ev.TS, 0)
	if ev.TS == 0 {
		occurred = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_events (event_type, user_id, email, ip_address, user_agent, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ev.Type, nullIfEmpty(ev.UserID), nullIfEmpty(ev.Email), nullIfEmpty(ev.IPAddress),
		nullIfEmpty(ev.UserAgent), nullIfEmpty(ev.Detail), occurred)
	return err
}
