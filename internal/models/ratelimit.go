package models

import "time"

type RateLimitRecord struct {
	IPAddress    string     `db:"ip_address" json:"ip_address"`
	Email        string     `db:"email" json:"email"`
	AttemptCount int        `db:"attempt_count" json:"attempt_count"`
	WindowStart  time.Time  `db:"window_start" json:"window_start"`
	BlockedUntil *time.Time `db:"blocked_until" json:"blocked_until,omitempty"`
}

type RateLimitSettings struct {
	MaxAttempts          int  `db:"max_attempts" json:"max_attempts"`
	WindowMinutes        int  `db:"window_minutes" json:"window_minutes"`
	BlockDurationMinutes int  `db:"block_duration_minutes" json:"block_duration_minutes"`
	Enabled              bool `db:"enabled" json:"enabled"`
}
