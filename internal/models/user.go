package models

import "time"

type User struct {
	ID               string    `json:"id" db:"id"`
	Email            string    `json:"email" db:"email"`
	PasswordHash     string    `json:"-" db:"password_hash"`
	Name             string    `json:"name" db:"name"`
	EmailVerified    bool      `json:"email_verified" db:"email_verified"`
	IsSuperadmin     bool      `json:"is_superadmin" db:"is_superadmin"`
	TwoFactorEnabled bool      `json:"two_factor_enabled" db:"two_factor_enabled"`
	TwoFactorSecret  *string   `json:"-" db:"two_factor_secret"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// PublicUser is the response shape for user payloads. The password hash and
// 2FA secret never leave the storage layer.
type PublicUser struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	EmailVerified bool      `json:"emailVerified"`
	IsSuperadmin  bool      `json:"isSuperadmin"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		EmailVerified: u.EmailVerified,
		IsSuperadmin:  u.IsSuperadmin,
		CreatedAt:     u.CreatedAt,
	}
}
