package models

// Auth event types published on the task bus and persisted to auth_events.
const (
	EventLogin            = "login"
	EventLoginFailed      = "login_failed"
	EventRegister         = "register"
	EventLogout           = "logout"
	EventLogoutAll        = "logout_all"
	EventRefresh          = "refresh"
	EventDemoLogin        = "demo_login"
	EventRateLimitBlocked = "rate_limit_blocked"
)

type AuthEvent struct {
	Type      string `msgpack:"type" json:"type"`
	UserID    string `msgpack:"user_id" json:"user_id,omitempty"`
	Email     string `msgpack:"email" json:"email,omitempty"`
	IPAddress string `msgpack:"ip_address" json:"ip_address,omitempty"`
	UserAgent string `msgpack:"user_agent" json:"user_agent,omitempty"`
	Detail    string `msgpack:"detail" json:"detail,omitempty"`
	TS        int64  `msgpack:"ts" json:"ts"`
}

type EmailJob struct {
	To       string `msgpack:"to"`
	Template string `msgpack:"template"`
	Token    string `msgpack:"token"`
	TS       int64  `msgpack:"ts"`
}

// Email templates handled by the mailer.
const (
	EmailVerification  = "verify_email"
	EmailPasswordReset = "password_reset"
)
