package models

import "time"

type Organization struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	OwnerID   string    `db:"owner_id" json:"owner_id"`
	PlanTier  string    `db:"plan_tier" json:"plan_tier"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

const (
	PlanFree       = "free"
	PlanStarter    = "starter"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

const (
	MembershipActive  = "active"
	MembershipInvited = "invited"
	MembershipRemoved = "removed"
)

type Membership struct {
	OrgID     string    `db:"org_id" json:"org_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Role      string    `db:"role" json:"role"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
