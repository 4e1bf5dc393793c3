package storage

import (
	"context"
	"database/sql"

	"botforge-backend/internal/models"
)

func (s *Storage) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	query := `
		SELECT id, name, slug, owner_id, plan_tier, created_at
		FROM organizations
		WHERE id = $1
	`

	var org models.Organization
	err := s.db.GetContext(ctx, &org, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrOrgNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (s *Storage) GetOrganizationsForUser(ctx context.Context, userID string) ([]models.Organization, error) {
	query := `
		SELECT o.id, o.name, o.slug, o.owner_id, o.plan_tier, o.created_at
		FROM organizations o
		JOIN memberships m ON m.org_id = o.id
		WHERE m.user_id = $1 AND m.status = $2
		ORDER BY o.created_at
	`

	var orgs []models.Organization
	if err := s.db.SelectContext(ctx, &orgs, query, userID, models.MembershipActive); err != nil {
		return nil, err
	}
	return orgs, nil
}

// PrimaryOrganizationID returns the oldest active membership's org, used as
// the org claim in freshly issued access tokens.
func (s *Storage) PrimaryOrganizationID(ctx context.Context, userID string) (string, error) {
	query := `
		SELECT org_id
		FROM memberships
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at
		LIMIT 1
	`

	var orgID string
	err := s.db.QueryRowContext(ctx, query, userID, models.MembershipActive).Scan(&orgID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return orgID, nil
}

func (s *Storage) GetMembership(ctx context.Context, orgID, userID string) (*models.Membership, error) {
	query := `
		SELECT org_id, user_id, role, status, created_at
		FROM memberships
		WHERE org_id = $1 AND user_id = $2
	`

	var m models.Membership
	err := s.db.GetContext(ctx, &m, query, orgID, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
