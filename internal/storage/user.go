package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"botforge-backend/internal/models"
)

const userColumns = `id, email, password_hash, name, email_verified, is_superadmin, two_factor_enabled, two_factor_secret, created_at`

// DemoEmail is the seeded shared demo account. Demo login 404s when the row
// is absent.
const DemoEmail = "demo@botforge.io"

func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var user models.User
	if err := s.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	var user models.User
	if err := s.db.GetContext(ctx, &user, query, normalizeEmail(email)); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (s *Storage) GetDemoUser(ctx context.Context) (*models.User, error) {
	return s.GetUserByEmail(ctx, DemoEmail)
}

type RegisterInput struct {
	Email        string
	PasswordHash string
	Name         string
	OrgName      string
	OrgSlug      string
}

// RegisterUser provisions a user, their personal organization, and an admin
// membership in a single transaction. Either all three rows exist afterwards
// or none do.
func (s *Storage) RegisterUser(ctx context.Context, input RegisterInput) (*models.User, *models.Organization, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin registration tx: %w", err)
	}
	defer tx.Rollback()

	user := models.User{
		ID:    uuid.New().String(),
		Email: normalizeEmail(input.Email),
		Name:  input.Name,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (id, email, password_hash, name)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, user.ID, user.Email, input.PasswordHash, input.Name).Scan(&user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, ErrEmailTaken
		}
		return nil, nil, fmt.Errorf("insert user: %w", err)
	}
	user.PasswordHash = input.PasswordHash

	org := models.Organization{
		ID:       uuid.New().String(),
		Name:     input.OrgName,
		Slug:     input.OrgSlug,
		OwnerID:  user.ID,
		PlanTier: models.PlanFree,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO organizations (id, name, slug, owner_id, plan_tier)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, org.ID, org.Name, org.Slug, org.OwnerID, org.PlanTier).Scan(&org.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, ErrSlugTaken
		}
		return nil, nil, fmt.Errorf("insert organization: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memberships (org_id, user_id, role, status)
		VALUES ($1, $2, $3, $4)
	`, org.ID, user.ID, models.RoleAdmin, models.MembershipActive)
	if err != nil {
		return nil, nil, fmt.Errorf("insert membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit registration tx: %w", err)
	}

	return &user, &org, nil
}

// SlugFromEmail derives the personal-org slug for a new user, e.g.
// "alice@x.com" becomes "alice-3f2a". The random suffix keeps collisions
// between same-named users rare; RegisterUser still reports ErrSlugTaken so
// the caller can retry with a fresh suffix.
func SlugFromEmail(email string) string {
	local := normalizeEmail(email)
	if at := strings.IndexByte(local, '@'); at > 0 {
		local = local[:at]
	}
	var b strings.Builder
	for _, r := range local {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "org"
	}
	return slug + "-" + uuid.New().String()[:4]
}
