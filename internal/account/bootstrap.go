package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/wealthjourneyunveiled/WorkflowGene/internal/apperr"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/config"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/policy"
)

// BootstrapService guarantees every principal has exactly one profile row
// with a correctly derived role, and keeps the reserved super-admin identity
// canonical. Every routine here is idempotent and safe to re-run at any time,
// in any order.
type BootstrapService struct {
	db                 *pgxpool.Pool
	superAdminEmail    string
	superAdminPassword string
	superAdminFirst    string
	superAdminLast     string
}

func NewBootstrapService(db *pgxpool.Pool, cfg *config.Config) *BootstrapService {
	return &BootstrapService{
		db:                 db,
		superAdminEmail:    cfg.SuperAdminEmail,
		superAdminPassword: cfg.SuperAdminPassword,
		superAdminFirst:    cfg.SuperAdminFirstName,
		superAdminLast:     cfg.SuperAdminLastName,
	}
}

// BootstrapStatus reports what EnsureProfile did.
type BootstrapStatus string

const (
	// BootstrapCreated means the profile row was inserted.
	BootstrapCreated BootstrapStatus = "created"
	// BootstrapUpdated means an existing row was refreshed.
	BootstrapUpdated BootstrapStatus = "updated"
	// BootstrapDegraded means the write failed. The caller's auth flow must
	// continue anyway; the profile is repaired lazily on the next fetch.
	BootstrapDegraded BootstrapStatus = "degraded"
)

// BootstrapResult is the typed outcome of a profile bootstrap. A degraded
// result carries the underlying error for logging but is never fatal to the
// enclosing signup or signin.
type BootstrapResult struct {
	Status BootstrapStatus
	Role   string
	Err    error
}

// ProfileSeed carries everything EnsureProfile needs about a freshly
// observed principal.
type ProfileSeed struct {
	PrincipalID    string
	Email          string
	FirstName      string
	LastName       string
	EmailVerified  bool
	OrganizationID *string
	// CreatedOrganization marks the signup that founded the organization.
	// Members added to an existing organization keep the user role.
	CreatedOrganization bool
}

// IsSuperAdminEmail reports whether email is the reserved super-admin
// identity. The comparison is exact: config.Load lowercases the configured
// address, and principal emails are lowercased before they reach this point.
func (s *BootstrapService) IsSuperAdminEmail(email string) bool {
	return email == s.superAdminEmail
}

// DeriveRole computes the initial role for a principal: the reserved email
// becomes super_admin, a signup that created an organization becomes its
// org_admin, everyone else starts as user.
func (s *BootstrapService) DeriveRole(email string, createdOrganization bool) string {
	if s.IsSuperAdminEmail(email) {
		return policy.RoleSuperAdmin
	}
	if createdOrganization {
		return policy.RoleOrgAdmin
	}
	return policy.RoleUser
}

// profileUpsertSQL is the single atomic write behind EnsureProfile. The role
// CASE moves a profile up from 'user' but never down, and the organization
// CASE forces NULL whenever the resulting role is super_admin.
const profileUpsertSQL = `
	INSERT INTO public.profiles AS p
		(id, email, first_name, last_name, role, organization_id, email_verified)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE SET
		email           = EXCLUDED.email,
		email_verified  = p.email_verified OR EXCLUDED.email_verified,
		role            = CASE WHEN p.role = 'user' THEN EXCLUDED.role ELSE p.role END,
		organization_id = CASE
			WHEN (CASE WHEN p.role = 'user' THEN EXCLUDED.role ELSE p.role END) = 'super_admin' THEN NULL
			ELSE COALESCE(p.organization_id, EXCLUDED.organization_id)
		END,
		updated_at      = NOW()
	RETURNING role, (xmax = 0)
`

// EnsureProfile materializes the profile row for a principal as a single
// atomic upsert keyed by principal id, so two concurrent first logins cannot
// double-insert. On conflict it refreshes the mutable fields without ever
// downgrading an already-elevated role. The reserved identity always ends up
// with a null organization.
func (s *BootstrapService) EnsureProfile(ctx context.Context, seed ProfileSeed) BootstrapResult {
	role := s.DeriveRole(seed.Email, seed.CreatedOrganization)

	orgID := seed.OrganizationID
	if role == policy.RoleSuperAdmin {
		orgID = nil
	}

	var finalRole string
	var inserted bool
	err := s.db.QueryRow(ctx, profileUpsertSQL,
		seed.PrincipalID, seed.Email, seed.FirstName, seed.LastName, role, orgID, seed.EmailVerified,
	).Scan(&finalRole, &inserted)
	if err != nil {
		return BootstrapResult{
			Status: BootstrapDegraded,
			Err:    apperr.TransientStore("profile bootstrap failed", err),
		}
	}

	if inserted {
		return BootstrapResult{Status: BootstrapCreated, Role: finalRole}
	}
	return BootstrapResult{Status: BootstrapUpdated, Role: finalRole}
}

// reconcileUpsertSQL repairs the reserved profile. The WHERE clause makes the
// write conditional on drift, so a converged row is not touched and
// RowsAffected doubles as a "was anything wrong" signal.
const reconcileUpsertSQL = `
	INSERT INTO public.profiles AS p
		(id, email, first_name, last_name, role, organization_id, email_verified, is_active)
	VALUES ($1, $2, $3, $4, 'super_admin', NULL, TRUE, TRUE)
	ON CONFLICT (id) DO UPDATE SET
		email           = EXCLUDED.email,
		role            = 'super_admin',
		organization_id = NULL,
		email_verified  = TRUE,
		is_active       = TRUE,
		first_name      = CASE WHEN p.first_name = '' THEN EXCLUDED.first_name ELSE p.first_name END,
		last_name       = CASE WHEN p.last_name = '' THEN EXCLUDED.last_name ELSE p.last_name END,
		updated_at      = NOW()
	WHERE p.role <> 'super_admin'
	   OR p.organization_id IS NOT NULL
	   OR NOT p.is_active
	   OR NOT p.email_verified
	   OR p.email <> EXCLUDED.email
`

// ReconcileSuperAdmin converges the reserved identity to its canonical
// shape: role super_admin, no organization, active and verified. Drifted
// flags are repaired in place, a missing profile row is created, and any
// other profile that somehow acquired super_admin is demoted. Runs at
// startup and on a schedule; when state is already correct it touches
// nothing.
func (s *BootstrapService) ReconcileSuperAdmin(ctx context.Context) error {
	var principalID string
	err := s.db.QueryRow(ctx, `
		SELECT id FROM auth.principals WHERE email = $1
	`, s.superAdminEmail).Scan(&principalID)
	if errors.Is(err, pgx.ErrNoRows) {
		if s.superAdminPassword == "" {
			slog.Info("Super admin principal not present and no seed password configured, skipping")
			return nil
		}
		principalID, err = s.seedSuperAdminPrincipal(ctx)
		if err != nil {
			return err
		}
	} else if err != nil {
		return fmt.Errorf("look up super admin principal: %w", err)
	}

	// Demote impostors before repairing the canonical row, so the "at most
	// one super_admin" invariant holds even from a corrupted start.
	_, err = s.db.Exec(ctx, `
		UPDATE public.profiles SET role = 'user', updated_at = NOW()
		WHERE role = 'super_admin' AND id <> $1
	`, principalID)
	if err != nil {
		return fmt.Errorf("demote stray super admins: %w", err)
	}

	tag, err := s.db.Exec(ctx, reconcileUpsertSQL,
		principalID, s.superAdminEmail, s.superAdminFirst, s.superAdminLast)
	if err != nil {
		return fmt.Errorf("reconcile super admin profile: %w", err)
	}
	if tag.RowsAffected() > 0 {
		slog.Info("Super admin profile reconciled", "principal_id", principalID)
	}
	return nil
}

// seedSuperAdminPrincipal creates the reserved principal from the configured
// credentials. ON CONFLICT covers a concurrent start racing the same insert.
func (s *BootstrapService) seedSuperAdminPrincipal(ctx context.Context) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(s.superAdminPassword), 12)
	if err != nil {
		return "", fmt.Errorf("hash super admin password: %w", err)
	}

	var principalID string
	err = s.db.QueryRow(ctx, `
		INSERT INTO auth.principals (email, encrypted_password, email_confirmed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (email) DO UPDATE SET updated_at = NOW()
		RETURNING id
	`, s.superAdminEmail, string(hash)).Scan(&principalID)
	if err != nil {
		return "", fmt.Errorf("seed super admin principal: %w", err)
	}

	slog.Info("Super admin principal seeded", "principal_id", principalID)
	return principalID, nil
}
