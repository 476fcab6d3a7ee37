package account

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wealthjourneyunveiled/WorkflowGene/internal/apperr"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/database"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/policy"
)

// Profile is the durable account record for a principal. Role and
// organization membership live here, not on the auth-side principal.
type Profile struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Role           string    `json:"role"`
	OrganizationID *string   `json:"organization_id"`
	EmailVerified  bool      `json:"email_verified"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

const profileColumns = `id, email, first_name, last_name, role, organization_id,
	email_verified, is_active, created_at, updated_at`

// ProfileService reads and mutates profile rows. Reads that act on behalf of
// another principal go through the policy engine inside the same transaction
// as the row access, so a present-but-forbidden row surfaces as an
// authorization error rather than a not-found.
type ProfileService struct {
	db        *pgxpool.Pool
	engine    *policy.Engine
	bootstrap *BootstrapService
}

func NewProfileService(db *pgxpool.Pool, engine *policy.Engine, bootstrap *BootstrapService) *ProfileService {
	return &ProfileService{db: db, engine: engine, bootstrap: bootstrap}
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.Role,
		&p.OrganizationID, &p.EmailVerified, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ActorFor builds the policy actor for an authenticated principal from its
// profile row. A missing profile yields an unaffiliated user-level actor;
// bootstrap repairs the row on the next profile fetch.
func (s *ProfileService) ActorFor(ctx context.Context, principalID string) (policy.Actor, error) {
	var role string
	var orgID *string
	err := s.db.QueryRow(ctx, `
		SELECT role, organization_id FROM public.profiles WHERE id = $1 AND is_active
	`, principalID).Scan(&role, &orgID)
	if errors.Is(err, pgx.ErrNoRows) {
		return policy.Actor{ID: principalID, Role: policy.RoleUser}, nil
	}
	if err != nil {
		return policy.Actor{}, apperr.Wrap(apperr.KindTransientStore, "actor lookup failed", err)
	}
	return policy.Actor{ID: principalID, Role: role, OrganizationID: orgID}, nil
}

// GetCurrent returns the calling principal's own profile. A missing row is a
// recoverable condition: the bootstrap upsert is re-run from the principal
// record and the read retried once.
func (s *ProfileService) GetCurrent(ctx context.Context, principalID string) (*Profile, error) {
	profile, err := s.getByID(ctx, principalID)
	if err == nil {
		return profile, nil
	}
	if !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, err
	}

	seed, seedErr := s.seedFromPrincipal(ctx, principalID)
	if seedErr != nil {
		return nil, seedErr
	}
	if res := s.bootstrap.EnsureProfile(ctx, seed); res.Status == BootstrapDegraded {
		slog.Warn("Lazy profile repair degraded", "principal_id", principalID, "error", res.Err)
		return nil, apperr.NotFound("profile not found")
	}
	return s.getByID(ctx, principalID)
}

// Get returns the target profile on behalf of actor. The target row is read
// with the trusted backend path and the policy evaluated against it in the
// same transaction, so denial and absence stay distinguishable.
func (s *ProfileService) Get(ctx context.Context, actor policy.Actor, targetID string) (*Profile, error) {
	return database.ExecuteWithRLS(ctx, s.db, database.RoleService, nil, func(tx pgx.Tx) (*Profile, error) {
		profile, err := scanProfile(tx.QueryRow(ctx, `
			SELECT `+profileColumns+` FROM public.profiles WHERE id = $1
		`, targetID))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("profile not found")
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.KindTransientStore, "profile lookup failed", err)
		}

		target := policy.Resource{OwnerID: profile.ID, OrganizationID: profile.OrganizationID}
		if d := s.engine.Evaluate(actor, policy.OpProfileRead, target); !d.Allowed {
			return nil, apperr.Authorization("not allowed to view this profile")
		}
		return profile, nil
	})
}

// UpdateProfileRequest carries the self-service fields a principal may edit
// on its own row. Administrative fields (role, organization, flags) only
// move through the admin service or reconciliation.
type UpdateProfileRequest struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

// UpdateSelf edits the caller's own profile. The write runs under the
// authenticated database role with the caller's claims, so the row policies
// are enforced by the store as well as by this service.
func (s *ProfileService) UpdateSelf(ctx context.Context, principalID, email string, req UpdateProfileRequest) (*Profile, error) {
	if req.FirstName == nil && req.LastName == nil {
		return nil, apperr.Validation("nothing to update")
	}
	if req.FirstName != nil && len(strings.TrimSpace(*req.FirstName)) > 120 {
		return nil, apperr.Validation("first_name is too long")
	}
	if req.LastName != nil && len(strings.TrimSpace(*req.LastName)) > 120 {
		return nil, apperr.Validation("last_name is too long")
	}

	claims := database.ClaimsForPrincipal(principalID, email)
	return database.ExecuteWithRLS(ctx, s.db, database.RoleAuthenticated, claims, func(tx pgx.Tx) (*Profile, error) {
		profile, err := scanProfile(tx.QueryRow(ctx, `
			UPDATE public.profiles
			SET first_name = COALESCE($2, first_name),
			    last_name  = COALESCE($3, last_name),
			    updated_at = NOW()
			WHERE id = $1
			RETURNING `+profileColumns+`
		`, principalID, req.FirstName, req.LastName))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("profile not found")
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.KindTransientStore, "profile update failed", err)
		}
		return profile, nil
	})
}

func (s *ProfileService) getByID(ctx context.Context, principalID string) (*Profile, error) {
	profile, err := scanProfile(s.db.QueryRow(ctx, `
		SELECT `+profileColumns+` FROM public.profiles WHERE id = $1
	`, principalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("profile not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "profile lookup failed", err)
	}
	return profile, nil
}

func (s *ProfileService) seedFromPrincipal(ctx context.Context, principalID string) (ProfileSeed, error) {
	var email string
	var confirmedAt *time.Time
	var meta map[string]string
	err := s.db.QueryRow(ctx, `
		SELECT email, email_confirmed_at, raw_user_meta_data
		FROM auth.principals WHERE id = $1
	`, principalID).Scan(&email, &confirmedAt, &meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProfileSeed{}, apperr.NotFound("principal not found")
	}
	if err != nil {
		return ProfileSeed{}, apperr.Wrap(apperr.KindTransientStore, "principal lookup failed", err)
	}

	return ProfileSeed{
		PrincipalID:   principalID,
		Email:         email,
		FirstName:     meta["first_name"],
		LastName:      meta["last_name"],
		EmailVerified: confirmedAt != nil,
	}, nil
}
