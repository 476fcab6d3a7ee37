package account

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wealthjourneyunveiled/WorkflowGene/internal/apperr"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/policy"
)

// AdminService is the administrative surface over profiles: directory
// listing, role changes, deactivation and member creation. Every operation
// takes the acting principal's policy actor and routes through the engine.
type AdminService struct {
	db        *pgxpool.Pool
	engine    *policy.Engine
	bootstrap *BootstrapService
	auth      *AuthService
}

func NewAdminService(db *pgxpool.Pool, engine *policy.Engine, bootstrap *BootstrapService, auth *AuthService) *AdminService {
	return &AdminService{db: db, engine: engine, bootstrap: bootstrap, auth: auth}
}

// PaginatedProfiles holds a page of profiles plus total count.
type PaginatedProfiles struct {
	Profiles []Profile `json:"profiles"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PerPage  int       `json:"per_page"`
}

// ListProfiles returns the directory visible to actor: super admins see
// everything, org admins and managers their own organization.
func (s *AdminService) ListProfiles(ctx context.Context, actor policy.Actor, page, perPage int) (*PaginatedProfiles, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	offset := (page - 1) * perPage

	where := ""
	args := []interface{}{}
	switch {
	case actor.Role == policy.RoleSuperAdmin || actor.TrustedBackend:
		// unrestricted
	case (actor.Role == policy.RoleOrgAdmin || actor.Role == policy.RoleManager) && actor.OrganizationID != nil:
		where = ` WHERE organization_id = $1`
		args = append(args, *actor.OrganizationID)
	default:
		return nil, apperr.Authorization("not allowed to list profiles")
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM public.profiles`+where, args...).Scan(&total); err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "count profiles failed", err)
	}

	limitArgs := append(args, perPage, offset)
	rows, err := s.db.Query(ctx, `
		SELECT `+profileColumns+`
		FROM public.profiles`+where+`
		ORDER BY created_at ASC
		LIMIT $`+strconv.Itoa(len(args)+1)+` OFFSET $`+strconv.Itoa(len(args)+2),
		limitArgs...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "query profiles failed", err)
	}
	defer rows.Close()

	profiles := []Profile{}
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.Role,
			&p.OrganizationID, &p.EmailVerified, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindTransientStore, "scan profile failed", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "query profiles failed", err)
	}

	return &PaginatedProfiles{Profiles: profiles, Total: total, Page: page, PerPage: perPage}, nil
}

// ChangeRole assigns a new role to the target profile. super_admin is never
// assignable here; only the reconciliation pass may hold the reserved role.
// Org admins are limited to member-level roles inside their own organization.
func (s *AdminService) ChangeRole(ctx context.Context, actor policy.Actor, targetID, newRole string) (*Profile, error) {
	if !policy.ValidRole(newRole) {
		return nil, apperr.Validation("unknown role: " + newRole)
	}
	if newRole == policy.RoleSuperAdmin {
		return nil, apperr.Validation("the super admin role is reserved and cannot be assigned")
	}

	target, err := s.targetResource(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if d := s.engine.Evaluate(actor, policy.OpProfileAdmin, target.Resource); !d.Allowed {
		return nil, apperr.Authorization("not allowed to change this profile's role")
	}
	if !actor.TrustedBackend && !policy.CanAssignRole(actor.Role, newRole) {
		return nil, apperr.Authorization("not allowed to assign role " + newRole)
	}

	// The reserved identity's role only moves through reconciliation.
	if s.bootstrap.IsSuperAdminEmail(target.email) {
		return nil, apperr.Authorization("the super admin profile cannot be modified here")
	}

	profile, err := scanProfile(s.db.QueryRow(ctx, `
		UPDATE public.profiles SET role = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+profileColumns, targetID, newRole))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "role change failed", err)
	}
	return profile, nil
}

// Deactivate sets is_active to false. Profiles are never hard-deleted.
func (s *AdminService) Deactivate(ctx context.Context, actor policy.Actor, targetID string) error {
	if actor.ID == targetID {
		return apperr.Validation("cannot deactivate yourself")
	}

	target, err := s.targetResource(ctx, targetID)
	if err != nil {
		return err
	}
	if d := s.engine.Evaluate(actor, policy.OpProfileAdmin, target.Resource); !d.Allowed {
		return apperr.Authorization("not allowed to deactivate this profile")
	}
	if s.bootstrap.IsSuperAdminEmail(target.email) {
		return apperr.Authorization("the super admin profile cannot be deactivated")
	}

	_, err = s.db.Exec(ctx, `
		UPDATE public.profiles SET is_active = FALSE, updated_at = NOW() WHERE id = $1
	`, targetID)
	if err != nil {
		return apperr.Wrap(apperr.KindTransientStore, "deactivation failed", err)
	}

	// Drop the target's live sessions so deactivation takes effect now, not
	// at token expiry.
	_, _ = s.db.Exec(ctx, `DELETE FROM auth.sessions WHERE principal_id = $1`, targetID)
	return nil
}

// CreateMemberRequest describes a new org member created by an admin.
type CreateMemberRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role,omitempty"`
}

// CreatedMember is the result of member creation, including the generated
// temporary password the admin hands to the new member out of band.
type CreatedMember struct {
	Profile           Profile `json:"profile"`
	TemporaryPassword string  `json:"temporary_password"`
}

// CreateMember provisions a principal plus profile inside the actor's
// organization with a generated temporary password. Members default to the
// user role; org admins may also hand out manager.
func (s *AdminService) CreateMember(ctx context.Context, actor policy.Actor, req CreateMemberRequest) (*CreatedMember, error) {
	if actor.OrganizationID == nil && !actor.TrustedBackend && actor.Role != policy.RoleSuperAdmin {
		return nil, apperr.Authorization("not allowed to create members")
	}

	orgID := actor.OrganizationID
	res := policy.Resource{OrganizationID: orgID}
	if d := s.engine.Evaluate(actor, policy.OpMemberCreate, res); !d.Allowed {
		return nil, apperr.Authorization("not allowed to create members")
	}

	role := req.Role
	if role == "" {
		role = policy.RoleUser
	}
	if role != policy.RoleUser && role != policy.RoleManager {
		return nil, apperr.Validation("members may only be created as user or manager")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if s.bootstrap.IsSuperAdminEmail(email) {
		return nil, apperr.Validation("this email is reserved")
	}

	password, err := GenerateTemporaryPassword(16)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "password generation failed", err)
	}

	principal, err := s.auth.CreatePrincipal(ctx, email, password, map[string]string{
		"first_name": req.FirstName,
		"last_name":  req.LastName,
	})
	if err != nil {
		return nil, err
	}

	result := s.bootstrap.EnsureProfile(ctx, ProfileSeed{
		PrincipalID:    principal.ID,
		Email:          principal.Email,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		EmailVerified:  principal.EmailConfirmedAt != nil,
		OrganizationID: orgID,
	})
	if result.Status == BootstrapDegraded {
		return nil, result.Err
	}

	// Membership implies neither admin nor manager by default; the derived
	// role from bootstrap is user, so elevate to manager explicitly.
	if role == policy.RoleManager {
		_, err = s.db.Exec(ctx, `
			UPDATE public.profiles SET role = $2, updated_at = NOW() WHERE id = $1
		`, principal.ID, role)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindTransientStore, "role assignment failed", err)
		}
	}

	profile, err := scanProfile(s.db.QueryRow(ctx, `
		SELECT `+profileColumns+` FROM public.profiles WHERE id = $1
	`, principal.ID))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "profile lookup failed", err)
	}

	return &CreatedMember{Profile: *profile, TemporaryPassword: password}, nil
}

type resolvedTarget struct {
	policy.Resource
	email string
}

func (s *AdminService) targetResource(ctx context.Context, targetID string) (resolvedTarget, error) {
	var email string
	var orgID *string
	err := s.db.QueryRow(ctx, `
		SELECT email, organization_id FROM public.profiles WHERE id = $1
	`, targetID).Scan(&email, &orgID)
	if errors.Is(err, pgx.ErrNoRows) {
		return resolvedTarget{}, apperr.NotFound("profile not found")
	}
	if err != nil {
		return resolvedTarget{}, apperr.Wrap(apperr.KindTransientStore, "profile lookup failed", err)
	}
	return resolvedTarget{
		Resource: policy.Resource{OwnerID: targetID, OrganizationID: orgID},
		email:    email,
	}, nil
}
