package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wealthjourneyunveiled/WorkflowGene/internal/apperr"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/policy"
)

// Organization is a tenant record. Created at signup time when a name is
// supplied; the signing-up principal becomes its org_admin.
type Organization struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Industry    string    `json:"industry"`
	CompanySize string    `json:"company_size"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type OrganizationService struct {
	db     *pgxpool.Pool
	engine *policy.Engine
}

func NewOrganizationService(db *pgxpool.Pool, engine *policy.Engine) *OrganizationService {
	return &OrganizationService{db: db, engine: engine}
}

// Slugify derives the URL-safe tenant identifier from an organization name:
// lowercased alphanumeric runs joined by single hyphens.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Create inserts a new organization. Slugs are unique; on a collision a
// short random suffix is appended and the insert retried once before the
// conflict is surfaced to the caller.
func (s *OrganizationService) Create(ctx context.Context, req OrganizationSignup) (*Organization, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("organization name is required")
	}

	slug := Slugify(name)
	if slug == "" {
		return nil, apperr.Validation("organization name must contain letters or digits")
	}

	org, err := s.insert(ctx, name, slug, req.Industry, req.CompanySize)
	if err != nil && apperr.IsKind(err, apperr.KindConflict) {
		suffixed := slug + "-" + uuid.NewString()[:8]
		org, err = s.insert(ctx, name, suffixed, req.Industry, req.CompanySize)
	}
	return org, err
}

func (s *OrganizationService) insert(ctx context.Context, name, slug, industry, companySize string) (*Organization, error) {
	var org Organization
	err := s.db.QueryRow(ctx, `
		INSERT INTO public.organizations (name, slug, industry, company_size)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, slug, industry, company_size, created_at, updated_at
	`, name, slug, industry, companySize).Scan(
		&org.ID, &org.Name, &org.Slug, &org.Industry, &org.CompanySize,
		&org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Conflict("organization slug already in use")
		}
		return nil, apperr.Wrap(apperr.KindTransientStore, "organization creation failed", err)
	}
	return &org, nil
}

// Get returns an organization on behalf of actor; members see their own
// organization, super admins see all.
func (s *OrganizationService) Get(ctx context.Context, actor policy.Actor, orgID string) (*Organization, error) {
	var org Organization
	err := s.db.QueryRow(ctx, `
		SELECT id, name, slug, industry, company_size, created_at, updated_at
		FROM public.organizations WHERE id = $1
	`, orgID).Scan(&org.ID, &org.Name, &org.Slug, &org.Industry, &org.CompanySize,
		&org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("organization not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "organization lookup failed", err)
	}

	res := policy.Resource{OrganizationID: &org.ID}
	if d := s.engine.Evaluate(actor, policy.OpOrganizationRead, res); !d.Allowed {
		return nil, apperr.Authorization("not allowed to view this organization")
	}
	return &org, nil
}
