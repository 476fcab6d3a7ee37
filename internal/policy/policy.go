// Package policy centralizes the access rules for profiles, organizations
// and analytics. Every privileged operation in the account services asks the
// engine for a decision before touching a row, so the rules live in exactly
// one place instead of being scattered across handlers.
package policy

// Profile roles, ordered from least to most privileged.
const (
	RoleUser       = "user"
	RoleOrgAdmin   = "org_admin"
	RoleManager    = "manager"
	RoleSuperAdmin = "super_admin"
)

// ValidRole reports whether role is one of the four known profile roles.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleOrgAdmin, RoleManager, RoleSuperAdmin:
		return true
	}
	return false
}

// AssignableRoles returns the roles an actor with the given role may assign
// to other profiles. Super admins may assign any role, organization admins
// may only hand out member-level roles inside their own organization.
func AssignableRoles(actorRole string) []string {
	switch actorRole {
	case RoleSuperAdmin:
		return []string{RoleUser, RoleOrgAdmin, RoleManager, RoleSuperAdmin}
	case RoleOrgAdmin:
		return []string{RoleUser, RoleManager}
	}
	return nil
}

// CanAssignRole reports whether an actor with actorRole may assign newRole.
func CanAssignRole(actorRole, newRole string) bool {
	for _, r := range AssignableRoles(actorRole) {
		if r == newRole {
			return true
		}
	}
	return false
}

// Operation names a guarded action on a resource.
type Operation string

const (
	OpProfileRead        Operation = "profile.read"
	OpProfileUpdate      Operation = "profile.update"
	OpProfileAdmin       Operation = "profile.admin"
	OpOrganizationRead   Operation = "organization.read"
	OpOrganizationCreate Operation = "organization.create"
	OpOrganizationUpdate Operation = "organization.update"
	OpAnalyticsRead      Operation = "analytics.read"
	OpAnalyticsWrite     Operation = "analytics.write"
	OpMemberCreate       Operation = "member.create"
)

// Actor is the principal an operation runs on behalf of. TrustedBackend
// marks internal callers (bootstrap, scheduler, service-key requests) that
// bypass the rule table entirely.
type Actor struct {
	ID             string
	Role           string
	OrganizationID *string
	TrustedBackend bool
}

// Resource identifies the row an operation targets. OwnerID is the profile
// id that owns the row; OrganizationID is the organization the row belongs
// to, when it belongs to one. The zero Resource matches rules that do not
// inspect the target, such as organization creation.
type Resource struct {
	OwnerID        string
	OrganizationID *string
}

// Decision is the outcome of evaluating an operation. Rule names the rule
// that granted access so audit entries can record why a request was allowed.
type Decision struct {
	Allowed bool
	Rule    string
}

// Rule grants an operation when its condition holds. Operations lists the
// operations the rule can authorize; an empty list covers every operation.
type Rule struct {
	Name       string
	Operations []Operation
	Allow      func(actor Actor, res Resource) bool
}

func (r *Rule) covers(op Operation) bool {
	if len(r.Operations) == 0 {
		return true
	}
	for _, o := range r.Operations {
		if o == op {
			return true
		}
	}
	return false
}

// Engine evaluates operations against an ordered rule list. Rules are fixed
// at construction, so evaluation is safe for concurrent use. Absent a
// matching rule the engine denies.
type Engine struct {
	rules []Rule
}

// NewEngine builds an engine from the given rules, falling back to
// DefaultRules when none are supplied.
func NewEngine(rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Engine{rules: rules}
}

// Evaluate returns the decision for actor performing op on res. The first
// rule that covers op and allows the pair wins.
func (e *Engine) Evaluate(actor Actor, op Operation, res Resource) Decision {
	for i := range e.rules {
		r := &e.rules[i]
		if !r.covers(op) {
			continue
		}
		if r.Allow(actor, res) {
			return Decision{Allowed: true, Rule: r.Name}
		}
	}
	return Decision{}
}

// sameOrganization reports whether both ids are set and equal. A profile
// without an organization never shares one.
func sameOrganization(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

// DefaultRules returns the canonical rule table. Trusted backends and super
// admins are unconditional, everything else is scoped to the actor's own row
// or organization.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "trusted_backend",
			Allow: func(actor Actor, _ Resource) bool {
				return actor.TrustedBackend
			},
		},
		{
			Name: "super_admin_all",
			Allow: func(actor Actor, _ Resource) bool {
				return actor.Role == RoleSuperAdmin
			},
		},
		{
			Name:       "profile_self",
			Operations: []Operation{OpProfileRead, OpProfileUpdate},
			Allow: func(actor Actor, res Resource) bool {
				return actor.ID != "" && actor.ID == res.OwnerID
			},
		},
		{
			Name:       "profile_org_read",
			Operations: []Operation{OpProfileRead},
			Allow: func(actor Actor, res Resource) bool {
				if actor.Role != RoleOrgAdmin && actor.Role != RoleManager {
					return false
				}
				return sameOrganization(actor.OrganizationID, res.OrganizationID)
			},
		},
		{
			Name:       "organization_member_read",
			Operations: []Operation{OpOrganizationRead},
			Allow: func(actor Actor, res Resource) bool {
				return sameOrganization(actor.OrganizationID, res.OrganizationID)
			},
		},
		{
			Name:       "organization_create_unaffiliated",
			Operations: []Operation{OpOrganizationCreate},
			Allow: func(actor Actor, _ Resource) bool {
				return actor.ID != "" && actor.OrganizationID == nil
			},
		},
		{
			Name:       "organization_admin_update",
			Operations: []Operation{OpOrganizationUpdate},
			Allow: func(actor Actor, res Resource) bool {
				if actor.Role != RoleOrgAdmin {
					return false
				}
				return sameOrganization(actor.OrganizationID, res.OrganizationID)
			},
		},
		{
			Name:       "analytics_org",
			Operations: []Operation{OpAnalyticsRead, OpAnalyticsWrite},
			Allow: func(actor Actor, res Resource) bool {
				return sameOrganization(actor.OrganizationID, res.OrganizationID)
			},
		},
		{
			Name:       "member_admin_org",
			Operations: []Operation{OpMemberCreate, OpProfileAdmin},
			Allow: func(actor Actor, res Resource) bool {
				if actor.Role != RoleOrgAdmin {
					return false
				}
				return sameOrganization(actor.OrganizationID, res.OrganizationID)
			},
		},
	}
}
