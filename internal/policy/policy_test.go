package policy

import (
	"testing"
)

func strptr(s string) *string { return &s }

func defaultEngine() *Engine {
	return NewEngine()
}

// ---------------------------------------------------------------------------
// Role helpers
// ---------------------------------------------------------------------------

func TestValidRole(t *testing.T) {
	tests := []struct {
		role string
		ok   bool
	}{
		{RoleUser, true},
		{RoleOrgAdmin, true},
		{RoleManager, true},
		{RoleSuperAdmin, true},
		{"admin", false},
		{"", false},
		{"USER", false},
	}

	for _, tt := range tests {
		if got := ValidRole(tt.role); got != tt.ok {
			t.Errorf("ValidRole(%q) = %v, want %v", tt.role, got, tt.ok)
		}
	}
}

func TestCanAssignRole(t *testing.T) {
	tests := []struct {
		name      string
		actorRole string
		newRole   string
		ok        bool
	}{
		{"super_admin_assigns_super_admin", RoleSuperAdmin, RoleSuperAdmin, true},
		{"super_admin_assigns_user", RoleSuperAdmin, RoleUser, true},
		{"org_admin_assigns_user", RoleOrgAdmin, RoleUser, true},
		{"org_admin_assigns_manager", RoleOrgAdmin, RoleManager, true},
		{"org_admin_cannot_assign_org_admin", RoleOrgAdmin, RoleOrgAdmin, false},
		{"org_admin_cannot_assign_super_admin", RoleOrgAdmin, RoleSuperAdmin, false},
		{"manager_assigns_nothing", RoleManager, RoleUser, false},
		{"user_assigns_nothing", RoleUser, RoleUser, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAssignRole(tt.actorRole, tt.newRole); got != tt.ok {
				t.Fatalf("CanAssignRole(%q, %q) = %v, want %v", tt.actorRole, tt.newRole, got, tt.ok)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Engine decisions
// ---------------------------------------------------------------------------

func TestTrustedBackendBypassesEverything(t *testing.T) {
	engine := defaultEngine()
	backend := Actor{TrustedBackend: true}

	ops := []Operation{
		OpProfileRead, OpProfileUpdate, OpProfileAdmin,
		OpOrganizationRead, OpOrganizationCreate, OpOrganizationUpdate,
		OpAnalyticsRead, OpAnalyticsWrite, OpMemberCreate,
	}
	for _, op := range ops {
		d := engine.Evaluate(backend, op, Resource{OwnerID: "someone-else"})
		if !d.Allowed {
			t.Errorf("trusted backend should be allowed %q", op)
		}
		if d.Rule != "trusted_backend" {
			t.Errorf("expected rule trusted_backend for %q, got %q", op, d.Rule)
		}
	}
}

func TestSuperAdminAllowedEverything(t *testing.T) {
	engine := defaultEngine()
	admin := Actor{ID: "sa-1", Role: RoleSuperAdmin}

	for _, op := range []Operation{OpProfileRead, OpProfileAdmin, OpAnalyticsRead, OpMemberCreate} {
		d := engine.Evaluate(admin, op, Resource{OwnerID: "other", OrganizationID: strptr("org-1")})
		if !d.Allowed {
			t.Errorf("super_admin should be allowed %q", op)
		}
		if d.Rule != "super_admin_all" {
			t.Errorf("expected rule super_admin_all for %q, got %q", op, d.Rule)
		}
	}
}

func TestProfileSelfReadAndUpdate(t *testing.T) {
	engine := defaultEngine()
	actor := Actor{ID: "u-1", Role: RoleUser}

	d := engine.Evaluate(actor, OpProfileRead, Resource{OwnerID: "u-1"})
	if !d.Allowed || d.Rule != "profile_self" {
		t.Fatalf("self read denied: %+v", d)
	}
	d = engine.Evaluate(actor, OpProfileUpdate, Resource{OwnerID: "u-1"})
	if !d.Allowed || d.Rule != "profile_self" {
		t.Fatalf("self update denied: %+v", d)
	}
}

func TestProfileOtherDeniedForPlainUser(t *testing.T) {
	engine := defaultEngine()
	actor := Actor{ID: "u-1", Role: RoleUser, OrganizationID: strptr("org-1")}

	d := engine.Evaluate(actor, OpProfileRead, Resource{OwnerID: "u-2", OrganizationID: strptr("org-1")})
	if d.Allowed {
		t.Errorf("plain user should not read another profile, granted by %q", d.Rule)
	}
	d = engine.Evaluate(actor, OpProfileUpdate, Resource{OwnerID: "u-2", OrganizationID: strptr("org-1")})
	if d.Allowed {
		t.Errorf("plain user should not update another profile, granted by %q", d.Rule)
	}
}

func TestOrgAdminReadsSameOrgProfiles(t *testing.T) {
	engine := defaultEngine()

	for _, role := range []string{RoleOrgAdmin, RoleManager} {
		actor := Actor{ID: "a-1", Role: role, OrganizationID: strptr("org-1")}

		d := engine.Evaluate(actor, OpProfileRead, Resource{OwnerID: "u-2", OrganizationID: strptr("org-1")})
		if !d.Allowed || d.Rule != "profile_org_read" {
			t.Errorf("%s same-org read: %+v", role, d)
		}

		d = engine.Evaluate(actor, OpProfileRead, Resource{OwnerID: "u-3", OrganizationID: strptr("org-2")})
		if d.Allowed {
			t.Errorf("%s should not read a profile in another organization", role)
		}

		// Read is not update.
		d = engine.Evaluate(actor, OpProfileUpdate, Resource{OwnerID: "u-2", OrganizationID: strptr("org-1")})
		if d.Allowed {
			t.Errorf("%s should not update another member's profile, granted by %q", role, d.Rule)
		}
	}
}

func TestOrgReadRequiresMembershipOnBothSides(t *testing.T) {
	engine := defaultEngine()

	// Actor without an organization never matches an org-scoped rule, even
	// when the target also has none.
	actor := Actor{ID: "u-1", Role: RoleOrgAdmin}
	d := engine.Evaluate(actor, OpProfileRead, Resource{OwnerID: "u-2"})
	if d.Allowed {
		t.Errorf("nil organization ids must not be treated as equal, granted by %q", d.Rule)
	}
}

func TestOrganizationMemberRead(t *testing.T) {
	engine := defaultEngine()
	member := Actor{ID: "u-1", Role: RoleUser, OrganizationID: strptr("org-1")}

	d := engine.Evaluate(member, OpOrganizationRead, Resource{OrganizationID: strptr("org-1")})
	if !d.Allowed || d.Rule != "organization_member_read" {
		t.Fatalf("member org read: %+v", d)
	}

	d = engine.Evaluate(member, OpOrganizationRead, Resource{OrganizationID: strptr("org-2")})
	if d.Allowed {
		t.Error("member should not read a foreign organization")
	}
}

func TestOrganizationCreateOnlyWhenUnaffiliated(t *testing.T) {
	engine := defaultEngine()

	fresh := Actor{ID: "u-1", Role: RoleUser}
	d := engine.Evaluate(fresh, OpOrganizationCreate, Resource{})
	if !d.Allowed || d.Rule != "organization_create_unaffiliated" {
		t.Fatalf("unaffiliated create: %+v", d)
	}

	affiliated := Actor{ID: "u-2", Role: RoleUser, OrganizationID: strptr("org-1")}
	d = engine.Evaluate(affiliated, OpOrganizationCreate, Resource{})
	if d.Allowed {
		t.Errorf("affiliated user should not create a second organization, granted by %q", d.Rule)
	}
}

func TestOrganizationUpdateRequiresOrgAdmin(t *testing.T) {
	engine := defaultEngine()
	res := Resource{OrganizationID: strptr("org-1")}

	admin := Actor{ID: "a-1", Role: RoleOrgAdmin, OrganizationID: strptr("org-1")}
	if d := engine.Evaluate(admin, OpOrganizationUpdate, res); !d.Allowed {
		t.Fatalf("org_admin update own org: %+v", d)
	}

	manager := Actor{ID: "m-1", Role: RoleManager, OrganizationID: strptr("org-1")}
	if d := engine.Evaluate(manager, OpOrganizationUpdate, res); d.Allowed {
		t.Errorf("manager should not update the organization, granted by %q", d.Rule)
	}

	foreign := Actor{ID: "a-2", Role: RoleOrgAdmin, OrganizationID: strptr("org-2")}
	if d := engine.Evaluate(foreign, OpOrganizationUpdate, res); d.Allowed {
		t.Errorf("org_admin of another org should not update, granted by %q", d.Rule)
	}
}

func TestAnalyticsScopedToOrganization(t *testing.T) {
	engine := defaultEngine()
	member := Actor{ID: "u-1", Role: RoleUser, OrganizationID: strptr("org-1")}

	d := engine.Evaluate(member, OpAnalyticsRead, Resource{OrganizationID: strptr("org-1")})
	if !d.Allowed || d.Rule != "analytics_org" {
		t.Fatalf("same-org analytics read: %+v", d)
	}
	d = engine.Evaluate(member, OpAnalyticsWrite, Resource{OrganizationID: strptr("org-1")})
	if !d.Allowed {
		t.Fatalf("same-org analytics write: %+v", d)
	}
	d = engine.Evaluate(member, OpAnalyticsRead, Resource{OrganizationID: strptr("org-2")})
	if d.Allowed {
		t.Error("analytics of another organization should be denied")
	}
}

func TestMemberAdminScopedToOwnOrg(t *testing.T) {
	engine := defaultEngine()
	admin := Actor{ID: "a-1", Role: RoleOrgAdmin, OrganizationID: strptr("org-1")}

	d := engine.Evaluate(admin, OpMemberCreate, Resource{OrganizationID: strptr("org-1")})
	if !d.Allowed || d.Rule != "member_admin_org" {
		t.Fatalf("org_admin member create: %+v", d)
	}

	d = engine.Evaluate(admin, OpProfileAdmin, Resource{OwnerID: "u-2", OrganizationID: strptr("org-1")})
	if !d.Allowed || d.Rule != "member_admin_org" {
		t.Fatalf("org_admin profile admin: %+v", d)
	}

	d = engine.Evaluate(admin, OpMemberCreate, Resource{OrganizationID: strptr("org-2")})
	if d.Allowed {
		t.Error("org_admin should not create members in another organization")
	}

	manager := Actor{ID: "m-1", Role: RoleManager, OrganizationID: strptr("org-1")}
	d = engine.Evaluate(manager, OpMemberCreate, Resource{OrganizationID: strptr("org-1")})
	if d.Allowed {
		t.Errorf("manager should not create members, granted by %q", d.Rule)
	}
}

func TestDefaultDeny(t *testing.T) {
	engine := defaultEngine()

	d := engine.Evaluate(Actor{}, OpProfileRead, Resource{})
	if d.Allowed {
		t.Errorf("zero actor should be denied, granted by %q", d.Rule)
	}
	if d.Rule != "" {
		t.Errorf("denied decision should carry no rule name, got %q", d.Rule)
	}
}

func TestCustomRuleOrder(t *testing.T) {
	denyAll := NewEngine(Rule{
		Name:       "allow_reads_only",
		Operations: []Operation{OpProfileRead},
		Allow:      func(Actor, Resource) bool { return true },
	})

	if d := denyAll.Evaluate(Actor{ID: "u-1"}, OpProfileRead, Resource{}); !d.Allowed {
		t.Fatalf("custom rule should allow reads: %+v", d)
	}
	if d := denyAll.Evaluate(Actor{ID: "u-1"}, OpProfileUpdate, Resource{}); d.Allowed {
		t.Error("operations outside the custom rule should be denied")
	}
}
