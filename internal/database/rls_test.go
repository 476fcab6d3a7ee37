package database

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// JWTClaims
// ---------------------------------------------------------------------------

func TestClaimsForPrincipal(t *testing.T) {
	claims := ClaimsForPrincipal("principal-123", "alice@acme.com")

	if claims["sub"] != "principal-123" {
		t.Errorf("expected sub 'principal-123', got %v", claims["sub"])
	}
	if claims["role"] != RoleAuthenticated {
		t.Errorf("expected role %q, got %v", RoleAuthenticated, claims["role"])
	}
	if claims["email"] != "alice@acme.com" {
		t.Errorf("expected email 'alice@acme.com', got %v", claims["email"])
	}
}

func TestJWTClaims_MarshalJSON(t *testing.T) {
	claims := ClaimsForPrincipal("principal-123", "alice@acme.com")

	data, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("json.Unmarshal failed: %v", err)
	}
	if parsed["sub"] != "principal-123" {
		t.Errorf("expected sub 'principal-123', got %v", parsed["sub"])
	}
}

func TestJWTClaims_EmptyClaims(t *testing.T) {
	claims := JWTClaims{}

	data, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}
	if string(data) != "{}" {
		t.Errorf("expected '{}', got %q", string(data))
	}
}

// ---------------------------------------------------------------------------
// Role name validation
// ---------------------------------------------------------------------------

func TestValidRoleName(t *testing.T) {
	tests := []struct {
		name string
		role string
		ok   bool
	}{
		{"anon", RoleAnon, true},
		{"authenticated", RoleAuthenticated, true},
		{"service_role", RoleService, true},
		{"underscore_prefix", "_internal", true},
		{"empty", "", false},
		{"leading_digit", "1role", false},
		{"quote_injection", `authenticated"; DROP TABLE profiles; --`, false},
		{"whitespace", "auth enticated", false},
		{"semicolon", "anon;", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validRoleName.MatchString(tt.role); got != tt.ok {
				t.Fatalf("validRoleName(%q) = %v, want %v", tt.role, got, tt.ok)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Note: ExecuteWithRLS requires a real pgxpool.Pool and a live database
// connection to test properly. The following tests document what would be
// tested with integration tests.
// ---------------------------------------------------------------------------

// TestExecuteWithRLS_ServiceRoleBypassesRLS documents that when role is
// "service_role", the function should NOT call SET LOCAL ROLE.
func TestExecuteWithRLS_ServiceRoleBypassesRLS_Documentation(t *testing.T) {
	t.Skip("requires database connection -- integration test")
}

// TestExecuteWithRLS_AuthenticatedSetsClaimsAndRole documents that the
// authenticated path sets SET LOCAL ROLE plus request.jwt.* settings before
// invoking the callback, and that profile rows visible inside the callback
// are limited to what the policies permit for those claims.
func TestExecuteWithRLS_AuthenticatedSetsClaimsAndRole_Documentation(t *testing.T) {
	t.Skip("requires database connection -- integration test")
}

// TestExecuteWithRLS_RollsBackOnError documents that an error in the
// callback results in a rolled back transaction.
func TestExecuteWithRLS_RollsBackOnError_Documentation(t *testing.T) {
	t.Skip("requires database connection -- integration test")
}
