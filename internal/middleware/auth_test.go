package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wealthjourneyunveiled/WorkflowGene/internal/account"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/config"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/database"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:         "test-middleware-jwt-secret-32-chars",
		JWTExpiry:         3600,
		PasswordMinLength: 6,
		AnonKey:           "static-anon-key",
		ServiceRoleKey:    "static-service-key",
	}
}

// ---------------------------------------------------------------------------
// Bearer extraction
// ---------------------------------------------------------------------------

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"missing", "", "", false},
		{"no_scheme", "some-token", "", false},
		{"wrong_scheme", "Basic dXNlcg==", "", false},
		{"empty_token", "Bearer ", "", false},
		{"valid", "Bearer abc123", "abc123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, ok := bearerToken(r)
			if ok != tt.ok || got != tt.want {
				t.Errorf("bearerToken = (%q, %t), want (%q, %t)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Session middleware
// ---------------------------------------------------------------------------

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	m := NewAuth(account.NewAuthService(nil, testConfig()))
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run without credentials")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	m := NewAuth(account.NewAuthService(nil, testConfig()))
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run with a bad token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-valid-jwt")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	cfg := testConfig()
	m := NewAuth(account.NewAuthService(nil, cfg))

	now := time.Now()
	claims := account.AccessClaims{
		Email:     "a@b.test",
		Role:      database.RoleAuthenticated,
		SessionID: "session-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "principal-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	var gotPrincipal, gotEmail, gotSession string
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPrincipal = GetPrincipalID(r)
		gotEmail = GetEmail(r)
		gotSession = GetSessionID(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if gotPrincipal != "principal-1" || gotEmail != "a@b.test" || gotSession != "session-1" {
		t.Errorf("context = (%q, %q, %q)", gotPrincipal, gotEmail, gotSession)
	}
}

func TestContextGetters_Empty(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if GetPrincipalID(r) != "" || GetEmail(r) != "" || GetSessionID(r) != "" || GetAPIKeyRole(r) != "" {
		t.Error("getters must return empty strings for an unauthenticated request")
	}
}

func TestContextGetters_Populated(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := setContextValue(r.Context(), ContextPrincipalID, "principal-1")
	ctx = setContextValue(ctx, ContextEmail, "a@b.test")
	ctx = setContextValue(ctx, ContextSessionID, "session-1")
	r = r.WithContext(ctx)

	if GetPrincipalID(r) != "principal-1" {
		t.Errorf("principal id = %q", GetPrincipalID(r))
	}
	if GetEmail(r) != "a@b.test" {
		t.Errorf("email = %q", GetEmail(r))
	}
	if GetSessionID(r) != "session-1" {
		t.Errorf("session id = %q", GetSessionID(r))
	}
}
