package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wealthjourneyunveiled/WorkflowGene/internal/account"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/database"
)

func newTestAPIKey() *APIKey {
	cfg := testConfig()
	return NewAPIKey(cfg, account.NewAuthService(nil, cfg))
}

func TestAPIKeyMiddleware_MissingHeader(t *testing.T) {
	m := newTestAPIKey()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run without an apikey")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rest/v1/profiles", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}

func TestAPIKeyMiddleware_StaticKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"anon", "static-anon-key", database.RoleAnon},
		{"service_role", "static-service-key", database.RoleService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestAPIKey()
			var gotRole string
			handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotRole = GetAPIKeyRole(r)
			}))

			req := httptest.NewRequest(http.MethodGet, "/rest/v1/profiles", nil)
			req.Header.Set("apikey", tt.key)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rec.Code)
			}
			if gotRole != tt.want {
				t.Errorf("role = %q, want %q", gotRole, tt.want)
			}
		})
	}
}

func TestAPIKeyMiddleware_SignedKeyFallback(t *testing.T) {
	cfg := testConfig()
	authSvc := account.NewAuthService(nil, cfg)
	m := NewAPIKey(cfg, authSvc)

	key, err := authSvc.GenerateAPIKey(database.RoleService)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	var gotRole string
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRole = GetAPIKeyRole(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/rest/v1/profiles", nil)
	req.Header.Set("apikey", key)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if gotRole != database.RoleService {
		t.Errorf("role = %q, want %q", gotRole, database.RoleService)
	}
}

func TestAPIKeyMiddleware_GarbageKey(t *testing.T) {
	m := newTestAPIKey()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run with an invalid key")
	}))

	req := httptest.NewRequest(http.MethodGet, "/rest/v1/profiles", nil)
	req.Header.Set("apikey", "definitely-not-a-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}
