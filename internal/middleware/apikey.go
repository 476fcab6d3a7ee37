package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/wealthjourneyunveiled/WorkflowGene/internal/account"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/config"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/database"
)

// APIKey is middleware for the data API: every request must carry an apikey
// header naming the anon or service_role key. The matched database role is
// stored in the request context for the handler's RLS transaction.
type APIKey struct {
	anonKey        string
	serviceRoleKey string
	authService    *account.AuthService
}

func NewAPIKey(cfg *config.Config, authService *account.AuthService) *APIKey {
	return &APIKey{
		anonKey:        cfg.AnonKey,
		serviceRoleKey: cfg.ServiceRoleKey,
		authService:    authService,
	}
}

func (m *APIKey) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("apikey")
		if key == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing apikey header"})
			return
		}

		role, ok := m.resolveRole(key)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			return
		}

		ctx := setContextValue(r.Context(), ContextAPIKeyRole, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveRole matches the configured static keys first, then falls back to
// signed key JWTs so rotated deployments can accept both forms.
func (m *APIKey) resolveRole(key string) (string, bool) {
	if m.anonKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(m.anonKey)) == 1 {
		return database.RoleAnon, true
	}
	if m.serviceRoleKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(m.serviceRoleKey)) == 1 {
		return database.RoleService, true
	}
	role, err := m.authService.ValidateAPIKey(key)
	if err != nil {
		return "", false
	}
	return role, true
}
