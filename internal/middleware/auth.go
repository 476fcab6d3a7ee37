package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/wealthjourneyunveiled/WorkflowGene/internal/account"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func setContextValue(ctx context.Context, key contextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

// Auth is middleware that validates session access tokens. It sets the
// principal id, email and session id in the request context.
type Auth struct {
	authService *account.AuthService
}

func NewAuth(authService *account.AuthService) *Auth {
	return &Auth{authService: authService}
}

type contextKey string

const (
	ContextPrincipalID contextKey = "principal_id"
	ContextEmail       contextKey = "email"
	ContextSessionID   contextKey = "session_id"
	ContextAPIKeyRole  contextKey = "apikey_role"
)

func (m *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or malformed authorization header"})
			return
		}

		claims, err := m.authService.ValidateToken(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
			return
		}

		ctx := r.Context()
		ctx = setContextValue(ctx, ContextPrincipalID, claims.Subject)
		ctx = setContextValue(ctx, ContextEmail, claims.Email)
		ctx = setContextValue(ctx, ContextSessionID, claims.SessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == auth || token == "" {
		return "", false
	}
	return token, true
}

// GetPrincipalID extracts the authenticated principal id from the request
// context.
func GetPrincipalID(r *http.Request) string {
	v, _ := r.Context().Value(ContextPrincipalID).(string)
	return v
}

// GetEmail extracts the authenticated email from the request context.
func GetEmail(r *http.Request) string {
	v, _ := r.Context().Value(ContextEmail).(string)
	return v
}

// GetSessionID extracts the session id from the request context.
func GetSessionID(r *http.Request) string {
	v, _ := r.Context().Value(ContextSessionID).(string)
	return v
}

// GetAPIKeyRole extracts the database role the presented api key carries.
func GetAPIKeyRole(r *http.Request) string {
	v, _ := r.Context().Value(ContextAPIKeyRole).(string)
	return v
}
