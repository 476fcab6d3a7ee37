package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/wealthjourneyunveiled/WorkflowGene/internal/account"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/apperr"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/middleware"
)

// Handler exposes the auth facade: signup, token, logout, recovery and the
// current principal's identity and profile. Field names on the wire follow
// the GoTrue conventions the rest of the stack already speaks.
type Handler struct {
	auth      *account.AuthService
	bootstrap *account.BootstrapService
	profiles  *account.ProfileService
	orgs      *account.OrganizationService
	analytics *account.AnalyticsService
	audit     *account.AuditService
}

func NewHandler(
	auth *account.AuthService,
	bootstrap *account.BootstrapService,
	profiles *account.ProfileService,
	orgs *account.OrganizationService,
	analytics *account.AnalyticsService,
	audit *account.AuditService,
) *Handler {
	return &Handler{
		auth:      auth,
		bootstrap: bootstrap,
		profiles:  profiles,
		orgs:      orgs,
		analytics: analytics,
		audit:     audit,
	}
}

// ---------- Request/Response types ----------

type tokenRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	Scope string `json:"scope,omitempty"` // "global" or "local" (default)
}

type recoverRequest struct {
	Email    string `json:"email"`
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

type signupResponse struct {
	*account.Session
	Organization *account.Organization `json:"organization,omitempty"`
}

// ---------- Handlers ----------

// Signup handles POST /auth/v1/signup. Principal creation is the one step
// that may fail the request; organization creation and profile bootstrap are
// best effort and repaired later if they degrade.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req account.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	ctx := r.Context()

	session, err := h.auth.SignUp(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	principal := session.User

	// The reserved identity never founds an organization; its profile shape
	// is owned by reconciliation.
	var org *account.Organization
	if req.Organization != nil && !h.bootstrap.IsSuperAdminEmail(principal.Email) {
		org, err = h.orgs.Create(ctx, *req.Organization)
		if err != nil {
			// The account exists and the session is valid; the caller can
			// retry organization creation separately.
			slog.Warn("organization creation during signup failed",
				"email", principal.Email, "error", err)
			org = nil
		}
	}

	seed := account.ProfileSeed{
		PrincipalID:   principal.ID,
		Email:         principal.Email,
		FirstName:     req.Data["first_name"],
		LastName:      req.Data["last_name"],
		EmailVerified: principal.EmailConfirmedAt != nil,
	}
	if org != nil {
		seed.OrganizationID = &org.ID
		seed.CreatedOrganization = true
	}
	if result := h.bootstrap.EnsureProfile(ctx, seed); result.Status == account.BootstrapDegraded {
		slog.Warn("profile bootstrap degraded during signup",
			"principal_id", principal.ID, "error", result.Err)
	}

	h.analytics.Record(ctx, seed.OrganizationID, account.MetricUserSignup, 1, nil)
	if org != nil {
		h.analytics.Record(ctx, &org.ID, account.MetricOrgCreated, 1, nil)
	}
	h.audit.Log(ctx, &principal.ID, "auth.signup", "principal", principal.ID, r, nil)

	writeJSON(w, http.StatusOK, signupResponse{Session: session, Organization: org})
}

// Token handles POST /auth/v1/token?grant_type=password|refresh_token.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	ctx := r.Context()
	switch r.URL.Query().Get("grant_type") {
	case "password":
		session, err := h.auth.SignIn(ctx, req.Email, req.Password)
		if err != nil {
			writeError(w, err)
			return
		}
		h.analytics.Record(ctx, nil, account.MetricUserLogin, 1, nil)
		h.audit.Log(ctx, &session.User.ID, "auth.signin", "principal", session.User.ID, r, nil)
		writeJSON(w, http.StatusOK, session)
	case "refresh_token":
		session, err := h.auth.RefreshSession(ctx, req.RefreshToken)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	default:
		writeError(w, apperr.Validation("unsupported grant_type"))
	}
}

// Logout handles POST /auth/v1/logout. The global scope signs out every
// device; the default revokes only the presented session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	principalID := middleware.GetPrincipalID(r)

	var req logoutRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	ctx := r.Context()
	var err error
	if req.Scope == "global" {
		err = h.auth.SignOut(ctx, principalID)
	} else if sessionID := middleware.GetSessionID(r); sessionID != "" {
		err = h.auth.SignOutSession(ctx, sessionID)
	} else {
		err = h.auth.SignOut(ctx, principalID)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	h.audit.Log(ctx, &principalID, "auth.signout", "principal", principalID, r, nil)
	w.WriteHeader(http.StatusNoContent)
}

// Recover handles POST /auth/v1/recover. Without a token it issues one;
// with a token and password it completes the reset. The issuing path always
// returns 200 so the endpoint cannot confirm which emails exist.
func (h *Handler) Recover(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	ctx := r.Context()
	if req.Token != "" {
		if err := h.auth.ConfirmRecovery(ctx, req.Token, req.Password); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
		return
	}

	token, err := h.auth.Recover(ctx, req.Email)
	if err != nil && apperr.KindOf(err) == apperr.KindValidation {
		writeError(w, err)
		return
	}
	if err != nil {
		slog.Error("recovery issue failed", "error", err)
	} else if token != "" {
		// Delivery is out of scope; operators pick tokens up from the log.
		slog.Info("recovery token issued", "email", req.Email, "token", token)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "recovery email sent if the account exists"})
}

// GetUser handles GET /auth/v1/user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	principal, err := h.auth.GetPrincipal(r.Context(), middleware.GetPrincipalID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, principal)
}

// UpdateUser handles PUT /auth/v1/user.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req account.UpdatePrincipalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	principalID := middleware.GetPrincipalID(r)
	principal, err := h.auth.UpdatePrincipal(r.Context(), principalID, req)
	if err != nil {
		writeError(w, err)
		return
	}

	h.audit.Log(r.Context(), &principalID, "auth.update", "principal", principalID, r, nil)
	writeJSON(w, http.StatusOK, principal)
}

// GetProfile handles GET /auth/v1/profile: the caller's own profile row,
// with lazy repair if bootstrap previously degraded.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.GetCurrent(r.Context(), middleware.GetPrincipalID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// UpdateProfile handles PUT /auth/v1/profile.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req account.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	principalID := middleware.GetPrincipalID(r)
	profile, err := h.profiles.UpdateSelf(r.Context(), principalID, middleware.GetEmail(r), req)
	if err != nil {
		writeError(w, err)
		return
	}

	h.audit.Log(r.Context(), &principalID, "profile.update", "profile", principalID, r, nil)
	writeJSON(w, http.StatusOK, profile)
}

// ---------- Internal helpers ----------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		slog.Error("unclassified handler error", "error", err)
	}
	writeJSON(w, apperr.HTTPStatus(err), map[string]interface{}{
		"error":             apperr.Message(err),
		"error_description": apperr.Message(err),
	})
}
