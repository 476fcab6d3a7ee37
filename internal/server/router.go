package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wealthjourneyunveiled/WorkflowGene/internal/account"
	apiAuth "github.com/wealthjourneyunveiled/WorkflowGene/internal/api/auth"
	apiRest "github.com/wealthjourneyunveiled/WorkflowGene/internal/api/rest"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/apperr"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/config"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/middleware"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/policy"
)

// Server wires the HTTP surface: the auth facade, the RLS-backed data API
// and the admin endpoints, each behind its middleware chain.
type Server struct {
	mux         *http.ServeMux
	cfg         *config.Config
	db          *pgxpool.Pool
	profiles    *account.ProfileService
	admin       *account.AdminService
	analytics   *account.AnalyticsService
	audit       *account.AuditService
	export      *account.ExportService
	authFacade  *apiAuth.Handler
	restAPI     *apiRest.Handler
	sessionAuth *middleware.Auth
	apiKey      *middleware.APIKey
	authLimiter *middleware.RateLimiter
	apiLimiter  *middleware.RateLimiter
	corsOrigins map[string]bool
}

func New(
	cfg *config.Config,
	db *pgxpool.Pool,
	auth *account.AuthService,
	bootstrap *account.BootstrapService,
	profiles *account.ProfileService,
	orgs *account.OrganizationService,
	analytics *account.AnalyticsService,
	audit *account.AuditService,
	admin *account.AdminService,
	export *account.ExportService,
) *Server {
	s := &Server{
		mux:         http.NewServeMux(),
		cfg:         cfg,
		db:          db,
		profiles:    profiles,
		admin:       admin,
		analytics:   analytics,
		audit:       audit,
		export:      export,
		authFacade:  apiAuth.NewHandler(auth, bootstrap, profiles, orgs, analytics, audit),
		restAPI:     apiRest.NewHandler(db, cfg),
		sessionAuth: middleware.NewAuth(auth),
		apiKey:      middleware.NewAPIKey(cfg, auth),
		authLimiter: middleware.NewRateLimiter(cfg.AuthRateLimit, cfg.TrustProxy),
		apiLimiter:  middleware.NewRateLimiter(cfg.APIRateLimit, cfg.TrustProxy),
		corsOrigins: make(map[string]bool),
	}
	for _, o := range cfg.Origins() {
		s.corsOrigins[o] = true
	}

	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.securityHeaders(s.cors(s.mux))
}

// securityHeaders adds security headers to every response.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		if s.cfg.IsProduction() && (r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https") {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// maxBody limits request body size to prevent DoS via large payloads.
func maxBody(next http.Handler, maxBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerRoutes() {
	// Health check with DB ping
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": "database unreachable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Auth facade. Signup, token and recovery are unauthenticated and get the
	// stricter limiter; the rest require a session.
	s.mux.Handle("POST /auth/v1/signup", s.authLimiter.Middleware(maxBody(http.HandlerFunc(s.authFacade.Signup), 1<<20)))
	s.mux.Handle("POST /auth/v1/token", s.authLimiter.Middleware(maxBody(http.HandlerFunc(s.authFacade.Token), 1<<20)))
	s.mux.Handle("POST /auth/v1/recover", s.authLimiter.Middleware(maxBody(http.HandlerFunc(s.authFacade.Recover), 1<<20)))
	s.mux.Handle("POST /auth/v1/logout", s.apiLimiter.Middleware(s.sessionAuth.Middleware(maxBody(http.HandlerFunc(s.authFacade.Logout), 1<<20))))
	s.mux.Handle("GET /auth/v1/user", s.apiLimiter.Middleware(s.sessionAuth.Middleware(http.HandlerFunc(s.authFacade.GetUser))))
	s.mux.Handle("PUT /auth/v1/user", s.apiLimiter.Middleware(s.sessionAuth.Middleware(maxBody(http.HandlerFunc(s.authFacade.UpdateUser), 1<<20))))
	s.mux.Handle("GET /auth/v1/profile", s.apiLimiter.Middleware(s.sessionAuth.Middleware(http.HandlerFunc(s.authFacade.GetProfile))))
	s.mux.Handle("PUT /auth/v1/profile", s.apiLimiter.Middleware(s.sessionAuth.Middleware(maxBody(http.HandlerFunc(s.authFacade.UpdateProfile), 1<<20))))

	// Data API: apikey resolves the database role, row policies do the rest.
	s.mux.Handle("/rest/v1/", s.apiLimiter.Middleware(s.apiKey.Middleware(maxBody(http.HandlerFunc(s.restAPI.HandleTable), 1<<20))))

	// Admin surface (session required; per-operation policy checks inside)
	s.mux.Handle("GET /admin/v1/profiles", s.apiLimiter.Middleware(s.sessionAuth.Middleware(http.HandlerFunc(s.handleListProfiles))))
	s.mux.Handle("PUT /admin/v1/profiles/{id}/role", s.apiLimiter.Middleware(s.sessionAuth.Middleware(maxBody(http.HandlerFunc(s.handleChangeRole), 1<<20))))
	s.mux.Handle("DELETE /admin/v1/profiles/{id}", s.apiLimiter.Middleware(s.sessionAuth.Middleware(http.HandlerFunc(s.handleDeactivate))))
	s.mux.Handle("POST /admin/v1/members", s.apiLimiter.Middleware(s.sessionAuth.Middleware(maxBody(http.HandlerFunc(s.handleCreateMember), 1<<20))))
	s.mux.Handle("GET /admin/v1/analytics", s.apiLimiter.Middleware(s.sessionAuth.Middleware(http.HandlerFunc(s.handleAnalyticsSummary))))
	s.mux.Handle("POST /admin/v1/export/run", s.apiLimiter.Middleware(s.sessionAuth.Middleware(http.HandlerFunc(s.handleRunExport))))
}

// ---------- Admin handlers ----------

func (s *Server) actor(r *http.Request) (policy.Actor, error) {
	return s.profiles.ActorFor(r.Context(), middleware.GetPrincipalID(r))
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	result, err := s.admin.ListProfiles(r.Context(), actor, page, perPage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	targetID := r.PathValue("id")
	profile, err := s.admin.ChangeRole(r.Context(), actor, targetID, req.Role)
	if err != nil {
		writeError(w, err)
		return
	}

	s.audit.Log(r.Context(), &actor.ID, "admin.change_role", "profile", targetID, r,
		map[string]interface{}{"role": req.Role})
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeError(w, err)
		return
	}

	targetID := r.PathValue("id")
	if err := s.admin.Deactivate(r.Context(), actor, targetID); err != nil {
		writeError(w, err)
		return
	}

	s.audit.Log(r.Context(), &actor.ID, "admin.deactivate", "profile", targetID, r, nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req account.CreateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	member, err := s.admin.CreateMember(r.Context(), actor, req)
	if err != nil {
		writeError(w, err)
		return
	}

	s.audit.Log(r.Context(), &actor.ID, "admin.create_member", "profile", member.Profile.ID, r,
		map[string]interface{}{"email": member.Profile.Email})
	writeJSON(w, http.StatusCreated, member)
}

func (s *Server) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeError(w, err)
		return
	}

	summary, err := s.analytics.Summary(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleRunExport(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if actor.Role != policy.RoleSuperAdmin {
		writeError(w, apperr.Authorization("only the super admin may trigger an export"))
		return
	}

	report, err := s.export.Run(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	s.audit.Log(r.Context(), &actor.ID, "admin.export_run", "export", "", r, nil)
	writeJSON(w, http.StatusOK, report)
}

// ---------- Helpers ----------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.HTTPStatus(err), map[string]string{"error": apperr.Message(err)})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Only allow whitelisted origins with credentials
		if origin != "" && s.corsOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			// Unknown origin: allowed without credentials so no cookies flow
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}

		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{
			"Authorization", "Content-Type", "apikey", "X-Client-Info",
			"Accept", "Prefer", "Range",
		}, ", "))
		w.Header().Set("Access-Control-Expose-Headers", "Content-Range, X-Total-Count")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
