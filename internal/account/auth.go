package account

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/wealthjourneyunveiled/WorkflowGene/internal/apperr"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/config"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/database"
)

const tokenIssuer = "workflowgene"

// AuthService is the principal directory: it owns the auth.principals,
// auth.sessions and auth.refresh_tokens tables and everything credential
// shaped. Profile rows are the ProfileService's problem; the two meet in the
// bootstrap flow.
type AuthService struct {
	db            *pgxpool.Pool
	jwtSecret     []byte
	jwtExpiry     time.Duration
	autoconfirm   bool
	passwordMin   int
	loginAttempts map[string]*loginAttempt
	attemptsMu    sync.Mutex
}

type loginAttempt struct {
	count    int
	lockedAt time.Time
}

func NewAuthService(db *pgxpool.Pool, cfg *config.Config) *AuthService {
	return &AuthService{
		db:            db,
		jwtSecret:     []byte(cfg.JWTSecret),
		jwtExpiry:     time.Duration(cfg.JWTExpiry) * time.Second,
		autoconfirm:   cfg.Autoconfirm,
		passwordMin:   cfg.PasswordMinLength,
		loginAttempts: make(map[string]*loginAttempt),
	}
}

// Principal is the auth-side identity. It carries no role or organization;
// those live on the profile row keyed by the same id.
type Principal struct {
	ID               string            `json:"id"`
	Email            string            `json:"email"`
	EmailConfirmedAt *time.Time        `json:"email_confirmed_at,omitempty"`
	LastSignInAt     *time.Time        `json:"last_sign_in_at,omitempty"`
	UserMetadata     map[string]string `json:"user_metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Session is the wire shape clients receive after signup, signin and
// refresh. Field names follow the GoTrue session object so existing
// supabase-js clients keep working unchanged.
type Session struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	RefreshToken string    `json:"refresh_token"`
	User         Principal `json:"user"`
}

// AccessClaims is the JWT payload for authenticated sessions.
type AccessClaims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

type SignupRequest struct {
	Email        string              `json:"email"`
	Password     string              `json:"password"`
	Data         map[string]string   `json:"data,omitempty"`
	Organization *OrganizationSignup `json:"organization,omitempty"`
}

// OrganizationSignup is the optional organization block a signup may carry.
// When present the caller is made org_admin of the new organization.
type OrganizationSignup struct {
	Name        string `json:"name"`
	Industry    string `json:"industry,omitempty"`
	CompanySize string `json:"company_size,omitempty"`
}

// generateSecureToken returns n random bytes hex encoded.
func generateSecureToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// SignUp creates a principal and opens its first session. Profile creation
// is the caller's next step via the bootstrap service; a failure there must
// not undo the principal, so the two are deliberately separate transactions.
func (s *AuthService) SignUp(ctx context.Context, req SignupRequest) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperr.Validation("a valid email is required")
	}
	if len(req.Password) < s.passwordMin {
		return nil, apperr.Validation(fmt.Sprintf("password must be at least %d characters", s.passwordMin))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	metadata := req.Data
	if metadata == nil {
		metadata = map[string]string{}
	}
	rawMeta, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	var confirmedAt *time.Time
	if s.autoconfirm {
		now := time.Now()
		confirmedAt = &now
	}

	var principal Principal
	principal.Email = email
	principal.UserMetadata = metadata
	err = s.db.QueryRow(ctx, `
		INSERT INTO auth.principals (email, encrypted_password, email_confirmed_at, raw_user_meta_data)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email_confirmed_at, created_at, updated_at
	`, email, string(hash), confirmedAt, rawMeta).Scan(
		&principal.ID, &principal.EmailConfirmedAt, &principal.CreatedAt, &principal.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Conflict("email already registered")
		}
		return nil, apperr.Wrap(apperr.KindTransientStore, "signup temporarily unavailable", err)
	}

	return s.mintSession(ctx, principal)
}

// CreatePrincipal inserts a principal directly, for admin-provisioned
// members. The account is created email-confirmed; the member signs in with
// the temporary password the admin hands over.
func (s *AuthService) CreatePrincipal(ctx context.Context, email, password string, metadata map[string]string) (*Principal, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperr.Validation("a valid email is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	rawMeta, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	var principal Principal
	principal.Email = email
	principal.UserMetadata = metadata
	err = s.db.QueryRow(ctx, `
		INSERT INTO auth.principals (email, encrypted_password, email_confirmed_at, raw_user_meta_data)
		VALUES ($1, $2, NOW(), $3)
		RETURNING id, email_confirmed_at, created_at, updated_at
	`, email, string(hash), rawMeta).Scan(
		&principal.ID, &principal.EmailConfirmedAt, &principal.CreatedAt, &principal.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Conflict("email already registered")
		}
		return nil, apperr.Wrap(apperr.KindTransientStore, "member creation temporarily unavailable", err)
	}
	return &principal, nil
}

// dummyHash keeps the password comparison on the not-found path so response
// timing does not reveal whether an email is registered.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("timing-safe-dummy-password-placeholder"), 12)

// SignIn authenticates by email and password. Five consecutive failures
// lock the email out for fifteen minutes.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.attemptsMu.Lock()
	attempt := s.loginAttempts[email]
	if attempt != nil && attempt.count >= 5 {
		if time.Since(attempt.lockedAt) < 15*time.Minute {
			s.attemptsMu.Unlock()
			bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, apperr.RateLimited("account temporarily locked, try again later")
		}
		delete(s.loginAttempts, email)
	}
	s.attemptsMu.Unlock()

	var principal Principal
	var passwordHash string
	var rawMeta []byte
	var active *bool
	err := s.db.QueryRow(ctx, `
		SELECT p.id, p.email, p.encrypted_password, p.email_confirmed_at,
		       p.last_sign_in_at, p.raw_user_meta_data, p.created_at, p.updated_at,
		       pr.is_active
		FROM auth.principals p
		LEFT JOIN public.profiles pr ON pr.id = p.id
		WHERE p.email = $1
	`, email).Scan(&principal.ID, &principal.Email, &passwordHash, &principal.EmailConfirmedAt,
		&principal.LastSignInAt, &rawMeta, &principal.CreatedAt, &principal.UpdatedAt, &active)
	if err != nil {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Authentication("invalid credentials")
		}
		return nil, apperr.Wrap(apperr.KindTransientStore, "signin temporarily unavailable", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		s.recordFailedAttempt(email)
		return nil, apperr.Authentication("invalid credentials")
	}

	s.attemptsMu.Lock()
	delete(s.loginAttempts, email)
	s.attemptsMu.Unlock()

	// A deactivated profile refuses authentication even with valid
	// credentials. A missing profile row is fine; bootstrap repairs it.
	if active != nil && !*active {
		return nil, apperr.Authentication("account is deactivated")
	}

	if len(rawMeta) > 0 {
		_ = json.Unmarshal(rawMeta, &principal.UserMetadata)
	}

	return s.mintSession(ctx, principal)
}

func (s *AuthService) recordFailedAttempt(email string) {
	s.attemptsMu.Lock()
	defer s.attemptsMu.Unlock()
	a := s.loginAttempts[email]
	if a == nil {
		a = &loginAttempt{}
		s.loginAttempts[email] = a
	}
	a.count++
	if a.count >= 5 {
		a.lockedAt = time.Now()
	}
}

// mintSession opens a session row, issues the first refresh token of its
// chain and signs an access token.
func (s *AuthService) mintSession(ctx context.Context, principal Principal) (*Session, error) {
	refreshToken, err := generateSecureToken(32)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "session temporarily unavailable", err)
	}
	defer tx.Rollback(ctx)

	var sessionID string
	err = tx.QueryRow(ctx, `
		INSERT INTO auth.sessions (principal_id) VALUES ($1) RETURNING id
	`, principal.ID).Scan(&sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "session temporarily unavailable", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO auth.refresh_tokens (token, principal_id, session_id)
		VALUES ($1, $2, $3)
	`, refreshToken, principal.ID, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "session temporarily unavailable", err)
	}

	now := time.Now()
	_, err = tx.Exec(ctx, `
		UPDATE auth.principals SET last_sign_in_at = $1, updated_at = $1 WHERE id = $2
	`, now, principal.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "session temporarily unavailable", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "session temporarily unavailable", err)
	}

	principal.LastSignInAt = &now
	accessToken, err := s.generateAccessToken(principal.ID, principal.Email, sessionID)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	return &Session{
		AccessToken:  accessToken,
		TokenType:    "bearer",
		ExpiresIn:    int(s.jwtExpiry.Seconds()),
		RefreshToken: refreshToken,
		User:         principal,
	}, nil
}

// RefreshSession rotates a refresh token. Presenting a token that was
// already rotated is treated as theft: the whole session family is revoked
// and the session deleted.
func (s *AuthService) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, apperr.Validation("refresh_token is required")
	}

	var principalID string
	var sessionID *string
	var revoked bool
	var expiresAt time.Time
	err := s.db.QueryRow(ctx, `
		SELECT principal_id, session_id, revoked, expires_at
		FROM auth.refresh_tokens WHERE token = $1
	`, refreshToken).Scan(&principalID, &sessionID, &revoked, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Authentication("invalid refresh token")
		}
		return nil, apperr.Wrap(apperr.KindTransientStore, "refresh temporarily unavailable", err)
	}

	if revoked {
		if sessionID != nil {
			// Reuse of a rotated token. Kill the family.
			_, _ = s.db.Exec(ctx, `
				UPDATE auth.refresh_tokens SET revoked = TRUE, updated_at = NOW() WHERE session_id = $1
			`, *sessionID)
			_, _ = s.db.Exec(ctx, `DELETE FROM auth.sessions WHERE id = $1`, *sessionID)
		}
		return nil, apperr.Authentication("refresh token has been revoked")
	}
	if time.Now().After(expiresAt) {
		return nil, apperr.Authentication("refresh token expired")
	}

	var principal Principal
	var rawMeta []byte
	var active *bool
	err = s.db.QueryRow(ctx, `
		SELECT p.id, p.email, p.email_confirmed_at, p.last_sign_in_at,
		       p.raw_user_meta_data, p.created_at, p.updated_at, pr.is_active
		FROM auth.principals p
		LEFT JOIN public.profiles pr ON pr.id = p.id
		WHERE p.id = $1
	`, principalID).Scan(&principal.ID, &principal.Email, &principal.EmailConfirmedAt,
		&principal.LastSignInAt, &rawMeta, &principal.CreatedAt, &principal.UpdatedAt, &active)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "refresh temporarily unavailable", err)
	}
	if active != nil && !*active {
		return nil, apperr.Authentication("account is deactivated")
	}
	if len(rawMeta) > 0 {
		_ = json.Unmarshal(rawMeta, &principal.UserMetadata)
	}

	newToken, err := generateSecureToken(32)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "refresh temporarily unavailable", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE auth.refresh_tokens SET revoked = TRUE, updated_at = NOW() WHERE token = $1
	`, refreshToken)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "refresh temporarily unavailable", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO auth.refresh_tokens (token, principal_id, session_id, parent)
		VALUES ($1, $2, $3, $4)
	`, newToken, principalID, sessionID, refreshToken)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "refresh temporarily unavailable", err)
	}
	if sessionID != nil {
		_, err = tx.Exec(ctx, `UPDATE auth.sessions SET updated_at = NOW() WHERE id = $1`, *sessionID)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindTransientStore, "refresh temporarily unavailable", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "refresh temporarily unavailable", err)
	}

	sid := ""
	if sessionID != nil {
		sid = *sessionID
	}
	accessToken, err := s.generateAccessToken(principal.ID, principal.Email, sid)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	return &Session{
		AccessToken:  accessToken,
		TokenType:    "bearer",
		ExpiresIn:    int(s.jwtExpiry.Seconds()),
		RefreshToken: newToken,
		User:         principal,
	}, nil
}

// SignOut deletes every session for the principal. Refresh tokens go with
// them through the cascade.
func (s *AuthService) SignOut(ctx context.Context, principalID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM auth.sessions WHERE principal_id = $1`, principalID)
	if err != nil {
		return apperr.Wrap(apperr.KindTransientStore, "signout temporarily unavailable", err)
	}
	return nil
}

// SignOutSession deletes one session, leaving the principal's other devices
// signed in.
func (s *AuthService) SignOutSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return apperr.Validation("session id is required")
	}
	_, err := s.db.Exec(ctx, `DELETE FROM auth.sessions WHERE id = $1`, sessionID)
	if err != nil {
		return apperr.Wrap(apperr.KindTransientStore, "signout temporarily unavailable", err)
	}
	return nil
}

// Recover stores a recovery token for the email. The returned token is for
// the server to log or hand to a mailer; an unknown email returns empty
// without error so the endpoint cannot be used to enumerate accounts.
func (s *AuthService) Recover(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperr.Validation("email is required")
	}

	token, err := generateSecureToken(24)
	if err != nil {
		return "", err
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE auth.principals
		SET recovery_token = $1, recovery_sent_at = NOW(), updated_at = NOW()
		WHERE email = $2
	`, token, email)
	if err != nil {
		return "", apperr.Wrap(apperr.KindTransientStore, "recovery temporarily unavailable", err)
	}
	if tag.RowsAffected() == 0 {
		return "", nil
	}
	return token, nil
}

// ConfirmRecovery exchanges a recovery token for a fresh password. Tokens
// are single use and expire an hour after Recover issued them.
func (s *AuthService) ConfirmRecovery(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return apperr.Validation("recovery token is required")
	}
	if len(newPassword) < s.passwordMin {
		return apperr.Validation(fmt.Sprintf("password must be at least %d characters", s.passwordMin))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), 12)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE auth.principals
		SET encrypted_password = $1, recovery_token = '', recovery_sent_at = NULL, updated_at = NOW()
		WHERE recovery_token = $2 AND recovery_token <> ''
		  AND recovery_sent_at > NOW() - INTERVAL '1 hour'
	`, string(hash), token)
	if err != nil {
		return apperr.Wrap(apperr.KindTransientStore, "recovery temporarily unavailable", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Authentication("invalid or expired recovery token")
	}
	return nil
}

// GetPrincipal loads the auth-side identity by id.
func (s *AuthService) GetPrincipal(ctx context.Context, principalID string) (*Principal, error) {
	var principal Principal
	var rawMeta []byte
	err := s.db.QueryRow(ctx, `
		SELECT id, email, email_confirmed_at, last_sign_in_at, raw_user_meta_data, created_at, updated_at
		FROM auth.principals WHERE id = $1
	`, principalID).Scan(&principal.ID, &principal.Email, &principal.EmailConfirmedAt,
		&principal.LastSignInAt, &rawMeta, &principal.CreatedAt, &principal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("principal not found")
		}
		return nil, apperr.Wrap(apperr.KindTransientStore, "principal lookup failed", err)
	}
	if len(rawMeta) > 0 {
		_ = json.Unmarshal(rawMeta, &principal.UserMetadata)
	}
	return &principal, nil
}

type UpdatePrincipalRequest struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

// UpdatePrincipal changes the email or password of the authenticated
// principal. The profile email follows through bootstrap reconciliation on
// the next read.
func (s *AuthService) UpdatePrincipal(ctx context.Context, principalID string, req UpdatePrincipalRequest) (*Principal, error) {
	if req.Email == "" && req.Password == "" {
		return nil, apperr.Validation("nothing to update")
	}

	if req.Password != "" {
		if len(req.Password) < s.passwordMin {
			return nil, apperr.Validation(fmt.Sprintf("password must be at least %d characters", s.passwordMin))
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		_, err = s.db.Exec(ctx, `
			UPDATE auth.principals SET encrypted_password = $1, updated_at = NOW() WHERE id = $2
		`, string(hash), principalID)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindTransientStore, "update temporarily unavailable", err)
		}
	}

	if req.Email != "" {
		email := strings.ToLower(strings.TrimSpace(req.Email))
		if !strings.Contains(email, "@") {
			return nil, apperr.Validation("a valid email is required")
		}
		_, err := s.db.Exec(ctx, `
			UPDATE auth.principals SET email = $1, updated_at = NOW() WHERE id = $2
		`, email, principalID)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, apperr.Conflict("email already registered")
			}
			return nil, apperr.Wrap(apperr.KindTransientStore, "update temporarily unavailable", err)
		}
	}

	return s.GetPrincipal(ctx, principalID)
}

// ValidateToken verifies an access token and returns its claims.
func (s *AuthService) ValidateToken(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindAuthentication, "invalid or expired token", err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, apperr.Authentication("invalid token")
	}
	return claims, nil
}

// GenerateAPIKey signs a long-lived key JWT for the anon or service_role
// database role. Keys are minted at deploy time and distributed through
// configuration, not stored.
func (s *AuthService) GenerateAPIKey(role string) (string, error) {
	if role != database.RoleAnon && role != database.RoleService {
		return "", apperr.Validation("api key role must be anon or service_role")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"role": role,
		"iss":  tokenIssuer,
		"iat":  now.Unix(),
		"exp":  now.AddDate(10, 0, 0).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateAPIKey verifies a key JWT and returns the database role it carries.
func (s *AuthService) ValidateAPIKey(key string) (string, error) {
	token, err := jwt.Parse(key, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", apperr.Authentication("invalid api key")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", apperr.Authentication("invalid api key")
	}
	role, _ := claims["role"].(string)
	if role != database.RoleAnon && role != database.RoleService {
		return "", apperr.Authentication("invalid api key role")
	}
	return role, nil
}

func (s *AuthService) generateAccessToken(principalID, email, sessionID string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Email:     email,
		Role:      database.RoleAuthenticated,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			Audience:  jwt.ClaimStrings{database.RoleAuthenticated},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtExpiry)),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
