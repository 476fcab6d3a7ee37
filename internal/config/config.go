package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/wealthjourneyunveiled/WorkflowGene/internal/apperr"
)

type Config struct {
	// Server
	Port        int
	Host        string
	Environment string

	// Postgres (superuser connection; runtime access is role-switched per request)
	DatabaseURL string

	// Signing secret for access tokens and api keys
	JWTSecret string
	JWTExpiry int // seconds

	// Static api keys. Derived from JWTSecret at startup when unset.
	AnonKey        string
	ServiceRoleKey string

	// Signup behavior
	Autoconfirm       bool
	PasswordMinLength int

	// Reserved super-admin identity. The email is the single source of truth
	// consumed by the bootstrap procedure and the policy layer; it is never
	// repeated as a literal elsewhere.
	SuperAdminEmail     string
	SuperAdminPassword  string
	SuperAdminFirstName string
	SuperAdminLastName  string

	// HTTP hardening
	AllowedOrigins string
	TrustProxy     bool
	AuthRateLimit  int // requests per minute per IP on credential routes
	APIRateLimit   int // requests per minute per IP elsewhere

	// Snapshot export (S3-compatible, optional)
	ExportS3Endpoint  string
	ExportS3Region    string
	ExportS3Bucket    string
	ExportS3AccessKey string
	ExportS3SecretKey string
	ExportS3Prefix    string
	ExportInterval    int // hours between runs
	ExportPassphrase  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnvInt("PORT", 3000),
		Host:                getEnv("HOST", "0.0.0.0"),
		Environment:         getEnv("ENVIRONMENT", "development"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		JWTExpiry:           getEnvInt("JWT_EXPIRY", 3600),
		AnonKey:             getEnv("ANON_KEY", ""),
		ServiceRoleKey:      getEnv("SERVICE_ROLE_KEY", ""),
		Autoconfirm:         getEnvBool("AUTOCONFIRM", true),
		PasswordMinLength:   getEnvInt("PASSWORD_MIN_LENGTH", 6),
		SuperAdminEmail:     strings.ToLower(strings.TrimSpace(getEnv("SUPER_ADMIN_EMAIL", ""))),
		SuperAdminPassword:  getEnv("SUPER_ADMIN_PASSWORD", ""),
		SuperAdminFirstName: getEnv("SUPER_ADMIN_FIRST_NAME", "Super"),
		SuperAdminLastName:  getEnv("SUPER_ADMIN_LAST_NAME", "Admin"),
		AllowedOrigins:      getEnv("ALLOWED_ORIGINS", ""),
		TrustProxy:          getEnvBool("TRUST_PROXY", false),
		AuthRateLimit:       getEnvInt("AUTH_RATE_LIMIT", 10),
		APIRateLimit:        getEnvInt("API_RATE_LIMIT", 120),
		ExportS3Endpoint:    getEnv("EXPORT_S3_ENDPOINT", ""),
		ExportS3Region:      getEnv("EXPORT_S3_REGION", "us-east-1"),
		ExportS3Bucket:      getEnv("EXPORT_S3_BUCKET", ""),
		ExportS3AccessKey:   getEnv("EXPORT_S3_ACCESS_KEY", ""),
		ExportS3SecretKey:   getEnv("EXPORT_S3_SECRET_KEY", ""),
		ExportS3Prefix:      getEnv("EXPORT_S3_PREFIX", "snapshots"),
		ExportInterval:      getEnvInt("EXPORT_INTERVAL_HOURS", 24),
		ExportPassphrase:    getEnv("EXPORT_PASSPHRASE", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, apperr.Configuration("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, apperr.Configuration("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, apperr.Configuration("JWT_SECRET must be at least 32 characters")
	}
	if cfg.SuperAdminEmail == "" {
		return nil, apperr.Configuration("SUPER_ADMIN_EMAIL is required")
	}
	if !strings.Contains(cfg.SuperAdminEmail, "@") {
		return nil, apperr.Configuration("SUPER_ADMIN_EMAIL must be a valid email address")
	}
	if cfg.SuperAdminPassword != "" && len(cfg.SuperAdminPassword) < 8 {
		return nil, apperr.Configuration("SUPER_ADMIN_PASSWORD must be at least 8 characters")
	}

	// Export settings: fully configured or fully empty
	anyExport := cfg.ExportS3Endpoint != "" || cfg.ExportS3Bucket != "" ||
		cfg.ExportS3AccessKey != "" || cfg.ExportS3SecretKey != ""
	if anyExport && !cfg.ExportEnabled() {
		return nil, apperr.Configuration("EXPORT_S3_ENDPOINT, EXPORT_S3_BUCKET, EXPORT_S3_ACCESS_KEY and EXPORT_S3_SECRET_KEY must all be set to enable export")
	}

	return cfg, nil
}

// ExportEnabled reports whether the snapshot export target is fully configured.
func (c *Config) ExportEnabled() bool {
	return c.ExportS3Endpoint != "" && c.ExportS3Bucket != "" &&
		c.ExportS3AccessKey != "" && c.ExportS3SecretKey != ""
}

// IsProduction controls HSTS and cookie hardening.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Origins returns the parsed CORS whitelist.
func (c *Config) Origins() []string {
	if c.AllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "true" || v == "1"
}

// String renders the config for startup logging with secrets masked.
func (c *Config) String() string {
	return fmt.Sprintf("port=%d env=%s autoconfirm=%t export=%t super_admin=%s",
		c.Port, c.Environment, c.Autoconfirm, c.ExportEnabled(), c.SuperAdminEmail)
}
