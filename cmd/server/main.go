package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wealthjourneyunveiled/WorkflowGene/internal/account"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/config"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/database"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/policy"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	slog.Info("Connecting to database")
	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	slog.Info("Connected to database")

	slog.Info("Running migrations")
	if err := database.RunMigrations(ctx, pool, database.Migrations()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Migrations complete")

	engine := policy.NewEngine(policy.DefaultRules()...)

	authService := account.NewAuthService(pool, cfg)
	bootstrapService := account.NewBootstrapService(pool, cfg)
	profileService := account.NewProfileService(pool, engine, bootstrapService)
	orgService := account.NewOrganizationService(pool, engine)
	analyticsService := account.NewAnalyticsService(pool, engine)
	auditService := account.NewAuditService(pool)
	adminService := account.NewAdminService(pool, engine, bootstrapService, authService)
	exportService := account.NewExportService(pool, cfg)

	// Derive the static api keys from the signing secret when none are
	// configured, so a fresh deployment is usable out of the box.
	if cfg.AnonKey == "" {
		if cfg.AnonKey, err = authService.GenerateAPIKey(database.RoleAnon); err != nil {
			log.Fatalf("Failed to generate anon key: %v", err)
		}
		slog.Info("Generated anon api key", "key", cfg.AnonKey)
	}
	if cfg.ServiceRoleKey == "" {
		if cfg.ServiceRoleKey, err = authService.GenerateAPIKey(database.RoleService); err != nil {
			log.Fatalf("Failed to generate service role key: %v", err)
		}
		slog.Info("Generated service role api key", "key", cfg.ServiceRoleKey)
	}

	// Converge the reserved identity before taking traffic.
	slog.Info("Reconciling super admin")
	if err := bootstrapService.ReconcileSuperAdmin(ctx); err != nil {
		log.Fatalf("Failed to reconcile super admin: %v", err)
	}

	scheduler := account.NewScheduler(bootstrapService, exportService)
	scheduler.Start()

	srv := server.New(cfg, pool,
		authService, bootstrapService, profileService, orgService,
		analyticsService, auditService, adminService, exportService)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("Shutting down")
		scheduler.Stop()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		httpServer.Shutdown(shutCtx)
		pool.Close()
	}()

	slog.Info("Server started", "host", cfg.Host, "port", cfg.Port)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
