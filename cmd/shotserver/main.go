package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/adamscao/shotserver/internal/api"
	"github.com/adamscao/shotserver/internal/auth"
	"github.com/adamscao/shotserver/internal/config"
	"github.com/adamscao/shotserver/internal/db"
	"github.com/adamscao/shotserver/internal/db/repository"
	"github.com/adamscao/shotserver/internal/filestore"
	"github.com/adamscao/shotserver/internal/guard"
	"github.com/adamscao/shotserver/internal/logger"
	"github.com/adamscao/shotserver/internal/metrics"
	"github.com/adamscao/shotserver/internal/policy"
	"github.com/adamscao/shotserver/internal/service"
	"github.com/adamscao/shotserver/internal/session"
)

var (
	// Version information (set via ldflags)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const (
	shutdownTimeout = 15 * time.Second
	sweepInterval   = time.Minute
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "/etc/shotserver/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Screenshot Server\n")
		fmt.Printf("Version:    %s\n", Version)
		fmt.Printf("Commit:     %s\n", Commit)
		fmt.Printf("Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.IsDevelopment(),
	})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	log.Info().Str("version", Version).Str("commit", Commit).Msg("Starting screenshot server")

	if cfg.Session.SecretKey == "" {
		secret, err := auth.GenerateSecret()
		if err != nil {
			return err
		}
		cfg.Session.SecretKey = secret
		log.Warn().Msg("No session secret configured, using an ephemeral key; sessions will not survive a restart")
	}

	// Initialize database
	log.Info().Str("path", cfg.Database.Path).Msg("Opening database")
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	version, err := db.RunMigrations(database)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info().Uint("schema_version", version).Msg("Database migrations applied")

	files, err := filestore.NewOS(cfg.Storage.DataDir, filestore.Options{MaxUploadSize: cfg.Storage.MaxUploadSize})
	if err != nil {
		return fmt.Errorf("failed to open upload directory: %w", err)
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(database.DB)
	requestRepo := repository.NewRegistrationRepository(database.DB)
	auditRepo := repository.NewAuditRepository(database.DB)

	// Login hardening
	limiter := guard.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.GetRateLimitWindow())
	lockout := guard.NewLockoutGuard(
		guard.WithMaxAttempts(cfg.Security.MaxFailedAttempts),
		guard.WithWindow(cfg.GetLockoutWindow()),
		guard.WithBlacklistTTL(cfg.GetBlacklistTTL()),
	)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	// Services
	validator := policy.NewValidator()
	auditor := service.NewAuditor(auditRepo, log)
	authenticator := service.NewAuthenticator(userRepo, lockout, auditor, m, log)
	registration := service.NewRegistration(userRepo, requestRepo, files, validator, auditor, cfg.Security.BcryptCost, log)
	accounts := service.NewAccounts(userRepo, requestRepo, files, lockout, validator, auditor, cfg.Security.BcryptCost, log)

	sessions := session.NewManager(session.Options{
		SecretKey: []byte(cfg.Session.SecretKey),
		Name:      cfg.Session.Name,
		MaxAge:    cfg.GetSessionMaxAge(),
		Secure:    cfg.Session.Secure,
	})

	// Create HTTP server
	server, err := api.NewServer(api.Deps{
		Config:        cfg,
		Users:         userRepo,
		Sessions:      sessions,
		Limiter:       limiter,
		Files:         files,
		Auditor:       auditor,
		Authenticator: authenticator,
		Registration:  registration,
		Accounts:      accounts,
		Metrics:       m,
		Log:           log.With().Str("component", "http").Logger(),
	})
	if err != nil {
		return err
	}
	httpServer := server.HTTPServer()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweep(ctx, limiter, lockout)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.ListenAddr).Bool("tls", cfg.TLSEnabled()).Msg("Starting HTTP server")
		var err error
		if cfg.TLSEnabled() {
			err = httpServer.ListenAndServeTLS(cfg.Server.TLSCertPath, cfg.Server.TLSKeyPath)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal or a listener failure
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}

// sweep drops expired limiter and lockout state until ctx is done
func sweep(ctx context.Context, limiter *guard.RateLimiter, lockout *guard.LockoutGuard) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			limiter.Sweep(now)
			lockout.Sweep(now)
		}
	}
}
