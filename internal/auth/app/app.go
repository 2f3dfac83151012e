package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/bookshelf/internal/auth/http"
	"github.com/aussiebroadwan/bookshelf/internal/auth/service"
	"github.com/aussiebroadwan/bookshelf/internal/auth/store"
	"github.com/aussiebroadwan/bookshelf/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/bookshelf/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/bookshelf/pkg/cryptox"
	"github.com/aussiebroadwan/bookshelf/pkg/jwtx"
	"github.com/aussiebroadwan/bookshelf/pkg/slogx"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"

	serviceName = "auth-service"
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db     store.Store
	ring   *jwtx.SecretRing
	meters *sdkmetric.MeterProvider

	// Services
	authService         *service.AuthService
	accountService      *service.AccountService
	bootstrapService    *service.BootstrapService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: serviceName,
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Set pepper path for password hashing
	cryptox.SetPepperPath(app.cfg.PepperFile)
	if err := cryptox.LoadPepper(); err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}

	ctx := context.Background()

	if err := app.initSigning(); err != nil {
		return nil, err
	}

	meters, err := newMeterProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	app.meters = meters

	if err := app.initDatabase(ctx); err != nil {
		_ = meters.Shutdown(ctx)
		return nil, err
	}

	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		_ = meters.Shutdown(ctx)
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	// Start housekeeping service
	app.housekeepingService.Start()

	app.logger.Info("auth service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"driver", app.cfg.DatabaseDriver,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown and secret reloads
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

	for {
		select {
		case err := <-serverErrors:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil

		case sig := <-signals:
			if sig == syscall.SIGHUP {
				app.ReloadSigningSecret()
				continue
			}
			app.logger.Info("shutdown signal received", "signal", sig)

			// Perform graceful shutdown
			if err := app.Shutdown(); err != nil {
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}
			return nil
		}
	}
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the housekeeping service
	app.housekeepingService.Stop()

	// Flush pending metrics
	if err := app.meters.Shutdown(ctx); err != nil {
		app.logger.Warn("error flushing metrics", "error", err)
	}

	// Close database connection
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// ReloadSigningSecret re-reads the configuration and rotates the signing
// secret. Tokens signed with the previous secret stop verifying at once.
// A failed reload keeps the current secret.
func (app *Application) ReloadSigningSecret() {
	cfg, err := LoadConfig()
	if err != nil {
		app.logger.Error("secret reload: invalid configuration, keeping current secret", "error", err)
		return
	}

	secret, ephemeral, err := cfg.LoadSigningSecret()
	if err != nil {
		app.logger.Error("secret reload failed, keeping current secret", "error", err)
		return
	}
	if ephemeral {
		app.logger.Warn("secret reload: no secret configured, keeping the ephemeral secret")
		return
	}

	previous := app.ring.KID()
	if err := app.ring.Rotate(secret); err != nil {
		app.logger.Error("secret reload failed, keeping current secret", "error", err)
		return
	}
	if app.ring.KID() == previous {
		app.logger.Info("secret reload: secret unchanged", "kid", previous)
		return
	}
	app.logger.Warn("signing secret rotated; previously issued tokens are now invalid",
		"previous_kid", previous,
		"kid", app.ring.KID(),
	)
}

func (app *Application) initSigning() error {
	secret, ephemeral, err := app.cfg.LoadSigningSecret()
	if err != nil {
		return fmt.Errorf("failed to load signing secret: %w", err)
	}
	if ephemeral {
		app.logger.Warn("no signing secret configured; using an ephemeral secret, tokens will not survive a restart")
	}

	ring, err := jwtx.NewSecretRing(secret)
	if err != nil {
		return fmt.Errorf("failed to initialize signing secret: %w", err)
	}
	app.ring = ring
	app.logger.Info("signing secret loaded", "kid", ring.KID(), "alg", "HS256")
	return nil
}

// initDatabase opens the configured store and applies migrations
func (app *Application) initDatabase(ctx context.Context) error {
	var (
		db  store.Store
		err error
	)
	switch app.cfg.DatabaseDriver {
	case DriverPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		db, err = postgres.NewStore(connectCtx, app.cfg.DatabaseURL)
	default:
		db, err = sqlite.NewStore(sqlite.FileDSN(app.cfg.DatabaseFile))
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DatabaseDriver)
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() error {
	metrics, err := service.NewMetrics(app.meters.Meter(service.MeterName))
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	creds := &service.CredentialVerifier{}
	sessions := service.NewSessionStore(app.db.Sessions(), app.cfg.StoreTimeout)

	app.authService = &service.AuthService{
		Store:    app.db,
		Sessions: sessions,
		Codec: &service.TokenCodec{
			Signer: jwtx.NewSigner(app.ring),
			Verifier: jwtx.NewVerifier(app.ring, jwtx.VerifyOptions{
				Issuer: app.cfg.Issuer,
			}),
			Issuer: app.cfg.Issuer,
		},
		Credentials: creds,
		Guard: service.AccountGuard{Policy: service.LockoutPolicy{
			Threshold: app.cfg.LockoutThreshold,
			Duration:  app.cfg.LockoutDuration,
		}},
		Metrics:      metrics,
		AccessTTL:    app.cfg.AccessTTL,
		RefreshTTL:   app.cfg.RefreshTTL,
		StoreTimeout: app.cfg.StoreTimeout,
	}

	app.accountService = &service.AccountService{
		Store:        app.db,
		Credentials:  creds,
		StoreTimeout: app.cfg.StoreTimeout,
	}
	app.bootstrapService = &service.BootstrapService{
		Store:        app.db,
		Credentials:  creds,
		Token:        app.cfg.BootstrapToken,
		StoreTimeout: app.cfg.StoreTimeout,
	}

	app.housekeepingService = service.NewHousekeepingService(
		sessions,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.SessionRetention,
	)
	app.housekeepingService.Metrics = metrics

	if app.cfg.BootstrapToken != "" {
		app.logger.Info("bootstrap endpoint enabled")
	}
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.ring, BuildVersion, app.db, app.logger)

	// Wire services to router
	router.AuthService = app.authService
	router.AccountService = app.accountService
	router.BootstrapService = app.bootstrapService
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
