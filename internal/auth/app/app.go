package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saatphere/saatphere/internal/auth/audit"
	httpapi "github.com/saatphere/saatphere/internal/auth/http"
	"github.com/saatphere/saatphere/internal/auth/service"
	"github.com/saatphere/saatphere/internal/auth/session"
	"github.com/saatphere/saatphere/internal/auth/store"
	"github.com/saatphere/saatphere/internal/auth/store/drivers/sqlite"
	"github.com/saatphere/saatphere/pkg/cryptox"
	"github.com/saatphere/saatphere/pkg/jwtx"
	"github.com/saatphere/saatphere/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       store.Store
	sessions session.Store
	codec    *jwtx.Codec

	tokenService        *service.TokenService
	loginService        *service.LoginService
	registrationService *service.RegistrationService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized. A missing
// signing key is a configuration error: the service refuses to start rather
// than mint unverifiable tokens.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "auth-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if cfg.SigningKey == "" {
		return nil, fmt.Errorf("%w: AUTH_SIGNING_KEY is required", service.ErrConfiguration)
	}
	codec, err := jwtx.NewCodec([]byte(cfg.SigningKey), cfg.ClockSkew)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrConfiguration, err)
	}
	app.codec = codec

	cryptox.SetPepperPath(cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initSessions(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()

	if cfg.BootstrapAdminUser != "" && cfg.BootstrapAdminPassword != "" {
		ctx := slogx.WithContext(context.Background(), app.logger)
		if err := app.registrationService.EnsureAdmin(ctx, cfg.BootstrapAdminUser, cfg.BootstrapAdminPassword); err != nil {
			return nil, fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	app.initHTTP()
	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"session_backend", app.cfg.SessionBackend,
		"single_session", app.cfg.SingleSession,
		"device_binding", app.cfg.DeviceBinding,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.sessions.Close(); err != nil {
		app.logger.Error("error closing session backend", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initSessions() error {
	switch app.cfg.SessionBackend {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		backend, err := session.NewRedis(ctx, app.cfg.RedisAddr, app.cfg.RedisPassword, app.cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("failed to connect session backend: %w", err)
		}
		app.sessions = backend
		app.logger.Info("session backend connected", "backend", "redis", "addr", app.cfg.RedisAddr)

	case "memory", "":
		app.sessions = session.NewMemory()
		app.logger.Info("session backend connected", "backend", "memory")

	default:
		return fmt.Errorf("%w: unknown session backend %q", service.ErrConfiguration, app.cfg.SessionBackend)
	}
	return nil
}

func (app *Application) initServices() {
	recorder := audit.NewRecorder(app.db.Audit())

	app.tokenService = &service.TokenService{
		Codec:         app.codec,
		Sessions:      app.sessions,
		Store:         app.db,
		Audit:         recorder,
		Issuer:        app.cfg.Issuer,
		Audience:      app.cfg.Audience,
		AccessTTL:     app.cfg.AccessTTL,
		RefreshTTL:    app.cfg.RefreshTTL,
		SingleSession: app.cfg.SingleSession,
		DeviceBinding: app.cfg.DeviceBinding,
		FailOpen:      app.cfg.FailOpen,
		StoreTimeout:  app.cfg.StoreTimeout,
	}

	app.loginService = &service.LoginService{
		Store:  app.db,
		Tokens: app.tokenService,
		Audit:  recorder,
	}

	app.registrationService = &service.RegistrationService{
		Store: app.db,
		Audit: recorder,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.AuditRetention,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		BuildVersion,
		app.cfg.CookieName,
		app.cfg.AccessTTL,
		app.db,
		app.sessions,
		app.logger,
	)

	router.TokenService = app.tokenService
	router.LoginService = app.loginService
	router.RegistrationService = app.registrationService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
