package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/phrazzld/postpilot/internal/api"
	"github.com/phrazzld/postpilot/internal/auth"
	"github.com/phrazzld/postpilot/internal/config"
	"github.com/phrazzld/postpilot/internal/device"
	"github.com/phrazzld/postpilot/internal/domain"
	"github.com/phrazzld/postpilot/internal/generation"
	"github.com/phrazzld/postpilot/internal/notify"
	"github.com/phrazzld/postpilot/internal/platform/bridge"
	"github.com/phrazzld/postpilot/internal/platform/gemini"
	"github.com/phrazzld/postpilot/internal/platform/memory"
	"github.com/phrazzld/postpilot/internal/platform/postgres"
	"github.com/phrazzld/postpilot/internal/platform/push"
	"github.com/phrazzld/postpilot/internal/publishing"
	"github.com/phrazzld/postpilot/internal/relay"
	"github.com/phrazzld/postpilot/internal/store"
	"github.com/phrazzld/postpilot/internal/task"
	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 10 * time.Second

// appStore is everything the server keeps in storage.
type appStore interface {
	task.Store
	store.DeviceStore
	PutAccounts(ctx context.Context, accounts []*domain.Account) error
}

// application holds the wired server and owns its shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	store  appStore
	db     *postgres.Store // nil with the memory driver
	engine *task.Engine
	relay  *relay.Relay
	router http.Handler
}

// newApplication wires storage, capabilities, the task engine, the device
// relay and the HTTP router. Nothing runs until Serve.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{config: cfg, logger: logger}

	if err := app.openStore(ctx); err != nil {
		return nil, err
	}
	if err := app.seedAccounts(ctx); err != nil {
		app.cleanup()
		return nil, err
	}

	generator, err := newGenerator(ctx, cfg.LLM, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}
	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize publisher: %w", err)
	}
	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize notifier: %w", err)
	}

	clk := clock.New()
	app.engine, err = task.NewEngine(app.store, generator, publisher, clk, engineConfig(cfg.Engine), logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create task engine: %w", err)
	}

	registry, err := device.NewRegistry(app.store, clk, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create device registry: %w", err)
	}
	app.relay, err = relay.New(app.engine, registry, notifier, clk, relay.Config{
		CommandsPerMinute: cfg.Relay.CommandsPerMinute,
		Burst:             cfg.Relay.Burst,
	}, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create mobile relay: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.Auth, clk)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	deps := api.RouterDeps{
		Engine: app.engine,
		Relay:  app.relay,
		Tokens: tokens,
		Logger: logger,
	}
	if app.db != nil {
		deps.DB = app.db
	}
	app.router = api.NewRouter(deps)

	logger.Info("application initialized")
	return app, nil
}

func (app *application) openStore(ctx context.Context) error {
	switch app.config.Database.Driver {
	case "memory":
		app.logger.Warn("using in-memory storage, tasks are lost on restart")
		app.store = memory.NewStore()
		return nil
	case "postgres":
		db, err := postgres.OpenDB(ctx, app.config.Database.URL, 10, 5, 5*time.Minute)
		if err != nil {
			return err
		}
		app.db = postgres.New(db, app.logger)
		app.store = app.db
		app.logger.Info("database connection established")
		return nil
	default:
		return fmt.Errorf("unsupported database driver: %s", app.config.Database.Driver)
	}
}

// seedAccounts upserts the accounts listed in configuration.
func (app *application) seedAccounts(ctx context.Context) error {
	if len(app.config.Accounts) == 0 {
		return nil
	}
	now := time.Now()
	accounts := make([]*domain.Account, 0, len(app.config.Accounts))
	for _, seed := range app.config.Accounts {
		account, err := accountFromSeed(seed, now)
		if err != nil {
			return err
		}
		accounts = append(accounts, account)
	}
	if err := app.store.PutAccounts(ctx, accounts); err != nil {
		return fmt.Errorf("failed to seed accounts: %w", err)
	}
	app.logger.Info("accounts seeded", "count", len(accounts))
	return nil
}

func accountFromSeed(seed config.AccountSeed, now time.Time) (*domain.Account, error) {
	id, err := uuid.Parse(seed.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid account id %q: %w", seed.ID, err)
	}
	status := domain.AccountStatus(seed.Status)
	switch status {
	case "":
		status = domain.AccountStatusActive
	case domain.AccountStatusActive, domain.AccountStatusInactive, domain.AccountStatusSuspended:
	default:
		return nil, fmt.Errorf("invalid account status %q", seed.Status)
	}
	now = now.UTC()
	return &domain.Account{
		ID:        id,
		Platform:  seed.Platform,
		Name:      seed.Name,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func newGenerator(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (generation.Generator, error) {
	if cfg.Provider == "template" {
		logger.Info("using template generator")
		return generation.NewTemplateGenerator(), nil
	}
	g, err := gemini.NewGenerator(ctx, logger.With("component", "llm_generator"), cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("LLM generator initialized", "model", cfg.ModelName)
	return g, nil
}

func newPublisher(cfg *config.Config, logger *slog.Logger) (publishing.Publisher, error) {
	if cfg.Publishing.BridgeURL == "" {
		logger.Warn("no bridge URL configured, publishing is a dry run")
		return bridge.NewDryRunPublisher(logger), nil
	}
	return bridge.NewPublisher(bridge.Config{
		BaseURL: cfg.Publishing.BridgeURL,
		APIKey:  cfg.Publishing.APIKey,
		Timeout: cfg.Engine.CapabilityTimeout,
	}, logger)
}

func newNotifier(cfg *config.Config, logger *slog.Logger) (notify.Notifier, error) {
	if cfg.Notify.GatewayURL == "" {
		logger.Warn("no push gateway configured, result pushes are only logged")
		return push.NewLogNotifier(logger), nil
	}
	return push.NewGatewayNotifier(push.Config{
		GatewayURL: cfg.Notify.GatewayURL,
		APIKey:     cfg.Notify.APIKey,
	}, logger)
}

func engineConfig(cfg config.EngineConfig) task.Config {
	c := task.DefaultConfig()
	c.Workers = cfg.Workers
	c.CapabilityTimeout = cfg.CapabilityTimeout
	c.ConflictRetries = cfg.ConflictRetries
	c.RetryPolicy = task.RetryPolicy{Base: cfg.BackoffBase, Cap: cfg.BackoffCap}
	return c
}

// Run listens on the configured port and serves until ctx is done.
func (app *application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", app.config.Server.Port))
	if err != nil {
		app.cleanup()
		return fmt.Errorf("failed to listen on port %d: %w", app.config.Server.Port, err)
	}
	return app.Serve(ctx, ln)
}

// Serve starts the engine and the HTTP server on ln. When ctx is done or the
// server fails, it stops accepting requests, drains in-flight ones, stops the
// engine and releases storage.
func (app *application) Serve(ctx context.Context, ln net.Listener) error {
	defer app.cleanup()

	if err := app.engine.Start(ctx); err != nil {
		ln.Close()
		return fmt.Errorf("failed to start task engine: %w", err)
	}

	server := &http.Server{
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.logger.Info("starting server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		app.logger.Info("shutting down server")

		timeout := app.config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		app.engine.Stop()
		if err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	app.logger.Info("server shutdown completed")
	return nil
}

// cleanup releases storage. The engine is stopped by Serve.
func (app *application) cleanup() {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
		app.db = nil
	}
}
