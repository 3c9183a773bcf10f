package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mailpilot/mailpilot-api/internal/cache"
	"github.com/mailpilot/mailpilot-api/internal/config"
	"github.com/mailpilot/mailpilot-api/internal/domain"
	"github.com/mailpilot/mailpilot-api/internal/oplock"
	"github.com/mailpilot/mailpilot-api/internal/platform/gemini"
	"github.com/mailpilot/mailpilot-api/internal/platform/gmailapi"
	"github.com/mailpilot/mailpilot-api/internal/platform/postgres"
	"github.com/mailpilot/mailpilot-api/internal/service"
	"github.com/mailpilot/mailpilot-api/internal/service/auth"
)

// application holds the composed dependencies for the running server.
type application struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB

	runner    *oplock.Runner
	reclaimer *oplock.Reclaimer

	jwtService auth.JWTService

	users   *service.UserService
	syncs   *service.SyncService
	reports *service.ReportService
	chats   *service.ChatService

	inboxCache   *cache.Cache[[]domain.EmailSummary]
	reportCache  *cache.Cache[string]
	sessionCache *cache.Cache[*service.ChatSession]
}

// buildApplication connects to the database, applies migrations and wires
// every service the API needs.
func buildApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	ctx := context.Background()

	db, err := setupDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, err
	}

	ops := postgres.NewPostgresOperationStore(db)
	users := postgres.NewPostgresUserStore(db)

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	runner := oplock.NewRunner(ops, logger)
	waiter := oplock.NewWaiter(ops, time.Duration(cfg.Ops.WaiterPollMillis)*time.Millisecond)
	reclaimer := oplock.NewReclaimer(ops, oplock.ReclaimerConfig{
		CheckInterval:  time.Duration(cfg.Ops.ReclaimerIntervalSeconds) * time.Second,
		DefaultTimeout: time.Duration(cfg.Ops.OperationTimeoutSeconds) * time.Second,
		RetentionAge:   time.Duration(cfg.Ops.RetentionHours) * time.Hour,
	}, logger)

	cacheTTL := time.Duration(cfg.Ops.CacheTTLSeconds) * time.Second
	inboxCache := cache.New[[]domain.EmailSummary](cfg.Ops.CacheSize, cacheTTL)
	reportCache := cache.New[string](cfg.Ops.CacheSize, cacheTTL)
	sessionCache := cache.New[*service.ChatSession](cfg.Ops.CacheSize, cacheTTL)

	// Mailbox access is optional: without credentials the sync endpoints
	// reject requests but the rest of the API still works.
	var mailbox gmailapi.Mailbox
	client, err := gmailapi.NewClient(ctx, logger, cfg.Gmail)
	switch {
	case errors.Is(err, gmailapi.ErrNotConfigured):
		logger.Warn("gmail credentials not configured, inbox sync disabled")
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("failed to create gmail client: %w", err)
	default:
		mailbox = client
	}

	generator, err := gemini.NewGenerator(ctx, logger, cfg.LLM)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	userService := service.NewUserService(users, db, jwtService, logger)
	syncService := service.NewSyncService(
		runner, waiter, ops, mailbox, inboxCache, cfg.Gmail.MaxMessages, logger)
	reportService := service.NewReportService(
		runner, waiter, ops, syncService, generator, reportCache, logger)
	chatService := service.NewChatService(
		ops, sessionCache, generator,
		cfg.Ops.ChunkMinSize,
		time.Duration(cfg.Ops.ChunkMaxWaitMillis)*time.Millisecond,
		logger)

	return &application{
		cfg:          cfg,
		logger:       logger,
		db:           db,
		runner:       runner,
		reclaimer:    reclaimer,
		jwtService:   jwtService,
		users:        userService,
		syncs:        syncService,
		reports:      reportService,
		chats:        chatService,
		inboxCache:   inboxCache,
		reportCache:  reportCache,
		sessionCache: sessionCache,
	}, nil
}

// run serves HTTP and supervises the reclaimer until a shutdown signal
// arrives, then drains in-flight requests and detached operations.
func (app *application) run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Server.Port),
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Info("starting server", "port", app.cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return app.reclaimer.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	app.logger.Info("server shutdown completed")
	return nil
}

// cleanup releases resources held by the application. Safe to call after a
// failed or completed run.
func (app *application) cleanup() {
	// Stop waits for detached operation payloads to finish.
	app.runner.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database", "error", err)
	}
}
