// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/pinenote/internal/api"
	"github.com/starford/pinenote/internal/comments"
	"github.com/starford/pinenote/internal/dashboard"
	"github.com/starford/pinenote/internal/devbackend"
	"github.com/starford/pinenote/internal/mcpserver"
	"github.com/starford/pinenote/internal/notes"
	"github.com/starford/pinenote/internal/remote"
	"github.com/starford/pinenote/internal/session"
	"github.com/starford/pinenote/internal/sse"
)

const (
	shutdownTimeout = 10 * time.Second
	sseHeartbeat    = 15 * time.Second
)

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// logger initializes the structured JSON logger. The returned level can be
// changed at runtime.
func (a *application) logger() (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(a.config.App.LogLevel)
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger, level
}

// client is the note-taking stack shared by the HTTP and MCP front ends.
type client struct {
	sessions *session.Provider
	repo     *notes.Repository
	dash     *dashboard.Controller
	comments *comments.Service
}

func newClient(cfg *Config, logger *slog.Logger, notifier notes.Notifier) (*client, error) {
	rc, err := remote.NewClient(cfg.Remote.URL, cfg.Remote.AnonKey, remote.WithTimeout(cfg.Remote.Timeout))
	if err != nil {
		return nil, fmt.Errorf("init remote client: %w", err)
	}

	sessions := session.New(rc,
		session.WithLogger(logger.With(slog.String("component", "session"))),
		session.WithRefreshMargin(cfg.Auth.RefreshMargin),
	)

	repoOpts := []notes.Option{notes.WithLogger(logger.With(slog.String("component", "notes")))}
	if notifier != nil {
		repoOpts = append(repoOpts, notes.WithNotifier(notifier))
	}
	repo := notes.New(rc, sessions, repoOpts...)

	return &client{
		sessions: sessions,
		repo:     repo,
		dash:     dashboard.New(repo),
		comments: comments.NewService(rc, sessions, logger.With(slog.String("component", "comments"))),
	}, nil
}

// Run starts the local HTTP API with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger, level := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("remote_url", cfg.Remote.URL),
		slog.Bool("api_token", cfg.App.HTTP.Token != ""),
		slog.Bool("public_detail", cfg.Routes.PublicDetail),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker doubles as the toast and cache-change notifier.
	broker := sse.NewBroker(sseHeartbeat)

	c, err := newClient(cfg, logger, broker)
	if err != nil {
		return err
	}

	apiRouter := api.NewRouter(api.RouterConfig{
		Sessions:     c.sessions,
		Notes:        c.repo,
		Dashboard:    c.dash,
		Comments:     c.comments,
		Events:       broker,
		Token:        cfg.App.HTTP.Token,
		PublicDetail: cfg.Routes.PublicDetail,
	})

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.sessions.Run(gCtx) })
	g.Go(func() error { return c.repo.Follow(gCtx, c.sessions) })
	g.Go(func() error { return c.dash.Follow(gCtx, c.sessions) })
	g.Go(func() error { return broker.ForwardSessions(gCtx, c.sessions) })

	if cfg.Auth.AutoSignIn() {
		g.Go(func() error {
			if _, err := c.sessions.SignIn(gCtx, cfg.Auth.Email, cfg.Auth.Password); err != nil {
				logger.Warn("auto sign-in failed",
					slog.String("email", cfg.Auth.Email),
					slog.String("error", err.Error()))
			}
			return nil
		})
	}

	if app.configPath != "" {
		g.Go(func() error {
			if err := watchConfig(gCtx, app.configPath, level, logger); err != nil {
				logger.Warn("config watcher disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		waitForShutdown(gCtx, logger)
		cancel()

		logger.Info("Shutting down server...")

		// Event streams never end on their own.
		broker.Close()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		c.sessions.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP signs in with the configured credentials and serves the MCP tools
// on stdin/stdout until stdin is closed.
func RunMCP(ctx context.Context, opts ...Option) error {
	// stdout carries the protocol.
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger, _ := app.logger()

	if !cfg.Auth.AutoSignIn() {
		return fmt.Errorf("mcp: auth.email and auth.password are required")
	}

	c, err := newClient(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer c.sessions.Close()

	if _, err := c.sessions.SignIn(ctx, cfg.Auth.Email, cfg.Auth.Password); err != nil {
		return fmt.Errorf("mcp: sign in: %w", err)
	}

	srv := mcpserver.New(c.repo, c.dash, c.comments)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.sessions.Run(gCtx) })
	g.Go(func() error { return c.repo.Follow(gCtx, c.sessions) })
	g.Go(func() error { return c.dash.Follow(gCtx, c.sessions) })
	g.Go(func() error {
		defer cancel()
		logger.Info("MCP server listening on stdio", slog.String("user", cfg.Auth.Email))
		return srv.ServeStdio()
	})

	return g.Wait()
}

// RunDevBackend serves the local emulator of the remote service.
func RunDevBackend(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config.DevBackend
	logger, _ := app.logger()

	db, err := devbackend.Open(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("init devbackend db: %w", err)
	}
	defer db.Close()

	srv := devbackend.NewServer(db, cfg.AnonKey,
		devbackend.WithTokenTTL(cfg.TokenTTL),
		devbackend.WithAutoConfirm(cfg.AutoConfirm),
		devbackend.WithLogger(logger.With(slog.String("component", "devbackend"))),
	)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Mount("/", srv.Handler())

	httpServer := &http.Server{
		Addr:    cfg.Address(),
		Handler: r,
	}

	logger.Info("Dev backend starting",
		slog.String("address", cfg.Address()),
		slog.String("sqlite_path", cfg.SQLitePath),
		slog.Bool("auto_confirm", cfg.AutoConfirm))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		waitForShutdown(gCtx, logger)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	return g.Wait()
}

// waitForShutdown blocks until SIGINT, SIGTERM or ctx is done.
func waitForShutdown(ctx context.Context, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, initiating shutdown")
	}
}
