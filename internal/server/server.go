// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

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

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel"

	"codeberg.org/oliverandrich/newsletter/internal/config"
	"codeberg.org/oliverandrich/newsletter/internal/database"
	"codeberg.org/oliverandrich/newsletter/internal/handlers"
	"codeberg.org/oliverandrich/newsletter/internal/i18n"
	"codeberg.org/oliverandrich/newsletter/internal/metrics"
	"codeberg.org/oliverandrich/newsletter/internal/models"
	"codeberg.org/oliverandrich/newsletter/internal/repository"
	"codeberg.org/oliverandrich/newsletter/internal/services/email"
	"codeberg.org/oliverandrich/newsletter/internal/services/subscription"
	"codeberg.org/oliverandrich/newsletter/internal/services/token"
)

const tracerName = "codeberg.org/oliverandrich/newsletter"

// App is the wired HTTP application.
type App struct {
	Echo        *echo.Echo
	Service     *subscription.Service
	Redeliverer *subscription.Redeliverer
	Registry    *prometheus.Registry
}

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	logger := newLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"email_transport", cfg.Email.Transport,
	)

	// i18n
	if err := i18n.Init(); err != nil {
		return fmt.Errorf("failed to init i18n: %w", err)
	}

	// Database
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("failed to close database", "error", closeErr)
		}
	}()

	// Email
	sender, err := NewSender(cfg)
	if err != nil {
		return fmt.Errorf("failed to configure email transport: %w", err)
	}

	app := New(cfg, logger, repository.New(db), sender)

	if cfg.Redelivery.Interval > 0 {
		if err := app.Redeliverer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start redelivery worker: %w", err)
		}
		defer func() {
			_ = app.Redeliverer.Stop()
		}()
	}

	return startWithGracefulShutdown(ctx, app.Echo, cfg, logger)
}

// NewSender returns the email transport selected by the configuration.
func NewSender(cfg *config.Config) (email.Sender, error) {
	switch cfg.Email.Transport {
	case config.TransportSMTP:
		s, err := email.NewSMTPSender(&cfg.SMTP)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.TransportAPI:
		from, err := models.ParseSubscriberEmail(cfg.Email.Sender)
		if err != nil {
			return nil, fmt.Errorf("email sender: %w", err)
		}
		c, err := email.NewClient(email.ClientConfig{
			BaseURL:       cfg.Email.BaseURL,
			Sender:        from,
			APIKeyPublic:  cfg.Email.APIKeyPublic,
			APIKeyPrivate: cfg.Email.APIKeyPrivate,
			Timeout:       cfg.Email.Timeout,
		}, email.WithClientTracer(otel.Tracer(tracerName)))
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown email transport %q", cfg.Email.Transport)
	}
}

// New wires the subscription service, the redelivery worker and the HTTP
// routes. The redelivery worker is returned unstarted.
func New(cfg *config.Config, logger *slog.Logger, repo *repository.Repository, sender email.Sender) *App {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := subscription.NewService(repo, sender, token.NewIssuer(), cfg.Server.BaseURL,
		subscription.WithLogger(logger),
		subscription.WithMetrics(metrics.New(reg)),
		subscription.WithTracer(otel.Tracer(tracerName)),
		subscription.WithMaxDispatchAttempts(cfg.Redelivery.MaxAttempts),
	)

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	setupMiddleware(e, cfg, logger)

	// Routes
	setupRoutes(e, handlers.New(repo, svc, logger), reg)

	return &App{
		Echo:        e,
		Service:     svc,
		Redeliverer: subscription.NewRedeliverer(svc, cfg.Redelivery.Interval, cfg.Redelivery.BatchSize, logger),
		Registry:    reg,
	}
}

func setupRoutes(e *echo.Echo, h *handlers.Handlers, reg *prometheus.Registry) {
	e.GET("/health", h.Health)
	e.GET("/health_check", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	e.POST("/subscriptions", h.Subscribe)
	e.GET(subscription.ConfirmPath, h.Confirm)
}

func startWithGracefulShutdown(ctx context.Context, e *echo.Echo, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e.Server.ReadHeaderTimeout = 10 * time.Second

	// Channel for server errors
	errChan := make(chan error, 1)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		logger.Info("Server running", "url", cfg.Server.BaseURL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case err := <-errChan:
		logger.Error("server error", "error", err)
		return err
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
	return nil
}
