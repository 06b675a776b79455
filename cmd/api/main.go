// Package main is the entry point for the Telloo notification API server.
//
// It loads configuration, connects the database pool, wires the mail
// transport and the dispatcher, builds the HTTP server with the core chassis
// (middleware, routing, health checks), and starts listening for requests.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

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

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"

	"telloo/internal/api/handlers"
	"telloo/internal/auth"
	"telloo/internal/config"
	"telloo/internal/core"
	"telloo/internal/db"
	"telloo/internal/external"
	"telloo/internal/notifications/dispatch"
	"telloo/internal/notifications/email"
	"telloo/internal/queue"
	"telloo/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	// Local development bypasses SSM resolution; everywhere else secrets may
	// arrive via _SSM_PARAM indirection.
	var provider config.SecretProvider
	if os.Getenv("APP_ENV") != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}

	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	appLogger := &slogAdapter{logger: logger}

	logger.Info("telloo notification API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Database pool.
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	contentRepo := db.NewContentRepository(pool)
	userRepo := db.NewUserRepository(pool)
	apiKeyRepo := db.NewAPIKeyRepository(pool)

	// Mail transport.
	emailProvider, err := buildEmailProvider(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building email provider: %w", err)
	}

	// Template renderer.
	renderer, err := email.NewRenderer(email.RendererConfig{
		AppURL:   cfg.Server.AppURL,
		FromAddr: cfg.Email.FromAddress,
		FromName: cfg.Email.FromName,
		Logger:   appLogger,
	})
	if err != nil {
		return fmt.Errorf("building renderer: %w", err)
	}

	// Telemetry.
	var metrics types.DispatchMetrics
	if cfg.Observability.EnableMetrics {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading AWS config for metrics: %w", err)
		}
		metrics = dispatch.NewCloudWatchMetrics(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			appLogger,
		)
	}

	dispatcher := dispatch.NewDispatcher(dispatch.Config{
		Store:              contentRepo,
		Identities:         userRepo,
		Provider:           emailProvider,
		Renderer:           renderer,
		Metrics:            metrics,
		Logger:             appLogger,
		MaxConcurrentSends: cfg.Email.MaxConcurrentSends,
		SendTimeout:        cfg.Email.SendTimeout,
	})

	// Optional async handoff.
	publisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building queue publisher: %w", err)
	}

	// Build the server.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Authenticator = auth.NewAPIKeyAuthenticator(apiKeyRepo, appLogger)

	dispatchHandler := handlers.NewDispatchHandler(dispatcher, publisher, appLogger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		dispatchHandler.RegisterRoutes(r)
	})

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// buildEmailProvider selects the mail transport from configuration. The
// feature kill switch overrides the provider choice so that delivery can be
// stopped in an incident without a redeploy.
func buildEmailProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (external.EmailProvider, error) {
	if !cfg.Feature.EnableEmail {
		logger.Warn("email delivery disabled by feature flag; using stub provider")
		return external.NewStubEmailProvider(logger), nil
	}

	switch cfg.Email.Provider {
	case "resend":
		if cfg.Email.ResendAPIKey.Unmask() == "" {
			return nil, fmt.Errorf("RESEND_API_KEY is required when EMAIL_PROVIDER=resend")
		}
		return external.NewResendClient(
			&http.Client{Timeout: cfg.Email.SendTimeout},
			external.ResendClientConfig{
				APIKey: cfg.Email.ResendAPIKey.Unmask(),
				Logger: logger,
			},
		), nil

	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return nil, fmt.Errorf("loading AWS config for SES: %w", err)
		}
		return external.NewSESClient(awsCfg, external.SESClientConfig{
			Logger: logger,
		}), nil

	case "noop":
		return external.NewStubEmailProvider(logger), nil

	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Email.Provider)
	}
}

// buildPublisher creates the SQS publisher for the asynchronous dispatch
// path. Returns nil when no queue is configured; the API then dispatches
// inline only.
func buildPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (types.DispatchPublisher, error) {
	if cfg.AWS.DispatchQueue == "" {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for SQS: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = &cfg.AWS.EndpointURL
		}
	})

	return queue.NewDispatchPublisher(client, cfg.AWS.DispatchQueue, logger), nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}

// slogAdapter adapts *slog.Logger to the types.Logger interface used by
// injectable components.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)
