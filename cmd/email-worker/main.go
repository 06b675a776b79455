// Package main is the entrypoint for the dispatch worker Lambda function.
//
// The worker consumes DispatchMessage envelopes from the dispatch SQS queue
// and runs each through the same Dispatcher the synchronous API uses. It
// implements the SQS Lambda handler pattern where each invocation receives a
// batch of SQS messages and reports per-message failures via partial batch
// responses, so SQS redrives only the messages that actually failed.
//
// Terminal conditions are ACKed without redrive: a message that cannot be
// parsed will never parse on retry, and a post that does not exist will not
// come into existence because SQS redelivered the event.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"telloo/internal/config"
	"telloo/internal/db"
	"telloo/internal/external"
	"telloo/internal/notifications/dispatch"
	"telloo/internal/notifications/email"
	"telloo/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// The types.Logger interface requires Info, Error, Warn, and With methods.
// slog.Logger satisfies the first three but With returns *slog.Logger, not
// types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// EventDispatcher runs one notification fan-out. Abstracted for handler tests.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event types.DispatchEvent) (*types.DispatchResult, error)
}

// Handler holds the dependencies for the dispatch worker Lambda handler.
type Handler struct {
	dispatcher EventDispatcher
	logger     types.Logger
}

// Handle processes an SQS event containing one or more dispatch messages.
// Each message is processed independently; failures are reported in
// batchItemFailures so SQS retries only the failed items.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.Error("failed to process SQS message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processMessage handles a single SQS message through the dispatcher.
// Returning nil ACKs the message; returning an error schedules a redrive.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	start := time.Now()

	var msg types.DispatchMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		h.logger.Error("failed to unmarshal dispatch message",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		// Permanent parse failure - do not retry (return nil to ACK).
		return nil
	}

	logger := h.logger.With(
		"trace_id", msg.TraceID,
		"event_type", string(msg.Event.Type),
		"post_id", msg.Event.PostID,
	)

	logger.Info("processing dispatch message")

	result, err := h.dispatcher.Dispatch(ctx, msg.Event)
	if err != nil {
		if isTerminalDispatchError(err) {
			// The post will not appear on redrive; ACK and move on.
			logger.Warn("dropping dispatch for terminal error", "error", err.Error())
			return nil
		}
		return fmt.Errorf("dispatch: %w", err)
	}

	logger.Info("dispatch message processed",
		"sent", result.Sent,
		"recipients", result.Recipients,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// isTerminalDispatchError reports whether a dispatch failure can never
// succeed on redelivery.
func isTerminalDispatchError(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case types.ErrCodeNotFoundPost, types.ErrCodeNotFoundBoard, types.ErrCodeValidationMissingField:
		return true
	default:
		return false
	}
}

func main() {
	// Initialize structured logger at startup (Cold Start).
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("dispatch worker Lambda initializing (cold start)")

	typedLogger := &slogAdapter{logger: logger}

	var secretProvider config.SecretProvider
	if os.Getenv("APP_ENV") != "local" {
		secretProvider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}

	cfg, err := config.LoadConfig(secretProvider)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}

	contentRepo := db.NewContentRepository(pool)
	userRepo := db.NewUserRepository(pool)

	emailProvider := buildEmailProvider(ctx, cfg, logger)

	renderer, err := email.NewRenderer(email.RendererConfig{
		AppURL:   cfg.Server.AppURL,
		FromAddr: cfg.Email.FromAddress,
		FromName: cfg.Email.FromName,
		Logger:   typedLogger,
	})
	if err != nil {
		logger.Error("failed to initialize renderer", "error", err)
		os.Exit(1)
	}

	var metrics types.DispatchMetrics
	if cfg.Observability.EnableMetrics {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			logger.Error("failed to load AWS SDK config", "error", err)
			os.Exit(1)
		}
		metrics = dispatch.NewCloudWatchMetrics(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			typedLogger,
		)
	}

	dispatcher := dispatch.NewDispatcher(dispatch.Config{
		Store:              contentRepo,
		Identities:         userRepo,
		Provider:           emailProvider,
		Renderer:           renderer,
		Metrics:            metrics,
		Logger:             typedLogger,
		MaxConcurrentSends: cfg.Email.MaxConcurrentSends,
		SendTimeout:        cfg.Email.SendTimeout,
	})

	handler := &Handler{
		dispatcher: dispatcher,
		logger:     typedLogger,
	}

	logger.Info("dispatch worker Lambda initialized",
		"environment", cfg.Environment,
		"email_provider", cfg.Email.Provider,
		"from_address", cfg.Email.FromAddress,
	)

	// Local mode: read a JSON SQS event from stdin instead of starting the
	// Lambda runtime. Enables local integration testing without the AWS RIE.
	// Usage: echo '{"Records":[{"messageId":"1","body":"{...}"}]}' | go run cmd/email-worker/main.go
	if os.Getenv("APP_ENV") == "local" {
		logger.Info("APP_ENV=local: reading SQS event from stdin")
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("failed to read stdin", "error", err)
			os.Exit(1)
		}
		if len(payload) == 0 {
			logger.Error("no input received on stdin")
			os.Exit(1)
		}
		var sqsEvent events.SQSEvent
		if err := json.Unmarshal(payload, &sqsEvent); err != nil {
			logger.Error("failed to parse stdin as SQS event", "error", err)
			os.Exit(1)
		}
		response, err := handler.Handle(context.Background(), sqsEvent)
		if err != nil {
			logger.Error("handler execution failed", "error", err)
			os.Exit(1)
		}
		if len(response.BatchItemFailures) > 0 {
			logger.Warn("handler reported partial failures",
				"failed_count", len(response.BatchItemFailures),
			)
			respJSON, _ := json.MarshalIndent(response, "", "  ")
			fmt.Fprintln(os.Stderr, string(respJSON))
		}
		logger.Info("handler execution completed",
			"records_processed", len(sqsEvent.Records),
			"failures", len(response.BatchItemFailures),
		)
		pool.Close()
		return
	}

	lambda.Start(handler.Handle)
}

// buildEmailProvider selects the mail transport for the worker. Delivery
// disabled via the kill switch or an unset Resend key falls back to the stub
// so the worker keeps draining the queue instead of crash-looping.
func buildEmailProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) external.EmailProvider {
	if !cfg.Feature.EnableEmail {
		logger.Warn("email delivery disabled by feature flag, using stub provider")
		return external.NewStubEmailProvider(logger)
	}

	switch cfg.Email.Provider {
	case "resend":
		key := cfg.Email.ResendAPIKey.Unmask()
		if key == "" {
			logger.Warn("RESEND_API_KEY not set, using stub email provider")
			return external.NewStubEmailProvider(logger)
		}
		return external.NewResendClient(
			&http.Client{Timeout: cfg.Email.SendTimeout},
			external.ResendClientConfig{
				APIKey: key,
				Logger: logger,
			},
		)

	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			logger.Error("failed to load AWS config for SES, using stub provider", "error", err)
			return external.NewStubEmailProvider(logger)
		}
		return external.NewSESClient(awsCfg, external.SESClientConfig{
			Logger: logger,
		})

	default:
		return external.NewStubEmailProvider(logger)
	}
}

// Compile-time assertion that slogAdapter implements types.Logger.
var _ types.Logger = (*slogAdapter)(nil)
