// Package config defines the configuration surface for the Telloo
// notification service. Configuration is loaded once at process start and
// immutable afterwards, following 12-Factor principles.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or invalid format aborts startup (fail fast).
package config

import (
	"time"

	"telloo/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used for sensitive configuration values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the specific subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"telloo-notifications"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Email         EmailConfig
	Security      SecurityConfig
	Observability ObservabilityConfig
	Feature       FeatureConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public site URL used to build post links in emails (no trailing slash),
	// e.g. https://telloo.com
	AppURL string `envconfig:"APP_URL" validate:"required,url"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// DispatchQueue is the SQS queue URL for the asynchronous dispatch path.
	// Empty disables async handoff; the API then dispatches inline only.
	DispatchQueue string `envconfig:"SQS_DISPATCH_QUEUE" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// EmailConfig holds email delivery provider credentials and sender identity.
type EmailConfig struct {
	Provider     string       `envconfig:"EMAIL_PROVIDER" default:"resend" validate:"oneof=resend ses noop"`
	ResendAPIKey SecretString `envconfig:"RESEND_API_KEY"`
	FromAddress  string       `envconfig:"EMAIL_FROM_ADDRESS" default:"notifications@telloo.com"`
	FromName     string       `envconfig:"EMAIL_FROM_NAME" default:"Telloo"`

	// MaxConcurrentSends bounds parallel provider calls per dispatch.
	MaxConcurrentSends int           `envconfig:"EMAIL_MAX_CONCURRENT_SENDS" default:"4"`
	SendTimeout        time.Duration `envconfig:"EMAIL_SEND_TIMEOUT" default:"10s"`
}

// SecurityConfig holds CORS and caller authentication settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	// RequireAPIKey forces bearer authentication on the dispatch endpoint.
	// When false, requests without an Authorization header are treated as
	// trusted internal callers.
	RequireAPIKey bool `envconfig:"REQUIRE_API_KEY" default:"false"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Telloo"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// FeatureConfig holds emergency kill switches.
type FeatureConfig struct {
	EnableEmail bool `envconfig:"FEATURE_ENABLE_EMAIL" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
