// Package config defines the process configuration for the safety report
// service. Configuration is loaded once at startup and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format is returned as a *ConfigError
// and the process refuses to start.
package config

import (
	"fmt"
	"time"

	"safetyreports/internal/types"
)

// SecretString is an alias for types.SecretString so config consumers do not
// need to import types for secret fields.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the section they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"safety-reports"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	Scheduler     SchedulerConfig
	Email         EmailConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Injected via ldflags, not env.
	Build BuildInfo
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"1" validate:"min=0"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
	AutoMigrate       bool          `envconfig:"DB_AUTO_MIGRATE" default:"false"`
}

// SchedulerConfig controls report trigger evaluation and execution bounds.
type SchedulerConfig struct {
	// Timezone is the single reference zone every schedule's HH:MM and every
	// report window is interpreted in.
	Timezone   string        `envconfig:"REPORT_TIMEZONE" default:"America/Chicago" validate:"required,timezone"`
	RunTimeout time.Duration `envconfig:"REPORT_RUN_TIMEOUT" default:"5m" validate:"min=1s"`
	Enabled    bool          `envconfig:"SCHEDULER_ENABLED" default:"true"`
}

// Location resolves the reference timezone.
func (s SchedulerConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading report timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// EmailConfig holds outbound email provider settings.
type EmailConfig struct {
	Provider    string `envconfig:"EMAIL_PROVIDER" default:"ses" validate:"oneof=ses sendgrid stub"`
	FromAddress string `envconfig:"EMAIL_FROM_ADDRESS" default:"reports@safetyforms.local" validate:"required,email"`
	FromName    string `envconfig:"EMAIL_FROM_NAME" default:"Safety Reports"`

	SendGridAPIKey  SecretString `envconfig:"SENDGRID_API_KEY" validate:"required_if=Provider sendgrid"`
	SendGridBaseURL string       `envconfig:"SENDGRID_BASE_URL" default:"https://api.sendgrid.com" validate:"url"`

	SESConfigurationSet string `envconfig:"SES_CONFIGURATION_SET"`

	// OverrideTo redirects every outbound report to a single address.
	// Intended for non-production environments.
	OverrideTo string `envconfig:"EMAIL_OVERRIDE_TO" validate:"omitempty,email"`
}

// AWSConfig holds AWS region and resource identifiers.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// ReportArchiveBucket enables archiving of rendered reports when set.
	ReportArchiveBucket string `envconfig:"REPORT_ARCHIVE_BUCKET"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ObservabilityConfig holds metrics settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"SafetyReports"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
