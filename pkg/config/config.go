// Package config loads buildload settings from defaults, an optional YAML
// file and BUILDLOAD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/buildload/pkg/observability"
)

// Sentinel validation errors.
var (
	ErrInvalidInflight   = errors.New("fetch.max_inflight must be positive")
	ErrInvalidTimeout    = errors.New("timeout must be positive")
	ErrInvalidBodySize   = errors.New("fetch.max_body_size must be a positive byte size")
	ErrEmptyDatasetPath  = errors.New("dataset.path must not be empty")
	ErrInvalidLogLevel   = errors.New("logging.level is not a known level")
	ErrInvalidProgress   = errors.New("pipeline.progress_every must be positive")
	ErrInvalidReportSize = errors.New("report.top, report.window and report.smooth must be positive")
	ErrEmptyURL          = errors.New("url must not be empty")
)

// Config holds all buildload settings.
type Config struct {
	Commits   CommitsConfig   `mapstructure:"commits"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Dataset   DatasetConfig   `mapstructure:"dataset"`
	Resume    ResumeConfig    `mapstructure:"resume"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Report    ReportConfig    `mapstructure:"report"`
}

// CommitsConfig locates the commit list.
type CommitsConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ArtifactsConfig locates the per-builder CPU series.
type ArtifactsConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	AltSuffix string `mapstructure:"alt_suffix"`
}

// FetchConfig bounds artifact downloads.
type FetchConfig struct {
	MaxInflight    int           `mapstructure:"max_inflight"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodySize    string        `mapstructure:"max_body_size"`
}

// MaxBodyBytes parses MaxBodySize ("32MB", "512KiB", ...).
func (fc FetchConfig) MaxBodyBytes() (int64, error) {
	n, err := humanize.ParseBytes(fc.MaxBodySize)
	if err != nil || n == 0 || n > 1<<40 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidBodySize, fc.MaxBodySize)
	}

	return int64(n), nil
}

// DatasetConfig locates the dataset and sets the corrupt-file policy.
type DatasetConfig struct {
	Path string `mapstructure:"path"`
	// ResetCorrupt discards an unreadable dataset instead of failing the run.
	ResetCorrupt bool `mapstructure:"reset_corrupt"`
}

// ResumeConfig tunes work enumeration.
type ResumeConfig struct {
	EarlyStop bool `mapstructure:"early_stop"`
}

// PipelineConfig tunes the collect run.
type PipelineConfig struct {
	ProgressEvery int `mapstructure:"progress_every"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// TelemetryConfig holds export settings.
type TelemetryConfig struct {
	Environment        string `mapstructure:"environment"`
	OTLPEndpoint       string `mapstructure:"otlp_endpoint"`
	OTLPHeaders        string `mapstructure:"otlp_headers"`
	OTLPInsecure       bool   `mapstructure:"otlp_insecure"`
	PrometheusTextfile string `mapstructure:"prometheus_textfile"`
}

// ReportConfig holds the walltime analysis parameters.
type ReportConfig struct {
	Top    int    `mapstructure:"top"`
	Window int    `mapstructure:"window"`
	Smooth int    `mapstructure:"smooth"`
	Format string `mapstructure:"format"`
}

// Validate checks the configuration for values no component can run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Commits.URL) == "" {
		return fmt.Errorf("commits.url: %w", ErrEmptyURL)
	}

	if strings.TrimSpace(c.Artifacts.BaseURL) == "" {
		return fmt.Errorf("artifacts.base_url: %w", ErrEmptyURL)
	}

	if c.Commits.Timeout <= 0 {
		return fmt.Errorf("commits.timeout: %w: %s", ErrInvalidTimeout, c.Commits.Timeout)
	}

	if c.Fetch.MaxInflight <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidInflight, c.Fetch.MaxInflight)
	}

	if c.Fetch.RequestTimeout <= 0 {
		return fmt.Errorf("fetch.request_timeout: %w: %s", ErrInvalidTimeout, c.Fetch.RequestTimeout)
	}

	_, err := c.Fetch.MaxBodyBytes()
	if err != nil {
		return err
	}

	if strings.TrimSpace(c.Dataset.Path) == "" {
		return ErrEmptyDatasetPath
	}

	_, err = observability.ParseLevel(c.Logging.Level)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	if c.Pipeline.ProgressEvery <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidProgress, c.Pipeline.ProgressEvery)
	}

	if c.Report.Top <= 0 || c.Report.Window <= 0 || c.Report.Smooth <= 0 {
		return fmt.Errorf("%w: top=%d window=%d smooth=%d",
			ErrInvalidReportSize, c.Report.Top, c.Report.Window, c.Report.Smooth)
	}

	return nil
}

// ObservabilityConfig maps the logging and telemetry sections onto an
// observability.Config for mode.
func (c *Config) ObservabilityConfig(mode observability.AppMode, version string) observability.Config {
	cfg := observability.DefaultConfig()
	cfg.Mode = mode
	cfg.ServiceVersion = version
	cfg.Environment = c.Telemetry.Environment
	cfg.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	cfg.OTLPHeaders = observability.ParseOTLPHeaders(c.Telemetry.OTLPHeaders)
	cfg.OTLPInsecure = c.Telemetry.OTLPInsecure
	cfg.LogJSON = c.Logging.JSON

	if mode == observability.ModeCollect {
		cfg.PrometheusTextfile = c.Telemetry.PrometheusTextfile
	}

	level, err := observability.ParseLevel(c.Logging.Level)
	if err == nil {
		cfg.LogLevel = level
	}

	return cfg
}
