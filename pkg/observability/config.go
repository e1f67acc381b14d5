// Package observability provides OpenTelemetry-based tracing, metrics, and
// structured logging for every buildload command.
package observability

import (
	"fmt"
	"log/slog"
	"strings"
)

// AppMode identifies the command the binary is running.
type AppMode string

const (
	// ModeCollect is the dataset collection run.
	ModeCollect AppMode = "collect"
	// ModeReport is the dataset analysis command.
	ModeReport AppMode = "report"
	// ModeStatus prints the last run state.
	ModeStatus AppMode = "status"
)

// defaultServiceName is the default OTel service name.
const defaultServiceName = "buildload"

// Config holds all observability configuration.
type Config struct {
	// ServiceName is the OTel resource service name.
	ServiceName string

	// ServiceVersion is the semantic version of the running binary.
	ServiceVersion string

	// Environment is the deployment environment (e.g. "production", "ci").
	Environment string

	// Mode identifies the command being run.
	Mode AppMode

	// OTLPEndpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables export.
	OTLPEndpoint string

	// OTLPHeaders are additional gRPC metadata headers for the OTLP exporter.
	OTLPHeaders map[string]string

	// OTLPInsecure disables TLS for the OTLP gRPC connection.
	OTLPInsecure bool

	// PrometheusTextfile, when set, is where the metrics registry is written
	// on shutdown in the node-exporter textfile format.
	PrometheusTextfile string

	// LogLevel controls the minimum slog severity.
	LogLevel slog.Level

	// LogJSON enables JSON-formatted log output.
	LogJSON bool
}

// DefaultConfig returns a Config with sensible defaults for zero-config startup.
func DefaultConfig() Config {
	return Config{
		ServiceName: defaultServiceName,
		Mode:        ModeCollect,
		LogLevel:    slog.LevelInfo,
	}
}

// ParseLevel maps a level name (debug, info, warn, error) to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(strings.TrimSpace(name)))
	if err != nil {
		return slog.LevelInfo, fmt.Errorf("parse log level %q: %w", name, err)
	}

	return level, nil
}
