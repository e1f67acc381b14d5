package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// TextfileExporter collects OTel instruments into a private Prometheus
// registry and writes it in the node-exporter textfile-collector format.
// A cron-driven collect run has no scrape window, so the registry is
// dumped once at the end of the run instead of served over HTTP.
type TextfileExporter struct {
	path     string
	registry *prometheus.Registry
	reader   *promexporter.Exporter
}

// NewTextfileExporter creates an exporter that writes to path. Each call
// creates an independent registry to avoid collector conflicts.
func NewTextfileExporter(path string) (*TextfileExporter, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(
		promexporter.WithRegisterer(registry),
	)
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	return &TextfileExporter{path: path, registry: registry, reader: exporter}, nil
}

// Reader returns the metric reader to attach to a MeterProvider.
func (te *TextfileExporter) Reader() sdkmetric.Reader {
	return te.reader
}

// Registry exposes the backing registry.
func (te *TextfileExporter) Registry() *prometheus.Registry {
	return te.registry
}

// Write gathers the registry and atomically replaces the textfile.
func (te *TextfileExporter) Write() error {
	err := prometheus.WriteToTextfile(te.path, te.registry)
	if err != nil {
		return fmt.Errorf("write prometheus textfile %s: %w", te.path, err)
	}

	return nil
}
