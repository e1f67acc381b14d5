package observability

import (
	"context"

	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// BuildResource exposes buildResource to the external test package.
func BuildResource(cfg Config) (*resource.Resource, error) {
	return buildResource(cfg)
}

// RootSpanExported starts and ends one root span on a provider built the way
// Init builds it and reports whether the span reached the exporter.
func RootSpanExported() bool {
	exporter := tracetest.NewInMemoryExporter()
	tp := newTracerProvider(resource.Empty(), sdktrace.NewSimpleSpanProcessor(exporter))

	_, span := tp.Tracer("test").Start(context.Background(), "root")
	span.End()

	// Shutdown clears the exporter.
	exported := len(exporter.GetSpans()) > 0

	return tp.Shutdown(context.Background()) == nil && exported
}
