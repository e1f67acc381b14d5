package observability

import (
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// allowedPrefixes are the attribute key prefixes a span may carry out of the
// process. otelhttp client spans use the http., url., server. and network. keys.
var allowedPrefixes = []string{
	"buildload.",
	"error.",
	"http.",
	"url.",
	"server.",
	"network.",
	"commit.",
	"builder.",
	"pipeline.",
	"fetch.",
}

// blockedPrefixes win over allowedPrefixes.
var blockedPrefixes = []string{
	"user.",
}

// blockedKeys win over allowedPrefixes. Artifact bodies can be megabytes of
// CSV and never belong on a span.
var blockedKeys = map[string]bool{
	"email":                 true,
	"http.request.body":     true,
	"http.response.body":    true,
	"buildload.series.body": true,
}

// NewAttributeFilter returns a SpanProcessor that hands finished spans to next
// with every attribute outside the allow-list removed.
func NewAttributeFilter(next sdktrace.SpanProcessor) sdktrace.SpanProcessor {
	return attributeFilter{SpanProcessor: next}
}

type attributeFilter struct {
	sdktrace.SpanProcessor
}

// OnEnd passes a filtered view of s to the wrapped processor.
func (f attributeFilter) OnEnd(s sdktrace.ReadOnlySpan) {
	f.SpanProcessor.OnEnd(filteredSpan{ReadOnlySpan: s})
}

// exportable reports whether an attribute key may leave the process.
func exportable(key string) bool {
	if blockedKeys[key] || hasAnyPrefix(key, blockedPrefixes) {
		return false
	}

	return key == "error" || hasAnyPrefix(key, allowedPrefixes)
}

func hasAnyPrefix(key string, prefixes []string) bool {
	return slices.ContainsFunc(prefixes, func(prefix string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

type filteredSpan struct {
	sdktrace.ReadOnlySpan
}

// Attributes returns the exportable attributes of the span.
func (s filteredSpan) Attributes() []attribute.KeyValue {
	return slices.DeleteFunc(slices.Clone(s.ReadOnlySpan.Attributes()), func(kv attribute.KeyValue) bool {
		return !exportable(string(kv.Key))
	})
}
