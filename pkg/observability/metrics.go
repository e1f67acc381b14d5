package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricFetchRequests = "buildload.fetch.requests.total"
	metricFetchDuration = "buildload.fetch.duration.seconds"
	metricFetchBytes    = "buildload.fetch.bytes.total"
	metricFetchInflight = "buildload.fetch.inflight"

	metricRunQueued   = "buildload.run.queued.total"
	metricRunOutcomes = "buildload.run.outcomes.total"
	metricRunDuration = "buildload.run.duration.seconds"

	attrOutcome = "outcome"
)

// Fetch outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeNotFound  = "not_found"
	OutcomeHTTPError = "http_error"
	OutcomeTransport = "transport_error"
	OutcomeCancelled = "cancelled"
)

// Run outcome labels.
const (
	OutcomeWritten     = "written"
	OutcomeFetchFailed = "fetch_failed"
	OutcomeParseFailed = "parse_failed"
)

// fetchBucketBoundaries covers 10ms to the 60s default request timeout.
var fetchBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// runBucketBoundaries covers a no-op resume (seconds) up to a cold multi-hour backfill.
var runBucketBoundaries = []float64{1, 5, 30, 60, 300, 900, 1800, 3600, 7200, 14400}

// FetchMetrics holds the OTel instruments for artifact downloads.
type FetchMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	bytes    metric.Int64Counter
	inflight metric.Int64UpDownCounter
}

// NewFetchMetrics creates fetch instruments from the given meter.
func NewFetchMetrics(mt metric.Meter) (*FetchMetrics, error) {
	requests, err := mt.Int64Counter(metricFetchRequests,
		metric.WithDescription("Artifact requests by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFetchRequests, err)
	}

	duration, err := mt.Float64Histogram(metricFetchDuration,
		metric.WithDescription("Artifact request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(fetchBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFetchDuration, err)
	}

	bytes, err := mt.Int64Counter(metricFetchBytes,
		metric.WithDescription("Artifact body bytes downloaded"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFetchBytes, err)
	}

	inflight, err := mt.Int64UpDownCounter(metricFetchInflight,
		metric.WithDescription("Number of in-flight artifact requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFetchInflight, err)
	}

	return &FetchMetrics{
		requests: requests,
		duration: duration,
		bytes:    bytes,
		inflight: inflight,
	}, nil
}

// RecordFetch records one completed request. Safe to call on a nil receiver.
func (fm *FetchMetrics) RecordFetch(ctx context.Context, outcome string, elapsed time.Duration, size int) {
	if fm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrOutcome, outcome))

	fm.requests.Add(ctx, 1, attrs)
	fm.duration.Record(ctx, elapsed.Seconds(), attrs)

	if size > 0 {
		fm.bytes.Add(ctx, int64(size))
	}
}

// TrackInflight increments the in-flight gauge and returns a function to decrement it.
// Safe to call on a nil receiver.
func (fm *FetchMetrics) TrackInflight(ctx context.Context) func() {
	if fm == nil {
		return func() {}
	}

	fm.inflight.Add(ctx, 1)

	return func() {
		fm.inflight.Add(ctx, -1)
	}
}

// RunMetrics holds the OTel instruments for whole collect runs.
type RunMetrics struct {
	queued   metric.Int64Counter
	outcomes metric.Int64Counter
	duration metric.Float64Histogram
}

// RunStats is the per-run tally recorded by RunMetrics, decoupled from
// pipeline types.
type RunStats struct {
	Queued      int
	Written     int
	NotFound    int
	FetchFailed int
	ParseFailed int
	Elapsed     time.Duration
}

// NewRunMetrics creates run instruments from the given meter.
func NewRunMetrics(mt metric.Meter) (*RunMetrics, error) {
	queued, err := mt.Int64Counter(metricRunQueued,
		metric.WithDescription("Work keys enumerated for fetching"),
		metric.WithUnit("{key}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRunQueued, err)
	}

	outcomes, err := mt.Int64Counter(metricRunOutcomes,
		metric.WithDescription("Work key outcomes by kind"),
		metric.WithUnit("{key}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRunOutcomes, err)
	}

	duration, err := mt.Float64Histogram(metricRunDuration,
		metric.WithDescription("Collect run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(runBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRunDuration, err)
	}

	return &RunMetrics{queued: queued, outcomes: outcomes, duration: duration}, nil
}

// RecordRun records the tally of a finished run. Safe to call on a nil receiver.
func (rm *RunMetrics) RecordRun(ctx context.Context, stats RunStats) {
	if rm == nil {
		return
	}

	rm.queued.Add(ctx, int64(stats.Queued))

	for outcome, n := range map[string]int{
		OutcomeWritten:     stats.Written,
		OutcomeNotFound:    stats.NotFound,
		OutcomeFetchFailed: stats.FetchFailed,
		OutcomeParseFailed: stats.ParseFailed,
	} {
		rm.outcomes.Add(ctx, int64(n), metric.WithAttributes(attribute.String(attrOutcome, outcome)))
	}

	rm.duration.Record(ctx, stats.Elapsed.Seconds())
}
