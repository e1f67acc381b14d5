// Package pipeline drives a collect run: enumerate outstanding work, fetch
// series with bounded concurrency, summarize each one and append it to the
// dataset in completion order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/buildload/pkg/builders"
	"github.com/Sumatoshi-tech/buildload/pkg/commits"
	"github.com/Sumatoshi-tech/buildload/pkg/dataset"
	"github.com/Sumatoshi-tech/buildload/pkg/fetch"
	"github.com/Sumatoshi-tech/buildload/pkg/observability"
	"github.com/Sumatoshi-tech/buildload/pkg/series"
	"github.com/Sumatoshi-tech/buildload/pkg/work"
)

// ErrPersistence is returned when a summary cannot be appended. It ends the run.
var ErrPersistence = errors.New("dataset append failed")

// DefaultProgressEvery is the number of outcomes between progress logs.
const DefaultProgressEvery = 100

// Fetcher produces one outcome per key.
type Fetcher interface {
	Run(ctx context.Context, keys []work.Key) <-chan fetch.Outcome
}

// Store persists summaries.
type Store interface {
	Append(row dataset.Summary) error
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Strategy work.Strategy
	Catalog  []builders.Name
	Resume   work.Resume
	Fetcher  Fetcher
	Store    Store

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *observability.RunMetrics

	// ProgressEvery is the number of outcomes between progress logs.
	// Zero selects DefaultProgressEvery.
	ProgressEvery int
}

// RunStats tallies what happened to the enumerated keys.
type RunStats struct {
	Queued      int
	Written     int
	NotFound    int
	FetchFailed int
	ParseFailed int
	Elapsed     time.Duration
}

// Processed is the number of keys with an outcome.
func (s RunStats) Processed() int {
	return s.Written + s.NotFound + s.FetchFailed + s.ParseFailed
}

// Remaining is the number of keys still without an outcome.
func (s RunStats) Remaining() int {
	return s.Queued - s.Processed()
}

// Pipeline runs collect passes. It is not safe for concurrent use.
type Pipeline struct {
	deps Deps
}

// New creates a Pipeline, defaulting the optional dependencies.
func New(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	if deps.Strategy == nil {
		deps.Strategy = work.PerBuilder{EarlyStop: true, Logger: deps.Logger}
	}

	if deps.Catalog == nil {
		deps.Catalog = builders.Catalog()
	}

	if deps.Resume == nil {
		deps.Resume = dataset.NewResumeSet()
	}

	if deps.Tracer == nil {
		deps.Tracer = nooptrace.NewTracerProvider().Tracer("")
	}

	if deps.ProgressEvery <= 0 {
		deps.ProgressEvery = DefaultProgressEvery
	}

	return &Pipeline{deps: deps}
}

// Plan returns the outstanding keys for list.
func (p *Pipeline) Plan(list []commits.Commit) []work.Key {
	return p.deps.Strategy.Enumerate(list, p.deps.Catalog, p.deps.Resume)
}

// Run collects every outstanding key for list. Fetch and parse failures are
// logged and counted; the affected keys stay outstanding for the next run.
// A persistence failure or cancellation of ctx ends the run early with an
// error; rows appended before that point remain valid.
func (p *Pipeline) Run(ctx context.Context, list []commits.Commit) (RunStats, error) {
	start := time.Now()
	logger := p.deps.Logger

	ctx, span := p.deps.Tracer.Start(ctx, "buildload.pipeline.run",
		trace.WithAttributes(attribute.Int("pipeline.commits", len(list))))
	defer span.End()

	keys := p.Plan(list)
	stats := RunStats{Queued: len(keys)}

	logger.InfoContext(ctx, "pipeline: work enumerated",
		"commits", len(list), "builders", len(p.deps.Catalog), "queued", stats.Queued)

	err := p.consume(ctx, keys, &stats)

	stats.Elapsed = time.Since(start)

	span.SetAttributes(
		attribute.Int("pipeline.queued", stats.Queued),
		attribute.Int("pipeline.written", stats.Written),
		attribute.Int("pipeline.not_found", stats.NotFound),
		attribute.Int("pipeline.fetch_failed", stats.FetchFailed),
		attribute.Int("pipeline.parse_failed", stats.ParseFailed),
	)

	p.deps.Metrics.RecordRun(ctx, observability.RunStats{
		Queued:      stats.Queued,
		Written:     stats.Written,
		NotFound:    stats.NotFound,
		FetchFailed: stats.FetchFailed,
		ParseFailed: stats.ParseFailed,
		Elapsed:     stats.Elapsed,
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return stats, err
	}

	logger.InfoContext(ctx, "pipeline: run complete",
		"written", stats.Written, "not_found", stats.NotFound,
		"fetch_failed", stats.FetchFailed, "parse_failed", stats.ParseFailed,
		"elapsed", stats.Elapsed.Round(time.Millisecond))

	return stats, nil
}

func (p *Pipeline) consume(ctx context.Context, keys []work.Key, stats *RunStats) error {
	if len(keys) == 0 {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := p.deps.Fetcher.Run(runCtx, keys)

	for outcome := range outcomes {
		if ctx.Err() != nil && errors.Is(outcome.Err, context.Canceled) {
			continue
		}

		err := p.handle(ctx, outcome, stats)
		if err != nil {
			cancel()

			// Drain so the fetch workers can exit.
			for range outcomes {
			}

			return err
		}

		if stats.Processed()%p.deps.ProgressEvery == 0 {
			p.deps.Logger.InfoContext(ctx, "pipeline: progress",
				"done", stats.Processed(), "remaining", stats.Remaining(), "written", stats.Written)
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("pipeline interrupted: %w", err)
	}

	return nil
}

func (p *Pipeline) handle(ctx context.Context, outcome fetch.Outcome, stats *RunStats) error {
	logger := p.deps.Logger
	key := outcome.Key

	if outcome.Err != nil {
		if errors.Is(outcome.Err, fetch.ErrNotFound) {
			stats.NotFound++

			logger.DebugContext(ctx, "pipeline: artifact missing", "key", key.String())

			return nil
		}

		stats.FetchFailed++

		logger.WarnContext(ctx, "pipeline: fetch failed", "key", key.String(), "error", outcome.Err)

		return nil
	}

	result, err := series.SummarizeBytes(outcome.Body)
	if err != nil {
		stats.ParseFailed++

		logger.WarnContext(ctx, "pipeline: series rejected", "key", key.String(), "error", err)

		return nil
	}

	err = p.deps.Store.Append(dataset.NewSummary(key, result))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPersistence, key, err)
	}

	stats.Written++

	return nil
}
