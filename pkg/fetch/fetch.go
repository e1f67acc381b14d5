// Package fetch downloads per-builder CPU series with a fixed pool of workers.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/buildload/pkg/builders"
	"github.com/Sumatoshi-tech/buildload/pkg/observability"
	"github.com/Sumatoshi-tech/buildload/pkg/work"
)

// Defaults.
const (
	DefaultBaseURL        = "https://ci-artifacts.rust-lang.org"
	DefaultMaxInflight    = 256
	DefaultRequestTimeout = 60 * time.Second
	DefaultMaxBodyBytes   = 32 << 20

	buildsDir = "rustc-builds"
)

// Config controls where and how artifacts are fetched.
type Config struct {
	// BaseURL is the artifact host, without the rustc-builds directory.
	BaseURL string
	// AltSuffix routes builders whose name ends with it to the alternate directory.
	AltSuffix string
	// MaxInflight is the number of workers, and so the request ceiling.
	MaxInflight int
	// RequestTimeout bounds each request including the body read.
	RequestTimeout time.Duration
	// MaxBodyBytes caps a response body.
	MaxBodyBytes int64
}

// DefaultConfig returns the production endpoints and limits.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		AltSuffix:      builders.AltSuffix,
		MaxInflight:    DefaultMaxInflight,
		RequestTimeout: DefaultRequestTimeout,
		MaxBodyBytes:   DefaultMaxBodyBytes,
	}
}

// Outcome is the result of one key. Exactly one of Body and Err is meaningful.
type Outcome struct {
	Key  work.Key
	Body []byte
	Err  error
}

// Fetcher downloads series for work keys.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.FetchMetrics
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) { f.client = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithTracer sets the tracer for per-request spans.
func WithTracer(t trace.Tracer) Option {
	return func(f *Fetcher) { f.tracer = t }
}

// WithMetrics sets the fetch instruments.
func WithMetrics(m *observability.FetchMetrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// New creates a Fetcher. Zero config fields fall back to DefaultConfig values,
// except AltSuffix: an empty suffix disables alternate routing.
func New(cfg Config, opts ...Option) *Fetcher {
	def := DefaultConfig()

	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}

	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = def.MaxInflight
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	f := &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Transport: otelhttp.NewTransport(newTransport(cfg.MaxInflight)),
		},
		logger: slog.Default(),
		tracer: nooptrace.NewTracerProvider().Tracer(""),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// newTransport sizes the idle pool to the worker count so keep-alive
// connections are reused instead of churned.
func newTransport(workers int) *http.Transport {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Transport{MaxIdleConnsPerHost: workers}
	}

	tr := base.Clone()
	tr.MaxIdleConns = workers
	tr.MaxIdleConnsPerHost = workers

	return tr
}

// Config returns the effective configuration.
func (f *Fetcher) Config() Config { return f.cfg }

// URL returns the artifact location for key.
func (f *Fetcher) URL(key work.Key) string {
	dir := buildsDir
	if key.Builder.HasSuffix(f.cfg.AltSuffix) {
		dir += f.cfg.AltSuffix
	}

	return fmt.Sprintf("%s/%s/%s/cpu-%s.csv", f.cfg.BaseURL, dir, key.SHA(), key.Builder)
}

// Run fetches keys with MaxInflight workers and returns a channel of outcomes
// in completion order. The channel is closed once every key has produced an
// outcome or ctx is done. The caller must drain the channel or cancel ctx.
func (f *Fetcher) Run(ctx context.Context, keys []work.Key) <-chan Outcome {
	out := make(chan Outcome)

	workers := min(f.cfg.MaxInflight, len(keys))

	go func() {
		defer close(out)

		if workers == 0 {
			return
		}

		g, gctx := errgroup.WithContext(ctx)
		jobs := make(chan work.Key)

		g.Go(func() error {
			defer close(jobs)

			for _, key := range keys {
				select {
				case jobs <- key:
				case <-gctx.Done():
					return gctx.Err()
				}
			}

			return nil
		})

		for range workers {
			g.Go(func() error {
				for key := range jobs {
					body, err := f.Fetch(gctx, key)

					select {
					case out <- Outcome{Key: key, Body: body, Err: err}:
					case <-gctx.Done():
						return gctx.Err()
					}
				}

				return nil
			})
		}

		err := g.Wait()
		if err != nil && !errors.Is(err, context.Canceled) {
			f.logger.DebugContext(ctx, "fetch pool stopped", "error", err)
		}
	}()

	return out
}

// Fetch downloads the series for one key.
func (f *Fetcher) Fetch(ctx context.Context, key work.Key) ([]byte, error) {
	url := f.URL(key)

	ctx, span := f.tracer.Start(ctx, "buildload.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("buildload.commit", key.SHA()),
			attribute.String("buildload.builder", key.Builder.String()),
		))
	defer span.End()

	done := f.metrics.TrackInflight(ctx)
	defer done()

	start := time.Now()

	body, err := f.get(ctx, url)

	outcome := classify(err)
	f.metrics.RecordFetch(ctx, outcome, time.Since(start), len(body))
	span.SetAttributes(attribute.String("fetch.outcome", outcome))

	if err != nil && outcome != observability.OutcomeNotFound {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}

	return body, err
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))

		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return nil, &HTTPError{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, &TransportError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}

	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return nil, &TransportError{URL: url, Err: fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, f.cfg.MaxBodyBytes)}
	}

	return body, nil
}

func classify(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case errors.Is(err, ErrNotFound):
		return observability.OutcomeNotFound
	case errors.Is(err, ErrHTTP):
		return observability.OutcomeHTTPError
	case errors.Is(err, context.Canceled):
		return observability.OutcomeCancelled
	default:
		return observability.OutcomeTransport
	}
}
