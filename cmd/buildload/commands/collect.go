package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/buildload/pkg/checkpoint"
	"github.com/Sumatoshi-tech/buildload/pkg/commits"
	"github.com/Sumatoshi-tech/buildload/pkg/config"
	"github.com/Sumatoshi-tech/buildload/pkg/dataset"
	"github.com/Sumatoshi-tech/buildload/pkg/fetch"
	"github.com/Sumatoshi-tech/buildload/pkg/observability"
	"github.com/Sumatoshi-tech/buildload/pkg/pipeline"
	"github.com/Sumatoshi-tech/buildload/pkg/version"
	"github.com/Sumatoshi-tech/buildload/pkg/work"
)

// ErrInterrupted is returned when a collect run is stopped by a signal.
var ErrInterrupted = errors.New("interrupted")

// CollectCommand holds the collect flags.
type CollectCommand struct {
	global *globalFlags

	maxInflight  int
	noEarlyStop  bool
	resetCorrupt bool
}

func newCollectCommand(g *globalFlags) *cobra.Command {
	cc := &CollectCommand{global: g}

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Fetch outstanding series and append summaries to the dataset",
		Long: `Fetch the commit list, skip every (commit, builder) pair already in the
dataset, download the remaining CPU series with bounded concurrency and append
one summary row per series. Interrupted runs resume where they stopped.`,
		Args: cobra.NoArgs,
		RunE: cc.run,
	}

	cmd.Flags().IntVar(&cc.maxInflight, "max-inflight", 0, "Concurrent artifact requests (0 = fetch.max_inflight)")
	cmd.Flags().BoolVar(&cc.noEarlyStop, "no-early-stop", false, "Scan every commit instead of stopping at the first collected one")
	cmd.Flags().BoolVar(&cc.resetCorrupt, "reset-corrupt", false, "Discard an unreadable dataset instead of failing")

	return cmd
}

func (cc *CollectCommand) run(cmd *cobra.Command, _ []string) error {
	cfg, err := cc.global.load(cmd)
	if err != nil {
		return err
	}

	cc.apply(cmd, cfg)

	providers, shutdown, err := telemetry(cfg, observability.ModeCollect)
	if err != nil {
		return err
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return collect(ctx, cfg, providers, cmd.OutOrStdout())
}

func (cc *CollectCommand) apply(cmd *cobra.Command, cfg *config.Config) {
	if cc.maxInflight > 0 {
		cfg.Fetch.MaxInflight = cc.maxInflight
	}

	if cmd.Flags().Changed("no-early-stop") {
		cfg.Resume.EarlyStop = !cc.noEarlyStop
	}

	if cc.resetCorrupt {
		cfg.Dataset.ResetCorrupt = true
	}
}

// collect performs one run and records it in the state sidecar. The sidecar
// is written whenever the run got as far as opening the dataset.
func collect(ctx context.Context, cfg *config.Config, providers observability.Providers, out io.Writer) error {
	logger := providers.Logger
	state := checkpoint.RunState{Binary: version.String(), StartedAt: time.Now().UTC()}

	client := commits.NewClient(cfg.Commits.URL, cfg.Commits.Timeout)

	list, err := client.List(ctx)
	if err != nil {
		return err
	}

	state.Commits = len(list)

	logger.Info("collect: commit list fetched", "commits", len(list), "url", client.URL())

	resume, err := loadResume(cfg, logger)
	if err != nil {
		return err
	}

	store, err := dataset.Open(cfg.Dataset.Path, resume)
	if err != nil {
		return err
	}

	fetcher, err := newFetcher(cfg, providers)
	if err != nil {
		return errors.Join(err, store.Close())
	}

	runMetrics, err := observability.NewRunMetrics(providers.Meter)
	if err != nil {
		return errors.Join(err, store.Close())
	}

	fetchCfg := fetcher.Config()
	logger.Info("collect: fetching series",
		"dataset", store.Path(), "base_url", fetchCfg.BaseURL,
		"max_inflight", fetchCfg.MaxInflight, "timeout", fetchCfg.RequestTimeout)

	p := pipeline.New(pipeline.Deps{
		Strategy:      work.PerBuilder{EarlyStop: cfg.Resume.EarlyStop, Logger: logger},
		Resume:        resume,
		Fetcher:       fetcher,
		Store:         store,
		Logger:        logger,
		Tracer:        providers.Tracer,
		Metrics:       runMetrics,
		ProgressEvery: cfg.Pipeline.ProgressEvery,
	})

	stats, runErr := p.Run(ctx, list)
	closeErr := store.Close()

	state.FinishedAt = time.Now().UTC()
	state.Queued = stats.Queued
	state.Written = stats.Written
	state.NotFound = stats.NotFound
	state.FetchFailed = stats.FetchFailed
	state.ParseFailed = stats.ParseFailed
	state.Interrupted = errors.Is(runErr, context.Canceled)

	err = errors.Join(runErr, closeErr)
	if err != nil {
		state.Error = err.Error()
	}

	saveErr := checkpoint.NewManager(cfg.Dataset.Path).Save(state)
	if saveErr != nil {
		logger.Warn("collect: run state not saved", slog.Any("error", saveErr))
	}

	printSummary(out, state)

	if state.Interrupted {
		return ErrInterrupted
	}

	return err
}

// loadResume reads the dataset into a resume set, applying the corrupt-file
// policy.
func loadResume(cfg *config.Config, logger *slog.Logger) (*dataset.ResumeSet, error) {
	resume, err := dataset.Load(cfg.Dataset.Path)
	if errors.Is(err, dataset.ErrCorrupt) && cfg.Dataset.ResetCorrupt {
		logger.Warn("collect: dataset unreadable, starting over", "path", cfg.Dataset.Path, slog.Any("error", err))

		return dataset.NewResumeSet(), nil
	}

	if err != nil {
		return nil, err
	}

	logger.Info("collect: dataset loaded",
		"path", cfg.Dataset.Path, "rows", resume.Rows(), "pairs", resume.Len(), "commits", resume.Commits())

	return resume, nil
}

func newFetcher(cfg *config.Config, providers observability.Providers) (*fetch.Fetcher, error) {
	maxBody, err := cfg.Fetch.MaxBodyBytes()
	if err != nil {
		return nil, err
	}

	fetchMetrics, err := observability.NewFetchMetrics(providers.Meter)
	if err != nil {
		return nil, err
	}

	return fetch.New(fetch.Config{
		BaseURL:        cfg.Artifacts.BaseURL,
		AltSuffix:      cfg.Artifacts.AltSuffix,
		MaxInflight:    cfg.Fetch.MaxInflight,
		RequestTimeout: cfg.Fetch.RequestTimeout,
		MaxBodyBytes:   maxBody,
	},
		fetch.WithLogger(providers.Logger),
		fetch.WithTracer(providers.Tracer),
		fetch.WithMetrics(fetchMetrics),
	), nil
}

func printSummary(w io.Writer, state checkpoint.RunState) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	failed := state.FetchFailed + state.ParseFailed

	fmt.Fprintf(w, "%s rows written, %s not found, %s failed of %s queued (%s commits) in %s\n",
		green(humanize.Comma(int64(state.Written))),
		yellow(humanize.Comma(int64(state.NotFound))),
		red(humanize.Comma(int64(failed))),
		humanize.Comma(int64(state.Queued)),
		humanize.Comma(int64(state.Commits)),
		state.Duration().Round(time.Millisecond),
	)

	if state.Interrupted {
		fmt.Fprintln(w, yellow("run interrupted; the next run resumes from the dataset"))
	}
}
