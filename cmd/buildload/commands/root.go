// Package commands implements CLI command handlers for buildload.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/buildload/pkg/config"
	"github.com/Sumatoshi-tech/buildload/pkg/observability"
	"github.com/Sumatoshi-tech/buildload/pkg/version"
)

// shutdownGrace bounds telemetry flushing after a command returns.
const shutdownGrace = 10 * time.Second

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	dataset    string
	logLevel   string
	logJSON    bool
	noColor    bool
}

// NewRootCommand creates the buildload command tree. Without a subcommand it
// runs collect.
func NewRootCommand() *cobra.Command {
	g := &globalFlags{}
	collect := newCollectCommand(g)

	root := &cobra.Command{
		Use:   "buildload",
		Short: "Collect and analyse per-builder CI CPU load",
		Long: `buildload downloads the CPU-usage series recorded by every CI builder for
every merged commit, reduces each one to a wall-time and average-load summary,
and keeps the results in an append-only CSV dataset.

Commands:
  collect   Fetch outstanding series and append summaries (default)
  report    Rank the slowest builders from the dataset
  status    Show the last run and dataset size`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          collect.RunE,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if g.noColor {
				color.NoColor = true
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Config file (default: .buildload.yaml in the working or home directory)")
	pf.StringVarP(&g.dataset, "dataset", "d", "", "Dataset CSV path (overrides dataset.path)")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides logging.level)")
	pf.BoolVar(&g.logJSON, "log-json", false, "Emit JSON logs")
	pf.BoolVar(&g.noColor, "no-color", false, "Disable colored output")

	root.Flags().AddFlagSet(collect.Flags())

	root.AddCommand(collect)
	root.AddCommand(newReportCommand(g))
	root.AddCommand(newStatusCommand(g))
	root.AddCommand(newVersionCommand())

	return root
}

// load reads the configuration and applies the global flag overrides.
func (g *globalFlags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(g.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()

	if flags.Changed("dataset") {
		cfg.Dataset.Path = g.dataset
	}

	if flags.Changed("log-level") {
		cfg.Logging.Level = g.logLevel
	}

	if flags.Changed("log-json") {
		cfg.Logging.JSON = g.logJSON
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// telemetry initialises observability for mode and returns the providers and
// a shutdown func that logs its own failure.
func telemetry(cfg *config.Config, mode observability.AppMode) (observability.Providers, func(), error) {
	providers, err := observability.Init(cfg.ObservabilityConfig(mode, version.Version))
	if err != nil {
		return observability.Providers{}, nil, fmt.Errorf("init observability: %w", err)
	}

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		shutdownErr := providers.Shutdown(ctx)
		if shutdownErr != nil {
			providers.Logger.Warn("observability: shutdown failed", slog.Any("error", shutdownErr))
		}
	}

	return providers, shutdown, nil
}
