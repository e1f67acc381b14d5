package commands

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/buildload/pkg/observability"
	"github.com/Sumatoshi-tech/buildload/pkg/report"
)

// ReportCommand holds the report flags.
type ReportCommand struct {
	global *globalFlags

	top    int
	window int
	smooth int
	format string
	output string
}

func newReportCommand(g *globalFlags) *cobra.Command {
	rc := &ReportCommand{global: g}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Rank the slowest builders from the dataset",
		Long: `Group the dataset by builder, rank builders by their median wall time over
the most recent commits and print the slowest ones with smoothed duration and
CPU-usage histories.`,
		Args: cobra.NoArgs,
		RunE: rc.run,
	}

	cmd.Flags().IntVar(&rc.top, "top", 0, "Number of builders to show (0 = report.top)")
	cmd.Flags().IntVar(&rc.window, "window", 0, "Recent commits used for ranking (0 = report.window)")
	cmd.Flags().IntVar(&rc.smooth, "smooth", 0, "Rolling-median width for histories (0 = report.smooth)")
	cmd.Flags().StringVarP(&rc.format, "format", "f", "",
		"Output format: "+strings.Join(report.Formats(), ", ")+" (default report.format)")
	cmd.Flags().StringVarP(&rc.output, "output", "o", "", "Write to file instead of stdout")

	return cmd
}

func (rc *ReportCommand) run(cmd *cobra.Command, _ []string) error {
	cfg, err := rc.global.load(cmd)
	if err != nil {
		return err
	}

	opts := report.Options{
		Top:    pick(rc.top, cfg.Report.Top),
		Window: pick(rc.window, cfg.Report.Window),
		Smooth: pick(rc.smooth, cfg.Report.Smooth),
	}

	format := cfg.Report.Format
	if rc.format != "" {
		format = rc.format
	}

	if !slices.Contains(report.Formats(), format) {
		return fmt.Errorf("%w: %s", report.ErrUnsupportedFormat, format)
	}

	providers, shutdown, err := telemetry(cfg, observability.ModeReport)
	if err != nil {
		return err
	}
	defer shutdown()

	rep, err := report.Load(cfg.Dataset.Path, opts, providers.Logger)
	if err != nil {
		return err
	}

	providers.Logger.Debug("report: analysed dataset",
		"path", cfg.Dataset.Path, "rows", rep.Rows, "skipped", rep.Skipped, "builders", rep.Builders)

	return rc.write(cmd.OutOrStdout(), rep, format)
}

func (rc *ReportCommand) write(stdout io.Writer, rep *report.Report, format string) (err error) {
	if rc.output == "" {
		return report.Write(stdout, rep, format)
	}

	file, err := os.Create(rc.output)
	if err != nil {
		return fmt.Errorf("create report output: %w", err)
	}

	defer func() {
		closeErr := file.Close()
		if err == nil && closeErr != nil {
			err = fmt.Errorf("close report output: %w", closeErr)
		}
	}()

	return report.Write(file, rep, format)
}

func pick(flag, fallback int) int {
	if flag > 0 {
		return flag
	}

	return fallback
}
