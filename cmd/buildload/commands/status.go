package commands

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/buildload/pkg/checkpoint"
	"github.com/Sumatoshi-tech/buildload/pkg/dataset"
)

func newStatusCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last collect run and the dataset size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}

			resume, err := dataset.Load(cfg.Dataset.Path)
			if err != nil {
				return err
			}

			manager := checkpoint.NewManager(cfg.Dataset.Path)

			state, err := manager.Load()
			if err != nil && !errors.Is(err, checkpoint.ErrNoState) {
				return err
			}

			var mismatch error
			if state != nil {
				mismatch = manager.Validate(state)
			}

			writeStatus(cmd.OutOrStdout(), cfg.Dataset.Path, resume, state, mismatch)

			return nil
		},
	}
}

// writeStatus renders the dataset counters and the last run. A non-nil
// mismatch is shown as a warning above the run counters.
func writeStatus(w io.Writer, path string, resume *dataset.ResumeSet, state *checkpoint.RunState, mismatch error) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.SetTitle("buildload status")

	tbl.AppendRow(table.Row{"Dataset", path})
	tbl.AppendRow(table.Row{"Rows", humanize.Comma(int64(resume.Rows()))})
	tbl.AppendRow(table.Row{"Pairs", humanize.Comma(int64(resume.Len()))})
	tbl.AppendRow(table.Row{"Commits", humanize.Comma(int64(resume.Commits()))})

	if state == nil {
		tbl.AppendSeparator()
		tbl.AppendRow(table.Row{"Last run", "none recorded"})
		tbl.Render()

		return
	}

	outcome := color.GreenString("complete")

	switch {
	case state.Interrupted:
		outcome = color.YellowString("interrupted")
	case state.Error != "":
		outcome = color.RedString("failed: %s", state.Error)
	}

	tbl.AppendSeparator()

	if mismatch != nil {
		tbl.AppendRow(table.Row{"Warning", color.YellowString("%v", mismatch)})
	}

	tbl.AppendRow(table.Row{"Last run", fmt.Sprintf("%s (%s)",
		state.FinishedAt.Local().Format(time.DateTime), humanize.Time(state.FinishedAt))})
	tbl.AppendRow(table.Row{"Outcome", outcome})
	tbl.AppendRow(table.Row{"Duration", state.Duration().Round(time.Millisecond).String()})
	tbl.AppendRow(table.Row{"Commit list", humanize.Comma(int64(state.Commits))})
	tbl.AppendRow(table.Row{"Queued", humanize.Comma(int64(state.Queued))})
	tbl.AppendRow(table.Row{"Written", humanize.Comma(int64(state.Written))})
	tbl.AppendRow(table.Row{"Not found", humanize.Comma(int64(state.NotFound))})
	tbl.AppendRow(table.Row{"Fetch failed", humanize.Comma(int64(state.FetchFailed))})
	tbl.AppendRow(table.Row{"Parse failed", humanize.Comma(int64(state.ParseFailed))})
	tbl.AppendRow(table.Row{"Outstanding", humanize.Comma(int64(state.Outstanding()))})

	if state.Binary != "" {
		tbl.AppendRow(table.Row{"Binary", state.Binary})
	}

	tbl.Render()
}
