package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/buildload/pkg/plotpage"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
	FormatHTML  = "html"
)

// ErrUnsupportedFormat is returned by Write for unknown formats.
var ErrUnsupportedFormat = errors.New("unsupported report format")

// Formats lists the accepted output formats.
func Formats() []string {
	return []string{FormatTable, FormatJSON, FormatYAML, FormatHTML}
}

// Write renders rep to w in the given format.
func Write(w io.Writer, rep *Report, format string) error {
	switch format {
	case FormatTable:
		return writeTable(w, rep)
	case FormatJSON:
		return marshalAndWrite(rep, func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}, w, "json")
	case FormatYAML:
		return marshalAndWrite(rep, yaml.Marshal, w, "yaml")
	case FormatHTML:
		return writeHTML(w, rep)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func marshalAndWrite(data any, marshal func(any) ([]byte, error), w io.Writer, label string) error {
	encoded, err := marshal(data)
	if err != nil {
		return fmt.Errorf("%s encode: %w", label, err)
	}

	_, err = w.Write(encoded)
	if err != nil {
		return fmt.Errorf("%s write: %w", label, err)
	}

	return nil
}

func hours(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func writeTable(w io.Writer, rep *Report) error {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Format.Footer = text.FormatDefault
	tbl.SetTitle(fmt.Sprintf("Slowest builders (median of last %d commits, smoothed over %d)",
		rep.Options.Window, rep.Options.Smooth))

	tbl.AppendHeader(table.Row{
		"#", "Builder", "Commits", "Median h", "P95 h", "Mean h", "Min h", "Max h",
		"Smoothed h", "CPU %", "Latest",
	})

	for i, b := range rep.Selected {
		tbl.AppendRow(table.Row{
			i + 1,
			b.Name,
			humanize.Comma(int64(b.Commits)),
			hours(b.MedianHours),
			hours(b.P95Hours),
			fmt.Sprintf("%s ± %s", hours(b.MeanHours), hours(b.StdDevHours)),
			hours(b.MinHours),
			hours(b.MaxHours),
			hours(b.SmoothedHours),
			hours(b.SmoothedCPU),
			b.LatestTime.UTC().Format(time.DateOnly),
		})
	}

	tbl.AppendFooter(table.Row{
		"", fmt.Sprintf("%d of %d builders", len(rep.Selected), rep.Builders),
		humanize.Comma(int64(rep.Rows)), "", "", "", "", "", "", "",
		fmt.Sprintf("%s skipped", humanize.Comma(int64(rep.Skipped))),
	})

	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
		{Number: 10, Align: text.AlignRight},
	})

	tbl.Render()

	return nil
}

func writeHTML(w io.Writer, rep *Report) error {
	hoursSeries := make([]plotpage.LineSeries, len(rep.Selected))
	cpuSeries := make([]plotpage.LineSeries, len(rep.Selected))

	for i, b := range rep.Selected {
		hp := make([]plotpage.Point, len(b.History))
		cp := make([]plotpage.Point, len(b.History))

		for j, p := range b.History {
			hp[j] = plotpage.Point{Time: p.Time, Value: p.Hours}
			cp[j] = plotpage.Point{Time: p.Time, Value: p.CPU}
		}

		hoursSeries[i] = plotpage.LineSeries{Name: b.Name, Points: hp}
		cpuSeries[i] = plotpage.LineSeries{Name: b.Name, Points: cp}
	}

	page := plotpage.NewPage("Build wall time")
	page.Add(
		plotpage.Section{Title: "Hours", YLabel: "hours", Series: hoursSeries},
		plotpage.Section{Title: "CPU usage", YLabel: "%", Series: cpuSeries},
	)

	return page.Render(w)
}
