// Package report turns the collected dataset into the build wall-time
// analysis: the slowest builders by recent median duration, with smoothed
// duration and CPU-usage histories.
package report

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Sumatoshi-tech/buildload/pkg/alg/stats"
	"github.com/Sumatoshi-tech/buildload/pkg/commits"
	"github.com/Sumatoshi-tech/buildload/pkg/dataset"
)

// ErrInvalidOptions is returned when a size parameter is not positive.
var ErrInvalidOptions = errors.New("report: top, window and smooth must be positive")

const secondsPerHour = 3600

// Options sizes the analysis.
type Options struct {
	// Top is the number of builders selected.
	Top int `json:"top" yaml:"top"`
	// Window is the number of most recent commits used for ranking.
	Window int `json:"window" yaml:"window"`
	// Smooth is the rolling-median width applied to the histories.
	Smooth int `json:"smooth" yaml:"smooth"`
}

// Validate checks that every size is positive.
func (o Options) Validate() error {
	if o.Top <= 0 || o.Window <= 0 || o.Smooth <= 0 {
		return fmt.Errorf("%w: top=%d window=%d smooth=%d", ErrInvalidOptions, o.Top, o.Window, o.Smooth)
	}

	return nil
}

// Point is one smoothed sample of a builder history.
type Point struct {
	Time   time.Time `json:"time"   yaml:"time"`
	Commit string    `json:"commit" yaml:"commit"`
	Hours  float64   `json:"hours"  yaml:"hours"`
	CPU    float64   `json:"cpu"    yaml:"cpu"`
}

// Builder is the analysis of one selected builder.
type Builder struct {
	Name    string `json:"name"    yaml:"name"`
	Commits int    `json:"commits" yaml:"commits"`

	// Ranking statistics over the last Window commits.
	MedianHours float64 `json:"median_hours" yaml:"median_hours"`
	P95Hours    float64 `json:"p95_hours"    yaml:"p95_hours"`
	MeanCPU     float64 `json:"mean_cpu"     yaml:"mean_cpu"`

	// Whole-history statistics.
	MeanHours   float64 `json:"mean_hours"   yaml:"mean_hours"`
	StdDevHours float64 `json:"stddev_hours" yaml:"stddev_hours"`
	MinHours    float64 `json:"min_hours"    yaml:"min_hours"`
	MaxHours    float64 `json:"max_hours"    yaml:"max_hours"`
	TotalHours  float64 `json:"total_hours"  yaml:"total_hours"`

	LatestCommit  string    `json:"latest_commit"  yaml:"latest_commit"`
	LatestTime    time.Time `json:"latest_time"    yaml:"latest_time"`
	SmoothedHours float64   `json:"smoothed_hours" yaml:"smoothed_hours"`
	SmoothedCPU   float64   `json:"smoothed_cpu"   yaml:"smoothed_cpu"`

	History []Point `json:"history" yaml:"history"`
}

// Report is the complete analysis.
type Report struct {
	Options  Options   `json:"options"  yaml:"options"`
	Rows     int       `json:"rows"     yaml:"rows"`
	Skipped  int       `json:"skipped"  yaml:"skipped"`
	Builders int       `json:"builders" yaml:"builders"`
	Selected []Builder `json:"selected" yaml:"selected"`
}

type sample struct {
	at    time.Time
	sha   string
	hours float64
	cpu   float64
}

// Load reads the dataset at path and builds the report. Malformed rows are
// logged at debug level and counted as skipped.
func Load(path string, opts Options, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.Default()
	}

	skipped := 0

	rows, err := dataset.ReadSummaries(path, func(line int, err error) {
		skipped++

		logger.Debug("report: skipping dataset row", "line", line, "error", err)
	})
	if err != nil {
		return nil, err
	}

	rep, err := Build(rows, opts, logger)
	if err != nil {
		return nil, err
	}

	rep.Skipped += skipped

	return rep, nil
}

// Build analyses rows. Rows whose commit time does not parse are skipped.
func Build(rows []dataset.Summary, opts Options, logger *slog.Logger) (*Report, error) {
	err := opts.Validate()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	rep := &Report{Options: opts, Rows: len(rows)}
	groups := make(map[string][]sample)

	for _, row := range rows {
		at, parseErr := commits.ParseTime(row.CommitTime)
		if parseErr != nil {
			rep.Skipped++

			logger.Debug("report: skipping dataset row", "commit", row.CommitSHA, "builder", row.Builder, "error", parseErr)

			continue
		}

		groups[row.Builder] = append(groups[row.Builder], sample{
			at:    at,
			sha:   row.CommitSHA,
			hours: float64(row.DurationSeconds) / secondsPerHour,
			cpu:   row.AvgCPUUsage,
		})
	}

	rep.Builders = len(groups)

	ranked := make([]Builder, 0, len(groups))
	for name, samples := range groups {
		ranked = append(ranked, analyse(name, samples, opts))
	}

	// Slowest first; equal medians in name order.
	slices.SortFunc(ranked, func(a, b Builder) int {
		if c := cmp.Compare(b.MedianHours, a.MedianHours); c != 0 {
			return c
		}

		return cmp.Compare(a.Name, b.Name)
	})

	rep.Selected = ranked[:stats.Clamp(opts.Top, 0, len(ranked))]

	return rep, nil
}

func analyse(name string, samples []sample, opts Options) Builder {
	slices.SortStableFunc(samples, func(a, b sample) int {
		return cmp.Or(a.at.Compare(b.at), cmp.Compare(a.hours, b.hours), cmp.Compare(a.cpu, b.cpu))
	})

	hours := make([]float64, len(samples))
	cpu := make([]float64, len(samples))

	for i, s := range samples {
		hours[i] = s.hours
		cpu[i] = s.cpu
	}

	recent := max(0, len(samples)-opts.Window)
	mean, stddev := stats.MeanStdDev(hours)
	latest := samples[len(samples)-1]

	smoothHours := stats.RollingMedian(hours, opts.Smooth)
	smoothCPU := stats.RollingMedian(cpu, opts.Smooth)

	history := make([]Point, len(samples))
	for i, s := range samples {
		history[i] = Point{Time: s.at, Commit: s.sha, Hours: smoothHours[i], CPU: smoothCPU[i]}
	}

	return Builder{
		Name:          name,
		Commits:       len(samples),
		MedianHours:   stats.Median(hours[recent:]),
		P95Hours:      stats.Percentile(hours[recent:], stats.PercentileP95),
		MeanCPU:       stats.Mean(cpu[recent:]),
		MeanHours:     mean,
		StdDevHours:   stddev,
		MinHours:      stats.Min(hours),
		MaxHours:      stats.Max(hours),
		TotalHours:    stats.Sum(hours),
		LatestCommit:  latest.sha,
		LatestTime:    latest.at,
		SmoothedHours: stats.Last(smoothHours),
		SmoothedCPU:   stats.Last(smoothCPU),
		History:       history,
	}
}
