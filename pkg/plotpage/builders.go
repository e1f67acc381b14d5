// Package plotpage renders time-series line charts into a standalone HTML page.
package plotpage

import (
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Point is one sample of a time series.
type Point struct {
	Time  time.Time
	Value float64
}

// LineSeries defines the properties and data for a single line series.
type LineSeries struct {
	Name   string
	Points []Point
	Color  string // Optional, uses the theme palette if empty.
}

// BuildLineChart constructs a themed line chart over a time axis. Series
// without an explicit color take palette colors in order. If cOpts is nil,
// DefaultChartOpts() is used.
func BuildLineChart(cOpts *ChartOpts, title string, series []LineSeries, yAxisLabel string) *charts.Line {
	if cOpts == nil {
		cOpts = DefaultChartOpts()
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(cOpts.Init("100%", "500px")),
		charts.WithTitleOpts(cOpts.Title(title, "")),
		charts.WithTooltipOpts(cOpts.Tooltip("axis")),
		charts.WithDataZoomOpts(cOpts.DataZoom()...),
		charts.WithGridOpts(cOpts.Grid()),
		charts.WithXAxisOpts(cOpts.XAxis("")),
		charts.WithYAxisOpts(cOpts.YAxis(yAxisLabel)),
		charts.WithLegendOpts(cOpts.Legend()),
	)

	for i, s := range series {
		data := make([]opts.LineData, len(s.Points))
		for j, p := range s.Points {
			data[j] = opts.LineData{Value: []any{p.Time.UTC().Format(time.RFC3339), p.Value}}
		}

		color := s.Color
		if color == "" {
			color = cOpts.Theme().Color(i)
		}

		line.AddSeries(s.Name, data,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: color}),
			charts.WithLineStyleOpts(opts.LineStyle{Color: color}),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		)
	}

	return line
}
