package plotpage_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/buildload/pkg/plotpage"
)

var day0 = time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)

func points(values ...float64) []plotpage.Point {
	out := make([]plotpage.Point, len(values))
	for i, v := range values {
		out[i] = plotpage.Point{Time: day0.Add(time.Duration(i) * 24 * time.Hour), Value: v}
	}

	return out
}

func TestBuildLineChart(t *testing.T) {
	t.Parallel()

	series := []plotpage.LineSeries{
		{Name: "x86_64-gnu", Points: points(1.5, 2.0, 1.75), Color: "#00ff00"},
		{Name: "dist-x86_64-msvc", Points: points(2.5, 2.25)},
	}

	chart := plotpage.BuildLineChart(plotpage.DefaultChartOpts(), "Hours", series, "hours")
	require.NotNil(t, chart)
	require.Len(t, chart.MultiSeries, 2)
	assert.Equal(t, "x86_64-gnu", chart.MultiSeries[0].Name)
	assert.Equal(t, "dist-x86_64-msvc", chart.MultiSeries[1].Name)
}

func TestBuildLineChart_NilOpts(t *testing.T) {
	t.Parallel()

	chart := plotpage.BuildLineChart(nil, "CPU usage", []plotpage.LineSeries{{Name: "a", Points: points(10)}}, "%")
	require.NotNil(t, chart)
	require.Len(t, chart.MultiSeries, 1)
}

func TestThemeConfig_ColorCycles(t *testing.T) {
	t.Parallel()

	theme := plotpage.GetThemeConfig(plotpage.ThemeDark)
	require.NotEmpty(t, theme.Palette)

	assert.Equal(t, theme.Palette[0], theme.Color(0))
	assert.Equal(t, theme.Palette[1], theme.Color(len(theme.Palette)+1))
	assert.Empty(t, plotpage.ThemeConfig{}.Color(3))
}

func TestGetThemeConfig_UnknownFallsBackToLight(t *testing.T) {
	t.Parallel()

	assert.Equal(t, plotpage.GetThemeConfig(plotpage.ThemeLight), plotpage.GetThemeConfig("sepia"))
}

func TestPage_Render(t *testing.T) {
	t.Parallel()

	page := plotpage.NewPage("Build wall time").WithTheme(plotpage.ThemeDark)
	page.Add(
		plotpage.Section{Title: "Hours", YLabel: "hours", Series: []plotpage.LineSeries{{Name: "x86_64-gnu", Points: points(1, 2)}}},
		plotpage.Section{Title: "CPU usage", YLabel: "%", Series: []plotpage.LineSeries{{Name: "x86_64-gnu", Points: points(40, 60)}}},
	)

	var buf bytes.Buffer

	require.NoError(t, page.Render(&buf))

	html := buf.String()
	assert.Contains(t, html, "<html")
	assert.Contains(t, html, "Build wall time")
	assert.Contains(t, html, "x86_64-gnu")
	assert.Contains(t, html, "CPU usage")
}
