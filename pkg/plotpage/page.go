package plotpage

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/components"
)

// Section is one chart of a page.
type Section struct {
	Title  string
	YLabel string
	Series []LineSeries
}

// Page represents a complete report page.
type Page struct {
	Title    string
	Theme    Theme
	Sections []Section
}

// NewPage creates a page with the light theme.
func NewPage(title string) *Page {
	return &Page{Title: title, Theme: ThemeLight}
}

// WithTheme sets the theme for the page.
func (p *Page) WithTheme(theme Theme) *Page {
	p.Theme = theme

	return p
}

// Add appends sections to the page.
func (p *Page) Add(sections ...Section) {
	p.Sections = append(p.Sections, sections...)
}

// Render writes the page as self-contained HTML.
func (p *Page) Render(w io.Writer) error {
	cOpts := NewChartOpts(p.Theme)

	page := components.NewPage()
	page.PageTitle = p.Title
	page.SetLayout(components.PageFlexLayout)
	page.BackgroundColor = cOpts.Theme().PageBackground

	for _, section := range p.Sections {
		page.AddCharts(BuildLineChart(cOpts, section.Title, section.Series, section.YLabel))
	}

	err := page.Render(w)
	if err != nil {
		return fmt.Errorf("render page: %w", err)
	}

	return nil
}
