package render

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/canopy.report/internal/canopy/l4zonal"
)

// HeightHistogram returns a bar chart of height frequencies in bins equal
// width classes. NaN heights are ignored.
func HeightHistogram(heights []float64, bins int, title string) (*charts.Bar, error) {
	if bins < 1 {
		return nil, fmt.Errorf("bins must be at least 1, got %d", bins)
	}
	x := make([]float64, 0, len(heights))
	for _, h := range heights {
		if !math.IsNaN(h) {
			x = append(x, h)
		}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("n=%d", len(x))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "height", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Name: "trees"}),
	)
	if len(x) == 0 {
		bar.SetXAxis([]string{}).AddSeries("trees", []opts.BarData{})
		return bar, nil
	}

	sort.Float64s(x)
	lo, hi := x[0], x[len(x)-1]
	dividers := make([]float64, bins+1)
	floats.Span(dividers, lo, hi)
	// The last class is closed on the right.
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, x, nil)

	labels := make([]string, bins)
	data := make([]opts.BarData, bins)
	for i := range counts {
		labels[i] = fmt.Sprintf("%.1f-%.1f", dividers[i], dividers[i+1])
		data[i] = opts.BarData{Value: counts[i]}
	}
	bar.SetXAxis(labels).AddSeries("trees", data)
	return bar, nil
}

// ZoneBar returns a bar chart of one summary column across zones. Missing
// values are drawn as gaps.
func ZoneBar(tbl *l4zonal.Table, column, title string) (*charts.Bar, error) {
	col := -1
	for i, name := range tbl.Columns {
		if name == column {
			col = i
			break
		}
	}
	var values []float64
	switch {
	case col >= 0:
		values = tbl.Values[col]
	case column == l4zonal.CountLayer:
		values = make([]float64, len(tbl.Count))
		for i, c := range tbl.Count {
			values[i] = float64(c)
		}
	default:
		return nil, fmt.Errorf("unknown summary column %q", column)
	}

	data := make([]opts.BarData, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			data[i] = opts.BarData{Value: "-"}
			continue
		}
		data[i] = opts.BarData{Value: v}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("zones=%d", len(values))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	bar.SetXAxis(tbl.ZoneIDs).AddSeries(column, data)
	return bar, nil
}

// WritePage renders the charts into one HTML page.
func WritePage(w io.Writer, cs ...components.Charter) error {
	page := components.NewPage()
	page.AddCharts(cs...)
	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// SavePage writes the charts as an HTML page to path.
func SavePage(path string, cs ...components.Charter) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WritePage(f, cs...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
