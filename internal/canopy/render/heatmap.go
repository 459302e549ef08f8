package render

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/canopy.report/internal/canopy/l1grid"
	"github.com/banshee-data/canopy.report/internal/canopy/l2treetops"
)

// Default image size for CHM plots.
const (
	PlotWidth  = 8 * vg.Inch
	PlotHeight = 8 * vg.Inch
)

// rasterGrid adapts a raster to plotter.GridXYZ. The plotter expects Y to
// increase with the row index, so rows are flipped.
type rasterGrid struct {
	r *l1grid.Raster
	g l1grid.GridIndex
}

func (rg rasterGrid) Dims() (c, r int) { return rg.r.Cols(), rg.r.Rows() }

func (rg rasterGrid) Z(c, r int) float64 {
	v, ok := rg.r.Value(rg.r.Rows()-1-r, c)
	if !ok {
		return math.NaN()
	}
	return v
}

func (rg rasterGrid) X(c int) float64 {
	x, _ := rg.g.CenterOf(0, c)
	return x
}

func (rg rasterGrid) Y(r int) float64 {
	_, y := rg.g.CenterOf(rg.r.Rows()-1-r, 0)
	return y
}

// CHMPlot draws the raster as a heat map and overlays treetops.
func CHMPlot(r *l1grid.Raster, treetops []l2treetops.Treetop, title string) (*plot.Plot, error) {
	lo, hi, ok := r.Range()
	if !ok {
		return nil, fmt.Errorf("raster has no valid cells to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Easting"
	p.Y.Label.Text = "Northing"

	hm := plotter.NewHeatMap(rasterGrid{r: r, g: r.Grid()}, palette.Heat(32, 1))
	hm.NaN = color.Transparent
	hm.Min, hm.Max = lo, hi
	if hi == lo {
		hm.Max = lo + 1
	}
	p.Add(hm)

	if len(treetops) > 0 {
		pts := make(plotter.XYs, len(treetops))
		for i, tt := range treetops {
			pts[i] = plotter.XY{X: tt.X, Y: tt.Y}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("treetop scatter: %w", err)
		}
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Color = color.RGBA{R: 0, G: 90, B: 200, A: 255}
		sc.GlyphStyle.Radius = vg.Points(3)
		p.Add(sc)
		p.Legend.Add(fmt.Sprintf("treetops (%d)", len(treetops)), sc)
	}
	return p, nil
}

// WriteCHMPNG renders CHMPlot as PNG to w.
func WriteCHMPNG(w io.Writer, r *l1grid.Raster, treetops []l2treetops.Treetop, title string) error {
	p, err := CHMPlot(r, treetops, title)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(PlotWidth, PlotHeight, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveCHMPlot writes CHMPlot to path; the format follows the extension.
func SaveCHMPlot(path string, r *l1grid.Raster, treetops []l2treetops.Treetop, title string) error {
	p, err := CHMPlot(r, treetops, title)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	return p.Save(PlotWidth, PlotHeight, path)
}
