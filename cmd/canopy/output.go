package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/components"

	"github.com/banshee-data/canopy.report/internal/canopy/l1grid"
	"github.com/banshee-data/canopy.report/internal/canopy/l4zonal"
	"github.com/banshee-data/canopy.report/internal/canopy/pipeline"
	"github.com/banshee-data/canopy.report/internal/canopy/rasterio"
	"github.com/banshee-data/canopy.report/internal/canopy/render"
	"github.com/banshee-data/canopy.report/internal/canopy/storage/sqlite"
	"github.com/banshee-data/canopy.report/internal/canopy/vector"
	"github.com/banshee-data/canopy.report/internal/config"
	"github.com/banshee-data/canopy.report/internal/db"
	"github.com/banshee-data/canopy.report/internal/security"
)

// histogramBins is the number of bins in the report's height histogram.
const histogramBins = 20

// outputWriter places products inside one directory and reports each file.
type outputWriter struct {
	dir string
	log io.Writer
}

func newOutputWriter(dir string, log io.Writer) (*outputWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &outputWriter{dir: dir, log: log}, nil
}

func (w *outputWriter) path(name, ext string) (string, error) {
	return security.OutputPath(w.dir, name, ext)
}

func (w *outputWriter) wrote(path string) {
	fmt.Fprintf(w.log, "wrote %s\n", path)
}

// writeZonal writes a CSV table per summary, a raster per layer for grid
// zones and a joined GeoJSON per summary for polygon zones.
func (w *outputWriter) writeZonal(out *pipeline.Output) error {
	summaries := []struct {
		prefix string
		res    *l4zonal.Result
	}{
		{"treetops", out.TreetopSummary},
		{"crowns", out.CrownSummary},
	}
	for _, s := range summaries {
		tbl := s.res.Table()
		if err := w.writeTable(s.prefix+"_zones", tbl); err != nil {
			return err
		}

		switch zones := out.Zones.(type) {
		case *l4zonal.GridZones:
			if err := w.writeRasters(s.prefix, s.res); err != nil {
				return err
			}
		case *l4zonal.PolygonZones:
			fc, err := vector.ZoneCollection(zones, tbl)
			if err != nil {
				return err
			}
			p, err := w.path(s.prefix+"_zones", ".geojson")
			if err != nil {
				return err
			}
			if err := vector.WriteFile(p, fc); err != nil {
				return err
			}
			w.wrote(p)
		}
	}
	return nil
}

func (w *outputWriter) writeTable(name string, tbl *l4zonal.Table) error {
	p, err := w.path(name, ".csv")
	if err != nil {
		return err
	}
	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("create %s: %w", p, err)
	}
	if err := tbl.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	w.wrote(p)
	return nil
}

// writeRasters writes <prefix>_<layer>.asc for every layer in stable order.
func (w *outputWriter) writeRasters(prefix string, res *l4zonal.Result) error {
	rasters, err := res.Rasters()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(rasters))
	for name := range rasters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p, err := w.path(prefix+"_"+name, ".asc")
		if err != nil {
			return err
		}
		if err := rasterio.WriteFile(p, rasters[name]); err != nil {
			return err
		}
		w.wrote(p)
	}
	return nil
}

// writeFeatures writes the treetop points, the crown points with their
// bboxes and the crown label raster.
func (w *outputWriter) writeFeatures(out *pipeline.Output) error {
	p, err := w.path("treetops", ".geojson")
	if err != nil {
		return err
	}
	if err := vector.WriteFile(p, vector.TreetopCollection(out.Treetops)); err != nil {
		return err
	}
	w.wrote(p)

	if p, err = w.path("crowns", ".geojson"); err != nil {
		return err
	}
	if err := vector.WriteFile(p, vector.CrownCollection(out.Crowns)); err != nil {
		return err
	}
	w.wrote(p)

	if p, err = w.path("crowns", ".asc"); err != nil {
		return err
	}
	if err := rasterio.WriteFile(p, out.Crowns.LabelRaster(l1grid.DefaultNoData)); err != nil {
		return err
	}
	w.wrote(p)
	return nil
}

// writePlots writes the raster heatmap and an HTML report with a height
// histogram and per-zone bar charts.
func (w *outputWriter) writePlots(chm *l1grid.Raster, out *pipeline.Output) error {
	p, err := w.path("chm", ".png")
	if err != nil {
		return err
	}
	if err := render.SaveCHMPlot(p, chm, out.Treetops, "Canopy height"); err != nil {
		return err
	}
	w.wrote(p)

	heights := make([]float64, len(out.Treetops))
	for i, tt := range out.Treetops {
		heights[i] = tt.Height()
	}
	hist, err := render.HeightHistogram(heights, histogramBins, "Treetop heights")
	if err != nil {
		return err
	}
	charts := []components.Charter{hist}

	treetopTable := out.TreetopSummary.Table()
	crownTable := out.CrownSummary.Table()
	bars := []struct {
		tbl    *l4zonal.Table
		column string
		title  string
	}{
		{treetopTable, l4zonal.CountLayer, "Trees per zone"},
		{treetopTable, pipeline.LayerTopHeight, "Top height per zone"},
		{crownTable, pipeline.LayerCanopy, "Crown area per zone"},
	}
	for _, b := range bars {
		bar, err := render.ZoneBar(b.tbl, b.column, b.title)
		if err != nil {
			return err
		}
		charts = append(charts, bar)
	}

	if p, err = w.path("report", ".html"); err != nil {
		return err
	}
	if err := render.SavePage(p, charts...); err != nil {
		return err
	}
	w.wrote(p)
	return nil
}

// recordRun stores the run and its products, returning the run id.
func recordRun(dbPath, chmPath string, tuning *config.TuningConfig, chm *l1grid.Raster, out *pipeline.Output) (string, error) {
	params, err := json.Marshal(tuning)
	if err != nil {
		return "", fmt.Errorf("marshal tuning config: %w", err)
	}
	database, err := db.NewDB(dbPath)
	if err != nil {
		return "", err
	}
	defer database.Close()

	run := &sqlite.Run{
		CHMPath:    chmPath,
		Rows:       chm.Rows(),
		Cols:       chm.Cols(),
		ParamsJSON: params,
	}
	if err := sqlite.SaveOutput(database.DB, run, out); err != nil {
		return "", err
	}
	return run.RunID, nil
}

func formatHeight(h float64) string {
	if math.IsNaN(h) {
		return "NA"
	}
	return strconv.FormatFloat(h, 'f', 2, 64)
}
