package render

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/canopy.report/internal/canopy/l1grid"
	"github.com/banshee-data/canopy.report/internal/canopy/l2treetops"
	"github.com/banshee-data/canopy.report/internal/canopy/l4zonal"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func testRaster(t *testing.T, rows [][]float64) *l1grid.Raster {
	t.Helper()
	r, err := l1grid.NewRasterFromRows(rows, l1grid.Transform{OriginX: 0, OriginY: float64(len(rows)), CellWidth: 1, CellHeight: 1}, l1grid.DefaultNoData)
	if err != nil {
		t.Fatalf("NewRasterFromRows: %v", err)
	}
	return r
}

func TestRasterGrid_FlipsRows(t *testing.T) {
	r := testRaster(t, [][]float64{
		{1, 2},
		{3, l1grid.DefaultNoData},
	})
	g := rasterGrid{r: r, g: r.Grid()}

	if c, rows := g.Dims(); c != 2 || rows != 2 {
		t.Errorf("Dims = (%d, %d), want (2, 2)", c, rows)
	}
	// Plot row 0 is the southern raster row.
	if z := g.Z(0, 0); z != 3 {
		t.Errorf("Z(0, 0) = %v, want 3", z)
	}
	if z := g.Z(1, 0); !math.IsNaN(z) {
		t.Errorf("Z(1, 0) = %v, want NaN for no-data", z)
	}
	if z := g.Z(0, 1); z != 1 {
		t.Errorf("Z(0, 1) = %v, want 1", z)
	}
	if g.Y(0) >= g.Y(1) {
		t.Errorf("Y must increase with plot row: Y(0)=%v Y(1)=%v", g.Y(0), g.Y(1))
	}
	if x := g.X(0); x != 0.5 {
		t.Errorf("X(0) = %v, want 0.5", x)
	}
}

func TestWriteCHMPNG(t *testing.T) {
	r := testRaster(t, [][]float64{
		{1, 2, 1},
		{2, 10, 2},
		{1, 2, 1},
	})
	treetops, err := l2treetops.Detect(r, l2treetops.Params{Window: l2treetops.ConstantWindow(1)})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteCHMPNG(&buf, r, treetops, "chm"); err != nil {
		t.Fatalf("WriteCHMPNG: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), pngMagic) {
		t.Error("output is not a PNG")
	}
}

func TestCHMPlot_FlatAndEmpty(t *testing.T) {
	flat := testRaster(t, [][]float64{{5, 5}, {5, 5}})
	if _, err := CHMPlot(flat, nil, "flat"); err != nil {
		t.Errorf("flat raster: %v", err)
	}

	empty := testRaster(t, [][]float64{{l1grid.DefaultNoData}})
	if _, err := CHMPlot(empty, nil, "empty"); err == nil {
		t.Error("all no-data raster: expected an error")
	}
}

func TestSaveCHMPlot(t *testing.T) {
	r := testRaster(t, [][]float64{{1, 2}, {3, 4}})
	path := filepath.Join(t.TempDir(), "plots", "chm.png")
	if err := SaveCHMPlot(path, r, nil, "chm"); err != nil {
		t.Fatalf("SaveCHMPlot: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read plot: %v", err)
	}
	if !bytes.HasPrefix(data, pngMagic) {
		t.Error("saved file is not a PNG")
	}
}

func TestHeightHistogram(t *testing.T) {
	bar, err := HeightHistogram([]float64{1, 2, 2, 3, 4, math.NaN()}, 3, "Tree heights")
	if err != nil {
		t.Fatalf("HeightHistogram: %v", err)
	}

	var buf bytes.Buffer
	if err := WritePage(&buf, bar); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	html := buf.String()
	for _, want := range []string{"Tree heights", "n=5"} {
		if !strings.Contains(html, want) {
			t.Errorf("page does not contain %q", want)
		}
	}

	tests := []struct {
		name    string
		heights []float64
		bins    int
		wantErr bool
	}{
		{"zero bins", nil, 0, true},
		{"no heights", nil, 5, false},
		{"single value", []float64{7, 7}, 4, false},
	}
	for _, tt := range tests {
		_, err := HeightHistogram(tt.heights, tt.bins, tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestZoneBar(t *testing.T) {
	tbl := &l4zonal.Table{
		ZoneIDs: []string{"a", "b"},
		Count:   []int{3, 0},
		Columns: []string{"mean"},
		Values:  [][]float64{{12.5, math.NaN()}},
	}
	bar, err := ZoneBar(tbl, "mean", "Mean height")
	if err != nil {
		t.Fatalf("ZoneBar(mean): %v", err)
	}
	countBar, err := ZoneBar(tbl, l4zonal.CountLayer, "Trees per zone")
	if err != nil {
		t.Fatalf("ZoneBar(count): %v", err)
	}

	path := filepath.Join(t.TempDir(), "zones.html")
	if err := SavePage(path, bar, countBar); err != nil {
		t.Fatalf("SavePage: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read page: %v", err)
	}
	if !strings.Contains(string(data), "Mean height") {
		t.Error("page does not contain the chart title")
	}

	if _, err := ZoneBar(tbl, "nope", "x"); err == nil {
		t.Error("unknown column: expected an error")
	}
}
