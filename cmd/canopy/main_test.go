package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb/geojson"

	"github.com/banshee-data/canopy.report/internal/canopy/l1grid"
	"github.com/banshee-data/canopy.report/internal/canopy/rasterio"
	"github.com/banshee-data/canopy.report/internal/canopy/storage/sqlite"
	"github.com/banshee-data/canopy.report/internal/db"
	"github.com/banshee-data/canopy.report/internal/testutil"
)

const standsGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"stand": "north"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[3,0],[3,3],[0,3],[0,0]]]}},
    {"type": "Feature", "properties": {"stand": "far"},
     "geometry": {"type": "Polygon", "coordinates": [[[10,10],[20,10],[20,20],[10,20],[10,10]]]}}
  ]
}`

func writePeak(t *testing.T) (dir, chm string) {
	t.Helper()
	dir = t.TempDir()
	return dir, testutil.WriteASCII(t, dir, "chm.asc", testutil.Peak(t))
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	err := run(context.Background(), args, &buf)
	return buf.String(), err
}

// mustRunCLI runs args and fails the test on error.
func mustRunCLI(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("canopy %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func assertContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("output does not contain %q:\n%s", want, got)
	}
}

func assertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected %s to exist: %v", filepath.Base(path), err)
	}
}

func readFeatures(t *testing.T, path string) *geojson.FeatureCollection {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return fc
}

func readRaster(t *testing.T, path string) *l1grid.Raster {
	t.Helper()
	r, err := rasterio.ReadFile(path)
	if err != nil {
		t.Fatalf("read raster: %v", err)
	}
	return r
}

func TestRun_NoCommand(t *testing.T) {
	out, err := runCLI(t)
	if !errors.Is(err, errUsage) {
		t.Errorf("err = %v, want errUsage", err)
	}
	assertContains(t, out, "Usage: canopy")

	if _, err := runCLI(t, "bogus"); err == nil {
		t.Error("unknown command: expected an error")
	}

	assertContains(t, mustRunCLI(t, "help"), "summarize")
}

func TestRun_Version(t *testing.T) {
	if out := mustRunCLI(t, "version"); !strings.HasPrefix(out, "canopy ") {
		t.Errorf("version output = %q", out)
	}
}

func TestTreetopsCommand(t *testing.T) {
	dir, chm := writePeak(t)
	outPath := filepath.Join(dir, "tops.geojson")
	plotPath := filepath.Join(dir, "chm.png")

	out := mustRunCLI(t, "treetops", "-chm", chm, "-out", outPath, "-plot", plotPath, "-workers", "2")
	assertContains(t, out, "1 treetops written")

	fc := readFeatures(t, outPath)
	if len(fc.Features) != 1 {
		t.Fatalf("got %d features, want 1", len(fc.Features))
	}
	if h := fc.Features[0].Properties.MustFloat64("height"); h != 10 {
		t.Errorf("height = %v, want 10", h)
	}
	assertFileExists(t, plotPath)
}

func TestTreetopsCommand_Errors(t *testing.T) {
	_, chm := writePeak(t)
	tests := []struct {
		name string
		args []string
	}{
		{"missing chm", []string{"treetops"}},
		{"unreadable chm", []string{"treetops", "-chm", filepath.Join(t.TempDir(), "none.asc")}},
		{"bad config", []string{"treetops", "-chm", chm, "-config", "tuning.yaml"}},
		{"unknown flag", []string{"treetops", "-nope"}},
	}
	for _, tt := range tests {
		if _, err := runCLI(t, tt.args...); err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
}

func TestCrownsCommand(t *testing.T) {
	dir, chm := writePeak(t)
	labels := filepath.Join(dir, "crowns.asc")
	geo := filepath.Join(dir, "crowns.geojson")

	out := mustRunCLI(t, "crowns", "-chm", chm, "-out", labels, "-geojson", geo)
	assertContains(t, out, "1 crowns covering 9 cells")

	if v := readRaster(t, labels).At(0, 0); v != 1 {
		t.Errorf("label at (0, 0) = %v, want 1", v)
	}

	// Crowns are written as treetop points with a bbox, not outlines.
	fc := readFeatures(t, geo)
	if len(fc.Features) != 1 {
		t.Fatalf("got %d crown features, want 1", len(fc.Features))
	}
	if typ := fc.Features[0].Geometry.GeoJSONType(); typ != "Point" {
		t.Errorf("crown geometry = %s, want Point", typ)
	}
	if fc.Features[0].BBox == nil {
		t.Error("crown feature has no bbox")
	}

	help, _ := runCLI(t, "crowns", "-h")
	assertContains(t, help, "crown points at each treetop")
	assertContains(t, help, "no outlines")
}

func TestSummarizeCommand_GridZones(t *testing.T) {
	dir, chm := writePeak(t)
	outDir := filepath.Join(dir, "zonal")

	mustRunCLI(t, "summarize", "-chm", chm, "-out", outDir, "-res", "1.5")

	csv, err := os.ReadFile(filepath.Join(outDir, "treetops_zones.csv"))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(csv)), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d csv lines, want header + 4 zones:\n%s", len(lines), csv)
	}
	if !strings.HasPrefix(lines[0], "zone_id,obs_count,") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[4], "1_1,1,") {
		t.Errorf("peak zone row = %q, want prefix 1_1,1,", lines[4])
	}

	top := readRaster(t, filepath.Join(outDir, "treetops_top_height.asc"))
	if top.Rows() != 2 {
		t.Errorf("top height raster rows = %d, want 2", top.Rows())
	}
	if v := top.At(1, 1); v != 10 {
		t.Errorf("top height at (1, 1) = %v, want 10", v)
	}
	if _, ok := top.Value(0, 0); ok {
		t.Error("empty zone must be no-data")
	}

	assertFileExists(t, filepath.Join(outDir, "treetops_obs_count.asc"))
	assertFileExists(t, filepath.Join(outDir, "crowns_crown_area_sum.asc"))
	if _, err := os.Stat(filepath.Join(outDir, "treetops.geojson")); !os.IsNotExist(err) {
		t.Errorf("summarize writes zonal products only, stat treetops.geojson: %v", err)
	}
}

func TestSummarizeCommand_PolygonZones(t *testing.T) {
	dir, chm := writePeak(t)
	zones := filepath.Join(dir, "stands.geojson")
	if err := os.WriteFile(zones, []byte(standsGeoJSON), 0o644); err != nil {
		t.Fatalf("write zones: %v", err)
	}
	outDir := filepath.Join(dir, "zonal")

	mustRunCLI(t, "summarize", "-chm", chm, "-out", outDir, "-zones", zones, "-zone-id", "stand")

	fc := readFeatures(t, filepath.Join(outDir, "treetops_zones.geojson"))
	if len(fc.Features) != 2 {
		t.Fatalf("got %d zone features, want 2", len(fc.Features))
	}
	if v := fc.Features[0].Properties.MustFloat64("top_height"); v != 10 {
		t.Errorf("north top_height = %v, want 10", v)
	}
	if v := fc.Features[1].Properties["top_height"]; v != nil {
		t.Errorf("far top_height = %v, want null", v)
	}

	assertFileExists(t, filepath.Join(outDir, "crowns_zones.csv"))
	matches, err := filepath.Glob(filepath.Join(outDir, "*.asc"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("polygon zones produce no rasters, got %v", matches)
	}
}

func TestRunCommand_Full(t *testing.T) {
	dir, chm := writePeak(t)
	outDir := filepath.Join(dir, "out")
	dbPath := filepath.Join(dir, "canopy.db")

	out := mustRunCLI(t, "run", "-chm", chm, "-out", outDir, "-plot", "-db", dbPath)
	assertContains(t, out, "recorded in")
	assertContains(t, out, "top height 10.00")

	for _, name := range []string{"treetops.geojson", "crowns.geojson", "crowns.asc", "chm.png", "report.html", "treetops_zones.csv"} {
		assertFileExists(t, filepath.Join(outDir, name))
	}
	html, err := os.ReadFile(filepath.Join(outDir, "report.html"))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	assertContains(t, string(html), "Trees per zone")

	database, err := db.NewDB(dbPath)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer database.Close()
	runs, err := sqlite.NewRunStore(database.DB).List(0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0].CHMPath != chm || runs[0].Rows != 3 {
		t.Errorf("run path/rows = %s/%d, want %s/3", runs[0].CHMPath, runs[0].Rows, chm)
	}
	assertContains(t, string(runs[0].ParamsJSON), `"top_height_n":100`)

	tops, err := sqlite.NewTreetopStore(database.DB).ListByRun(runs[0].RunID)
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(tops) != 1 {
		t.Errorf("got %d stored treetops, want 1", len(tops))
	}

	assertContains(t, mustRunCLI(t, "runs", "-db", dbPath), runs[0].RunID)
}

func TestRunsCommand_Empty(t *testing.T) {
	out := mustRunCLI(t, "runs", "-db", filepath.Join(t.TempDir(), "empty.db"))
	assertContains(t, out, "no runs recorded")
}

func TestMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "canopy.db")

	assertContains(t, mustRunCLI(t, "migrate", "-db", dbPath, "up"), "Current version: 1")
	assertContains(t, mustRunCLI(t, "migrate", "-db", dbPath, "status"), "dirty: false")

	if _, err := runCLI(t, "migrate", "-db", dbPath); err == nil {
		t.Error("migrate without a subcommand: expected an error")
	}
}

func TestLoadTuning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.json")
	if err := os.WriteFile(path, []byte(`{"top_height_n": 5, "workers": 4}`), 0o644); err != nil {
		t.Fatalf("write tuning: %v", err)
	}

	tests := []struct {
		name        string
		path        string
		workers     int
		wantWorkers int
		wantTopN    int
	}{
		{"defaults with workers flag", "", 3, 3, 100},
		{"defaults without workers flag", "", -1, 0, 100},
		{"file values", path, -1, 4, 5},
	}
	for _, tt := range tests {
		cfg, err := loadTuning(tt.path, tt.workers)
		if err != nil {
			t.Fatalf("%s: loadTuning: %v", tt.name, err)
		}
		if cfg.GetWorkers() != tt.wantWorkers || cfg.GetTopHeightN() != tt.wantTopN {
			t.Errorf("%s: workers/topN = %d/%d, want %d/%d", tt.name, cfg.GetWorkers(), cfg.GetTopHeightN(), tt.wantWorkers, tt.wantTopN)
		}
	}

	if _, err := loadTuning(filepath.Join(t.TempDir(), "missing.json"), -1); err == nil {
		t.Error("missing file: expected an error")
	}
}
