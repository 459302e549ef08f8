package vector

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/banshee-data/canopy.report/internal/canopy/l1grid"
	"github.com/banshee-data/canopy.report/internal/canopy/l2treetops"
	"github.com/banshee-data/canopy.report/internal/canopy/l3crowns"
	"github.com/banshee-data/canopy.report/internal/canopy/l4zonal"
)

const stands = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": 7, "properties": {"stand": "A1"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[10,0],[10,10],[0,10],[0,0]]]}},
    {"type": "Feature", "properties": {"stand": "B2"},
     "geometry": {"type": "MultiPolygon", "coordinates": [[[[10,0],[20,0],[20,10],[10,10],[10,0]]]]}}
  ]
}`

func mustReadZones(t *testing.T, src, idProperty string) *l4zonal.PolygonZones {
	t.Helper()
	z, err := ReadZones(strings.NewReader(src), idProperty)
	if err != nil {
		t.Fatalf("ReadZones: %v", err)
	}
	return z
}

func TestReadZones(t *testing.T) {
	z := mustReadZones(t, stands, "stand")
	if z.NumZones() != 2 {
		t.Fatalf("NumZones = %d, want 2", z.NumZones())
	}
	if z.ZoneID(0) != "A1" || z.ZoneID(1) != "B2" {
		t.Errorf("zone ids = %q, %q, want A1, B2", z.ZoneID(0), z.ZoneID(1))
	}
	if i, err := z.ZoneOf(15, 5); err != nil || i != 1 {
		t.Errorf("ZoneOf(15, 5) = (%d, %v), want (1, nil)", i, err)
	}
}

func TestReadZones_IDFallbacks(t *testing.T) {
	z := mustReadZones(t, stands, "")
	if z.ZoneID(0) != "7" || z.ZoneID(1) != "2" {
		t.Errorf("zone ids = %q, %q, want 7 (feature id), 2 (index)", z.ZoneID(0), z.ZoneID(1))
	}
}

func TestReadZones_Invalid(t *testing.T) {
	point := `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[1,2]}}]}`
	tests := []struct {
		name       string
		src        string
		idProperty string
	}{
		{"missing id property", stands, "missing"},
		{"no features", `{"type":"FeatureCollection","features":[]}`, ""},
		{"point geometry", point, ""},
		{"duplicate ids", strings.Replace(stands, `"B2"`, `"A1"`, 1), "stand"},
	}
	for _, tt := range tests {
		if _, err := ReadZones(strings.NewReader(tt.src), tt.idProperty); !errors.Is(err, l1grid.ErrInvalidConfig) {
			t.Errorf("%s: err = %v, want ErrInvalidConfig", tt.name, err)
		}
	}

	if _, err := ReadZones(strings.NewReader("not json"), ""); err == nil {
		t.Error("not json: expected an error")
	}
}

func TestLoadZones(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stands.geojson")
	if err := os.WriteFile(path, []byte(stands), 0o644); err != nil {
		t.Fatalf("write zones: %v", err)
	}

	z, err := LoadZones(path, "stand")
	if err != nil {
		t.Fatalf("LoadZones: %v", err)
	}
	if z.NumZones() != 2 {
		t.Errorf("NumZones = %d, want 2", z.NumZones())
	}

	if _, err := LoadZones(filepath.Join(t.TempDir(), "none.geojson"), "stand"); err == nil {
		t.Error("missing file: expected an error")
	}
}

func TestTreetopCollection(t *testing.T) {
	p := l1grid.NewPoint(1.5, 2.5)
	p.Attrs[l1grid.AttrHeight] = 12
	p.Attrs[l1grid.AttrWindowRadius] = 1.2
	fc := TreetopCollection([]l2treetops.Treetop{{ID: 3, Row: 1, Col: 1, Point: p}})

	if len(fc.Features) != 1 {
		t.Fatalf("got %d features, want 1", len(fc.Features))
	}
	f := fc.Features[0]
	if f.Geometry != (orb.Point{1.5, 2.5}) {
		t.Errorf("geometry = %v, want point (1.5, 2.5)", f.Geometry)
	}
	if h := f.Properties.MustFloat64(l1grid.AttrHeight); h != 12 {
		t.Errorf("height = %v, want 12", h)
	}
	if id := f.Properties["treeID"]; id != 3 {
		t.Errorf("treeID = %v, want 3", id)
	}
}

func TestCrownCollection(t *testing.T) {
	r, err := l1grid.NewRasterFromRows([][]float64{
		{5, 9, 5},
		{4, 5, 4},
	}, l1grid.Transform{OriginX: 0, OriginY: 2, CellWidth: 1, CellHeight: 1}, l1grid.DefaultNoData)
	if err != nil {
		t.Fatalf("NewRasterFromRows: %v", err)
	}
	x, y := r.Grid().CenterOf(0, 1)
	p := l1grid.NewPoint(x, y)
	p.Attrs[l1grid.AttrHeight] = 9
	res, err := l3crowns.Delineate(r, []l2treetops.Treetop{{ID: 1, Row: 0, Col: 1, Point: p}}, l3crowns.Params{})
	if err != nil {
		t.Fatalf("Delineate: %v", err)
	}

	fc := CrownCollection(res)
	if len(fc.Features) != 1 {
		t.Fatalf("got %d features, want 1", len(fc.Features))
	}
	f := fc.Features[0]
	// Crowns are written as treetop points with the owned cells as bbox.
	if f.Geometry != (orb.Point{x, y}) {
		t.Errorf("geometry = %v, want treetop point (%v, %v)", f.Geometry, x, y)
	}
	if cells := f.Properties["cells"]; cells != 6 {
		t.Errorf("cells = %v, want 6", cells)
	}
	if area := f.Properties["crownArea"]; area != 6.0 {
		t.Errorf("crownArea = %v, want 6", area)
	}
	if diff := cmp.Diff(geojson.BBox{0, 0, 3, 2}, f.BBox); diff != "" {
		t.Errorf("bbox (-want +got):\n%s", diff)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if !json.Valid(data) {
		t.Errorf("invalid JSON: %s", data)
	}
}

func TestZoneCollection_NaNBecomesNull(t *testing.T) {
	z := mustReadZones(t, stands, "stand")

	p := l1grid.NewPoint(5, 5)
	p.Attrs[l1grid.AttrHeight] = 20
	res, err := l4zonal.Summarize([]l1grid.Point{p}, z, l4zonal.Request{l1grid.AttrHeight: {l4zonal.NewAdapter("max", l4zonal.Max)}}, l4zonal.Options{})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	fc, err := ZoneCollection(z, res.Table())
	if err != nil {
		t.Fatalf("ZoneCollection: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("got %d features, want 2", len(fc.Features))
	}
	if v := fc.Features[0].Properties["max"]; v != 20.0 {
		t.Errorf("first zone max = %v, want 20", v)
	}
	if v := fc.Features[1].Properties["max"]; v != nil {
		t.Errorf("empty zone max = %v, want null", v)
	}
	if _, ok := fc.Features[0].Geometry.(orb.Polygon); !ok {
		t.Errorf("geometry = %T, want orb.Polygon", fc.Features[0].Geometry)
	}

	path := filepath.Join(t.TempDir(), "out", "zones.geojson")
	if err := WriteFile(path, fc); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	back, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		t.Fatalf("UnmarshalFeatureCollection: %v", err)
	}
	if len(back.Features) != 2 {
		t.Errorf("read back %d features, want 2", len(back.Features))
	}
}
