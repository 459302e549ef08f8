package vector

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/banshee-data/canopy.report/internal/canopy/l2treetops"
	"github.com/banshee-data/canopy.report/internal/canopy/l3crowns"
	"github.com/banshee-data/canopy.report/internal/canopy/l4zonal"
)

// TreetopCollection returns one point feature per treetop with its id,
// height and window radius.
func TreetopCollection(treetops []l2treetops.Treetop) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, tt := range treetops {
		f := geojson.NewFeature(orb.Point{tt.X, tt.Y})
		f.ID = tt.ID
		f.Properties["treeID"] = tt.ID
		for k, v := range tt.Attrs {
			f.Properties[k] = number(v)
		}
		fc.Append(f)
	}
	return fc
}

// CrownCollection returns one Point feature per non-empty crown, placed at
// its treetop and carrying the crown attributes. Crown outlines are not
// traced: the feature bbox is the bounding box of the owned cells, and the
// exact extent lives in the crown label raster.
func CrownCollection(res *l3crowns.Result) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	g := res.Grid
	for _, reg := range res.Regions {
		if reg.CellCount == 0 {
			continue
		}
		var b orb.Bound
		for i, idx := range reg.Cells {
			row, col := g.RowCol(idx)
			west := g.OriginX + float64(col)*g.ResX
			north := g.OriginY - float64(row)*g.ResY
			cell := orb.Bound{Min: orb.Point{west, north - g.ResY}, Max: orb.Point{west + g.ResX, north}}
			if i == 0 {
				b = cell
			} else {
				b = b.Union(cell)
			}
		}

		f := geojson.NewFeature(orb.Point{reg.SeedX, reg.SeedY})
		f.ID = reg.TreetopID
		f.BBox = geojson.NewBBox(b)
		f.Properties["treeID"] = reg.TreetopID
		f.Properties["cells"] = reg.CellCount
		f.Properties["crownArea"] = number(reg.Area)
		f.Properties["crownDiameter"] = number(reg.Diameter)
		f.Properties["centroidX"] = number(reg.CentroidX)
		f.Properties["centroidY"] = number(reg.CentroidY)
		f.Properties["height"] = number(reg.MaxHeight)
		fc.Append(f)
	}
	return fc
}

// ZoneCollection joins a summary table back onto its polygon zones.
func ZoneCollection(zones *l4zonal.PolygonZones, tbl *l4zonal.Table) (*geojson.FeatureCollection, error) {
	if zones.NumZones() != len(tbl.ZoneIDs) {
		return nil, fmt.Errorf("table has %d zones, polygons have %d", len(tbl.ZoneIDs), zones.NumZones())
	}
	fc := geojson.NewFeatureCollection()
	for z := range tbl.ZoneIDs {
		var geom orb.Geometry = zones.Geometry(z)
		if mp := zones.Geometry(z); len(mp) == 1 {
			geom = mp[0]
		}
		f := geojson.NewFeature(geom)
		f.ID = tbl.ZoneIDs[z]
		f.Properties["zone_id"] = tbl.ZoneIDs[z]
		f.Properties[l4zonal.CountLayer] = tbl.Count[z]
		for c, name := range tbl.Columns {
			f.Properties[name] = number(tbl.Values[c][z])
		}
		fc.Append(f)
	}
	return fc, nil
}

// number maps values JSON cannot encode to null.
func number(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// WriteFile writes fc as GeoJSON, creating parent directories as needed.
func WriteFile(path string, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
