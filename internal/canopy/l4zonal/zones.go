package l4zonal

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/banshee-data/canopy.report/internal/canopy/l1grid"
)

// ZoneSpec defines a set of reporting zones addressed by index 0..NumZones-1.
//
// Summarize calls ZoneOf from several goroutines at once when
// Options.Workers allows it, so implementations must be safe for
// concurrent use. GridZones and PolygonZones are read-only after
// construction.
type ZoneSpec interface {
	// NumZones returns the number of zones.
	NumZones() int
	// ZoneOf returns the index of the zone owning (x, y), or an error
	// wrapping l1grid.ErrOutOfExtent when no zone does.
	ZoneOf(x, y float64) (int, error)
	// ZoneID returns the caller-facing identifier of zone i.
	ZoneID(i int) string
}

// GridZones are the cells of a regular grid. Zone i is the row-major cell i.
type GridZones struct {
	Index l1grid.GridIndex
}

// NewGridZones builds square grid zones of size res over ext.
func NewGridZones(ext l1grid.Extent, res float64) (*GridZones, error) {
	g, err := l1grid.NewSquareGridIndex(ext, res)
	if err != nil {
		return nil, err
	}
	return &GridZones{Index: g}, nil
}

func (z *GridZones) NumZones() int { return z.Index.Len() }

func (z *GridZones) ZoneOf(x, y float64) (int, error) {
	row, col, err := z.Index.CellOf(x, y)
	if err != nil {
		return -1, err
	}
	return z.Index.Index(row, col), nil
}

// ZoneID returns "row_col".
func (z *GridZones) ZoneID(i int) string {
	row, col := z.Index.RowCol(i)
	return strconv.Itoa(row) + "_" + strconv.Itoa(col)
}

// PolygonZones are externally supplied polygons. A point belongs to the
// first polygon, in input order, that contains it.
type PolygonZones struct {
	ids    []string
	shapes []orb.MultiPolygon
	bounds []orb.Bound
}

// NewPolygonZones pairs ids with geometries. Each geometry must be an
// orb.Polygon or orb.MultiPolygon.
func NewPolygonZones(ids []string, geoms []orb.Geometry) (*PolygonZones, error) {
	if len(ids) != len(geoms) {
		return nil, fmt.Errorf("%w: %d zone ids for %d geometries", l1grid.ErrInvalidConfig, len(ids), len(geoms))
	}
	z := &PolygonZones{
		ids:    make([]string, len(ids)),
		shapes: make([]orb.MultiPolygon, len(geoms)),
		bounds: make([]orb.Bound, len(geoms)),
	}
	copy(z.ids, ids)
	for i, g := range geoms {
		var mp orb.MultiPolygon
		switch v := g.(type) {
		case orb.Polygon:
			mp = orb.MultiPolygon{v}
		case orb.MultiPolygon:
			mp = v
		default:
			return nil, fmt.Errorf("%w: zone %q must be a polygon, got %T", l1grid.ErrInvalidConfig, ids[i], g)
		}
		z.shapes[i] = mp
		z.bounds[i] = mp.Bound()
	}
	return z, nil
}

func (z *PolygonZones) NumZones() int { return len(z.shapes) }

func (z *PolygonZones) ZoneOf(x, y float64) (int, error) {
	p := orb.Point{x, y}
	for i, mp := range z.shapes {
		if !z.bounds[i].Contains(p) {
			continue
		}
		if planar.MultiPolygonContains(mp, p) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: (%v, %v) is in no zone", l1grid.ErrOutOfExtent, x, y)
}

func (z *PolygonZones) ZoneID(i int) string { return z.ids[i] }

// Geometry returns the polygon set of zone i.
func (z *PolygonZones) Geometry(i int) orb.MultiPolygon { return z.shapes[i] }

// Area returns the planar area of zone i.
func (z *PolygonZones) Area(i int) float64 { return planar.Area(z.shapes[i]) }
