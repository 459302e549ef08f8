package l4zonal

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/banshee-data/canopy.report/internal/canopy/l1grid"
)

func square(minX, minY, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{minX, minY}, {minX + size, minY}, {minX + size, minY + size}, {minX, minY + size}, {minX, minY},
	}}
}

func TestGridZones(t *testing.T) {
	z, err := NewGridZones(l1grid.Extent{MinX: 0, MinY: 0, MaxX: 20, MaxY: 10}, 10)
	if err != nil {
		t.Fatalf("NewGridZones: %v", err)
	}
	if z.NumZones() != 2 {
		t.Errorf("NumZones = %d, want 2", z.NumZones())
	}

	i, err := z.ZoneOf(15, 5)
	if err != nil || i != 1 {
		t.Errorf("ZoneOf(15, 5) = (%d, %v), want (1, nil)", i, err)
	}
	if id := z.ZoneID(1); id != "0_1" {
		t.Errorf("ZoneID(1) = %q, want 0_1", id)
	}

	if _, err := z.ZoneOf(25, 5); !errors.Is(err, l1grid.ErrOutOfExtent) {
		t.Errorf("ZoneOf outside: err = %v, want ErrOutOfExtent", err)
	}
	if _, err := NewGridZones(l1grid.Extent{MaxX: 1, MaxY: 1}, 0); !errors.Is(err, l1grid.ErrInvalidConfig) {
		t.Errorf("zero resolution: err = %v, want ErrInvalidConfig", err)
	}
}

func TestPolygonZones(t *testing.T) {
	z, err := NewPolygonZones(
		[]string{"a", "b"},
		[]orb.Geometry{
			square(0, 0, 10),
			orb.MultiPolygon{square(5, 0, 10), square(100, 100, 1)},
		},
	)
	if err != nil {
		t.Fatalf("NewPolygonZones: %v", err)
	}
	if z.NumZones() != 2 {
		t.Errorf("NumZones = %d, want 2", z.NumZones())
	}

	tests := []struct {
		name string
		x, y float64
		want string
	}{
		// Overlap resolves to the first polygon in input order.
		{"overlap", 7, 5, "a"},
		{"second only", 12, 5, "b"},
		{"second part of multipolygon", 100.5, 100.5, "b"},
	}
	for _, tt := range tests {
		i, err := z.ZoneOf(tt.x, tt.y)
		if err != nil {
			t.Errorf("%s: ZoneOf: %v", tt.name, err)
			continue
		}
		if got := z.ZoneID(i); got != tt.want {
			t.Errorf("%s: zone %q, want %q", tt.name, got, tt.want)
		}
	}

	if _, err := z.ZoneOf(50, 50); !errors.Is(err, l1grid.ErrOutOfExtent) {
		t.Errorf("ZoneOf outside: err = %v, want ErrOutOfExtent", err)
	}
	if a := z.Area(0); math.Abs(a-100) > 1e-9 {
		t.Errorf("Area(0) = %v, want 100", a)
	}
	if a := z.Area(1); math.Abs(a-101) > 1e-9 {
		t.Errorf("Area(1) = %v, want 101", a)
	}
}

func TestNewPolygonZones_Invalid(t *testing.T) {
	if _, err := NewPolygonZones([]string{"a"}, nil); !errors.Is(err, l1grid.ErrInvalidConfig) {
		t.Errorf("mismatched lengths: err = %v, want ErrInvalidConfig", err)
	}
	if _, err := NewPolygonZones([]string{"a"}, []orb.Geometry{orb.Point{1, 2}}); !errors.Is(err, l1grid.ErrInvalidConfig) {
		t.Errorf("point geometry: err = %v, want ErrInvalidConfig", err)
	}
}
