// Package testutil provides shared test fixtures for the canopy packages.
//
// It sits above the layer packages, so only packages that do not themselves
// feed into rasterio or db may import it from tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/banshee-data/canopy.report/internal/canopy/l1grid"
	"github.com/banshee-data/canopy.report/internal/canopy/rasterio"
	"github.com/banshee-data/canopy.report/internal/db"
)

// UnitRaster builds a raster of 1x1 cells whose south-west corner is the
// origin. It fails the test on error.
func UnitRaster(t *testing.T, rows [][]float64) *l1grid.Raster {
	t.Helper()
	r, err := l1grid.NewRasterFromRows(rows, l1grid.Transform{
		OriginX:    0,
		OriginY:    float64(len(rows)),
		CellWidth:  1,
		CellHeight: 1,
	}, l1grid.DefaultNoData)
	if err != nil {
		t.Fatalf("build raster: %v", err)
	}
	return r
}

// Peak is a 3x3 raster with a single 10 m tree in the centre.
func Peak(t *testing.T) *l1grid.Raster {
	t.Helper()
	return UnitRaster(t, [][]float64{
		{1, 2, 1},
		{2, 10, 2},
		{1, 2, 1},
	})
}

// WriteASCII writes r as an ASCII grid under dir and returns its path.
func WriteASCII(t *testing.T, dir, name string, r *l1grid.Raster) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := rasterio.WriteFile(path, r); err != nil {
		t.Fatalf("write raster: %v", err)
	}
	return path
}

// TempDB opens a migrated database in a temporary directory and closes it
// when the test ends.
func TempDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
