package vector

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/banshee-data/canopy.report/internal/canopy/l1grid"
	"github.com/banshee-data/canopy.report/internal/canopy/l4zonal"
)

// maxZonesFileSize bounds the GeoJSON read into memory.
const maxZonesFileSize = 256 * 1024 * 1024

// ReadZones decodes a FeatureCollection of polygons into zones, keeping the
// feature order. Zone ids come from idProperty, or from the feature id when
// idProperty is empty, or from the 1-based feature position as a last resort.
func ReadZones(r io.Reader, idProperty string) (*l4zonal.PolygonZones, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxZonesFileSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxZonesFileSize {
		return nil, fmt.Errorf("zones file too large (max %d bytes)", maxZonesFileSize)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse zones: %w", err)
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("%w: zones file has no features", l1grid.ErrInvalidConfig)
	}

	ids := make([]string, len(fc.Features))
	geoms := make([]orb.Geometry, len(fc.Features))
	seen := make(map[string]int, len(fc.Features))
	for i, f := range fc.Features {
		id, err := zoneID(f, i, idProperty)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: features %d and %d share zone id %q", l1grid.ErrInvalidConfig, prev+1, i+1, id)
		}
		seen[id] = i
		ids[i] = id
		geoms[i] = f.Geometry
	}
	return l4zonal.NewPolygonZones(ids, geoms)
}

func zoneID(f *geojson.Feature, i int, idProperty string) (string, error) {
	if idProperty != "" {
		v, ok := f.Properties[idProperty]
		if !ok || v == nil {
			return "", fmt.Errorf("%w: feature %d has no %q property", l1grid.ErrInvalidConfig, i+1, idProperty)
		}
		return formatID(v), nil
	}
	if f.ID != nil {
		return formatID(f.ID), nil
	}
	return strconv.Itoa(i + 1), nil
}

func formatID(v interface{}) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// LoadZones reads polygon zones from a GeoJSON file.
func LoadZones(path, idProperty string) (*l4zonal.PolygonZones, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	z, err := ReadZones(f, idProperty)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return z, nil
}
