package pipeline

import (
	"context"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canopy.report/internal/canopy/l1grid"
	"github.com/banshee-data/canopy.report/internal/canopy/l2treetops"
	"github.com/banshee-data/canopy.report/internal/canopy/l3crowns"
	"github.com/banshee-data/canopy.report/internal/canopy/l4zonal"
	"github.com/banshee-data/canopy.report/internal/config"
)

// twoTrees is a 4x6 raster with peaks of 10 and 8 in the western and
// eastern halves.
func twoTrees(t *testing.T) *l1grid.Raster {
	t.Helper()
	r, err := l1grid.NewRasterFromRows([][]float64{
		{2, 3, 2, 1, 2, 2},
		{3, 10, 3, 2, 8, 3},
		{2, 3, 2, 1, 3, 2},
		{1, 2, 1, 1, 2, 1},
	}, l1grid.Transform{OriginX: 0, OriginY: 4, CellWidth: 1, CellHeight: 1}, l1grid.DefaultNoData)
	require.NoError(t, err)
	return r
}

func testConfig() Config {
	return Config{
		Treetops:       l2treetops.Params{Window: l2treetops.ConstantWindow(1.5), MinHeight: 2},
		Crowns:         l3crowns.Params{MinHeight: 1},
		ZoneResolution: 3,
		TopHeightN:     1,
		Workers:        2,
	}
}

func TestRun_GridZones(t *testing.T) {
	out, err := Run(context.Background(), twoTrees(t), nil, testConfig())
	require.NoError(t, err)

	require.Len(t, out.Treetops, 2)
	assert.Equal(t, 10.0, out.Treetops[0].Height())
	assert.Equal(t, 8.0, out.Treetops[1].Height())
	assert.Equal(t, 10.0, out.TopHeight)

	assert.Equal(t, 24, out.Crowns.Claimed())
	require.Len(t, out.Crowns.Regions, 2)

	gz, ok := out.Zones.(*l4zonal.GridZones)
	require.True(t, ok)
	assert.Equal(t, 2, gz.Index.Rows)
	assert.Equal(t, 2, gz.Index.Cols)

	assert.Equal(t, []int{1, 1, 0, 0}, out.TreetopSummary.Count)
	top, ok := out.TreetopSummary.Layer(LayerTopHeight)
	require.True(t, ok)
	assert.Equal(t, 10.0, top.Values[0])
	assert.Equal(t, 8.0, top.Values[1])
	assert.True(t, math.IsNaN(top.Values[2]))

	area, ok := out.CrownSummary.Layer(LayerCanopy)
	require.True(t, ok)
	var total float64
	for _, v := range area.Values {
		if !math.IsNaN(v) {
			total += v
		}
	}
	assert.Equal(t, 24.0, total)
}

func TestRun_PolygonZones(t *testing.T) {
	z, err := l4zonal.NewPolygonZones([]string{"stand-a"}, []orb.Geometry{
		orb.Polygon{orb.Ring{{0, 0}, {3, 0}, {3, 4}, {0, 4}, {0, 0}}},
	})
	require.NoError(t, err)

	out, err := Run(context.Background(), twoTrees(t), z, testConfig())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, out.TreetopSummary.Count)
	assert.Equal(t, 1, out.TreetopSummary.Skipped)
	assert.Equal(t, "stand-a", out.TreetopSummary.Table().ZoneIDs[0])
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, twoTrees(t), nil, testConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.TopHeightN = 0
	_, err := Run(context.Background(), twoTrees(t), nil, cfg)
	assert.ErrorIs(t, err, l1grid.ErrInvalidConfig)

	cfg = testConfig()
	cfg.Treetops.Window = nil
	_, err = Run(context.Background(), twoTrees(t), nil, cfg)
	assert.ErrorIs(t, err, l1grid.ErrInvalidConfig)

	cfg = testConfig()
	cfg.ZoneResolution = 0
	_, err = Run(context.Background(), twoTrees(t), nil, cfg)
	assert.ErrorIs(t, err, l1grid.ErrInvalidConfig)

	_, err = Run(context.Background(), nil, nil, testConfig())
	assert.ErrorIs(t, err, l1grid.ErrInvalidConfig)
}

func TestConfigFromTuning(t *testing.T) {
	cfg, err := ConfigFromTuning(config.MustLoadDefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 10.0, cfg.ZoneResolution)
	assert.Equal(t, 100, cfg.TopHeightN)
	assert.Equal(t, 2.0, cfg.Treetops.MinHeight)
	assert.Equal(t, 8, cfg.Crowns.Connectivity)
	assert.NotNil(t, cfg.Treetops.Window)

	bad := config.EmptyTuningConfig()
	bad.CrownConnectivity = new(int)
	*bad.CrownConnectivity = 6
	_, err = ConfigFromTuning(bad)
	assert.ErrorIs(t, err, l1grid.ErrInvalidConfig)
}
