package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/canopy.report/internal/canopy/l1grid"
	"github.com/banshee-data/canopy.report/internal/canopy/l2treetops"
	"github.com/banshee-data/canopy.report/internal/canopy/l3crowns"
	"github.com/banshee-data/canopy.report/internal/canopy/l4zonal"
	"github.com/banshee-data/canopy.report/internal/config"
)

// Layer names produced by the standard requests.
const (
	LayerTopHeight = "top_height"
	LayerCrownArea = "crown_area_mean"
	LayerCrownDiam = "crown_diameter_mean"
	LayerCanopy    = "crown_area_sum"
)

// Config gathers the parameters of every stage.
type Config struct {
	Treetops       l2treetops.Params
	Crowns         l3crowns.Params
	ZoneResolution float64 // grid zone size used when no zones are supplied
	TopHeightN     int
	Workers        int
}

// ConfigFromTuning builds a pipeline configuration from a TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) (Config, error) {
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %v", l1grid.ErrInvalidConfig, err)
	}
	tp, err := l2treetops.ParamsFromTuning(cfg)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Treetops:       tp,
		Crowns:         l3crowns.ParamsFromTuning(cfg),
		ZoneResolution: cfg.GetZoneResolution(),
		TopHeightN:     cfg.GetTopHeightN(),
		Workers:        cfg.GetWorkers(),
	}, nil
}

// TreetopRequest summarises treetop heights with the default statistics
// prefixed "height" and the mean of the n tallest trees as LayerTopHeight.
func TreetopRequest(n int) l4zonal.Request {
	adapters := l4zonal.PrefixedAdapters("height", l4zonal.DefaultAdapters())
	adapters = append(adapters, l4zonal.NewAdapter(LayerTopHeight, l4zonal.TopMean(n)))
	return l4zonal.Request{l1grid.AttrHeight: adapters}
}

// CrownRequest summarises crown size per zone.
func CrownRequest() l4zonal.Request {
	return l4zonal.Request{
		l1grid.AttrCrownArea: {
			l4zonal.NewAdapter(LayerCrownArea, l4zonal.Mean),
			l4zonal.NewAdapter(LayerCanopy, l4zonal.Sum),
		},
		l1grid.AttrCrownDiameter: {
			l4zonal.NewAdapter(LayerCrownDiam, l4zonal.Mean),
		},
	}
}

// Output holds the products of one run.
type Output struct {
	Treetops       []l2treetops.Treetop
	Crowns         *l3crowns.Result
	Zones          l4zonal.ZoneSpec
	TreetopSummary *l4zonal.Result
	CrownSummary   *l4zonal.Result
	// TopHeight is the mean height of the TopHeightN tallest treetops over
	// the whole raster, NaN when there are none.
	TopHeight float64
}

// Run detects treetops on chm, grows crowns from them and summarises both
// per zone. A nil zones argument selects square grid zones of
// cfg.ZoneResolution over the raster extent. ctx is checked between stages.
func Run(ctx context.Context, chm *l1grid.Raster, zones l4zonal.ZoneSpec, cfg Config) (*Output, error) {
	if chm == nil {
		return nil, fmt.Errorf("%w: height raster is required", l1grid.ErrInvalidConfig)
	}
	if cfg.TopHeightN < 1 {
		return nil, fmt.Errorf("%w: top height n must be at least 1, got %d", l1grid.ErrInvalidConfig, cfg.TopHeightN)
	}
	if zones == nil {
		gz, err := l4zonal.NewGridZones(chm.Extent(), cfg.ZoneResolution)
		if err != nil {
			return nil, err
		}
		zones = gz
	}
	out := &Output{Zones: zones}

	start := time.Now()
	tp := cfg.Treetops
	tp.Workers = cfg.Workers
	treetops, err := l2treetops.Detect(chm, tp)
	if err != nil {
		return nil, fmt.Errorf("detect treetops: %w", err)
	}
	out.Treetops = treetops
	logf("detected %d treetops in %v", len(treetops), time.Since(start))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	crowns, err := l3crowns.Delineate(chm, treetops, cfg.Crowns)
	if err != nil {
		return nil, fmt.Errorf("delineate crowns: %w", err)
	}
	out.Crowns = crowns
	logf("delineated %d crowns covering %d cells in %v", len(crowns.Regions), crowns.Claimed(), time.Since(start))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := l4zonal.Options{Workers: cfg.Workers}
	out.TreetopSummary, err = l4zonal.Summarize(l2treetops.Points(treetops), zones, TreetopRequest(cfg.TopHeightN), opts)
	if err != nil {
		return nil, fmt.Errorf("summarize treetops: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out.CrownSummary, err = l4zonal.Summarize(crowns.CrownPoints(), zones, CrownRequest(), opts)
	if err != nil {
		return nil, fmt.Errorf("summarize crowns: %w", err)
	}

	heights := make([]float64, len(treetops))
	for i, tt := range treetops {
		heights[i] = tt.Height()
	}
	out.TopHeight, _ = l4zonal.NewAdapter(LayerTopHeight, l4zonal.TopMean(cfg.TopHeightN)).Apply(heights)
	if !math.IsNaN(out.TopHeight) {
		logf("top height (n=%d): %.2f", cfg.TopHeightN, out.TopHeight)
	}
	return out, nil
}
