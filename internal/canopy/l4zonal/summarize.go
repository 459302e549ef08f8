package l4zonal

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/canopy.report/internal/canopy/l1grid"
)

// CountLayer is the name of the implicit per-zone observation count.
const CountLayer = "obs_count"

// Request maps an attribute name to the adapters applied to it. Adapter
// names label the output layers and must be unique across the request.
type Request map[string][]Adapter

// Options tunes execution without changing results.
type Options struct {
	Workers int // 0 means runtime.GOMAXPROCS(0)
}

// Layer is one statistic evaluated for every zone.
type Layer struct {
	Name      string
	Attribute string
	NoData    float64
	Values    []float64 // indexed by zone
}

// Result is the outcome of Summarize. Count and every Layer's Values are
// indexed like the zone spec.
type Result struct {
	Zones    ZoneSpec
	Count    []int
	Layers   []Layer // sorted by Name
	Skipped  int     // observations outside every zone
	Warnings []StatWarning
}

type layerSpec struct {
	attr    string
	adapter Adapter
}

func (req Request) validate() ([]layerSpec, error) {
	if len(req) == 0 {
		return nil, fmt.Errorf("%w: at least one statistic is required", l1grid.ErrInvalidConfig)
	}
	seen := make(map[string]string)
	var specs []layerSpec
	for attr, adapters := range req {
		if attr == "" {
			return nil, fmt.Errorf("%w: attribute name must not be empty", l1grid.ErrInvalidConfig)
		}
		for _, a := range adapters {
			if a.Name == "" {
				return nil, fmt.Errorf("%w: statistic for %q has no name", l1grid.ErrInvalidConfig, attr)
			}
			if a.Name == CountLayer {
				return nil, fmt.Errorf("%w: statistic name %q is reserved", l1grid.ErrInvalidConfig, CountLayer)
			}
			if a.Fn == nil {
				return nil, fmt.Errorf("%w: statistic %q has no function", l1grid.ErrInvalidConfig, a.Name)
			}
			if prev, dup := seen[a.Name]; dup {
				return nil, fmt.Errorf("%w: statistic name %q used for %q and %q", l1grid.ErrInvalidConfig, a.Name, prev, attr)
			}
			seen[a.Name] = attr
			specs = append(specs, layerSpec{attr: attr, adapter: a})
		}
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: at least one statistic is required", l1grid.ErrInvalidConfig)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].adapter.Name < specs[j].adapter.Name })
	return specs, nil
}

// Summarize bins observations into zones and reduces each zone's values
// with every requested adapter. Observations outside all zones are skipped
// and counted. Empty zones report a count of zero and each adapter's NoData.
// Reduction failures never abort the run; they are returned as warnings.
func Summarize(obs []l1grid.Point, zones ZoneSpec, req Request, opts Options) (*Result, error) {
	if zones == nil {
		return nil, fmt.Errorf("%w: zone spec is required", l1grid.ErrInvalidConfig)
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("%w: workers must be non-negative, got %d", l1grid.ErrInvalidConfig, opts.Workers)
	}
	specs, err := req.validate()
	if err != nil {
		return nil, err
	}

	owner, err := assignZones(obs, zones, opts.Workers)
	if err != nil {
		return nil, err
	}

	// Group in observation order before any reduction runs.
	nz := zones.NumZones()
	members := make([][]int, nz)
	skipped := 0
	for i, z := range owner {
		if z < 0 {
			skipped++
			continue
		}
		members[z] = append(members[z], i)
	}
	if skipped > 0 {
		logf("skipped %d of %d observations outside every zone", skipped, len(obs))
	}

	res := &Result{
		Zones:   zones,
		Count:   make([]int, nz),
		Layers:  make([]Layer, len(specs)),
		Skipped: skipped,
	}
	for i, s := range specs {
		res.Layers[i] = Layer{Name: s.adapter.Name, Attribute: s.attr, NoData: s.adapter.NoData, Values: make([]float64, nz)}
	}

	attrs := make([]string, 0, len(req))
	for attr := range req {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)

	bags := make(map[string][]float64, len(attrs))
	for z := 0; z < nz; z++ {
		idxs := members[z]
		res.Count[z] = len(idxs)

		for _, attr := range attrs {
			bag := bags[attr][:0]
			for _, i := range idxs {
				v, ok := obs[i].Attr(attr)
				if !ok {
					v = math.NaN()
				}
				bag = append(bag, v)
			}
			bags[attr] = bag
		}

		for li, s := range specs {
			v, warn := s.adapter.Apply(bags[s.attr])
			res.Layers[li].Values[z] = v
			if warn != nil {
				warn.Zone = z
				logf("%v", warn)
				res.Warnings = append(res.Warnings, *warn)
			}
		}
	}

	return res, nil
}

// assignZones returns the owning zone of every observation, or -1. Workers
// write disjoint ranges of the output slice.
func assignZones(obs []l1grid.Point, zones ZoneSpec, workers int) ([]int, error) {
	owner := make([]int, len(obs))
	if len(obs) == 0 {
		return owner, nil
	}
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(obs) {
		workers = len(obs)
	}

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		from := w * len(obs) / workers
		to := (w + 1) * len(obs) / workers
		g.Go(func() error {
			for i := from; i < to; i++ {
				z, err := zones.ZoneOf(obs[i].X, obs[i].Y)
				switch {
				case err == nil:
					if z < 0 || z >= zones.NumZones() {
						return fmt.Errorf("zone spec returned index %d outside [0, %d)", z, zones.NumZones())
					}
					owner[i] = z
				case errors.Is(err, l1grid.ErrOutOfExtent):
					owner[i] = -1
				default:
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return owner, nil
}

// Layer returns the named layer.
func (r *Result) Layer(name string) (Layer, bool) {
	for _, l := range r.Layers {
		if l.Name == name {
			return l, true
		}
	}
	return Layer{}, false
}

// Rasters returns one raster per layer plus CountLayer. It is only
// available for GridZones.
func (r *Result) Rasters() (map[string]*l1grid.Raster, error) {
	gz, ok := r.Zones.(*GridZones)
	if !ok {
		return nil, fmt.Errorf("%w: rasters need grid zones, got %T", l1grid.ErrInvalidConfig, r.Zones)
	}
	g := gz.Index
	out := make(map[string]*l1grid.Raster, len(r.Layers)+1)

	counts := make([]float64, len(r.Count))
	for i, c := range r.Count {
		counts[i] = float64(c)
	}
	cr, err := l1grid.NewRaster(g.Rows, g.Cols, counts, g.Transform(), l1grid.DefaultNoData)
	if err != nil {
		return nil, err
	}
	out[CountLayer] = cr

	for _, l := range r.Layers {
		noData := l.NoData
		if math.IsNaN(noData) {
			noData = l1grid.DefaultNoData
		}
		lr, err := l1grid.NewRaster(g.Rows, g.Cols, l.Values, g.Transform(), noData)
		if err != nil {
			return nil, err
		}
		out[l.Name] = lr
	}
	return out, nil
}

// ObservationsFromRaster turns every valid cell of r into a point at the
// cell centre with the value stored under attr.
func ObservationsFromRaster(r *l1grid.Raster, attr string) []l1grid.Point {
	g := r.Grid()
	out := make([]l1grid.Point, 0, r.ValidCount())
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			v, ok := r.Value(row, col)
			if !ok {
				continue
			}
			x, y := g.CenterOf(row, col)
			p := l1grid.NewPoint(x, y)
			p.Attrs[attr] = v
			out = append(out, p)
		}
	}
	return out
}
