package l2treetops

import (
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/canopy.report/internal/canopy/l1grid"
	"github.com/banshee-data/canopy.report/internal/config"
)

// Params configures the variable window filter.
type Params struct {
	Window    WindowFunc
	MinHeight float64 // cells below this height are never candidates
	Shape     Shape
	// MaxWindowDiameter caps the window size in cells; a window function that
	// produces a larger window is rejected as malformed. 0 disables the cap.
	MaxWindowDiameter float64
	Workers           int // 0 means runtime.GOMAXPROCS(0)
}

// ParamsFromTuning builds detection parameters from a loaded TuningConfig.
func ParamsFromTuning(cfg *config.TuningConfig) (Params, error) {
	shape, err := ParseShape(cfg.GetWindowShape())
	if err != nil {
		return Params{}, err
	}
	return Params{
		Window:            ClampWindow(LinearWindow(cfg.GetWindowSlope(), cfg.GetWindowIntercept()), cfg.GetWindowMinRadius(), cfg.GetWindowMaxRadius()),
		MinHeight:         cfg.GetTreetopMinHeight(),
		Shape:             shape,
		MaxWindowDiameter: cfg.GetMaxWindowDiameter(),
		Workers:           cfg.GetWorkers(),
	}, nil
}

// Validate checks the parameters before any cell is evaluated.
func (p Params) Validate() error {
	if p.Window == nil {
		return fmt.Errorf("%w: window function is required", l1grid.ErrInvalidConfig)
	}
	if p.Shape != Circular && p.Shape != Square {
		return fmt.Errorf("%w: unknown window shape %v", l1grid.ErrInvalidConfig, p.Shape)
	}
	if math.IsNaN(p.MinHeight) {
		return fmt.Errorf("%w: min height must be a number", l1grid.ErrInvalidConfig)
	}
	if p.MaxWindowDiameter < 0 || math.IsNaN(p.MaxWindowDiameter) {
		return fmt.Errorf("%w: max window diameter must be non-negative, got %v", l1grid.ErrInvalidConfig, p.MaxWindowDiameter)
	}
	if p.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative, got %d", l1grid.ErrInvalidConfig, p.Workers)
	}
	return nil
}

// Treetop is an accepted local maximum promoted to a point. Row and Col give
// the raster cell it was detected in.
type Treetop struct {
	ID  int
	Row int
	Col int
	l1grid.Point
}

// Detector evaluates the local maximum rule for single cells of a raster.
// It holds no mutable state and is safe for concurrent use.
type Detector struct {
	raster *l1grid.Raster
	params Params
	grid   l1grid.GridIndex
}

// NewDetector validates p and binds it to r.
func NewDetector(r *l1grid.Raster, p Params) (*Detector, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: raster is required", l1grid.ErrInvalidConfig)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Detector{raster: r, params: p, grid: r.Grid()}, nil
}

// Accepts reports whether (row, col) is a treetop. The error is non-nil only
// when the window function yields a malformed radius for this cell's height.
func (d *Detector) Accepts(row, col int) (bool, error) {
	ok, _, err := d.evaluate(row, col)
	return ok, err
}

// radius evaluates the window function and rejects values that cannot
// describe a window.
func (d *Detector) radius(h float64) (float64, error) {
	r := d.params.Window(h)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, fmt.Errorf("%w: window function returned %v for height %v", l1grid.ErrInvalidConfig, r, h)
	}
	if d.params.MaxWindowDiameter > 0 && r > 0 {
		cells := 2*math.Max(math.Floor(r/d.grid.ResX), math.Floor(r/d.grid.ResY)) + 1
		if cells > d.params.MaxWindowDiameter {
			return 0, fmt.Errorf("%w: window diameter of %v cells for height %v exceeds max %v",
				l1grid.ErrInvalidConfig, cells, h, d.params.MaxWindowDiameter)
		}
	}
	return r, nil
}

// evaluate applies the local maximum rule. Neighbours are visited in
// row-major order over the window's bounding box clipped to the raster.
func (d *Detector) evaluate(row, col int) (bool, float64, error) {
	h, ok := d.raster.Value(row, col)
	if !ok || h < d.params.MinHeight {
		return false, 0, nil
	}
	radius, err := d.radius(h)
	if err != nil {
		return false, 0, err
	}
	if radius <= 0 {
		return true, radius, nil
	}

	g := d.grid
	w := newWindow(radius, g.ResX, g.ResY, d.params.Shape, g.Rows-1, g.Cols-1)
	r0, r1 := max(row-w.maxDR, 0), min(row+w.maxDR, g.Rows-1)
	c0, c1 := max(col-w.maxDC, 0), min(col+w.maxDC, g.Cols-1)

	idx := g.Index(row, col)
	for nr := r0; nr <= r1; nr++ {
		for nc := c0; nc <= c1; nc++ {
			if !w.contains(nr-row, nc-col) {
				continue
			}
			v, ok := d.raster.Value(nr, nc)
			if !ok {
				continue
			}
			if v > h {
				return false, radius, nil
			}
			// Flat tops: only the lowest index among equal heights survives.
			if v == h && g.Index(nr, nc) < idx {
				return false, radius, nil
			}
		}
	}
	return true, radius, nil
}

// scanRows evaluates rows [from, to) and returns the accepted cells in
// row-major order. IDs are left unset.
func (d *Detector) scanRows(from, to int) ([]Treetop, error) {
	var out []Treetop
	for row := from; row < to; row++ {
		for col := 0; col < d.grid.Cols; col++ {
			ok, radius, err := d.evaluate(row, col)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			x, y := d.grid.CenterOf(row, col)
			pt := l1grid.NewPoint(x, y)
			pt.Attrs[l1grid.AttrHeight] = d.raster.At(row, col)
			pt.Attrs[l1grid.AttrWindowRadius] = radius
			out = append(out, Treetop{Row: row, Col: col, Point: pt})
		}
	}
	return out, nil
}

// Detect finds treetops in r using the variable window filter. Rows are split
// across workers, each producing its own partial list; partials are merged in
// row order and numbered 1..N, so the result does not depend on scheduling.
func Detect(r *l1grid.Raster, p Params) ([]Treetop, error) {
	d, err := NewDetector(r, p)
	if err != nil {
		return nil, err
	}

	workers := p.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	rows := d.grid.Rows
	if workers > rows {
		workers = rows
	}

	partials := make([][]Treetop, workers)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		from := w * rows / workers
		to := (w + 1) * rows / workers
		g.Go(func() error {
			part, err := d.scanRows(from, to)
			if err != nil {
				return err
			}
			partials[w] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	treetops := make([]Treetop, 0)
	for _, part := range partials {
		treetops = append(treetops, part...)
	}
	for i := range treetops {
		treetops[i].ID = i + 1
	}

	logf("detected %d treetops in %dx%d raster (workers=%d)", len(treetops), rows, d.grid.Cols, workers)
	return treetops, nil
}

// Points returns the treetops as plain points, preserving order.
func Points(treetops []Treetop) []l1grid.Point {
	out := make([]l1grid.Point, len(treetops))
	for i, t := range treetops {
		out[i] = t.Point
	}
	return out
}
