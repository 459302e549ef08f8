package l2treetops

import (
	"fmt"
	"math"

	"github.com/banshee-data/canopy.report/internal/canopy/l1grid"
)

// WindowFunc maps a canopy height to a search radius in ground units.
// A radius of zero or less means the cell is compared against no neighbours.
type WindowFunc func(height float64) float64

// Shape selects the distance metric used to decide window membership.
type Shape int

const (
	// Circular windows use Euclidean distance between cell centres.
	Circular Shape = iota
	// Square windows use Chebyshev distance between cell centres.
	Square
)

func (s Shape) String() string {
	switch s {
	case Circular:
		return "circular"
	case Square:
		return "square"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// ParseShape converts a configuration string into a Shape.
func ParseShape(s string) (Shape, error) {
	switch s {
	case "", "circular":
		return Circular, nil
	case "square":
		return Square, nil
	}
	return Circular, fmt.Errorf("%w: unknown window shape %q", l1grid.ErrInvalidConfig, s)
}

// LinearWindow returns radius = slope*height + intercept.
func LinearWindow(slope, intercept float64) WindowFunc {
	return func(h float64) float64 { return slope*h + intercept }
}

// ConstantWindow returns the same radius for every height.
func ConstantWindow(radius float64) WindowFunc {
	return func(float64) float64 { return radius }
}

// ClampWindow bounds fn to [min, max]. A max of zero or less leaves the upper
// side unbounded.
func ClampWindow(fn WindowFunc, min, max float64) WindowFunc {
	return func(h float64) float64 {
		r := fn(h)
		if r < min {
			r = min
		}
		if max > 0 && r > max {
			r = max
		}
		return r
	}
}

// window is the neighbourhood of one cell, clipped to the raster. It holds
// no offset list, so its cost does not depend on how many distinct radii a
// raster produces.
type window struct {
	maxDR, maxDC int // half-extents in cells, never larger than the raster
	r2           float64
	resX, resY   float64
	shape        Shape
}

// newWindow builds the window for radius on cells of resX by resY. The
// half-extents are capped at maxRows and maxCols, the largest offsets that
// can still land inside the raster.
func newWindow(radius, resX, resY float64, shape Shape, maxRows, maxCols int) window {
	return window{
		maxDR: halfExtent(radius, resY, maxRows),
		maxDC: halfExtent(radius, resX, maxCols),
		r2:    radius * radius,
		resX:  resX,
		resY:  resY,
		shape: shape,
	}
}

// halfExtent is floor(radius/res) capped at limit. The comparison happens in
// floating point so a huge radius cannot overflow the int conversion.
func halfExtent(radius, res float64, limit int) int {
	n := math.Floor(radius / res)
	if n <= 0 {
		return 0
	}
	if n >= float64(limit) {
		return limit
	}
	return int(n)
}

// contains reports whether the offset (dr, dc) is a neighbour. The centre is
// never its own neighbour.
func (w window) contains(dr, dc int) bool {
	if dr == 0 && dc == 0 {
		return false
	}
	if dr < -w.maxDR || dr > w.maxDR || dc < -w.maxDC || dc > w.maxDC {
		return false
	}
	if w.shape == Square {
		return true
	}
	dx := float64(dc) * w.resX
	dy := float64(dr) * w.resY
	return dx*dx+dy*dy <= w.r2
}
