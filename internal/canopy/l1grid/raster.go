package l1grid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultNoData is the sentinel used when a raster source declares none.
const DefaultNoData = -9999.0

// Transform maps cell (row, col) to ground coordinates. OriginX is the west
// edge and OriginY the north edge of the raster; cells are CellWidth by
// CellHeight ground units.
type Transform struct {
	OriginX    float64
	OriginY    float64
	CellWidth  float64
	CellHeight float64
}

// Validate checks that the cell sizes are positive and finite.
func (t Transform) Validate() error {
	if !(t.CellWidth > 0) || math.IsInf(t.CellWidth, 0) {
		return fmt.Errorf("%w: cell width must be positive, got %v", ErrInvalidConfig, t.CellWidth)
	}
	if !(t.CellHeight > 0) || math.IsInf(t.CellHeight, 0) {
		return fmt.Errorf("%w: cell height must be positive, got %v", ErrInvalidConfig, t.CellHeight)
	}
	if math.IsNaN(t.OriginX) || math.IsNaN(t.OriginY) {
		return fmt.Errorf("%w: origin must be a number", ErrInvalidConfig)
	}
	return nil
}

// Raster is an immutable 2-D grid of heights (or any numeric value) with an
// axis-aligned transform and a no-data sentinel. NaN cells are also treated
// as no-data.
type Raster struct {
	Transform Transform
	NoData    float64

	data *mat.Dense
}

// NewRaster builds a raster from row-major values. The slice is copied.
func NewRaster(rows, cols int, values []float64, t Transform, noData float64) (*Raster, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("%w: raster must have at least one row and column, got %dx%d", ErrInvalidConfig, rows, cols)
	}
	if len(values) != rows*cols {
		return nil, fmt.Errorf("%w: expected %d values for %dx%d raster, got %d", ErrInvalidConfig, rows*cols, rows, cols, len(values))
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	buf := make([]float64, len(values))
	copy(buf, values)
	return &Raster{Transform: t, NoData: noData, data: mat.NewDense(rows, cols, buf)}, nil
}

// NewRasterFromRows builds a raster from a slice of equal-length rows,
// northern row first.
func NewRasterFromRows(rows [][]float64, t Transform, noData float64) (*Raster, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: raster must have at least one row and column", ErrInvalidConfig)
	}
	cols := len(rows[0])
	values := make([]float64, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d", ErrInvalidConfig, i, len(r), cols)
		}
		values = append(values, r...)
	}
	return NewRaster(len(rows), cols, values, t, noData)
}

// NewFilledRaster builds a raster on grid g where every cell holds fill.
func NewFilledRaster(g GridIndex, fill, noData float64) *Raster {
	buf := make([]float64, g.Len())
	for i := range buf {
		buf[i] = fill
	}
	return &Raster{Transform: g.Transform(), NoData: noData, data: mat.NewDense(g.Rows, g.Cols, buf)}
}

// Rows returns the number of raster rows.
func (r *Raster) Rows() int {
	rows, _ := r.data.Dims()
	return rows
}

// Cols returns the number of raster columns.
func (r *Raster) Cols() int {
	_, cols := r.data.Dims()
	return cols
}

// Len returns the number of cells.
func (r *Raster) Len() int { return r.Rows() * r.Cols() }

// At returns the raw value of (row, col), which may be the no-data sentinel.
func (r *Raster) At(row, col int) float64 { return r.data.At(row, col) }

// IsNoData reports whether v is the raster's no-data sentinel or NaN.
func (r *Raster) IsNoData(v float64) bool {
	return math.IsNaN(v) || v == r.NoData
}

// Value returns the value at (row, col) and false for no-data cells.
func (r *Raster) Value(row, col int) (float64, bool) {
	v := r.data.At(row, col)
	if r.IsNoData(v) {
		return 0, false
	}
	return v, true
}

// Grid returns the GridIndex sharing this raster's transform.
func (r *Raster) Grid() GridIndex {
	return GridIndex{
		OriginX: r.Transform.OriginX,
		OriginY: r.Transform.OriginY,
		ResX:    r.Transform.CellWidth,
		ResY:    r.Transform.CellHeight,
		Rows:    r.Rows(),
		Cols:    r.Cols(),
	}
}

// Extent returns the ground area covered by the raster.
func (r *Raster) Extent() Extent { return r.Grid().Covered() }

// Values returns a row-major copy of the cell values.
func (r *Raster) Values() []float64 {
	out := make([]float64, 0, r.Len())
	rows := r.Rows()
	for i := 0; i < rows; i++ {
		out = append(out, r.data.RawRowView(i)...)
	}
	return out
}

// ValidCount returns the number of cells that are not no-data.
func (r *Raster) ValidCount() int {
	n := 0
	rows, cols := r.data.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if !r.IsNoData(r.data.At(i, j)) {
				n++
			}
		}
	}
	return n
}

// Range returns the minimum and maximum valid values. ok is false when the
// raster holds no valid cells.
func (r *Raster) Range() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	rows, cols := r.data.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := r.data.At(i, j)
			if r.IsNoData(v) {
				continue
			}
			ok = true
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	return lo, hi, ok
}

// SameGrid reports whether two rasters share transform and dimensions.
func (r *Raster) SameGrid(o *Raster) bool {
	return r.Transform == o.Transform && r.Rows() == o.Rows() && r.Cols() == o.Cols()
}
