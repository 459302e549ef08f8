package l1grid

import (
	"fmt"
	"math"
)

// Extent is an axis-aligned bounding box in ground units.
type Extent struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// Width returns the east-west length of the extent.
func (e Extent) Width() float64 { return e.MaxX - e.MinX }

// Height returns the north-south length of the extent.
func (e Extent) Height() float64 { return e.MaxY - e.MinY }

// Contains reports whether (x, y) lies inside the closed extent.
func (e Extent) Contains(x, y float64) bool {
	return x >= e.MinX && x <= e.MaxX && y >= e.MinY && y <= e.MaxY
}

func (e Extent) validate() error {
	for _, v := range [...]float64{e.MinX, e.MinY, e.MaxX, e.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: extent bounds must be finite, got %+v", ErrInvalidConfig, e)
		}
	}
	if e.MaxX < e.MinX || e.MaxY < e.MinY {
		return fmt.Errorf("%w: extent max must not be below min, got %+v", ErrInvalidConfig, e)
	}
	return nil
}

// GridIndex maps continuous coordinates onto the cells of a regular grid.
// Row 0 is the northern row; column 0 is the western column.
type GridIndex struct {
	OriginX float64 // west edge
	OriginY float64 // north edge
	ResX    float64
	ResY    float64
	Rows    int
	Cols    int
}

// NewGridIndex builds a grid covering ext with cells of resX by resY.
// The cell count per axis is ceil(length/res), with a minimum of one so that
// degenerate extents still produce a usable grid.
func NewGridIndex(ext Extent, resX, resY float64) (GridIndex, error) {
	if !(resX > 0) || math.IsInf(resX, 0) {
		return GridIndex{}, fmt.Errorf("%w: resolution x must be positive, got %v", ErrInvalidConfig, resX)
	}
	if !(resY > 0) || math.IsInf(resY, 0) {
		return GridIndex{}, fmt.Errorf("%w: resolution y must be positive, got %v", ErrInvalidConfig, resY)
	}
	if err := ext.validate(); err != nil {
		return GridIndex{}, err
	}

	cols := int(math.Ceil(ext.Width() / resX))
	rows := int(math.Ceil(ext.Height() / resY))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	return GridIndex{
		OriginX: ext.MinX,
		OriginY: ext.MaxY,
		ResX:    resX,
		ResY:    resY,
		Rows:    rows,
		Cols:    cols,
	}, nil
}

// NewSquareGridIndex is NewGridIndex with square cells.
func NewSquareGridIndex(ext Extent, res float64) (GridIndex, error) {
	return NewGridIndex(ext, res, res)
}

// Len returns the number of cells in the grid.
func (g GridIndex) Len() int { return g.Rows * g.Cols }

// Covered returns the area actually covered by whole cells. It can extend
// past the requested extent on the east and south sides.
func (g GridIndex) Covered() Extent {
	return Extent{
		MinX: g.OriginX,
		MaxX: g.OriginX + float64(g.Cols)*g.ResX,
		MinY: g.OriginY - float64(g.Rows)*g.ResY,
		MaxY: g.OriginY,
	}
}

// CellOf returns the cell containing (x, y). Cells are half-open towards the
// east and south, except that the outer east and south edges belong to the
// last column and row.
func (g GridIndex) CellOf(x, y float64) (row, col int, err error) {
	if math.IsNaN(x) || math.IsNaN(y) || !g.Covered().Contains(x, y) {
		return 0, 0, fmt.Errorf("%w: (%v, %v)", ErrOutOfExtent, x, y)
	}

	col = int(math.Floor((x - g.OriginX) / g.ResX))
	row = int(math.Floor((g.OriginY - y) / g.ResY))
	if col >= g.Cols {
		col = g.Cols - 1
	}
	if row >= g.Rows {
		row = g.Rows - 1
	}
	return row, col, nil
}

// CenterOf returns the ground coordinate of the centre of (row, col).
func (g GridIndex) CenterOf(row, col int) (x, y float64) {
	x = g.OriginX + (float64(col)+0.5)*g.ResX
	y = g.OriginY - (float64(row)+0.5)*g.ResY
	return x, y
}

// Index returns the row-major index of (row, col).
func (g GridIndex) Index(row, col int) int { return row*g.Cols + col }

// RowCol is the inverse of Index.
func (g GridIndex) RowCol(idx int) (row, col int) { return idx / g.Cols, idx % g.Cols }

// InBounds reports whether (row, col) addresses a cell of the grid.
func (g GridIndex) InBounds(row, col int) bool {
	return row >= 0 && row < g.Rows && col >= 0 && col < g.Cols
}

// Transform returns the affine transform of the grid.
func (g GridIndex) Transform() Transform {
	return Transform{OriginX: g.OriginX, OriginY: g.OriginY, CellWidth: g.ResX, CellHeight: g.ResY}
}
