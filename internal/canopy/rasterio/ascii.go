package rasterio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/canopy.report/internal/canopy/l1grid"
)

// ErrFormat is wrapped by every parse failure.
var ErrFormat = errors.New("malformed ascii grid")

// MaxCells bounds ncols*nrows so a hostile header cannot request an
// arbitrarily large raster.
const MaxCells = 1 << 28

// readChunk caps the initial value buffer; larger grids grow by append as
// cells actually arrive.
const readChunk = 1 << 16

// header holds the recognised ESRI ASCII grid keys. dx/dy are the GDAL
// extension for non-square cells.
type header struct {
	ncols, nrows int
	xll, yll     float64
	center       bool
	cellX, cellY float64
	noData       float64
	haveCols     bool
	haveRows     bool
	haveX, haveY bool
	haveCell     bool
}

// Read parses an ESRI ASCII grid. A grid without NODATA_value uses
// l1grid.DefaultNoData.
func Read(r io.Reader) (*l1grid.Raster, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	sc.Split(bufio.ScanWords)

	h := header{noData: l1grid.DefaultNoData}
	var pending string
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			pending = sc.Text()
			break
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("%w: header key %q has no value", ErrFormat, key)
		}
		if err := h.set(key, sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ascii grid: %w", err)
	}
	if err := h.check(); err != nil {
		return nil, err
	}

	n := h.ncols * h.nrows
	values := make([]float64, 0, min(n, readChunk))
	parse := func(tok string) error {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("%w: cell %d: %v", ErrFormat, len(values), err)
		}
		values = append(values, v)
		return nil
	}
	if pending != "" {
		if err := parse(pending); err != nil {
			return nil, err
		}
	}
	for len(values) < n && sc.Scan() {
		if err := parse(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ascii grid: %w", err)
	}
	if len(values) != n {
		return nil, fmt.Errorf("%w: expected %d cells, got %d", ErrFormat, n, len(values))
	}
	if sc.Scan() {
		return nil, fmt.Errorf("%w: trailing data after %d cells", ErrFormat, n)
	}

	west, south := h.xll, h.yll
	if h.center {
		west -= h.cellX / 2
		south -= h.cellY / 2
	}
	t := l1grid.Transform{
		OriginX:    west,
		OriginY:    south + float64(h.nrows)*h.cellY,
		CellWidth:  h.cellX,
		CellHeight: h.cellY,
	}
	return l1grid.NewRaster(h.nrows, h.ncols, values, t, h.noData)
}

func (h *header) set(key, val string) error {
	num := func() (float64, error) {
		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrFormat, key, err)
		}
		return v, nil
	}
	count := func() (int, error) {
		v, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrFormat, key, err)
		}
		return v, nil
	}

	var err error
	switch key {
	case "ncols":
		h.ncols, err = count()
		h.haveCols = true
	case "nrows":
		h.nrows, err = count()
		h.haveRows = true
	case "xllcorner", "xllcenter":
		h.xll, err = num()
		h.haveX = true
		h.center = h.center || key == "xllcenter"
	case "yllcorner", "yllcenter":
		h.yll, err = num()
		h.haveY = true
		h.center = h.center || key == "yllcenter"
	case "cellsize":
		h.cellX, err = num()
		h.cellY = h.cellX
		h.haveCell = true
	case "dx":
		h.cellX, err = num()
		h.haveCell = true
	case "dy":
		h.cellY, err = num()
	case "nodata_value":
		h.noData, err = num()
	default:
		return fmt.Errorf("%w: unknown header key %q", ErrFormat, key)
	}
	return err
}

func (h *header) check() error {
	switch {
	case !h.haveCols || !h.haveRows:
		return fmt.Errorf("%w: ncols and nrows are required", ErrFormat)
	case !h.haveX || !h.haveY:
		return fmt.Errorf("%w: lower-left corner or centre is required", ErrFormat)
	case !h.haveCell:
		return fmt.Errorf("%w: cellsize is required", ErrFormat)
	case h.ncols < 1 || h.nrows < 1:
		return fmt.Errorf("%w: grid must have at least one cell, got %dx%d", ErrFormat, h.nrows, h.ncols)
	case h.ncols > MaxCells/h.nrows:
		return fmt.Errorf("%w: %dx%d grid exceeds %d cells", ErrFormat, h.nrows, h.ncols, MaxCells)
	}
	if h.cellY == 0 {
		h.cellY = h.cellX
	}
	return nil
}

// ReadFile reads an ASCII grid from path.
func ReadFile(path string) (*l1grid.Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return r, nil
}

// Write encodes r as an ESRI ASCII grid. NaN cells are written as the
// raster's no-data value. Non-square cells use the dx/dy keys.
func Write(w io.Writer, r *l1grid.Raster) error {
	bw := bufio.NewWriter(w)
	t := r.Transform
	south := t.OriginY - float64(r.Rows())*t.CellHeight

	fmt.Fprintf(bw, "ncols %d\n", r.Cols())
	fmt.Fprintf(bw, "nrows %d\n", r.Rows())
	fmt.Fprintf(bw, "xllcorner %s\n", formatFloat(t.OriginX))
	fmt.Fprintf(bw, "yllcorner %s\n", formatFloat(south))
	if t.CellWidth == t.CellHeight {
		fmt.Fprintf(bw, "cellsize %s\n", formatFloat(t.CellWidth))
	} else {
		fmt.Fprintf(bw, "dx %s\n", formatFloat(t.CellWidth))
		fmt.Fprintf(bw, "dy %s\n", formatFloat(t.CellHeight))
	}
	fmt.Fprintf(bw, "NODATA_value %s\n", formatFloat(r.NoData))

	for row := 0; row < r.Rows(); row++ {
		for col := 0; col < r.Cols(); col++ {
			if col > 0 {
				bw.WriteByte(' ')
			}
			v := r.At(row, col)
			if math.IsNaN(v) {
				v = r.NoData
			}
			bw.WriteString(formatFloat(v))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// WriteFile writes r to path, creating parent directories as needed.
func WriteFile(path string, r *l1grid.Raster) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
