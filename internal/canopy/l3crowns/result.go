package l3crowns

import (
	"math"
	"sort"

	"github.com/banshee-data/canopy.report/internal/canopy/l1grid"
)

// Region is the set of cells owned by one treetop, with the crown
// attributes derived from them. An empty region has CellCount 0 and NaN
// centroid and height.
type Region struct {
	TreetopID int
	Cells     []int // row-major cell indices, ascending

	// Seed location (treetop position) in ground units.
	SeedX, SeedY float64

	CellCount int
	Area      float64 // ground units squared
	Diameter  float64 // diameter of the circle with the same area
	CentroidX float64
	CentroidY float64
	MaxHeight float64
}

// Result holds the crown label grid and one Region per input treetop.
type Result struct {
	Grid    l1grid.GridIndex
	Labels  []int    // row-major treetop ids; Background where unclaimed
	Regions []Region // ordered by TreetopID
}

func newResult(r *l1grid.Raster, g l1grid.GridIndex, labels []int, seeds []seed) *Result {
	byID := make(map[int]*Region, len(seeds))
	regions := make([]Region, len(seeds))
	for i, s := range seeds {
		regions[i] = Region{TreetopID: s.id, MaxHeight: math.NaN(), CentroidX: math.NaN(), CentroidY: math.NaN()}
		if s.valid {
			regions[i].SeedX, regions[i].SeedY = g.CenterOf(s.row, s.col)
		} else {
			regions[i].SeedX, regions[i].SeedY = math.NaN(), math.NaN()
		}
	}
	for i := range regions {
		byID[regions[i].TreetopID] = &regions[i]
	}

	sumX := make(map[int]float64, len(seeds))
	sumY := make(map[int]float64, len(seeds))
	for idx, id := range labels {
		if id == Background {
			continue
		}
		reg := byID[id]
		reg.Cells = append(reg.Cells, idx)
		row, col := g.RowCol(idx)
		x, y := g.CenterOf(row, col)
		sumX[id] += x
		sumY[id] += y
		h := r.At(row, col)
		if math.IsNaN(reg.MaxHeight) || h > reg.MaxHeight {
			reg.MaxHeight = h
		}
	}

	cellArea := g.ResX * g.ResY
	for i := range regions {
		reg := &regions[i]
		reg.CellCount = len(reg.Cells)
		if reg.CellCount == 0 {
			continue
		}
		n := float64(reg.CellCount)
		reg.Area = n * cellArea
		reg.Diameter = 2 * math.Sqrt(reg.Area/math.Pi)
		reg.CentroidX = sumX[reg.TreetopID] / n
		reg.CentroidY = sumY[reg.TreetopID] / n
	}

	sort.Slice(regions, func(i, j int) bool { return regions[i].TreetopID < regions[j].TreetopID })
	return &Result{Grid: g, Labels: labels, Regions: regions}
}

// Claimed returns the number of cells owned by any crown.
func (res *Result) Claimed() int {
	n := 0
	for _, id := range res.Labels {
		if id != Background {
			n++
		}
	}
	return n
}

// Region returns the crown for a treetop id.
func (res *Result) Region(id int) (Region, bool) {
	i := sort.Search(len(res.Regions), func(i int) bool { return res.Regions[i].TreetopID >= id })
	if i < len(res.Regions) && res.Regions[i].TreetopID == id {
		return res.Regions[i], true
	}
	return Region{}, false
}

// LabelAt returns the owning treetop id of (row, col).
func (res *Result) LabelAt(row, col int) int {
	return res.Labels[res.Grid.Index(row, col)]
}

// LabelRaster returns the crown ids as a raster on the source grid, with
// Background cells written as noData. Vector polygons are produced outside
// the core from this raster.
func (res *Result) LabelRaster(noData float64) *l1grid.Raster {
	out := make([]float64, len(res.Labels))
	for i, id := range res.Labels {
		if id == Background {
			out[i] = noData
			continue
		}
		out[i] = float64(id)
	}
	r, err := l1grid.NewRaster(res.Grid.Rows, res.Grid.Cols, out, res.Grid.Transform(), noData)
	if err != nil {
		// The grid came from a valid raster, so this cannot fail.
		panic(err)
	}
	return r
}

// CrownPoints returns one point per non-empty crown, located at the treetop,
// carrying the crown's height, area and diameter for zonal summaries.
func (res *Result) CrownPoints() []l1grid.Point {
	out := make([]l1grid.Point, 0, len(res.Regions))
	for _, reg := range res.Regions {
		if reg.CellCount == 0 {
			continue
		}
		p := l1grid.NewPoint(reg.SeedX, reg.SeedY)
		p.Attrs[l1grid.AttrHeight] = reg.MaxHeight
		p.Attrs[l1grid.AttrCrownArea] = reg.Area
		p.Attrs[l1grid.AttrCrownDiameter] = reg.Diameter
		out = append(out, p)
	}
	return out
}
