package l3crowns

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/banshee-data/canopy.report/internal/canopy/l1grid"
	"github.com/banshee-data/canopy.report/internal/canopy/l2treetops"
	"github.com/banshee-data/canopy.report/internal/config"
)

// Background is the label of cells not owned by any crown.
const Background = 0

// Params configures region growing.
type Params struct {
	MinHeight    float64 // cells below this height are never claimed
	Tolerance    float64 // neighbour may reach seedHeight*(1+Tolerance)
	MaxRadius    float64 // ground distance from the seed; 0 = unlimited
	Connectivity int     // 4 or 8; 0 means 8
}

// ParamsFromTuning builds crown parameters from a loaded TuningConfig.
func ParamsFromTuning(cfg *config.TuningConfig) Params {
	return Params{
		MinHeight:    cfg.GetCrownMinHeight(),
		Tolerance:    cfg.GetCrownTolerance(),
		MaxRadius:    cfg.GetCrownMaxRadius(),
		Connectivity: cfg.GetCrownConnectivity(),
	}
}

// Validate checks that the parameters describe a usable stopping rule.
func (p Params) Validate() error {
	if math.IsNaN(p.MinHeight) {
		return fmt.Errorf("%w: min height must be a number", l1grid.ErrInvalidConfig)
	}
	if p.Tolerance < 0 || math.IsNaN(p.Tolerance) {
		return fmt.Errorf("%w: tolerance must be non-negative, got %v", l1grid.ErrInvalidConfig, p.Tolerance)
	}
	if p.MaxRadius < 0 || math.IsNaN(p.MaxRadius) {
		return fmt.Errorf("%w: max radius must be non-negative, got %v", l1grid.ErrInvalidConfig, p.MaxRadius)
	}
	switch p.Connectivity {
	case 0, 4, 8:
	default:
		return fmt.Errorf("%w: connectivity must be 4 or 8, got %d", l1grid.ErrInvalidConfig, p.Connectivity)
	}
	return nil
}

var (
	neighbours4 = [][2]int{{-1, 0}, {0, -1}, {0, 1}, {1, 0}}
	neighbours8 = [][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}
)

func (p Params) neighbours() [][2]int {
	if p.Connectivity == 4 {
		return neighbours4
	}
	return neighbours8
}

// frontierItem is a claimed cell waiting to expand.
type frontierItem struct {
	height float64
	seed   int // index into seeds
	cell   int // row-major cell index
}

// frontier is a max-heap on height. Ties go to the lower treetop id and then
// the lower cell index so every run pops cells in the same order.
type frontier struct {
	items []frontierItem
	ids   []int // treetop id per seed index
}

func (f *frontier) Len() int { return len(f.items) }

func (f *frontier) Less(i, j int) bool {
	a, b := f.items[i], f.items[j]
	if a.height != b.height {
		return a.height > b.height
	}
	if ida, idb := f.ids[a.seed], f.ids[b.seed]; ida != idb {
		return ida < idb
	}
	return a.cell < b.cell
}

func (f *frontier) Swap(i, j int) { f.items[i], f.items[j] = f.items[j], f.items[i] }

func (f *frontier) Push(x any) { f.items = append(f.items, x.(frontierItem)) }

func (f *frontier) Pop() any {
	n := len(f.items)
	it := f.items[n-1]
	f.items = f.items[:n-1]
	return it
}

// seed is a treetop resolved to a raster cell.
type seed struct {
	id     int
	row    int
	col    int
	height float64
	valid  bool
}

// Delineate grows one crown per treetop over r. All seeds share a single
// frontier ordered by height, so when two crowns compete for a cell the one
// whose frontier reaches it from the taller side claims it first. Crowns
// never overlap; cells that no crown can claim stay Background.
func Delineate(r *l1grid.Raster, treetops []l2treetops.Treetop, p Params) (*Result, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: raster is required", l1grid.ErrInvalidConfig)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	seenIDs := make(map[int]struct{}, len(treetops))
	for _, t := range treetops {
		if t.ID == Background {
			return nil, fmt.Errorf("%w: treetop id %d is reserved for background", l1grid.ErrInvalidConfig, Background)
		}
		if _, dup := seenIDs[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate treetop id %d", l1grid.ErrInvalidConfig, t.ID)
		}
		seenIDs[t.ID] = struct{}{}
	}

	g := r.Grid()
	labels := make([]int, g.Len())
	seeds := resolveSeeds(r, g, treetops)

	f := &frontier{ids: make([]int, len(seeds))}
	for i, s := range seeds {
		f.ids[i] = s.id
	}

	// Claim every seed cell before any growth so a tall crown cannot swallow
	// a shorter tree's top. Seeds are processed in frontier order so a
	// duplicate location goes to the taller (then lower id) treetop.
	order := make([]int, 0, len(seeds))
	for i, s := range seeds {
		if s.valid {
			order = append(order, i)
		}
	}
	seedHeap := &frontier{ids: f.ids}
	for _, i := range order {
		seedHeap.items = append(seedHeap.items, frontierItem{height: seeds[i].height, seed: i, cell: g.Index(seeds[i].row, seeds[i].col)})
	}
	heap.Init(seedHeap)
	for seedHeap.Len() > 0 {
		it := heap.Pop(seedHeap).(frontierItem)
		if labels[it.cell] != Background {
			logf("treetop %d shares cell %d with treetop %d; its crown is empty", seeds[it.seed].id, it.cell, labels[it.cell])
			seeds[it.seed].valid = false
			continue
		}
		labels[it.cell] = seeds[it.seed].id
		f.items = append(f.items, it)
	}
	heap.Init(f)

	neigh := p.neighbours()
	maxR2 := p.MaxRadius * p.MaxRadius
	resX, resY := g.ResX, g.ResY

	for f.Len() > 0 {
		it := heap.Pop(f).(frontierItem)
		s := seeds[it.seed]
		ceiling := s.height * (1 + p.Tolerance)
		row, col := g.RowCol(it.cell)

		for _, d := range neigh {
			nr, nc := row+d[0], col+d[1]
			if !g.InBounds(nr, nc) {
				continue
			}
			idx := g.Index(nr, nc)
			if labels[idx] != Background {
				continue
			}
			h, ok := r.Value(nr, nc)
			if !ok || h > ceiling || h < p.MinHeight {
				continue
			}
			if p.MaxRadius > 0 {
				dx := float64(nc-s.col) * resX
				dy := float64(nr-s.row) * resY
				if dx*dx+dy*dy > maxR2 {
					continue
				}
			}
			labels[idx] = s.id
			heap.Push(f, frontierItem{height: h, seed: it.seed, cell: idx})
		}
	}

	res := newResult(r, g, labels, seeds)
	logf("delineated %d crowns covering %d of %d cells", len(res.Regions), res.Claimed(), g.Len())
	return res, nil
}

// resolveSeeds maps treetops onto raster cells. Treetops carrying a row and
// column inside the raster use them directly; others are located by
// coordinate. Unresolvable treetops keep valid=false and get empty crowns.
func resolveSeeds(r *l1grid.Raster, g l1grid.GridIndex, treetops []l2treetops.Treetop) []seed {
	seeds := make([]seed, len(treetops))
	for i, t := range treetops {
		s := seed{id: t.ID, row: t.Row, col: t.Col}
		cx, cy := g.CenterOf(t.Row, t.Col)
		if !g.InBounds(t.Row, t.Col) || math.Abs(cx-t.X) > g.ResX/2 || math.Abs(cy-t.Y) > g.ResY/2 {
			row, col, err := g.CellOf(t.X, t.Y)
			if err != nil {
				logf("treetop %d: %v; its crown is empty", t.ID, err)
				seeds[i] = s
				continue
			}
			s.row, s.col = row, col
		}
		h, ok := r.Value(s.row, s.col)
		if !ok {
			logf("treetop %d sits on a no-data cell; its crown is empty", t.ID)
			seeds[i] = s
			continue
		}
		s.height = h
		s.valid = true
		seeds[i] = s
	}
	return seeds
}
