package l1grid

// Attribute names produced by the canopy layers.
const (
	AttrHeight        = "height"
	AttrWindowRadius  = "winRadius"
	AttrCrownArea     = "crownArea"
	AttrCrownDiameter = "crownDiameter"
)

// Point is a real-world coordinate carrying named numeric attributes.
type Point struct {
	X, Y  float64
	Attrs map[string]float64
}

// NewPoint returns a point with an initialised attribute map.
func NewPoint(x, y float64) Point {
	return Point{X: x, Y: y, Attrs: make(map[string]float64)}
}

// Attr returns the named attribute and whether it was present.
func (p Point) Attr(name string) (float64, bool) {
	if p.Attrs == nil {
		return 0, false
	}
	v, ok := p.Attrs[name]
	return v, ok
}

// Height is shorthand for the height attribute. Missing heights read as 0.
func (p Point) Height() float64 {
	return p.Attrs[AttrHeight]
}
