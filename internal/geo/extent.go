package geo

import "math"

const (
	// BoundsScale is the fixed linear transform between campaign bounds and
	// pixel space. Campaign worlds already store bounds in pixel units with a
	// top-left origin (north=0, west=0, south negative downward).
	BoundsScale = 1.0

	DefaultPadRatio = 0.05

	defaultSpan = 4096.0
)

type Point struct {
	X float64
	Y float64
}

type WorldBounds struct {
	North float64
	South float64
	East  float64
	West  float64
}

type Extent struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

func DefaultExtent() Extent {
	return Extent{MinX: 0, MinY: -defaultSpan, MaxX: defaultSpan, MaxY: 0}
}

func (e Extent) Width() float64  { return e.MaxX - e.MinX }
func (e Extent) Height() float64 { return e.MaxY - e.MinY }

func (e Extent) Center() Point {
	return Point{X: (e.MinX + e.MaxX) / 2, Y: (e.MinY + e.MaxY) / 2}
}

func (e Extent) Contains(p Point) bool {
	return p.X >= e.MinX && p.X <= e.MaxX && p.Y >= e.MinY && p.Y <= e.MaxY
}

// BoundsToExtent maps campaign bounds into pixel space. Nil or degenerate
// bounds collapse to the default extent so downstream consumers never have to
// special-case "no map".
func BoundsToExtent(b *WorldBounds) Extent {
	if b == nil || !b.valid() {
		return DefaultExtent()
	}
	return Extent{
		MinX: b.West * BoundsScale,
		MinY: b.South * BoundsScale,
		MaxX: b.East * BoundsScale,
		MaxY: b.North * BoundsScale,
	}
}

func (b *WorldBounds) valid() bool {
	if !IsFinite(b.North) || !IsFinite(b.South) || !IsFinite(b.East) || !IsFinite(b.West) {
		return false
	}
	return b.North > b.South && b.East > b.West
}

// PadExtent grows the extent symmetrically about its center by ratio on each
// axis. An extent with a non-positive span is returned unchanged.
func PadExtent(e Extent, ratio float64) Extent {
	w := e.Width()
	h := e.Height()
	if w <= 0 || h <= 0 {
		return e
	}
	dx := w * ratio / 2
	dy := h * ratio / 2
	return Extent{MinX: e.MinX - dx, MinY: e.MinY - dy, MaxX: e.MaxX + dx, MaxY: e.MaxY + dy}
}

func Dist(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
