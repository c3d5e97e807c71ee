package style

import (
	"strings"
	"sync"

	"questmap.app/internal/campaign"
)

// RenderableStyle is the renderer-agnostic description of how one feature is
// drawn at one zoom. A nil style means "not rendered at this zoom".
type RenderableStyle struct {
	ZIndex  int
	Circle  *Circle
	Strokes []StrokeLayer
	Icon    *Icon
	Labels  []LabelLine
}

type Circle struct {
	Radius      float64
	Fill        string
	Stroke      string
	StrokeWidth float64
}

// StrokeLayer is one pass of a line style; order matters for outline+fill
// double strokes.
type StrokeLayer struct {
	Color string
	Width float64
	Dash  []float64
}

type Icon struct {
	Glyph string
	Scale float64
}

type LabelLine struct {
	Text    string
	Font    string
	OffsetY float64
}

// Engine computes feature styles. Static category styles are cached per
// {category, variant} key because the resolution callback fires on every
// render tick; token styles are rebuilt every call since selection, HP and
// conditions change between frames.
type Engine struct {
	mu    sync.RWMutex
	cache map[cacheKey]*RenderableStyle
}

type cacheKey struct {
	kind    campaign.FeatureKind
	variant string
}

func NewEngine() *Engine {
	return &Engine{cache: make(map[cacheKey]*RenderableStyle)}
}

// ForFeature dispatches over the feature union. Unknown variants are never
// rendered.
func (e *Engine) ForFeature(f campaign.Feature, zoom float64, selectedTokenID string) *RenderableStyle {
	switch f.Kind {
	case campaign.KindSettlement:
		return e.Settlement(f.Settlement, zoom)
	case campaign.KindRoute:
		return e.Route(f.Route, zoom)
	case campaign.KindRiver:
		return e.River(f.River, zoom)
	case campaign.KindMarker:
		return e.Marker(f.Marker, zoom)
	case campaign.KindLocation:
		return e.Location(f.Location, zoom)
	case campaign.KindToken:
		t := f.Token
		return e.Token(t, zoom, t != nil && selectedTokenID != "" && t.PlayerID == selectedTokenID)
	default:
		return nil
	}
}

func (e *Engine) cached(kind campaign.FeatureKind, variant string, build func() *RenderableStyle) *RenderableStyle {
	key := cacheKey{kind: kind, variant: variant}
	e.mu.RLock()
	s, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		return s
	}
	s = build()
	e.mu.Lock()
	if prev, ok := e.cache[key]; ok {
		s = prev
	} else {
		e.cache[key] = s
	}
	e.mu.Unlock()
	return s
}

// CacheSize is exposed for metrics.
func (e *Engine) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

// Initials compresses a display name to at most two uppercase letters for the
// always-visible token label.
func Initials(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "?"
	}
	out := make([]rune, 0, 2)
	for _, f := range fields {
		for _, r := range f {
			out = append(out, r)
			break
		}
		if len(out) == 2 {
			break
		}
	}
	return strings.ToUpper(string(out))
}
