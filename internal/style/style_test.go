package style

import (
	"testing"

	"questmap.app/internal/campaign"
)

func TestRouteTypeZoomFloors(t *testing.T) {
	e := NewEngine()
	r := func(typ string, zoom float64) *RenderableStyle {
		return e.Route(&campaign.Route{ID: "r1", Type: typ}, zoom)
	}
	if r("royal", 2) == nil {
		t.Fatalf("royal hidden at zoom 2")
	}
	if r("royal", 1.9) != nil {
		t.Fatalf("royal visible below its floor")
	}
	if r("footpath", 6.9) != nil {
		t.Fatalf("footpath visible below its floor")
	}
	if r("footpath", 7) == nil {
		t.Fatalf("footpath hidden at zoom 7")
	}
}

func TestRouteDoubleStrokeOrder(t *testing.T) {
	e := NewEngine()
	s := e.Route(&campaign.Route{ID: "r1", Type: "royal"}, 5)
	if len(s.Strokes) != 2 {
		t.Fatalf("strokes=%d want 2", len(s.Strokes))
	}
	if s.Strokes[0].Width <= s.Strokes[1].Width {
		t.Fatalf("outline not wider than fill: %+v", s.Strokes)
	}
}

func TestRouteUnknownFallback(t *testing.T) {
	e := NewEngine()
	if e.Route(&campaign.Route{ID: "r1", Type: "goat-track"}, 2.9) != nil {
		t.Fatalf("unknown type visible below default floor")
	}
	s := e.Route(&campaign.Route{ID: "r1", Type: "goat-track"}, 3)
	if s == nil || len(s.Strokes) != 1 {
		t.Fatalf("unknown type fallback=%+v", s)
	}
	// All unknown types share the one cached default style.
	other := e.Route(&campaign.Route{ID: "r2", Type: "deer-path"}, 3)
	if s != other {
		t.Fatalf("unknown types not sharing default style")
	}
}

func TestStaticStylesCached(t *testing.T) {
	e := NewEngine()
	s := &campaign.Settlement{ID: "b1", Name: "Dunhollow", Population: 30000}
	first := e.Settlement(s, 4)
	second := e.Settlement(s, 4)
	if first != second {
		t.Fatalf("settlement style not cached")
	}
	r := &campaign.Route{ID: "r1", Type: "regional"}
	if e.Route(r, 5) != e.Route(r, 5) {
		t.Fatalf("route style not cached")
	}
	if e.CacheSize() == 0 {
		t.Fatalf("cache empty after lookups")
	}
}

func TestTokenStylesNeverCached(t *testing.T) {
	e := NewEngine()
	tok := &campaign.PlayerToken{PlayerID: "p1", Name: "Mira", Visibility: campaign.VisibilityVisible}
	first := e.Token(tok, 4, false)
	second := e.Token(tok, 4, false)
	if first == second {
		t.Fatalf("token style cached")
	}
}

func TestTokenVisibilityFills(t *testing.T) {
	e := NewEngine()
	mk := func(v campaign.VisibilityState) *Circle {
		return e.Token(&campaign.PlayerToken{PlayerID: "p1", Name: "Mira", Visibility: v}, 4, false).Circle
	}
	hidden := mk(campaign.VisibilityHidden)
	stealthed := mk(campaign.VisibilityStealthed)
	visible := mk(campaign.VisibilityVisible)
	if hidden.Fill != "#9e9e9e" {
		t.Fatalf("hidden fill=%q", hidden.Fill)
	}
	if stealthed.Fill != "rgba(41,98,255,0.45)" {
		t.Fatalf("stealthed fill=%q", stealthed.Fill)
	}
	if visible.Fill != "#2962ff" {
		t.Fatalf("visible fill=%q", visible.Fill)
	}
}

func TestTokenSelectionEnlarges(t *testing.T) {
	e := NewEngine()
	tok := &campaign.PlayerToken{PlayerID: "p1", Name: "Mira"}
	plain := e.Token(tok, 4, false)
	sel := e.Token(tok, 4, true)
	if sel.Circle.Radius <= plain.Circle.Radius {
		t.Fatalf("selected radius %v not larger than %v", sel.Circle.Radius, plain.Circle.Radius)
	}
	if sel.ZIndex <= plain.ZIndex {
		t.Fatalf("selected not drawn above")
	}
}

func TestTokenLabels(t *testing.T) {
	e := NewEngine()
	tok := &campaign.PlayerToken{
		PlayerID: "p1", Name: "Mira of Dunhollow",
		HitPoints: 17, MaxHitPoints: 24,
		Conditions: []string{"poisoned"},
	}
	low := e.Token(tok, tokenLabelZoom-0.1, false)
	if len(low.Labels) != 1 || low.Labels[0].Text != "MO" {
		t.Fatalf("low-zoom labels=%+v want initials only", low.Labels)
	}
	high := e.Token(tok, tokenLabelZoom, false)
	if len(high.Labels) != 3 {
		t.Fatalf("high-zoom labels=%+v", high.Labels)
	}
	if high.Labels[2].Text != "HP 70% · poisoned" {
		t.Fatalf("status=%q", high.Labels[2].Text)
	}
}

func TestRiverClasses(t *testing.T) {
	e := NewEngine()
	major := &campaign.River{ID: "rv1", Name: "Greywater", Discharge: 80}
	if e.River(major, 2.9) != nil {
		t.Fatalf("major river visible below floor")
	}
	if e.River(major, 3) == nil {
		t.Fatalf("major river hidden at zoom 3")
	}
	stream := &campaign.River{ID: "rv2", Discharge: 1}
	if e.River(stream, 5.9) != nil {
		t.Fatalf("stream visible below floor")
	}
	if s := e.River(major, riverLabelZoom); len(s.Labels) != 1 {
		t.Fatalf("river label missing: %+v", s.Labels)
	}
}

func TestMarkerIconAndLabel(t *testing.T) {
	e := NewEngine()
	m := &campaign.Marker{ID: "m1", Type: "battlefield", Note: "Old war ground"}
	if e.Marker(m, markerMinZoom-0.1) != nil {
		t.Fatalf("marker visible below floor")
	}
	s := e.Marker(m, markerMinZoom)
	if s.Icon == nil || s.Icon.Glyph != "⚔" {
		t.Fatalf("icon=%+v", s.Icon)
	}
	if len(s.Labels) != 0 {
		t.Fatalf("label below label zoom")
	}
	s = e.Marker(m, markerLabelZoom)
	if len(s.Labels) != 1 || s.Labels[0].Text != "Old war ground" {
		t.Fatalf("labels=%+v", s.Labels)
	}
	own := e.Marker(&campaign.Marker{ID: "m2", Type: "battlefield", Icon: "☠"}, 6)
	if own.Icon.Glyph != "☠" {
		t.Fatalf("record's own glyph not used: %+v", own.Icon)
	}
}

func TestForFeatureDispatch(t *testing.T) {
	e := NewEngine()
	tok := &campaign.PlayerToken{PlayerID: "p1", Name: "Mira"}
	sel := e.ForFeature(campaign.TokenFeature(tok), 4, "p1")
	if sel.Circle.Radius != tokenSelectedRadius {
		t.Fatalf("selected token not enlarged via dispatch")
	}
	if e.ForFeature(campaign.UnknownFeature("volcano"), 9, "") != nil {
		t.Fatalf("unknown feature rendered")
	}
	if e.ForFeature(campaign.LocationFeature(&campaign.CampaignLocation{ID: "l1", Kind: "camp"}), locationMinZoom, "") == nil {
		t.Fatalf("location hidden at its floor")
	}
}

func TestInitials(t *testing.T) {
	if got := Initials("Mira of Dunhollow"); got != "MO" {
		t.Fatalf("initials=%q", got)
	}
	if got := Initials("Tor"); got != "T" {
		t.Fatalf("initials=%q", got)
	}
	if got := Initials(""); got != "?" {
		t.Fatalf("initials=%q", got)
	}
}
