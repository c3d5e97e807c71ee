package style

import "questmap.app/internal/campaign"

type routeParams struct {
	minZoom float64
	strokes []StrokeLayer
}

// Each route type has its own zoom floor and stroke stack; royal and regional
// roads use an outline+fill double stroke.
var routeTypes = map[string]routeParams{
	"royal": {minZoom: 2, strokes: []StrokeLayer{
		{Color: "#3e2723", Width: 4},
		{Color: "#ffb300", Width: 2.5},
	}},
	"major-sea": {minZoom: 2, strokes: []StrokeLayer{
		{Color: "#1d5d87", Width: 2.5, Dash: []float64{8, 4}},
	}},
	"regional": {minZoom: 4, strokes: []StrokeLayer{
		{Color: "#4e342e", Width: 3},
		{Color: "#8d6e63", Width: 1.8},
	}},
	"market": {minZoom: 5, strokes: []StrokeLayer{
		{Color: "#6d4c41", Width: 2},
	}},
	"local": {minZoom: 6, strokes: []StrokeLayer{
		{Color: "#795548", Width: 1.5},
	}},
	"footpath": {minZoom: 7, strokes: []StrokeLayer{
		{Color: "#8d6e63", Width: 1, Dash: []float64{4, 3}},
	}},
}

var routeDefault = routeParams{minZoom: 3, strokes: []StrokeLayer{
	{Color: "#757575", Width: 1.5},
}}

func (e *Engine) Route(r *campaign.Route, zoom float64) *RenderableStyle {
	if r == nil {
		return nil
	}
	params, known := routeTypes[r.Type]
	variant := r.Type
	if !known {
		params = routeDefault
		variant = "default"
	}
	if zoom < params.minZoom {
		return nil
	}
	return e.cached(campaign.KindRoute, variant, func() *RenderableStyle {
		return &RenderableStyle{ZIndex: zRoute, Strokes: params.strokes}
	})
}
