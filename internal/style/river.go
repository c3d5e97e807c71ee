package style

import "questmap.app/internal/campaign"

type riverClass struct {
	name    string
	minZoom float64
	width   float64
}

func classifyRiver(discharge float64) riverClass {
	switch {
	case discharge >= 60:
		return riverClass{name: "major", minZoom: 3, width: 3.5}
	case discharge >= 5:
		return riverClass{name: "minor", minZoom: 5, width: 2}
	default:
		return riverClass{name: "stream", minZoom: 6, width: 1.2}
	}
}

func (e *Engine) River(r *campaign.River, zoom float64) *RenderableStyle {
	if r == nil {
		return nil
	}
	cls := classifyRiver(r.Discharge)
	if zoom < cls.minZoom {
		return nil
	}
	style := e.cached(campaign.KindRiver, cls.name, func() *RenderableStyle {
		return &RenderableStyle{
			ZIndex:  zRiver,
			Strokes: []StrokeLayer{{Color: "#4a78a8", Width: cls.width}},
		}
	})
	if zoom < riverLabelZoom || r.Name == "" {
		return style
	}
	labeled := *style
	labeled.Labels = []LabelLine{{Text: r.Name, Font: "italic 11px serif"}}
	return &labeled
}
