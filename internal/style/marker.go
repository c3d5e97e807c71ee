package style

import "questmap.app/internal/campaign"

// Marker icons keyed by sub-type; map exports usually carry their own glyph,
// these cover records that arrive without one.
var markerIcons = map[string]string{
	"battlefield": "⚔",
	"ruins":       "⛬",
	"cave":        "▲",
	"shrine":      "✝",
	"inn":         "🍺",
	"portal":      "◎",
}

const markerDefaultIcon = "📍"

func (e *Engine) Marker(m *campaign.Marker, zoom float64) *RenderableStyle {
	if m == nil || zoom < markerMinZoom {
		return nil
	}
	glyph := m.Icon
	if glyph == "" {
		if g, ok := markerIcons[m.Type]; ok {
			glyph = g
		} else {
			glyph = markerDefaultIcon
		}
	}
	style := e.cached(campaign.KindMarker, m.Type+"|"+glyph, func() *RenderableStyle {
		return &RenderableStyle{
			ZIndex: zMarker,
			Icon:   &Icon{Glyph: glyph, Scale: 1},
		}
	})
	if zoom < markerLabelZoom || m.Note == "" {
		return style
	}
	labeled := *style
	labeled.Labels = []LabelLine{{Text: m.Note, Font: "10px sans-serif", OffsetY: 12}}
	return &labeled
}

var locationIcons = map[string]string{
	"camp":    "⛺",
	"dungeon": "♜",
	"poi":     "◈",
	"spawn":   "✦",
}

func (e *Engine) Location(l *campaign.CampaignLocation, zoom float64) *RenderableStyle {
	if l == nil || zoom < locationMinZoom {
		return nil
	}
	glyph, ok := locationIcons[l.Kind]
	if !ok {
		glyph = locationIcons["poi"]
	}
	style := e.cached(campaign.KindLocation, l.Kind, func() *RenderableStyle {
		return &RenderableStyle{
			ZIndex: zLocation,
			Icon:   &Icon{Glyph: glyph, Scale: 1.1},
		}
	})
	if zoom < locationLabelZoom || l.Name == "" {
		return style
	}
	labeled := *style
	labeled.Labels = []LabelLine{{Text: l.Name, Font: "bold 11px sans-serif", OffsetY: 13}}
	return &labeled
}
