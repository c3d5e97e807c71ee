package style

import (
	"fmt"

	"questmap.app/internal/campaign"
)

type settlementClass struct {
	name   string
	radius float64
	fill   string
	font   string
}

var settlementClasses = []struct {
	minPop float64
	class  settlementClass
}{
	{popCity, settlementClass{name: "city", radius: 7, fill: "#8c2f1b", font: "bold 13px serif"}},
	{popTown, settlementClass{name: "town", radius: 5.5, fill: "#a8552f", font: "bold 12px serif"}},
	{popVillage, settlementClass{name: "village", radius: 4, fill: "#c08552", font: "11px serif"}},
	{0, settlementClass{name: "hamlet", radius: 3, fill: "#b59b84", font: "10px serif"}},
}

func classifySettlement(population float64) settlementClass {
	for _, c := range settlementClasses {
		if population >= c.minPop {
			return c.class
		}
	}
	return settlementClasses[len(settlementClasses)-1].class
}

// Settlement returns nil below the category minimum zoom and below the
// population floor for the current zoom; dense worlds disclose detail
// progressively as the viewer zooms in.
func (e *Engine) Settlement(s *campaign.Settlement, zoom float64) *RenderableStyle {
	if s == nil {
		return nil
	}
	minPop, visible := minPopulationAt(zoom)
	if !visible || s.Population < minPop {
		return nil
	}
	cls := classifySettlement(s.Population)
	withLabel := zoom >= settlementLabelZoom && s.Name != ""
	variant := fmt.Sprintf("%s|cap=%t", cls.name, s.Capital)
	style := e.cached(campaign.KindSettlement, variant, func() *RenderableStyle {
		out := &RenderableStyle{
			ZIndex: zSettlement,
			Circle: &Circle{Radius: cls.radius, Fill: cls.fill, Stroke: "#3e2723", StrokeWidth: 1},
		}
		if s.Capital {
			out.Icon = &Icon{Glyph: "★", Scale: 0.9}
		}
		return out
	})
	if !withLabel {
		return style
	}
	// Labels carry the feature's own name, so the cached base is copied.
	labeled := *style
	labeled.Labels = []LabelLine{{Text: s.Name, Font: cls.font, OffsetY: -cls.radius - 4}}
	return &labeled
}
