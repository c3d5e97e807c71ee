package style

import (
	"fmt"
	"strings"

	"questmap.app/internal/campaign"
)

// Token styles are rebuilt on every call: selection, hit points and
// conditions are live state, so caching would serve stale visuals.
func (e *Engine) Token(t *campaign.PlayerToken, zoom float64, selected bool) *RenderableStyle {
	if t == nil {
		return nil
	}
	circle := &Circle{Radius: tokenRadius, StrokeWidth: 1.5}
	switch t.Visibility {
	case campaign.VisibilityHidden:
		circle.Fill = "#9e9e9e"
		circle.Stroke = "#616161"
	case campaign.VisibilityStealthed:
		circle.Fill = "rgba(41,98,255,0.45)"
		circle.Stroke = "#2962ff"
	default:
		circle.Fill = "#2962ff"
		circle.Stroke = "#ffffff"
	}
	z := zToken
	if selected {
		circle.Radius = tokenSelectedRadius
		circle.Stroke = "#ffd600"
		circle.StrokeWidth = 3
		z = zTokenSel
	}

	labels := []LabelLine{{Text: Initials(t.Name), Font: "bold 11px sans-serif"}}
	if zoom >= tokenLabelZoom {
		labels = append(labels, LabelLine{Text: t.Name, Font: "12px sans-serif", OffsetY: -tokenRadius - 6})
		if status := tokenStatus(t); status != "" {
			labels = append(labels, LabelLine{Text: status, Font: "10px sans-serif", OffsetY: -tokenRadius - 18})
		}
	}
	return &RenderableStyle{ZIndex: z, Circle: circle, Labels: labels}
}

func tokenStatus(t *campaign.PlayerToken) string {
	parts := make([]string, 0, 2)
	if p := t.HPPercent(); p >= 0 {
		parts = append(parts, fmt.Sprintf("HP %d%%", p))
	}
	if len(t.Conditions) > 0 {
		parts = append(parts, strings.Join(t.Conditions, ", "))
	}
	return strings.Join(parts, " · ")
}
