package style

const (
	settlementMinZoom   = 2.0
	settlementLabelZoom = 7.0

	markerMinZoom   = 5.0
	markerLabelZoom = 7.0

	locationMinZoom   = 4.0
	locationLabelZoom = 6.0

	riverLabelZoom = 7.0

	tokenLabelZoom      = 5.0
	tokenRadius         = 8.0
	tokenSelectedRadius = 11.0
)

// Population class thresholds, descending.
const (
	popCity    = 20000.0
	popTown    = 5000.0
	popVillage = 1000.0
)

// minPopulationAt prunes low-importance settlements at low zoom. The second
// return is false below the category minimum zoom, where nothing renders.
func minPopulationAt(zoom float64) (float64, bool) {
	switch {
	case zoom >= 6:
		return 0, true
	case zoom >= 5:
		return popVillage, true
	case zoom >= 4:
		return popTown, true
	case zoom >= 3:
		return 10000, true
	case zoom >= settlementMinZoom:
		return popCity, true
	default:
		return 0, false
	}
}

// Draw order, low to high.
const (
	zRiver      = 5
	zRoute      = 10
	zSettlement = 20
	zMarker     = 30
	zLocation   = 40
	zToken      = 100
	zTokenSel   = 101
)
