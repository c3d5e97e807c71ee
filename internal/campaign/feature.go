package campaign

// FeatureKind is the closed set of renderable map feature categories. Wire
// type strings outside this set map to KindUnknown rather than leaking string
// comparisons into renderers.
type FeatureKind uint8

const (
	KindUnknown FeatureKind = iota
	KindSettlement
	KindRoute
	KindRiver
	KindMarker
	KindLocation
	KindToken
)

func (k FeatureKind) String() string {
	switch k {
	case KindSettlement:
		return "settlement"
	case KindRoute:
		return "route"
	case KindRiver:
		return "river"
	case KindMarker:
		return "marker"
	case KindLocation:
		return "location"
	case KindToken:
		return "token"
	default:
		return "unknown"
	}
}

func ParseFeatureKind(s string) FeatureKind {
	switch s {
	case "settlement", "burg":
		return KindSettlement
	case "route", "road":
		return KindRoute
	case "river":
		return KindRiver
	case "marker":
		return KindMarker
	case "location", "campaign-location", "spawn":
		return KindLocation
	case "token", "player", "player-token":
		return KindToken
	default:
		return KindUnknown
	}
}

// Feature is the tagged union over the fixed categories. Exactly the field
// matching Kind is non-nil; RawType preserves the original wire string for
// unknown variants.
type Feature struct {
	Kind       FeatureKind
	RawType    string
	Settlement *Settlement
	Route      *Route
	River      *River
	Marker     *Marker
	Location   *CampaignLocation
	Token      *PlayerToken
}

func SettlementFeature(s *Settlement) Feature {
	return Feature{Kind: KindSettlement, RawType: "settlement", Settlement: s}
}

func RouteFeature(r *Route) Feature {
	return Feature{Kind: KindRoute, RawType: "route", Route: r}
}

func RiverFeature(r *River) Feature {
	return Feature{Kind: KindRiver, RawType: "river", River: r}
}

func MarkerFeature(m *Marker) Feature {
	return Feature{Kind: KindMarker, RawType: "marker", Marker: m}
}

func LocationFeature(l *CampaignLocation) Feature {
	return Feature{Kind: KindLocation, RawType: "location", Location: l}
}

func TokenFeature(t *PlayerToken) Feature {
	return Feature{Kind: KindToken, RawType: "token", Token: t}
}

func UnknownFeature(rawType string) Feature {
	return Feature{Kind: KindUnknown, RawType: rawType}
}

// Label returns the display name for popups, empty when the variant has none.
func (f Feature) Label() string {
	switch f.Kind {
	case KindSettlement:
		if f.Settlement != nil {
			return f.Settlement.Name
		}
	case KindRoute:
		if f.Route != nil {
			return f.Route.Name
		}
	case KindRiver:
		if f.River != nil {
			return f.River.Name
		}
	case KindMarker:
		if f.Marker != nil {
			return f.Marker.Note
		}
	case KindLocation:
		if f.Location != nil {
			return f.Location.Name
		}
	case KindToken:
		if f.Token != nil {
			return f.Token.Name
		}
	}
	return ""
}
