package engine

import (
	"time"

	"questmap.app/internal/campaign"
	"questmap.app/internal/geo"
	"questmap.app/internal/tiles"
)

// StateFrame is an immutable snapshot of the live map, published after every
// change. Consumers must never mutate a frame or anything reachable from it.
type StateFrame struct {
	Seq         uint64
	CampaignID  string
	GeneratedAt time.Time

	// Loading is true from campaign switch until the first full fetch lands.
	Loading bool

	// Restored is true while the frame still shows data primed from a saved
	// snapshot; cleared once a live roster fetch lands.
	Restored bool

	Map        *campaign.WorldMap
	Source     *tiles.Source // nil when the campaign has no imagery
	ViewExtent geo.Extent

	Viewer          campaign.ViewerContext
	Tokens          []campaign.PlayerToken
	Locations       []campaign.CampaignLocation
	SelectedTokenID string

	// Trails holds the trails currently shown, keyed by player id.
	Trails map[string]*TrailView

	Move MoveView
	Conn ConnView

	// Notice is a transient banner message (permission denials, missing
	// imagery). Cleared by the next successful user action.
	Notice string

	// LastError records the most recent fetch failure without blocking the
	// rest of the state.
	LastError string
}

// TokenByID finds a token in the frame, nil when absent.
func (f *StateFrame) TokenByID(id string) *campaign.PlayerToken {
	for i := range f.Tokens {
		if f.Tokens[i].PlayerID == id {
			return &f.Tokens[i]
		}
	}
	return nil
}

// TrailView is one shown trail. Hidden marks a trail the server refused on
// policy grounds; Pending marks a fetch in flight (stale points, if any, are
// kept so the line does not flicker).
type TrailView struct {
	PlayerID  string
	Points    []geo.Point
	Hidden    bool
	Pending   bool
	FetchedAt time.Time
}

type MovePhase string

const (
	PhaseIdle       MovePhase = "idle"
	PhaseSelecting  MovePhase = "selecting"
	PhaseConfirming MovePhase = "confirming"
	PhaseSubmitting MovePhase = "submitting"
)

// MoveView is the movement tool state. Destination and LocationID are
// mutually exclusive destination forms; DistancePx is straight-line pixels
// from Origin, DistanceM the same scaled by the map's meters-per-pixel.
type MoveView struct {
	Phase       MovePhase
	TokenID     string
	Origin      geo.Point
	Destination *geo.Point
	LocationID  string
	DistancePx  float64
	DistanceM   float64
	Mode        campaign.MovementMode
	Modes       []campaign.MovementMode
	Reason      string

	// Err is the inline submit error; the tool stays in confirming so the
	// user can retarget or retry.
	Err string
}

// ConnView reflects the push channel. Resumed is set when the current
// connection replaced an earlier one, which also forces a state refresh.
type ConnView struct {
	Live      bool
	Resumed   bool
	Since     time.Time
	LastError string
}
