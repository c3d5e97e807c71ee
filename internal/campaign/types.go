package campaign

import (
	"fmt"
	"strings"
	"time"

	"questmap.app/internal/geo"
)

type MembershipRole string

const (
	RoleAdmin  MembershipRole = "admin"
	RoleDM     MembershipRole = "dm"
	RoleCoDM   MembershipRole = "co-dm"
	RolePlayer MembershipRole = "player"
)

// Elevated reports whether the role carries DM-level control over the
// campaign map.
func (r MembershipRole) Elevated() bool {
	return r == RoleAdmin || r == RoleDM || r == RoleCoDM
}

type VisibilityState string

const (
	VisibilityVisible   VisibilityState = "visible"
	VisibilityStealthed VisibilityState = "stealthed"
	VisibilityHidden    VisibilityState = "hidden"
)

type MovementMode string

const (
	ModeWalk     MovementMode = "walk"
	ModeRide     MovementMode = "ride"
	ModeBoat     MovementMode = "boat"
	ModeFly      MovementMode = "fly"
	ModeTeleport MovementMode = "teleport"
	ModeGM       MovementMode = "gm"
)

// modeOrder ranks modes from mundane to privileged. Fallback on permission
// downgrade scans toward the start.
var modeOrder = []MovementMode{ModeWalk, ModeRide, ModeBoat, ModeFly, ModeTeleport, ModeGM}

func (m MovementMode) Known() bool {
	for _, o := range modeOrder {
		if m == o {
			return true
		}
	}
	return false
}

// Privileged reports whether the mode requires elevated control.
func (m MovementMode) Privileged() bool {
	return m == ModeTeleport || m == ModeGM
}

func AllowedModes(elevated bool) []MovementMode {
	if elevated {
		return append([]MovementMode(nil), modeOrder...)
	}
	out := make([]MovementMode, 0, len(modeOrder))
	for _, m := range modeOrder {
		if !m.Privileged() {
			out = append(out, m)
		}
	}
	return out
}

// FallbackMode returns the nearest still-permitted mode at or below m. A
// downgraded viewer holding "teleport" falls back to "fly", never silently
// submitting a disallowed mode.
func FallbackMode(m MovementMode, elevated bool) MovementMode {
	idx := 0
	for i, o := range modeOrder {
		if o == m {
			idx = i
			break
		}
	}
	for i := idx; i >= 0; i-- {
		if elevated || !modeOrder[i].Privileged() {
			return modeOrder[i]
		}
	}
	return ModeWalk
}

// ViewerContext is derived from the session and roster, never stored. It is
// recomputed whenever roster or role context changes.
type ViewerContext struct {
	UserID       string
	MembershipID string
	IsAdmin      bool
	IsDM         bool
	IsCoDM       bool
}

func (v ViewerContext) Elevated() bool {
	return v.IsAdmin || v.IsDM || v.IsCoDM
}

// CanControl reports whether the viewer may move the given token: their own,
// or any token under elevated control.
func (v ViewerContext) CanControl(t *PlayerToken) bool {
	if t == nil {
		return false
	}
	if v.Elevated() {
		return true
	}
	return v.UserID != "" && t.UserID == v.UserID
}

type WorldMap struct {
	ID             string
	CampaignID     string
	Name           string
	WidthPixels    int
	HeightPixels   int
	MetersPerPixel float64
	Bounds         *geo.WorldBounds
	Active         bool
}

// RosterRow is the slow-changing half of a token: identity, role, status.
type RosterRow struct {
	MembershipID   string
	CharacterID    string
	UserID         string
	Name           string
	Avatar         string
	Role           MembershipRole
	Status         string
	Visibility     VisibilityState
	HitPoints      int
	MaxHitPoints   int
	Conditions     []string
	CanViewHistory bool
	LastLocatedAt  time.Time
}

// Position is the fast-changing half: where a player currently is.
type Position struct {
	PlayerID  string
	Coord     geo.Point
	LocatedAt time.Time
}

// PlayerToken is the merged, render-ready view of one player on the map.
type PlayerToken struct {
	PlayerID       string
	UserID         string
	CharacterID    string
	Coordinates    geo.Point
	Name           string
	Role           MembershipRole
	Visibility     VisibilityState
	HitPoints      int
	MaxHitPoints   int
	Conditions     []string
	CanViewHistory bool
	LastLocatedAt  time.Time
	RosterMiss     bool
}

// HPPercent is 0..100, or -1 when hit points are unknown.
func (t *PlayerToken) HPPercent() int {
	if t.MaxHitPoints <= 0 {
		return -1
	}
	p := t.HitPoints * 100 / t.MaxHitPoints
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return p
}

// FallbackName builds the generated short name used when a position record
// has no matching roster row. The entity is still shown, never dropped.
func FallbackName(playerID string) string {
	id := strings.TrimSpace(playerID)
	if id == "" {
		return "PC-????"
	}
	tail := id
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	return "PC-" + strings.ToUpper(tail)
}

type Settlement struct {
	ID         string
	Name       string
	Population float64
	Capital    bool
	Port       bool
	Citadel    bool
	Walls      bool
	Coord      geo.Point
}

type Route struct {
	ID     string
	Type   string
	Name   string
	Points []geo.Point
}

type River struct {
	ID        string
	Name      string
	Discharge float64
	WidthM    float64
	Points    []geo.Point
}

type Marker struct {
	ID    string
	Type  string
	Icon  string
	Note  string
	Coord geo.Point
}

type CampaignLocation struct {
	ID    string
	Name  string
	Kind  string
	Spawn bool
	Coord geo.Point
}

// MovementRequest is a move or teleport submission. Exactly one destination
// form must be set.
type MovementRequest struct {
	Target     *geo.Point
	SpawnID    string
	LocationID string
	Mode       MovementMode
	Reason     string
}

// Validate applies the client-side checks that run before any network call.
func (r *MovementRequest) Validate() error {
	forms := 0
	if r.Target != nil {
		forms++
		if !geo.IsFinite(r.Target.X) || !geo.IsFinite(r.Target.Y) {
			return &ValidationError{Field: "target", Msg: "coordinates must be finite"}
		}
	}
	if r.SpawnID != "" {
		forms++
	}
	if r.LocationID != "" {
		forms++
	}
	if forms == 0 {
		return &ValidationError{Field: "target", Msg: "missing destination"}
	}
	if forms > 1 {
		return &ValidationError{Field: "target", Msg: "multiple destination forms"}
	}
	if !r.Mode.Known() {
		return &ValidationError{Field: "mode", Msg: fmt.Sprintf("unknown mode %q", string(r.Mode))}
	}
	return nil
}

// ValidationError is a client-side rejection with a field-level message.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return "campaign: invalid " + e.Field + ": " + e.Msg
}
