package campaign

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"questmap.app/internal/geo"
	"questmap.app/internal/tiles"
)

// This file is the single normalization boundary for backend records. The
// campaign API mixes snake_case and camelCase keys and occasionally ships
// stringified JSON sub-fields; everything is converted to the typed entities
// here, and nothing downstream ever inspects raw JSON shapes.

func pick(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func str(m map[string]any, keys ...string) string {
	v, ok := pick(m, keys...)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

func num(m map[string]any, keys ...string) (float64, bool) {
	v, ok := pick(m, keys...)
	if !ok {
		return 0, false
	}
	return asFloat(v)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func intVal(m map[string]any, keys ...string) int {
	f, ok := num(m, keys...)
	if !ok {
		return 0
	}
	return int(f)
}

func boolVal(m map[string]any, keys ...string) bool {
	v, ok := pick(m, keys...)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case float64:
		return b != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes":
			return true
		}
	}
	return false
}

func strSlice(m map[string]any, keys ...string) []string {
	v, ok := pick(m, keys...)
	if !ok {
		return nil
	}
	switch s := v.(type) {
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok && str != "" {
				out = append(out, str)
			}
		}
		return out
	case []string:
		return s
	case string:
		// Stringified JSON array, or a bare comma list.
		t := strings.TrimSpace(s)
		if t == "" {
			return nil
		}
		if strings.HasPrefix(t, "[") {
			var arr []string
			if err := json.Unmarshal([]byte(t), &arr); err == nil {
				return arr
			}
			return nil
		}
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		return nil
	}
}

func timeVal(m map[string]any, keys ...string) time.Time {
	v, ok := pick(m, keys...)
	if !ok {
		return time.Time{}
	}
	switch t := v.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts
			}
		}
		return time.Time{}
	case float64:
		if t <= 0 {
			return time.Time{}
		}
		sec := int64(t)
		return time.Unix(sec, int64((t-float64(sec))*1e9)).UTC()
	default:
		return time.Time{}
	}
}

func pointVal(v any) (geo.Point, bool) {
	switch p := v.(type) {
	case []any:
		if len(p) < 2 {
			return geo.Point{}, false
		}
		x, okx := asFloat(p[0])
		y, oky := asFloat(p[1])
		if !okx || !oky || !geo.IsFinite(x) || !geo.IsFinite(y) {
			return geo.Point{}, false
		}
		return geo.Point{X: x, Y: y}, true
	case map[string]any:
		if inner, ok := pick(p, "coordinates", "coords"); ok {
			return pointVal(inner)
		}
		x, okx := num(p, "x", "xWorld", "x_world")
		y, oky := num(p, "y", "yWorld", "y_world")
		if !okx || !oky || !geo.IsFinite(x) || !geo.IsFinite(y) {
			return geo.Point{}, false
		}
		return geo.Point{X: x, Y: y}, true
	default:
		return geo.Point{}, false
	}
}

// NormalizeLine decodes a line geometry: [[x,y],...] or {"coordinates":[...]}.
func NormalizeLine(v any) []geo.Point {
	switch l := v.(type) {
	case []any:
		out := make([]geo.Point, 0, len(l))
		for _, e := range l {
			if p, ok := pointVal(e); ok {
				out = append(out, p)
			}
		}
		return out
	case map[string]any:
		if inner, ok := pick(l, "coordinates", "points"); ok {
			return NormalizeLine(inner)
		}
		return nil
	default:
		return nil
	}
}

func normalizeRole(s string) MembershipRole {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin", "owner":
		return RoleAdmin
	case "dm", "gm", "gamemaster":
		return RoleDM
	case "co-dm", "co_dm", "codm":
		return RoleCoDM
	default:
		return RolePlayer
	}
}

func normalizeVisibility(s string) VisibilityState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hidden", "invisible":
		return VisibilityHidden
	case "stealthed", "stealth", "sneaking":
		return VisibilityStealthed
	default:
		return VisibilityVisible
	}
}

func NormalizeRosterRow(m map[string]any) RosterRow {
	row := RosterRow{
		MembershipID:   str(m, "membershipId", "membership_id", "playerId", "player_id", "id"),
		CharacterID:    str(m, "characterId", "character_id"),
		UserID:         str(m, "userId", "user_id"),
		Name:           str(m, "characterName", "character_name", "name"),
		Avatar:         str(m, "avatarUrl", "avatar_url", "avatar"),
		Role:           normalizeRole(str(m, "role", "membershipRole", "membership_role")),
		Status:         str(m, "status"),
		Visibility:     normalizeVisibility(str(m, "visibilityState", "visibility_state", "visibility")),
		HitPoints:      intVal(m, "hitPoints", "hit_points", "hp"),
		MaxHitPoints:   intVal(m, "maxHitPoints", "max_hit_points", "hp_max"),
		Conditions:     strSlice(m, "conditions", "condition_list"),
		CanViewHistory: boolVal(m, "canViewHistory", "can_view_history"),
		LastLocatedAt:  timeVal(m, "lastLocatedAt", "last_located_at"),
	}
	return row
}

// NormalizePosition decodes one record of the visible-position feed. Records
// without an id or finite coordinates are rejected here, before any renderer
// or service state sees them.
func NormalizePosition(m map[string]any) (Position, error) {
	id := str(m, "playerId", "player_id", "membershipId", "membership_id", "id")
	if id == "" {
		return Position{}, fmt.Errorf("campaign: position record without player id")
	}
	var coord geo.Point
	ok := false
	if v, has := pick(m, "coordinates", "coords", "geometry", "position"); has {
		coord, ok = pointVal(v)
	}
	if !ok {
		coord, ok = pointVal(m)
	}
	if !ok {
		return Position{}, fmt.Errorf("campaign: position %s without finite coordinates", id)
	}
	return Position{
		PlayerID:  id,
		Coord:     coord,
		LocatedAt: timeVal(m, "locatedAt", "located_at", "timestamp", "updatedAt", "updated_at"),
	}, nil
}

func NormalizeWorldMap(m map[string]any) WorldMap {
	w := WorldMap{
		ID:             str(m, "id", "mapId", "map_id"),
		CampaignID:     str(m, "campaignId", "campaign_id"),
		Name:           str(m, "name", "title"),
		WidthPixels:    intVal(m, "widthPixels", "width_pixels", "width"),
		HeightPixels:   intVal(m, "heightPixels", "height_pixels", "height"),
		MetersPerPixel: 0,
		Active:         boolVal(m, "isActive", "is_active", "active"),
	}
	if f, ok := num(m, "metersPerPixel", "meters_per_pixel"); ok {
		w.MetersPerPixel = f
	}
	if v, ok := pick(m, "bounds", "worldBounds", "world_bounds"); ok {
		if b := normalizeBounds(v); b != nil {
			w.Bounds = b
		}
	}
	// Worlds exported without explicit bounds still have pixel dimensions.
	if w.Bounds == nil && w.WidthPixels > 0 && w.HeightPixels > 0 {
		w.Bounds = &geo.WorldBounds{
			North: 0,
			West:  0,
			East:  float64(w.WidthPixels),
			South: -float64(w.HeightPixels),
		}
	}
	return w
}

func normalizeBounds(v any) *geo.WorldBounds {
	m, ok := v.(map[string]any)
	if !ok {
		// Stringified JSON object.
		s, isStr := v.(string)
		if !isStr {
			return nil
		}
		var inner map[string]any
		if err := json.Unmarshal([]byte(s), &inner); err != nil {
			return nil
		}
		m = inner
	}
	n, okN := num(m, "north")
	so, okS := num(m, "south")
	e, okE := num(m, "east")
	w, okW := num(m, "west")
	if !okN || !okS || !okE || !okW {
		return nil
	}
	return &geo.WorldBounds{North: n, South: so, East: e, West: w}
}

func NormalizeTileSet(m map[string]any) tiles.Config {
	cfg := tiles.Config{
		ID:          str(m, "id", "tileSetId", "tile_set_id"),
		Name:        str(m, "name", "title"),
		BaseURL:     str(m, "baseUrl", "base_url", "url", "urlTemplate", "url_template"),
		Attribution: str(m, "attribution"),
		MinZoom:     intVal(m, "minZoom", "min_zoom"),
		MaxZoom:     intVal(m, "maxZoom", "max_zoom"),
		TileSize:    intVal(m, "tileSize", "tile_size"),
		WrapX:       boolVal(m, "wrapX", "wrap_x"),
	}
	return cfg
}

func NormalizeLocation(m map[string]any) CampaignLocation {
	loc := CampaignLocation{
		ID:    str(m, "id", "locationId", "location_id", "spawnId", "spawn_id"),
		Name:  str(m, "name", "title"),
		Kind:  strings.ToLower(str(m, "kind", "type")),
		Spawn: boolVal(m, "isSpawn", "is_spawn", "spawn", "spawnPoint", "spawn_point"),
	}
	if v, ok := pick(m, "coordinates", "coords", "position"); ok {
		if p, okP := pointVal(v); okP {
			loc.Coord = p
		}
	} else if p, okP := pointVal(m); okP {
		loc.Coord = p
	}
	if loc.Kind == "" {
		loc.Kind = "poi"
	}
	return loc
}
