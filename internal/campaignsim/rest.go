package campaignsim

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"questmap.app/internal/campaign"
	"questmap.app/internal/geo"
	"questmap.app/internal/protocol"
)

// serverDefaultRadius caps what a non-elevated viewer sees when the request
// names no radius.
const serverDefaultRadius = 1024.0

type apiFault struct {
	status int
	code   string
	msg    string
}

func writeFault(rw http.ResponseWriter, f *apiFault) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(f.status)
	_ = json.NewEncoder(rw).Encode(map[string]any{
		"error": map[string]any{"code": f.code, "message": f.msg},
	})
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

// resolve looks up the campaign and the viewer's membership. Callers hold
// s.mu.
func (s *Server) resolve(r *http.Request) (*Campaign, *Member, *apiFault) {
	c := s.campaigns[r.PathValue("id")]
	if c == nil {
		return nil, nil, &apiFault{http.StatusNotFound, protocol.ErrCampaignNotFound, "no such campaign"}
	}
	tok := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	userID := s.tokens[tok]
	if userID == "" {
		return nil, nil, &apiFault{http.StatusUnauthorized, protocol.ErrNoPermission, "missing or unknown token"}
	}
	viewer := c.memberByUser(userID)
	if viewer == nil {
		return nil, nil, &apiFault{http.StatusForbidden, protocol.ErrCampaignDenied, "not a member of this campaign"}
	}
	return c, viewer, nil
}

func queryRadius(r *http.Request) float64 {
	v := r.URL.Query().Get("radius")
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}

func (s *Server) handleMap(rw http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	c, _, fault := s.resolve(r)
	if fault != nil {
		s.mu.Unlock()
		writeFault(rw, fault)
		return
	}
	// The real service stringifies bounds; keep that quirk.
	bounds, _ := json.Marshal(map[string]float64{
		"north": c.Map.North, "south": c.Map.South,
		"east": c.Map.East, "west": c.Map.West,
	})
	payload := map[string]any{
		"map": map[string]any{
			"map_id":         c.Map.ID,
			"campaign_id":    c.ID,
			"name":           c.Map.Name,
			"width_pixels":   c.Map.WidthPixels,
			"height_pixels":  c.Map.HeightPixels,
			"metersPerPixel": c.Map.MetersPerPixel,
			"bounds":         string(bounds),
			"is_active":      true,
		},
	}
	s.mu.Unlock()
	writeJSON(rw, payload)
}

func (s *Server) handleTileSets(rw http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	c, _, fault := s.resolve(r)
	if fault != nil {
		s.mu.Unlock()
		writeFault(rw, fault)
		return
	}
	rows := make([]any, 0, len(c.TileSets))
	for _, ts := range c.TileSets {
		rows = append(rows, map[string]any{
			"id":           ts.ID,
			"name":         ts.Name,
			"url_template": ts.URLTemplate,
			"attribution":  ts.Attribution,
			"min_zoom":     ts.MinZoom,
			"maxZoom":      ts.MaxZoom,
			"tile_size":    ts.TileSize,
		})
	}
	s.mu.Unlock()
	writeJSON(rw, map[string]any{"tileSets": rows})
}

func (s *Server) handleRoster(rw http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	c, _, fault := s.resolve(r)
	if fault != nil {
		s.mu.Unlock()
		writeFault(rw, fault)
		return
	}
	rows := make([]any, 0, len(c.Members))
	for _, m := range c.Members {
		row := map[string]any{
			"membership_id":    m.MembershipID,
			"character_id":     m.CharacterID,
			"user_id":          m.UserID,
			"characterName":    m.Name,
			"avatar_url":       m.Avatar,
			"role":             string(m.Role),
			"status":           m.Status,
			"visibility_state": string(m.Visibility),
			"hitPoints":        m.HitPoints,
			"max_hit_points":   m.MaxHitPoints,
			"conditions":       m.Conditions,
			"can_view_history": m.ShareTrail,
		}
		if !m.LocatedAt.IsZero() {
			row["last_located_at"] = m.LocatedAt.Format(time.RFC3339Nano)
		}
		rows = append(rows, row)
	}
	s.mu.Unlock()
	writeJSON(rw, map[string]any{"characters": rows})
}

func (s *Server) handleLocations(rw http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	c, _, fault := s.resolve(r)
	if fault != nil {
		s.mu.Unlock()
		writeFault(rw, fault)
		return
	}
	rows := make([]any, 0, len(c.Locations))
	for _, loc := range c.Locations {
		rows = append(rows, map[string]any{
			"id":       loc.ID,
			"name":     loc.Name,
			"type":     loc.Kind,
			"is_spawn": loc.Spawn,
			"position": map[string]any{"x": loc.X, "y": loc.Y},
		})
	}
	s.mu.Unlock()
	writeJSON(rw, map[string]any{"locations": rows})
}

func (s *Server) handleVisible(rw http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	c, viewer, fault := s.resolve(r)
	if fault != nil {
		s.mu.Unlock()
		writeFault(rw, fault)
		return
	}
	elevated := viewer.Role.Elevated()
	radius := queryRadius(r)
	if !elevated && radius <= 0 {
		radius = serverDefaultRadius
	}
	feats := make([]any, 0, len(c.Members))
	for _, m := range c.Members {
		if !m.Placed {
			continue
		}
		if !elevated && m.MembershipID != viewer.MembershipID {
			if m.Visibility == campaign.VisibilityHidden {
				continue
			}
			if viewer.Placed && dist(viewer.X, viewer.Y, m.X, m.Y) > radius {
				continue
			}
		}
		props := map[string]any{
			"player_id":        m.MembershipID,
			"visibility_state": string(m.Visibility),
		}
		if !m.LocatedAt.IsZero() {
			props["located_at"] = m.LocatedAt.Format(time.RFC3339Nano)
		}
		feats = append(feats, map[string]any{
			"type":       "Feature",
			"id":         m.MembershipID,
			"geometry":   map[string]any{"type": "Point", "coordinates": []float64{m.X, m.Y}},
			"properties": props,
		})
	}
	role := string(viewer.Role)
	if elevated {
		radius = 0
	}
	s.mu.Unlock()
	writeJSON(rw, map[string]any{
		"radius":     radius,
		"viewerRole": role,
		"features":   feats,
	})
}

func (s *Server) handleTrail(rw http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	c, viewer, fault := s.resolve(r)
	if fault != nil {
		s.mu.Unlock()
		writeFault(rw, fault)
		return
	}
	target := c.member(r.PathValue("playerId"))
	if target == nil {
		s.mu.Unlock()
		writeFault(rw, &apiFault{http.StatusNotFound, protocol.ErrNotFound, "no such player"})
		return
	}
	elevated := viewer.Role.Elevated()
	allowed := elevated || target == viewer ||
		(target.ShareTrail && target.Visibility == campaign.VisibilityVisible)
	if !allowed {
		s.mu.Unlock()
		writeFault(rw, &apiFault{http.StatusForbidden, protocol.ErrPolicyHidden, "trail hidden by campaign policy"})
		return
	}
	radius := queryRadius(r)
	if !elevated && radius <= 0 {
		radius = serverDefaultRadius
	}
	coords := make([][]float64, 0, len(target.Trail))
	for _, p := range target.Trail {
		if !elevated && target != viewer && viewer.Placed && dist(viewer.X, viewer.Y, p[0], p[1]) > radius {
			continue
		}
		coords = append(coords, []float64{p[0], p[1]})
	}
	s.mu.Unlock()
	writeJSON(rw, map[string]any{
		"geometry": map[string]any{"type": "LineString", "coordinates": coords},
	})
}

type moveBody struct {
	Target *struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"target"`
	SpawnID    string `json:"spawnId"`
	LocationID string `json:"locationId"`
	Mode       string `json:"mode"`
	Reason     string `json:"reason"`
}

func (s *Server) handleMove(rw http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	c, viewer, fault := s.resolve(r)
	if fault != nil {
		s.mu.Unlock()
		writeFault(rw, fault)
		return
	}
	target := c.member(r.PathValue("playerId"))
	if target == nil {
		s.mu.Unlock()
		writeFault(rw, &apiFault{http.StatusNotFound, protocol.ErrNotFound, "no such player"})
		return
	}
	elevated := viewer.Role.Elevated()
	if !elevated && target.UserID != viewer.UserID {
		s.mu.Unlock()
		writeFault(rw, &apiFault{http.StatusForbidden, protocol.ErrNoPermission, "you do not control this token"})
		return
	}

	var body moveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.mu.Unlock()
		writeFault(rw, &apiFault{http.StatusBadRequest, protocol.ErrBadRequest, "malformed move body"})
		return
	}
	mode := campaign.MovementMode(body.Mode)
	if !mode.Known() {
		s.mu.Unlock()
		writeFault(rw, &apiFault{http.StatusUnprocessableEntity, protocol.ErrBadRequest, "unknown movement mode"})
		return
	}
	if mode.Privileged() && !elevated {
		s.mu.Unlock()
		writeFault(rw, &apiFault{http.StatusForbidden, protocol.ErrNoPermission, "movement mode requires DM rights"})
		return
	}
	forms := 0
	if body.Target != nil {
		forms++
	}
	if body.SpawnID != "" {
		forms++
	}
	if body.LocationID != "" {
		forms++
	}
	if forms != 1 {
		s.mu.Unlock()
		writeFault(rw, &apiFault{http.StatusUnprocessableEntity, protocol.ErrBadRequest, "exactly one destination is required"})
		return
	}

	var x, y float64
	switch {
	case body.SpawnID != "":
		loc := c.location(body.SpawnID)
		if loc == nil || !loc.Spawn {
			s.mu.Unlock()
			writeFault(rw, &apiFault{http.StatusUnprocessableEntity, protocol.ErrBadRequest, "unknown spawn point"})
			return
		}
		x, y = loc.X, loc.Y
	case body.LocationID != "":
		loc := c.location(body.LocationID)
		if loc == nil {
			s.mu.Unlock()
			writeFault(rw, &apiFault{http.StatusUnprocessableEntity, protocol.ErrBadRequest, "unknown location"})
			return
		}
		x, y = loc.X, loc.Y
	default:
		x, y = body.Target.X, body.Target.Y
		if !geo.IsFinite(x) || !geo.IsFinite(y) {
			s.mu.Unlock()
			writeFault(rw, &apiFault{http.StatusUnprocessableEntity, protocol.ErrBadRequest, "coordinates must be finite"})
			return
		}
		if x < c.Map.West || x > c.Map.East || y < c.Map.South || y > c.Map.North {
			s.mu.Unlock()
			writeFault(rw, &apiFault{http.StatusUnprocessableEntity, protocol.ErrBadRequest, "destination outside the map"})
			return
		}
	}

	teleport := mode == campaign.ModeTeleport || mode == campaign.ModeGM || body.SpawnID != ""
	s.applyMove(c, target, x, y, teleport)
	s.mu.Unlock()
	writeJSON(rw, map[string]any{"ok": true})
}
