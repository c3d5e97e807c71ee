package engine

import (
	"context"
	"sort"

	"questmap.app/internal/campaign"
	"questmap.app/internal/client"
	"questmap.app/internal/geo"
	"questmap.app/internal/tiles"
)

type refreshFlags uint8

const (
	refreshCore refreshFlags = 1 << iota // roster + visible positions
	refreshWorld                         // map + tile sets
	refreshLocations
)

const refreshAll = refreshCore | refreshWorld | refreshLocations

type resultKind uint8

const (
	resultRefresh resultKind = iota + 1
	resultTrail
	resultMove
)

// netResult carries a finished network call back into the loop. gen is the
// campaign generation at spawn time; results from an older generation are
// dropped unseen.
type netResult struct {
	kind resultKind
	gen  uint64

	flags   refreshFlags
	refresh *refreshPayload

	playerID string
	trail    []geo.Point

	err error
}

// refreshPayload holds whichever parts the fetch managed to get. Nil parts
// leave the current state untouched.
type refreshPayload struct {
	worldMap  *campaign.WorldMap
	tileSets  []tiles.Config
	roster    []campaign.RosterRow
	feed      *client.VisibleFeed
	locations []campaign.CampaignLocation
}

// startRefresh runs at most one refresh at a time. Triggers arriving while
// one is in flight are coalesced into a single follow-up carrying the union
// of their flags.
func (e *Engine) startRefresh(ctx context.Context, flags refreshFlags) {
	if e.campaignID == "" || flags == 0 {
		return
	}
	if e.refreshBusy {
		e.queuedFlags |= flags
		return
	}
	e.refreshBusy = true
	e.refreshes.Add(1)

	fctx, cancel := context.WithCancel(ctx)
	e.cancelFetch = cancel
	gen, id := e.gen, e.campaignID
	go e.fetch(fctx, gen, id, flags)
}

func (e *Engine) fetch(ctx context.Context, gen uint64, campaignID string, flags refreshFlags) {
	payload := &refreshPayload{}
	var firstErr error
	fail := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	if flags&refreshWorld != 0 {
		m, err := e.cfg.API.WorldMap(ctx, campaignID)
		if err != nil {
			fail(err)
		} else {
			payload.worldMap = m
		}
		ts, err := e.cfg.API.TileSets(ctx, campaignID)
		if err != nil {
			fail(err)
		} else {
			if ts == nil {
				ts = []tiles.Config{}
			}
			payload.tileSets = ts
		}
	}
	if flags&refreshCore != 0 {
		rows, err := e.cfg.API.Roster(ctx, campaignID)
		if err != nil {
			fail(err)
		} else {
			if rows == nil {
				rows = []campaign.RosterRow{}
			}
			payload.roster = rows
		}
		feed, err := e.cfg.API.VisiblePositions(ctx, campaignID, e.cfg.Tuning.Refresh.Radius)
		if err != nil {
			fail(err)
		} else {
			payload.feed = feed
		}
	}
	if flags&refreshLocations != 0 {
		locs, err := e.cfg.API.Locations(ctx, campaignID)
		if err != nil {
			fail(err)
		} else {
			if locs == nil {
				locs = []campaign.CampaignLocation{}
			}
			payload.locations = locs
		}
	}

	e.postResult(ctx, netResult{
		kind:    resultRefresh,
		gen:     gen,
		flags:   flags,
		refresh: payload,
		err:     firstErr,
	})
}

func (e *Engine) handleRefreshResult(ctx context.Context, res netResult) {
	e.refreshBusy = false
	e.cancelFetch = nil

	p := res.refresh
	if p.worldMap != nil {
		e.worldMap = p.worldMap
		e.viewExtent = geo.PadExtent(geo.BoundsToExtent(p.worldMap.Bounds), geo.DefaultPadRatio)
	}
	if p.tileSets != nil {
		e.tileConfigs = p.tileSets
		e.rebuildSource()
	}
	if p.roster != nil {
		e.roster = p.roster
	}
	if p.feed != nil {
		e.positions = p.feed.Positions
		if p.feed.ViewerRole != "" {
			e.feedRole = p.feed.ViewerRole
		}
	}
	if p.locations != nil {
		e.locations = p.locations
	}
	if p.roster != nil || p.feed != nil {
		e.viewer = viewerFromRoster(e.roster, e.feedRole, e.cfg.UserID)
		e.tokens = joinTokens(e.roster, e.positions, e.viewer)
		e.guardSelection()
		e.guardMovement()
		e.recordPositions()
	}

	if res.err != nil {
		e.lastErr = res.err.Error()
		if e.worldMap == nil {
			e.notice = "Couldn't load the campaign map"
		}
		if !client.IsTransient(res.err) {
			e.logger.Printf("refresh campaign=%s: %v", e.campaignID, res.err)
		}
	} else {
		e.lastErr = ""
	}
	if e.loading && (res.flags&refreshWorld != 0) {
		e.loading = false
	}
	if e.restored && res.err == nil && res.flags&refreshCore != 0 {
		e.restored = false
	}

	if e.queuedFlags != 0 {
		flags := e.queuedFlags
		e.queuedFlags = 0
		e.startRefresh(ctx, flags)
	}
	e.publish()
}

func (e *Engine) rebuildSource() {
	cfg, err := tiles.Pick(e.tileConfigs, e.sourceID)
	if err != nil {
		e.source = nil
		if e.worldMap != nil {
			e.notice = "No tile sets configured"
		}
		return
	}
	var bounds *geo.WorldBounds
	if e.worldMap != nil {
		bounds = e.worldMap.Bounds
	}
	src, err := tiles.Build(cfg, bounds)
	if err != nil {
		e.source = nil
		e.notice = "No tile sets configured"
		e.logger.Printf("tile source %s: %v", cfg.ID, err)
		return
	}
	e.source = src
	e.sourceID = src.Config.ID
}

// guardSelection drops a selection whose token left the visible set.
func (e *Engine) guardSelection() {
	if e.selectedID != "" && e.tokenByID(e.selectedID) == nil {
		e.selectedID = ""
	}
}

func (e *Engine) recordPositions() {
	if e.journal == nil || len(e.positions) == 0 {
		return
	}
	rows := make([]PositionRecord, 0, len(e.positions))
	for _, pos := range e.positions {
		rows = append(rows, PositionRecord{
			PlayerID: pos.PlayerID, X: pos.Coord.X, Y: pos.Coord.Y, LocatedAt: pos.LocatedAt,
		})
	}
	if err := e.journal.RecordPositions(e.campaignID, e.seq, rows); err != nil {
		e.logger.Printf("journal positions: %v", err)
	}
}

// joinTokens merges roster identity onto live positions. A position without
// a roster row still renders, under a generated name. Hidden tokens are
// kept only for elevated viewers and their owner.
func joinTokens(rows []campaign.RosterRow, positions []campaign.Position, viewer campaign.ViewerContext) []campaign.PlayerToken {
	byMembership := make(map[string]*campaign.RosterRow, len(rows))
	byCharacter := make(map[string]*campaign.RosterRow, len(rows))
	for i := range rows {
		r := &rows[i]
		if r.MembershipID != "" {
			byMembership[r.MembershipID] = r
		}
		if r.CharacterID != "" {
			byCharacter[r.CharacterID] = r
		}
	}

	out := make([]campaign.PlayerToken, 0, len(positions))
	for _, pos := range positions {
		row := byMembership[pos.PlayerID]
		if row == nil {
			row = byCharacter[pos.PlayerID]
		}
		var t campaign.PlayerToken
		if row == nil {
			t = campaign.PlayerToken{
				PlayerID:   pos.PlayerID,
				Name:       campaign.FallbackName(pos.PlayerID),
				Visibility: campaign.VisibilityVisible,
				RosterMiss: true,
			}
		} else {
			name := row.Name
			if name == "" {
				name = campaign.FallbackName(pos.PlayerID)
			}
			t = campaign.PlayerToken{
				PlayerID:       pos.PlayerID,
				UserID:         row.UserID,
				CharacterID:    row.CharacterID,
				Name:           name,
				Role:           row.Role,
				Visibility:     row.Visibility,
				HitPoints:      row.HitPoints,
				MaxHitPoints:   row.MaxHitPoints,
				Conditions:     append([]string(nil), row.Conditions...),
				CanViewHistory: row.CanViewHistory,
			}
			if t.Visibility == "" {
				t.Visibility = campaign.VisibilityVisible
			}
		}
		t.Coordinates = pos.Coord
		t.LastLocatedAt = pos.LocatedAt

		// The server already filters by viewer; this is the last line of
		// defense against a feed that leaks a hidden token.
		if t.Visibility == campaign.VisibilityHidden && !viewer.Elevated() && (viewer.UserID == "" || t.UserID != viewer.UserID) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// viewerFromRoster resolves the viewer's own roster row by user id. The feed
// role is a fallback for viewers outside the roster (site admins).
func viewerFromRoster(rows []campaign.RosterRow, feedRole campaign.MembershipRole, userID string) campaign.ViewerContext {
	v := campaign.ViewerContext{UserID: userID}
	role := feedRole
	if userID != "" {
		for i := range rows {
			if rows[i].UserID == userID {
				v.MembershipID = rows[i].MembershipID
				role = rows[i].Role
				break
			}
		}
	}
	switch role {
	case campaign.RoleAdmin:
		v.IsAdmin = true
	case campaign.RoleDM:
		v.IsDM = true
	case campaign.RoleCoDM:
		v.IsCoDM = true
	}
	return v
}
