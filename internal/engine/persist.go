package engine

import (
	"time"

	"questmap.app/internal/campaign"
	"questmap.app/internal/geo"
	"questmap.app/internal/persistence/snapshot"
	"questmap.app/internal/tiles"
)

func (e *Engine) emitSnapshot() {
	if e.snapshotSink == nil || e.campaignID == "" {
		return
	}
	state := snapshotFromEngine(e)
	select {
	case e.snapshotSink <- state:
	default:
		e.logger.Printf("snapshot sink full, dropping seq=%d", state.Header.Seq)
	}
}

func snapshotFromEngine(e *Engine) snapshot.EngineStateV1 {
	state := snapshot.EngineStateV1{
		Header: snapshot.Header{
			Version:       1,
			CampaignID:    e.campaignID,
			Seq:           e.seq,
			SavedAtUnixMs: time.Now().UnixMilli(),
		},
		SourceID:      e.sourceID,
		SelectedToken: e.selectedID,
		Viewer: snapshot.ViewerV1{
			UserID:       e.viewer.UserID,
			MembershipID: e.viewer.MembershipID,
			Admin:        e.viewer.IsAdmin,
			DM:           e.viewer.IsDM,
			CoDM:         e.viewer.IsCoDM,
		},
		Counters: snapshot.CountersV1{
			Refreshes:  e.refreshes.Load(),
			PushEvents: e.pushSeen.Load(),
			MovesOK:    e.movesOK.Load(),
			MovesFail:  e.movesFailed.Load(),
		},
	}
	if m := e.worldMap; m != nil {
		mv := &snapshot.MapV1{
			ID: m.ID, Name: m.Name,
			WidthPixels: m.WidthPixels, HeightPixels: m.HeightPixels,
			MetersPerPixel: m.MetersPerPixel,
		}
		if b := m.Bounds; b != nil {
			mv.HasBounds = true
			mv.North, mv.South, mv.East, mv.West = b.North, b.South, b.East, b.West
		}
		state.Map = mv
	}
	for _, cfg := range e.tileConfigs {
		state.TileSets = append(state.TileSets, snapshot.TileSetV1{
			ID: cfg.ID, Name: cfg.Name, BaseURL: cfg.BaseURL, Attribution: cfg.Attribution,
			MinZoom: cfg.MinZoom, MaxZoom: cfg.MaxZoom, TileSize: cfg.TileSize, WrapX: cfg.WrapX,
		})
	}
	for _, r := range e.roster {
		state.Roster = append(state.Roster, snapshot.RosterRowV1{
			MembershipID: r.MembershipID, CharacterID: r.CharacterID, UserID: r.UserID,
			Name: r.Name, Role: string(r.Role), Status: r.Status, Visibility: string(r.Visibility),
			HitPoints: r.HitPoints, MaxHitPoints: r.MaxHitPoints,
			Conditions: append([]string(nil), r.Conditions...), CanViewHistory: r.CanViewHistory,
			LastLocatedAtUnixMs: unixMs(r.LastLocatedAt),
		})
	}
	for _, pos := range e.positions {
		state.Positions = append(state.Positions, snapshot.PositionV1{
			PlayerID: pos.PlayerID, X: pos.Coord.X, Y: pos.Coord.Y,
			LocatedAtUnixMs: unixMs(pos.LocatedAt),
		})
	}
	for _, loc := range e.locations {
		state.Locations = append(state.Locations, snapshot.LocationV1{
			ID: loc.ID, Name: loc.Name, Kind: loc.Kind, Spawn: loc.Spawn,
			X: loc.Coord.X, Y: loc.Coord.Y,
		})
	}
	for pid, tv := range e.shownTrails {
		t := snapshot.TrailV1{PlayerID: pid, Hidden: tv.Hidden, FetchedAtUnixMs: unixMs(tv.FetchedAt)}
		for _, pt := range tv.Points {
			t.Points = append(t.Points, [2]float64{pt.X, pt.Y})
		}
		state.Trails = append(state.Trails, t)
	}
	return state
}

func applySnapshot(e *Engine, state snapshot.EngineStateV1) {
	if m := state.Map; m != nil {
		wm := &campaign.WorldMap{
			ID: m.ID, CampaignID: state.Header.CampaignID, Name: m.Name,
			WidthPixels: m.WidthPixels, HeightPixels: m.HeightPixels,
			MetersPerPixel: m.MetersPerPixel, Active: true,
		}
		if m.HasBounds {
			wm.Bounds = &geo.WorldBounds{North: m.North, South: m.South, East: m.East, West: m.West}
		}
		e.worldMap = wm
		e.viewExtent = geo.PadExtent(geo.BoundsToExtent(wm.Bounds), geo.DefaultPadRatio)
	}
	e.tileConfigs = nil
	for _, ts := range state.TileSets {
		e.tileConfigs = append(e.tileConfigs, tiles.Config{
			ID: ts.ID, Name: ts.Name, BaseURL: ts.BaseURL, Attribution: ts.Attribution,
			MinZoom: ts.MinZoom, MaxZoom: ts.MaxZoom, TileSize: ts.TileSize, WrapX: ts.WrapX,
		})
	}
	e.sourceID = state.SourceID
	if len(e.tileConfigs) > 0 {
		e.rebuildSource()
	}

	e.roster = nil
	for _, r := range state.Roster {
		e.roster = append(e.roster, campaign.RosterRow{
			MembershipID: r.MembershipID, CharacterID: r.CharacterID, UserID: r.UserID,
			Name: r.Name, Role: campaign.MembershipRole(r.Role), Status: r.Status,
			Visibility: campaign.VisibilityState(r.Visibility),
			HitPoints: r.HitPoints, MaxHitPoints: r.MaxHitPoints,
			Conditions: append([]string(nil), r.Conditions...), CanViewHistory: r.CanViewHistory,
			LastLocatedAt: msTime(r.LastLocatedAtUnixMs),
		})
	}
	e.positions = nil
	for _, pos := range state.Positions {
		e.positions = append(e.positions, campaign.Position{
			PlayerID:  pos.PlayerID,
			Coord:     geo.Point{X: pos.X, Y: pos.Y},
			LocatedAt: msTime(pos.LocatedAtUnixMs),
		})
	}
	e.locations = nil
	for _, loc := range state.Locations {
		e.locations = append(e.locations, campaign.CampaignLocation{
			ID: loc.ID, Name: loc.Name, Kind: loc.Kind, Spawn: loc.Spawn,
			Coord: geo.Point{X: loc.X, Y: loc.Y},
		})
	}

	e.viewer = campaign.ViewerContext{
		UserID:       state.Viewer.UserID,
		MembershipID: state.Viewer.MembershipID,
		IsAdmin:      state.Viewer.Admin,
		IsDM:         state.Viewer.DM,
		IsCoDM:       state.Viewer.CoDM,
	}
	if e.cfg.UserID != "" {
		e.viewer.UserID = e.cfg.UserID
	}
	e.tokens = joinTokens(e.roster, e.positions, e.viewer)
	e.selectedID = state.SelectedToken
	e.guardSelection()

	e.shownTrails = map[string]*TrailView{}
	for _, t := range state.Trails {
		tv := &TrailView{PlayerID: t.PlayerID, Hidden: t.Hidden, FetchedAt: msTime(t.FetchedAtUnixMs)}
		for _, pt := range t.Points {
			tv.Points = append(tv.Points, geo.Point{X: pt[0], Y: pt[1]})
		}
		e.shownTrails[t.PlayerID] = tv
	}
}

func unixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func msTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
