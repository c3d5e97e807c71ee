package campaignsim

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"questmap.app/internal/campaign"
	"questmap.app/internal/client"
	"questmap.app/internal/geo"
	"questmap.app/internal/protocol"
	"questmap.app/internal/push"
)

func testWorld() *Campaign {
	now := time.Now().UTC()
	return &Campaign{
		ID:   "c-test",
		Name: "Test Marches",
		Map: MapDef{
			ID: "m-test", Name: "Test Valley",
			WidthPixels: 1000, HeightPixels: 1000, MetersPerPixel: 2,
			North: 0, South: -1000, East: 1000, West: 0,
		},
		TileSets: []TileSetDef{
			{ID: "ts1", Name: "Base", URLTemplate: "/t/{z}/{x}/{y}.png", MinZoom: 1, MaxZoom: 5, TileSize: 256},
		},
		Members: []*Member{
			{
				MembershipID: "mem-dm", UserID: "u-dm", Name: "Vesper",
				Role: campaign.RoleDM, Visibility: campaign.VisibilityVisible,
				HitPoints: 40, MaxHitPoints: 40, ShareTrail: true,
				Placed: true, X: 100, Y: -100, LocatedAt: now,
				Trail: [][2]float64{{80, -80}, {100, -100}},
			},
			{
				MembershipID: "mem-p1", UserID: "u-p1", Name: "Bram",
				Role: campaign.RolePlayer, Visibility: campaign.VisibilityVisible,
				HitPoints: 12, MaxHitPoints: 18, ShareTrail: true,
				Placed: true, X: 200, Y: -200, LocatedAt: now,
				Trail: [][2]float64{{150, -150}, {200, -200}},
			},
			{
				MembershipID: "mem-p2", UserID: "u-p2", Name: "Nyx",
				Role: campaign.RolePlayer, Visibility: campaign.VisibilityStealthed,
				HitPoints: 9, MaxHitPoints: 14, ShareTrail: false,
				Placed: true, X: 230, Y: -220, LocatedAt: now,
				Trail: [][2]float64{{260, -240}, {230, -220}},
			},
			{
				MembershipID: "mem-p3", UserID: "u-p3", Name: "Wren",
				Role: campaign.RolePlayer, Visibility: campaign.VisibilityHidden,
				HitPoints: 11, MaxHitPoints: 11, ShareTrail: true,
				Placed: true, X: 210, Y: -210, LocatedAt: now,
			},
			{
				MembershipID: "mem-p4", UserID: "u-p4", Name: "Tam",
				Role: campaign.RolePlayer, Visibility: campaign.VisibilityVisible,
				HitPoints: 20, MaxHitPoints: 20, ShareTrail: true,
				Placed: true, X: 900, Y: -900, LocatedAt: now,
			},
			{
				MembershipID: "mem-p5", UserID: "u-p5", Name: "Eli",
				Role: campaign.RolePlayer, Visibility: campaign.VisibilityVisible,
				HitPoints: 10, MaxHitPoints: 10,
			},
		},
		Locations: []LocationDef{
			{ID: "loc-spawn", Name: "North Gate", Kind: "spawn", Spawn: true, X: 50, Y: -50},
			{ID: "loc-poi", Name: "Old Mill", Kind: "poi", X: 400, Y: -400},
		},
	}
}

func startSim(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New(log.New(io.Discard, "", 0))
	s.AddCampaign(testWorld())
	s.AddToken("tok-dm", "u-dm")
	s.AddToken("tok-p1", "u-p1")
	s.AddToken("tok-p2", "u-p2")
	s.AddToken("tok-out", "u-outsider")
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func apiClient(t *testing.T, ts *httptest.Server, token string) *client.Client {
	t.Helper()
	c, err := client.New(ts.URL, token, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return c
}

func TestMapStringifiedBoundsNormalize(t *testing.T) {
	_, ts := startSim(t)
	c := apiClient(t, ts, "tok-dm")

	wm, err := c.WorldMap(context.Background(), "c-test")
	if err != nil {
		t.Fatalf("WorldMap: %v", err)
	}
	if wm.ID != "m-test" || wm.Name != "Test Valley" {
		t.Fatalf("unexpected map identity: %+v", wm)
	}
	if wm.WidthPixels != 1000 || wm.HeightPixels != 1000 {
		t.Fatalf("unexpected dimensions: %dx%d", wm.WidthPixels, wm.HeightPixels)
	}
	if wm.MetersPerPixel != 2 {
		t.Fatalf("meters per pixel = %v", wm.MetersPerPixel)
	}
	if wm.Bounds == nil {
		t.Fatalf("bounds not parsed from stringified JSON")
	}
	if wm.Bounds.North != 0 || wm.Bounds.South != -1000 || wm.Bounds.East != 1000 || wm.Bounds.West != 0 {
		t.Fatalf("bounds = %+v", wm.Bounds)
	}
}

func TestTileSetsAndLocationsNormalize(t *testing.T) {
	_, ts := startSim(t)
	c := apiClient(t, ts, "tok-p1")

	sets, err := c.TileSets(context.Background(), "c-test")
	if err != nil {
		t.Fatalf("TileSets: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("tileset count = %d", len(sets))
	}
	if sets[0].ID != "ts1" || sets[0].BaseURL != "/t/{z}/{x}/{y}.png" {
		t.Fatalf("tileset = %+v", sets[0])
	}
	// min_zoom is snake, maxZoom camel; both must land.
	if sets[0].MinZoom != 1 || sets[0].MaxZoom != 5 || sets[0].TileSize != 256 {
		t.Fatalf("tileset zoom fields = %+v", sets[0])
	}

	locs, err := c.Locations(context.Background(), "c-test")
	if err != nil {
		t.Fatalf("Locations: %v", err)
	}
	if len(locs) != 2 {
		t.Fatalf("location count = %d", len(locs))
	}
	var spawn, poi bool
	for _, loc := range locs {
		switch loc.ID {
		case "loc-spawn":
			spawn = loc.Spawn && loc.Coord.X == 50 && loc.Coord.Y == -50
		case "loc-poi":
			poi = !loc.Spawn
		}
	}
	if !spawn || !poi {
		t.Fatalf("locations not normalized: %+v", locs)
	}
}

func TestRosterNormalizesMixedKeys(t *testing.T) {
	_, ts := startSim(t)
	c := apiClient(t, ts, "tok-dm")

	rows, err := c.Roster(context.Background(), "c-test")
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	if len(rows) != 6 {
		t.Fatalf("roster size = %d", len(rows))
	}
	byID := map[string]campaign.RosterRow{}
	for _, r := range rows {
		byID[r.MembershipID] = r
	}
	bram := byID["mem-p1"]
	if bram.Name != "Bram" || bram.Role != campaign.RolePlayer {
		t.Fatalf("bram = %+v", bram)
	}
	if bram.HitPoints != 12 || bram.MaxHitPoints != 18 || !bram.CanViewHistory {
		t.Fatalf("bram vitals = %+v", bram)
	}
	if byID["mem-p2"].Visibility != campaign.VisibilityStealthed {
		t.Fatalf("nyx visibility = %v", byID["mem-p2"].Visibility)
	}
	if byID["mem-dm"].Role != campaign.RoleDM {
		t.Fatalf("vesper role = %v", byID["mem-dm"].Role)
	}
	if byID["mem-p5"].LastLocatedAt != (time.Time{}) {
		t.Fatalf("unplaced member has located_at")
	}
}

func TestVisibleFeedRadiusAndVisibility(t *testing.T) {
	_, ts := startSim(t)

	dm := apiClient(t, ts, "tok-dm")
	feed, err := dm.VisiblePositions(context.Background(), "c-test", 0)
	if err != nil {
		t.Fatalf("dm feed: %v", err)
	}
	if feed.ViewerRole != campaign.RoleDM {
		t.Fatalf("viewer role = %v", feed.ViewerRole)
	}
	// Everyone placed, hidden included; the unplaced member never appears.
	if len(feed.Positions) != 5 {
		t.Fatalf("dm sees %d tokens, want 5", len(feed.Positions))
	}

	p1 := apiClient(t, ts, "tok-p1")
	feed, err = p1.VisiblePositions(context.Background(), "c-test", 50)
	if err != nil {
		t.Fatalf("p1 feed: %v", err)
	}
	if feed.Radius != 50 {
		t.Fatalf("echoed radius = %v", feed.Radius)
	}
	got := map[string]geo.Point{}
	for _, p := range feed.Positions {
		got[p.PlayerID] = p.Coord
	}
	// Self plus the stealthed token 36px away. Hidden, far, and unplaced
	// tokens stay out.
	if len(got) != 2 {
		t.Fatalf("p1 sees %v, want self and mem-p2", got)
	}
	if _, ok := got["mem-p1"]; !ok {
		t.Fatalf("own token missing: %v", got)
	}
	if p, ok := got["mem-p2"]; !ok || p.X != 230 || p.Y != -220 {
		t.Fatalf("stealthed neighbor missing or misplaced: %v", got)
	}

	// No radius named: the server applies its own cap, wide enough here to
	// reach the far token but never the hidden one.
	feed, err = p1.VisiblePositions(context.Background(), "c-test", 0)
	if err != nil {
		t.Fatalf("p1 default feed: %v", err)
	}
	if len(feed.Positions) != 4 {
		t.Fatalf("p1 default sees %d tokens, want 4", len(feed.Positions))
	}
	for _, p := range feed.Positions {
		if p.PlayerID == "mem-p3" {
			t.Fatalf("hidden token leaked to player feed")
		}
	}
}

func TestTrailPolicy(t *testing.T) {
	_, ts := startSim(t)
	ctx := context.Background()

	// Own trail is always visible, untrimmed.
	p2 := apiClient(t, ts, "tok-p2")
	pts, err := p2.Trail(ctx, "c-test", "mem-p2", 50)
	if err != nil {
		t.Fatalf("own trail: %v", err)
	}
	if len(pts) != 2 {
		t.Fatalf("own trail points = %d", len(pts))
	}

	// Nyx shares nothing; another player gets the policy refusal.
	p1 := apiClient(t, ts, "tok-p1")
	if _, err := p1.Trail(ctx, "c-test", "mem-p2", 500); !errors.Is(err, client.ErrPolicyHidden) {
		t.Fatalf("expected ErrPolicyHidden, got %v", err)
	}

	// The DM sees it regardless.
	dm := apiClient(t, ts, "tok-dm")
	pts, err = dm.Trail(ctx, "c-test", "mem-p2", 0)
	if err != nil {
		t.Fatalf("dm trail: %v", err)
	}
	if len(pts) != 2 {
		t.Fatalf("dm trail points = %d", len(pts))
	}

	// A shared trail is radius-clipped for other players.
	pts, err = p1.Trail(ctx, "c-test", "mem-dm", 200)
	if err != nil {
		t.Fatalf("shared trail: %v", err)
	}
	if len(pts) != 2 {
		t.Fatalf("shared trail within 200px = %d points", len(pts))
	}
	pts, err = p1.Trail(ctx, "c-test", "mem-dm", 50)
	if err != nil {
		t.Fatalf("shared trail, tight radius: %v", err)
	}
	if len(pts) != 0 {
		t.Fatalf("points beyond radius leaked: %v", pts)
	}
}

type errEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func rawMove(t *testing.T, base, token, campaignID, playerID, body string) (int, errEnvelope) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, base+"/campaigns/"+campaignID+"/players/"+playerID+"/move", strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var env errEnvelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env
}

func TestMoveValidationLadder(t *testing.T) {
	_, ts := startSim(t)
	walk := `{"target":{"x":220,"y":-210},"mode":"walk"}`

	cases := []struct {
		name       string
		token      string
		campaignID string
		playerID   string
		body       string
		status     int
		code       string
	}{
		{"unknown campaign", "tok-p1", "nope", "mem-p1", walk, http.StatusNotFound, protocol.ErrCampaignNotFound},
		{"unknown token", "tok-bogus", "c-test", "mem-p1", walk, http.StatusUnauthorized, protocol.ErrNoPermission},
		{"non-member", "tok-out", "c-test", "mem-p1", walk, http.StatusForbidden, protocol.ErrCampaignDenied},
		{"unknown target", "tok-p1", "c-test", "mem-ghost", walk, http.StatusNotFound, protocol.ErrNotFound},
		{"not your token", "tok-p1", "c-test", "mem-p2", walk, http.StatusForbidden, protocol.ErrNoPermission},
		{"malformed body", "tok-p1", "c-test", "mem-p1", `{`, http.StatusBadRequest, protocol.ErrBadRequest},
		{"unknown mode", "tok-p1", "c-test", "mem-p1", `{"target":{"x":10,"y":-10},"mode":"burrow"}`, http.StatusUnprocessableEntity, protocol.ErrBadRequest},
		{"privileged mode", "tok-p1", "c-test", "mem-p1", `{"target":{"x":10,"y":-10},"mode":"teleport"}`, http.StatusForbidden, protocol.ErrNoPermission},
		{"no destination", "tok-p1", "c-test", "mem-p1", `{"mode":"walk"}`, http.StatusUnprocessableEntity, protocol.ErrBadRequest},
		{"two destinations", "tok-p1", "c-test", "mem-p1", `{"target":{"x":10,"y":-10},"spawnId":"loc-spawn","mode":"walk"}`, http.StatusUnprocessableEntity, protocol.ErrBadRequest},
		{"unknown spawn", "tok-p1", "c-test", "mem-p1", `{"spawnId":"loc-ghost","mode":"walk"}`, http.StatusUnprocessableEntity, protocol.ErrBadRequest},
		{"poi as spawn", "tok-p1", "c-test", "mem-p1", `{"spawnId":"loc-poi","mode":"walk"}`, http.StatusUnprocessableEntity, protocol.ErrBadRequest},
		{"out of bounds", "tok-p1", "c-test", "mem-p1", `{"target":{"x":2000,"y":-10},"mode":"walk"}`, http.StatusUnprocessableEntity, protocol.ErrBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, env := rawMove(t, ts.URL, tc.token, tc.campaignID, tc.playerID, tc.body)
			if status != tc.status || env.Error.Code != tc.code {
				t.Fatalf("status=%d code=%q, want %d %q (%s)", status, env.Error.Code, tc.status, tc.code, env.Error.Message)
			}
		})
	}
}

func TestMoveAppliesAndExtendsTrail(t *testing.T) {
	s, ts := startSim(t)
	c := apiClient(t, ts, "tok-p1")

	err := c.Move(context.Background(), "c-test", "mem-p1", campaign.MovementRequest{
		Target: &geo.Point{X: 220, Y: -210},
		Mode:   campaign.ModeWalk,
	})
	if err != nil {
		t.Fatalf("Move: %v", err)
	}

	s.mu.Lock()
	m := s.campaigns["c-test"].member("mem-p1")
	x, y, trailLen := m.X, m.Y, len(m.Trail)
	s.mu.Unlock()
	if x != 220 || y != -210 {
		t.Fatalf("token at (%v,%v)", x, y)
	}
	if trailLen != 3 {
		t.Fatalf("trail length = %d, want 3", trailLen)
	}

	// The DM may drive someone else's token to a spawn point.
	dm := apiClient(t, ts, "tok-dm")
	err = dm.Move(context.Background(), "c-test", "mem-p1", campaign.MovementRequest{
		SpawnID: "loc-spawn",
		Mode:    campaign.ModeGM,
		Reason:  "session reset",
	})
	if err != nil {
		t.Fatalf("dm spawn move: %v", err)
	}
	s.mu.Lock()
	x, y = m.X, m.Y
	s.mu.Unlock()
	if x != 50 || y != -50 {
		t.Fatalf("token at (%v,%v) after spawn move", x, y)
	}
}

func wsBase(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/push"
}

func dialPush(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial push: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func subscribe(t *testing.T, conn *websocket.Conn, campaignID string, resumeSeq uint64) []byte {
	t.Helper()
	sub := protocol.SubscribeMsg{
		Type:            protocol.TypeSubscribe,
		ProtocolVersion: protocol.Version,
		CampaignID:      campaignID,
		ClientID:        "test-client",
		ResumeSeq:       resumeSeq,
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read handshake reply: %v", err)
	}
	return raw
}

func readEvent(t *testing.T, conn *websocket.Conn) protocol.EventMsg {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg protocol.EventMsg
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return msg
}

func TestHubBroadcastsMovesAndSpawns(t *testing.T) {
	s, ts := startSim(t)
	conn := dialPush(t, wsBase(ts))

	raw := subscribe(t, conn, "c-test", 0)
	var ack protocol.SubscribedMsg
	if err := json.Unmarshal(raw, &ack); err != nil || ack.Type != protocol.TypeSubscribed {
		t.Fatalf("handshake reply = %s (err %v)", raw, err)
	}
	if ack.Seq != 0 {
		t.Fatalf("fresh campaign seq = %d", ack.Seq)
	}

	if !s.MovePlayer("c-test", "mem-p1", 300, -300, false) {
		t.Fatalf("MovePlayer refused")
	}
	ev := readEvent(t, conn)
	if ev.Seq != 1 || ev.Event.Name != protocol.EventPlayerMoved || ev.Event.PlayerID != "mem-p1" {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Event.CampaignID != "c-test" {
		t.Fatalf("event campaign = %q", ev.Event.CampaignID)
	}

	if !s.TouchSpawn("c-test", "loc-spawn", false) {
		t.Fatalf("TouchSpawn refused")
	}
	ev = readEvent(t, conn)
	if ev.Seq != 2 || ev.Event.Name != protocol.EventSpawnUpdated || ev.Event.SpawnID != "loc-spawn" {
		t.Fatalf("event = %+v", ev)
	}

	if !s.MovePlayer("c-test", "mem-p1", 50, -50, true) {
		t.Fatalf("teleport refused")
	}
	ev = readEvent(t, conn)
	if ev.Event.Name != protocol.EventPlayerTeleported {
		t.Fatalf("event = %+v", ev)
	}
}

func TestHubResumeReplaysRing(t *testing.T) {
	s, ts := startSim(t)
	for i := 0; i < 3; i++ {
		s.MovePlayer("c-test", "mem-p1", float64(300+i), -300, false)
	}

	conn := dialPush(t, wsBase(ts))
	raw := subscribe(t, conn, "c-test", 1)
	var ack protocol.SubscribedMsg
	if err := json.Unmarshal(raw, &ack); err != nil || ack.Seq != 3 {
		t.Fatalf("handshake reply = %s (err %v)", raw, err)
	}
	ev := readEvent(t, conn)
	if ev.Seq != 2 {
		t.Fatalf("first replayed seq = %d", ev.Seq)
	}
	ev = readEvent(t, conn)
	if ev.Seq != 3 {
		t.Fatalf("second replayed seq = %d", ev.Seq)
	}
}

func TestHubRejectsUnknownCampaign(t *testing.T) {
	_, ts := startSim(t)
	conn := dialPush(t, wsBase(ts))

	raw := subscribe(t, conn, "nowhere", 0)
	var em protocol.ErrorMsg
	if err := json.Unmarshal(raw, &em); err != nil {
		t.Fatalf("decode error frame: %v", err)
	}
	if em.Type != protocol.TypeError || em.Code != protocol.ErrCampaignNotFound {
		t.Fatalf("error frame = %+v", em)
	}
}

func TestHubPingPong(t *testing.T) {
	_, ts := startSim(t)
	conn := dialPush(t, wsBase(ts))
	subscribe(t, conn, "c-test", 0)

	if err := conn.WriteJSON(protocol.PingMsg{Type: protocol.TypePing, T: 42}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var pong protocol.PongMsg
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if pong.Type != protocol.TypePong || pong.T != 42 {
		t.Fatalf("pong = %+v", pong)
	}
}

func TestConsumerSpeaksHubDialect(t *testing.T) {
	s, ts := startSim(t)
	schemas, err := protocol.LoadSchemas(filepath.Join("..", "..", "schemas"))
	if err != nil {
		t.Fatalf("load schemas: %v", err)
	}
	consumer := push.NewConsumer(push.Config{
		URL:        wsBase(ts),
		CampaignID: "c-test",
		Schemas:    schemas,
		Logger:     log.New(io.Discard, "", 0),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consumer.Run(ctx)

	select {
	case ev := <-consumer.Conns():
		if ev.State != push.StateConnected {
			t.Fatalf("conn event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("consumer never connected")
	}

	s.MovePlayer("c-test", "mem-p4", 880, -880, false)
	select {
	case ev := <-consumer.Events():
		if ev.Name != protocol.EventPlayerMoved || ev.PlayerID != "mem-p4" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("consumer never saw the event")
	}
	if consumer.InvalidPayloads() != 0 {
		t.Fatalf("frames failed schema validation")
	}
}

func TestSeedDemoServes(t *testing.T) {
	s := New(log.New(io.Discard, "", 0))
	id := SeedDemo(s)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	gm := apiClient(t, ts, "tok-gm")
	wm, err := gm.WorldMap(context.Background(), id)
	if err != nil {
		t.Fatalf("WorldMap: %v", err)
	}
	if wm.Name != "Greenhollow Valley" || wm.Bounds == nil {
		t.Fatalf("demo map = %+v", wm)
	}

	rows, err := gm.Roster(context.Background(), id)
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("demo roster size = %d", len(rows))
	}

	feed, err := gm.VisiblePositions(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(feed.Positions) != 4 {
		t.Fatalf("demo placed tokens = %d", len(feed.Positions))
	}

	// Sable shares nothing with the table.
	aldric := apiClient(t, ts, "tok-aldric")
	if _, err := aldric.Trail(context.Background(), id, "mem-sable", 0); !errors.Is(err, client.ErrPolicyHidden) {
		t.Fatalf("expected ErrPolicyHidden, got %v", err)
	}
	pts, err := aldric.Trail(context.Background(), id, "mem-aldric", 0)
	if err != nil {
		t.Fatalf("own trail: %v", err)
	}
	if len(pts) != 4 {
		t.Fatalf("aldric trail points = %d", len(pts))
	}
}
