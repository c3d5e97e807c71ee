// Package engine owns the live campaign map state. A single loop goroutine
// holds all mutable state; the UI and sidecars talk to it through channels
// and receive immutable StateFrames back.
package engine

import (
	"context"
	"errors"
	"log"
	"os"
	"sync/atomic"
	"time"

	"questmap.app/internal/campaign"
	"questmap.app/internal/client"
	"questmap.app/internal/geo"
	"questmap.app/internal/persistence/snapshot"
	"questmap.app/internal/protocol"
	"questmap.app/internal/push"
	"questmap.app/internal/tiles"
	"questmap.app/internal/tuning"
)

// CampaignAPI is the slice of the campaign service the engine consumes.
// Implemented by *client.Client.
type CampaignAPI interface {
	WorldMap(ctx context.Context, campaignID string) (*campaign.WorldMap, error)
	TileSets(ctx context.Context, campaignID string) ([]tiles.Config, error)
	Locations(ctx context.Context, campaignID string) ([]campaign.CampaignLocation, error)
	Roster(ctx context.Context, campaignID string) ([]campaign.RosterRow, error)
	VisiblePositions(ctx context.Context, campaignID string, radius float64) (*client.VisibleFeed, error)
	Trail(ctx context.Context, campaignID, playerID string, radius float64) ([]geo.Point, error)
	Move(ctx context.Context, campaignID, playerID string, req campaign.MovementRequest) error
}

type Config struct {
	API    CampaignAPI
	Tuning tuning.Tuning

	// UserID identifies the viewer; roles are derived from the roster.
	UserID string

	// Push channels, usually from push.Consumer. Either may be nil.
	Events <-chan protocol.PushEvent
	Conns  <-chan push.ConnEvent

	Logger *log.Logger
}

var ErrStopped = errors.New("engine: stopped")

type cmdKind uint8

const (
	cmdLoadCampaign cmdKind = iota + 1
	cmdSelectToken
	cmdClearSelection
	cmdArmMove
	cmdMapClick
	cmdClickLocation
	cmdPickMode
	cmdSetReason
	cmdConfirmMove
	cmdCancelMove
	cmdShowTrail
	cmdHideTrail
	cmdPickImagery
	cmdRefresh
)

type command struct {
	kind       cmdKind
	campaignID string
	tokenID    string
	playerID   string
	locationID string
	imageryID  string
	point      geo.Point
	mode       campaign.MovementMode
	reason     string
}

// Engine is the single-threaded owner of live map state.
// All fields below the channel block must be accessed only from the Run
// loop goroutine.
type Engine struct {
	cfg    Config
	logger *log.Logger

	cmds     chan command
	results  chan netResult
	stateReq chan chan *StateFrame
	subAdd   chan chan *StateFrame
	subDel   chan chan *StateFrame
	stop     chan struct{}

	trails *trailCache

	journal      Journal
	snapshotSink chan<- snapshot.EngineStateV1

	// Counters, written by the loop, read by Metrics.
	frames       atomic.Uint64
	refreshes    atomic.Uint64
	staleDropped atomic.Uint64
	pushSeen     atomic.Uint64
	movesOK      atomic.Uint64
	movesFailed  atomic.Uint64
	trailFetches atomic.Uint64
	trailHits    atomic.Uint64
	frameSeq     atomic.Uint64

	// Loop-owned state.
	gen        uint64
	campaignID string
	loading    bool
	restored   bool
	seq        uint64

	worldMap    *campaign.WorldMap
	tileConfigs []tiles.Config
	sourceID    string
	source      *tiles.Source
	viewExtent  geo.Extent

	roster    []campaign.RosterRow
	positions []campaign.Position
	feedRole  campaign.MembershipRole
	viewer    campaign.ViewerContext
	tokens    []campaign.PlayerToken
	locations []campaign.CampaignLocation

	selectedID  string
	move        MoveView
	pendingMove *MoveRecord
	conn        ConnView
	notice      string
	lastErr     string

	shownTrails  map[string]*TrailView
	trailBusy    map[string]bool
	trailCancels map[string]context.CancelFunc

	refreshBusy bool
	queuedFlags refreshFlags
	cancelFetch context.CancelFunc
	cancelMove  context.CancelFunc

	subscribers map[chan *StateFrame]struct{}
	frame       *StateFrame
}

func New(cfg Config) (*Engine, error) {
	if cfg.API == nil {
		return nil, errors.New("engine: nil API")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lmicroseconds)
	}
	trails, err := newTrailCache(cfg.Tuning.TrailTTL())
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:    cfg,
		logger: logger,

		cmds:     make(chan command, 256),
		results:  make(chan netResult, 64),
		stateReq: make(chan chan *StateFrame, 8),
		subAdd:   make(chan chan *StateFrame, 8),
		subDel:   make(chan chan *StateFrame, 8),
		stop:     make(chan struct{}),

		trails: trails,

		move:         MoveView{Phase: PhaseIdle},
		shownTrails:  map[string]*TrailView{},
		trailBusy:    map[string]bool{},
		trailCancels: map[string]context.CancelFunc{},
		subscribers:  map[chan *StateFrame]struct{}{},
	}
	return e, nil
}

// SetJournal must be called before Run.
func (e *Engine) SetJournal(j Journal) { e.journal = j }

// SetSnapshotSink must be called before Run. Snapshot writing happens
// off-thread; sends never block the loop.
func (e *Engine) SetSnapshotSink(ch chan<- snapshot.EngineStateV1) { e.snapshotSink = ch }

func (e *Engine) Stop() { close(e.stop) }

// Resume seeds the engine from a saved snapshot before Run. The state is
// treated as stale: the first refresh after LoadCampaign replaces it, but
// the map renders immediately.
func (e *Engine) Resume(state snapshot.EngineStateV1) {
	e.campaignID = state.Header.CampaignID
	e.seq = state.Header.Seq
	e.restored = true
	applySnapshot(e, state)
}

func (e *Engine) Run(ctx context.Context) error {
	var pollC, snapC <-chan time.Time
	if d := e.cfg.Tuning.PollInterval(); d > 0 {
		t := time.NewTicker(d)
		defer t.Stop()
		pollC = t.C
	}
	if d := e.cfg.Tuning.SnapshotEvery(); d > 0 && e.snapshotSink != nil {
		t := time.NewTicker(d)
		defer t.Stop()
		snapC = t.C
	}

	events := e.cfg.Events
	conns := e.cfg.Conns

	// A campaign resumed from snapshot still needs a refresh pass.
	if e.campaignID != "" {
		e.loading = false
		e.startRefresh(ctx, refreshAll)
		e.publish()
	}

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return ctx.Err()
		case <-e.stop:
			e.shutdown()
			return nil
		case cmd := <-e.cmds:
			e.handleCommand(ctx, cmd)
		case res := <-e.results:
			e.handleResult(ctx, res)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			e.handlePush(ctx, ev)
		case cev, ok := <-conns:
			if !ok {
				conns = nil
				continue
			}
			e.handleConn(ctx, cev)
		case ch := <-e.subAdd:
			e.subscribers[ch] = struct{}{}
			if e.frame != nil {
				sendLatestFrame(ch, e.frame)
			}
		case ch := <-e.subDel:
			delete(e.subscribers, ch)
		case resp := <-e.stateReq:
			if e.frame == nil {
				e.seq++
				e.frame = e.buildFrame()
			}
			resp <- e.frame
		case <-pollC:
			e.startRefresh(ctx, refreshCore)
		case <-snapC:
			e.emitSnapshot()
		}
	}
}

func (e *Engine) shutdown() {
	if e.cancelFetch != nil {
		e.cancelFetch()
	}
	if e.cancelMove != nil {
		e.cancelMove()
	}
	for _, cancel := range e.trailCancels {
		cancel()
	}
	e.emitSnapshot()
	e.trails.close()
}

// Subscribe returns a frame channel plus its cancel. Slow consumers only
// ever lose intermediate frames, never the latest one.
func (e *Engine) Subscribe() (<-chan *StateFrame, func()) {
	ch := make(chan *StateFrame, 1)
	select {
	case e.subAdd <- ch:
	case <-e.stop:
	}
	cancel := func() {
		select {
		case e.subDel <- ch:
		case <-e.stop:
		}
	}
	return ch, cancel
}

// State returns the current frame via the loop, so it is always consistent.
func (e *Engine) State(ctx context.Context) (*StateFrame, error) {
	resp := make(chan *StateFrame, 1)
	select {
	case e.stateReq <- resp:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.stop:
		return nil, ErrStopped
	}
	select {
	case f := <-resp:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.stop:
		return nil, ErrStopped
	}
}

func (e *Engine) LoadCampaign(id string) { e.post(command{kind: cmdLoadCampaign, campaignID: id}) }
func (e *Engine) SelectToken(id string)  { e.post(command{kind: cmdSelectToken, tokenID: id}) }
func (e *Engine) ClearSelection()        { e.post(command{kind: cmdClearSelection}) }
func (e *Engine) ArmMove(tokenID string) { e.post(command{kind: cmdArmMove, tokenID: tokenID}) }
func (e *Engine) MapClick(pt geo.Point)  { e.post(command{kind: cmdMapClick, point: pt}) }

func (e *Engine) ClickLocation(id string) { e.post(command{kind: cmdClickLocation, locationID: id}) }

func (e *Engine) PickMode(m campaign.MovementMode) { e.post(command{kind: cmdPickMode, mode: m}) }

func (e *Engine) SetReason(reason string) { e.post(command{kind: cmdSetReason, reason: reason}) }
func (e *Engine) ConfirmMove()            { e.post(command{kind: cmdConfirmMove}) }
func (e *Engine) CancelMove()             { e.post(command{kind: cmdCancelMove}) }

func (e *Engine) ShowTrail(playerID string) { e.post(command{kind: cmdShowTrail, playerID: playerID}) }
func (e *Engine) HideTrail(playerID string) { e.post(command{kind: cmdHideTrail, playerID: playerID}) }

func (e *Engine) PickImagery(id string) { e.post(command{kind: cmdPickImagery, imageryID: id}) }
func (e *Engine) Refresh()              { e.post(command{kind: cmdRefresh}) }

func (e *Engine) post(c command) {
	select {
	case e.cmds <- c:
	case <-e.stop:
	}
}

func (e *Engine) handleCommand(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdLoadCampaign:
		e.handleLoadCampaign(ctx, cmd.campaignID)
	case cmdSelectToken:
		e.handleSelectToken(cmd.tokenID)
	case cmdClearSelection:
		if e.selectedID != "" {
			e.selectedID = ""
			e.publish()
		}
	case cmdArmMove:
		e.handleArmMove(cmd.tokenID)
	case cmdMapClick:
		e.handleMapClick(cmd.point)
	case cmdClickLocation:
		e.handleClickLocation(cmd.locationID)
	case cmdPickMode:
		e.handlePickMode(cmd.mode)
	case cmdSetReason:
		e.handleSetReason(cmd.reason)
	case cmdConfirmMove:
		e.handleConfirmMove(ctx)
	case cmdCancelMove:
		e.handleCancelMove()
	case cmdShowTrail:
		e.handleShowTrail(ctx, cmd.playerID)
	case cmdHideTrail:
		e.handleHideTrail(cmd.playerID)
	case cmdPickImagery:
		e.handlePickImagery(cmd.imageryID)
	case cmdRefresh:
		e.startRefresh(ctx, refreshAll)
	default:
		e.logger.Printf("unknown command kind %d", cmd.kind)
	}
}

func (e *Engine) handleResult(ctx context.Context, res netResult) {
	if res.gen != e.gen {
		e.staleDropped.Add(1)
		return
	}
	switch res.kind {
	case resultRefresh:
		e.handleRefreshResult(ctx, res)
	case resultTrail:
		e.handleTrailResult(res)
	case resultMove:
		e.handleMoveResult(ctx, res)
	}
}

func (e *Engine) handleSelectToken(id string) {
	if e.tokenByID(id) == nil {
		return
	}
	e.selectedID = id
	e.notice = ""
	e.publish()
}

func (e *Engine) handlePickImagery(id string) {
	e.sourceID = id
	e.rebuildSource()
	e.publish()
}

func (e *Engine) handleLoadCampaign(ctx context.Context, id string) {
	if id == "" {
		return
	}
	if id == e.campaignID && !e.loading {
		e.startRefresh(ctx, refreshAll)
		return
	}
	e.cancelInFlight()
	e.gen++
	e.campaignID = id
	e.loading = true
	e.restored = false
	e.worldMap = nil
	e.tileConfigs = nil
	e.sourceID = ""
	e.source = nil
	e.viewExtent = geo.Extent{}
	e.roster = nil
	e.positions = nil
	e.feedRole = ""
	e.viewer = campaign.ViewerContext{UserID: e.cfg.UserID}
	e.tokens = nil
	e.locations = nil
	e.selectedID = ""
	e.move = MoveView{Phase: PhaseIdle}
	e.pendingMove = nil
	e.notice = ""
	e.lastErr = ""
	e.shownTrails = map[string]*TrailView{}
	e.trailBusy = map[string]bool{}
	e.refreshBusy = false
	e.queuedFlags = 0
	e.trails.clear()
	e.startRefresh(ctx, refreshAll)
	e.publish()
}

func (e *Engine) cancelInFlight() {
	if e.cancelFetch != nil {
		e.cancelFetch()
		e.cancelFetch = nil
	}
	if e.cancelMove != nil {
		e.cancelMove()
		e.cancelMove = nil
	}
	for pid, cancel := range e.trailCancels {
		cancel()
		delete(e.trailCancels, pid)
	}
}

func (e *Engine) handlePush(ctx context.Context, ev protocol.PushEvent) {
	e.pushSeen.Add(1)
	if e.campaignID == "" || (ev.CampaignID != "" && ev.CampaignID != e.campaignID) {
		return
	}
	if e.journal != nil {
		rec := EventRecord{
			CampaignID: e.campaignID, Seq: e.seq,
			Name: ev.Name, PlayerID: ev.PlayerID, SpawnID: ev.SpawnID, At: time.Now(),
		}
		if err := e.journal.RecordEvent(rec); err != nil {
			e.logger.Printf("journal event: %v", err)
		}
	}
	switch ev.Name {
	case protocol.EventPlayerMoved, protocol.EventPlayerTeleported:
		if ev.PlayerID != "" {
			e.invalidateTrail(ctx, ev.PlayerID)
		}
		e.startRefresh(ctx, refreshCore)
	case protocol.EventSpawnUpdated, protocol.EventSpawnDeleted:
		e.startRefresh(ctx, refreshCore|refreshLocations)
	}
}

func (e *Engine) handleConn(ctx context.Context, cev push.ConnEvent) {
	live := cev.State == push.StateConnected
	e.conn = ConnView{Live: live, Resumed: live && cev.Reconnect, Since: time.Now()}
	if cev.Err != nil {
		e.conn.LastError = cev.Err.Error()
	}
	// Events may have been missed while down; resync on reconnect.
	if e.conn.Resumed {
		e.startRefresh(ctx, refreshCore|refreshLocations)
	}
	e.publish()
}

func (e *Engine) tokenByID(id string) *campaign.PlayerToken {
	if id == "" {
		return nil
	}
	for i := range e.tokens {
		if e.tokens[i].PlayerID == id {
			return &e.tokens[i]
		}
	}
	return nil
}

func (e *Engine) locationByID(id string) *campaign.CampaignLocation {
	if id == "" {
		return nil
	}
	for i := range e.locations {
		if e.locations[i].ID == id {
			return &e.locations[i]
		}
	}
	return nil
}

func (e *Engine) publish() {
	e.seq++
	e.frame = e.buildFrame()
	e.frames.Add(1)
	for ch := range e.subscribers {
		sendLatestFrame(ch, e.frame)
	}
}

func (e *Engine) buildFrame() *StateFrame {
	e.frameSeq.Store(e.seq)
	f := &StateFrame{
		Seq:         e.seq,
		CampaignID:  e.campaignID,
		GeneratedAt: time.Now(),
		Loading:     e.loading,
		Restored:    e.restored,

		Map:        e.worldMap,
		Source:     e.source,
		ViewExtent: e.viewExtent,

		Viewer:          e.viewer,
		Tokens:          append([]campaign.PlayerToken(nil), e.tokens...),
		Locations:       append([]campaign.CampaignLocation(nil), e.locations...),
		SelectedTokenID: e.selectedID,

		Move: e.move,
		Conn: e.conn,

		Notice:    e.notice,
		LastError: e.lastErr,
	}
	if len(e.shownTrails) > 0 {
		f.Trails = make(map[string]*TrailView, len(e.shownTrails))
		for pid, tv := range e.shownTrails {
			f.Trails[pid] = tv
		}
	}
	return f
}

func sendLatestFrame(ch chan *StateFrame, f *StateFrame) {
	select {
	case ch <- f:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- f:
	default:
	}
}

func (e *Engine) postResult(ctx context.Context, res netResult) {
	select {
	case e.results <- res:
	case <-ctx.Done():
	case <-e.stop:
	}
}

type QueueDepths struct {
	Cmds    int
	Results int
}

type Metrics struct {
	FrameSeq     uint64
	Frames       uint64
	Refreshes    uint64
	StaleDropped uint64
	PushEvents   uint64
	MovesOK      uint64
	MovesFailed  uint64
	TrailFetches uint64
	TrailHits    uint64
	QueueDepths  QueueDepths
}

func (e *Engine) Metrics() Metrics {
	return Metrics{
		FrameSeq:     e.frameSeq.Load(),
		Frames:       e.frames.Load(),
		Refreshes:    e.refreshes.Load(),
		StaleDropped: e.staleDropped.Load(),
		PushEvents:   e.pushSeen.Load(),
		MovesOK:      e.movesOK.Load(),
		MovesFailed:  e.movesFailed.Load(),
		TrailFetches: e.trailFetches.Load(),
		TrailHits:    e.trailHits.Load(),
		QueueDepths:  QueueDepths{Cmds: len(e.cmds), Results: len(e.results)},
	}
}
