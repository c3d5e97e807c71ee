package engine

import (
	"context"
	"errors"
	"time"

	"questmap.app/internal/campaign"
	"questmap.app/internal/client"
	"questmap.app/internal/geo"
)

func (e *Engine) resetMove() {
	e.move = MoveView{Phase: PhaseIdle}
}

func (e *Engine) handleArmMove(tokenID string) {
	token := e.tokenByID(tokenID)
	if token == nil {
		e.notice = "That token is not on the map"
		e.publish()
		return
	}
	if !e.viewer.CanControl(token) {
		// A denial is a banner, never a modal.
		e.notice = "You don't control " + token.Name
		e.publish()
		return
	}
	e.move = MoveView{
		Phase:   PhaseSelecting,
		TokenID: tokenID,
		Origin:  token.Coordinates,
		Mode:    campaign.ModeWalk,
		Modes:   campaign.AllowedModes(e.viewer.Elevated()),
	}
	e.selectedID = tokenID
	e.notice = ""
	e.publish()
}

func (e *Engine) handleMapClick(pt geo.Point) {
	if !geo.IsFinite(pt.X) || !geo.IsFinite(pt.Y) {
		return
	}
	switch e.move.Phase {
	case PhaseSelecting, PhaseConfirming:
		e.setDestination(pt, "")
		e.publish()
	case PhaseSubmitting:
		// Clicks during submit are dropped, not queued.
	default:
		if e.selectedID != "" {
			e.selectedID = ""
			e.publish()
		}
	}
}

func (e *Engine) handleClickLocation(locationID string) {
	loc := e.locationByID(locationID)
	if loc == nil {
		e.logger.Printf("click unknown location %q", locationID)
		return
	}
	switch e.move.Phase {
	case PhaseSelecting, PhaseConfirming:
		e.setDestination(loc.Coord, loc.ID)
		e.publish()
	default:
		// Outside the tool a location click selects nothing; the UI shows
		// its popup from the frame's Locations directly.
	}
}

// setDestination moves the tool into confirming. Re-clicking while already
// confirming retargets in place.
func (e *Engine) setDestination(pt geo.Point, locationID string) {
	dst := pt
	e.move.Destination = &dst
	e.move.LocationID = locationID
	e.move.DistancePx = geo.Dist(e.move.Origin, pt)
	e.move.DistanceM = 0
	if e.worldMap != nil && e.worldMap.MetersPerPixel > 0 {
		e.move.DistanceM = e.move.DistancePx * e.worldMap.MetersPerPixel
	}
	e.move.Phase = PhaseConfirming
	e.move.Err = ""
}

func (e *Engine) handlePickMode(m campaign.MovementMode) {
	if e.move.Phase != PhaseSelecting && e.move.Phase != PhaseConfirming {
		return
	}
	if !m.Known() {
		e.logger.Printf("unknown movement mode %q", string(m))
		return
	}
	if m.Privileged() && !e.viewer.Elevated() {
		e.notice = "That movement mode needs DM rights"
		e.publish()
		return
	}
	e.move.Mode = m
	e.publish()
}

func (e *Engine) handleSetReason(reason string) {
	if e.move.Phase != PhaseSelecting && e.move.Phase != PhaseConfirming {
		return
	}
	e.move.Reason = reason
	e.publish()
}

func (e *Engine) handleConfirmMove(ctx context.Context) {
	if e.move.Phase != PhaseConfirming {
		return
	}
	req := campaign.MovementRequest{Mode: e.move.Mode, Reason: e.move.Reason}
	if e.move.LocationID != "" {
		if loc := e.locationByID(e.move.LocationID); loc != nil && loc.Spawn {
			req.SpawnID = loc.ID
		} else {
			req.LocationID = e.move.LocationID
		}
	} else {
		req.Target = e.move.Destination
	}
	if err := req.Validate(); err != nil {
		e.move.Err = err.Error()
		e.publish()
		return
	}

	e.move.Phase = PhaseSubmitting
	e.move.Err = ""
	e.pendingMove = &MoveRecord{
		CampaignID: e.campaignID,
		PlayerID:   e.move.TokenID,
		Mode:       string(req.Mode),
		Reason:     req.Reason,
		LocationID: req.LocationID,
		SpawnID:    req.SpawnID,
	}
	if req.Target != nil {
		e.pendingMove.X, e.pendingMove.Y = req.Target.X, req.Target.Y
	}
	e.publish()

	mctx, cancel := context.WithCancel(ctx)
	e.cancelMove = cancel
	gen, campaignID, playerID := e.gen, e.campaignID, e.move.TokenID
	go func() {
		err := e.cfg.API.Move(mctx, campaignID, playerID, req)
		e.postResult(mctx, netResult{kind: resultMove, gen: gen, playerID: playerID, err: err})
	}()
}

func (e *Engine) handleMoveResult(ctx context.Context, res netResult) {
	if e.cancelMove != nil {
		e.cancelMove()
		e.cancelMove = nil
	}
	active := e.move.Phase == PhaseSubmitting && e.move.TokenID == res.playerID

	if res.err != nil {
		e.movesFailed.Add(1)
		e.journalMove(false, res.err.Error())
		if active {
			e.move.Phase = PhaseConfirming
			e.move.Err = moveErrText(res.err)
			e.publish()
		}
		return
	}

	e.movesOK.Add(1)
	e.journalMove(true, "")
	e.invalidateTrail(ctx, res.playerID)
	if active {
		e.resetMove()
		e.notice = ""
	}
	// The server will also push player-moved, but don't rely on it.
	e.startRefresh(ctx, refreshCore)
	e.publish()
}

func (e *Engine) handleCancelMove() {
	if e.move.Phase == PhaseIdle {
		return
	}
	// A submit already in flight keeps running; its result lands as a
	// position refresh rather than a tool update.
	e.resetMove()
	e.publish()
}

// guardMovement re-checks the armed tool against a fresh roster: the token
// may be gone, control may be lost, or a privileged mode may no longer be
// allowed after a role downgrade.
func (e *Engine) guardMovement() {
	if e.move.Phase == PhaseIdle {
		return
	}
	token := e.tokenByID(e.move.TokenID)
	if token == nil {
		e.resetMove()
		e.notice = "The token you were moving left the map"
		return
	}
	if !e.viewer.CanControl(token) {
		e.resetMove()
		e.notice = "You no longer control " + token.Name
		return
	}
	elevated := e.viewer.Elevated()
	e.move.Modes = campaign.AllowedModes(elevated)
	if e.move.Mode.Privileged() && !elevated {
		fallback := campaign.FallbackMode(e.move.Mode, elevated)
		e.notice = "Movement mode changed to " + string(fallback)
		e.move.Mode = fallback
	}
	if token.Coordinates != e.move.Origin {
		e.move.Origin = token.Coordinates
		if e.move.Destination != nil {
			e.setDestination(*e.move.Destination, e.move.LocationID)
		}
	}
}

func (e *Engine) journalMove(ok bool, errText string) {
	rec := e.pendingMove
	e.pendingMove = nil
	if e.journal == nil || rec == nil {
		return
	}
	rec.OK = ok
	rec.Err = errText
	rec.At = time.Now()
	if err := e.journal.RecordMove(*rec); err != nil {
		e.logger.Printf("journal move: %v", err)
	}
}

// moveErrText maps submit failures onto the inline error line.
func moveErrText(err error) string {
	if client.IsPermission(err) {
		return "You don't have permission to move this token"
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	var valErr *campaign.ValidationError
	if errors.As(err, &valErr) {
		return valErr.Msg
	}
	if client.IsTransient(err) {
		return "The move didn't reach the server, try again"
	}
	return err.Error()
}
