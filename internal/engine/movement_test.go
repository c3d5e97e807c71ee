package engine

import (
	"strings"
	"testing"

	"questmap.app/internal/campaign"
	"questmap.app/internal/client"
	"questmap.app/internal/geo"
)

func TestMoveFlowDistanceAndSubmit(t *testing.T) {
	env := startEngine(t, newFakeAPI(), "u-dm")
	loadCampaign(t, env, "c1")

	env.eng.ArmMove("mem-dm")
	f := waitState(t, env.eng, func(f *StateFrame) bool { return f.Move.Phase == PhaseSelecting })
	if f.Move.Origin != (geo.Point{X: 10, Y: 10}) || f.Move.Mode != campaign.ModeWalk {
		t.Fatalf("move=%+v", f.Move)
	}
	if len(f.Move.Modes) != 6 {
		t.Fatalf("modes=%v", f.Move.Modes)
	}
	if f.SelectedTokenID != "mem-dm" {
		t.Fatalf("selected=%q", f.SelectedTokenID)
	}

	env.eng.MapClick(geo.Point{X: 13, Y: 14})
	f = waitState(t, env.eng, func(f *StateFrame) bool { return f.Move.Phase == PhaseConfirming })
	if f.Move.DistancePx != 5 || f.Move.DistanceM != 50 {
		t.Fatalf("distance px=%v m=%v", f.Move.DistancePx, f.Move.DistanceM)
	}
	if f.Move.Destination == nil || *f.Move.Destination != (geo.Point{X: 13, Y: 14}) {
		t.Fatalf("destination=%+v", f.Move.Destination)
	}

	env.eng.PickMode(campaign.ModeRide)
	env.eng.SetReason("forced march")
	waitState(t, env.eng, func(f *StateFrame) bool {
		return f.Move.Mode == campaign.ModeRide && f.Move.Reason == "forced march"
	})

	env.eng.ConfirmMove()
	waitState(t, env.eng, func(f *StateFrame) bool { return f.Move.Phase == PhaseIdle })

	calls := env.api.moveCalls()
	if len(calls) != 1 {
		t.Fatalf("moves=%+v", calls)
	}
	mc := calls[0]
	if mc.campaignID != "c1" || mc.playerID != "mem-dm" {
		t.Fatalf("call=%+v", mc)
	}
	if mc.req.Target == nil || *mc.req.Target != (geo.Point{X: 13, Y: 14}) {
		t.Fatalf("target=%+v", mc.req.Target)
	}
	if mc.req.Mode != campaign.ModeRide || mc.req.Reason != "forced march" {
		t.Fatalf("req=%+v", mc.req)
	}
	if got := env.eng.Metrics().MovesOK; got != 1 {
		t.Fatalf("moves ok=%d", got)
	}

	// The optimistic refetch lands the token on its new spot.
	waitState(t, env.eng, func(f *StateFrame) bool {
		tok := f.TokenByID("mem-dm")
		return tok != nil && tok.Coordinates == (geo.Point{X: 13, Y: 14})
	})
}

func TestArmMoveDeniedWithoutControl(t *testing.T) {
	env := startEngine(t, newFakeAPI(), "u-p1")
	loadCampaign(t, env, "c1")

	env.eng.ArmMove("mem-dm")
	f := waitState(t, env.eng, func(f *StateFrame) bool { return f.Notice != "" })
	if f.Move.Phase != PhaseIdle || !strings.Contains(f.Notice, "don't control") {
		t.Fatalf("phase=%s notice=%q", f.Move.Phase, f.Notice)
	}

	env.eng.ArmMove("mem-p1")
	f = waitState(t, env.eng, func(f *StateFrame) bool { return f.Move.Phase == PhaseSelecting })
	if len(f.Move.Modes) != 4 {
		t.Fatalf("modes=%v", f.Move.Modes)
	}
	if f.Notice != "" {
		t.Fatalf("notice=%q", f.Notice)
	}
}

func TestRetargetWhileConfirming(t *testing.T) {
	env := startEngine(t, newFakeAPI(), "u-dm")
	loadCampaign(t, env, "c1")

	env.eng.ArmMove("mem-dm")
	env.eng.MapClick(geo.Point{X: 13, Y: 14})
	waitState(t, env.eng, func(f *StateFrame) bool { return f.Move.Phase == PhaseConfirming })

	env.eng.MapClick(geo.Point{X: 20, Y: 10})
	f := waitState(t, env.eng, func(f *StateFrame) bool {
		return f.Move.Destination != nil && f.Move.Destination.X == 20
	})
	if f.Move.Phase != PhaseConfirming || f.Move.DistancePx != 10 {
		t.Fatalf("move=%+v", f.Move)
	}
}

func TestSubmitErrorKeepsConfirming(t *testing.T) {
	env := startEngine(t, newFakeAPI(), "u-dm")
	loadCampaign(t, env, "c1")
	env.api.setMoveErr(&client.APIError{Status: 422, Code: "E_BAD_REQUEST", Message: "destination outside the map"})

	env.eng.ArmMove("mem-dm")
	env.eng.MapClick(geo.Point{X: 13, Y: 14})
	waitState(t, env.eng, func(f *StateFrame) bool { return f.Move.Phase == PhaseConfirming })
	env.eng.ConfirmMove()

	f := waitState(t, env.eng, func(f *StateFrame) bool {
		return f.Move.Phase == PhaseConfirming && f.Move.Err != ""
	})
	if f.Move.Err != "destination outside the map" {
		t.Fatalf("err=%q", f.Move.Err)
	}
	if f.Move.Destination == nil {
		t.Fatalf("destination dropped on error")
	}
	if got := env.eng.Metrics().MovesFailed; got != 1 {
		t.Fatalf("moves failed=%d", got)
	}

	// Fixing the problem and confirming again goes through.
	env.api.setMoveErr(nil)
	env.eng.ConfirmMove()
	waitState(t, env.eng, func(f *StateFrame) bool { return f.Move.Phase == PhaseIdle })
	if got := env.eng.Metrics().MovesOK; got != 1 {
		t.Fatalf("moves ok=%d", got)
	}
}

func TestSubmitPermissionErrorMessage(t *testing.T) {
	env := startEngine(t, newFakeAPI(), "u-dm")
	loadCampaign(t, env, "c1")
	env.api.setMoveErr(&client.APIError{Status: 403, Code: "E_NO_PERMISSION", Message: "nope"})

	env.eng.ArmMove("mem-dm")
	env.eng.MapClick(geo.Point{X: 13, Y: 14})
	waitState(t, env.eng, func(f *StateFrame) bool { return f.Move.Phase == PhaseConfirming })
	env.eng.ConfirmMove()

	f := waitState(t, env.eng, func(f *StateFrame) bool { return f.Move.Err != "" })
	if f.Move.Err != "You don't have permission to move this token" {
		t.Fatalf("err=%q", f.Move.Err)
	}
}

func TestCancelMoveResetsTool(t *testing.T) {
	env := startEngine(t, newFakeAPI(), "u-dm")
	loadCampaign(t, env, "c1")

	env.eng.ArmMove("mem-dm")
	env.eng.MapClick(geo.Point{X: 13, Y: 14})
	waitState(t, env.eng, func(f *StateFrame) bool { return f.Move.Phase == PhaseConfirming })

	env.eng.CancelMove()
	f := waitState(t, env.eng, func(f *StateFrame) bool { return f.Move.Phase == PhaseIdle })
	if f.Move.TokenID != "" || f.Move.Destination != nil {
		t.Fatalf("move=%+v", f.Move)
	}
	if len(env.api.moveCalls()) != 0 {
		t.Fatalf("unexpected submit")
	}
}

func TestMapClickWithoutToolClearsSelection(t *testing.T) {
	env := startEngine(t, newFakeAPI(), "u-dm")
	loadCampaign(t, env, "c1")

	env.eng.SelectToken("mem-p1")
	waitState(t, env.eng, func(f *StateFrame) bool { return f.SelectedTokenID == "mem-p1" })

	env.eng.MapClick(geo.Point{X: 500, Y: -500})
	waitState(t, env.eng, func(f *StateFrame) bool { return f.SelectedTokenID == "" })
}

func TestClickLocationTargets(t *testing.T) {
	env := startEngine(t, newFakeAPI(), "u-dm")
	loadCampaign(t, env, "c1")

	// Spawn locations submit as a spawn teleport.
	env.eng.ArmMove("mem-dm")
	env.eng.ClickLocation("loc-spawn")
	f := waitState(t, env.eng, func(f *StateFrame) bool { return f.Move.Phase == PhaseConfirming })
	if f.Move.LocationID != "loc-spawn" {
		t.Fatalf("move=%+v", f.Move)
	}
	if f.Move.Destination == nil || *f.Move.Destination != (geo.Point{X: 5, Y: -5}) {
		t.Fatalf("destination=%+v", f.Move.Destination)
	}
	env.eng.ConfirmMove()
	waitState(t, env.eng, func(f *StateFrame) bool { return f.Move.Phase == PhaseIdle })

	// Plain locations submit by location id.
	env.eng.ArmMove("mem-dm")
	env.eng.ClickLocation("loc-mill")
	waitState(t, env.eng, func(f *StateFrame) bool { return f.Move.Phase == PhaseConfirming })
	env.eng.ConfirmMove()
	waitState(t, env.eng, func(f *StateFrame) bool { return f.Move.Phase == PhaseIdle })

	calls := env.api.moveCalls()
	if len(calls) != 2 {
		t.Fatalf("moves=%+v", calls)
	}
	if calls[0].req.SpawnID != "loc-spawn" || calls[0].req.LocationID != "" || calls[0].req.Target != nil {
		t.Fatalf("spawn req=%+v", calls[0].req)
	}
	if calls[1].req.LocationID != "loc-mill" || calls[1].req.SpawnID != "" {
		t.Fatalf("location req=%+v", calls[1].req)
	}
}

func TestModeFallbackOnRoleDowngrade(t *testing.T) {
	env := startEngine(t, newFakeAPI(), "u-dm")
	loadCampaign(t, env, "c1")

	env.eng.ArmMove("mem-dm")
	waitState(t, env.eng, func(f *StateFrame) bool { return f.Move.Phase == PhaseSelecting })
	env.eng.PickMode(campaign.ModeTeleport)
	waitState(t, env.eng, func(f *StateFrame) bool { return f.Move.Mode == campaign.ModeTeleport })

	// The DM loses the chair mid-move. Their own token stays controllable,
	// but teleport is no longer on the table.
	env.api.setRole("c1", "mem-dm", campaign.RolePlayer)
	env.eng.Refresh()

	f := waitState(t, env.eng, func(f *StateFrame) bool { return f.Move.Mode == campaign.ModeFly })
	if f.Viewer.Elevated() {
		t.Fatalf("viewer=%+v", f.Viewer)
	}
	if len(f.Move.Modes) != 4 {
		t.Fatalf("modes=%v", f.Move.Modes)
	}
	if !strings.Contains(f.Notice, "Movement mode changed") {
		t.Fatalf("notice=%q", f.Notice)
	}
	if f.Move.Phase != PhaseSelecting {
		t.Fatalf("phase=%s", f.Move.Phase)
	}
}

func TestTokenGoneResetsTool(t *testing.T) {
	env := startEngine(t, newFakeAPI(), "u-dm")
	loadCampaign(t, env, "c1")

	env.eng.ArmMove("mem-p1")
	waitState(t, env.eng, func(f *StateFrame) bool { return f.Move.Phase == PhaseSelecting })

	env.api.removePosition("c1", "mem-p1")
	env.eng.Refresh()

	f := waitState(t, env.eng, func(f *StateFrame) bool { return f.Move.Phase == PhaseIdle })
	if !strings.Contains(f.Notice, "left the map") {
		t.Fatalf("notice=%q", f.Notice)
	}
}
