package engine

import (
	"strings"
	"testing"
	"time"

	"questmap.app/internal/client"
	"questmap.app/internal/geo"
	"questmap.app/internal/protocol"
)

func TestShowTrailFetchesOnceWithinTTL(t *testing.T) {
	env := startEngine(t, newFakeAPI(), "u-dm")
	loadCampaign(t, env, "c1")

	env.eng.ShowTrail("mem-p1")
	f := waitState(t, env.eng, func(f *StateFrame) bool {
		tv := f.Trails["mem-p1"]
		return tv != nil && !tv.Pending
	})
	if len(f.Trails["mem-p1"].Points) != 2 {
		t.Fatalf("trail=%+v", f.Trails["mem-p1"])
	}
	if got := env.api.count("trail:mem-p1"); got != 1 {
		t.Fatalf("trail calls=%d", got)
	}

	env.eng.HideTrail("mem-p1")
	waitState(t, env.eng, func(f *StateFrame) bool { return len(f.Trails) == 0 })

	// Re-showing inside the TTL is served from the cache.
	env.eng.ShowTrail("mem-p1")
	f = waitState(t, env.eng, func(f *StateFrame) bool {
		tv := f.Trails["mem-p1"]
		return tv != nil && !tv.Pending && len(tv.Points) == 2
	})
	if got := env.api.count("trail:mem-p1"); got != 1 {
		t.Fatalf("trail calls=%d want 1", got)
	}
	if f.Trails["mem-p1"].Hidden {
		t.Fatalf("trail=%+v", f.Trails["mem-p1"])
	}
	m := env.eng.Metrics()
	if m.TrailFetches != 1 || m.TrailHits != 1 {
		t.Fatalf("fetches=%d hits=%d", m.TrailFetches, m.TrailHits)
	}
}

func TestPolicyHiddenTrailNeverCached(t *testing.T) {
	api := newFakeAPI()
	api.setTrailErr("mem-dm", &client.APIError{Status: 403, Code: "E_POLICY_HIDDEN", Message: "trail hidden"})
	env := startEngine(t, api, "u-p1")
	loadCampaign(t, env, "c1")

	env.eng.ShowTrail("mem-dm")
	f := waitState(t, env.eng, func(f *StateFrame) bool {
		tv := f.Trails["mem-dm"]
		return tv != nil && !tv.Pending
	})
	if !f.Trails["mem-dm"].Hidden {
		t.Fatalf("trail=%+v", f.Trails["mem-dm"])
	}

	env.eng.HideTrail("mem-dm")
	waitState(t, env.eng, func(f *StateFrame) bool { return len(f.Trails) == 0 })

	// A policy refusal must not be served from the cache: each show asks
	// again, so a permission grant takes effect immediately.
	env.eng.ShowTrail("mem-dm")
	waitState(t, env.eng, func(f *StateFrame) bool {
		tv := f.Trails["mem-dm"]
		return tv != nil && !tv.Pending && tv.Hidden
	})
	if got := api.count("trail:mem-dm"); got != 2 {
		t.Fatalf("trail calls=%d want 2", got)
	}

	api.setTrailErr("mem-dm", nil)
	api.setTrail("mem-dm", []geo.Point{{X: 1, Y: -1}, {X: 2, Y: -2}, {X: 3, Y: -3}})
	env.eng.HideTrail("mem-dm")
	env.eng.ShowTrail("mem-dm")
	f = waitState(t, env.eng, func(f *StateFrame) bool {
		tv := f.Trails["mem-dm"]
		return tv != nil && !tv.Pending && !tv.Hidden
	})
	if len(f.Trails["mem-dm"].Points) != 3 {
		t.Fatalf("trail=%+v", f.Trails["mem-dm"])
	}
	if got := api.count("trail:mem-dm"); got != 3 {
		t.Fatalf("trail calls=%d want 3", got)
	}
}

func TestPlayerMovedRefetchesShownTrail(t *testing.T) {
	env := startEngine(t, newFakeAPI(), "u-dm")
	loadCampaign(t, env, "c1")

	env.eng.ShowTrail("mem-p1")
	waitState(t, env.eng, func(f *StateFrame) bool {
		tv := f.Trails["mem-p1"]
		return tv != nil && !tv.Pending
	})

	env.api.setTrail("mem-p1", []geo.Point{{X: 90, Y: -40}, {X: 100, Y: -50}, {X: 120, Y: -60}})
	env.events <- protocol.PushEvent{Name: protocol.EventPlayerMoved, CampaignID: "c1", PlayerID: "mem-p1"}

	f := waitState(t, env.eng, func(f *StateFrame) bool {
		tv := f.Trails["mem-p1"]
		return tv != nil && !tv.Pending && len(tv.Points) == 3
	})
	if f.Trails["mem-p1"].Hidden {
		t.Fatalf("trail=%+v", f.Trails["mem-p1"])
	}
	if got := env.api.count("trail:mem-p1"); got != 2 {
		t.Fatalf("trail calls=%d want 2", got)
	}

	// Movement of a player whose trail is not on screen fetches nothing.
	env.events <- protocol.PushEvent{Name: protocol.EventPlayerMoved, CampaignID: "c1", PlayerID: "mem-dm"}
	waitState(t, env.eng, func(f *StateFrame) bool { return env.eng.Metrics().PushEvents == 2 })
	time.Sleep(30 * time.Millisecond)
	if got := env.api.count("trail:mem-dm"); got != 0 {
		t.Fatalf("trail calls=%d want 0", got)
	}
}

func TestTrailErrorDropsViewWithNotice(t *testing.T) {
	api := newFakeAPI()
	api.setTrailErr("mem-p1", &client.APIError{Status: 500, Code: "E_INTERNAL", Message: "boom"})
	env := startEngine(t, api, "u-dm")
	loadCampaign(t, env, "c1")

	env.eng.ShowTrail("mem-p1")
	f := waitState(t, env.eng, func(f *StateFrame) bool { return f.Notice != "" && len(f.Trails) == 0 })
	if !strings.Contains(f.Notice, "movement trail") {
		t.Fatalf("notice=%q", f.Notice)
	}
	if got := api.count("trail:mem-p1"); got != 1 {
		t.Fatalf("trail calls=%d", got)
	}
}

func TestHideUnknownTrailIsNoop(t *testing.T) {
	env := startEngine(t, newFakeAPI(), "u-dm")
	loadCampaign(t, env, "c1")

	env.eng.HideTrail("nobody")
	f := waitState(t, env.eng, func(f *StateFrame) bool { return f.CampaignID == "c1" })
	if len(f.Trails) != 0 {
		t.Fatalf("trails=%+v", f.Trails)
	}
}
