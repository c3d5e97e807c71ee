package engine

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"questmap.app/internal/client"
	"questmap.app/internal/geo"
)

type trailEntry struct {
	points    []geo.Point
	fetchedAt time.Time
}

// trailCache keeps fetched trails for the tuning TTL so that hiding and
// re-showing a trail inside the window costs no network call. Policy-hidden
// results are never stored here.
type trailCache struct {
	cache *ristretto.Cache[string, *trailEntry]
	ttl   time.Duration
}

func newTrailCache(ttl time.Duration) (*trailCache, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	c, err := ristretto.NewCache[string, *trailEntry](&ristretto.Config[string, *trailEntry]{
		NumCounters: 4096,
		MaxCost:     4 * 1024 * 1024,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &trailCache{cache: c, ttl: ttl}, nil
}

func trailKey(campaignID, playerID string) string { return campaignID + "|" + playerID }

func (t *trailCache) get(campaignID, playerID string) (*trailEntry, bool) {
	t.cache.Wait()
	return t.cache.Get(trailKey(campaignID, playerID))
}

func (t *trailCache) put(campaignID, playerID string, ent *trailEntry) {
	cost := int64(len(ent.points))
	if cost < 1 {
		cost = 1
	}
	t.cache.SetWithTTL(trailKey(campaignID, playerID), ent, cost, t.ttl)
	t.cache.Wait()
}

func (t *trailCache) drop(campaignID, playerID string) {
	t.cache.Del(trailKey(campaignID, playerID))
}

func (t *trailCache) clear() { t.cache.Clear() }
func (t *trailCache) close() { t.cache.Close() }

func (e *Engine) handleShowTrail(ctx context.Context, playerID string) {
	if e.campaignID == "" || playerID == "" {
		return
	}
	if tv, ok := e.shownTrails[playerID]; ok && !tv.Pending {
		return
	}
	if ent, ok := e.trails.get(e.campaignID, playerID); ok {
		e.trailHits.Add(1)
		e.shownTrails[playerID] = &TrailView{
			PlayerID:  playerID,
			Points:    ent.points,
			FetchedAt: ent.fetchedAt,
		}
		e.publish()
		return
	}
	e.shownTrails[playerID] = &TrailView{PlayerID: playerID, Pending: true}
	e.fetchTrail(ctx, playerID)
	e.publish()
}

func (e *Engine) handleHideTrail(playerID string) {
	if _, ok := e.shownTrails[playerID]; !ok {
		return
	}
	// The cache entry stays warm; only the view goes away.
	delete(e.shownTrails, playerID)
	e.publish()
}

// invalidateTrail is called when a player's position changed: the cached
// line is wrong now. A shown trail refetches immediately, keeping its stale
// points on screen until the fresh ones land.
func (e *Engine) invalidateTrail(ctx context.Context, playerID string) {
	e.trails.drop(e.campaignID, playerID)
	tv, shown := e.shownTrails[playerID]
	if !shown {
		return
	}
	e.shownTrails[playerID] = &TrailView{
		PlayerID:  playerID,
		Points:    tv.Points,
		FetchedAt: tv.FetchedAt,
		Pending:   true,
	}
	e.fetchTrail(ctx, playerID)
}

func (e *Engine) fetchTrail(ctx context.Context, playerID string) {
	if e.trailBusy[playerID] {
		return
	}
	e.trailBusy[playerID] = true
	e.trailFetches.Add(1)

	fctx, cancel := context.WithCancel(ctx)
	e.trailCancels[playerID] = cancel
	gen, campaignID := e.gen, e.campaignID
	radius := e.cfg.Tuning.Trail.Radius
	go func() {
		points, err := e.cfg.API.Trail(fctx, campaignID, playerID, radius)
		e.postResult(fctx, netResult{kind: resultTrail, gen: gen, playerID: playerID, trail: points, err: err})
	}()
}

func (e *Engine) handleTrailResult(res netResult) {
	pid := res.playerID
	delete(e.trailBusy, pid)
	if cancel, ok := e.trailCancels[pid]; ok {
		cancel()
		delete(e.trailCancels, pid)
	}
	_, shown := e.shownTrails[pid]

	if res.err != nil {
		if client.IsPermission(res.err) {
			// Policy refusals are shown as such and never cached, so a
			// later permission grant is picked up on the next show.
			if shown {
				e.shownTrails[pid] = &TrailView{PlayerID: pid, Hidden: true, FetchedAt: time.Now()}
				e.publish()
			}
			return
		}
		if shown {
			delete(e.shownTrails, pid)
			e.notice = "Couldn't load the movement trail"
			e.publish()
		}
		e.logger.Printf("trail %s: %v", pid, res.err)
		return
	}

	ent := &trailEntry{points: res.trail, fetchedAt: time.Now()}
	e.trails.put(e.campaignID, pid, ent)
	if shown {
		e.shownTrails[pid] = &TrailView{
			PlayerID:  pid,
			Points:    ent.points,
			FetchedAt: ent.fetchedAt,
		}
		e.publish()
	}
}
