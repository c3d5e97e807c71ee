// Command campaignsim runs the in-memory campaign service: the REST surface
// plus the push hub, with an optional seeded demo campaign. It exists so the
// engine can be developed and demoed without the real backend.
package main

import (
	"context"
	"flag"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"questmap.app/internal/campaignsim"
)

func main() {
	var (
		addr   = flag.String("addr", ":8490", "listen address")
		seed   = flag.Bool("seed", true, "seed the demo campaign")
		wander = flag.Duration("wander", 0, "move a demo token on this interval (0 disables; needs -seed)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[campaignsim] ", log.LstdFlags|log.Lmicroseconds)

	ctx, cancel := signalContext()
	defer cancel()

	sim := campaignsim.New(logger)
	if *seed {
		id := campaignsim.SeedDemo(sim)
		logger.Printf("seeded campaign=%s (tokens: tok-gm tok-aldric tok-sable tok-hollis)", id)
		if *wander > 0 {
			go wanderLoop(ctx, sim, id, *wander)
		}
	} else if *wander > 0 {
		logger.Printf("-wander ignored without -seed")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           sim.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// wanderLoop walks Aldric around the mill so a connected engine always has
// push traffic to render.
func wanderLoop(ctx context.Context, sim *campaignsim.Server, campaignID string, every time.Duration) {
	const cx, cy, r = 820.0, -560.0, 120.0
	t := time.NewTicker(every)
	defer t.Stop()
	step := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			step++
			a := float64(step) * math.Pi / 6
			x := cx + r*math.Cos(a)
			y := cy + r*math.Sin(a)
			sim.MovePlayer(campaignID, "mem-aldric", x, y, false)
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
