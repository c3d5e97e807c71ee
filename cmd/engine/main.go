package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"questmap.app/internal/client"
	"questmap.app/internal/engine"
	"questmap.app/internal/persistence/journal"
	persistlog "questmap.app/internal/persistence/log"
	"questmap.app/internal/persistence/snapshot"
	"questmap.app/internal/protocol"
	"questmap.app/internal/push"
	"questmap.app/internal/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", ":8480", "status http listen address")
		campaignID = flag.String("campaign", "", "campaign id to load (required)")
		apiURL     = flag.String("api", "", "campaign service base url (overrides tuning)")
		apiToken   = flag.String("token", "", "bearer token (or set QM_API_TOKEN)")
		pushURL    = flag.String("push", "", "push channel ws url (overrides tuning; empty falls back to tuning)")
		userID     = flag.String("user", "", "viewer user id, matched against the roster to derive the role")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "./tuning.yaml", "path to tuning.yaml")
		disableDB  = flag.Bool("disable_journal", false, "disable the sqlite journal (jsonl logs still written)")

		snapPath   = flag.String("snapshot", "", "path to state snapshot to resume from (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "resume from the latest snapshot in the data dir if present (when -snapshot is empty)")
		snapKeep   = flag.Int("snapshot_keep", 8, "state snapshots to keep on disk")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lmicroseconds)

	if strings.TrimSpace(*campaignID) == "" {
		logger.Fatalf("-campaign is required")
	}

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", *tuningPath)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if v := strings.TrimSpace(*apiURL); v != "" {
		tune.API.BaseURL = v
	}
	if v := strings.TrimSpace(*pushURL); v != "" {
		tune.Push.URL = v
	}
	token := strings.TrimSpace(*apiToken)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("QM_API_TOKEN"))
	}
	if token == "" {
		token = tune.API.Token
	}
	if tune.API.BaseURL == "" {
		logger.Fatalf("no campaign service url (set -api or api.base_url in tuning.yaml)")
	}

	campaignDir := filepath.Join(*dataDir, "campaigns", *campaignID)
	_ = os.MkdirAll(campaignDir, 0o755)

	api, err := client.New(tune.API.BaseURL, token, logger)
	if err != nil {
		logger.Fatalf("api client: %v", err)
	}

	// Schemas are optional: without them push payloads are decoded but not
	// validated.
	var schemas *protocol.SchemaSet
	if dir := strings.TrimSpace(tune.SchemaDir); dir != "" {
		if schemas, err = protocol.LoadSchemas(dir); err != nil {
			logger.Printf("push schemas unavailable (%s): %v", dir, err)
			schemas = nil
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	var consumer *push.Consumer
	var events <-chan protocol.PushEvent
	var conns <-chan push.ConnEvent
	if tune.Push.URL != "" {
		minWait, maxWait := tune.ReconnectWindow()
		consumer = push.NewConsumer(push.Config{
			URL:          tune.Push.URL,
			CampaignID:   *campaignID,
			Radius:       tune.Refresh.Radius,
			Schemas:      schemas,
			Logger:       logger,
			ReconnectMin: minWait,
			ReconnectMax: maxWait,
		})
		events = consumer.Events()
		conns = consumer.Conns()
		go consumer.Run(ctx)
	} else {
		logger.Printf("push channel not configured; refresh is poll-only")
	}

	eng, err := engine.New(engine.Config{
		API:    api,
		Tuning: tune,
		UserID: strings.TrimSpace(*userID),
		Events: events,
		Conns:  conns,
		Logger: logger,
	})
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}

	// Durable journal: jsonl logs always, sqlite unless disabled. Both drop
	// under pressure rather than stall the loop.
	jsonl := persistlog.NewJournalLogger(filepath.Join(campaignDir, "logs"))
	defer jsonl.Close()
	var idx *journal.SQLiteJournal
	if !*disableDB {
		if idx, err = journal.OpenSQLite(filepath.Join(campaignDir, "journal.db")); err != nil {
			logger.Fatalf("open journal: %v", err)
		}
		defer idx.Close()
	}
	eng.SetJournal(multiJournal{a: jsonl, b: idx})

	snapDir := filepath.Join(campaignDir, "snapshots")
	toLoad := strings.TrimSpace(*snapPath)
	if toLoad == "" && *loadLatest {
		if p, ok, err := snapshot.Latest(snapDir); err == nil && ok {
			toLoad = p
		}
	}
	if toLoad != "" {
		state, err := snapshot.ReadState(toLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if state.Header.CampaignID != "" && state.Header.CampaignID != *campaignID {
			logger.Fatalf("snapshot campaign mismatch: flag=%s snap=%s", *campaignID, state.Header.CampaignID)
		}
		eng.Resume(state)
		logger.Printf("resumed from snapshot=%s seq=%d", filepath.Base(toLoad), state.Header.Seq)
	}

	// Snapshot writer.
	snapCh := make(chan snapshot.EngineStateV1, 2)
	eng.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case state := <-snapCh:
				path := filepath.Join(snapDir, snapshot.FileName(state.Header.Seq))
				if err := snapshot.WriteState(path, state); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if err := snapshot.Prune(snapDir, *snapKeep); err != nil {
					logger.Printf("snapshot prune: %v", err)
				}
			}
		}
	}()

	go func() {
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("engine stopped: %v", err)
		}
	}()
	eng.LoadCampaign(*campaignID)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := eng.Metrics()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP questmap_engine_frame_seq Sequence number of the latest state frame.\n")
		fmt.Fprintf(rw, "# TYPE questmap_engine_frame_seq gauge\n")
		fmt.Fprintf(rw, "questmap_engine_frame_seq{campaign=%q} %d\n", *campaignID, m.FrameSeq)

		fmt.Fprintf(rw, "# HELP questmap_engine_frames_total State frames published.\n")
		fmt.Fprintf(rw, "# TYPE questmap_engine_frames_total counter\n")
		fmt.Fprintf(rw, "questmap_engine_frames_total{campaign=%q} %d\n", *campaignID, m.Frames)

		fmt.Fprintf(rw, "# HELP questmap_engine_refreshes_total Completed state refreshes.\n")
		fmt.Fprintf(rw, "# TYPE questmap_engine_refreshes_total counter\n")
		fmt.Fprintf(rw, "questmap_engine_refreshes_total{campaign=%q} %d\n", *campaignID, m.Refreshes)

		fmt.Fprintf(rw, "# HELP questmap_engine_stale_dropped_total Fetch results discarded for arriving after a campaign switch.\n")
		fmt.Fprintf(rw, "# TYPE questmap_engine_stale_dropped_total counter\n")
		fmt.Fprintf(rw, "questmap_engine_stale_dropped_total{campaign=%q} %d\n", *campaignID, m.StaleDropped)

		fmt.Fprintf(rw, "# HELP questmap_engine_push_events_total Push events applied.\n")
		fmt.Fprintf(rw, "# TYPE questmap_engine_push_events_total counter\n")
		fmt.Fprintf(rw, "questmap_engine_push_events_total{campaign=%q} %d\n", *campaignID, m.PushEvents)

		fmt.Fprintf(rw, "# HELP questmap_engine_moves_total Movement submissions by outcome.\n")
		fmt.Fprintf(rw, "# TYPE questmap_engine_moves_total counter\n")
		fmt.Fprintf(rw, "questmap_engine_moves_total{campaign=%q,outcome=%q} %d\n", *campaignID, "ok", m.MovesOK)
		fmt.Fprintf(rw, "questmap_engine_moves_total{campaign=%q,outcome=%q} %d\n", *campaignID, "failed", m.MovesFailed)

		fmt.Fprintf(rw, "# HELP questmap_engine_trail_fetches_total Trail fetches against the campaign service.\n")
		fmt.Fprintf(rw, "# TYPE questmap_engine_trail_fetches_total counter\n")
		fmt.Fprintf(rw, "questmap_engine_trail_fetches_total{campaign=%q} %d\n", *campaignID, m.TrailFetches)

		fmt.Fprintf(rw, "# HELP questmap_engine_trail_cache_hits_total Trail requests served from cache.\n")
		fmt.Fprintf(rw, "# TYPE questmap_engine_trail_cache_hits_total counter\n")
		fmt.Fprintf(rw, "questmap_engine_trail_cache_hits_total{campaign=%q} %d\n", *campaignID, m.TrailHits)

		fmt.Fprintf(rw, "# HELP questmap_engine_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE questmap_engine_queue_depth gauge\n")
		fmt.Fprintf(rw, "questmap_engine_queue_depth{campaign=%q,queue=%q} %d\n", *campaignID, "cmds", m.QueueDepths.Cmds)
		fmt.Fprintf(rw, "questmap_engine_queue_depth{campaign=%q,queue=%q} %d\n", *campaignID, "results", m.QueueDepths.Results)

		if consumer != nil {
			fmt.Fprintf(rw, "# HELP questmap_push_events_total Push events accepted off the wire.\n")
			fmt.Fprintf(rw, "# TYPE questmap_push_events_total counter\n")
			fmt.Fprintf(rw, "questmap_push_events_total{campaign=%q} %d\n", *campaignID, consumer.TotalEvents())

			fmt.Fprintf(rw, "# HELP questmap_push_invalid_payloads_total Push messages dropped by schema validation or decoding.\n")
			fmt.Fprintf(rw, "# TYPE questmap_push_invalid_payloads_total counter\n")
			fmt.Fprintf(rw, "questmap_push_invalid_payloads_total{campaign=%q} %d\n", *campaignID, consumer.InvalidPayloads())

			fmt.Fprintf(rw, "# HELP questmap_push_reconnects_total Subscribes that followed a dropped session.\n")
			fmt.Fprintf(rw, "# TYPE questmap_push_reconnects_total counter\n")
			fmt.Fprintf(rw, "questmap_push_reconnects_total{campaign=%q} %d\n", *campaignID, consumer.Reconnects())
		}
		if idx != nil {
			fmt.Fprintf(rw, "# HELP questmap_journal_dropped_total Journal records dropped because the write queue was full.\n")
			fmt.Fprintf(rw, "# TYPE questmap_journal_dropped_total counter\n")
			fmt.Fprintf(rw, "questmap_journal_dropped_total{campaign=%q} %d\n", *campaignID, idx.Dropped())
		}
	})

	enableAdminHTTP := envBool("QM_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("QM_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			frame, err := eng.State(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"error": err.Error()})
				return
			}
			resp := struct {
				CampaignID string         `json:"campaign_id"`
				Seq        uint64         `json:"seq"`
				Loading    bool           `json:"loading"`
				Restored   bool           `json:"restored"`
				Tokens     int            `json:"tokens"`
				Trails     int            `json:"trails"`
				Notice     string         `json:"notice,omitempty"`
				LastError  string         `json:"last_error,omitempty"`
				ConnLive   bool           `json:"conn_live"`
				Metrics    engine.Metrics `json:"metrics"`
			}{
				CampaignID: frame.CampaignID,
				Seq:        frame.Seq,
				Loading:    frame.Loading,
				Restored:   frame.Restored,
				Tokens:     len(frame.Tokens),
				Trails:     len(frame.Trails),
				Notice:     frame.Notice,
				LastError:  frame.LastError,
				ConnLive:   frame.Conn.Live,
				Metrics:    eng.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/refresh", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			eng.Refresh()
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true})
		})
	} else {
		logger.Printf("admin endpoints disabled (QM_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (QM_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("campaign=%s api=%s listening on %s", *campaignID, tune.API.BaseURL, *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
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

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

// multiJournal fans records out to the jsonl logs and the sqlite index.
// Either side may be absent.
type multiJournal struct {
	a *persistlog.JournalLogger
	b *journal.SQLiteJournal
}

func (m multiJournal) RecordPositions(campaignID string, seq uint64, rows []engine.PositionRecord) error {
	if m.a != nil {
		_ = m.a.RecordPositions(campaignID, seq, rows)
	}
	if m.b != nil {
		_ = m.b.RecordPositions(campaignID, seq, rows)
	}
	return nil
}

func (m multiJournal) RecordMove(rec engine.MoveRecord) error {
	if m.a != nil {
		_ = m.a.RecordMove(rec)
	}
	if m.b != nil {
		_ = m.b.RecordMove(rec)
	}
	return nil
}

func (m multiJournal) RecordEvent(rec engine.EventRecord) error {
	if m.a != nil {
		_ = m.a.RecordEvent(rec)
	}
	if m.b != nil {
		_ = m.b.RecordEvent(rec)
	}
	return nil
}
