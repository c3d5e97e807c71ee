package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"questmap.app/internal/engine"
)

// SQLiteJournal records the campaign timeline (seen positions, move
// submissions, push events) into a local SQLite file. Writes are queued to a
// single writer goroutine and dropped when the queue is full: the journal is
// a convenience log, the live view stays authoritative.
type SQLiteJournal struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

// Dropped reports how many records were discarded because the writer queue
// was full.
func (s *SQLiteJournal) Dropped() uint64 { return s.dropped.Load() }

type reqKind int

const (
	reqPositions reqKind = iota + 1
	reqMove
	reqEvent
)

type req struct {
	kind reqKind

	campaignID string
	seq        uint64
	positions  []engine.PositionRecord
	move       engine.MoveRecord
	event      engine.EventRecord
}

func OpenSQLite(path string) (*SQLiteJournal, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteJournal{
		db: db,
		// Roomy buffer: a refresh writes one row per token in a burst.
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads. NORMAL is a decent
	// durability/perf tradeoff for a secondary log.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS positions (
			campaign_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			player_id TEXT NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			located_at TEXT,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (campaign_id, seq, player_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_positions_player ON positions(campaign_id, player_id, seq);`,
		`CREATE TABLE IF NOT EXISTS moves (
			campaign_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			at TEXT NOT NULL,
			mode TEXT NOT NULL,
			reason TEXT,
			x REAL NOT NULL,
			y REAL NOT NULL,
			location_id TEXT,
			spawn_id TEXT,
			ok INTEGER NOT NULL,
			err TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (campaign_id, player_id, at)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_moves_at ON moves(campaign_id, at);`,
		`CREATE TABLE IF NOT EXISTS events (
			campaign_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			sub INTEGER NOT NULL,
			name TEXT NOT NULL,
			player_id TEXT,
			spawn_id TEXT,
			at TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (campaign_id, seq, sub)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_at ON events(campaign_id, at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteJournal) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteJournal) RecordPositions(campaignID string, seq uint64, rows []engine.PositionRecord) error {
	if s == nil || s.closed.Load() || len(rows) == 0 {
		return nil
	}
	cp := append([]engine.PositionRecord(nil), rows...)
	select {
	case s.ch <- req{kind: reqPositions, campaignID: campaignID, seq: seq, positions: cp}:
	default:
		// Drop if the journal falls behind; the live view stays authoritative.
		s.dropped.Add(1)
	}
	return nil
}

func (s *SQLiteJournal) RecordMove(rec engine.MoveRecord) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqMove, move: rec}:
	default:
		s.dropped.Add(1)
	}
	return nil
}

func (s *SQLiteJournal) RecordEvent(rec engine.EventRecord) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqEvent, event: rec}:
	default:
		s.dropped.Add(1)
	}
	return nil
}

func (s *SQLiteJournal) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertPosition, _ := s.db.Prepare(`INSERT OR REPLACE INTO positions(campaign_id,seq,player_id,x,y,located_at,recorded_at) VALUES(?,?,?,?,?,?,?)`)
	insertMove, _ := s.db.Prepare(`INSERT OR REPLACE INTO moves(campaign_id,player_id,at,mode,reason,x,y,location_id,spawn_id,ok,err,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(campaign_id,seq,sub,name,player_id,spawn_id,at,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertPosition != nil {
			_ = insertPosition.Close()
		}
		if insertMove != nil {
			_ = insertMove.Close()
		}
		if insertEvent != nil {
			_ = insertEvent.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second

		lastEventSeq uint64
		eventSub     int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqPositions:
			now := time.Now().UTC().Format(time.RFC3339Nano)
			for _, p := range r.positions {
				if insertPosition == nil {
					break
				}
				var located string
				if !p.LocatedAt.IsZero() {
					located = p.LocatedAt.UTC().Format(time.RFC3339Nano)
				}
				if _, err := tx.Stmt(insertPosition).Exec(
					r.campaignID,
					int64(r.seq),
					p.PlayerID,
					p.X, p.Y,
					located,
					now,
				); err != nil {
					rollback()
					break
				}
				opCount++
			}

		case reqMove:
			m := r.move
			raw, _ := json.Marshal(m)
			if insertMove != nil {
				ok := 0
				if m.OK {
					ok = 1
				}
				if _, err := tx.Stmt(insertMove).Exec(
					m.CampaignID,
					m.PlayerID,
					m.At.UTC().Format(time.RFC3339Nano),
					m.Mode,
					m.Reason,
					m.X, m.Y,
					m.LocationID,
					m.SpawnID,
					ok,
					m.Err,
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqEvent:
			ev := r.event
			if ev.Seq != lastEventSeq {
				lastEventSeq = ev.Seq
				eventSub = 0
			}
			sub := eventSub
			eventSub++
			raw, _ := json.Marshal(ev)
			if insertEvent != nil {
				if _, err := tx.Stmt(insertEvent).Exec(
					ev.CampaignID,
					int64(ev.Seq),
					sub,
					ev.Name,
					ev.PlayerID,
					ev.SpawnID,
					ev.At.UTC().Format(time.RFC3339Nano),
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}

// TimelineEntry is one row of the merged move/event history, newest first.
type TimelineEntry struct {
	At         time.Time
	Kind       string
	CampaignID string
	PlayerID   string
	Name       string
	X, Y       float64
	OK         bool
	Detail     string
}

// Timeline merges recorded moves and push events for a campaign, newest
// first, up to limit rows.
func (s *SQLiteJournal) Timeline(campaignID string, limit int) ([]TimelineEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []TimelineEntry

	rows, err := s.db.Query(
		`SELECT player_id, at, mode, reason, x, y, ok, err FROM moves WHERE campaign_id=? ORDER BY at DESC LIMIT ?`,
		campaignID, limit,
	)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var e TimelineEntry
		var at, reason, errText string
		var ok int
		if err := rows.Scan(&e.PlayerID, &at, &e.Name, &reason, &e.X, &e.Y, &ok, &errText); err != nil {
			rows.Close()
			return nil, err
		}
		e.Kind = "move"
		e.CampaignID = campaignID
		e.At = parseRFC(at)
		e.OK = ok == 1
		e.Detail = reason
		if errText != "" {
			e.Detail = errText
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = s.db.Query(
		`SELECT name, player_id, spawn_id, at FROM events WHERE campaign_id=? ORDER BY at DESC LIMIT ?`,
		campaignID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var e TimelineEntry
		var at, spawnID string
		if err := rows.Scan(&e.Name, &e.PlayerID, &spawnID, &at); err != nil {
			return nil, err
		}
		e.Kind = "event"
		e.CampaignID = campaignID
		e.At = parseRFC(at)
		e.OK = true
		e.Detail = spawnID
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PositionRow is one journaled sighting of a player token.
type PositionRow struct {
	Seq        uint64
	PlayerID   string
	X, Y       float64
	LocatedAt  time.Time
	RecordedAt time.Time
}

// PositionHistory returns the journaled sightings for one player, newest
// first.
func (s *SQLiteJournal) PositionHistory(campaignID, playerID string, limit int) ([]PositionRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT seq, x, y, located_at, recorded_at FROM positions WHERE campaign_id=? AND player_id=? ORDER BY seq DESC LIMIT ?`,
		campaignID, playerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PositionRow
	for rows.Next() {
		var r PositionRow
		var seq int64
		var located, recorded string
		if err := rows.Scan(&seq, &r.X, &r.Y, &located, &recorded); err != nil {
			return nil, err
		}
		r.Seq = uint64(seq)
		r.PlayerID = playerID
		r.LocatedAt = parseRFC(located)
		r.RecordedAt = parseRFC(recorded)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseRFC(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
