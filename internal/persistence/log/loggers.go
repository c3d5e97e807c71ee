package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"questmap.app/internal/engine"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// PositionBatch is the JSONL shape for one refresh worth of token sightings.
type PositionBatch struct {
	CampaignID string                  `json:"campaign_id"`
	Seq        uint64                  `json:"seq"`
	At         time.Time               `json:"at"`
	Rows       []engine.PositionRecord `json:"rows"`
}

// JournalLogger writes the campaign timeline as compressed JSONL, one
// stream per record kind. It satisfies the same journal contract as the
// SQLite journal and is usually fanned out alongside it.
type JournalLogger struct {
	moves     *JSONLZstdWriter
	events    *JSONLZstdWriter
	positions *JSONLZstdWriter
}

func NewJournalLogger(dir string) *JournalLogger {
	return &JournalLogger{
		moves:     NewJSONLZstdWriter(filepath.Join(dir, "moves"), "moves"),
		events:    NewJSONLZstdWriter(filepath.Join(dir, "events"), "events"),
		positions: NewJSONLZstdWriter(filepath.Join(dir, "positions"), "positions"),
	}
}

func (l *JournalLogger) RecordMove(rec engine.MoveRecord) error   { return l.moves.Write(rec) }
func (l *JournalLogger) RecordEvent(rec engine.EventRecord) error { return l.events.Write(rec) }

func (l *JournalLogger) RecordPositions(campaignID string, seq uint64, rows []engine.PositionRecord) error {
	if len(rows) == 0 {
		return nil
	}
	return l.positions.Write(PositionBatch{
		CampaignID: campaignID,
		Seq:        seq,
		At:         time.Now().UTC(),
		Rows:       rows,
	})
}

func (l *JournalLogger) Close() error {
	err := l.moves.Close()
	if e := l.events.Close(); err == nil {
		err = e
	}
	if e := l.positions.Close(); err == nil {
		err = e
	}
	return err
}
