package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version       int    `json:"version"`
	CampaignID    string `json:"campaign_id"`
	Seq           uint64 `json:"seq"`
	SavedAtUnixMs int64  `json:"saved_at_unix_ms"`
}

// EngineStateV1 is the resumable view of one campaign's live map state.
// It carries everything needed to warm-start the engine without a full
// refetch; transient state (in-flight fetches, connection status) is
// deliberately not captured.
type EngineStateV1 struct {
	Header Header `json:"header"`

	Map      *MapV1      `json:"map,omitempty"`
	TileSets []TileSetV1 `json:"tile_sets,omitempty"`
	SourceID string      `json:"source_id,omitempty"`

	Roster    []RosterRowV1 `json:"roster,omitempty"`
	Positions []PositionV1  `json:"positions,omitempty"`
	Locations []LocationV1  `json:"locations,omitempty"`
	Trails    []TrailV1     `json:"trails,omitempty"`

	SelectedToken string   `json:"selected_token,omitempty"`
	Viewer        ViewerV1 `json:"viewer"`

	Counters CountersV1 `json:"counters"`
}

type MapV1 struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	WidthPixels    int     `json:"width_pixels"`
	HeightPixels   int     `json:"height_pixels"`
	MetersPerPixel float64 `json:"meters_per_pixel,omitempty"`

	HasBounds bool    `json:"has_bounds"`
	North     float64 `json:"north,omitempty"`
	South     float64 `json:"south,omitempty"`
	East      float64 `json:"east,omitempty"`
	West      float64 `json:"west,omitempty"`
}

type TileSetV1 struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	BaseURL     string `json:"base_url"`
	Attribution string `json:"attribution,omitempty"`
	MinZoom     int    `json:"min_zoom"`
	MaxZoom     int    `json:"max_zoom"`
	TileSize    int    `json:"tile_size"`
	WrapX       bool   `json:"wrap_x,omitempty"`
}

type RosterRowV1 struct {
	MembershipID        string   `json:"membership_id"`
	CharacterID         string   `json:"character_id,omitempty"`
	UserID              string   `json:"user_id,omitempty"`
	Name                string   `json:"name"`
	Role                string   `json:"role"`
	Status              string   `json:"status,omitempty"`
	Visibility          string   `json:"visibility,omitempty"`
	HitPoints           int      `json:"hp"`
	MaxHitPoints        int      `json:"max_hp"`
	Conditions          []string `json:"conditions,omitempty"`
	CanViewHistory      bool     `json:"can_view_history,omitempty"`
	LastLocatedAtUnixMs int64    `json:"last_located_at_unix_ms,omitempty"`
}

type PositionV1 struct {
	PlayerID        string  `json:"player_id"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	LocatedAtUnixMs int64   `json:"located_at_unix_ms,omitempty"`
}

type LocationV1 struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Kind  string  `json:"kind,omitempty"`
	Spawn bool    `json:"spawn,omitempty"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

type TrailV1 struct {
	PlayerID        string       `json:"player_id"`
	Points          [][2]float64 `json:"points,omitempty"`
	Hidden          bool         `json:"hidden,omitempty"`
	FetchedAtUnixMs int64        `json:"fetched_at_unix_ms,omitempty"`
}

type ViewerV1 struct {
	UserID       string `json:"user_id,omitempty"`
	MembershipID string `json:"membership_id,omitempty"`
	Admin        bool   `json:"admin,omitempty"`
	DM           bool   `json:"dm,omitempty"`
	CoDM         bool   `json:"co_dm,omitempty"`
}

type CountersV1 struct {
	Refreshes  uint64 `json:"refreshes"`
	PushEvents uint64 `json:"push_events"`
	MovesOK    uint64 `json:"moves_ok"`
	MovesFail  uint64 `json:"moves_fail"`
}

const suffix = ".state.zst"

// FileName returns the snapshot file name for a given frame sequence.
func FileName(seq uint64) string {
	return fmt.Sprintf("%d%s", seq, suffix)
}

// WriteState writes the snapshot as a zstd stream: one JSON header line
// followed by a gob body. The file appears atomically via rename.
func WriteState(path string, state EngineStateV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	err = func() error {
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return err
		}
		bw := bufio.NewWriterSize(enc, 64*1024)

		hb, _ := json.Marshal(state.Header)
		if _, err := bw.Write(hb); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
		if err := gob.NewEncoder(bw).Encode(&state); err != nil {
			return fmt.Errorf("gob encode: %w", err)
		}
		if err := bw.Flush(); err != nil {
			return err
		}
		return enc.Close()
	}()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func ReadState(path string) (EngineStateV1, error) {
	var state EngineStateV1
	f, err := os.Open(path)
	if err != nil {
		return state, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return state, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// Header line duplicates what the gob body carries; skip it.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&state); err != nil {
		return state, fmt.Errorf("gob decode: %w", err)
	}
	return state, nil
}

// ReadHeader decodes only the JSON header line, cheap enough to run over a
// whole snapshot directory.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReaderSize(dec, 4*1024).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	return h, nil
}

// Latest returns the snapshot path with the highest sequence in dir, or
// ok=false when the directory holds none.
func Latest(dir string) (string, bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	best := ""
	var bestSeq uint64
	found := false
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		seq, err := strconv.ParseUint(strings.TrimSuffix(name, suffix), 10, 64)
		if err != nil {
			continue
		}
		if !found || seq > bestSeq {
			best, bestSeq, found = filepath.Join(dir, name), seq, true
		}
	}
	return best, found, nil
}

// Prune removes all but the keep newest snapshots in dir.
func Prune(dir string, keep int) error {
	if keep < 1 {
		keep = 1
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	type seqPath struct {
		seq  uint64
		path string
	}
	var snaps []seqPath
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		seq, err := strconv.ParseUint(strings.TrimSuffix(name, suffix), 10, 64)
		if err != nil {
			continue
		}
		snaps = append(snaps, seqPath{seq, filepath.Join(dir, name)})
	}
	if len(snaps) <= keep {
		return nil
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].seq > snaps[j].seq })
	for _, s := range snaps[keep:] {
		if err := os.Remove(s.path); err != nil {
			return err
		}
	}
	return nil
}
