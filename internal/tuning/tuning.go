package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	API     API     `yaml:"api"`
	Push    Push    `yaml:"push"`
	Refresh Refresh `yaml:"refresh"`
	Trail   Trail   `yaml:"trail"`

	SnapshotDir     string `yaml:"snapshot_dir"`
	SnapshotEveryMs int    `yaml:"snapshot_every_ms"`
	JournalPath     string `yaml:"journal_path"`
	SchemaDir       string `yaml:"schema_dir"`
}

type API struct {
	BaseURL   string `yaml:"base_url"`
	Token     string `yaml:"token"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type Push struct {
	URL            string `yaml:"url"`
	ReconnectMinMs int    `yaml:"reconnect_min_ms"`
	ReconnectMaxMs int    `yaml:"reconnect_max_ms"`
}

type Refresh struct {
	PollIntervalMs int     `yaml:"poll_interval_ms"`
	Radius         float64 `yaml:"radius"`
}

type Trail struct {
	TTLMs  int     `yaml:"ttl_ms"`
	Radius float64 `yaml:"radius"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		API:             API{TimeoutMs: 30000},
		Push:            Push{ReconnectMinMs: 500, ReconnectMaxMs: 15000},
		Refresh:         Refresh{PollIntervalMs: 60000, Radius: 1024},
		Trail:           Trail{TTLMs: 60000, Radius: 1024},
		SnapshotDir:     "snapshots",
		SnapshotEveryMs: 120000,
		SchemaDir:       "schemas",
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.Push.ReconnectMinMs <= 0 || t.Push.ReconnectMaxMs < t.Push.ReconnectMinMs {
		return fmt.Errorf("tuning: reconnect window %d..%dms invalid", t.Push.ReconnectMinMs, t.Push.ReconnectMaxMs)
	}
	if t.Trail.TTLMs <= 0 {
		return fmt.Errorf("tuning: trail ttl %dms invalid", t.Trail.TTLMs)
	}
	if t.Refresh.PollIntervalMs < 0 {
		return fmt.Errorf("tuning: poll interval %dms invalid", t.Refresh.PollIntervalMs)
	}
	return nil
}

func (t Tuning) TrailTTL() time.Duration {
	return time.Duration(t.Trail.TTLMs) * time.Millisecond
}

func (t Tuning) PollInterval() time.Duration {
	return time.Duration(t.Refresh.PollIntervalMs) * time.Millisecond
}

func (t Tuning) SnapshotEvery() time.Duration {
	return time.Duration(t.SnapshotEveryMs) * time.Millisecond
}

func (t Tuning) ReconnectWindow() (time.Duration, time.Duration) {
	return time.Duration(t.Push.ReconnectMinMs) * time.Millisecond,
		time.Duration(t.Push.ReconnectMaxMs) * time.Millisecond
}

func (t Tuning) APITimeout() time.Duration {
	return time.Duration(t.API.TimeoutMs) * time.Millisecond
}
