package tiles

import (
	"errors"
	"testing"

	"questmap.app/internal/geo"
)

func testBounds() *geo.WorldBounds {
	return &geo.WorldBounds{North: 0, South: -2048, East: 4096, West: 0}
}

func TestBuildResolutionLadder(t *testing.T) {
	cfg := Config{ID: "base", BaseURL: "https://tiles.example/{z}/{x}/{y}.png", MinZoom: 2, MaxZoom: 6}
	src, err := Build(cfg, testBounds())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got, want := len(src.Resolutions), cfg.MaxZoom-cfg.MinZoom+1; got != want {
		t.Fatalf("resolutions=%d want %d", got, want)
	}
	for i := 1; i < len(src.Resolutions); i++ {
		if src.Resolutions[i] >= src.Resolutions[i-1] {
			t.Fatalf("resolutions not decreasing at %d: %v", i, src.Resolutions)
		}
	}
	// worldWidth/tileSize/2^z at the first rung.
	want := 4096.0 / 256.0 / 4.0
	if src.Resolutions[0] != want {
		t.Fatalf("res[0]=%v want %v", src.Resolutions[0], want)
	}
}

func TestBuildClampsZoom(t *testing.T) {
	cfg := Config{ID: "base", BaseURL: "https://tiles.example/{z}/{x}/{y}.png", MinZoom: -3, MaxZoom: -1}
	src, err := Build(cfg, testBounds())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if src.MinZoom != 0 || src.MaxZoom != 0 {
		t.Fatalf("zoom=[%d,%d] want [0,0]", src.MinZoom, src.MaxZoom)
	}
	if len(src.Resolutions) != 1 {
		t.Fatalf("resolutions=%d want 1", len(src.Resolutions))
	}
}

func TestBuildDefaults(t *testing.T) {
	cfg := Config{ID: "base", BaseURL: "https://tiles.example/{z}/{x}/{y}.png", MaxZoom: 4}
	src, err := Build(cfg, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if src.TileSize != DefaultTileSize {
		t.Fatalf("tileSize=%d want %d", src.TileSize, DefaultTileSize)
	}
	def := geo.DefaultExtent()
	if src.Extent != def {
		t.Fatalf("extent=%+v want default", src.Extent)
	}
	if src.Origin.X != def.MinX || src.Origin.Y != def.MaxY {
		t.Fatalf("origin=%+v want top-left anchor", src.Origin)
	}
}

func TestBuildRejectsEmptyURL(t *testing.T) {
	if _, err := Build(Config{ID: "bad"}, testBounds()); err == nil {
		t.Fatalf("expected error for empty base URL")
	}
}

func TestPickEmptyList(t *testing.T) {
	if _, err := Pick(nil, ""); !errors.Is(err, ErrNoImagery) {
		t.Fatalf("err=%v want ErrNoImagery", err)
	}
}

func TestPickByID(t *testing.T) {
	configs := []Config{
		{ID: "parchment", BaseURL: "https://tiles.example/p/{z}/{x}/{y}.png"},
		{ID: "night", BaseURL: "https://tiles.example/n/{z}/{x}/{y}.png"},
	}
	c, err := Pick(configs, "night")
	if err != nil || c.ID != "night" {
		t.Fatalf("pick night: %+v %v", c, err)
	}
	c, err = Pick(configs, "missing")
	if err != nil || c.ID != "parchment" {
		t.Fatalf("pick fallback: %+v %v", c, err)
	}
}

func TestTileURL(t *testing.T) {
	cfg := Config{ID: "base", BaseURL: "https://tiles.example/{z}/{x}/{y}.png", MaxZoom: 2}
	src, err := Build(cfg, testBounds())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got, want := src.TileURL(2, 1, 3), "https://tiles.example/2/1/3.png"; got != want {
		t.Fatalf("url=%q want %q", got, want)
	}
}
