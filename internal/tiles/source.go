package tiles

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"questmap.app/internal/geo"
)

const DefaultTileSize = 256

// ErrNoImagery reports that a campaign has no tile sets configured at all.
// Callers render an empty base layer with a notice instead of a degenerate
// source.
var ErrNoImagery = errors.New("tiles: no tile sets configured")

type Config struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	BaseURL     string `json:"baseUrl"`
	Attribution string `json:"attribution,omitempty"`
	MinZoom     int    `json:"minZoom,omitempty"`
	MaxZoom     int    `json:"maxZoom,omitempty"`
	TileSize    int    `json:"tileSize,omitempty"`
	WrapX       bool   `json:"wrapX,omitempty"`
}

type Source struct {
	Config      Config
	Extent      geo.Extent
	Origin      geo.Point
	Resolutions []float64
	TileSize    int
	MinZoom     int
	MaxZoom     int
}

// Pick selects the tile set to render: the one matching id when present,
// otherwise the first configured set.
func Pick(configs []Config, id string) (Config, error) {
	if len(configs) == 0 {
		return Config{}, ErrNoImagery
	}
	if id != "" {
		for _, c := range configs {
			if c.ID == id {
				return c, nil
			}
		}
	}
	return configs[0], nil
}

// Build derives the zoom resolution ladder and origin-anchored grid for one
// tile set. The ladder depends on the world bounds, so it is rebuilt per map
// instance and never shared across worlds.
func Build(cfg Config, bounds *geo.WorldBounds) (*Source, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("tiles: tile set %q has no base URL", cfg.ID)
	}
	tileSize := cfg.TileSize
	if tileSize < 1 {
		tileSize = DefaultTileSize
	}
	minZoom := cfg.MinZoom
	if minZoom < 0 {
		minZoom = 0
	}
	maxZoom := cfg.MaxZoom
	if maxZoom < minZoom {
		maxZoom = minZoom
	}
	extent := geo.BoundsToExtent(bounds)
	base := extent.Width() / float64(tileSize)
	resolutions := make([]float64, 0, maxZoom-minZoom+1)
	for z := minZoom; z <= maxZoom; z++ {
		resolutions = append(resolutions, math.Ldexp(base, -z))
	}
	return &Source{
		Config:      cfg,
		Extent:      extent,
		Origin:      geo.Point{X: extent.MinX, Y: extent.MaxY},
		Resolutions: resolutions,
		TileSize:    tileSize,
		MinZoom:     minZoom,
		MaxZoom:     maxZoom,
	}, nil
}

// TileURL expands the {z}/{x}/{y} placeholders of the set's URL template.
func (s *Source) TileURL(z, x, y int) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
	)
	return r.Replace(s.Config.BaseURL)
}
