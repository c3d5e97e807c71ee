// Package campaignsim is an in-memory stand-in for the campaign service:
// the §-style REST endpoints the engine consumes plus the push channel it
// subscribes to. It exists for development runs and end-to-end tests; it is
// deliberately sloppy about JSON field naming, the way the real service is,
// so the client's normalization boundary gets exercised.
package campaignsim

import (
	"encoding/json"
	"log"
	"math"
	"net/http"
	"os"
	"sync"
	"time"

	"questmap.app/internal/campaign"
	"questmap.app/internal/protocol"
)

type MapDef struct {
	ID             string
	Name           string
	WidthPixels    int
	HeightPixels   int
	MetersPerPixel float64
	North          float64
	South          float64
	East           float64
	West           float64
}

type TileSetDef struct {
	ID          string
	Name        string
	URLTemplate string
	Attribution string
	MinZoom     int
	MaxZoom     int
	TileSize    int
}

type LocationDef struct {
	ID    string
	Name  string
	Kind  string
	Spawn bool
	X, Y  float64
}

// Member is one campaign membership with its live token state. Trail holds
// the full movement history, newest point last.
type Member struct {
	MembershipID string
	CharacterID  string
	UserID       string
	Name         string
	Avatar       string
	Role         campaign.MembershipRole
	Status       string
	Visibility   campaign.VisibilityState
	HitPoints    int
	MaxHitPoints int
	Conditions   []string
	ShareTrail   bool
	Placed       bool
	X, Y         float64
	LocatedAt    time.Time
	Trail        [][2]float64
}

type Campaign struct {
	ID        string
	Name      string
	Map       MapDef
	TileSets  []TileSetDef
	Members   []*Member
	Locations []LocationDef

	seq uint64
}

func (c *Campaign) member(playerID string) *Member {
	for _, m := range c.Members {
		if m.MembershipID == playerID {
			return m
		}
	}
	return nil
}

func (c *Campaign) memberByUser(userID string) *Member {
	for _, m := range c.Members {
		if m.UserID == userID {
			return m
		}
	}
	return nil
}

func (c *Campaign) location(id string) *LocationDef {
	for i := range c.Locations {
		if c.Locations[i].ID == id {
			return &c.Locations[i]
		}
	}
	return nil
}

// Server holds the simulated campaigns behind one mutex. All request
// handlers and mutators take the lock; the push hub is fed marshaled frames
// and never touches campaign state.
type Server struct {
	log *log.Logger

	mu        sync.Mutex
	campaigns map[string]*Campaign
	tokens    map[string]string

	hub *hub
}

func New(logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stdout, "[campaignsim] ", log.LstdFlags|log.Lmicroseconds)
	}
	s := &Server{
		log:       logger,
		campaigns: map[string]*Campaign{},
		tokens:    map[string]string{},
	}
	s.hub = newHub(logger, s.campaignExists)
	return s
}

func (s *Server) AddCampaign(c *Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = c
}

// AddToken maps a bearer token to a user id.
func (s *Server) AddToken(token, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = userID
}

func (s *Server) campaignExists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.campaigns[id]
	return ok
}

// Handler serves the REST endpoints and the push channel at /push.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /campaigns/{id}/map", s.handleMap)
	mux.HandleFunc("GET /campaigns/{id}/tilesets", s.handleTileSets)
	mux.HandleFunc("GET /campaigns/{id}/characters", s.handleRoster)
	mux.HandleFunc("GET /campaigns/{id}/locations", s.handleLocations)
	mux.HandleFunc("GET /campaigns/{id}/players/visible", s.handleVisible)
	mux.HandleFunc("GET /campaigns/{id}/players/{playerId}/trail", s.handleTrail)
	mux.HandleFunc("POST /campaigns/{id}/players/{playerId}/move", s.handleMove)
	mux.HandleFunc("/push", s.hub.handler)
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	return mux
}

// MovePlayer applies an out-of-band movement (another player's client, a DM
// tool) and broadcasts the push event, so tests and demos can make the world
// move under the engine.
func (s *Server) MovePlayer(campaignID, playerID string, x, y float64, teleport bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.campaigns[campaignID]
	if c == nil {
		return false
	}
	m := c.member(playerID)
	if m == nil {
		return false
	}
	s.applyMove(c, m, x, y, teleport)
	return true
}

// UpdateMember mutates one membership under the server lock. The caller's
// fn must not retain the pointer.
func (s *Server) UpdateMember(campaignID, playerID string, fn func(*Member)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.campaigns[campaignID]
	if c == nil {
		return false
	}
	m := c.member(playerID)
	if m == nil {
		return false
	}
	fn(m)
	return true
}

// TouchSpawn broadcasts a spawn-updated event, or removes the location and
// broadcasts spawn-deleted.
func (s *Server) TouchSpawn(campaignID, spawnID string, deleted bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.campaigns[campaignID]
	if c == nil {
		return false
	}
	if c.location(spawnID) == nil {
		return false
	}
	name := protocol.EventSpawnUpdated
	if deleted {
		name = protocol.EventSpawnDeleted
		out := c.Locations[:0]
		for _, loc := range c.Locations {
			if loc.ID != spawnID {
				out = append(out, loc)
			}
		}
		c.Locations = out
	}
	s.emit(c, name, "", spawnID)
	return true
}

func (s *Server) applyMove(c *Campaign, m *Member, x, y float64, teleport bool) {
	m.Placed = true
	m.X, m.Y = x, y
	m.LocatedAt = time.Now().UTC()
	m.Trail = append(m.Trail, [2]float64{x, y})
	name := protocol.EventPlayerMoved
	if teleport {
		name = protocol.EventPlayerTeleported
	}
	s.emit(c, name, m.MembershipID, "")
}

// emit assigns the next campaign sequence number and hands the marshaled
// frame to the hub. Callers hold s.mu.
func (s *Server) emit(c *Campaign, name, playerID, spawnID string) {
	c.seq++
	msg := protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Seq:             c.seq,
		Event: protocol.PushEvent{
			Name:       name,
			CampaignID: c.ID,
			PlayerID:   playerID,
			SpawnID:    spawnID,
			At:         time.Now().UTC(),
		},
	}
	b, err := json.Marshal(msg)
	if err != nil {
		s.log.Printf("marshal event: %v", err)
		return
	}
	s.hub.broadcast(c.ID, c.seq, b)
}

func dist(ax, ay, bx, by float64) float64 {
	return math.Hypot(ax-bx, ay-by)
}
