package engine

import "time"

// Journal receives durable records of what the engine saw and did.
// Implemented in internal/persistence/journal. Writers must not block the
// engine loop; implementations queue internally and drop under pressure.
type Journal interface {
	RecordPositions(campaignID string, seq uint64, rows []PositionRecord) error
	RecordMove(rec MoveRecord) error
	RecordEvent(rec EventRecord) error
}

type PositionRecord struct {
	PlayerID  string
	X, Y      float64
	LocatedAt time.Time
}

type MoveRecord struct {
	CampaignID string
	PlayerID   string
	Mode       string
	Reason     string
	X, Y       float64
	LocationID string
	SpawnID    string
	OK         bool
	Err        string
	At         time.Time
}

type EventRecord struct {
	CampaignID string
	Seq        uint64
	Name       string
	PlayerID   string
	SpawnID    string
	At         time.Time
}
