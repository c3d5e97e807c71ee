package protocol

import "time"

// SUBSCRIBE (client -> server)
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CampaignID      string `json:"campaign_id"`
	ClientID        string `json:"client_id"`
	Radius          float64 `json:"radius,omitempty"`
	ResumeSeq       uint64 `json:"resume_seq,omitempty"`
}

// SUBSCRIBED (server -> client)
type SubscribedMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	CampaignID      string  `json:"campaign_id"`
	Seq             uint64  `json:"seq"`
	Radius          float64 `json:"radius,omitempty"`
	ViewerRole      string  `json:"viewer_role,omitempty"`
}

// EVENT (server -> client)
type EventMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Seq             uint64    `json:"seq"`
	Event           PushEvent `json:"event"`
}

// PushEvent names the affected player or spawn. Consumers treat it as a
// refresh trigger only; payload completeness is deliberately not relied on.
type PushEvent struct {
	Name       string    `json:"name"`
	CampaignID string    `json:"campaign_id"`
	PlayerID   string    `json:"player_id,omitempty"`
	SpawnID    string    `json:"spawn_id,omitempty"`
	At         time.Time `json:"at,omitempty"`
}

type PingMsg struct {
	Type string `json:"type"`
	T    int64  `json:"t,omitempty"`
}

type PongMsg struct {
	Type string `json:"type"`
	T    int64  `json:"t,omitempty"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}
