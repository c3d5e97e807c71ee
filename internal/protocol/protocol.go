package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeSubscribe  = "SUBSCRIBE"
	TypeSubscribed = "SUBSCRIBED"
	TypeEvent      = "EVENT"
	TypePing       = "PING"
	TypePong       = "PONG"
	TypeError      = "ERROR"
)

// Campaign push events. Each one is a refresh trigger on the consumer side:
// the payload names the affected player, but state is always re-fetched in
// full rather than patched from it.
const (
	EventPlayerMoved      = "player-moved"
	EventPlayerTeleported = "player-teleported"
	EventSpawnUpdated     = "spawn-updated"
	EventSpawnDeleted     = "spawn-deleted"
)

var knownEvents = map[string]struct{}{
	EventPlayerMoved:      {},
	EventPlayerTeleported: {},
	EventSpawnUpdated:     {},
	EventSpawnDeleted:     {},
}

func IsKnownEvent(name string) bool {
	_, ok := knownEvents[name]
	return ok
}

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
