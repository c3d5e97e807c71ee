package campaignsim

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"questmap.app/internal/protocol"
)

const (
	ringSize = 64
	outQueue = 128
)

type frame struct {
	seq uint64
	b   []byte
}

type ring struct {
	seq    uint64
	frames []frame
}

type subscriber struct {
	id         string
	campaignID string
	out        chan []byte
}

// hub fans marshaled event frames out to push subscribers. Each campaign
// keeps a short replay ring so a reconnect with resume_seq can pick up
// missed frames without a full resync.
type hub struct {
	log    *log.Logger
	exists func(campaignID string) bool

	upgrader websocket.Upgrader

	mu    sync.Mutex
	subs  map[string]*subscriber
	rings map[string]*ring
}

func newHub(logger *log.Logger, exists func(string) bool) *hub {
	return &hub{
		log:    logger,
		exists: exists,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		subs:  map[string]*subscriber{},
		rings: map[string]*ring{},
	}
}

// broadcast appends the frame to the campaign ring and offers it to every
// subscriber. Slow subscribers lose frames; the engine notices the seq gap
// and resyncs over REST.
func (h *hub) broadcast(campaignID string, seq uint64, b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.rings[campaignID]
	if r == nil {
		r = &ring{}
		h.rings[campaignID] = r
	}
	r.seq = seq
	r.frames = append(r.frames, frame{seq: seq, b: b})
	if len(r.frames) > ringSize {
		r.frames = r.frames[len(r.frames)-ringSize:]
	}
	for _, sub := range h.subs {
		if sub.campaignID != campaignID {
			continue
		}
		select {
		case sub.out <- b:
		default:
		}
	}
}

func (h *hub) handler(rw http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := h.handshake(conn)
	if sub == nil {
		return
	}
	defer h.detach(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Writer goroutine.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case b, ok := <-sub.out:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	// Reader loop.
	for {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			cancel()
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		if base.Type != protocol.TypePing {
			continue
		}
		var ping protocol.PingMsg
		if err := json.Unmarshal(msg, &ping); err != nil {
			continue
		}
		pong, err := json.Marshal(protocol.PongMsg{Type: protocol.TypePong, T: ping.T})
		if err != nil {
			continue
		}
		select {
		case sub.out <- pong:
		default:
		}
	}
}

func (h *hub) handshake(conn *websocket.Conn) *subscriber {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeSubscribe {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
		return nil
	}
	var req protocol.SubscribeMsg
	if err := json.Unmarshal(msg, &req); err != nil {
		return nil
	}
	if req.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil
	}
	if !h.exists(req.CampaignID) {
		_ = writeWS(conn, protocol.ErrorMsg{
			Type:            protocol.TypeError,
			ProtocolVersion: protocol.Version,
			Code:            protocol.ErrCampaignNotFound,
			Message:         "no such campaign",
		})
		return nil
	}

	sub := &subscriber{
		id:         uuid.NewString(),
		campaignID: req.CampaignID,
		out:        make(chan []byte, outQueue),
	}

	h.mu.Lock()
	var seq uint64
	if r := h.rings[req.CampaignID]; r != nil {
		seq = r.seq
		// Replay what the ring still holds past the resume point. The
		// buffered out channel is larger than the ring, so this never blocks.
		if req.ResumeSeq > 0 {
			for _, f := range r.frames {
				if f.seq > req.ResumeSeq {
					sub.out <- f.b
				}
			}
		}
	}
	h.subs[sub.id] = sub
	h.mu.Unlock()

	if err := writeWS(conn, protocol.SubscribedMsg{
		Type:            protocol.TypeSubscribed,
		ProtocolVersion: protocol.Version,
		CampaignID:      req.CampaignID,
		Seq:             seq,
	}); err != nil {
		h.detach(sub)
		return nil
	}
	h.log.Printf("subscriber %s attached to %s (seq=%d resume=%d)", sub.id, req.CampaignID, seq, req.ResumeSeq)
	return sub
}

func (h *hub) detach(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub.id)
	h.mu.Unlock()
}

func writeWS(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
