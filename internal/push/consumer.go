package push

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"questmap.app/internal/protocol"
)

type ConnState string

const (
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
)

// ConnEvent reports push-channel lifecycle changes. Reconnect is true for
// any connection that follows a drop; consumers treat it as "events were
// missed, resynchronize in full".
type ConnEvent struct {
	State     ConnState
	Reconnect bool
	Err       error
}

type Config struct {
	URL          string
	CampaignID   string
	Radius       float64
	Schemas      *protocol.SchemaSet
	Logger       *log.Logger
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Consumer maintains the campaign-scoped push channel: dial, SUBSCRIBE
// handshake, read loop, reconnect with capped doubling backoff. Decoded
// events and connection transitions are delivered on channels; the consumer
// never touches engine state itself.
type Consumer struct {
	cfg      Config
	clientID string

	events chan protocol.PushEvent
	conns  chan ConnEvent

	invalid    atomic.Uint64
	total      atomic.Uint64
	reconnects atomic.Uint64
	lastSeq    atomic.Uint64
}

const (
	handshakeWait = 10 * time.Second
	readWait      = 90 * time.Second
	pingEvery     = 30 * time.Second
	writeWait     = 10 * time.Second
)

func NewConsumer(cfg Config) *Consumer {
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = 500 * time.Millisecond
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Consumer{
		cfg:      cfg,
		clientID: "engine-" + uuid.NewString(),
		events:   make(chan protocol.PushEvent, 256),
		conns:    make(chan ConnEvent, 16),
	}
}

func (c *Consumer) Events() <-chan protocol.PushEvent { return c.events }
func (c *Consumer) Conns() <-chan ConnEvent           { return c.conns }

// InvalidPayloads counts dropped messages that failed schema validation or
// decoding.
func (c *Consumer) InvalidPayloads() uint64 { return c.invalid.Load() }

// TotalEvents counts accepted events.
func (c *Consumer) TotalEvents() uint64 { return c.total.Load() }

// Reconnects counts successful subscribes that followed a dropped session.
func (c *Consumer) Reconnects() uint64 { return c.reconnects.Load() }

// Run blocks until ctx is done, cycling connect/read/backoff.
func (c *Consumer) Run(ctx context.Context) {
	delay := c.cfg.ReconnectMin
	connected := false
	for {
		err := c.runOnce(ctx, connected)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, errSubscribed) {
			// The session was live; future connects are reconnects.
			connected = true
			delay = c.cfg.ReconnectMin
			continue
		}
		c.cfg.Logger.Printf("[push] connect failed, retry in %v: %v", delay, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.cfg.ReconnectMax {
			delay = c.cfg.ReconnectMax
		}
	}
}

// errSubscribed marks a cycle that completed the handshake before dropping,
// distinguishing a lost session from a connection that never came up.
var errSubscribed = errors.New("push: session dropped")

func (c *Consumer) runOnce(ctx context.Context, wasConnected bool) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := protocol.SubscribeMsg{
		Type:            protocol.TypeSubscribe,
		ProtocolVersion: protocol.Version,
		CampaignID:      c.cfg.CampaignID,
		ClientID:        c.clientID,
		Radius:          c.cfg.Radius,
		ResumeSeq:       c.lastSeq.Load(),
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	conn.SetReadDeadline(time.Now().Add(handshakeWait))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		return err
	}
	switch base.Type {
	case protocol.TypeSubscribed:
		var ack protocol.SubscribedMsg
		if err := json.Unmarshal(raw, &ack); err != nil {
			return err
		}
		c.cfg.Logger.Printf("[push] subscribed campaign=%s seq=%d role=%s", ack.CampaignID, ack.Seq, ack.ViewerRole)
	case protocol.TypeError:
		var em protocol.ErrorMsg
		_ = json.Unmarshal(raw, &em)
		return errors.New("push: subscribe rejected: " + em.Code)
	default:
		return errors.New("push: unexpected handshake message " + base.Type)
	}

	if wasConnected {
		c.reconnects.Add(1)
	}
	c.emitConn(ctx, ConnEvent{State: StateConnected, Reconnect: wasConnected})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go c.pingLoop(conn, stopPing)

	readErr := c.readLoop(ctx, conn)
	c.emitConn(ctx, ConnEvent{State: StateDisconnected, Err: readErr})
	return errSubscribed
}

func (c *Consumer) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	t := time.NewTicker(pingEvery)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(protocol.PingMsg{Type: protocol.TypePing, T: time.Now().UnixMilli()}); err != nil {
				return
			}
		}
	}
}

func (c *Consumer) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		conn.SetReadDeadline(time.Now().Add(readWait))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		base, err := protocol.DecodeBase(raw)
		if err != nil {
			c.invalid.Add(1)
			continue
		}
		switch base.Type {
		case protocol.TypeEvent:
			c.handleEvent(ctx, raw)
		case protocol.TypePong:
			// Deadline already refreshed by the read.
		case protocol.TypeError:
			var em protocol.ErrorMsg
			_ = json.Unmarshal(raw, &em)
			c.cfg.Logger.Printf("[push] server error code=%s msg=%s", em.Code, em.Message)
		default:
			c.cfg.Logger.Printf("[push] ignoring message type=%s", base.Type)
		}
	}
}

func (c *Consumer) handleEvent(ctx context.Context, raw []byte) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		c.invalid.Add(1)
		return
	}
	if err := c.cfg.Schemas.ValidateEvent(generic); err != nil {
		c.invalid.Add(1)
		c.cfg.Logger.Printf("[push] drop invalid event payload: %v", err)
		return
	}
	var msg protocol.EventMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.invalid.Add(1)
		return
	}
	if !protocol.IsKnownEvent(msg.Event.Name) {
		c.invalid.Add(1)
		c.cfg.Logger.Printf("[push] drop unknown event name=%q", msg.Event.Name)
		return
	}
	if msg.Seq > 0 {
		c.lastSeq.Store(msg.Seq)
	}
	c.total.Add(1)
	select {
	case c.events <- msg.Event:
	case <-ctx.Done():
	}
}

func (c *Consumer) emitConn(ctx context.Context, ev ConnEvent) {
	select {
	case c.conns <- ev:
	case <-ctx.Done():
	}
}
