package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"convochat/internal/pkg/logx"
)

// opsBuffer is the capacity of the Hub's operation queue.
const opsBuffer = 1024

// ErrHubClosed is returned for operations issued after the Hub stopped.
var ErrHubClosed = errors.New("chat: hub closed")

type opKind int

const (
	opRegister opKind = iota
	opUnregister
	opSubscribe
	opUnsubscribe
	opSend
	opBroadcast
)

type hubOp struct {
	kind           opKind
	client         *Client
	conversationID string
	frame          []byte
	env            Envelope
	reply          chan bool
}

// Hub owns the room table and every client's outbound queue. All mutations and deliveries go
// through one operation queue drained by Run, which makes Run the single ordering point: a
// connection sees frames in the order their operations were queued, and a broadcast reaches
// exactly the subscribers present when it was queued.
type Hub struct {
	ops  chan hubOp
	done chan struct{}

	// Closed once the relay is subscribed, or at start without one.
	ready chan struct{}

	// Owned by Run.
	clients map[*Client]map[string]struct{}
	rooms   map[string]map[*Client]struct{}

	relay  Relay
	logger zerolog.Logger
}

// NewHub returns a Hub. relay may be nil for a single instance deployment.
func NewHub(relay Relay) *Hub {
	return &Hub{
		ops:     make(chan hubOp, opsBuffer),
		done:    make(chan struct{}),
		ready:   make(chan struct{}),
		clients: make(map[*Client]map[string]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		relay:   relay,
		logger:  logx.Component("hub"),
	}
}

// Run processes operations until ctx is cancelled, then closes every client queue. With a relay,
// operations are held until the relay is subscribed; a relay that fails before that stops the Hub.
func (h *Hub) Run(ctx context.Context) {
	defer h.stop()

	if !h.startRelay(ctx) {
		return
	}

	h.logger.Info().Bool("relay", h.relay != nil).Msg("Hub started.")

	for {
		select {
		case <-ctx.Done():
			return
		case op := <-h.ops:
			h.apply(op)
		}
	}
}

func (h *Hub) startRelay(ctx context.Context) bool {
	if h.relay == nil {
		close(h.ready)
		return true
	}

	var once sync.Once
	ready := func() { once.Do(func() { close(h.ready) }) }
	failed := make(chan error, 1)

	go func() {
		err := h.relay.Run(ctx, ready, func(env Envelope) {
			if err := h.enqueue(ctx, hubOp{kind: opBroadcast, env: env}); err != nil {
				h.logger.Debug().Err(err).Msg("Dropped relayed envelope.")
			}
		})
		if err != nil && ctx.Err() == nil {
			h.logger.Error().Err(err).Msg("Relay stopped unexpectedly.")
		}
		failed <- err
	}()

	select {
	case <-h.ready:
		return true
	case <-failed:
		select {
		case <-h.ready:
			return true
		default:
			return false
		}
	case <-ctx.Done():
		return false
	}
}

// stop closes done, applies whatever was accepted before that, and closes every client queue.
func (h *Hub) stop() {
	close(h.done)

drain:
	for {
		select {
		case op := <-h.ops:
			h.apply(op)
		default:
			break drain
		}
	}

	for c := range h.clients {
		close(c.send)
	}
	h.clients = nil
	h.rooms = nil

	h.logger.Info().Msg("Hub stopped.")
}

func (h *Hub) apply(op hubOp) {
	switch op.kind {
	case opRegister:
		if _, ok := h.clients[op.client]; !ok {
			h.clients[op.client] = make(map[string]struct{})
		}

	case opUnregister:
		h.drop(op.client)

	case opSubscribe:
		op.reply <- h.subscribe(op.client, op.conversationID)

	case opUnsubscribe:
		h.unsubscribe(op.client, op.conversationID)

	case opSend:
		if _, ok := h.clients[op.client]; ok {
			h.push(op.client, op.frame)
		}

	case opBroadcast:
		h.deliver(op.env)
	}
}

func (h *Hub) subscribe(c *Client, conversationID string) bool {
	joined, ok := h.clients[c]
	if !ok {
		return false
	}
	if _, already := joined[conversationID]; already {
		return false
	}

	room, ok := h.rooms[conversationID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[conversationID] = room
	}

	room[c] = struct{}{}
	joined[conversationID] = struct{}{}
	return true
}

func (h *Hub) unsubscribe(c *Client, conversationID string) {
	if joined, ok := h.clients[c]; ok {
		delete(joined, conversationID)
	}

	if room, ok := h.rooms[conversationID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// drop removes c from every room and closes its queue, which ends its write pump.
func (h *Hub) drop(c *Client) {
	joined, ok := h.clients[c]
	if !ok {
		return
	}

	for conversationID := range joined {
		h.unsubscribe(c, conversationID)
	}
	delete(h.clients, c)

	close(c.send)
}

func (h *Hub) deliver(env Envelope) {
	switch env.Scope {
	case ScopeRoom:
		for c := range h.rooms[env.ConversationID] {
			h.push(c, env.Frame)
		}

	case ScopeAll:
		for c := range h.clients {
			h.push(c, env.Frame)
		}

	default:
		h.logger.Warn().Str("scope", env.Scope).Msg("Envelope with unknown scope ignored.")
	}
}

// push queues frame without blocking. A client that cannot keep up is disconnected.
func (h *Hub) push(c *Client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		h.logger.Warn().
			Str("conn_id", c.ID).
			Int("queue_len", len(c.send)).
			Msg("Client send queue full, disconnecting.")
		h.drop(c)
	}
}

// enqueue returns nil only for an op that will be applied. An op that lands in the buffer after
// done is closed may miss the final drain, so it is reported as ErrHubClosed.
func (h *Hub) enqueue(ctx context.Context, op hubOp) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}

	select {
	case h.ops <- op:
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-h.done:
		return ErrHubClosed
	default:
		return nil
	}
}

// Register adds a live connection. Only registered clients receive frames.
func (h *Hub) Register(ctx context.Context, c *Client) error {
	return h.enqueue(ctx, hubOp{kind: opRegister, client: c})
}

// Unregister removes c from all rooms and closes its queue. Repeated calls are no-ops.
func (h *Hub) Unregister(ctx context.Context, c *Client) error {
	return h.enqueue(ctx, hubOp{kind: opUnregister, client: c})
}

// Subscribe adds c to the room of conversationID and waits until it is effective.
// It reports whether the subscription is new.
func (h *Hub) Subscribe(ctx context.Context, c *Client, conversationID string) (bool, error) {
	reply := make(chan bool, 1)
	if err := h.enqueue(ctx, hubOp{kind: opSubscribe, client: c, conversationID: conversationID, reply: reply}); err != nil {
		return false, err
	}

	// An accepted op is always applied, by Run or by the final drain in stop.
	select {
	case added := <-reply:
		return added, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Unsubscribe removes c from the room of conversationID.
func (h *Hub) Unsubscribe(ctx context.Context, c *Client, conversationID string) error {
	return h.enqueue(ctx, hubOp{kind: opUnsubscribe, client: c, conversationID: conversationID})
}

// Send queues frame for c alone.
func (h *Hub) Send(ctx context.Context, c *Client, frame []byte) error {
	return h.enqueue(ctx, hubOp{kind: opSend, client: c, frame: frame})
}

// Broadcast delivers frame to the subscribers of conversationID.
func (h *Hub) Broadcast(ctx context.Context, conversationID string, frame []byte) error {
	return h.publish(ctx, Envelope{Scope: ScopeRoom, ConversationID: conversationID, Frame: frame})
}

// BroadcastAll delivers frame to every live connection.
func (h *Hub) BroadcastAll(ctx context.Context, frame []byte) error {
	return h.publish(ctx, Envelope{Scope: ScopeAll, Frame: frame})
}

func (h *Hub) publish(ctx context.Context, env Envelope) error {
	if h.relay != nil {
		// Publishing before the relay is subscribed would lose env on this instance.
		select {
		case <-h.ready:
		case <-h.done:
			return ErrHubClosed
		case <-ctx.Done():
			return ctx.Err()
		}
		return h.relay.Publish(ctx, env)
	}
	return h.enqueue(ctx, hubOp{kind: opBroadcast, env: env})
}
