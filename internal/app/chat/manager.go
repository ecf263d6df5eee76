package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"convochat/internal/app/store"
	"convochat/internal/app/user"
	"convochat/internal/configs"
	"convochat/internal/pkg/errs"
	"convochat/internal/pkg/logx"
	"convochat/internal/pkg/randx"
)

// eventTimeout bounds the store and credential calls made for one inbound event.
const eventTimeout = 10 * time.Second

// Store is what the core needs from durable storage.
type Store interface {
	store.MessageStore
	store.MembershipStore
}

// Options tunes the core. Zero values select the defaults.
type Options struct {
	HistoryLimit          int
	MaxContentBytes       int
	MaxRoomsPerConnection int
	RequireRoomForSend    bool

	// MessageRate is the sustained send_message rate per connection; <= 0 disables the limit.
	MessageRate  float64
	MessageBurst int

	SendQueueSize int
}

// OptionsFromConfig maps the application config onto core options.
func OptionsFromConfig(cfg *configs.AppConfig) Options {
	return Options{
		HistoryLimit:          cfg.HistoryLimit,
		MaxContentBytes:       cfg.MaxContentBytes,
		MaxRoomsPerConnection: cfg.MaxRoomsPerConnection,
		RequireRoomForSend:    cfg.RequireRoomForSend,
		MessageRate:           cfg.MessageRate,
		MessageBurst:          cfg.MessageBurst,
	}
}

// Manager drives each connection through connect, join, join_conversation, send_message and
// disconnect. Handler failures become error events for the offending connection and never
// close it.
type Manager struct {
	hub      *Hub
	sessions *SessionRegistry
	auth     *AuthGate
	rooms    *RoomService
	messages *MessageService
	opts     Options

	// ctx outlives individual connections so a disconnect does not abort an issued write.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger zerolog.Logger
}

// NewManager wires the core and starts the Hub.
func NewManager(st Store, verifier CredentialVerifier, hub *Hub, opts Options) *Manager {
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = DefaultSendQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	sessions := NewSessionRegistry()
	messages := NewMessageService(st, hub, opts.HistoryLimit, opts.MaxContentBytes)

	m := &Manager{
		hub:      hub,
		sessions: sessions,
		auth:     NewAuthGate(verifier, sessions),
		rooms:    NewRoomService(st, messages, hub, opts.MaxRoomsPerConnection),
		messages: messages,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logx.Component("manager"),
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		hub.Run(ctx)
	}()

	return m
}

// Sessions exposes the registry of authenticated connections.
func (m *Manager) Sessions() *SessionRegistry {
	return m.sessions
}

func (m *Manager) newLimiter() *rate.Limiter {
	if m.opts.MessageRate <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}

	burst := m.opts.MessageBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(m.opts.MessageRate), burst)
}

// Connect registers a new connection in the Connected state. conn may be nil for in-process
// clients that read their queue directly.
func (m *Manager) Connect(conn *websocket.Conn) (*Client, error) {
	id, err := randx.ConnID()
	if err != nil {
		return nil, err
	}

	c := newClient(m, id, conn, m.opts.SendQueueSize, m.newLimiter())

	if err := m.hub.Register(m.ctx, c); err != nil {
		return nil, fmt.Errorf("register connection: %w", err)
	}

	c.logger.Debug().Msg("Connection registered.")
	return c, nil
}

// HandleFrame decodes and dispatches one raw client frame.
func (m *Manager) HandleFrame(c *Client, data []byte) {
	ev, err := DecodeInbound(data)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Undecodable frame.")
		m.sendError(c, err)
		return
	}

	m.Dispatch(c, ev)
}

// Dispatch runs one inbound event. Every failure, panics included, is reported to c only.
func (m *Manager) Dispatch(c *Client, ev InboundEvent) {
	if c.closed.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, eventTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("Recovered from panic in event handler.")
			m.sendError(c, errs.NewError(errs.ErrUnknown))
		}
	}()

	var err error
	switch ev := ev.(type) {
	case JoinEvent:
		err = m.handleJoin(ctx, c, ev)
	case JoinConversationEvent:
		err = m.handleJoinConversation(ctx, c, ev)
	case SendMessageEvent:
		err = m.handleSendMessage(ctx, c, ev)
	default:
		err = errs.NewError(errs.ErrUnsupportedEventType)
	}

	if err != nil {
		m.sendError(c, m.boundaryError(c, ev, err))
	}
}

// boundaryError turns an unexpected failure into the generic error of the action.
func (m *Manager) boundaryError(c *Client, ev InboundEvent, err error) error {
	var customErr *errs.CustomError
	if errors.As(err, &customErr) {
		return customErr
	}

	var code int
	switch ev.(type) {
	case JoinEvent:
		code = errs.ErrAuthenticationFailed
	case JoinConversationEvent:
		code = errs.ErrJoinConversationFailed
	case SendMessageEvent:
		code = errs.ErrSendMessageFailed
	default:
		code = errs.ErrUnknown
	}

	c.logger.Error().Err(err).Int("code", code).Msg("Event handler failed.")
	return errs.NewError(code)
}

func (m *Manager) handleJoin(ctx context.Context, c *Client, ev JoinEvent) error {
	id, fresh, err := m.auth.Authenticate(ctx, c.ID, ev.Token)
	if err != nil {
		return err
	}

	c.enqueue(ctx, EventJoined, JoinedPayload{Success: true})

	if fresh {
		c.logger.Info().Str("user_id", id.ID).Msg("Connection authenticated.")
		m.publishPresence(ctx, EventUserConnected, id)
	}
	return nil
}

func (m *Manager) handleJoinConversation(ctx context.Context, c *Client, ev JoinConversationEvent) error {
	id, ok := m.sessions.Lookup(c.ID)
	if !ok {
		return errs.NewError(errs.ErrNotAuthenticated)
	}

	history, err := m.rooms.JoinRoom(ctx, c, id, ev.ConversationID)
	if err != nil {
		return err
	}

	c.enqueue(ctx, EventConversationHistory, HistoryPayload{
		ConversationID: ev.ConversationID,
		Messages:       history,
	})
	return nil
}

func (m *Manager) handleSendMessage(ctx context.Context, c *Client, ev SendMessageEvent) error {
	id, ok := m.sessions.Lookup(c.ID)
	if !ok {
		return errs.NewError(errs.ErrNotAuthenticated)
	}

	if !c.limiter.Allow() {
		return errs.NewError(errs.ErrMessageRateExceeded)
	}

	if m.opts.RequireRoomForSend && ev.ConversationID != "" && !c.InRoom(ev.ConversationID) {
		return errs.NewError(errs.ErrNotInConversation)
	}

	_, err := m.messages.SendMessage(ctx, ev.ConversationID, ev.Content, id)
	return err
}

func (m *Manager) publishPresence(ctx context.Context, eventType string, id user.Identity) {
	frame, err := EncodeEvent(eventType, PresencePayload{UserID: id.ID, Username: id.Username})
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to encode presence event.")
		return
	}

	if err := m.hub.BroadcastAll(ctx, frame); err != nil {
		m.logger.Debug().Err(err).Str("event", eventType).Msg("Presence event not published.")
	}
}

func (m *Manager) sendError(c *Client, err error) {
	customErr := errs.As(err)

	ctx, cancel := context.WithTimeout(m.ctx, eventTimeout)
	defer cancel()

	c.enqueue(ctx, EventError, ErrorPayload{Code: customErr.Code, Message: customErr.Message})
}

// Disconnect moves c to its terminal state: the session is evicted, the rooms are dropped and,
// if the connection had authenticated, a user_disconnected presence event is published.
// Memberships are durable and stay. Safe to call more than once.
func (m *Manager) Disconnect(c *Client) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, eventTimeout)
	defer cancel()

	id, wasBound := m.sessions.Remove(c.ID)

	if err := m.hub.Unregister(ctx, c); err != nil {
		c.logger.Debug().Err(err).Msg("Unregister not queued.")
	}

	if wasBound {
		c.logger.Info().Str("user_id", id.ID).Msg("Authenticated connection closed.")
		m.publishPresence(ctx, EventUserDisconnected, id)
	}
}

// Shutdown stops the Hub, which closes every connection queue, and waits for it to finish.
func (m *Manager) Shutdown() {
	m.logger.Info().Msg("Shutting down Manager...")

	m.cancel()
	m.wg.Wait()

	m.logger.Info().Msg("Manager shutdown complete.")
}
