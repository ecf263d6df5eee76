/*
Package chat is the real-time conversation core: connection lifecycle, authentication of live
connections, room subscriptions, message ingestion and fan-out.

This file defines the wire events. Every frame is a JSON object {"type": ..., "payload": {...}}.
Inbound frames decode into one of a closed set of event types that the Manager dispatches with a
type switch.
*/
package chat

import (
	"bytes"
	"encoding/json"

	"convochat/internal/app/store"
	"convochat/internal/pkg/errs"
)

// Inbound event types.
const (
	EventJoin             = "join"
	EventJoinConversation = "join_conversation"
	EventSendMessage      = "send_message"
)

// Outbound event types.
const (
	EventJoined              = "joined"
	EventConversationHistory = "conversation_history"
	EventNewMessage          = "new_message"
	EventUserConnected       = "user_connected"
	EventUserDisconnected    = "user_disconnected"
	EventError               = "error"
)

// InboundEvent is implemented only by the event types in this file.
type InboundEvent interface {
	inbound()
}

// JoinEvent authenticates the connection.
type JoinEvent struct {
	Token string `json:"token"`
}

// JoinConversationEvent subscribes the connection to a conversation room.
type JoinConversationEvent struct {
	ConversationID string `json:"conversationId"`
}

// SendMessageEvent posts a message to a conversation.
type SendMessageEvent struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

func (JoinEvent) inbound()             {}
func (JoinConversationEvent) inbound() {}
func (SendMessageEvent) inbound()      {}

// frame is the envelope shared by both directions.
type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeInbound parses one client frame.
func DecodeInbound(data []byte) (InboundEvent, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errs.NewError(errs.ErrInvalidEventPayload)
	}

	switch f.Type {
	case EventJoin:
		var ev JoinEvent
		return ev, decodePayload(f.Payload, &ev)

	case EventJoinConversation:
		var ev JoinConversationEvent
		return ev, decodePayload(f.Payload, &ev)

	case EventSendMessage:
		var ev SendMessageEvent
		return ev, decodePayload(f.Payload, &ev)

	default:
		return nil, errs.NewError(errs.ErrUnsupportedEventType)
	}
}

// decodePayload fills dst from raw. A missing payload leaves dst zero so that field validation
// reports the precise problem.
func decodePayload(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errs.NewError(errs.ErrInvalidEventPayload)
	}
	return nil
}

// JoinedPayload acknowledges a successful join.
type JoinedPayload struct {
	Success bool `json:"success"`
}

// HistoryPayload carries the recent messages of a conversation to the joining connection.
type HistoryPayload struct {
	ConversationID string          `json:"conversationId"`
	Messages       []store.Message `json:"messages"`
}

// PresencePayload announces a connection binding or losing an identity.
type PresencePayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// ErrorPayload reports a failed action to the offending connection only.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// EncodeEvent marshals an outbound frame. The bytes are shared by every recipient.
func EncodeEvent(eventType string, payload any) ([]byte, error) {
	return json.Marshal(outbound{Type: eventType, Payload: payload})
}
