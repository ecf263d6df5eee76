package chat

import (
	"context"
	"encoding/json"
)

// Envelope scopes.
const (
	// ScopeRoom delivers to the subscribers of one conversation.
	ScopeRoom = "room"

	// ScopeAll delivers to every live connection (presence).
	ScopeAll = "all"
)

// Envelope is one fan-out unit: an encoded frame plus where it goes.
type Envelope struct {
	Scope          string          `json:"scope"`
	ConversationID string          `json:"conversationId,omitempty"`
	Frame          json.RawMessage `json:"frame"`
}

// Relay carries envelopes between server instances. When a Hub has a relay, every broadcast
// is published to it and delivered to local connections only when it comes back through Run,
// so all instances see the same per-room order.
type Relay interface {
	// Publish sends env to every instance, this one included.
	Publish(ctx context.Context, env Envelope) error

	// Run calls ready once the relay receives everything published from then on, and
	// delivers received envelopes until ctx is cancelled.
	Run(ctx context.Context, ready func(), deliver func(Envelope)) error
}
