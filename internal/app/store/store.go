/*
Package store is the durable side of the chat system: users, conversations, memberships and
messages. Two backends implement Store: Postgres (pgx) for deployments and SQLite (gorm) for
local runs and tests.
*/
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the addressed row does not exist. Writes return it when the
	// conversation they reference is missing.
	ErrNotFound = errors.New("store: not found")

	// ErrUnknownUser is returned when a write references a user that does not exist.
	ErrUnknownUser = errors.New("store: unknown user")

	// ErrConflict is returned when a uniqueness constraint rejects a write.
	ErrConflict = errors.New("store: conflict")
)

// TimePrecision is the resolution timestamps are stored with. Postgres keeps microseconds,
// so values are truncated before writing to read back identically on every backend.
const TimePrecision = time.Microsecond

// User is an account row.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Conversation is a durable conversation. UpdatedAt moves forward on every new message.
type Conversation struct {
	ID        string    `json:"id"`
	Name      *string   `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Membership records that a user participates in a conversation.
type Membership struct {
	ConversationID string
	UserID         string
	JoinedAt       time.Time
}

// Message is an immutable chat message. Username is denormalized at write time.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	Username       string    `json:"username"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// MessageStore persists and reads messages.
type MessageStore interface {
	// AppendMessage inserts msg and sets the conversation's updated_at to msg.CreatedAt in one
	// transaction. ErrNotFound means the conversation does not exist and ErrUnknownUser that the
	// sender does not; in both cases nothing was written.
	AppendMessage(ctx context.Context, msg Message) error

	// RecentMessages returns the newest limit messages of a conversation in ascending
	// (created_at, id) order.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
}

// MembershipStore maintains the conversation participant relation.
type MembershipStore interface {
	// GetMembership returns ErrNotFound when the pair has no row.
	GetMembership(ctx context.Context, conversationID, userID string) (Membership, error)

	// InsertMembershipIfAbsent creates the row unless it exists and reports whether it inserted.
	// Concurrent inserts of the same pair are not errors. A missing conversation gives
	// ErrNotFound, a missing user ErrUnknownUser.
	InsertMembershipIfAbsent(ctx context.Context, m Membership) (bool, error)
}

// UserStore reads and creates accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u User) error
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	FindUsersByUsernames(ctx context.Context, usernames []string) ([]User, error)
}

// ConversationStore creates and lists conversations.
type ConversationStore interface {
	// CreateConversation inserts conv and one membership per participant atomically.
	// ErrUnknownUser means a participant does not exist.
	CreateConversation(ctx context.Context, conv Conversation, participantIDs []string) error

	// ListConversationsForUser returns the user's conversations, most recently active first.
	ListConversationsForUser(ctx context.Context, userID string) ([]Conversation, error)
}

// Store is the full durable store.
type Store interface {
	MessageStore
	MembershipStore
	UserStore
	ConversationStore

	Close() error
}

// Now returns the current UTC time at storage precision.
func Now() time.Time {
	return time.Now().UTC().Truncate(TimePrecision)
}

// reverse flips newest-first query results into chronological order.
func reverse(msgs []Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*SQLite)(nil)
)
