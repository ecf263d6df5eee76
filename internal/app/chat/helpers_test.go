package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"convochat/internal/app/store"
	"convochat/internal/app/user"
)

// memStore is an in-memory Store.
type memStore struct {
	mu            sync.Mutex
	conversations map[string]bool
	messages      []store.Message
	members       map[[2]string]time.Time
	failAppend    error
	failHistory   error
}

func newMemStore(conversationIDs ...string) *memStore {
	s := &memStore{
		conversations: make(map[string]bool),
		members:       make(map[[2]string]time.Time),
	}
	for _, id := range conversationIDs {
		s.conversations[id] = true
	}
	return s
}

func (s *memStore) AppendMessage(_ context.Context, msg store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAppend != nil {
		return s.failAppend
	}
	if !s.conversations[msg.ConversationID] {
		return store.ErrNotFound
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *memStore) RecentMessages(_ context.Context, conversationID string, limit int) ([]store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failHistory != nil {
		return nil, s.failHistory
	}

	var out []store.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *memStore) GetMembership(_ context.Context, conversationID, userID string) (store.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	joined, ok := s.members[[2]string{conversationID, userID}]
	if !ok {
		return store.Membership{}, store.ErrNotFound
	}
	return store.Membership{ConversationID: conversationID, UserID: userID, JoinedAt: joined}, nil
}

func (s *memStore) InsertMembershipIfAbsent(_ context.Context, m store.Membership) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.conversations[m.ConversationID] {
		return false, store.ErrNotFound
	}
	key := [2]string{m.ConversationID, m.UserID}
	if _, ok := s.members[key]; ok {
		return false, nil
	}
	s.members[key] = m.JoinedAt
	return true, nil
}

func (s *memStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *memStore) memberCount(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.members {
		if key[0] == conversationID {
			n++
		}
	}
	return n
}

// fakeVerifier accepts the tokens it knows.
type fakeVerifier map[string]user.Identity

func (v fakeVerifier) VerifyCredential(_ context.Context, token string) (user.Identity, error) {
	id, ok := v[token]
	if !ok {
		return user.Identity{}, errors.New("unknown token")
	}
	return id, nil
}

var (
	alice = user.Identity{ID: "u-alice", Username: "alice", Email: "alice@example.com"}
	bob   = user.Identity{ID: "u-bob", Username: "bob", Email: "bob@example.com"}

	testVerifier = fakeVerifier{"token-alice": alice, "token-bob": bob}
)

func newTestManager(t *testing.T, st Store, opts Options) *Manager {
	t.Helper()

	m := NewManager(st, testVerifier, NewHub(nil), opts)
	t.Cleanup(m.Shutdown)
	return m
}

func connect(t *testing.T, m *Manager) *Client {
	t.Helper()

	c, err := m.Connect(nil)
	require.NoError(t, err)
	return c
}

type received struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (r received) decode(t *testing.T, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Payload, dst))
}

func isPresence(eventType string) bool {
	return eventType == EventUserConnected || eventType == EventUserDisconnected
}

// next returns the next frame queued for c, skipping presence events unless one is wanted.
func next(t *testing.T, c *Client, want string) received {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case data, ok := <-c.send:
			require.True(t, ok, "queue closed while waiting for %s", want)

			var r received
			require.NoError(t, json.Unmarshal(data, &r))
			if isPresence(r.Type) && !isPresence(want) {
				continue
			}
			require.Equal(t, want, r.Type, "payload: %s", r.Payload)
			return r

		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

// expectQuiet asserts that no non-presence frame arrives for c shortly.
func expectQuiet(t *testing.T, c *Client) {
	t.Helper()

	timeout := time.After(100 * time.Millisecond)
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			var r received
			require.NoError(t, json.Unmarshal(data, &r))
			if !isPresence(r.Type) {
				t.Fatalf("unexpected %s frame: %s", r.Type, r.Payload)
			}
		case <-timeout:
			return
		}
	}
}

func expectError(t *testing.T, c *Client, code int, message string) {
	t.Helper()

	var p ErrorPayload
	next(t, c, EventError).decode(t, &p)
	require.Equal(t, code, p.Code)
	require.Equal(t, message, p.Message)
}

func login(t *testing.T, m *Manager, c *Client, token string) {
	t.Helper()

	m.Dispatch(c, JoinEvent{Token: token})

	var p JoinedPayload
	next(t, c, EventJoined).decode(t, &p)
	require.True(t, p.Success)
}

func joinConversation(t *testing.T, m *Manager, c *Client, conversationID string) HistoryPayload {
	t.Helper()

	m.Dispatch(c, JoinConversationEvent{ConversationID: conversationID})

	var p HistoryPayload
	next(t, c, EventConversationHistory).decode(t, &p)
	require.Equal(t, conversationID, p.ConversationID)
	return p
}

func nextMessage(t *testing.T, c *Client) store.Message {
	t.Helper()

	var msg store.Message
	next(t, c, EventNewMessage).decode(t, &msg)
	return msg
}
