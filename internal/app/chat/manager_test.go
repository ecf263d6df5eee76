package chat

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convochat/internal/pkg/errs"
)

func TestSendBeforeJoinIsRejected(t *testing.T) {
	st := newMemStore("c1")
	m := newTestManager(t, st, Options{})
	c := connect(t, m)

	m.Dispatch(c, SendMessageEvent{ConversationID: "c1", Content: "hello"})

	expectError(t, c, errs.ErrNotAuthenticated, "Not authenticated")
	assert.Zero(t, st.messageCount())
}

func TestJoinConversationUnauthenticated(t *testing.T) {
	m := newTestManager(t, newMemStore("c1"), Options{})
	c := connect(t, m)

	m.Dispatch(c, JoinConversationEvent{ConversationID: "c1"})

	expectError(t, c, errs.ErrNotAuthenticated, "Not authenticated")
	expectQuiet(t, c)
	assert.False(t, c.InRoom("c1"))
}

func TestJoinWithInvalidTokenCanRetry(t *testing.T) {
	m := newTestManager(t, newMemStore(), Options{})
	c := connect(t, m)

	for _, token := range []string{"", "garbage"} {
		m.Dispatch(c, JoinEvent{Token: token})
		expectError(t, c, errs.ErrInvalidToken, "Invalid token")
	}
	assert.Zero(t, m.Sessions().Len())

	login(t, m, c, "token-alice")

	id, ok := m.Sessions().Lookup(c.ID)
	require.True(t, ok)
	assert.Equal(t, alice, id)
}

func TestJoinPublishesGlobalPresence(t *testing.T) {
	m := newTestManager(t, newMemStore(), Options{})
	a, b := connect(t, m), connect(t, m)

	login(t, m, a, "token-alice")

	var p PresencePayload
	next(t, b, EventUserConnected).decode(t, &p)
	assert.Equal(t, PresencePayload{UserID: alice.ID, Username: alice.Username}, p)
	next(t, a, EventUserConnected)
}

func TestRejoin(t *testing.T) {
	m := newTestManager(t, newMemStore(), Options{})
	a, observer := connect(t, m), connect(t, m)

	login(t, m, a, "token-alice")
	next(t, observer, EventUserConnected)

	t.Run("same user is acknowledged without presence", func(t *testing.T) {
		login(t, m, a, "token-alice")
		expectQuiet(t, a)

		select {
		case data := <-observer.send:
			t.Fatalf("unexpected frame %s", data)
		default:
		}
	})

	t.Run("different user keeps the bound identity", func(t *testing.T) {
		m.Dispatch(a, JoinEvent{Token: "token-bob"})
		expectError(t, a, errs.ErrIdentityMismatch, "Already authenticated as a different user.")

		id, _ := m.Sessions().Lookup(a.ID)
		assert.Equal(t, alice, id)
	})
}

func TestConversationScenario(t *testing.T) {
	m := newTestManager(t, newMemStore("c1"), Options{})
	a := connect(t, m)
	login(t, m, a, "token-alice")

	history := joinConversation(t, m, a, "c1")
	assert.Empty(t, history.Messages)

	m.Dispatch(a, SendMessageEvent{ConversationID: "c1", Content: "hello"})
	msg := nextMessage(t, a)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, alice.ID, msg.UserID)
	assert.Equal(t, alice.Username, msg.Username)
	assert.Equal(t, "c1", msg.ConversationID)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())

	history = joinConversation(t, m, a, "c1")
	require.Len(t, history.Messages, 1)
	assert.Equal(t, msg.ID, history.Messages[0].ID)

	b := connect(t, m)
	login(t, m, b, "token-bob")
	history = joinConversation(t, m, b, "c1")
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "hello", history.Messages[0].Content)

	m.Dispatch(a, SendMessageEvent{ConversationID: "c1", Content: "hi bob"})
	assert.Equal(t, "hi bob", nextMessage(t, a).Content)
	assert.Equal(t, "hi bob", nextMessage(t, b).Content)
}

func TestHistoryIsCappedAndOrdered(t *testing.T) {
	m := newTestManager(t, newMemStore("c1"), Options{})
	a := connect(t, m)
	login(t, m, a, "token-alice")
	joinConversation(t, m, a, "c1")

	const sent = 60
	for i := 0; i < sent; i++ {
		m.Dispatch(a, SendMessageEvent{ConversationID: "c1", Content: fmt.Sprintf("m%02d", i)})
		nextMessage(t, a)
	}

	history := joinConversation(t, m, a, "c1")
	require.Len(t, history.Messages, DefaultHistoryLimit)

	for i, msg := range history.Messages {
		assert.Equal(t, fmt.Sprintf("m%02d", sent-DefaultHistoryLimit+i), msg.Content)
	}
}

func TestMembershipIsRecordedOnce(t *testing.T) {
	st := newMemStore("c1")
	m := newTestManager(t, st, Options{})

	clients := make([]*Client, 4)
	for i := range clients {
		clients[i] = connect(t, m)
		login(t, m, clients[i], "token-alice")
	}

	var wg sync.WaitGroup
	for _, c := range clients {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Dispatch(c, JoinConversationEvent{ConversationID: "c1"})
		}()
	}
	wg.Wait()

	for _, c := range clients {
		next(t, c, EventConversationHistory)
	}
	assert.Equal(t, 1, st.memberCount("c1"))
}

func TestBroadcastStaysInRoom(t *testing.T) {
	m := newTestManager(t, newMemStore("c1", "c2"), Options{})
	a, b := connect(t, m), connect(t, m)
	login(t, m, a, "token-alice")
	login(t, m, b, "token-bob")

	joinConversation(t, m, a, "c1")
	joinConversation(t, m, b, "c2")

	m.Dispatch(a, SendMessageEvent{ConversationID: "c1", Content: "only c1"})

	assert.Equal(t, "only c1", nextMessage(t, a).Content)
	expectQuiet(t, b)
}

func TestSendWithoutRoomSubscription(t *testing.T) {
	t.Run("allowed by default", func(t *testing.T) {
		st := newMemStore("c1")
		m := newTestManager(t, st, Options{})
		a := connect(t, m)
		login(t, m, a, "token-alice")

		m.Dispatch(a, SendMessageEvent{ConversationID: "c1", Content: "drive-by"})

		expectQuiet(t, a)
		assert.Equal(t, 1, st.messageCount())
	})

	t.Run("rejected when rooms are required", func(t *testing.T) {
		st := newMemStore("c1")
		m := newTestManager(t, st, Options{RequireRoomForSend: true})
		a := connect(t, m)
		login(t, m, a, "token-alice")

		m.Dispatch(a, SendMessageEvent{ConversationID: "c1", Content: "drive-by"})

		expectError(t, a, errs.ErrNotInConversation, "Join the conversation before sending messages.")
		assert.Zero(t, st.messageCount())
	})
}

func TestDisconnect(t *testing.T) {
	st := newMemStore("c1")
	m := newTestManager(t, st, Options{})
	a, b := connect(t, m), connect(t, m)
	login(t, m, a, "token-alice")
	login(t, m, b, "token-bob")
	joinConversation(t, m, a, "c1")
	joinConversation(t, m, b, "c1")

	m.Disconnect(a)

	_, ok := m.Sessions().Lookup(a.ID)
	assert.False(t, ok)

	var p PresencePayload
	next(t, b, EventUserDisconnected).decode(t, &p)
	assert.Equal(t, alice.ID, p.UserID)

	// Replaying events on the stale connection does nothing.
	m.Dispatch(a, JoinEvent{Token: "token-alice"})
	m.Dispatch(a, SendMessageEvent{ConversationID: "c1", Content: "ghost"})
	assert.Zero(t, st.messageCount())
	expectQuiet(t, b)

	// Membership survives the disconnect.
	assert.Equal(t, 2, st.memberCount("c1"))

	// A second disconnect publishes nothing.
	m.Disconnect(a)
	expectQuiet(t, b)
}

func TestUnauthenticatedDisconnectIsSilent(t *testing.T) {
	m := newTestManager(t, newMemStore(), Options{})
	a, b := connect(t, m), connect(t, m)

	m.Disconnect(a)

	select {
	case data := <-b.send:
		t.Fatalf("unexpected frame %s", data)
	default:
	}
}

func TestUnknownConversationIsAGenericFailure(t *testing.T) {
	st := newMemStore()
	m := newTestManager(t, st, Options{})
	a := connect(t, m)
	login(t, m, a, "token-alice")

	m.Dispatch(a, JoinConversationEvent{ConversationID: "nope"})
	expectError(t, a, errs.ErrJoinConversationFailed, "Failed to join conversation")
	assert.False(t, a.InRoom("nope"))
	assert.Zero(t, st.memberCount("nope"))

	m.Dispatch(a, SendMessageEvent{ConversationID: "nope", Content: "x"})
	expectError(t, a, errs.ErrSendMessageFailed, "Failed to send message")
	assert.Zero(t, st.messageCount())
	expectQuiet(t, a)
}

func TestPersistenceFailureIsReportedToSenderOnly(t *testing.T) {
	st := newMemStore("c1")
	m := newTestManager(t, st, Options{})
	a, b := connect(t, m), connect(t, m)
	login(t, m, a, "token-alice")
	login(t, m, b, "token-bob")
	joinConversation(t, m, a, "c1")
	joinConversation(t, m, b, "c1")

	st.mu.Lock()
	st.failAppend = errors.New("disk on fire")
	st.mu.Unlock()

	m.Dispatch(a, SendMessageEvent{ConversationID: "c1", Content: "lost"})
	expectError(t, a, errs.ErrSendMessageFailed, "Failed to send message")
	expectQuiet(t, b)

	st.mu.Lock()
	st.failAppend = nil
	st.failHistory = errors.New("index corrupted")
	st.mu.Unlock()

	m.Dispatch(a, JoinConversationEvent{ConversationID: "c1"})
	expectError(t, a, errs.ErrJoinConversationFailed, "Failed to join conversation")

	// The connection keeps working after failures.
	m.Dispatch(a, SendMessageEvent{ConversationID: "c1", Content: "back"})
	assert.Equal(t, "back", nextMessage(t, a).Content)
	assert.Equal(t, "back", nextMessage(t, b).Content)
}

func TestMessageValidation(t *testing.T) {
	m := newTestManager(t, newMemStore("c1"), Options{MaxContentBytes: 10})
	a := connect(t, m)
	login(t, m, a, "token-alice")

	tests := []struct {
		name    string
		event   SendMessageEvent
		code    int
		message string
	}{
		{"missing conversation", SendMessageEvent{Content: "x"}, errs.ErrConversationIDRequired, "conversationId is required."},
		{"blank content", SendMessageEvent{ConversationID: "c1", Content: "  \n"}, errs.ErrMessageContentRequired, "Message content is required."},
		{"too long", SendMessageEvent{ConversationID: "c1", Content: strings.Repeat("x", 11)}, errs.ErrMessageContentTooLong, "Message is too long."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m.Dispatch(a, tt.event)
			expectError(t, a, tt.code, tt.message)
		})
	}
}

func TestMessageRateLimit(t *testing.T) {
	st := newMemStore("c1")
	m := newTestManager(t, st, Options{MessageRate: 0.001, MessageBurst: 2})
	a := connect(t, m)
	login(t, m, a, "token-alice")
	joinConversation(t, m, a, "c1")

	for i := 0; i < 2; i++ {
		m.Dispatch(a, SendMessageEvent{ConversationID: "c1", Content: "ok"})
		nextMessage(t, a)
	}

	m.Dispatch(a, SendMessageEvent{ConversationID: "c1", Content: "too fast"})
	expectError(t, a, errs.ErrMessageRateExceeded, "Too many messages. Please slow down.")
	assert.Equal(t, 2, st.messageCount())
}

func TestRoomLimit(t *testing.T) {
	m := newTestManager(t, newMemStore("c1", "c2"), Options{MaxRoomsPerConnection: 1})
	a := connect(t, m)
	login(t, m, a, "token-alice")

	joinConversation(t, m, a, "c1")
	joinConversation(t, m, a, "c1")

	m.Dispatch(a, JoinConversationEvent{ConversationID: "c2"})
	expectError(t, a, errs.ErrRoomLimitReached, "Too many conversations joined on this connection.")
	assert.Equal(t, 1, a.RoomCount())
}

func TestHandleFrame(t *testing.T) {
	m := newTestManager(t, newMemStore("c1"), Options{})
	a := connect(t, m)

	m.HandleFrame(a, []byte(`{not json`))
	expectError(t, a, errs.ErrInvalidEventPayload, "Invalid event payload.")

	m.HandleFrame(a, []byte(`{"type":"typing","payload":{}}`))
	expectError(t, a, errs.ErrUnsupportedEventType, "Unsupported event type.")

	m.HandleFrame(a, []byte(`{"type":"join","payload":{"token":"token-alice"}}`))
	next(t, a, EventJoined)

	m.HandleFrame(a, []byte(`{"type":"join_conversation","payload":{"conversationId":"c1"}}`))
	next(t, a, EventConversationHistory)

	m.HandleFrame(a, []byte(`{"type":"send_message","payload":{"conversationId":"c1","content":"raw"}}`))
	assert.Equal(t, "raw", nextMessage(t, a).Content)
}

func TestPerConnectionOrder(t *testing.T) {
	m := newTestManager(t, newMemStore("c1"), Options{})
	a, b := connect(t, m), connect(t, m)
	login(t, m, a, "token-alice")
	login(t, m, b, "token-bob")
	joinConversation(t, m, a, "c1")
	joinConversation(t, m, b, "c1")

	for i := 0; i < 20; i++ {
		m.Dispatch(a, SendMessageEvent{ConversationID: "c1", Content: fmt.Sprint(i)})
	}

	for i := 0; i < 20; i++ {
		assert.Equal(t, fmt.Sprint(i), nextMessage(t, b).Content)
	}
}
