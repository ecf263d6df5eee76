package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"convochat/internal/app/store"
	"convochat/internal/app/user"
	"convochat/internal/pkg/errs"
	"convochat/internal/pkg/logx"
	"convochat/internal/pkg/randx"
)

const (
	// DefaultHistoryLimit is how many recent messages a joining connection receives.
	DefaultHistoryLimit = 50

	// DefaultMaxContentBytes bounds message content.
	DefaultMaxContentBytes = 5000
)

// MessageService persists messages and hands them to the Hub for fan-out.
type MessageService struct {
	store           store.MessageStore
	hub             *Hub
	historyLimit    int
	maxContentBytes int
	now             func() time.Time
	logger          zerolog.Logger
}

func NewMessageService(st store.MessageStore, hub *Hub, historyLimit, maxContentBytes int) *MessageService {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if maxContentBytes <= 0 {
		maxContentBytes = DefaultMaxContentBytes
	}

	return &MessageService{
		store:           st,
		hub:             hub,
		historyLimit:    historyLimit,
		maxContentBytes: maxContentBytes,
		now:             time.Now,
		logger:          logx.Component("messages"),
	}
}

// SendMessage validates, persists and broadcasts a message. The server clock stamps it.
// Nothing is broadcast unless both the message row and the conversation timestamp were written.
func (s *MessageService) SendMessage(ctx context.Context, conversationID, content string, sender user.Identity) (store.Message, error) {
	if conversationID == "" {
		return store.Message{}, errs.NewError(errs.ErrConversationIDRequired)
	}
	if strings.TrimSpace(content) == "" {
		return store.Message{}, errs.NewError(errs.ErrMessageContentRequired)
	}
	if len(content) > s.maxContentBytes {
		return store.Message{}, errs.NewError(errs.ErrMessageContentTooLong)
	}

	msg := store.Message{
		ID:             randx.MessageID(),
		ConversationID: conversationID,
		UserID:         sender.ID,
		Username:       sender.Username,
		Content:        content,
		CreatedAt:      s.now().UTC().Truncate(time.Millisecond),
	}

	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return store.Message{}, fmt.Errorf("append message: %w", err)
	}

	frame, err := EncodeEvent(EventNewMessage, msg)
	if err != nil {
		return msg, err
	}

	// The message is durable at this point; a failed broadcast is not a failed send.
	if err := s.hub.Broadcast(ctx, conversationID, frame); err != nil {
		s.logger.Warn().Err(err).
			Str("conversation_id", conversationID).
			Str("message_id", msg.ID).
			Msg("Persisted message was not broadcast.")
	}

	return msg, nil
}

// GetHistory returns the most recent messages of a conversation in ascending order.
// It is never nil so that it encodes as an empty list.
func (s *MessageService) GetHistory(ctx context.Context, conversationID string) ([]store.Message, error) {
	msgs, err := s.store.RecentMessages(ctx, conversationID, s.historyLimit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	return msgs, nil
}
