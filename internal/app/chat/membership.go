package chat

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"convochat/internal/app/store"
	"convochat/internal/app/user"
	"convochat/internal/pkg/errs"
	"convochat/internal/pkg/logx"
)

// RoomService joins connections to conversation rooms.
type RoomService struct {
	store    store.MembershipStore
	messages *MessageService
	hub      *Hub

	// maxRooms caps subscriptions per connection; 0 is unbounded.
	maxRooms int

	logger zerolog.Logger
}

func NewRoomService(st store.MembershipStore, messages *MessageService, hub *Hub, maxRooms int) *RoomService {
	return &RoomService{
		store:    st,
		messages: messages,
		hub:      hub,
		maxRooms: maxRooms,
		logger:   logx.Component("rooms"),
	}
}

// JoinRoom subscribes c to the conversation, records the durable membership and returns the
// history for c alone. The subscription happens first so nothing persisted after the history
// read is missed. A failed join leaves no new subscription behind. An unknown conversation
// surfaces as store.ErrNotFound and is reported like any other storage failure.
func (s *RoomService) JoinRoom(ctx context.Context, c *Client, id user.Identity, conversationID string) ([]store.Message, error) {
	if conversationID == "" {
		return nil, errs.NewError(errs.ErrConversationIDRequired)
	}

	if s.maxRooms > 0 && !c.InRoom(conversationID) && c.RoomCount() >= s.maxRooms {
		return nil, errs.NewError(errs.ErrRoomLimitReached)
	}

	added, err := s.hub.Subscribe(ctx, c, conversationID)
	if err != nil {
		return nil, err
	}
	c.addRoom(conversationID)

	history, err := s.join(ctx, id, conversationID)
	if err != nil {
		if added {
			c.removeRoom(conversationID)
			if uerr := s.hub.Unsubscribe(ctx, c, conversationID); uerr != nil {
				s.logger.Debug().Err(uerr).Str("conn_id", c.ID).Msg("Rollback unsubscribe not queued.")
			}
		}
		return nil, err
	}

	return history, nil
}

func (s *RoomService) join(ctx context.Context, id user.Identity, conversationID string) ([]store.Message, error) {
	if err := s.EnsureMembership(ctx, conversationID, id.ID); err != nil {
		return nil, err
	}

	return s.messages.GetHistory(ctx, conversationID)
}

// EnsureMembership records that userID participates in conversationID. Existing rows and lost
// insert races both count as success.
func (s *RoomService) EnsureMembership(ctx context.Context, conversationID, userID string) error {
	_, err := s.store.GetMembership(ctx, conversationID, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	inserted, err := s.store.InsertMembershipIfAbsent(ctx, store.Membership{
		ConversationID: conversationID,
		UserID:         userID,
		JoinedAt:       store.Now(),
	})
	if err != nil {
		return err
	}

	if inserted {
		s.logger.Info().
			Str("conversation_id", conversationID).
			Str("user_id", userID).
			Msg("Membership recorded.")
	}
	return nil
}
