package handler

import (
	"net/http"
	"strings"

	"convochat/internal/app/store"
	"convochat/internal/pkg/auth/jwt"
	"convochat/internal/pkg/errs"
	"convochat/internal/pkg/logx"
	"convochat/internal/pkg/randx"
	"convochat/internal/pkg/req"
	"convochat/internal/pkg/resp"
)

const (
	maxConversationNameLen = 100
	maxParticipants        = 100
)

type CreateConversationInput struct {
	// Name is optional; a name derived from the id is used when empty.
	Name string `json:"name,omitempty"`

	// Participants are usernames. The creator is always added.
	Participants []string `json:"participants,omitempty"`
}

// HandleListConversations returns the caller's conversations, most recently active first.
func HandleListConversations(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		conversations, err := deps.Store.ListConversationsForUser(r.Context(), identity.UserID)
		if err != nil {
			logx.Error(err, "list conversations failed", "user_id", identity.UserID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		if conversations == nil {
			conversations = []store.Conversation{}
		}
		resp.RespondSuccess(w, r, conversations)
	}
}

// HandleCreateConversation creates a conversation with the caller and the named participants.
func HandleCreateConversation(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input CreateConversationInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		input.Name = strings.TrimSpace(input.Name)
		usernames := dedupe(input.Participants)

		if len(input.Name) > maxConversationNameLen || len(usernames) > maxParticipants {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		participantIDs := []string{identity.UserID}

		if len(usernames) > 0 {
			found, err := deps.Store.FindUsersByUsernames(r.Context(), usernames)
			if err != nil {
				logx.Error(err, "participant lookup failed")
				resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
				return
			}

			known := make(map[string]string, len(found))
			for _, u := range found {
				known[u.Username] = u.ID
			}

			var missing []string
			for _, name := range usernames {
				id, ok := known[name]
				if !ok {
					missing = append(missing, name)
					continue
				}
				if id != identity.UserID {
					participantIDs = append(participantIDs, id)
				}
			}

			if len(missing) > 0 {
				resp.RespondError(w, r, errs.NewError(errs.ErrParticipantsNotFound, strings.Join(missing, ", ")))
				return
			}
		}

		conv := store.Conversation{ID: randx.ConversationID()}
		name := input.Name
		if name == "" {
			name = randx.DefaultConversationName(conv.ID)
		}
		conv.Name = &name
		conv.CreatedAt = store.Now()
		conv.UpdatedAt = conv.CreatedAt

		if err := deps.Store.CreateConversation(r.Context(), conv, participantIDs); err != nil {
			logx.Error(err, "create conversation failed", "user_id", identity.UserID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		logx.Info("Conversation created", "conversation_id", conv.ID, "participants", len(participantIDs))
		resp.RespondCreated(w, r, conv)
	}
}

// dedupe trims names and drops blanks and repeats, keeping first-seen order.
func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
