package errs

import "net/http"

// errorMap holds the template for every application error code.
var errorMap = map[int]CustomError{
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrInvalidEventPayload:  {Code: ErrInvalidEventPayload, Message: "Invalid event payload."},
	ErrUnsupportedEventType: {Code: ErrUnsupportedEventType, Message: "Unsupported event type."},

	ErrConversationIDRequired: {Code: ErrConversationIDRequired, Message: "conversationId is required."},
	ErrRoomLimitReached:       {Code: ErrRoomLimitReached, Message: "Too many conversations joined on this connection."},
	ErrNotInConversation:      {Code: ErrNotInConversation, Message: "Join the conversation before sending messages."},
	ErrJoinConversationFailed: {Code: ErrJoinConversationFailed, Message: "Failed to join conversation"},
	ErrMessageContentRequired: {Code: ErrMessageContentRequired, Message: "Message content is required."},
	ErrMessageContentTooLong:  {Code: ErrMessageContentTooLong, Message: "Message is too long."},
	ErrMessageRateExceeded:    {Code: ErrMessageRateExceeded, Message: "Too many messages. Please slow down."},
	ErrSendMessageFailed:      {Code: ErrSendMessageFailed, Message: "Failed to send message"},
	ErrParticipantsNotFound:   {Code: ErrParticipantsNotFound, Message: "Users not found: %s", Status: http.StatusBadRequest},

	ErrInvalidToken:         {Code: ErrInvalidToken, Message: "Invalid token"},
	ErrNotAuthenticated:     {Code: ErrNotAuthenticated, Message: "Not authenticated"},
	ErrAuthenticationFailed: {Code: ErrAuthenticationFailed, Message: "Failed to authenticate"},
	ErrIdentityMismatch:     {Code: ErrIdentityMismatch, Message: "Already authenticated as a different user."},
	ErrUnauthorized:         {Code: ErrUnauthorized, Message: "Access token required", Status: http.StatusUnauthorized},
	ErrInvalidCredentials:   {Code: ErrInvalidCredentials, Message: "Invalid email or password", Status: http.StatusUnauthorized},
	ErrEmailExists:          {Code: ErrEmailExists, Message: "Email already exists", Status: http.StatusBadRequest},
	ErrUsernameExists:       {Code: ErrUsernameExists, Message: "Username already exists", Status: http.StatusBadRequest},
	ErrInvalidPassword:      {Code: ErrInvalidPassword, Message: "Password must be at least 6 characters long", Status: http.StatusBadRequest},

	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
