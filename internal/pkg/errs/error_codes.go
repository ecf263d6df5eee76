/*
Package errs provides the application error type and its code constants.

Codes identify a failure both in HTTP responses and in real-time error events, so clients can
branch on the number while showing the message.
*/
package errs

// 1xxx: General request handling errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates a malformed JSON request body.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates trailing content after the JSON document.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate exceeded the configured limit.
	ErrRateLimitExceeded = 1007

	// ErrInvalidEventPayload indicates a real-time frame that could not be decoded.
	ErrInvalidEventPayload = 1101

	// ErrUnsupportedEventType indicates a real-time frame with an unknown type.
	ErrUnsupportedEventType = 1102
)

// 2xxx: Conversation and message errors
const (
	// ErrConversationIDRequired indicates a missing conversationId.
	ErrConversationIDRequired = 2101

	// ErrRoomLimitReached indicates that the connection already joined the maximum number of rooms.
	ErrRoomLimitReached = 2103

	// ErrNotInConversation indicates a send to a room the connection has not joined.
	ErrNotInConversation = 2104

	// ErrJoinConversationFailed is the generic failure of join_conversation.
	ErrJoinConversationFailed = 2105

	// ErrMessageContentRequired indicates an empty message.
	ErrMessageContentRequired = 2201

	// ErrMessageContentTooLong indicates that message content exceeded the size limit.
	ErrMessageContentTooLong = 2202

	// ErrMessageRateExceeded indicates that a connection is sending messages too quickly.
	ErrMessageRateExceeded = 2203

	// ErrSendMessageFailed is the generic failure of send_message.
	ErrSendMessageFailed = 2204

	// ErrParticipantsNotFound indicates usernames that do not exist.
	ErrParticipantsNotFound = 2301
)

// 3xxx: User, session and security errors
const (
	// ErrInvalidToken indicates a credential that failed verification.
	ErrInvalidToken = 3001

	// ErrNotAuthenticated indicates an action attempted before a successful join.
	ErrNotAuthenticated = 3002

	// ErrAuthenticationFailed indicates an unexpected failure while verifying a credential.
	ErrAuthenticationFailed = 3003

	// ErrIdentityMismatch indicates a second join presenting a different user.
	ErrIdentityMismatch = 3004

	// ErrUnauthorized indicates a REST call without a valid bearer token.
	ErrUnauthorized = 3101

	// ErrInvalidCredentials indicates a wrong email or password.
	ErrInvalidCredentials = 3102

	// ErrEmailExists indicates that the email is already registered.
	ErrEmailExists = 3103

	// ErrUsernameExists indicates that the username is already taken.
	ErrUsernameExists = 3104

	// ErrInvalidPassword indicates a password that does not meet the length rule.
	ErrInvalidPassword = 3105
)

// 5xxx: Internal system errors
const (
	// ErrUnknown represents an unclassified internal error.
	ErrUnknown = 5000
)
