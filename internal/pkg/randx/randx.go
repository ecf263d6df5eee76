/*
Package randx generates identifiers for messages, conversations, users and connections.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the number of characters in Base62Chars.
	Base62Len = int64(len(Base62Chars))

	// ConnIDLength is the length of a connection identifier.
	ConnIDLength = 16

	// conversationNamePrefixLen is how many id characters a default conversation name carries.
	conversationNamePrefixLen = 8
)

// MessageID returns a UUIDv7. v7 ids sort by creation time and are monotonic within the process,
// so they break ties between messages sharing a created_at value in insertion order.
func MessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// ConversationID returns a random UUID for a new conversation.
func ConversationID() string {
	return uuid.New().String()
}

// UserID returns a random UUID for a new user account.
func UserID() string {
	return uuid.New().String()
}

// DefaultConversationName is the name given to a conversation created without one.
func DefaultConversationName(conversationID string) string {
	prefix := conversationID
	if len(prefix) > conversationNamePrefixLen {
		prefix = prefix[:conversationNamePrefixLen]
	}
	return "Conversation " + prefix
}

// ConnID returns a Base62 identifier for a live connection.
func ConnID() (string, error) {
	result := make([]byte, ConnIDLength)

	for i := 0; i < ConnIDLength; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number for connection id: %v", err)
		}

		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}
