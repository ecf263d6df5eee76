package jwt

import "github.com/golang-jwt/jwt"

// Payload is the claim set of a session credential.
// Field names match what clients already decode: userId, email, username.
type Payload struct {
	jwt.StandardClaims

	// UserID is the durable user identifier.
	UserID string `json:"userId"`

	// Email is the account email at issue time.
	Email string `json:"email"`

	// Username is the display name, denormalized into messages written under this token.
	Username string `json:"username"`
}
