package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"

	"convochat/internal/app/user"
)

const (
	// SessionExpiration is the default lifetime of a session credential.
	SessionExpiration = 7 * 24 * time.Hour

	// TokenIssuer identifies the issuer of the token.
	TokenIssuer = "ConvoChat-Server"
)

// ErrInvalidToken is returned for malformed, expired or wrongly signed credentials.
var ErrInvalidToken = errors.New("invalid or expired token")

// GenerateToken signs payload with HS256 and the given lifetime.
func GenerateToken(payload *Payload, secretKey string, duration time.Duration) (string, error) {
	now := time.Now()

	payload.StandardClaims = jwt.StandardClaims{
		ExpiresAt: now.Add(duration).Unix(),
		IssuedAt:  now.Unix(),
		Issuer:    TokenIssuer,
		Subject:   payload.UserID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)

	return token.SignedString([]byte(secretKey))
}

// ParseToken validates tokenString and returns its claims.
// Any verification failure is reported as ErrInvalidToken wrapping the cause.
func ParseToken(tokenString string, secretKey string) (*Payload, error) {
	claims := &Payload{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.UserID == "" || claims.Username == "" {
		return nil, fmt.Errorf("%w: missing identity claims", ErrInvalidToken)
	}

	return claims, nil
}

// Identity converts the claims into the identity bound to a connection.
func (p *Payload) Identity() user.Identity {
	return user.Identity{
		ID:       p.UserID,
		Username: p.Username,
		Email:    p.Email,
	}
}

// Verifier is the credential service used by the real-time core.
type Verifier struct {
	secretKey string
}

// NewVerifier returns a Verifier for tokens signed with secretKey.
func NewVerifier(secretKey string) *Verifier {
	return &Verifier{secretKey: secretKey}
}

// VerifyCredential checks signature and expiry and returns the identity the token is bound to.
func (v *Verifier) VerifyCredential(_ context.Context, token string) (user.Identity, error) {
	payload, err := ParseToken(token, v.secretKey)
	if err != nil {
		return user.Identity{}, err
	}
	return payload.Identity(), nil
}
