package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"convochat/internal/app/user"
	"convochat/internal/pkg/errs"
	"convochat/internal/pkg/logx"
)

// CredentialVerifier checks an opaque session credential and returns the identity it is bound to.
type CredentialVerifier interface {
	VerifyCredential(ctx context.Context, token string) (user.Identity, error)
}

// AuthGate binds verified identities to connections.
type AuthGate struct {
	verifier CredentialVerifier
	sessions *SessionRegistry
	logger   zerolog.Logger
}

func NewAuthGate(verifier CredentialVerifier, sessions *SessionRegistry) *AuthGate {
	return &AuthGate{
		verifier: verifier,
		sessions: sessions,
		logger:   logx.Component("auth"),
	}
}

// Authenticate verifies token and binds the identity to connID. fresh is false when the
// connection was already bound to the same user; a different user is rejected and the existing
// binding kept. On any failure nothing is mutated.
func (g *AuthGate) Authenticate(ctx context.Context, connID, token string) (id user.Identity, fresh bool, err error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return user.Identity{}, false, errs.NewError(errs.ErrInvalidToken)
	}

	id, err = g.verifier.VerifyCredential(ctx, token)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return user.Identity{}, false, errs.NewError(errs.ErrAuthenticationFailed)
		}

		g.logger.Info().Err(err).Str("conn_id", connID).Msg("Credential rejected.")
		return user.Identity{}, false, errs.NewError(errs.ErrInvalidToken)
	}

	if !id.Valid() {
		return user.Identity{}, false, errs.NewError(errs.ErrInvalidToken)
	}

	bound, fresh := g.sessions.BindIfAbsent(connID, id)
	if !fresh && bound.ID != id.ID {
		g.logger.Warn().
			Str("conn_id", connID).
			Str("user_id", bound.ID).
			Str("presented_user_id", id.ID).
			Msg("Rejected join with a different identity.")
		return bound, false, errs.NewError(errs.ErrIdentityMismatch)
	}

	return bound, fresh, nil
}
