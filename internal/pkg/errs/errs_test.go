package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewErrorDefaultsStatus(t *testing.T) {
	err := NewError(ErrNotAuthenticated)

	assert.Equal(t, ErrNotAuthenticated, err.Code)
	assert.Equal(t, "Not authenticated", err.Message)
	assert.Equal(t, http.StatusOK, err.Status)
}

func TestNewErrorFormatsDetails(t *testing.T) {
	err := NewError(ErrParticipantsNotFound, "alice, bob")

	assert.Equal(t, "Users not found: alice, bob", err.Message)
	assert.Equal(t, http.StatusBadRequest, err.Status)
}

func TestNewErrorUnknownCode(t *testing.T) {
	err := NewError(424242)

	assert.Equal(t, ErrUnknown, err.Code)
}

func TestNewErrorDoesNotMutateTemplate(t *testing.T) {
	_ = NewError(ErrParticipantsNotFound, "carol")

	assert.Equal(t, "Users not found: %s", errorMap[ErrParticipantsNotFound].Message)
}

func TestAsAndIs(t *testing.T) {
	wrapped := fmt.Errorf("join: %w", NewError(ErrInvalidToken))

	assert.True(t, Is(wrapped, ErrInvalidToken))
	assert.False(t, Is(wrapped, ErrNotAuthenticated))
	assert.Equal(t, ErrInvalidToken, As(wrapped).Code)
	assert.Equal(t, ErrUnknown, As(errors.New("boom")).Code)
}
