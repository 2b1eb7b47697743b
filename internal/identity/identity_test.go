package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chatpipe/chatpipe/internal/errors"
)

func TestStaticRegistry_EmptyListAcceptsAnyNonEmptyUser(t *testing.T) {
	reg := NewStaticRegistry(nil)

	known, err := reg.IsKnownUser(context.Background(), "anyone")
	assert.NoError(t, err)
	assert.True(t, known)

	known, err = reg.IsKnownUser(context.Background(), "")
	assert.NoError(t, err)
	assert.False(t, known)
}

func TestStaticRegistry_NonEmptyListRestrictsToKnownUsers(t *testing.T) {
	reg := NewStaticRegistry([]string{"alice", "bob"})

	known, err := reg.IsKnownUser(context.Background(), "alice")
	assert.NoError(t, err)
	assert.True(t, known)

	known, err = reg.IsKnownUser(context.Background(), "carol")
	assert.NoError(t, err)
	assert.False(t, known)
}

func TestStaticRegistry_Add(t *testing.T) {
	reg := NewStaticRegistry([]string{"alice"})
	reg.Add("carol")

	known, err := reg.IsKnownUser(context.Background(), "carol")
	assert.NoError(t, err)
	assert.True(t, known)
}

func TestRequire(t *testing.T) {
	reg := NewStaticRegistry([]string{"alice"})

	assert.NoError(t, Require(context.Background(), reg, "alice"))

	err := Require(context.Background(), reg, "mallory")
	assert.Error(t, err)
	appErr, ok := errors.IsAppError(err)
	assert.True(t, ok)
	assert.Equal(t, errors.ErrUserUnknown, appErr.Code)
}
