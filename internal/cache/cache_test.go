package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chatpipe/chatpipe/internal/models"
)

func TestMemoryCache_PutAndGetConversation(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	conv := &models.Conversation{SessionID: "sess-1", UserID: "user-1"}

	assert.NoError(t, c.PutConversation(ctx, conv, time.Minute))

	got, err := c.GetConversation(ctx, "sess-1")
	assert.NoError(t, err)
	assert.Equal(t, conv.UserID, got.UserID)
}

func TestMemoryCache_GetConversationMissing(t *testing.T) {
	c := NewMemoryCache()
	_, err := c.GetConversation(context.Background(), "missing")
	assert.Error(t, err)
}

func TestMemoryCache_GetConversationExpired(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	conv := &models.Conversation{SessionID: "sess-1"}

	assert.NoError(t, c.PutConversation(ctx, conv, -time.Second))

	_, err := c.GetConversation(ctx, "sess-1")
	assert.Error(t, err)
}

func TestMemoryCache_TryLockSession(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	ok, err := c.TryLockSession(ctx, "sess-1", time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.TryLockSession(ctx, "sess-1", time.Minute)
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, c.UnlockSession(ctx, "sess-1"))

	ok, err = c.TryLockSession(ctx, "sess-1", time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCache_TryLockSessionExpires(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	ok, err := c.TryLockSession(ctx, "sess-1", -time.Second)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.TryLockSession(ctx, "sess-1", time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCache_ReplayBuffer(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	assert.NoError(t, c.AppendReplay(ctx, "sess-1", "turn-1", []byte("hello"), time.Minute))
	assert.NoError(t, c.AppendReplay(ctx, "sess-1", "turn-1", []byte(" world"), time.Minute))

	replay, err := c.GetReplay(ctx, "sess-1", "turn-1")
	assert.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("hello"), []byte(" world")}, replay)

	other, err := c.GetReplay(ctx, "sess-1", "turn-2")
	assert.NoError(t, err)
	assert.Empty(t, other)
}
