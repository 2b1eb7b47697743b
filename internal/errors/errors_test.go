package errors

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_StatusCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, New(ErrValidationFailed, "bad").StatusCode())
	assert.Equal(t, http.StatusNotFound, New(ErrConversationNotFound, "missing").StatusCode())
	assert.Equal(t, http.StatusInternalServerError, New(ErrorCode("UNMAPPED"), "x").StatusCode())
}

func TestAppError_Retryable(t *testing.T) {
	assert.True(t, New(ErrTransient, "blip").Retryable())
	assert.True(t, New(ErrUpstream, "llm down").Retryable())
	assert.False(t, New(ErrValidationFailed, "bad input").Retryable())
	assert.False(t, New(ErrConflict, "already done").Retryable())
}

func TestWrap_PassesThroughExistingAppError(t *testing.T) {
	original := New(ErrConflict, "dup")
	wrapped := Wrap(original, ErrInternalServer)
	assert.Same(t, original, wrapped)
}

func TestWrap_WrapsPlainError(t *testing.T) {
	plain := stderrors.New("boom")
	wrapped := Wrap(plain, ErrStoreError)
	assert.Equal(t, ErrStoreError, wrapped.Code)
	assert.Equal(t, "boom", wrapped.Message)
}

func TestIsAppError(t *testing.T) {
	appErr, ok := IsAppError(New(ErrBadRequest, "x"))
	assert.True(t, ok)
	assert.Equal(t, ErrBadRequest, appErr.Code)

	_, ok = IsAppError(stderrors.New("plain"))
	assert.False(t, ok)
}

func TestNewWithDetails(t *testing.T) {
	err := NewWithDetails(ErrValidationFailed, "too long", map[string]interface{}{"max": 10})
	assert.Equal(t, "too long", err.Message)
	assert.NotNil(t, err.Details)
}
