package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateChatMessage(t *testing.T) {
	assert.NoError(t, ValidateChatMessage("hello there"))
	assert.Error(t, ValidateChatMessage(""))
	assert.Error(t, ValidateChatMessage("   "))
	assert.Error(t, ValidateChatMessage(strings.Repeat("a", maxMessageLength+1)))
	assert.NoError(t, ValidateChatMessage(strings.Repeat("a", maxMessageLength)))
}

func TestValidateSessionID(t *testing.T) {
	assert.NoError(t, ValidateSessionID("abc-123_DEF"))
	assert.Error(t, ValidateSessionID(""))
	assert.Error(t, ValidateSessionID("has a space"))
	assert.Error(t, ValidateSessionID("has/slash"))
}

func TestValidateChatMessageID(t *testing.T) {
	assert.NoError(t, ValidateChatMessageID("msg-1"))
	assert.Error(t, ValidateChatMessageID(""))
	assert.Error(t, ValidateChatMessageID("bad id"))
}

func TestValidateUserID(t *testing.T) {
	assert.NoError(t, ValidateUserID("user-42"))
	assert.Error(t, ValidateUserID(""))
	assert.Error(t, ValidateUserID("user!42"))
}

func TestValidatePagination(t *testing.T) {
	assert.NoError(t, ValidatePagination(10, 0))
	assert.NoError(t, ValidatePagination(0, 0))
	assert.NoError(t, ValidatePagination(100, 50))
	assert.Error(t, ValidatePagination(101, 0))
	assert.Error(t, ValidatePagination(-1, 0))
	assert.Error(t, ValidatePagination(10, -1))
}

func TestValidateSearchLimit(t *testing.T) {
	assert.NoError(t, ValidateSearchLimit(5, 50))
	assert.NoError(t, ValidateSearchLimit(0, 50))
	assert.NoError(t, ValidateSearchLimit(50, 50))
	assert.Error(t, ValidateSearchLimit(51, 50))
	assert.Error(t, ValidateSearchLimit(-1, 50))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hello  "))
	assert.Equal(t, "line1\nline2", SanitizeString("line1\nline2"))
	assert.Equal(t, "ab", SanitizeString("a\x00b"))
	assert.Equal(t, "tab\there", SanitizeString("tab\there"))
}
