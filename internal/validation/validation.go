// Package validation holds the request-shape checks shared by Ingress,
// Egress, History Reader and Memory Reader's HTTP handlers: chat-message
// length, sessionId/chatMessageId/userId shape, pagination, and a
// SanitizeString helper for untrusted text.
package validation

import (
	"regexp"
	"strings"

	"github.com/chatpipe/chatpipe/internal/errors"
)

const maxMessageLength = 8000

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateChatMessage checks the text Ingress receives for POST /chat.
func ValidateChatMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return errors.New(errors.ErrMissingRequiredField, "message is required")
	}
	if len(message) > maxMessageLength {
		return errors.NewWithDetails(
			errors.ErrValidationFailed,
			"message exceeds maximum length",
			map[string]interface{}{"max_length": maxMessageLength, "actual": len(message)},
		)
	}
	return nil
}

// ValidateSessionID checks a path/body sessionId.
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return errors.New(errors.ErrMissingRequiredField, "sessionId is required")
	}
	if !idPattern.MatchString(sessionID) {
		return errors.New(errors.ErrInvalidSessionID, "sessionId must contain only alphanumeric characters, hyphens, and underscores")
	}
	return nil
}

// ValidateChatMessageID checks a path/body chatMessageId.
func ValidateChatMessageID(chatMessageID string) error {
	if chatMessageID == "" {
		return errors.New(errors.ErrMissingRequiredField, "chatMessageId is required")
	}
	if !idPattern.MatchString(chatMessageID) {
		return errors.New(errors.ErrValidationFailed, "chatMessageId must contain only alphanumeric characters, hyphens, and underscores")
	}
	return nil
}

// ValidateUserID checks a path/body userId.
func ValidateUserID(userID string) error {
	if userID == "" {
		return errors.New(errors.ErrMissingRequiredField, "userId is required")
	}
	if !idPattern.MatchString(userID) {
		return errors.New(errors.ErrValidationFailed, "userId must contain only alphanumeric characters, hyphens, and underscores")
	}
	return nil
}

// ValidatePagination checks limit/offset query parameters shared by History
// Reader's conversation listing.
func ValidatePagination(limit, offset int) error {
	if limit < 0 || limit > 100 {
		return errors.NewWithDetails(
			errors.ErrValidationFailed,
			"limit must be between 0 and 100",
			map[string]interface{}{"limit": limit},
		)
	}
	if offset < 0 {
		return errors.NewWithDetails(
			errors.ErrValidationFailed,
			"offset must be non-negative",
			map[string]interface{}{"offset": offset},
		)
	}
	return nil
}

// ValidateSearchLimit checks the limit parameter on Memory Reader's vector
// search endpoint, capped at maxLimit.
func ValidateSearchLimit(limit, maxLimit int) error {
	if limit < 0 || limit > maxLimit {
		return errors.NewWithDetails(
			errors.ErrValidationFailed,
			"limit out of range",
			map[string]interface{}{"limit": limit, "max": maxLimit},
		)
	}
	return nil
}

// SanitizeString trims whitespace and strips control characters (other than
// newline/carriage-return/tab) from untrusted text before it's stored or
// forwarded to the LLM.
func SanitizeString(input string) string {
	input = strings.TrimSpace(input)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, input)
}
