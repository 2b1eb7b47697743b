package models

// UserMessageID derives the messageId for the user half of a turn.
func UserMessageID(chatMessageID string) string {
	return chatMessageID + "_user"
}

// AssistantMessageID derives the messageId for the assistant half of a turn.
func AssistantMessageID(chatMessageID string) string {
	return chatMessageID + "_assistant"
}

// SystemMessageID derives the messageId for the personalized system prompt.
func SystemMessageID(chatMessageID string) string {
	return chatMessageID + "_system"
}

// HasAssistantMessage reports whether the conversation already holds the
// assistant half of the given turn — the Generator's idempotency check on
// bus redelivery.
func (c *Conversation) HasAssistantMessage(chatMessageID string) bool {
	want := AssistantMessageID(chatMessageID)
	for _, m := range c.Messages {
		if m.MessageID == want {
			return true
		}
	}
	return false
}

// LastAssistantContent returns the content of the assistant message for the
// given turn, if any — used by Egress's fallback path when a client connects
// after the stream has already completed and the sentinel was lost.
func (c *Conversation) LastAssistantContent(chatMessageID string) (string, bool) {
	want := AssistantMessageID(chatMessageID)
	for _, m := range c.Messages {
		if m.MessageID == want {
			return m.Content, true
		}
	}
	return "", false
}
