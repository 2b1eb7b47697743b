package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageIDDerivation(t *testing.T) {
	assert.Equal(t, "turn-1_user", UserMessageID("turn-1"))
	assert.Equal(t, "turn-1_assistant", AssistantMessageID("turn-1"))
	assert.Equal(t, "turn-1_system", SystemMessageID("turn-1"))
}

func TestConversation_HasAssistantMessage(t *testing.T) {
	conv := &Conversation{
		Messages: []Message{
			{MessageID: UserMessageID("turn-1"), Role: RoleUser, Content: "hi"},
			{MessageID: AssistantMessageID("turn-1"), Role: RoleAssistant, Content: "hello"},
		},
	}

	assert.True(t, conv.HasAssistantMessage("turn-1"))
	assert.False(t, conv.HasAssistantMessage("turn-2"))
}

func TestConversation_LastAssistantContent(t *testing.T) {
	conv := &Conversation{
		Messages: []Message{
			{MessageID: UserMessageID("turn-1"), Role: RoleUser, Content: "hi"},
			{MessageID: AssistantMessageID("turn-1"), Role: RoleAssistant, Content: "hello there"},
		},
	}

	content, ok := conv.LastAssistantContent("turn-1")
	assert.True(t, ok)
	assert.Equal(t, "hello there", content)

	_, ok = conv.LastAssistantContent("turn-2")
	assert.False(t, ok)
}
