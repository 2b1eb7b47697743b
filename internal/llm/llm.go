// Package llm wraps the chat-completion and embedding model the Generator,
// History Writer and Memory Writer all depend on, using go-openai's client
// against an OpenAI-compatible endpoint.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chatpipe/chatpipe/internal/config"
	"github.com/chatpipe/chatpipe/internal/errors"
	"github.com/chatpipe/chatpipe/internal/models"
)

// SearchHistoryToolName is the function tool the Generator exposes to the
// model so it can pull older conversation summaries into context.
const SearchHistoryToolName = "search_conversation_history"

// Client wraps the OpenAI-compatible chat/embeddings API.
type Client struct {
	raw *openai.Client
	cfg config.LLMConfig
}

func New(cfg config.LLMConfig) *Client {
	oaiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaiCfg.BaseURL = cfg.BaseURL
	}
	return &Client{raw: openai.NewClientWithConfig(oaiCfg), cfg: cfg}
}

// StreamDelta is one increment of a streaming chat completion: either a
// content token, a tool call the caller must service and resubmit, or the
// terminal state.
type StreamDelta struct {
	Token        string
	ToolCall     *ToolCallRequest
	FinishReason string
	Done         bool
}

// ToolCallRequest is a single function-call the model asked for, surfaced to
// the Generator's state machine so it can invoke the Memory Reader
// collaborator and continue the conversation with the tool result appended.
type ToolCallRequest struct {
	ID        string
	Name      string
	Arguments string
}

// searchHistoryTool describes SearchHistoryToolName to the model.
var searchHistoryTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        SearchHistoryToolName,
		Description: "Search the user's past conversation summaries for relevant context.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "what to search for"},
				"limit": {"type": "integer", "description": "max results, default 5"}
			},
			"required": ["query"]
		}`),
	},
}

func toOpenAIMessages(system string, history []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range history {
		out = append(out, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// StreamChat opens a streaming chat completion and delivers one StreamDelta
// per callback invocation. allowTools gates whether search_conversation_history
// is offered — the Generator disables it once its per-turn tool-call budget
// is exhausted.
func (c *Client) StreamChat(ctx context.Context, systemPrompt string, history []models.Message, allowTools bool, onDelta func(StreamDelta) error) error {
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.ChatModel,
		Messages:    toOpenAIMessages(systemPrompt, history),
		Temperature: c.cfg.Temperature,
		Stream:      true,
	}
	if allowTools {
		req.Tools = []openai.Tool{searchHistoryTool}
	}

	stream, err := c.raw.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return errors.New(errors.ErrLLMError, fmt.Sprintf("chat completion stream failed: %v", err))
	}
	defer stream.Close()

	var pendingCall *ToolCallRequest
	for {
		resp, err := stream.Recv()
		if err != nil {
			if err.Error() == "EOF" {
				return onDelta(StreamDelta{Done: true})
			}
			return errors.New(errors.ErrUpstream, fmt.Sprintf("chat completion stream read failed: %v", err))
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]

		for _, tc := range choice.Delta.ToolCalls {
			if pendingCall == nil {
				pendingCall = &ToolCallRequest{ID: tc.ID, Name: tc.Function.Name}
			}
			pendingCall.Arguments += tc.Function.Arguments
		}

		if choice.Delta.Content != "" {
			if err := onDelta(StreamDelta{Token: choice.Delta.Content}); err != nil {
				return err
			}
		}

		if choice.FinishReason != "" {
			if choice.FinishReason == openai.FinishReasonToolCalls && pendingCall != nil {
				return onDelta(StreamDelta{ToolCall: pendingCall, FinishReason: string(choice.FinishReason), Done: true})
			}
			return onDelta(StreamDelta{FinishReason: string(choice.FinishReason), Done: true})
		}
	}
}

// ContinueWithToolResult resumes the conversation after the Generator has
// executed a tool call, appending the call and its result as messages and
// streaming the model's follow-up response. allowTools gates whether
// search_conversation_history is re-offered on this hop, letting the
// Generator chain further tool calls up to its per-turn cap instead of
// forcing a final-answer response after a single tool round.
func (c *Client) ContinueWithToolResult(ctx context.Context, systemPrompt string, history []models.Message, call ToolCallRequest, result string, allowTools bool, onDelta func(StreamDelta) error) error {
	msgs := toOpenAIMessages(systemPrompt, history)
	msgs = append(msgs,
		openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleAssistant,
			ToolCalls: []openai.ToolCall{{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			}},
		},
		openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    result,
			ToolCallID: call.ID,
		},
	)

	req := openai.ChatCompletionRequest{
		Model:       c.cfg.ChatModel,
		Messages:    msgs,
		Temperature: c.cfg.Temperature,
		Stream:      true,
	}
	if allowTools {
		req.Tools = []openai.Tool{searchHistoryTool}
	}

	stream, err := c.raw.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return errors.New(errors.ErrLLMError, fmt.Sprintf("tool-result completion stream failed: %v", err))
	}
	defer stream.Close()

	var pendingCall *ToolCallRequest
	for {
		resp, err := stream.Recv()
		if err != nil {
			if err.Error() == "EOF" {
				return onDelta(StreamDelta{Done: true})
			}
			return errors.New(errors.ErrUpstream, fmt.Sprintf("tool-result stream read failed: %v", err))
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]

		for _, tc := range choice.Delta.ToolCalls {
			if pendingCall == nil {
				pendingCall = &ToolCallRequest{ID: tc.ID, Name: tc.Function.Name}
			}
			pendingCall.Arguments += tc.Function.Arguments
		}

		if choice.Delta.Content != "" {
			if err := onDelta(StreamDelta{Token: choice.Delta.Content}); err != nil {
				return err
			}
		}
		if choice.FinishReason != "" {
			if choice.FinishReason == openai.FinishReasonToolCalls && pendingCall != nil {
				return onDelta(StreamDelta{ToolCall: pendingCall, FinishReason: string(choice.FinishReason), Done: true})
			}
			return onDelta(StreamDelta{FinishReason: string(choice.FinishReason), Done: true})
		}
	}
}

// GenerateTitle asks the model for a 3-6 word title from the first few
// messages, falling back to a fixed default when the call fails so title
// generation never blocks a conversation from being persisted.
func (c *Client) GenerateTitle(ctx context.Context, firstMessages []models.Message) string {
	const fallback = "New Conversation"
	if len(firstMessages) == 0 {
		return fallback
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.Timeout)*time.Second)
	defer cancel()

	resp, err := c.raw.CreateChatCompletion(timeoutCtx, openai.ChatCompletionRequest{
		Model: c.cfg.ChatModel,
		Messages: append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: "Produce a concise 3 to 6 word title summarizing this conversation opener. Respond with the title only, no punctuation.",
		}}, toOpenAIMessages("", firstMessages)...),
		Temperature: 0.3,
		MaxTokens:   20,
	})
	if err != nil || len(resp.Choices) == 0 {
		slog.Warn("title generation failed, using fallback", "error", err)
		return fallback
	}
	title := resp.Choices[0].Message.Content
	if title == "" {
		return fallback
	}
	return title
}

// Extract runs the Memory Writer's JSON-mode pass over a finished
// conversation, producing the summary, themes/persons/places/sentiment, and
// candidate profile updates in one call.
func (c *Client) Extract(ctx context.Context, conv *models.Conversation) (*models.Extraction, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.Timeout)*time.Second)
	defer cancel()

	resp, err := c.raw.CreateChatCompletion(timeoutCtx, openai.ChatCompletionRequest{
		Model: c.cfg.ChatModel,
		Messages: append([]openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleSystem,
			Content: `Summarize the conversation and extract durable facts about the user. Respond with a single JSON object matching:
{"summary": string, "themes": [string], "persons": [string], "places": [string], "user_sentiment": "positive"|"neutral"|"negative",
 "profile_updates": {"output_preferences": [string], "personal_preferences": [string], "assistant_preferences": [string],
 "knowledge": [string], "interests": [string], "dislikes": [string], "family_and_friends": [string], "work_profile": [string], "goals": [string]}}
Omit facts you are not confident about. Use empty arrays, never null.`,
		}}, toOpenAIMessages("", conv.Messages)...),
		Temperature:    0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return nil, errors.New(errors.ErrLLMError, fmt.Sprintf("extraction call failed: %v", err))
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New(errors.ErrLLMError, "extraction call returned no choices")
	}

	var ext models.Extraction
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &ext); err != nil {
		return nil, errors.New(errors.ErrUpstream, fmt.Sprintf("extraction response was not valid JSON: %v", err))
	}
	return &ext, nil
}

// Embed produces a single embedding vector for text, used for both the
// ConversationSummary write path and a Memory Reader query vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.Timeout)*time.Second)
	defer cancel()

	resp, err := c.raw.CreateEmbeddings(timeoutCtx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
	})
	if err != nil {
		return nil, errors.New(errors.ErrLLMError, fmt.Sprintf("embedding call failed: %v", err))
	}
	if len(resp.Data) == 0 {
		return nil, errors.New(errors.ErrLLMError, "embedding call returned no data")
	}
	return resp.Data[0].Embedding, nil
}
