// Package generator implements the bus-consuming heart of the system: it
// loads conversation state, personalizes new sessions, drives the LLM's
// streaming + tool-calling state machine, and finalizes each turn, built
// as a bus consumer rather than an HTTP handler.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/chatpipe/chatpipe/internal/bus"
	"github.com/chatpipe/chatpipe/internal/cache"
	"github.com/chatpipe/chatpipe/internal/errors"
	"github.com/chatpipe/chatpipe/internal/llm"
	"github.com/chatpipe/chatpipe/internal/memoryclient"
	"github.com/chatpipe/chatpipe/internal/models"
	"github.com/chatpipe/chatpipe/internal/store"
)

const (
	cacheTTL          = 24 * time.Hour
	maxToolCallsPerTurn = 3
	maxLLMRetries       = 3
	inFlightLockTTL     = 10 * time.Minute
	replayTTL           = 30 * time.Second
)

const basePromptTemplate = "You are a helpful assistant."

// Worker drives one Generator replica's consumption of user-messages.
type Worker struct {
	bus    *bus.Bus
	cache  cache.Service
	store  *store.Store
	llm    *llm.Client
	memory *memoryclient.Client

	memoryTimeout time.Duration
}

func NewWorker(b *bus.Bus, c cache.Service, s *store.Store, l *llm.Client, mc *memoryclient.Client, memoryTimeout time.Duration) *Worker {
	if memoryTimeout <= 0 {
		memoryTimeout = 2 * time.Second
	}
	return &Worker{bus: b, cache: c, store: s, llm: l, memory: mc, memoryTimeout: memoryTimeout}
}

// HandleEnvelope runs one delivery of a UserMessageEnvelope through the
// five-step pipeline. The caller (cmd/generator's pull loop) is responsible
// for Ack/Nak based on the returned error.
func (w *Worker) HandleEnvelope(ctx context.Context, data []byte) error {
	var env models.UserMessageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Error("discarding malformed user-message envelope", "error", err)
		return nil
	}

	locked, err := w.cache.TryLockSession(ctx, env.SessionID, inFlightLockTTL)
	if err != nil {
		return errors.Wrap(err, errors.ErrCacheError)
	}
	if !locked {
		slog.Warn("session already in flight, deferring for redelivery", "sessionId", env.SessionID)
		return errors.New(errors.ErrConflict, "session already in flight")
	}
	defer w.cache.UnlockSession(ctx, env.SessionID)

	conv, isNew, err := w.loadConversation(ctx, env.SessionID, env.UserID)
	if err != nil {
		return err
	}

	if conv.HasAssistantMessage(env.ChatMessageID) {
		slog.Info("turn already generated, replaying end sentinel only", "sessionId", env.SessionID, "chatMessageId", env.ChatMessageID)
		return w.publishEnd(ctx, env)
	}

	if isNew {
		w.personalize(ctx, conv, env.UserID, env.ChatMessageID)
	}

	conv.Messages = append(conv.Messages, models.Message{
		MessageID: models.UserMessageID(env.ChatMessageID),
		Role:      models.RoleUser,
		Content:   env.Text,
		Timestamp: env.SubmittedAt,
	})

	assistantContent, err := w.runCompletion(ctx, conv, env)
	if err != nil {
		w.publishErrorFragment(ctx, env, err)
		return err
	}

	conv.Messages = append(conv.Messages, models.Message{
		MessageID: models.AssistantMessageID(env.ChatMessageID),
		Role:      models.RoleAssistant,
		Content:   assistantContent,
		Timestamp: time.Now(),
	})
	conv.LastActivity = time.Now()

	if err := w.cache.PutConversation(ctx, conv, cacheTTL); err != nil {
		return errors.Wrap(err, errors.ErrCacheError)
	}

	if err := w.publishEnd(ctx, env); err != nil {
		return err
	}

	return w.publishCompletion(ctx, env)
}

// loadConversation checks the hot cache first, then falls back to the
// document store before concluding a session is genuinely new — the cache
// entry can expire or get evicted well before the store's copy does, and
// treating that as a fresh session would silently drop every prior turn.
func (w *Worker) loadConversation(ctx context.Context, sessionID, userID string) (*models.Conversation, bool, error) {
	conv, err := w.cache.GetConversation(ctx, sessionID)
	if err == nil {
		return conv, false, nil
	}

	conv, err = w.store.GetConversation(ctx, userID, sessionID)
	if err == nil {
		if err := w.cache.PutConversation(ctx, conv, cacheTTL); err != nil {
			slog.Warn("failed to rehydrate hot cache from store", "sessionId", sessionID, "error", err)
		}
		return conv, false, nil
	}
	if appErr, ok := errors.IsAppError(err); !ok || appErr.Code != errors.ErrConversationNotFound {
		return nil, false, err
	}

	now := time.Now()
	return &models.Conversation{
		SessionID:    sessionID,
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
		Messages:     nil,
	}, true, nil
}

// personalize fetches the UserProfile with a hard 2s timeout and prepends a
// rendered system prompt. On timeout or error it falls back to the base
// template unchanged.
func (w *Worker) personalize(ctx context.Context, conv *models.Conversation, userID, chatMessageID string) {
	timeoutCtx, cancel := context.WithTimeout(ctx, w.memoryTimeout)
	defer cancel()

	prompt := basePromptTemplate
	profile, err := w.memory.FetchProfile(timeoutCtx, userID)
	if err != nil {
		slog.Warn("personalization fetch failed, using base prompt", "userId", userID, "error", err)
	} else {
		prompt = renderSystemPrompt(profile)
	}

	conv.Messages = append([]models.Message{{
		MessageID: models.SystemMessageID(chatMessageID),
		Role:      models.RoleSystem,
		Content:   prompt,
		Timestamp: time.Now(),
	}}, conv.Messages...)
}

func renderSystemPrompt(p *models.UserProfile) string {
	prompt := basePromptTemplate
	if len(p.PersonalPreferences) > 0 {
		prompt += fmt.Sprintf(" The user's preferences: %v.", p.PersonalPreferences)
	}
	if len(p.Interests) > 0 {
		prompt += fmt.Sprintf(" Known interests: %v.", p.Interests)
	}
	if len(p.Goals) > 0 {
		prompt += fmt.Sprintf(" Stated goals: %v.", p.Goals)
	}
	return prompt
}

// runCompletion drives the streaming + tool-calling state machine and
// returns the final assistant text.
func (w *Worker) runCompletion(ctx context.Context, conv *models.Conversation, env models.UserMessageEnvelope) (string, error) {
	var assistantText string

	var attempt func(history []models.Message) error
	attempt = func(history []models.Message) error {
		var lastErr error
		for try := 1; try <= maxLLMRetries; try++ {
			assistantText = ""
			toolCalls := 0

			// onDelta is shared across the initial StreamChat call and every
			// ContinueWithToolResult hop it chains into, so toolCalls keeps
			// counting across hops and maxToolCallsPerTurn bounds the whole
			// turn rather than just the first round.
			var onDelta func(llm.StreamDelta) error
			onDelta = func(delta llm.StreamDelta) error {
				if delta.Token != "" {
					assistantText += delta.Token
					return w.publishToken(ctx, env, delta.Token)
				}
				if delta.ToolCall != nil && toolCalls < maxToolCallsPerTurn {
					toolCalls++
					allowTools := toolCalls < maxToolCallsPerTurn
					result, toolErr := w.invokeTool(ctx, env.UserID, *delta.ToolCall)
					if toolErr != nil {
						result = fmt.Sprintf(`{"error":%q}`, toolErr.Error())
					}
					return w.llm.ContinueWithToolResult(ctx, "", history, *delta.ToolCall, result, allowTools, onDelta)
				}
				return nil
			}

			err := w.llm.StreamChat(ctx, "", history, maxToolCallsPerTurn > 0, onDelta)
			if err == nil {
				return nil
			}
			lastErr = err
			slog.Warn("llm stream attempt failed, retrying", "attempt", try, "error", err)
			time.Sleep(jitteredBackoff(try))
		}
		return lastErr
	}

	if err := attempt(conv.Messages); err != nil {
		return "", errors.New(errors.ErrUpstream, fmt.Sprintf("llm completion failed after retries: %v", err))
	}
	return assistantText, nil
}

func jitteredBackoff(attempt int) time.Duration {
	base := time.Duration(attempt) * 200 * time.Millisecond
	return base + rand.N(base)
}

// invokeTool services search_conversation_history by calling the Memory
// Reader collaborator, capping limit to 20.
func (w *Worker) invokeTool(ctx context.Context, userID string, call llm.ToolCallRequest) (string, error) {
	if call.Name != llm.SearchHistoryToolName {
		return "", errors.New(errors.ErrValidationFailed, "unknown tool: "+call.Name)
	}

	var args struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return "", errors.New(errors.ErrValidationFailed, "malformed tool arguments")
	}
	if args.Limit <= 0 {
		args.Limit = 5
	}
	if args.Limit > 20 {
		args.Limit = 20
	}

	results, err := w.memory.SearchHistory(ctx, userID, args.Query, args.Limit)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(results)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrInternalServer)
	}
	return string(out), nil
}

func (w *Worker) publishToken(ctx context.Context, env models.UserMessageEnvelope, token string) error {
	data, err := json.Marshal(models.TokenPayload{
		SessionID:     env.SessionID,
		ChatMessageID: env.ChatMessageID,
		Token:         token,
	})
	if err != nil {
		return err
	}
	if err := w.cache.AppendReplay(ctx, env.SessionID, env.ChatMessageID, data, replayTTL); err != nil {
		slog.Warn("replay buffer append failed", "error", err)
	}
	return w.bus.PublishToken(ctx, env.SessionID, data)
}

func (w *Worker) publishEnd(ctx context.Context, env models.UserMessageEnvelope) error {
	data, err := json.Marshal(models.TokenPayload{
		SessionID:     env.SessionID,
		ChatMessageID: env.ChatMessageID,
		End:           true,
	})
	if err != nil {
		return err
	}
	if err := w.cache.AppendReplay(ctx, env.SessionID, env.ChatMessageID, data, replayTTL); err != nil {
		slog.Warn("replay buffer append failed", "error", err)
	}
	if err := w.bus.PublishToken(ctx, env.SessionID, data); err != nil {
		return errors.Wrap(err, errors.ErrQueueUnavailable)
	}
	return nil
}

func (w *Worker) publishErrorFragment(ctx context.Context, env models.UserMessageEnvelope, cause error) {
	data, err := json.Marshal(models.TokenPayload{
		SessionID:     env.SessionID,
		ChatMessageID: env.ChatMessageID,
		Error:         "generation failed",
	})
	if err != nil {
		return
	}
	if pubErr := w.bus.PublishToken(ctx, env.SessionID, data); pubErr != nil {
		slog.Error("failed to publish error fragment", "error", pubErr, "cause", cause)
	}
}

func (w *Worker) publishCompletion(ctx context.Context, env models.UserMessageEnvelope) error {
	event := models.NewCompletionEvent(env.SessionID, env.UserID, env.ChatMessageID, time.Now())
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternalServer)
	}
	if err := w.bus.PublishCompletion(ctx, data); err != nil {
		return errors.New(errors.ErrQueueUnavailable, "failed to publish completion event")
	}
	return nil
}
