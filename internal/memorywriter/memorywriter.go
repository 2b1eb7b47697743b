// Package memorywriter consumes message-completed events on a distinct
// subscription from History Writer, extracts a structured summary and
// embedding via the LLM, and merges profile updates into the user's stored
// UserProfile, writing two separate store records per completed turn.
package memorywriter

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/chatpipe/chatpipe/internal/cache"
	"github.com/chatpipe/chatpipe/internal/errors"
	"github.com/chatpipe/chatpipe/internal/llm"
	"github.com/chatpipe/chatpipe/internal/models"
	"github.com/chatpipe/chatpipe/internal/store"
)

// Worker drives one Memory Writer replica's consumption of
// message-completed.
type Worker struct {
	cache cache.Service
	store *store.Store
	llm   *llm.Client
}

func NewWorker(c cache.Service, s *store.Store, l *llm.Client) *Worker {
	return &Worker{cache: c, store: s, llm: l}
}

// HandleEvent extracts and upserts the ConversationSummary and merges the
// UserProfile for one completed turn. Extraction failures still produce a
// record with defaulted fields so the document exists for search even when
// the LLM call fails.
func (w *Worker) HandleEvent(ctx context.Context, data []byte) error {
	var event models.CompletionEvent
	if err := json.Unmarshal(data, &event); err != nil {
		slog.Error("discarding malformed completion event", "error", err)
		return nil
	}

	conv, err := w.cache.GetConversation(ctx, event.SessionID)
	if err != nil {
		slog.Warn("conversation not in hot cache at memory-extraction time, skipping", "sessionId", event.SessionID, "error", err)
		return errors.New(errors.ErrTransient, "conversation not yet visible in cache")
	}

	extraction, embedding := w.extract(ctx, conv)

	summary := models.ConversationSummary{
		UserID:          event.UserID,
		SessionID:       event.SessionID,
		Summary:         extraction.Summary,
		Themes:          extraction.Themes,
		Persons:         extraction.Persons,
		Places:          extraction.Places,
		UserSentiment:   extraction.UserSentiment,
		VectorEmbedding: embedding,
		Model:           "",
		Timestamp:       event.CompletedAt,
	}
	if err := w.store.UpsertSummary(ctx, &summary); err != nil {
		return err
	}

	return w.mergeProfile(ctx, event.UserID, event.SessionID, extraction.ProfileUpdates)
}

// extract runs the LLM extraction and embedding calls, degrading to a
// defaulted Extraction and nil embedding on any failure rather than
// propagating — the downstream upsert must still happen.
func (w *Worker) extract(ctx context.Context, conv *models.Conversation) (models.Extraction, []float32) {
	extraction, err := w.llm.Extract(ctx, conv)
	if err != nil {
		slog.Warn("extraction call failed, defaulting fields", "sessionId", conv.SessionID, "error", err)
		extraction = &models.Extraction{
			Themes:        []string{},
			Persons:       []string{},
			Places:        []string{},
			UserSentiment: models.SentimentNeutral,
		}
	}

	var embedding []float32
	if extraction.Summary != "" {
		embedding, err = w.llm.Embed(ctx, extraction.Summary)
		if err != nil {
			slog.Warn("embedding call failed, summary will not be vector-searchable", "sessionId", conv.SessionID, "error", err)
			embedding = nil
		}
	}

	return *extraction, embedding
}

func (w *Worker) mergeProfile(ctx context.Context, userID, sessionID string, updates models.ProfileUpdates) error {
	current, err := w.store.GetProfile(ctx, userID)
	if err != nil {
		if appErr, ok := errors.IsAppError(err); !ok || appErr.Code != errors.ErrProfileNotFound {
			return err
		}
		current = nil
	}

	merged := MergeProfile(current, updates, userID, sessionID)
	return w.store.UpsertProfile(ctx, merged)
}
