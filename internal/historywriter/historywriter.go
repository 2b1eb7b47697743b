// Package historywriter consumes message-completed events and persists the
// finalized conversation into the document store, generating a title on
// first persist.
package historywriter

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

// Worker drives one History Writer replica's consumption of
// message-completed.
type Worker struct {
	cache cache.Service
	store *store.Store
	llm   *llm.Client
}

func NewWorker(c cache.Service, s *store.Store, l *llm.Client) *Worker {
	return &Worker{cache: c, store: s, llm: l}
}

// HandleEvent persists the conversation referenced by one CompletionEvent.
// Idempotent: repeated events for the same sessionId upsert the same
// document.
func (w *Worker) HandleEvent(ctx context.Context, data []byte) error {
	var event models.CompletionEvent
	if err := json.Unmarshal(data, &event); err != nil {
		slog.Error("discarding malformed completion event", "error", err)
		return nil
	}

	conv, err := w.cache.GetConversation(ctx, event.SessionID)
	if err != nil {
		slog.Warn("conversation not in hot cache at history-persist time, skipping", "sessionId", event.SessionID, "error", err)
		return errors.New(errors.ErrTransient, "conversation not yet visible in cache")
	}

	if conv.Title == "" {
		conv.Title = w.llm.GenerateTitle(ctx, firstN(conv.Messages, 6))
	}

	if err := w.store.UpsertConversation(ctx, conv); err != nil {
		return err
	}
	return nil
}

func firstN(msgs []models.Message, n int) []models.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[:n]
}
