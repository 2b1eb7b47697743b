// Package egress implements the SSE-streaming HTTP surface that forwards
// token-streams fragments to a connected client, filtered by chatMessageId,
// using a context-cancellation-aware read loop over the bus subscription.
package egress

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/chatpipe/chatpipe/internal/bus"
	"github.com/chatpipe/chatpipe/internal/cache"
	"github.com/chatpipe/chatpipe/internal/models"
	"github.com/chatpipe/chatpipe/internal/validation"
)

// Handler streams token-streams fragments for one (sessionId, chatMessageId)
// pair to an SSE client.
type Handler struct {
	bus       *bus.Bus
	cache     cache.Service
	idleLimit time.Duration
}

func NewHandler(b *bus.Bus, c cache.Service, idleLimit time.Duration) *Handler {
	if idleLimit <= 0 {
		idleLimit = 5 * time.Minute
	}
	return &Handler{bus: b, cache: c, idleLimit: idleLimit}
}

// HandleStream implements GET /stream/{sessionId}/{chatMessageId}.
func (h *Handler) HandleStream(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	chatMessageID := c.Params("chatMessageId")
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return err
	}
	if err := validation.ValidateChatMessageID(chatMessageID); err != nil {
		return err
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		streamCtx, cancel := context.WithTimeout(context.Background(), h.idleLimit)
		defer cancel()

		if h.replayIfComplete(streamCtx, w, sessionID, chatMessageID) {
			return
		}

		sub, err := h.bus.SessionReceiver(sessionID)
		if err != nil {
			writeSSE(w, fmt.Sprintf(`{"error":%q}`, "failed to open session receiver"))
			return
		}
		defer sub.Unsubscribe()

		h.pump(streamCtx, cancel, w, sub, chatMessageID)
	})

	return nil
}

// replayIfComplete serves the stored replay buffer or the final stored
// assistant message when the requested turn already finished before this
// client connected.
func (h *Handler) replayIfComplete(ctx context.Context, w *bufio.Writer, sessionID, chatMessageID string) bool {
	replay, err := h.cache.GetReplay(ctx, sessionID, chatMessageID)
	if err == nil && len(replay) > 0 {
		var frags []models.TokenPayload
		complete := false
		for _, frag := range replay {
			var payload models.TokenPayload
			if json.Unmarshal(frag, &payload) != nil || payload.ChatMessageID != chatMessageID {
				continue
			}
			frags = append(frags, payload)
			if payload.End {
				complete = true
				break
			}
		}
		if complete {
			for _, payload := range frags {
				if writeToken(w, payload) != nil {
					return true
				}
			}
			return true
		}
	}

	conv, err := h.cache.GetConversation(ctx, sessionID)
	if err != nil {
		return false
	}
	if content, ok := conv.LastAssistantContent(chatMessageID); ok {
		if writeToken(w, models.TokenPayload{SessionID: sessionID, ChatMessageID: chatMessageID, Token: content}) != nil {
			return true
		}
		writeToken(w, models.TokenPayload{SessionID: sessionID, ChatMessageID: chatMessageID, End: true})
		return true
	}
	return false
}

// pump reads fragments off the session receiver until the matching
// chatMessageId's end-of-stream sentinel arrives, the context's idle
// deadline elapses, or the client disconnects. Fragments belonging to a
// different chatMessageId on the same session are silently skipped — the
// system runs one SSE stream per chatMessageId. A failed write means the
// client is gone; cancel cuts the NATS receiver loose immediately instead
// of leaving it blocked until the idle deadline.
func (h *Handler) pump(ctx context.Context, cancel context.CancelFunc, w *bufio.Writer, sub *nats.Subscription, chatMessageID string) {
	for {
		msg, err := sub.NextMsgWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("session receiver read failed", "error", err)
			writeSSE(w, "error")
			return
		}

		var payload models.TokenPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			continue
		}
		if payload.ChatMessageID != chatMessageID {
			continue
		}

		if err := writeToken(w, payload); err != nil {
			slog.Debug("sse client disconnected, closing session receiver", "chatMessageId", chatMessageID, "error", err)
			cancel()
			return
		}
		if payload.End {
			return
		}
	}
}

func writeToken(w *bufio.Writer, payload models.TokenPayload) error {
	if payload.End {
		return writeSSE(w, "__END__")
	}
	if payload.Error != "" {
		return writeSSE(w, fmt.Sprintf(`{"error":%q}`, payload.Error))
	}
	data, err := json.Marshal(map[string]string{"token": payload.Token})
	if err != nil {
		return err
	}
	return writeSSE(w, string(data))
}

func writeSSE(w *bufio.Writer, data string) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}
