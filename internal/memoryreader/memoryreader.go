// Package memoryreader implements the read-only (plus one delete) HTTP
// surface over profiles and the vector-searchable conversation-summary
// partition. Also reachable internally by the Generator's
// search_conversation_history tool via internal/memoryclient.
package memoryreader

import (
	"github.com/gofiber/fiber/v2"

	"github.com/chatpipe/chatpipe/internal/errors"
	"github.com/chatpipe/chatpipe/internal/llm"
	"github.com/chatpipe/chatpipe/internal/models"
	"github.com/chatpipe/chatpipe/internal/store"
	"github.com/chatpipe/chatpipe/internal/validation"
)

const maxSearchLimit = 50
const defaultSearchLimit = 5

type Handler struct {
	store *store.Store
	llm   *llm.Client
}

func NewHandler(s *store.Store, l *llm.Client) *Handler {
	return &Handler{store: s, llm: l}
}

// HandleGetProfile implements GET /users/{userId}/memories.
func (h *Handler) HandleGetProfile(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if err := validation.ValidateUserID(userID); err != nil {
		return err
	}

	profile, err := h.store.GetProfile(c.Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"profile": profile})
}

// HandleDeleteProfile implements DELETE /users/{userId}/memories. Only the
// UserProfile document is removed; ConversationSummary records survive.
func (h *Handler) HandleDeleteProfile(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if err := validation.ValidateUserID(userID); err != nil {
		return err
	}

	if err := h.store.DeleteProfile(c.Context(), userID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleSearch implements POST /users/{userId}/conversations/search, and
// doubles as the internal endpoint the Generator's tool call hits.
func (h *Handler) HandleSearch(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if err := validation.ValidateUserID(userID); err != nil {
		return err
	}

	var req models.ConversationSearchRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.New(errors.ErrBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return errors.New(errors.ErrMissingRequiredField, "query is required")
	}
	if req.Limit <= 0 {
		req.Limit = defaultSearchLimit
	}
	if req.Limit > maxSearchLimit {
		req.Limit = maxSearchLimit
	}
	if err := validation.ValidateSearchLimit(req.Limit, maxSearchLimit); err != nil {
		return err
	}

	embedding, err := h.llm.Embed(c.Context(), req.Query)
	if err != nil {
		return err
	}

	results, err := h.store.SearchSummaries(c.Context(), userID, embedding, req.Limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"results": results})
}
