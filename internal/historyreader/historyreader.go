// Package historyreader implements the read-only HTTP surface over the
// document store's history partition: list, fetch messages, rename.
package historyreader

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/chatpipe/chatpipe/internal/errors"
	"github.com/chatpipe/chatpipe/internal/models"
	"github.com/chatpipe/chatpipe/internal/store"
	"github.com/chatpipe/chatpipe/internal/validation"
)

type Handler struct {
	store *store.Store
}

func NewHandler(s *store.Store) *Handler {
	return &Handler{store: s}
}

// HandleListConversations implements GET /users/{userId}/conversations.
func (h *Handler) HandleListConversations(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if err := validation.ValidateUserID(userID); err != nil {
		return err
	}

	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if limit == 0 {
		limit = 20
	}
	if err := validation.ValidatePagination(limit, offset); err != nil {
		return err
	}

	convs, err := h.store.ListConversations(c.Context(), userID, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(convs)
}

// HandleGetMessages implements GET /users/{userId}/conversations/{sessionId}/messages.
func (h *Handler) HandleGetMessages(c *fiber.Ctx) error {
	userID := c.Params("userId")
	sessionID := c.Params("sessionId")
	if err := validation.ValidateUserID(userID); err != nil {
		return err
	}
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return err
	}

	conv, err := h.store.GetConversation(c.Context(), userID, sessionID)
	if err != nil {
		return err
	}
	return c.JSON(conv.Messages)
}

// HandleUpdateTitle implements PUT /users/{userId}/conversations/{sessionId}/title.
func (h *Handler) HandleUpdateTitle(c *fiber.Ctx) error {
	userID := c.Params("userId")
	sessionID := c.Params("sessionId")
	if err := validation.ValidateUserID(userID); err != nil {
		return err
	}
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return err
	}

	var req models.TitleUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.New(errors.ErrBadRequest, "invalid request body")
	}
	title := validation.SanitizeString(req.Title)
	if title == "" {
		return errors.New(errors.ErrMissingRequiredField, "title is required")
	}

	if err := h.store.SetTitle(c.Context(), userID, sessionID, title); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
