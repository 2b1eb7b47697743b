// Package ingress implements the HTTP surface that accepts chat submissions
// and hands them to the bus with a single publish — this component never
// talks to the LLM directly.
package ingress

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/chatpipe/chatpipe/internal/bus"
	"github.com/chatpipe/chatpipe/internal/errors"
	"github.com/chatpipe/chatpipe/internal/identity"
	"github.com/chatpipe/chatpipe/internal/models"
	"github.com/chatpipe/chatpipe/internal/validation"
)

// Handler wires the bus and the identity registry into Fiber route methods.
type Handler struct {
	bus   *bus.Bus
	users identity.Registry
}

func NewHandler(b *bus.Bus, users identity.Registry) *Handler {
	return &Handler{bus: b, users: users}
}

// HandleSessionStart implements POST /session/start. Stateless: the
// sessionId is just a fresh UUID, nothing is written anywhere until the
// first /chat call.
func (h *Handler) HandleSessionStart(c *fiber.Ctx) error {
	var req models.SessionStartRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.New(errors.ErrBadRequest, "invalid request body")
	}
	if err := validation.ValidateUserID(req.UserID); err != nil {
		return err
	}
	if err := identity.Require(c.Context(), h.users, req.UserID); err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(models.SessionStartResponse{
		SessionID: uuid.New().String(),
	})
}

// HandleChat implements POST /chat. Validates, then publishes a single
// envelope to user-messages and returns 202 as soon as the broker
// acknowledges enqueue — no in-memory session table, so this handler is
// scale-to-zero tolerant.
func (h *Handler) HandleChat(c *fiber.Ctx) error {
	var req models.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.New(errors.ErrBadRequest, "invalid request body")
	}

	if err := validation.ValidateUserID(req.UserID); err != nil {
		return err
	}
	if err := validation.ValidateSessionID(req.SessionID); err != nil {
		return err
	}
	if err := validation.ValidateChatMessageID(req.ChatMessageID); err != nil {
		return err
	}
	if err := validation.ValidateChatMessage(req.Message); err != nil {
		return err
	}
	if err := identity.Require(c.Context(), h.users, req.UserID); err != nil {
		return err
	}

	envelope := models.UserMessageEnvelope{
		SessionID:     req.SessionID,
		UserID:        req.UserID,
		ChatMessageID: req.ChatMessageID,
		Text:          validation.SanitizeString(req.Message),
		SubmittedAt:   time.Now(),
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternalServer)
	}

	if err := h.bus.PublishUserMessage(c.Context(), data); err != nil {
		return errors.New(errors.ErrQueueUnavailable, "failed to enqueue chat message")
	}

	return c.SendStatus(fiber.StatusAccepted)
}

// HandleHealth reports liveness for the load balancer / orchestrator probe.
func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
