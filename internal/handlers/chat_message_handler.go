package handlers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/yuju-k/happy-wave/internal/event"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type ChatMessageHandler struct {
	dispatcher event.MessageDispatcher
	timeout    time.Duration
}

type DispatchResponse struct {
	InvocationID string `json:"invocation_id"`
	Outcome      string `json:"outcome"`
	Reason       string `json:"reason,omitempty"`
	DeliveryID   string `json:"delivery_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

func NewChatMessageHandler(dispatcher event.MessageDispatcher, timeout time.Duration) *ChatMessageHandler {
	return &ChatMessageHandler{
		dispatcher: dispatcher,
		timeout:    timeout,
	}
}

func (h *ChatMessageHandler) Register(app *fiber.App) {
	const base = "/notification/api/v1/chat-messages"

	app.Post(base, h.MessageCreated)
	app.Post(base+"/firestore", h.FirestoreTrigger)
}

// MessageCreated accepts a MessageCreatedEvent body.
func (h *ChatMessageHandler) MessageCreated(c fiber.Ctx) error {
	var evt event.MessageCreatedEvent
	if err := c.Bind().Body(&evt); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	return h.dispatch(c, evt)
}

// FirestoreTrigger accepts a Firestore document.create event forwarded by a push subscription.
func (h *ChatMessageHandler) FirestoreTrigger(c fiber.Ctx) error {
	var fe event.FirestoreEvent
	if err := c.Bind().Body(&fe); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	evt, err := fe.MessageCreated()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Unexpected document",
			"detail": err.Error(),
		})
	}
	return h.dispatch(c, evt)
}

func (h *ChatMessageHandler) dispatch(c fiber.Ctx, evt event.MessageCreatedEvent) error {
	invocationID := uuid.NewString()
	log := slog.With("invocation_id", invocationID)

	ctx := c.UserContext()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res, err := h.dispatcher.Dispatch(ctx, evt.RoomID, evt.MessageID, evt.Message)
	if err != nil {
		log.Error("Dispatch failed", "room_id", evt.RoomID, "message_id", evt.MessageID, "error", err)
		code := fiber.StatusInternalServerError
		if isTimeout(err) {
			code = fiber.StatusGatewayTimeout
		}
		return c.Status(code).JSON(fiber.Map{
			"invocation_id": invocationID,
			"error":         "Failed to dispatch notification",
			"detail":        err.Error(),
		})
	}

	resp := DispatchResponse{
		InvocationID: invocationID,
		Outcome:      string(res.Outcome),
		Reason:       string(res.Reason),
		DeliveryID:   res.DeliveryID,
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// isTimeout matches both context deadlines and gRPC DEADLINE_EXCEEDED statuses
// returned by Firestore.
func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || status.Code(err) == codes.DeadlineExceeded
}
