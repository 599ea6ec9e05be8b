package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/courier/internal/broker"
	"github.com/nfrund/courier/internal/domain"
)

// MessagingService is the orchestration surface the HTTP edge consumes.
type MessagingService interface {
	SendMessage(ctx context.Context, senderID, recipientID, content string) (*domain.Message, error)
	GetMessagesForUser(ctx context.Context, userID string) (map[string][]domain.Message, error)
}

// UserIDHeader carries the authenticated user identity, placed by the
// upstream auth layer. Authentication itself is not this service's concern.
const UserIDHeader = "X-User-ID"

// MessageHandler exposes the send and view endpoints.
type MessageHandler struct {
	messaging MessagingService
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(messaging MessagingService) *MessageHandler {
	return &MessageHandler{messaging: messaging}
}

// SendMessage handles POST /messages. The recipient must exist; the message
// is persisted and queued for delivery whether or not the recipient is
// currently connected.
func (h *MessageHandler) SendMessage(c echo.Context) error {
	senderID := c.Request().Header.Get(UserIDHeader)
	if senderID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Recipient ID and content are required.")
	}

	msg, err := h.messaging.SendMessage(c.Request().Context(), senderID, req.RecipientID, req.Content)
	if err != nil {
		var queueErr *broker.QueueError
		switch {
		case errors.Is(err, domain.ErrInvalidRecipient):
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid recipient.")
		case errors.As(err, &queueErr):
			// The record exists but was never queued; the sender has to see
			// this as a failed send.
			return echo.NewHTTPError(http.StatusBadGateway, "Message could not be queued for delivery")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to send message")
		}
	}

	return c.JSON(http.StatusCreated, msg)
}

// ViewMessages handles GET /messages, returning the authenticated user's
// messages grouped by sender. No messages at all is reported as not found.
func (h *MessageHandler) ViewMessages(c echo.Context) error {
	userID := c.Request().Header.Get(UserIDHeader)
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	grouped, err := h.messaging.GetMessagesForUser(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load messages")
	}
	if len(grouped) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "No messages found for this user.")
	}

	return c.JSON(http.StatusOK, grouped)
}
