package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"

	"github.com/fleetops/fleetbot/internal/core/ports"
	"github.com/fleetops/fleetbot/internal/infrastructure/telegram"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// EventDispatcher is the interface the webhook uses to enqueue events.
type EventDispatcher interface {
	Enqueue(ctx context.Context, event ports.Event)
}

// WebhookHandler receives Telegram update deliveries.
type WebhookHandler struct {
	dispatcher EventDispatcher
	secret     string
}

// NewWebhookHandler creates a handler that checks the delivery secret when
// one is configured.
func NewWebhookHandler(dispatcher EventDispatcher, secret string) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher, secret: secret}
}

// Receive handles POST /telegram/webhook. Any accepted delivery is answered
// with 200 so Telegram does not redeliver it; updates the bot ignores are
// acknowledged too.
func (h *WebhookHandler) Receive(c echo.Context) error {
	if h.secret != "" {
		got := c.Request().Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid secret token")
		}
	}

	var u tgbotapi.Update
	if err := json.NewDecoder(c.Request().Body).Decode(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if ev, ok := telegram.ToEvent(u); ok {
		h.dispatcher.Enqueue(c.Request().Context(), ev)
	}
	return c.NoContent(http.StatusOK)
}
