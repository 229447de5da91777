// Package handler turns chat commands into calls on the dialog engine.
package handler

import (
	"context"

	"github.com/fleetops/fleetbot/internal/api/middleware"
	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
)

// MenuFunc renders the command list available to a principal.
type MenuFunc func(ctx context.Context, p domain.Principal) string

// CommandHandler serves the commands that are not dialogs of their own.
type CommandHandler struct {
	conv ports.Conversations
	subs ports.Subscriptions
	menu MenuFunc
}

// NewCommandHandler creates a CommandHandler.
func NewCommandHandler(conv ports.Conversations, subs ports.Subscriptions, menu MenuFunc) *CommandHandler {
	return &CommandHandler{conv: conv, subs: subs, menu: menu}
}

// Dialog adapts a dialog entry point to a command handler.
func (h *CommandHandler) Dialog(start func(ctx context.Context, p domain.Principal) (ports.Outcome, error)) middleware.HandlerFunc {
	return func(ctx context.Context, ev ports.Event) (ports.Outcome, error) {
		return start(ctx, ev.Principal)
	}
}

// Start handles /start: the menu.
func (h *CommandHandler) Start(ctx context.Context, ev ports.Event) (ports.Outcome, error) {
	return ports.Say(h.menu(ctx, ev.Principal)), nil
}

// MyID handles /my_id. Moderators need the id to nominate someone.
func (h *CommandHandler) MyID(_ context.Context, ev ports.Event) (ports.Outcome, error) {
	return ports.Say("Your ID: " + ev.Principal.ID), nil
}

// Cancel handles /cancel.
func (h *CommandHandler) Cancel(_ context.Context, ev ports.Event) (ports.Outcome, error) {
	if !h.conv.Cancel(ev.Principal) {
		return ports.Say("Nothing to cancel."), nil
	}
	out := ports.Say("Cancelled.")
	out.Purge = true
	return out, nil
}

func (h *CommandHandler) Subscribe(ctx context.Context, ev ports.Event) (ports.Outcome, error) {
	return h.subs.Subscribe(ctx, ev.ChatID)
}

func (h *CommandHandler) Unsubscribe(ctx context.Context, ev ports.Event) (ports.Outcome, error) {
	return h.subs.Unsubscribe(ctx, ev.ChatID)
}
