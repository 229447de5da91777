package ports

import (
	"context"

	"github.com/fleetops/fleetbot/internal/core/domain"
)

// EventKind classifies an inbound chat event.
type EventKind int

const (
	EventText EventKind = iota
	EventCommand
	EventCallback
)

// Event is a transport-neutral inbound chat event.
type Event struct {
	UpdateID  int
	Kind      EventKind
	Principal domain.Principal
	ChatID    int64
	MessageID int
	Text      string
	// Command is the command name without the leading slash, lowercased.
	Command string
	Args    string
	// CallbackID and CallbackData are set for button presses.
	CallbackID   string
	CallbackData string
}

// EventHandler processes one inbound event.
type EventHandler interface {
	Handle(ctx context.Context, event Event) error
}

// Messenger delivers replies over the chat transport.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, buttons []Button) (int, error)
	SendImage(ctx context.Context, chatID int64, png []byte, caption string) (int, error)
	Delete(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}
