package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fleetops/fleetbot/internal/core/ports"
)

// OutageMessage is what subscribers receive when the bot is down.
const OutageMessage = "The fleet bot is down."

// SubscriberLister reads the outage subscriber list.
type SubscriberLister interface {
	ListSubscribers(ctx context.Context) ([]int64, error)
}

// NotifyOutage messages every subscriber and reports how many were reached.
// A failed delivery is logged and does not stop the rest.
func NotifyOutage(ctx context.Context, subs SubscriberLister, m ports.Messenger, log zerolog.Logger) (int, error) {
	chats, err := subs.ListSubscribers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subscribers: %w", err)
	}
	sent := 0
	for _, chatID := range chats {
		if _, err := m.SendText(ctx, chatID, OutageMessage, nil); err != nil {
			log.Warn().Err(err).Int64("chat", chatID).Msg("outage notice not delivered")
			continue
		}
		sent++
	}
	return sent, nil
}
