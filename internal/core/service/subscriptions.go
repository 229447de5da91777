package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fleetops/fleetbot/internal/core/ports"
)

type subscriptions struct {
	store ports.SubscriberStore
	log   zerolog.Logger
}

// NewSubscriptions returns the outage subscription service.
func NewSubscriptions(store ports.SubscriberStore, log zerolog.Logger) ports.Subscriptions {
	return &subscriptions{store: store, log: log}
}

func (s *subscriptions) Subscribe(ctx context.Context, chatID int64) (ports.Outcome, error) {
	if err := s.store.AddSubscriber(ctx, chatID); err != nil {
		return ports.Outcome{}, fmt.Errorf("subscribe: %w", err)
	}
	s.log.Debug().Int64("chat", chatID).Msg("subscribed to outage notices")
	return ports.Say("You will be notified if the bot goes down."), nil
}

func (s *subscriptions) Unsubscribe(ctx context.Context, chatID int64) (ports.Outcome, error) {
	if err := s.store.RemoveSubscriber(ctx, chatID); err != nil {
		return ports.Outcome{}, fmt.Errorf("unsubscribe: %w", err)
	}
	return ports.Say("Outage notifications turned off."), nil
}
