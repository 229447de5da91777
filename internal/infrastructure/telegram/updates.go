package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
)

const pollTimeout = 60

// ToEvent converts an update into a transport-neutral event. ok is false for
// updates the bot does not act on (edits, channel posts, messages without a
// sender).
func ToEvent(u tgbotapi.Update) (ports.Event, bool) {
	switch {
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		if q.From == nil {
			return ports.Event{}, false
		}
		ev := ports.Event{
			UpdateID:     u.UpdateID,
			Kind:         ports.EventCallback,
			Principal:    principal(q.From),
			CallbackID:   q.ID,
			CallbackData: q.Data,
		}
		if q.Message != nil {
			ev.ChatID = q.Message.Chat.ID
			ev.MessageID = q.Message.MessageID
		} else {
			ev.ChatID = q.From.ID
		}
		return ev, true

	case u.Message != nil:
		m := u.Message
		if m.From == nil || m.Chat == nil {
			return ports.Event{}, false
		}
		ev := ports.Event{
			UpdateID:  u.UpdateID,
			Kind:      ports.EventText,
			Principal: principal(m.From),
			ChatID:    m.Chat.ID,
			MessageID: m.MessageID,
			Text:      strings.TrimSpace(m.Text),
		}
		if m.IsCommand() {
			ev.Kind = ports.EventCommand
			ev.Command = strings.ToLower(m.Command())
			ev.Args = strings.TrimSpace(m.CommandArguments())
		}
		return ev, true
	}
	return ports.Event{}, false
}

func principal(u *tgbotapi.User) domain.Principal {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return domain.Principal{ID: strconv.FormatInt(u.ID, 10), Name: name}
}

// Sink receives converted events.
type Sink func(ctx context.Context, ev ports.Event)

// Poll long-polls for updates until ctx is cancelled. Any registered webhook
// is removed first, since Telegram refuses getUpdates while one is set.
func Poll(ctx context.Context, bot *tgbotapi.BotAPI, sink Sink, log zerolog.Logger) error {
	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	updates := bot.GetUpdatesChan(cfg)
	defer bot.StopReceivingUpdates()

	log.Info().Str("bot", bot.Self.UserName).Msg("polling for updates")
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if ev, ok := ToEvent(u); ok {
				sink(ctx, ev)
			}
		}
	}
}

// RegisterWebhook points Telegram at url. Deliveries carry secret in the
// X-Telegram-Bot-Api-Secret-Token header.
func RegisterWebhook(bot *tgbotapi.BotAPI, url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	resp, err := bot.MakeRequest("setWebhook", params)
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	if !resp.Ok {
		return fmt.Errorf("set webhook: %s", resp.Description)
	}
	return nil
}
