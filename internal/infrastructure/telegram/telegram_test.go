package telegram

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fleetops/fleetbot/internal/core/ports"
)

func TestToEvent_Command(t *testing.T) {
	u := tgbotapi.Update{
		UpdateID: 7,
		Message: &tgbotapi.Message{
			MessageID: 3,
			From:      &tgbotapi.User{ID: 1234, FirstName: "Ada", LastName: "L"},
			Chat:      &tgbotapi.Chat{ID: 1234},
			Text:      "/Register@fleet_bot now",
			Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 19}},
		},
	}

	ev, ok := ToEvent(u)
	if !ok {
		t.Fatal("expected an event")
	}
	if ev.Kind != ports.EventCommand || ev.Command != "register" || ev.Args != "now" {
		t.Fatalf("got kind=%v command=%q args=%q", ev.Kind, ev.Command, ev.Args)
	}
	if ev.Principal.ID != "1234" || ev.Principal.Name != "Ada L" {
		t.Fatalf("principal = %+v", ev.Principal)
	}
	if ev.UpdateID != 7 || ev.ChatID != 1234 || ev.MessageID != 3 {
		t.Fatalf("ids = %d %d %d", ev.UpdateID, ev.ChatID, ev.MessageID)
	}
}

func TestToEvent_Text(t *testing.T) {
	u := tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 9, UserName: "ops"},
		Chat: &tgbotapi.Chat{ID: 9},
		Text: "  123456 ",
	}}

	ev, ok := ToEvent(u)
	if !ok || ev.Kind != ports.EventText || ev.Text != "123456" {
		t.Fatalf("got %+v", ev)
	}
	if ev.Principal.Name != "ops" {
		t.Fatalf("name falls back to username, got %q", ev.Principal.Name)
	}
}

func TestToEvent_Callback(t *testing.T) {
	u := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: 9},
		Message: &tgbotapi.Message{MessageID: 5, Chat: &tgbotapi.Chat{ID: 99}},
		Data:    "pick:2",
	}}

	ev, ok := ToEvent(u)
	if !ok || ev.Kind != ports.EventCallback {
		t.Fatalf("got %+v", ev)
	}
	if ev.CallbackID != "cb1" || ev.CallbackData != "pick:2" || ev.ChatID != 99 {
		t.Fatalf("got %+v", ev)
	}
}

func TestToEvent_Ignored(t *testing.T) {
	cases := map[string]tgbotapi.Update{
		"empty":          {},
		"channel post":   {ChannelPost: &tgbotapi.Message{Text: "hi"}},
		"no sender":      {Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}, Text: "hi"}},
		"callback no by": {CallbackQuery: &tgbotapi.CallbackQuery{ID: "x"}},
	}
	for name, u := range cases {
		if _, ok := ToEvent(u); ok {
			t.Errorf("%s: expected no event", name)
		}
	}
}

type fakeSender struct {
	sent      []tgbotapi.Chattable
	requested []tgbotapi.Chattable
	err       error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, f.err
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requested = append(f.requested, c)
	return &tgbotapi.APIResponse{Ok: true}, f.err
}

func TestMessenger_SendTextWithButtons(t *testing.T) {
	f := &fakeSender{}
	m := &Messenger{bot: f}

	id, err := m.SendText(context.Background(), 10, "Pick:", []ports.Button{{Label: "a", Data: "pick:0"}, {Label: "b", Data: "pick:1"}})
	if err != nil || id != 1 {
		t.Fatalf("got %d, %v", id, err)
	}
	msg, ok := f.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("sent %T", f.sent[0])
	}
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(kb.InlineKeyboard) != 2 {
		t.Fatalf("keyboard = %#v", msg.ReplyMarkup)
	}
	if d := kb.InlineKeyboard[1][0].CallbackData; d == nil || *d != "pick:1" {
		t.Fatalf("second button data = %v", d)
	}
}

func TestMessenger_DeleteAndCallback(t *testing.T) {
	f := &fakeSender{}
	m := &Messenger{bot: f}
	ctx := context.Background()

	if err := m.Delete(ctx, 10, 4); err != nil {
		t.Fatal(err)
	}
	if err := m.AnswerCallback(ctx, "cb", ""); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.requested[0].(tgbotapi.DeleteMessageConfig); !ok {
		t.Fatalf("first request %T", f.requested[0])
	}
	if _, ok := f.requested[1].(tgbotapi.CallbackConfig); !ok {
		t.Fatalf("second request %T", f.requested[1])
	}
}

func TestMessenger_SendError(t *testing.T) {
	m := &Messenger{bot: &fakeSender{err: errors.New("blocked by user")}}
	if _, err := m.SendImage(context.Background(), 1, []byte{0x89}, "qr"); err == nil {
		t.Fatal("expected error")
	}
}
