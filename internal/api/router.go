// Package api is the chat dispatch layer: it routes inbound events to
// commands or the pending dialog, enforces the access gate and delivers the
// resulting replies.
package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetops/fleetbot/internal/api/handler"
	"github.com/fleetops/fleetbot/internal/api/middleware"
	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
	"github.com/fleetops/fleetbot/internal/core/service"
)

// Gate is the access gate as the dispatcher sees it.
type Gate interface {
	Standing(ctx context.Context, id string) domain.Standing
	Allows(ctx context.Context, id string, required domain.Capability) bool
}

// Deps collects the router's collaborators.
type Deps struct {
	Conversations ports.Conversations
	Subscriptions ports.Subscriptions
	Gate          Gate
	Sessions      *service.Sessions
	Messenger     ports.Messenger
	Log           zerolog.Logger
	// Shutdown is called after a confirmed /stop_bot has been answered.
	Shutdown func()
}

type route struct {
	command  string
	help     string
	requires domain.Capability
	handler  middleware.HandlerFunc
}

// Router implements ports.EventHandler.
type Router struct {
	conv      ports.Conversations
	gate      Gate
	sessions  *service.Sessions
	messenger ports.Messenger
	log       zerolog.Logger
	shutdown  func()

	routes []route
	byName map[string]middleware.HandlerFunc
}

var _ ports.EventHandler = (*Router)(nil)

// NewRouter builds the command table.
func NewRouter(d Deps) *Router {
	r := &Router{
		conv:      d.Conversations,
		gate:      d.Gate,
		sessions:  d.Sessions,
		messenger: d.Messenger,
		log:       d.Log,
		shutdown:  d.Shutdown,
		byName:    make(map[string]middleware.HandlerFunc),
	}
	if r.shutdown == nil {
		r.shutdown = func() {}
	}

	h := handler.NewCommandHandler(d.Conversations, d.Subscriptions, r.menu)
	conv := d.Conversations
	replace := middleware.ReplaceDialog(conv)

	// --- Open to everyone ---
	r.add("start", "show this menu", domain.CapabilityNone, h.Start, replace)
	r.add("my_id", "show your user id", domain.CapabilityNone, h.MyID, replace)
	r.add("cancel", "abort the current operation", domain.CapabilityNone, h.Cancel)
	// Blocked principals get an explicit answer here and nowhere else.
	r.addBlocked("register", "register with an enrollment code", h.Dialog(conv.Register), replace)
	// Non-candidates get domain.ErrUnauthorized from Elevate.
	r.add("register_admin", "", domain.CapabilityNone, h.Dialog(conv.Elevate), replace)

	// --- Users ---
	r.add("servers", "control your group's servers", domain.CapabilityUser, h.Dialog(conv.ControlServers), replace)
	r.add("subscribe", "get notified when the bot goes down", domain.CapabilityUser, h.Subscribe, replace)
	r.add("unsubscribe", "stop outage notifications", domain.CapabilityUser, h.Unsubscribe, replace)

	// --- Moderators ---
	r.add("groups", "list groups, members and servers", domain.CapabilityModerator, h.Dialog(conv.Groups), replace)
	r.add("new_group", "create a group", domain.CapabilityModerator, h.Dialog(conv.CreateGroup), replace)
	r.add("add_server", "add a server to a group", domain.CapabilityModerator, h.Dialog(conv.AddServer), replace)
	r.add("new_code", "issue an enrollment code", domain.CapabilityModerator, h.Dialog(conv.IssueCode), replace)
	r.add("codes", "list and revoke enrollment codes", domain.CapabilityModerator, h.Dialog(conv.ReviewCodes), replace)
	r.add("switch_group", "move yourself to another group", domain.CapabilityModerator, h.Dialog(conv.SwitchGroup), replace)
	r.add("add_moderator", "nominate a moderator", domain.CapabilityModerator, h.Dialog(conv.NominateModerator), replace)
	r.add("moderators", "list and remove moderators", domain.CapabilityModerator, h.Dialog(conv.Moderators), replace)
	r.add("unblock", "unblock a locked-out user", domain.CapabilityModerator, h.Dialog(conv.Unblock), replace)
	r.add("purge_subscribers", "clear the outage subscriber list", domain.CapabilityModerator, h.Dialog(conv.PurgeSubscribers), replace)
	r.add("stop_bot", "stop the bot", domain.CapabilityModerator, h.Dialog(conv.StopService), replace)

	return r
}

func (r *Router) add(command, help string, requires domain.Capability, h middleware.HandlerFunc, mw ...middleware.MiddlewareFunc) {
	chain := append([]middleware.MiddlewareFunc{middleware.RBAC(r.gate, requires, false)}, mw...)
	r.register(route{command: command, help: help, requires: requires}, middleware.Chain(h, chain...))
}

func (r *Router) addBlocked(command, help string, h middleware.HandlerFunc, mw ...middleware.MiddlewareFunc) {
	chain := append([]middleware.MiddlewareFunc{middleware.RBAC(r.gate, domain.CapabilityNone, true)}, mw...)
	r.register(route{command: command, help: help, requires: domain.CapabilityNone}, middleware.Chain(h, chain...))
}

func (r *Router) register(rt route, h middleware.HandlerFunc) {
	rt.handler = h
	r.routes = append(r.routes, rt)
	r.byName[rt.command] = h
}

// menu lists the commands the principal may run.
func (r *Router) menu(ctx context.Context, p domain.Principal) string {
	capability := r.gate.Standing(ctx, p.ID).Capability()
	var b strings.Builder
	b.WriteString("Available commands:")
	for _, rt := range r.routes {
		if rt.help == "" || !capability.Satisfies(rt.requires) {
			continue
		}
		if rt.command == "register" && capability.Satisfies(domain.CapabilityUser) {
			continue
		}
		fmt.Fprintf(&b, "\n/%s - %s", rt.command, rt.help)
	}
	return b.String()
}

// Handle processes one event. Delivery failures are logged; only failures
// that left the principal without an answer are returned.
func (r *Router) Handle(ctx context.Context, ev ports.Event) error {
	var (
		out     ports.Outcome
		err     error
		handled bool
	)
	switch ev.Kind {
	case ports.EventCommand:
		out, handled, err = r.command(ctx, ev)
	case ports.EventCallback:
		out, handled, err = r.callback(ctx, ev)
	default:
		out, handled, err = r.conv.Continue(ctx, ev.Principal, domain.TextInput(ev.Text))
	}

	if err != nil {
		text, reply := replyForError(err, r.log, ev)
		if reply {
			out = out.Add(ports.Reply{Text: text})
			handled = true
		}
	}
	if ev.Kind == ports.EventCallback && handled {
		if aerr := r.messenger.AnswerCallback(ctx, ev.CallbackID, ""); aerr != nil {
			r.log.Debug().Err(aerr).Msg("answer callback failed")
		}
	}

	r.render(ctx, ev, out)

	if out.Shutdown {
		r.log.Warn().Str("principal", ev.Principal.ID).Msg("shutdown requested from chat")
		r.shutdown()
	}
	return nil
}

func (r *Router) command(ctx context.Context, ev ports.Event) (ports.Outcome, bool, error) {
	h, ok := r.byName[ev.Command]
	if !ok {
		// Unknown commands only get an answer from known principals.
		if !r.gate.Allows(ctx, ev.Principal.ID, domain.CapabilityUser) {
			return ports.Outcome{}, false, nil
		}
		out := ports.Say("Unknown command.\n" + r.menu(ctx, ev.Principal))
		out.Purge = r.conv.Cancel(ev.Principal)
		return out, true, nil
	}
	out, err := h(ctx, ev)
	return out, true, err
}

func (r *Router) callback(ctx context.Context, ev ports.Event) (ports.Outcome, bool, error) {
	raw, ok := strings.CutPrefix(ev.CallbackData, service.PickPrefix)
	if !ok {
		return ports.Outcome{}, false, nil
	}
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 0 {
		return ports.Outcome{}, false, nil
	}
	return r.conv.Continue(ctx, ev.Principal, domain.PickInput(idx))
}

// render purges tracked ephemeral messages when asked, then delivers the
// replies in order.
func (r *Router) render(ctx context.Context, ev ports.Event, out ports.Outcome) {
	id := ev.Principal.ID
	if out.Purge {
		r.purge(ctx, id)
	}
	for _, rep := range out.Replies {
		var (
			msgID int
			err   error
		)
		if len(rep.Image) > 0 {
			msgID, err = r.messenger.SendImage(ctx, ev.ChatID, rep.Image, rep.Text)
		} else {
			msgID, err = r.messenger.SendText(ctx, ev.ChatID, rep.Text, rep.Buttons)
		}
		if err != nil {
			r.log.Error().Err(err).Str("principal", id).Msg("failed to deliver reply")
			continue
		}
		if rep.Ephemeral {
			r.sessions.Track(id, service.MessageRef{ChatID: ev.ChatID, MessageID: msgID})
		}
	}
}

func (r *Router) purge(ctx context.Context, id string) {
	for _, ref := range r.sessions.TakeEphemeral(id) {
		if err := r.messenger.Delete(ctx, ref.ChatID, ref.MessageID); err != nil {
			r.log.Warn().Err(err).Str("principal", id).Int("message_id", ref.MessageID).Msg("failed to delete ephemeral message")
		}
	}
}

// RunJanitor deletes ephemeral messages left behind by dialogs that expired
// without further input. It returns when ctx is done.
func (r *Router) RunJanitor(ctx context.Context, interval time.Duration) {
	r.sessions.Run(ctx, interval, func(id string) {
		r.log.Debug().Str("principal", id).Msg("purging messages of expired dialog")
		r.purge(ctx, id)
	})
}
