package ports

import (
	"context"

	"github.com/fleetops/fleetbot/internal/core/domain"
)

// Button is an inline action whose callback selects a dialog choice.
type Button struct {
	Label string
	Data  string
}

// Reply is one message the dispatch layer must deliver to the principal.
type Reply struct {
	Text string
	// Image is a PNG payload; when set Text is used as its caption.
	Image   []byte
	Buttons []Button
	// Ephemeral replies expose secret material and are deleted once the
	// dialog that produced them ends.
	Ephemeral bool
}

// Outcome is what a dialog step asks the dispatch layer to do.
type Outcome struct {
	Replies []Reply
	// Purge deletes every tracked ephemeral message of the principal.
	Purge bool
	// Shutdown asks the process to stop once the replies are delivered.
	Shutdown bool
}

// Say builds an outcome with a single text reply.
func Say(text string) Outcome {
	return Outcome{Replies: []Reply{{Text: text}}}
}

// Add appends replies and returns the outcome for chaining.
func (o Outcome) Add(r ...Reply) Outcome {
	o.Replies = append(o.Replies, r...)
	return o
}

// Conversations is the dialog engine as seen by the dispatch layer. Entry
// points start a dialog, replacing any pending one; Continue feeds it.
type Conversations interface {
	// Continue routes input to the principal's pending step. ok is false when
	// no dialog is pending or the principal no longer holds the capability
	// the dialog requires; such input is dropped without a reply.
	Continue(ctx context.Context, p domain.Principal, in domain.Input) (out Outcome, ok bool, err error)
	Cancel(p domain.Principal) bool

	Register(ctx context.Context, p domain.Principal) (Outcome, error)
	// Elevate returns domain.ErrUnauthorized for principals that are not
	// moderator candidates.
	Elevate(ctx context.Context, p domain.Principal) (Outcome, error)
	ControlServers(ctx context.Context, p domain.Principal) (Outcome, error)
	SwitchGroup(ctx context.Context, p domain.Principal) (Outcome, error)

	Groups(ctx context.Context, p domain.Principal) (Outcome, error)
	CreateGroup(ctx context.Context, p domain.Principal) (Outcome, error)
	AddServer(ctx context.Context, p domain.Principal) (Outcome, error)
	IssueCode(ctx context.Context, p domain.Principal) (Outcome, error)
	ReviewCodes(ctx context.Context, p domain.Principal) (Outcome, error)
	NominateModerator(ctx context.Context, p domain.Principal) (Outcome, error)
	Moderators(ctx context.Context, p domain.Principal) (Outcome, error)
	Unblock(ctx context.Context, p domain.Principal) (Outcome, error)
	PurgeSubscribers(ctx context.Context, p domain.Principal) (Outcome, error)
	StopService(ctx context.Context, p domain.Principal) (Outcome, error)
}

// Subscriptions manages outage notification subscribers.
type Subscriptions interface {
	Subscribe(ctx context.Context, chatID int64) (Outcome, error)
	Unsubscribe(ctx context.Context, chatID int64) (Outcome, error)
}
