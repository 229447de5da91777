package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
)

// PickPrefix marks callback data that selects a dialog choice by index.
const PickPrefix = "pick:"

// stepFunc handles input for one dialog step. d is the dialog as stored
// before the input arrived.
type stepFunc func(ctx context.Context, p domain.Principal, d domain.Dialog, in domain.Input) (ports.Outcome, error)

// ConversationDeps collects what the dialog engine needs.
type ConversationDeps struct {
	Store      ports.CredentialStore
	Provider   ports.CloudProvider
	Audit      ports.AuditLog
	Gate       *AccessGate
	Enrollment *EnrollmentService
	Lockout    *LockoutTracker
	TOTP       *TOTPEngine
	Sessions   *Sessions
	Policy     domain.RetryPolicy
	Log        zerolog.Logger
}

type conversations struct {
	store      ports.CredentialStore
	provider   ports.CloudProvider
	audit      ports.AuditLog
	gate       *AccessGate
	enrollment *EnrollmentService
	lockout    *LockoutTracker
	totp       *TOTPEngine
	sessions   *Sessions
	policy     domain.RetryPolicy
	now        func() time.Time
	log        zerolog.Logger

	steps map[domain.Step]stepFunc
}

// NewConversations returns the dialog engine.
func NewConversations(deps ConversationDeps) ports.Conversations {
	return newConversations(deps)
}

func newConversations(deps ConversationDeps) *conversations {
	c := &conversations{
		store:      deps.Store,
		provider:   deps.Provider,
		audit:      deps.Audit,
		gate:       deps.Gate,
		enrollment: deps.Enrollment,
		lockout:    deps.Lockout,
		totp:       deps.TOTP,
		sessions:   deps.Sessions,
		policy:     deps.Policy,
		now:        time.Now,
		log:        deps.Log,
	}
	c.steps = map[domain.Step]stepFunc{
		domain.StepEnrollmentCode:    c.stepEnrollmentCode,
		domain.StepEnrollmentTOTP:    c.stepEnrollmentTOTP,
		domain.StepElevationTOTP:     c.stepElevationTOTP,
		domain.StepConfirmation:      c.stepConfirmation,
		domain.StepGroupID:           c.stepGroupID,
		domain.StepGroupToken:        c.stepGroupToken,
		domain.StepGroupLabel:        c.stepGroupLabel,
		domain.StepCandidateID:       c.stepCandidateID,
		domain.StepServerPick:        c.stepServerPick,
		domain.StepServerAction:      c.stepServerAction,
		domain.StepServerID:          c.stepServerID,
		domain.StepServerName:        c.stepServerName,
		domain.StepServerGroupPick:   c.stepServerGroupPick,
		domain.StepSwitchGroupPick:   c.stepSwitchGroupPick,
		domain.StepCodeGroupPick:     c.stepCodeGroupPick,
		domain.StepCodePick:          c.stepCodePick,
		domain.StepBlockedPick:       c.stepBlockedPick,
		domain.StepModeratorPick:     c.stepModeratorPick,
		domain.StepGroupAdminPick:    c.stepGroupAdminPick,
		domain.StepMemberPick:        c.stepMemberPick,
		domain.StepServerRemovalPick: c.stepServerRemovalPick,
	}
	return c
}

// Continue routes input to the pending step. The capability the dialog was
// started with is checked again on every input. A step error aborts the
// dialog without committing anything further.
func (c *conversations) Continue(ctx context.Context, p domain.Principal, in domain.Input) (ports.Outcome, bool, error) {
	d, ok := c.sessions.Get(p.ID)
	if !ok {
		return ports.Outcome{}, false, nil
	}
	if !c.gate.Allows(ctx, p.ID, d.Requires) {
		c.sessions.Clear(p.ID)
		c.log.Info().Str("principal", p.ID).Str("step", string(d.Step)).Msg("dialog dropped, capability lost")
		return ports.Outcome{Purge: true}, false, nil
	}
	step, ok := c.steps[d.Step]
	if !ok {
		c.sessions.Clear(p.ID)
		return ports.Outcome{}, false, nil
	}

	out, err := step(ctx, p, d, in)
	if err != nil {
		c.sessions.Clear(p.ID)
		out.Purge = true
		return out, true, err
	}
	return out, true, nil
}

// Cancel discards the pending dialog.
func (c *conversations) Cancel(p domain.Principal) bool {
	return c.sessions.Clear(p.ID)
}

// begin installs d as the principal's dialog, replacing any pending one.
func (c *conversations) begin(p domain.Principal, d domain.Dialog) {
	c.sessions.Put(p.ID, d)
}

// advance moves the principal's dialog from its current step to next.
func (c *conversations) advance(p domain.Principal, from domain.Dialog, next domain.Dialog) error {
	if !from.Step.CanTransitionTo(next.Step) {
		return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, from.Step, next.Step)
	}
	if next.Step == domain.StepNone {
		c.sessions.Clear(p.ID)
		return nil
	}
	if next.Requires < from.Requires {
		next.Requires = from.Requires
	}
	c.sessions.Put(p.ID, next)
	return nil
}

// finish ends the principal's dialog.
func (c *conversations) finish(p domain.Principal) {
	c.sessions.Clear(p.ID)
}

// pickButtons renders choices as inline buttons whose data indexes into
// Draft.Choices.
func pickButtons(choices []domain.Choice) []ports.Button {
	buttons := make([]ports.Button, len(choices))
	for i, ch := range choices {
		buttons[i] = ports.Button{Label: ch.Label, Data: PickPrefix + strconv.Itoa(i)}
	}
	return buttons
}

// pickPrompt is a text reply carrying one button per choice.
func pickPrompt(text string, choices []domain.Choice) ports.Reply {
	return ports.Reply{Text: text, Buttons: pickButtons(choices)}
}

// choose resolves a pick step's input. On a miss the dialog stays where it
// is and the returned outcome asks again.
func (c *conversations) choose(d domain.Dialog, in domain.Input) (domain.Choice, ports.Outcome, bool) {
	ch, ok := d.Choose(in)
	if ok {
		return ch, ports.Outcome{}, true
	}
	return domain.Choice{}, ports.Outcome{}.Add(pickPrompt("Unknown option, pick one of the buttons:", d.Draft.Choices)), false
}

// record appends an audit event and only logs when that fails.
func (c *conversations) record(ctx context.Context, p domain.Principal, a domain.Action, success bool, detail string) {
	ev := domain.AuditEvent{
		ID:        uuid.NewString(),
		ActorID:   p.ID,
		Action:    a.Kind,
		Target:    a.Target,
		GroupID:   a.GroupID,
		ServerID:  a.ServerID,
		Success:   success,
		Detail:    detail,
		Timestamp: c.now().UTC(),
	}
	if err := c.audit.Record(ctx, ev); err != nil {
		c.log.Warn().Err(err).Str("principal", p.ID).Str("action", string(a.Kind)).Msg("failed to record audit event")
	}
}
