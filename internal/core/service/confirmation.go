package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
	"github.com/fleetops/fleetbot/internal/pkg/metrics"
)

const msgConfirmPrompt = "Enter your 2FA code to confirm:"

// confirmation builds the dialog that holds action until a fresh TOTP code
// arrives. Nothing about the action is committed before that.
func confirmation(action domain.Action, requires domain.Capability) domain.Dialog {
	a := action
	return domain.Dialog{
		Step:     domain.StepConfirmation,
		Requires: requires,
		Draft:    domain.Draft{Action: &a},
	}
}

// requireConfirmation starts a confirmation dialog from a command.
func (c *conversations) requireConfirmation(p domain.Principal, action domain.Action) ports.Outcome {
	c.begin(p, confirmation(action, requiredFor(action)))
	return ports.Say(msgConfirmPrompt)
}

// confirmFrom moves an ongoing dialog into confirmation.
func (c *conversations) confirmFrom(p domain.Principal, d domain.Dialog, action domain.Action) (ports.Outcome, error) {
	if err := c.advance(p, d, confirmation(action, requiredFor(action))); err != nil {
		return ports.Outcome{}, err
	}
	return ports.Say(msgConfirmPrompt), nil
}

func requiredFor(a domain.Action) domain.Capability {
	if a.Scope() == domain.ScopeModerator {
		return domain.CapabilityModerator
	}
	return domain.CapabilityUser
}

// secretFor returns the secret a confirmation in scope is checked against.
func (c *conversations) secretFor(ctx context.Context, id string, scope domain.Scope) (string, error) {
	var secret string
	switch scope {
	case domain.ScopeModerator:
		mod, err := c.store.GetModerator(ctx, id)
		if err != nil {
			return "", err
		}
		secret = mod.Secret
	default:
		identity, err := c.store.GetIdentity(ctx, id)
		if err != nil {
			return "", err
		}
		secret = identity.Secret
	}
	if secret == "" {
		return "", domain.ErrNoSecret
	}
	return secret, nil
}

func (c *conversations) stepConfirmation(ctx context.Context, p domain.Principal, d domain.Dialog, in domain.Input) (ports.Outcome, error) {
	if d.Draft.Action == nil {
		c.finish(p)
		return ports.Outcome{}, nil
	}
	action := *d.Draft.Action
	scope := action.Scope()

	secret, err := c.secretFor(ctx, p.ID, scope)
	if errors.Is(err, domain.ErrNotFound) {
		err = domain.ErrNoSecret
	}
	if err != nil {
		return ports.Outcome{}, fmt.Errorf("confirm %s: %w", action.Kind, err)
	}

	if !c.totp.Verify(secret, in.Text, c.now()) {
		metrics.ConfirmationsTotal.WithLabelValues(scope.String(), "rejected").Inc()
		c.record(ctx, p, action, false, "wrong confirmation code")
		if c.policy.ConfirmationReprompt {
			return ports.Say(msgTOTPWrong), c.advance(p, d, d)
		}
		c.finish(p)
		return ports.Say("Wrong 2FA code. Operation cancelled."), nil
	}
	metrics.ConfirmationsTotal.WithLabelValues(scope.String(), "confirmed").Inc()

	// The confirmation is consumed here. Follow-up steps, if any, are
	// installed by execute.
	c.finish(p)
	return c.execute(ctx, p, d, action)
}

// execute commits a confirmed action. d is the confirmation dialog, used as
// the origin of any follow-up step.
func (c *conversations) execute(ctx context.Context, p domain.Principal, d domain.Dialog, a domain.Action) (ports.Outcome, error) {
	switch a.Kind {
	case domain.ActionPowerOn, domain.ActionShutdown, domain.ActionReboot:
		return c.executePower(ctx, p, a)
	case domain.ActionSwitchGroup:
		return c.executeSwitchGroup(ctx, p, a)
	case domain.ActionUnblock:
		return c.executeUnblock(ctx, p, a)
	case domain.ActionRemoveModerator:
		return c.executeRemoveModerator(ctx, p, a)
	case domain.ActionNominateModerator:
		return c.executeNominate(ctx, p, a)
	case domain.ActionRemoveMember:
		return c.promptMemberRemoval(ctx, p, d, a)
	case domain.ActionRemoveServer:
		return c.promptServerRemoval(ctx, p, d, a)
	case domain.ActionCreateGroup:
		return c.promptGroupID(p, d)
	case domain.ActionAddServer:
		return c.promptServerID(p, d, a)
	case domain.ActionIssueCode:
		return c.promptCodeGroup(ctx, p, d)
	case domain.ActionReviewCodes:
		return c.promptCodeReview(ctx, p, d)
	case domain.ActionPurgeSubscribers:
		return c.executePurge(ctx, p, a)
	case domain.ActionStopService:
		c.record(ctx, p, a, true, "")
		c.log.Warn().Str("principal", p.ID).Msg("stop requested")
		return ports.Outcome{Replies: []ports.Reply{{Text: "Stopping the bot. Goodbye!"}}, Shutdown: true}, nil
	}
	return ports.Outcome{}, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidInput, a.Kind)
}
