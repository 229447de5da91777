package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
)

const statusChoice = "status"

var serverActions = []domain.Choice{
	{Label: "Power on", Value: string(domain.ActionPowerOn)},
	{Label: "Shut down", Value: string(domain.ActionShutdown)},
	{Label: "Reboot", Value: string(domain.ActionReboot)},
	{Label: "Status", Value: statusChoice},
}

// ControlServers lists the servers of the caller's group.
func (c *conversations) ControlServers(ctx context.Context, p domain.Principal) (ports.Outcome, error) {
	identity, err := c.store.GetIdentity(ctx, p.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return ports.Say("You are not registered or not bound to a group."), nil
	}
	if err != nil {
		return ports.Outcome{}, fmt.Errorf("list servers: %w", err)
	}
	servers, err := c.store.ListServers(ctx, identity.GroupID)
	if err != nil {
		return ports.Outcome{}, fmt.Errorf("list servers: %w", err)
	}
	if len(servers) == 0 {
		return ports.Say("No servers are registered for your group."), nil
	}

	choices := make([]domain.Choice, len(servers))
	for i, s := range servers {
		choices[i] = domain.Choice{Label: s.DisplayName(), Value: s.ID}
	}
	c.begin(p, domain.Dialog{
		Step:     domain.StepServerPick,
		Requires: domain.CapabilityUser,
		Draft:    domain.Draft{GroupID: identity.GroupID, Choices: choices},
	})
	return ports.Outcome{}.Add(pickPrompt("Choose a server:", choices)), nil
}

func (c *conversations) stepServerPick(_ context.Context, p domain.Principal, d domain.Dialog, in domain.Input) (ports.Outcome, error) {
	ch, retry, ok := c.choose(d, in)
	if !ok {
		return retry, nil
	}
	next := domain.Dialog{
		Step:     domain.StepServerAction,
		Requires: domain.CapabilityUser,
		Draft:    domain.Draft{GroupID: d.Draft.GroupID, ServerID: ch.Value, Choices: serverActions},
	}
	if err := c.advance(p, d, next); err != nil {
		return ports.Outcome{}, err
	}
	return ports.Outcome{}.Add(pickPrompt(fmt.Sprintf("Server %s. Choose an action:", ch.Label), serverActions)), nil
}

func (c *conversations) stepServerAction(ctx context.Context, p domain.Principal, d domain.Dialog, in domain.Input) (ports.Outcome, error) {
	ch, retry, ok := c.choose(d, in)
	if !ok {
		return retry, nil
	}

	group, err := c.store.GetGroup(ctx, d.Draft.GroupID)
	if err != nil {
		return ports.Outcome{}, fmt.Errorf("server action: %w", err)
	}
	if group.ProviderToken == "" {
		c.finish(p)
		return ports.Say("No provider token is configured for your group."), nil
	}

	if ch.Value == statusChoice {
		c.finish(p)
		status, err := c.provider.Status(ctx, group.ProviderToken, d.Draft.ServerID)
		if err != nil {
			return providerFailure("status", err)
		}
		return ports.Say("Server status: " + status), nil
	}

	action := domain.Action{
		Kind:          domain.ActionKind(ch.Value),
		GroupID:       group.ID,
		ServerID:      d.Draft.ServerID,
		ProviderToken: group.ProviderToken,
	}
	if !action.Kind.IsPower() {
		return ports.Outcome{}.Add(pickPrompt("Unknown option, pick one of the buttons:", d.Draft.Choices)), nil
	}
	return c.confirmFrom(p, d, action)
}

func (c *conversations) executePower(ctx context.Context, p domain.Principal, a domain.Action) (ports.Outcome, error) {
	op, _ := a.Kind.PowerOp()
	body, err := c.provider.Power(ctx, a.ProviderToken, a.ServerID, op)
	if err != nil {
		c.record(ctx, p, a, false, err.Error())
		return providerFailure(string(op), err)
	}
	c.record(ctx, p, a, true, "")
	c.log.Info().Str("principal", p.ID).Str("server", a.ServerID).Str("op", string(op)).Msg("power action executed")
	return ports.Say(fmt.Sprintf("Command '%s' executed. Provider response: %s", op, body)), nil
}

// providerFailure surfaces a provider error body to the principal. Transport
// failures are returned as errors.
func providerFailure(op string, err error) (ports.Outcome, error) {
	var perr *domain.ProviderError
	if errors.As(err, &perr) {
		return ports.Say(fmt.Sprintf("Command '%s' failed: %s", op, perr.Body)), nil
	}
	return ports.Outcome{}, fmt.Errorf("provider %s: %w", op, err)
}

// SwitchGroup lets a moderator move their own identity to another group.
func (c *conversations) SwitchGroup(ctx context.Context, p domain.Principal) (ports.Outcome, error) {
	groups, err := c.store.ListGroups(ctx)
	if err != nil {
		return ports.Outcome{}, fmt.Errorf("switch group: %w", err)
	}
	if len(groups) == 0 {
		return ports.Say("There are no groups yet."), nil
	}
	choices := groupChoices(groups)
	c.begin(p, domain.Dialog{
		Step:     domain.StepSwitchGroupPick,
		Requires: domain.CapabilityModerator,
		Draft:    domain.Draft{Choices: choices},
	})
	return ports.Outcome{}.Add(pickPrompt("Choose the group to work in:", choices)), nil
}

func (c *conversations) stepSwitchGroupPick(_ context.Context, p domain.Principal, d domain.Dialog, in domain.Input) (ports.Outcome, error) {
	ch, retry, ok := c.choose(d, in)
	if !ok {
		return retry, nil
	}
	return c.confirmFrom(p, d, domain.Action{Kind: domain.ActionSwitchGroup, Target: p.ID, GroupID: ch.Value})
}

func (c *conversations) executeSwitchGroup(ctx context.Context, p domain.Principal, a domain.Action) (ports.Outcome, error) {
	if err := c.store.SetIdentityGroup(ctx, p.ID, a.GroupID); err != nil {
		c.record(ctx, p, a, false, err.Error())
		return ports.Outcome{}, fmt.Errorf("switch group: %w", err)
	}
	c.record(ctx, p, a, true, "")
	return ports.Say(fmt.Sprintf("You now work in group '%s'.", a.GroupID)), nil
}

func groupChoices(groups []domain.Group) []domain.Choice {
	choices := make([]domain.Choice, len(groups))
	for i, g := range groups {
		choices[i] = domain.Choice{Label: g.DisplayName(), Value: g.ID}
	}
	return choices
}
