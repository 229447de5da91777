package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
)

// IssueCode confirms, then asks which group the new code binds to.
func (c *conversations) IssueCode(_ context.Context, p domain.Principal) (ports.Outcome, error) {
	return c.requireConfirmation(p, domain.Action{Kind: domain.ActionIssueCode}), nil
}

func (c *conversations) promptCodeGroup(ctx context.Context, p domain.Principal, d domain.Dialog) (ports.Outcome, error) {
	groups, err := c.store.ListGroups(ctx)
	if err != nil {
		return ports.Outcome{}, fmt.Errorf("issue code: %w", err)
	}
	if len(groups) == 0 {
		return ports.Say("There are no groups yet. Create one with /new_group."), nil
	}
	choices := groupChoices(groups)
	next := domain.Dialog{Step: domain.StepCodeGroupPick, Requires: domain.CapabilityModerator, Draft: domain.Draft{Choices: choices}}
	if err := c.advance(p, d, next); err != nil {
		return ports.Outcome{}, err
	}
	return ports.Outcome{}.Add(pickPrompt("Choose the group for the new code:", choices)), nil
}

func (c *conversations) stepCodeGroupPick(ctx context.Context, p domain.Principal, d domain.Dialog, in domain.Input) (ports.Outcome, error) {
	ch, retry, ok := c.choose(d, in)
	if !ok {
		return retry, nil
	}
	a := domain.Action{Kind: domain.ActionIssueCode, GroupID: ch.Value}
	code, err := c.enrollment.Issue(ctx, ch.Value)
	if err != nil {
		c.record(ctx, p, a, false, err.Error())
		return ports.Outcome{}, err
	}
	c.record(ctx, p, a, true, "")
	c.finish(p)
	return ports.Say(fmt.Sprintf("One-time code for group '%s':", ch.Label)).Add(ports.Reply{Text: code}), nil
}

// ReviewCodes confirms, then lists outstanding codes with a revoke button
// each.
func (c *conversations) ReviewCodes(_ context.Context, p domain.Principal) (ports.Outcome, error) {
	return c.requireConfirmation(p, domain.Action{Kind: domain.ActionReviewCodes}), nil
}

func (c *conversations) promptCodeReview(ctx context.Context, p domain.Principal, d domain.Dialog) (ports.Outcome, error) {
	codes, err := c.enrollment.List(ctx)
	if err != nil {
		return ports.Outcome{}, err
	}
	if len(codes) == 0 {
		return ports.Say("There are no outstanding enrollment codes."), nil
	}
	choices := make([]domain.Choice, len(codes))
	var b strings.Builder
	b.WriteString("Outstanding codes:")
	for i, code := range codes {
		fmt.Fprintf(&b, "\n%d. group %s: %s", i+1, code.GroupID, code.Code)
		choices[i] = domain.Choice{Label: fmt.Sprintf("Revoke #%d (%s)", i+1, code.GroupID), Value: code.Code}
	}
	next := domain.Dialog{Step: domain.StepCodePick, Requires: domain.CapabilityModerator, Draft: domain.Draft{Choices: choices}}
	if err := c.advance(p, d, next); err != nil {
		return ports.Outcome{}, err
	}
	return ports.Outcome{}.Add(pickPrompt(b.String(), choices)), nil
}

func (c *conversations) stepCodePick(ctx context.Context, p domain.Principal, d domain.Dialog, in domain.Input) (ports.Outcome, error) {
	ch, retry, ok := c.choose(d, in)
	if !ok {
		return retry, nil
	}
	a := domain.Action{Kind: domain.ActionReviewCodes, Target: "revoke"}
	if err := c.enrollment.Revoke(ctx, ch.Value); err != nil && !errors.Is(err, domain.ErrNotFound) {
		c.record(ctx, p, a, false, err.Error())
		return ports.Outcome{}, err
	}
	c.record(ctx, p, a, true, "")

	remaining := make([]domain.Choice, 0, len(d.Draft.Choices))
	for _, other := range d.Draft.Choices {
		if other.Value != ch.Value {
			remaining = append(remaining, other)
		}
	}
	out := ports.Say(ch.Label + ": revoked.")
	if len(remaining) == 0 {
		c.finish(p)
		return out, nil
	}
	next := d
	next.Draft.Choices = remaining
	if err := c.advance(p, d, next); err != nil {
		return ports.Outcome{}, err
	}
	return out.Add(pickPrompt("Revoke another code?", remaining)), nil
}

// NominateModerator asks for the candidate's id. The nomination itself is
// confirmed.
func (c *conversations) NominateModerator(_ context.Context, p domain.Principal) (ports.Outcome, error) {
	c.begin(p, domain.Dialog{Step: domain.StepCandidateID, Requires: domain.CapabilityModerator})
	return ports.Say("Enter the id of the new moderator:"), nil
}

func (c *conversations) stepCandidateID(_ context.Context, p domain.Principal, d domain.Dialog, in domain.Input) (ports.Outcome, error) {
	id, err := checkField(in.Text, rulePrincipalID, "principal id")
	if err != nil {
		return ports.Say("Ids are numeric. Enter the id of the new moderator:"), c.advance(p, d, d)
	}
	return c.confirmFrom(p, d, domain.Action{Kind: domain.ActionNominateModerator, Target: id})
}

func (c *conversations) executeNominate(ctx context.Context, p domain.Principal, a domain.Action) (ports.Outcome, error) {
	if err := c.store.AddPendingModerator(ctx, a.Target); err != nil {
		c.record(ctx, p, a, false, err.Error())
		return ports.Outcome{}, fmt.Errorf("nominate moderator: %w", err)
	}
	c.record(ctx, p, a, true, "")
	return ports.Say(fmt.Sprintf("Candidate %s added. They must send /register_admin to finish.", a.Target)), nil
}

// Moderators lists moderators with a removal button each.
func (c *conversations) Moderators(ctx context.Context, p domain.Principal) (ports.Outcome, error) {
	mods, err := c.store.ListModerators(ctx)
	if err != nil {
		return ports.Outcome{}, fmt.Errorf("list moderators: %w", err)
	}
	if len(mods) == 0 {
		return ports.Say("There are no moderators."), nil
	}
	choices := make([]domain.Choice, len(mods))
	for i, m := range mods {
		choices[i] = domain.Choice{Label: fmt.Sprintf("Remove %s (ID: %s)", m.Name, m.ID), Value: m.ID}
	}
	c.begin(p, domain.Dialog{Step: domain.StepModeratorPick, Requires: domain.CapabilityModerator, Draft: domain.Draft{Choices: choices}})
	return ports.Outcome{}.Add(pickPrompt("Moderators:", choices)), nil
}

func (c *conversations) stepModeratorPick(_ context.Context, p domain.Principal, d domain.Dialog, in domain.Input) (ports.Outcome, error) {
	ch, retry, ok := c.choose(d, in)
	if !ok {
		return retry, nil
	}
	return c.confirmFrom(p, d, domain.Action{Kind: domain.ActionRemoveModerator, Target: ch.Value})
}

func (c *conversations) executeRemoveModerator(ctx context.Context, p domain.Principal, a domain.Action) (ports.Outcome, error) {
	if err := c.store.DeleteModerator(ctx, a.Target); err != nil {
		c.record(ctx, p, a, false, err.Error())
		return ports.Outcome{}, fmt.Errorf("remove moderator: %w", err)
	}
	c.gate.Refresh(ctx)
	c.record(ctx, p, a, true, "")
	return ports.Say(fmt.Sprintf("Moderator %s removed.", a.Target)), nil
}

// Unblock lists blocked principals with an unblock button each.
func (c *conversations) Unblock(ctx context.Context, p domain.Principal) (ports.Outcome, error) {
	blocked, err := c.store.ListBlocked(ctx)
	if err != nil {
		return ports.Outcome{}, fmt.Errorf("list blocked: %w", err)
	}
	if len(blocked) == 0 {
		return ports.Say("No users are blocked."), nil
	}
	choices := make([]domain.Choice, len(blocked))
	for i, b := range blocked {
		choices[i] = domain.Choice{Label: "Unblock " + b.DisplayName(), Value: b.ID}
	}
	c.begin(p, domain.Dialog{Step: domain.StepBlockedPick, Requires: domain.CapabilityModerator, Draft: domain.Draft{Choices: choices}})
	return ports.Outcome{}.Add(pickPrompt("Blocked users:", choices)), nil
}

func (c *conversations) stepBlockedPick(_ context.Context, p domain.Principal, d domain.Dialog, in domain.Input) (ports.Outcome, error) {
	ch, retry, ok := c.choose(d, in)
	if !ok {
		return retry, nil
	}
	return c.confirmFrom(p, d, domain.Action{Kind: domain.ActionUnblock, Target: ch.Value})
}

func (c *conversations) executeUnblock(ctx context.Context, p domain.Principal, a domain.Action) (ports.Outcome, error) {
	entry, err := c.lockout.Unblock(ctx, a.Target)
	if errors.Is(err, domain.ErrNotFound) {
		c.record(ctx, p, a, false, "not blocked")
		return ports.Say(fmt.Sprintf("User %s is not in the blocklist.", a.Target)), nil
	}
	if err != nil {
		c.record(ctx, p, a, false, err.Error())
		return ports.Outcome{}, err
	}
	c.record(ctx, p, a, true, "")
	return ports.Say(fmt.Sprintf("User %s (ID: %s) unblocked.", entry.DisplayName(), entry.ID)), nil
}

// PurgeSubscribers confirms, then drops every outage subscriber.
func (c *conversations) PurgeSubscribers(_ context.Context, p domain.Principal) (ports.Outcome, error) {
	return c.requireConfirmation(p, domain.Action{Kind: domain.ActionPurgeSubscribers}), nil
}

func (c *conversations) executePurge(ctx context.Context, p domain.Principal, a domain.Action) (ports.Outcome, error) {
	n, err := c.store.PurgeSubscribers(ctx)
	if err != nil {
		c.record(ctx, p, a, false, err.Error())
		return ports.Outcome{}, fmt.Errorf("purge subscribers: %w", err)
	}
	c.record(ctx, p, a, true, fmt.Sprintf("%d removed", n))
	return ports.Say(fmt.Sprintf("Removed %d subscribers.", n)), nil
}

// StopService confirms, then asks the process to shut down.
func (c *conversations) StopService(_ context.Context, p domain.Principal) (ports.Outcome, error) {
	return c.requireConfirmation(p, domain.Action{Kind: domain.ActionStopService}), nil
}
