package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
)

const (
	groupChoiceMember = "member:"
	groupChoiceServer = "server:"
)

// Groups lists every group with its members and servers and offers removal
// of either.
func (c *conversations) Groups(ctx context.Context, p domain.Principal) (ports.Outcome, error) {
	groups, err := c.store.ListGroups(ctx)
	if err != nil {
		return ports.Outcome{}, fmt.Errorf("list groups: %w", err)
	}
	if len(groups) == 0 {
		return ports.Say("There are no groups yet."), nil
	}

	var out ports.Outcome
	var choices []domain.Choice
	for _, g := range groups {
		members, err := c.store.ListIdentitiesByGroup(ctx, g.ID)
		if err != nil {
			return ports.Outcome{}, fmt.Errorf("list groups: %w", err)
		}
		servers, err := c.store.ListServers(ctx, g.ID)
		if err != nil {
			return ports.Outcome{}, fmt.Errorf("list groups: %w", err)
		}

		offset := len(choices)
		choices = append(choices,
			domain.Choice{Label: "Remove member from " + g.DisplayName(), Value: groupChoiceMember + g.ID},
			domain.Choice{Label: "Remove server from " + g.DisplayName(), Value: groupChoiceServer + g.ID},
		)
		buttons := pickButtons(choices)[offset:]
		out = out.Add(ports.Reply{Text: c.describeGroup(ctx, g, members, servers), Buttons: buttons})
	}

	c.begin(p, domain.Dialog{
		Step:     domain.StepGroupAdminPick,
		Requires: domain.CapabilityModerator,
		Draft:    domain.Draft{Choices: choices},
	})
	return out, nil
}

func (c *conversations) describeGroup(ctx context.Context, g domain.Group, members []domain.Identity, servers []domain.Server) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Group: %s (id: %s)\n", g.DisplayName(), g.ID)
	b.WriteString("Members:\n")
	if len(members) == 0 {
		b.WriteString("  none\n")
	}
	for _, m := range members {
		role := "user"
		if c.gate.Standing(ctx, m.ID).Moderator {
			role = "moderator"
		}
		fmt.Fprintf(&b, "  %s (ID: %s, %s)\n", m.Name, m.ID, role)
	}
	b.WriteString("Servers:\n")
	if len(servers) == 0 {
		b.WriteString("  none\n")
	}
	for _, s := range servers {
		fmt.Fprintf(&b, "  %s (ID: %s)\n", s.DisplayName(), s.ID)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *conversations) stepGroupAdminPick(_ context.Context, p domain.Principal, d domain.Dialog, in domain.Input) (ports.Outcome, error) {
	ch, retry, ok := c.choose(d, in)
	if !ok {
		return retry, nil
	}
	switch {
	case strings.HasPrefix(ch.Value, groupChoiceMember):
		gid := strings.TrimPrefix(ch.Value, groupChoiceMember)
		return c.confirmFrom(p, d, domain.Action{Kind: domain.ActionRemoveMember, GroupID: gid})
	case strings.HasPrefix(ch.Value, groupChoiceServer):
		gid := strings.TrimPrefix(ch.Value, groupChoiceServer)
		return c.confirmFrom(p, d, domain.Action{Kind: domain.ActionRemoveServer, GroupID: gid})
	}
	return retry, nil
}

func (c *conversations) promptMemberRemoval(ctx context.Context, p domain.Principal, d domain.Dialog, a domain.Action) (ports.Outcome, error) {
	members, err := c.store.ListIdentitiesByGroup(ctx, a.GroupID)
	if err != nil {
		return ports.Outcome{}, fmt.Errorf("remove member: %w", err)
	}
	if len(members) == 0 {
		return ports.Say(fmt.Sprintf("Group '%s' has no members.", a.GroupID)), nil
	}
	choices := make([]domain.Choice, len(members))
	for i, m := range members {
		choices[i] = domain.Choice{Label: fmt.Sprintf("%s (ID: %s)", m.Name, m.ID), Value: m.ID}
	}
	act := a
	next := domain.Dialog{
		Step:     domain.StepMemberPick,
		Requires: domain.CapabilityModerator,
		Draft:    domain.Draft{GroupID: a.GroupID, Action: &act, Choices: choices},
	}
	if err := c.advance(p, d, next); err != nil {
		return ports.Outcome{}, err
	}
	return ports.Outcome{}.Add(pickPrompt("Choose the member to remove:", choices)), nil
}

func (c *conversations) stepMemberPick(ctx context.Context, p domain.Principal, d domain.Dialog, in domain.Input) (ports.Outcome, error) {
	ch, retry, ok := c.choose(d, in)
	if !ok {
		return retry, nil
	}
	a := domain.Action{Kind: domain.ActionRemoveMember, Target: ch.Value, GroupID: d.Draft.GroupID}
	if err := c.store.DeleteIdentity(ctx, ch.Value); err != nil {
		c.record(ctx, p, a, false, err.Error())
		return ports.Outcome{}, fmt.Errorf("remove member: %w", err)
	}
	c.gate.Refresh(ctx)
	c.record(ctx, p, a, true, "")
	c.finish(p)
	return ports.Say(fmt.Sprintf("User %s removed from group '%s'.", ch.Value, d.Draft.GroupID)), nil
}

func (c *conversations) promptServerRemoval(ctx context.Context, p domain.Principal, d domain.Dialog, a domain.Action) (ports.Outcome, error) {
	servers, err := c.store.ListServers(ctx, a.GroupID)
	if err != nil {
		return ports.Outcome{}, fmt.Errorf("remove server: %w", err)
	}
	if len(servers) == 0 {
		return ports.Say(fmt.Sprintf("Group '%s' has no servers.", a.GroupID)), nil
	}
	choices := make([]domain.Choice, len(servers))
	for i, s := range servers {
		choices[i] = domain.Choice{Label: fmt.Sprintf("%s (ID: %s)", s.DisplayName(), s.ID), Value: s.ID}
	}
	next := domain.Dialog{
		Step:     domain.StepServerRemovalPick,
		Requires: domain.CapabilityModerator,
		Draft:    domain.Draft{GroupID: a.GroupID, Choices: choices},
	}
	if err := c.advance(p, d, next); err != nil {
		return ports.Outcome{}, err
	}
	return ports.Outcome{}.Add(pickPrompt("Choose the server to remove:", choices)), nil
}

func (c *conversations) stepServerRemovalPick(ctx context.Context, p domain.Principal, d domain.Dialog, in domain.Input) (ports.Outcome, error) {
	ch, retry, ok := c.choose(d, in)
	if !ok {
		return retry, nil
	}
	a := domain.Action{Kind: domain.ActionRemoveServer, GroupID: d.Draft.GroupID, ServerID: ch.Value}
	if err := c.store.DeleteServer(ctx, d.Draft.GroupID, ch.Value); err != nil {
		c.record(ctx, p, a, false, err.Error())
		return ports.Outcome{}, fmt.Errorf("remove server: %w", err)
	}
	c.record(ctx, p, a, true, "")
	c.finish(p)
	return ports.Say(fmt.Sprintf("Server %s removed from group '%s'.", ch.Value, d.Draft.GroupID)), nil
}

// CreateGroup asks for confirmation, then for id, provider token and label.
func (c *conversations) CreateGroup(_ context.Context, p domain.Principal) (ports.Outcome, error) {
	return c.requireConfirmation(p, domain.Action{Kind: domain.ActionCreateGroup}), nil
}

func (c *conversations) promptGroupID(p domain.Principal, d domain.Dialog) (ports.Outcome, error) {
	next := domain.Dialog{Step: domain.StepGroupID, Requires: domain.CapabilityModerator}
	if err := c.advance(p, d, next); err != nil {
		return ports.Outcome{}, err
	}
	return ports.Say("Enter the new group id:"), nil
}

func (c *conversations) stepGroupID(ctx context.Context, p domain.Principal, d domain.Dialog, in domain.Input) (ports.Outcome, error) {
	id, err := checkField(in.Text, ruleGroupID, "group id")
	if err != nil {
		return ports.Say("That is not a valid group id. Enter the new group id:"), c.advance(p, d, d)
	}
	if _, err := c.store.GetGroup(ctx, id); err == nil {
		return ports.Say(fmt.Sprintf("Group '%s' already exists. Enter another id:", id)), c.advance(p, d, d)
	}
	next := domain.Dialog{Step: domain.StepGroupToken, Requires: domain.CapabilityModerator, Draft: domain.Draft{GroupID: id}}
	if err := c.advance(p, d, next); err != nil {
		return ports.Outcome{}, err
	}
	return ports.Say("Enter the Hetzner API token for this group:"), nil
}

func (c *conversations) stepGroupToken(_ context.Context, p domain.Principal, d domain.Dialog, in domain.Input) (ports.Outcome, error) {
	token, err := checkField(in.Text, ruleProviderToken, "provider token")
	if err != nil {
		return ports.Say("That does not look like an API token. Enter the token:"), c.advance(p, d, d)
	}
	next := d
	next.Step = domain.StepGroupLabel
	next.Draft.Token = token
	if err := c.advance(p, d, next); err != nil {
		return ports.Outcome{}, err
	}
	return ports.Say("Enter a label for the group, or - to skip:"), nil
}

func (c *conversations) stepGroupLabel(ctx context.Context, p domain.Principal, d domain.Dialog, in domain.Input) (ports.Outcome, error) {
	label := strings.TrimSpace(in.Text)
	if label == "-" {
		label = ""
	}
	label, err := checkField(label, ruleLabel, "label")
	if err != nil {
		return ports.Say("The label is too long. Enter a shorter one:"), c.advance(p, d, d)
	}

	g := &domain.Group{ID: d.Draft.GroupID, ProviderToken: d.Draft.Token, Label: label}
	a := domain.Action{Kind: domain.ActionCreateGroup, GroupID: g.ID}
	if err := c.store.CreateGroup(ctx, g); err != nil {
		c.record(ctx, p, a, false, err.Error())
		return ports.Outcome{}, fmt.Errorf("create group: %w", err)
	}
	c.record(ctx, p, a, true, "")
	c.finish(p)
	return ports.Say(fmt.Sprintf("Group '%s' (id: %s) created.", g.DisplayName(), g.ID)), nil
}

// AddServer picks a group, confirms, then asks for server id and name.
func (c *conversations) AddServer(ctx context.Context, p domain.Principal) (ports.Outcome, error) {
	groups, err := c.store.ListGroups(ctx)
	if err != nil {
		return ports.Outcome{}, fmt.Errorf("add server: %w", err)
	}
	if len(groups) == 0 {
		return ports.Say("There are no groups yet. Create one with /new_group."), nil
	}
	choices := groupChoices(groups)
	c.begin(p, domain.Dialog{
		Step:     domain.StepServerGroupPick,
		Requires: domain.CapabilityModerator,
		Draft:    domain.Draft{Choices: choices},
	})
	return ports.Outcome{}.Add(pickPrompt("Choose the group for the new server:", choices)), nil
}

func (c *conversations) stepServerGroupPick(_ context.Context, p domain.Principal, d domain.Dialog, in domain.Input) (ports.Outcome, error) {
	ch, retry, ok := c.choose(d, in)
	if !ok {
		return retry, nil
	}
	return c.confirmFrom(p, d, domain.Action{Kind: domain.ActionAddServer, GroupID: ch.Value})
}

func (c *conversations) promptServerID(p domain.Principal, d domain.Dialog, a domain.Action) (ports.Outcome, error) {
	next := domain.Dialog{Step: domain.StepServerID, Requires: domain.CapabilityModerator, Draft: domain.Draft{GroupID: a.GroupID}}
	if err := c.advance(p, d, next); err != nil {
		return ports.Outcome{}, err
	}
	return ports.Say(fmt.Sprintf("Enter the id of the server to add to group '%s':", a.GroupID)), nil
}

func (c *conversations) stepServerID(_ context.Context, p domain.Principal, d domain.Dialog, in domain.Input) (ports.Outcome, error) {
	id, err := checkField(in.Text, ruleServerID, "server id")
	if err != nil {
		return ports.Say("Server ids are numeric. Enter the server id:"), c.advance(p, d, d)
	}
	next := d
	next.Step = domain.StepServerName
	next.Draft.ServerID = id
	if err := c.advance(p, d, next); err != nil {
		return ports.Outcome{}, err
	}
	return ports.Say("Enter the server name:"), nil
}

func (c *conversations) stepServerName(ctx context.Context, p domain.Principal, d domain.Dialog, in domain.Input) (ports.Outcome, error) {
	name, err := checkField(in.Text, ruleServerName, "server name")
	if err != nil {
		return ports.Say("The name is too long. Enter a shorter one:"), c.advance(p, d, d)
	}
	s := &domain.Server{GroupID: d.Draft.GroupID, ID: d.Draft.ServerID, Name: name}
	a := domain.Action{Kind: domain.ActionAddServer, GroupID: s.GroupID, ServerID: s.ID}
	if err := c.store.AddServer(ctx, s); err != nil {
		c.record(ctx, p, a, false, err.Error())
		return ports.Outcome{}, fmt.Errorf("add server: %w", err)
	}
	c.record(ctx, p, a, true, "")
	c.finish(p)
	return ports.Say(fmt.Sprintf("Server %s added to group '%s'.", s.DisplayName(), s.GroupID)), nil
}
