package domain

import (
	"errors"
	"time"
)

// Step is the cursor of a multi-step dialog.
type Step string

const (
	StepNone Step = ""

	StepEnrollmentCode Step = "enrollment_code"
	StepEnrollmentTOTP Step = "enrollment_totp"
	StepElevationTOTP  Step = "elevation_totp"
	StepConfirmation   Step = "confirmation"

	StepGroupID    Step = "group_id"
	StepGroupToken Step = "group_token"
	StepGroupLabel Step = "group_label"

	StepCandidateID Step = "candidate_id"

	StepServerPick   Step = "server_pick"
	StepServerAction Step = "server_action"
	StepServerID     Step = "server_id"
	StepServerName   Step = "server_name"

	StepServerGroupPick   Step = "server_group_pick"
	StepSwitchGroupPick   Step = "switch_group_pick"
	StepCodeGroupPick     Step = "code_group_pick"
	StepCodePick          Step = "code_pick"
	StepBlockedPick       Step = "blocked_pick"
	StepModeratorPick     Step = "moderator_pick"
	StepGroupAdminPick    Step = "group_admin_pick"
	StepMemberPick        Step = "member_pick"
	StepServerRemovalPick Step = "server_removal_pick"
)

var ErrInvalidTransition = errors.New("invalid dialog transition")

// validTransitions lists where each step may move next. Terminal steps move
// to StepNone, which clears the dialog and is always allowed.
var validTransitions = map[Step][]Step{
	StepEnrollmentCode: {StepEnrollmentCode, StepEnrollmentTOTP},
	StepEnrollmentTOTP: {StepEnrollmentTOTP},
	StepElevationTOTP:  {StepElevationTOTP},
	StepConfirmation: {
		StepConfirmation, StepGroupID, StepServerID, StepCodeGroupPick,
		StepCodePick, StepMemberPick, StepServerRemovalPick,
	},
	StepGroupID:           {StepGroupID, StepGroupToken},
	StepGroupToken:        {StepGroupToken, StepGroupLabel},
	StepGroupLabel:        {StepGroupLabel},
	StepCandidateID:       {StepCandidateID, StepConfirmation},
	StepServerPick:        {StepServerPick, StepServerAction},
	StepServerAction:      {StepServerAction, StepConfirmation},
	StepServerID:          {StepServerID, StepServerName},
	StepServerName:        {StepServerName},
	StepServerGroupPick:   {StepServerGroupPick, StepConfirmation},
	StepSwitchGroupPick:   {StepSwitchGroupPick, StepConfirmation},
	StepCodeGroupPick:     {StepCodeGroupPick},
	StepCodePick:          {StepCodePick},
	StepBlockedPick:       {StepBlockedPick, StepConfirmation},
	StepModeratorPick:     {StepModeratorPick, StepConfirmation},
	StepGroupAdminPick:    {StepGroupAdminPick, StepConfirmation},
	StepMemberPick:        {StepMemberPick},
	StepServerRemovalPick: {StepServerRemovalPick},
}

// CanTransitionTo reports whether a dialog at s may advance to next.
func (s Step) CanTransitionTo(next Step) bool {
	if next == StepNone {
		return true
	}
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsPick reports whether the step expects a selection among stored choices.
func (s Step) IsPick() bool {
	switch s {
	case StepServerPick, StepServerAction, StepServerGroupPick, StepSwitchGroupPick,
		StepCodeGroupPick, StepCodePick, StepBlockedPick, StepModeratorPick,
		StepGroupAdminPick, StepMemberPick, StepServerRemovalPick:
		return true
	}
	return false
}

// Choice is one selectable option of a pick step.
type Choice struct {
	Label string
	Value string
}

// Draft accumulates validated inputs across the steps of one dialog.
type Draft struct {
	Name     string
	GroupID  string
	Secret   string
	Token    string
	ServerID string
	Action   *Action
	Choices  []Choice
}

// Dialog is the per-principal cursor through a multi-step conversation.
type Dialog struct {
	Step      Step
	Requires  Capability
	Draft     Draft
	UpdatedAt time.Time
}

// Input is one inbound message or button press routed to a dialog.
type Input struct {
	Text string
	// Pick is the index of a pressed choice button; -1 when the input is text.
	Pick int
}

// TextInput wraps free text.
func TextInput(text string) Input {
	return Input{Text: text, Pick: -1}
}

// PickInput wraps a button selection.
func PickInput(index int) Input {
	return Input{Pick: index}
}

// Choose resolves the input against the dialog's choices, either by index or
// by exact label match.
func (d *Dialog) Choose(in Input) (Choice, bool) {
	choices := d.Draft.Choices
	if in.Pick >= 0 {
		if in.Pick < len(choices) {
			return choices[in.Pick], true
		}
		return Choice{}, false
	}
	for _, c := range choices {
		if c.Label == in.Text {
			return c, true
		}
	}
	return Choice{}, false
}
