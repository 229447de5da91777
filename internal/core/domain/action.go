package domain

// Scope selects which secret a confirmation is checked against.
type Scope int

const (
	// ScopeUser verifies against the Identity secret.
	ScopeUser Scope = iota
	// ScopeModerator verifies against the Moderator secret.
	ScopeModerator
)

func (s Scope) String() string {
	if s == ScopeModerator {
		return "moderator"
	}
	return "user"
}

// ActionKind names a confirmation-gated operation.
type ActionKind string

const (
	ActionPowerOn  ActionKind = "poweron"
	ActionShutdown ActionKind = "shutdown"
	ActionReboot   ActionKind = "reboot"

	ActionSwitchGroup       ActionKind = "switch_group"
	ActionUnblock           ActionKind = "unblock"
	ActionRemoveModerator   ActionKind = "remove_moderator"
	ActionNominateModerator ActionKind = "nominate_moderator"
	ActionRemoveMember      ActionKind = "remove_member"
	ActionRemoveServer      ActionKind = "remove_server"
	ActionCreateGroup       ActionKind = "create_group"
	ActionAddServer         ActionKind = "add_server"
	ActionIssueCode         ActionKind = "issue_code"
	ActionReviewCodes       ActionKind = "review_codes"
	ActionPurgeSubscribers  ActionKind = "purge_subscribers"
	ActionStopService       ActionKind = "stop_service"
)

// Action is a pending operation awaiting a fresh TOTP confirmation.
type Action struct {
	Kind     ActionKind
	Target   string
	GroupID  string
	ServerID string
	// ProviderToken is set for power actions so the executor does not need a
	// second group lookup after confirmation.
	ProviderToken string
}

// Scope reports which secret must confirm the action. Power control is a
// user-scoped action; everything else belongs to moderators.
func (a Action) Scope() Scope {
	if a.Kind.IsPower() {
		return ScopeUser
	}
	return ScopeModerator
}

// IsPower reports whether the kind is a server power operation.
func (k ActionKind) IsPower() bool {
	switch k {
	case ActionPowerOn, ActionShutdown, ActionReboot:
		return true
	}
	return false
}

// PowerOp is the provider-side name of a power operation.
type PowerOp string

const (
	PowerOn       PowerOp = "poweron"
	PowerShutdown PowerOp = "shutdown"
	PowerReboot   PowerOp = "reboot"
)

// PowerOp maps a power action kind to its provider operation.
func (k ActionKind) PowerOp() (PowerOp, bool) {
	switch k {
	case ActionPowerOn:
		return PowerOn, true
	case ActionShutdown:
		return PowerShutdown, true
	case ActionReboot:
		return PowerReboot, true
	}
	return "", false
}

// RetryPolicy states what happens after a wrong TOTP code. Enrollment and
// elevation re-prompt; destructive-action confirmation does not.
type RetryPolicy struct {
	EnrollmentReprompt   bool
	ConfirmationReprompt bool
}

// DefaultRetryPolicy keeps enrollment looping and confirmations single-shot.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{EnrollmentReprompt: true, ConfirmationReprompt: false}
}
