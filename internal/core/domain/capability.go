package domain

// Capability is the access tier a principal holds. Tiers are ordered:
// a moderator satisfies every user gate.
type Capability int

const (
	CapabilityNone Capability = iota
	CapabilityUser
	CapabilityModerator
)

func (c Capability) String() string {
	switch c {
	case CapabilityUser:
		return "user"
	case CapabilityModerator:
		return "moderator"
	default:
		return "none"
	}
}

// Satisfies reports whether c meets the required tier.
func (c Capability) Satisfies(required Capability) bool {
	return c >= required
}

// Standing is a principal's resolved position at the access gate.
type Standing struct {
	User      bool
	Moderator bool
	Blocked   bool
}

// Capability collapses a standing to the highest tier it grants. Blocked
// principals hold no capability.
func (s Standing) Capability() Capability {
	switch {
	case s.Blocked:
		return CapabilityNone
	case s.Moderator:
		return CapabilityModerator
	case s.User:
		return CapabilityUser
	default:
		return CapabilityNone
	}
}
