package domain

import (
	"strings"
	"time"
)

// Principal is any chat participant, authenticated or not. ID is the
// platform-assigned user id rendered as a decimal string.
type Principal struct {
	ID   string
	Name string
}

// Identity is a registered user bound to a group.
type Identity struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	GroupID string `json:"group_id"`
	Secret  string `json:"-"`
}

// Moderator holds elevated capability. Its secret is unrelated to any
// Identity secret kept for the same id.
type Moderator struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Secret string `json:"-"`
}

// BlockedUser is a principal denied at every gate until unblocked.
type BlockedUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Reason    string    `json:"reason"`
	BlockedAt time.Time `json:"blocked_at"`
}

// DisplayName falls back to the id when no name was recorded.
func (b BlockedUser) DisplayName() string {
	if strings.TrimSpace(b.Name) == "" {
		return "ID: " + b.ID
	}
	return b.Name
}

// Group scopes identities and servers and carries the provider credential.
type Group struct {
	ID            string `json:"id"`
	ProviderToken string `json:"-"`
	Label         string `json:"label,omitempty"`
}

// DisplayName returns the label, or the id when the label is blank.
func (g Group) DisplayName() string {
	if strings.TrimSpace(g.Label) == "" {
		return g.ID
	}
	return g.Label
}

// Server is a provider resource registered under a group.
type Server struct {
	GroupID string `json:"group_id"`
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
}

// DisplayName returns the name, or the id when the name is blank.
func (s Server) DisplayName() string {
	if strings.TrimSpace(s.Name) == "" {
		return s.ID
	}
	return s.Name
}

// EnrollmentCode is a single-use bearer token binding a future identity to a
// group.
type EnrollmentCode struct {
	Code    string `json:"code"`
	GroupID string `json:"group_id"`
}
