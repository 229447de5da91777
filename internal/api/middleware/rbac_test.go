package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
)

type stubGate map[string]domain.Standing

func (g stubGate) Standing(_ context.Context, id string) domain.Standing {
	return g[id]
}

type stubCanceler struct {
	pending map[string]bool
}

func (c *stubCanceler) Cancel(p domain.Principal) bool {
	had := c.pending[p.ID]
	delete(c.pending, p.ID)
	return had
}

func eventFrom(id string) ports.Event {
	return ports.Event{Kind: ports.EventCommand, Principal: domain.Principal{ID: id}}
}

func okHandler(called *bool) HandlerFunc {
	return func(context.Context, ports.Event) (ports.Outcome, error) {
		*called = true
		return ports.Say("done"), nil
	}
}

func TestRBAC_Allows(t *testing.T) {
	gate := stubGate{
		"user": {User: true},
		"mod":  {Moderator: true},
	}
	cases := []struct {
		id       string
		required domain.Capability
	}{
		{"user", domain.CapabilityUser},
		{"mod", domain.CapabilityUser},
		{"mod", domain.CapabilityModerator},
		{"stranger", domain.CapabilityNone},
	}
	for _, tc := range cases {
		called := false
		h := RBAC(gate, tc.required, false)(okHandler(&called))
		if _, err := h(context.Background(), eventFrom(tc.id)); err != nil {
			t.Fatalf("%s/%s: unexpected error %v", tc.id, tc.required, err)
		}
		if !called {
			t.Fatalf("%s/%s: next handler not called", tc.id, tc.required)
		}
	}
}

func TestRBAC_Forbids(t *testing.T) {
	gate := stubGate{
		"user":    {User: true},
		"blocked": {User: true, Moderator: true, Blocked: true},
	}
	cases := []struct {
		id       string
		required domain.Capability
	}{
		{"user", domain.CapabilityModerator},
		{"stranger", domain.CapabilityUser},
		{"blocked", domain.CapabilityUser},
		{"blocked", domain.CapabilityNone},
	}
	for _, tc := range cases {
		called := false
		h := RBAC(gate, tc.required, false)(okHandler(&called))
		out, err := h(context.Background(), eventFrom(tc.id))
		if !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("%s/%s: expected ErrUnauthorized, got %v", tc.id, tc.required, err)
		}
		if called || len(out.Replies) != 0 {
			t.Fatalf("%s/%s: denied event must produce nothing", tc.id, tc.required)
		}
	}
}

func TestRBAC_AllowBlocked(t *testing.T) {
	gate := stubGate{"blocked": {Blocked: true}}
	called := false
	h := RBAC(gate, domain.CapabilityNone, true)(okHandler(&called))
	if _, err := h(context.Background(), eventFrom("blocked")); err != nil || !called {
		t.Fatalf("blocked principal must reach an allowBlocked command, err=%v", err)
	}
}

func TestReplaceDialog_PurgesOnlyWhenSomethingWasPending(t *testing.T) {
	c := &stubCanceler{pending: map[string]bool{"1": true}}
	called := false
	h := ReplaceDialog(c)(okHandler(&called))

	out, _ := h(context.Background(), eventFrom("1"))
	if !out.Purge {
		t.Fatal("replacing a pending dialog must purge its ephemeral messages")
	}
	out, _ = h(context.Background(), eventFrom("1"))
	if out.Purge {
		t.Fatal("no dialog was pending the second time")
	}
}

func TestChain_RBACRunsBeforeReplaceDialog(t *testing.T) {
	c := &stubCanceler{pending: map[string]bool{"user": true}}
	gate := stubGate{"user": {User: true}}
	called := false
	h := Chain(okHandler(&called), RBAC(gate, domain.CapabilityModerator, false), ReplaceDialog(c))

	if _, err := h(context.Background(), eventFrom("user")); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if !c.pending["user"] {
		t.Fatal("a denied command must not cancel the pending dialog")
	}
}
