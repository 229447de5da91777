// Package middleware holds the chat command chain: capability gating and
// dialog replacement.
package middleware

import (
	"context"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
	"github.com/fleetops/fleetbot/internal/pkg/metrics"
)

// HandlerFunc handles one chat event and returns what to send back.
type HandlerFunc func(ctx context.Context, ev ports.Event) (ports.Outcome, error)

// MiddlewareFunc wraps a HandlerFunc.
type MiddlewareFunc func(next HandlerFunc) HandlerFunc

// Chain applies mw so that the first one listed runs first.
func Chain(h HandlerFunc, mw ...MiddlewareFunc) HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// StandingReader resolves a principal's position at the access gate.
type StandingReader interface {
	Standing(ctx context.Context, id string) domain.Standing
}

// RBAC enforces the command's minimum capability. Denied events yield
// domain.ErrUnauthorized, which the dispatcher drops without a reply.
// Blocked principals are denied unless allowBlocked is set.
func RBAC(gate StandingReader, required domain.Capability, allowBlocked bool) MiddlewareFunc {
	label := required.String()
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, ev ports.Event) (ports.Outcome, error) {
			st := gate.Standing(ctx, ev.Principal.ID)
			if (st.Blocked && !allowBlocked) || !st.Capability().Satisfies(required) {
				metrics.GateDecisionsTotal.WithLabelValues(label, "deny").Inc()
				return ports.Outcome{}, domain.ErrUnauthorized
			}
			metrics.GateDecisionsTotal.WithLabelValues(label, "allow").Inc()
			return next(ctx, ev)
		}
	}
}

// Canceler discards a principal's pending dialog.
type Canceler interface {
	Cancel(p domain.Principal) bool
}

// ReplaceDialog drops any pending dialog before the command runs, and
// purges the ephemeral messages it left behind. It must run after RBAC so an
// unauthorized command cannot cancel anything.
func ReplaceDialog(c Canceler) MiddlewareFunc {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, ev ports.Event) (ports.Outcome, error) {
			cleared := c.Cancel(ev.Principal)
			out, err := next(ctx, ev)
			if cleared {
				out.Purge = true
			}
			return out, err
		}
	}
}
