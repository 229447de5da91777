package service

import (
	"context"
	"fmt"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
)

// Elevate provisions a moderator secret for a pending candidate. Anyone else
// is refused silently.
func (c *conversations) Elevate(ctx context.Context, p domain.Principal) (ports.Outcome, error) {
	pending, err := c.store.IsPendingModerator(ctx, p.ID)
	if err != nil {
		c.log.Warn().Err(err).Str("principal", p.ID).Msg("pending moderator lookup failed")
		return ports.Outcome{}, domain.ErrUnauthorized
	}
	if !pending {
		return ports.Outcome{}, domain.ErrUnauthorized
	}

	secret, err := c.totp.GenerateSecret()
	if err != nil {
		return ports.Outcome{}, err
	}
	img, err := c.totp.QRCode(secret, provisioningLabel(p), c.totp.ModeratorIssuer)
	if err != nil {
		return ports.Outcome{}, err
	}
	c.begin(p, domain.Dialog{
		Step:     domain.StepElevationTOTP,
		Requires: domain.CapabilityNone,
		Draft:    domain.Draft{Name: p.Name, Secret: secret},
	})

	out := ports.Say("Sending the moderator 2FA setup.")
	return out.Add(provisioningOutcome(img, secret).Replies...), nil
}

func (c *conversations) stepElevationTOTP(ctx context.Context, p domain.Principal, d domain.Dialog, in domain.Input) (ports.Outcome, error) {
	if !c.totp.Verify(d.Draft.Secret, in.Text, c.now()) {
		if c.policy.EnrollmentReprompt {
			return ports.Say(msgTOTPWrong), c.advance(p, d, d)
		}
		c.finish(p)
		return ports.Outcome{Replies: []ports.Reply{{Text: "Wrong code. Elevation cancelled."}}, Purge: true}, nil
	}

	mod := &domain.Moderator{ID: p.ID, Name: d.Draft.Name, Secret: d.Draft.Secret}
	if err := c.store.UpsertModerator(ctx, mod); err != nil {
		return ports.Outcome{}, fmt.Errorf("elevate: %w", err)
	}
	if err := c.store.DeletePendingModerator(ctx, p.ID); err != nil {
		c.log.Warn().Err(err).Str("principal", p.ID).Msg("failed to clear pending moderator entry")
	}
	c.gate.Refresh(ctx)
	c.finish(p)
	c.log.Info().Str("principal", p.ID).Msg("moderator registered")

	return ports.Outcome{
		Replies: []ports.Reply{{Text: "You are now registered as a moderator."}},
		Purge:   true,
	}, nil
}
