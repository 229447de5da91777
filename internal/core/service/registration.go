package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
)

const (
	msgBlocked         = "Access blocked. Contact a moderator."
	msgTOTPPrompt      = "Enter the 6-digit code from your authenticator app:"
	msgTOTPWrong       = "Wrong code, try again:"
	msgTOTPWrongFinal  = "Wrong code. Registration cancelled."
	msgQRCaption       = "Scan this QR code with your authenticator app, or enter the key below."
	msgEnrollmentRetry = "Code not recognised. Try again:"
)

// Register starts enrollment: enrollment code, then TOTP provisioning.
func (c *conversations) Register(ctx context.Context, p domain.Principal) (ports.Outcome, error) {
	st := c.gate.Standing(ctx, p.ID)
	if st.Blocked {
		c.finish(p)
		return ports.Say(msgBlocked), nil
	}
	if st.User {
		c.finish(p)
		return ports.Say("You are already registered."), nil
	}
	c.begin(p, domain.Dialog{
		Step:     domain.StepEnrollmentCode,
		Requires: domain.CapabilityNone,
		Draft:    domain.Draft{Name: p.Name},
	})
	return ports.Say("Enter your one-time enrollment code:"), nil
}

func (c *conversations) stepEnrollmentCode(ctx context.Context, p domain.Principal, d domain.Dialog, in domain.Input) (ports.Outcome, error) {
	groupID, err := c.enrollment.Redeem(ctx, p, in.Text)
	switch {
	case errors.Is(err, domain.ErrLocked):
		c.finish(p)
		return ports.Outcome{Replies: []ports.Reply{{Text: "Too many invalid codes. " + msgBlocked}}, Purge: true}, nil
	case errors.Is(err, domain.ErrInvalidCredential):
		if c.policy.EnrollmentReprompt {
			return ports.Say(msgEnrollmentRetry), c.advance(p, d, d)
		}
		c.finish(p)
		return ports.Say("Code not recognised."), nil
	case err != nil:
		return ports.Outcome{}, err
	}

	secret, err := c.totp.GenerateSecret()
	if err != nil {
		return ports.Outcome{}, err
	}
	label := provisioningLabel(p)
	img, err := c.totp.QRCode(secret, label, c.totp.UserIssuer)
	if err != nil {
		return ports.Outcome{}, err
	}

	next := domain.Dialog{
		Step:     domain.StepEnrollmentTOTP,
		Requires: domain.CapabilityNone,
		Draft:    domain.Draft{Name: p.Name, GroupID: groupID, Secret: secret},
	}
	if err := c.advance(p, d, next); err != nil {
		return ports.Outcome{}, err
	}
	return provisioningOutcome(img, secret), nil
}

func (c *conversations) stepEnrollmentTOTP(ctx context.Context, p domain.Principal, d domain.Dialog, in domain.Input) (ports.Outcome, error) {
	if !c.totp.Verify(d.Draft.Secret, in.Text, c.now()) {
		if c.policy.EnrollmentReprompt {
			return ports.Say(msgTOTPWrong), c.advance(p, d, d)
		}
		c.finish(p)
		return ports.Outcome{Replies: []ports.Reply{{Text: msgTOTPWrongFinal}}, Purge: true}, nil
	}

	identity := &domain.Identity{
		ID:      p.ID,
		Name:    d.Draft.Name,
		GroupID: d.Draft.GroupID,
		Secret:  d.Draft.Secret,
	}
	if err := c.store.UpsertIdentity(ctx, identity); err != nil {
		return ports.Outcome{}, fmt.Errorf("register identity: %w", err)
	}
	c.gate.Refresh(ctx)
	c.finish(p)
	c.log.Info().Str("principal", p.ID).Str("group", identity.GroupID).Msg("identity registered")

	return ports.Outcome{
		Replies: []ports.Reply{{Text: "Code accepted. Registration complete."}},
		Purge:   true,
	}, nil
}

// provisioningOutcome delivers the QR code and the raw key as ephemeral
// messages, followed by the code prompt.
func provisioningOutcome(img []byte, secret string) ports.Outcome {
	return ports.Outcome{Replies: []ports.Reply{
		{Text: msgQRCaption, Image: img, Ephemeral: true},
		{Text: secret, Ephemeral: true},
		{Text: msgTOTPPrompt},
	}}
}

func provisioningLabel(p domain.Principal) string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return p.ID
}
