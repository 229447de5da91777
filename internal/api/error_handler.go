package api

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
)

const msgGenericFailure = "Something went wrong. Please try again later."

// replyForError maps an error from a command or dialog step to the text the
// principal sees. ok is false when the event must be dropped without a reply.
func replyForError(err error, log zerolog.Logger, ev ports.Event) (string, bool) {
	var perr *domain.ProviderError
	switch {
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrLocked):
		return "", false
	case errors.As(err, &perr):
		return "Provider error: " + perr.Body, true
	case errors.Is(err, domain.ErrNoSecret):
		return "No 2FA secret on record. Operation cancelled.", true
	case errors.Is(err, domain.ErrInvalidCredential):
		return "Invalid code. Operation cancelled.", true
	case errors.Is(err, domain.ErrInvalidInput):
		return "Invalid " + invalidField(err) + ". Operation cancelled.", true
	case errors.Is(err, domain.ErrAlreadyRegistered):
		return "You are already registered.", true
	case errors.Is(err, domain.ErrAlreadyExists):
		return "That already exists. Operation cancelled.", true
	case errors.Is(err, domain.ErrNotFound):
		return "Not found. Operation cancelled.", true
	}

	log.Error().
		Err(err).
		Str("principal", ev.Principal.ID).
		Str("command", ev.Command).
		Msg("unhandled error")
	return msgGenericFailure, true
}

// invalidField extracts the field name from "invalid input: <field>".
func invalidField(err error) string {
	_, field, ok := strings.Cut(err.Error(), domain.ErrInvalidInput.Error()+": ")
	if !ok || field == "" {
		return "input"
	}
	return field
}
