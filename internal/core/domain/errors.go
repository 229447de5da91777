package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredential is a wrong TOTP or enrollment code.
	ErrInvalidCredential = errors.New("invalid credential")
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrLocked            = errors.New("principal is blocked")
	ErrAlreadyRegistered = errors.New("already registered")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNoSecret          = errors.New("no 2fa secret on record")
)

// ProviderError carries a non-2xx cloud provider response verbatim.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider responded %d: %s", e.StatusCode, e.Body)
}
