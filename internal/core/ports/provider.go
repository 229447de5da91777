package ports

import (
	"context"

	"github.com/fleetops/fleetbot/internal/core/domain"
)

// CloudProvider performs power control against the provider API. Any non-2xx
// response is returned as *domain.ProviderError.
type CloudProvider interface {
	Status(ctx context.Context, token, serverID string) (string, error)
	// Power returns the raw response body on success.
	Power(ctx context.Context, token, serverID string, op domain.PowerOp) (string, error)
}

// AuditLog appends privileged-action audit events.
type AuditLog interface {
	Record(ctx context.Context, event domain.AuditEvent) error
}

// AuditReader lists the most recent audit events, newest first.
type AuditReader interface {
	Recent(ctx context.Context, limit int64) ([]domain.AuditEvent, error)
}
