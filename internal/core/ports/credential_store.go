package ports

import (
	"context"

	"github.com/fleetops/fleetbot/internal/core/domain"
)

// IdentityStore persists registered users.
type IdentityStore interface {
	// GetIdentity returns domain.ErrNotFound when id is not registered.
	GetIdentity(ctx context.Context, id string) (*domain.Identity, error)
	UpsertIdentity(ctx context.Context, identity *domain.Identity) error
	DeleteIdentity(ctx context.Context, id string) error
	SetIdentityGroup(ctx context.Context, id, groupID string) error
	ListIdentitiesByGroup(ctx context.Context, groupID string) ([]domain.Identity, error)
	ListIdentityIDs(ctx context.Context) ([]string, error)
}

// ModeratorStore persists moderators and moderator candidates.
type ModeratorStore interface {
	GetModerator(ctx context.Context, id string) (*domain.Moderator, error)
	UpsertModerator(ctx context.Context, moderator *domain.Moderator) error
	DeleteModerator(ctx context.Context, id string) error
	ListModerators(ctx context.Context) ([]domain.Moderator, error)

	AddPendingModerator(ctx context.Context, id string) error
	IsPendingModerator(ctx context.Context, id string) (bool, error)
	DeletePendingModerator(ctx context.Context, id string) error
}

// Blocklist persists principals denied at every gate.
type Blocklist interface {
	IsBlocked(ctx context.Context, id string) (bool, error)
	// Block is idempotent: blocking an already blocked id keeps the first record.
	Block(ctx context.Context, user domain.BlockedUser) error
	// Unblock returns domain.ErrNotFound when id was not blocked.
	Unblock(ctx context.Context, id string) (*domain.BlockedUser, error)
	ListBlocked(ctx context.Context) ([]domain.BlockedUser, error)
}

// GroupStore persists groups and the servers registered under them.
type GroupStore interface {
	CreateGroup(ctx context.Context, group *domain.Group) error
	GetGroup(ctx context.Context, id string) (*domain.Group, error)
	ListGroups(ctx context.Context) ([]domain.Group, error)

	AddServer(ctx context.Context, server *domain.Server) error
	ListServers(ctx context.Context, groupID string) ([]domain.Server, error)
	DeleteServer(ctx context.Context, groupID, serverID string) error
}

// SubscriberStore persists chats that receive outage notifications.
type SubscriberStore interface {
	AddSubscriber(ctx context.Context, chatID int64) error
	RemoveSubscriber(ctx context.Context, chatID int64) error
	ListSubscribers(ctx context.Context) ([]int64, error)
	PurgeSubscribers(ctx context.Context) (int64, error)
}

// CredentialStore is the full persistence contract of the core.
type CredentialStore interface {
	IdentityStore
	ModeratorStore
	Blocklist
	GroupStore
	SubscriberStore
}
