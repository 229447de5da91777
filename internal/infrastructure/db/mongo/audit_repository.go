package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
)

const (
	auditCollection     = "audit_events"
	defaultAuditTimeout = 5 * time.Second
)

// auditDoc is the stored shape of a domain.AuditEvent.
type auditDoc struct {
	ID        string    `bson:"_id"`
	ActorID   string    `bson:"actor_id"`
	Action    string    `bson:"action"`
	Target    string    `bson:"target,omitempty"`
	GroupID   string    `bson:"group_id,omitempty"`
	ServerID  string    `bson:"server_id,omitempty"`
	Success   bool      `bson:"success"`
	Detail    string    `bson:"detail,omitempty"`
	Timestamp time.Time `bson:"timestamp"`
}

// AuditRepository implements ports.AuditLog and ports.AuditReader.
type AuditRepository struct {
	c       *mongo.Collection
	timeout time.Duration
}

var (
	_ ports.AuditLog    = (*AuditRepository)(nil)
	_ ports.AuditReader = (*AuditRepository)(nil)
)

// NewAuditRepository creates a repository over the audit_events collection.
// Every call is bounded by timeout; zero selects a 5s default.
func NewAuditRepository(db *mongo.Database, timeout time.Duration) *AuditRepository {
	if timeout <= 0 {
		timeout = defaultAuditTimeout
	}
	return &AuditRepository{c: db.Collection(auditCollection), timeout: timeout}
}

func (r *AuditRepository) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// EnsureIndexes creates the indexes used by audit queries.
func (r *AuditRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "actor_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "action", Value: 1}, {Key: "timestamp", Value: -1}}},
	}
	if _, err := r.c.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("audit indexes: %w", err)
	}
	return nil
}

// Record inserts one audit event.
func (r *AuditRepository) Record(ctx context.Context, e domain.AuditEvent) error {
	doc := auditDoc{
		ID:        e.ID,
		ActorID:   e.ActorID,
		Action:    string(e.Action),
		Target:    e.Target,
		GroupID:   e.GroupID,
		ServerID:  e.ServerID,
		Success:   e.Success,
		Detail:    e.Detail,
		Timestamp: e.Timestamp.UTC(),
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()
	if _, err := r.c.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (r *AuditRepository) Recent(ctx context.Context, limit int64) ([]domain.AuditEvent, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
	cur, err := r.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("recent audit events: %w", err)
	}
	defer cur.Close(ctx)

	var docs []auditDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("recent audit events: %w", err)
	}
	out := make([]domain.AuditEvent, len(docs))
	for i, d := range docs {
		out[i] = domain.AuditEvent{
			ID:        d.ID,
			ActorID:   d.ActorID,
			Action:    domain.ActionKind(d.Action),
			Target:    d.Target,
			GroupID:   d.GroupID,
			ServerID:  d.ServerID,
			Success:   d.Success,
			Detail:    d.Detail,
			Timestamp: d.Timestamp,
		}
	}
	return out, nil
}
