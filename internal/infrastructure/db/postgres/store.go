package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
)

// Sealer protects credential columns at rest.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// Store implements ports.CredentialStore.
type Store struct {
	db      *sql.DB
	sealer  Sealer
	timeout time.Duration
}

var _ ports.CredentialStore = (*Store)(nil)

// NewStore returns a store that seals TOTP secrets and provider tokens with
// sealer. Every statement runs under timeout.
func NewStore(db *sql.DB, sealer Sealer, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{db: db, sealer: sealer, timeout: timeout}
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// ── Identities ────────────────────────────────────────────────────────────────

func (s *Store) GetIdentity(ctx context.Context, id string) (*domain.Identity, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var i domain.Identity
	var sealed string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, username, group_id, secret FROM identities WHERE user_id = $1`, id,
	).Scan(&i.ID, &i.Name, &i.GroupID, &sealed)
	if err != nil {
		return nil, mapError("get identity", err)
	}
	if i.Secret, err = s.sealer.Open(sealed); err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return &i, nil
}

// UpsertIdentity stores the identity, replacing the secret and group of an
// existing one.
func (s *Store) UpsertIdentity(ctx context.Context, i *domain.Identity) error {
	sealed, err := s.sealer.Seal(i.Secret)
	if err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO identities (user_id, username, group_id, secret)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE
		 SET username = EXCLUDED.username, group_id = EXCLUDED.group_id, secret = EXCLUDED.secret`,
		i.ID, i.Name, i.GroupID, sealed)
	if err != nil {
		return mapError("upsert identity", err)
	}
	return nil
}

func (s *Store) DeleteIdentity(ctx context.Context, id string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM identities WHERE user_id = $1`, id); err != nil {
		return mapError("delete identity", err)
	}
	return nil
}

// SetIdentityGroup rebinds an identity. It returns domain.ErrNotFound when
// the identity or the group does not exist.
func (s *Store) SetIdentityGroup(ctx context.Context, id, groupID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `UPDATE identities SET group_id = $2 WHERE user_id = $1`, id, groupID)
	if err != nil {
		return mapError("set identity group", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) ListIdentitiesByGroup(ctx context.Context, groupID string) ([]domain.Identity, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, username, group_id FROM identities WHERE group_id = $1 ORDER BY user_id`, groupID)
	if err != nil {
		return nil, mapError("list identities", err)
	}
	defer rows.Close()

	var out []domain.Identity
	for rows.Next() {
		var i domain.Identity
		if err := rows.Scan(&i.ID, &i.Name, &i.GroupID); err != nil {
			return nil, mapError("list identities", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (s *Store) ListIdentityIDs(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, "list identity ids", `SELECT user_id FROM identities`)
}

func (s *Store) listIDs(ctx context.Context, op, query string) ([]string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapError(op, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ── Moderators ────────────────────────────────────────────────────────────────

func (s *Store) GetModerator(ctx context.Context, id string) (*domain.Moderator, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var m domain.Moderator
	var sealed string
	err := s.db.QueryRowContext(ctx,
		`SELECT moderator_id, username, secret FROM moderators WHERE moderator_id = $1`, id,
	).Scan(&m.ID, &m.Name, &sealed)
	if err != nil {
		return nil, mapError("get moderator", err)
	}
	if m.Secret, err = s.sealer.Open(sealed); err != nil {
		return nil, fmt.Errorf("get moderator: %w", err)
	}
	return &m, nil
}

func (s *Store) UpsertModerator(ctx context.Context, m *domain.Moderator) error {
	sealed, err := s.sealer.Seal(m.Secret)
	if err != nil {
		return fmt.Errorf("upsert moderator: %w", err)
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO moderators (moderator_id, username, secret)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (moderator_id) DO UPDATE
		 SET username = EXCLUDED.username, secret = EXCLUDED.secret`,
		m.ID, m.Name, sealed)
	if err != nil {
		return mapError("upsert moderator", err)
	}
	return nil
}

func (s *Store) DeleteModerator(ctx context.Context, id string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM moderators WHERE moderator_id = $1`, id); err != nil {
		return mapError("delete moderator", err)
	}
	return nil
}

// ListModerators returns moderators without their secrets.
func (s *Store) ListModerators(ctx context.Context) ([]domain.Moderator, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT moderator_id, username FROM moderators ORDER BY moderator_id`)
	if err != nil {
		return nil, mapError("list moderators", err)
	}
	defer rows.Close()

	var out []domain.Moderator
	for rows.Next() {
		var m domain.Moderator
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, mapError("list moderators", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) AddPendingModerator(ctx context.Context, id string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_moderators (moderator_id) VALUES ($1) ON CONFLICT DO NOTHING`, id)
	if err != nil {
		return mapError("add pending moderator", err)
	}
	return nil
}

func (s *Store) IsPendingModerator(ctx context.Context, id string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pending_moderators WHERE moderator_id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, mapError("is pending moderator", err)
	}
	return exists, nil
}

func (s *Store) DeletePendingModerator(ctx context.Context, id string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_moderators WHERE moderator_id = $1`, id); err != nil {
		return mapError("delete pending moderator", err)
	}
	return nil
}

// ── Blocklist ─────────────────────────────────────────────────────────────────

func (s *Store) IsBlocked(ctx context.Context, id string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM blocked_users WHERE user_id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, mapError("is blocked", err)
	}
	return exists, nil
}

// Block keeps the first record when the id is already blocked.
func (s *Store) Block(ctx context.Context, b domain.BlockedUser) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blocked_users (user_id, nickname, reason, blocked_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO NOTHING`,
		b.ID, b.Name, b.Reason, b.BlockedAt.UTC())
	if err != nil {
		return mapError("block", err)
	}
	return nil
}

func (s *Store) Unblock(ctx context.Context, id string) (*domain.BlockedUser, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	var b domain.BlockedUser
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM blocked_users WHERE user_id = $1
		 RETURNING user_id, nickname, reason, blocked_at`, id,
	).Scan(&b.ID, &b.Name, &b.Reason, &b.BlockedAt)
	if err != nil {
		return nil, mapError("unblock", err)
	}
	return &b, nil
}

func (s *Store) ListBlocked(ctx context.Context) ([]domain.BlockedUser, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, nickname, reason, blocked_at FROM blocked_users ORDER BY blocked_at`)
	if err != nil {
		return nil, mapError("list blocked", err)
	}
	defer rows.Close()

	var out []domain.BlockedUser
	for rows.Next() {
		var b domain.BlockedUser
		if err := rows.Scan(&b.ID, &b.Name, &b.Reason, &b.BlockedAt); err != nil {
			return nil, mapError("list blocked", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ── Groups and servers ────────────────────────────────────────────────────────

func (s *Store) CreateGroup(ctx context.Context, g *domain.Group) error {
	sealed, err := s.sealer.Seal(g.ProviderToken)
	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO groups (group_id, provider_token, label) VALUES ($1, $2, $3)`,
		g.ID, sealed, g.Label)
	if err != nil {
		return mapError("create group", err)
	}
	return nil
}

func (s *Store) GetGroup(ctx context.Context, id string) (*domain.Group, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	var g domain.Group
	var sealed string
	err := s.db.QueryRowContext(ctx,
		`SELECT group_id, provider_token, label FROM groups WHERE group_id = $1`, id,
	).Scan(&g.ID, &sealed, &g.Label)
	if err != nil {
		return nil, mapError("get group", err)
	}
	if g.ProviderToken, err = s.sealer.Open(sealed); err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return &g, nil
}

// ListGroups returns groups without their provider tokens.
func (s *Store) ListGroups(ctx context.Context) ([]domain.Group, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT group_id, label FROM groups ORDER BY group_id`)
	if err != nil {
		return nil, mapError("list groups", err)
	}
	defer rows.Close()

	var out []domain.Group
	for rows.Next() {
		var g domain.Group
		if err := rows.Scan(&g.ID, &g.Label); err != nil {
			return nil, mapError("list groups", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) AddServer(ctx context.Context, srv *domain.Server) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO servers (group_id, server_id, server_name) VALUES ($1, $2, $3)`,
		srv.GroupID, srv.ID, srv.Name)
	if err != nil {
		return mapError("add server", err)
	}
	return nil
}

func (s *Store) ListServers(ctx context.Context, groupID string) ([]domain.Server, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id, server_id, server_name FROM servers WHERE group_id = $1 ORDER BY server_id`, groupID)
	if err != nil {
		return nil, mapError("list servers", err)
	}
	defer rows.Close()

	var out []domain.Server
	for rows.Next() {
		var srv domain.Server
		if err := rows.Scan(&srv.GroupID, &srv.ID, &srv.Name); err != nil {
			return nil, mapError("list servers", err)
		}
		out = append(out, srv)
	}
	return out, rows.Err()
}

func (s *Store) DeleteServer(ctx context.Context, groupID, serverID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM servers WHERE group_id = $1 AND server_id = $2`, groupID, serverID)
	if err != nil {
		return mapError("delete server", err)
	}
	return nil
}

// ── Subscribers ───────────────────────────────────────────────────────────────

func (s *Store) AddSubscriber(ctx context.Context, chatID int64) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outage_subscribers (chat_id) VALUES ($1) ON CONFLICT DO NOTHING`, chatID)
	if err != nil {
		return mapError("add subscriber", err)
	}
	return nil
}

func (s *Store) RemoveSubscriber(ctx context.Context, chatID int64) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM outage_subscribers WHERE chat_id = $1`, chatID); err != nil {
		return mapError("remove subscriber", err)
	}
	return nil
}

func (s *Store) ListSubscribers(ctx context.Context) ([]int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id FROM outage_subscribers`)
	if err != nil {
		return nil, mapError("list subscribers", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, mapError("list subscribers", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) PurgeSubscribers(ctx context.Context) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `DELETE FROM outage_subscribers`)
	if err != nil {
		return 0, mapError("purge subscribers", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// BootstrapModerator nominates id as a moderator candidate when no moderator
// exists yet. It reports whether the nomination happened.
func (s *Store) BootstrapModerator(ctx context.Context, id string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	nominated := false
	err := WithTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM moderators)`).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pending_moderators (moderator_id) VALUES ($1) ON CONFLICT DO NOTHING`, id); err != nil {
			return err
		}
		nominated = true
		return nil
	})
	if err != nil {
		return false, mapError("bootstrap moderator", err)
	}
	return nominated, nil
}
