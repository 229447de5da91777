package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

// memStore is an in-memory CredentialStore. writes counts every mutating
// call so tests can assert that nothing was committed.
type memStore struct {
	mu          sync.Mutex
	identities  map[string]domain.Identity
	moderators  map[string]domain.Moderator
	pending     map[string]bool
	blocked     map[string]domain.BlockedUser
	groups      map[string]domain.Group
	servers     map[string][]domain.Server
	subscribers map[int64]bool
	writes      int
	failReads   error
}

func newMemStore() *memStore {
	return &memStore{
		identities:  map[string]domain.Identity{},
		moderators:  map[string]domain.Moderator{},
		pending:     map[string]bool{},
		blocked:     map[string]domain.BlockedUser{},
		groups:      map[string]domain.Group{},
		servers:     map[string][]domain.Server{},
		subscribers: map[int64]bool{},
	}
}

func (s *memStore) GetIdentity(_ context.Context, id string) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReads != nil {
		return nil, s.failReads
	}
	i, ok := s.identities[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &i, nil
}

func (s *memStore) UpsertIdentity(_ context.Context, i *domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.identities[i.ID] = *i
	return nil
}

func (s *memStore) DeleteIdentity(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	delete(s.identities, id)
	return nil
}

func (s *memStore) SetIdentityGroup(_ context.Context, id, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	i, ok := s.identities[id]
	if !ok {
		return domain.ErrNotFound
	}
	i.GroupID = groupID
	s.identities[id] = i
	return nil
}

func (s *memStore) ListIdentitiesByGroup(_ context.Context, groupID string) ([]domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Identity
	for _, i := range s.identities {
		if i.GroupID == groupID {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *memStore) ListIdentityIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReads != nil {
		return nil, s.failReads
	}
	var out []string
	for id := range s.identities {
		out = append(out, id)
	}
	return out, nil
}

func (s *memStore) GetModerator(_ context.Context, id string) (*domain.Moderator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReads != nil {
		return nil, s.failReads
	}
	m, ok := s.moderators[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &m, nil
}

func (s *memStore) UpsertModerator(_ context.Context, m *domain.Moderator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.moderators[m.ID] = *m
	return nil
}

func (s *memStore) DeleteModerator(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	delete(s.moderators, id)
	return nil
}

func (s *memStore) ListModerators(_ context.Context) ([]domain.Moderator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReads != nil {
		return nil, s.failReads
	}
	var out []domain.Moderator
	for _, m := range s.moderators {
		out = append(out, m)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *memStore) AddPendingModerator(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.pending[id] = true
	return nil
}

func (s *memStore) IsPendingModerator(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[id], nil
}

func (s *memStore) DeletePendingModerator(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	delete(s.pending, id)
	return nil
}

func (s *memStore) IsBlocked(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReads != nil {
		return false, s.failReads
	}
	_, ok := s.blocked[id]
	return ok, nil
}

func (s *memStore) Block(_ context.Context, b domain.BlockedUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if _, ok := s.blocked[b.ID]; !ok {
		s.blocked[b.ID] = b
	}
	return nil
}

func (s *memStore) Unblock(_ context.Context, id string) (*domain.BlockedUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocked[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	s.writes++
	delete(s.blocked, id)
	return &b, nil
}

func (s *memStore) ListBlocked(_ context.Context) ([]domain.BlockedUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReads != nil {
		return nil, s.failReads
	}
	var out []domain.BlockedUser
	for _, b := range s.blocked {
		out = append(out, b)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *memStore) CreateGroup(_ context.Context, g *domain.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.writes++
	s.groups[g.ID] = *g
	return nil
}

func (s *memStore) GetGroup(_ context.Context, id string) (*domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &g, nil
}

func (s *memStore) ListGroups(_ context.Context) ([]domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Group
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *memStore) AddServer(_ context.Context, srv *domain.Server) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.servers[srv.GroupID] = append(s.servers[srv.GroupID], *srv)
	return nil
}

func (s *memStore) ListServers(_ context.Context, groupID string) ([]domain.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Server(nil), s.servers[groupID]...), nil
}

func (s *memStore) DeleteServer(_ context.Context, groupID, serverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	var kept []domain.Server
	for _, srv := range s.servers[groupID] {
		if srv.ID != serverID {
			kept = append(kept, srv)
		}
	}
	s.servers[groupID] = kept
	return nil
}

func (s *memStore) AddSubscriber(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.subscribers[chatID] = true
	return nil
}

func (s *memStore) RemoveSubscriber(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	delete(s.subscribers, chatID)
	return nil
}

func (s *memStore) ListSubscribers(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for id := range s.subscribers {
		out = append(out, id)
	}
	return out, nil
}

func (s *memStore) PurgeSubscribers(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	n := int64(len(s.subscribers))
	s.subscribers = map[int64]bool{}
	return n, nil
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// memCodes is an EnrollmentRegistry whose Consume is atomic under its mutex.
type memCodes struct {
	mu         sync.Mutex
	codes      map[string]string
	consumeErr error
	consumed   int
}

func newMemCodes() *memCodes {
	return &memCodes{codes: map[string]string{}}
}

func (r *memCodes) Insert(_ context.Context, c domain.EnrollmentCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[c.Code] = c.GroupID
	return nil
}

func (r *memCodes) Consume(_ context.Context, code string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consumed++
	if r.consumeErr != nil {
		return "", r.consumeErr
	}
	g, ok := r.codes[code]
	if !ok {
		return "", domain.ErrNotFound
	}
	delete(r.codes, code)
	return g, nil
}

func (r *memCodes) List(_ context.Context) ([]domain.EnrollmentCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.EnrollmentCode
	for c, g := range r.codes {
		out = append(out, domain.EnrollmentCode{Code: c, GroupID: g})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Code < out[b].Code })
	return out, nil
}

func (r *memCodes) Revoke(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.codes[code]; !ok {
		return domain.ErrNotFound
	}
	delete(r.codes, code)
	return nil
}

type memCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newMemCounter() *memCounter {
	return &memCounter{counts: map[string]int{}}
}

func (c *memCounter) Increment(_ context.Context, id string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[id]++
	return c.counts[id], nil
}

func (c *memCounter) Reset(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, id)
	return nil
}

type powerCall struct {
	token, server string
	op            domain.PowerOp
}

type stubProvider struct {
	mu     sync.Mutex
	calls  []powerCall
	status string
	err    error
}

func (p *stubProvider) Status(_ context.Context, _, _ string) (string, error) {
	return p.status, p.err
}

func (p *stubProvider) Power(_ context.Context, token, server string, op domain.PowerOp) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, powerCall{token, server, op})
	if p.err != nil {
		return "", p.err
	}
	return `{"action":{"status":"running"}}`, nil
}

type stubAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (a *stubAudit) Record(_ context.Context, e domain.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

// ---------------------------------------------------------------------------
// Fixture: a fully wired engine over the stubs with a controllable clock.
// ---------------------------------------------------------------------------

type fixture struct {
	store    *memStore
	codes    *memCodes
	counter  *memCounter
	provider *stubProvider
	audit    *stubAudit
	gate     *AccessGate
	lockout  *LockoutTracker
	enroll   *EnrollmentService
	totp     *TOTPEngine
	sessions *Sessions
	conv     *conversations
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newMemStore(),
		codes:    newMemCodes(),
		counter:  newMemCounter(),
		provider: &stubProvider{status: "running"},
		audit:    &stubAudit{},
		totp:     NewTOTPEngine("hetzner_bot_control", "hetzner_bot_control_admin"),
		sessions: NewSessions(DefaultIdleTimeout),
		now:      time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	}
	log := zerolog.Nop()
	f.gate = NewAccessGate(f.store, log)
	f.lockout = NewLockoutTracker(f.counter, f.store, f.gate, DefaultMaxAttempts, log)
	f.enroll = NewEnrollmentService(f.codes, f.lockout, log)
	f.conv = newConversations(ConversationDeps{
		Store:      f.store,
		Provider:   f.provider,
		Audit:      f.audit,
		Gate:       f.gate,
		Enrollment: f.enroll,
		Lockout:    f.lockout,
		TOTP:       f.totp,
		Sessions:   f.sessions,
		Policy:     domain.DefaultRetryPolicy(),
		Log:        log,
	})
	f.conv.now = func() time.Time { return f.now }
	f.sessions.now = func() time.Time { return f.now }
	if err := f.gate.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	return f
}

// code returns the current TOTP code for secret at the fixture clock.
func (f *fixture) code(t *testing.T, secret string) string {
	t.Helper()
	c, err := f.totp.Code(secret, f.now)
	if err != nil {
		t.Fatalf("totp code: %v", err)
	}
	return c
}

// wrongCode returns a well-formed code that does not verify now.
func (f *fixture) wrongCode(t *testing.T, secret string) string {
	t.Helper()
	for _, candidate := range []string{"000000", "111111", "222222", "333333"} {
		if !f.totp.Verify(secret, candidate, f.now) {
			return candidate
		}
	}
	t.Fatal("no wrong code found")
	return ""
}

func (f *fixture) addGroup(id, token string) {
	f.store.groups[id] = domain.Group{ID: id, ProviderToken: token, Label: id}
}

func (f *fixture) addUser(t *testing.T, id, group string) string {
	t.Helper()
	secret, _ := f.totp.GenerateSecret()
	f.store.identities[id] = domain.Identity{ID: id, Name: "user" + id, GroupID: group, Secret: secret}
	f.reload(t)
	return secret
}

func (f *fixture) addModerator(t *testing.T, id string) string {
	t.Helper()
	secret, _ := f.totp.GenerateSecret()
	f.store.moderators[id] = domain.Moderator{ID: id, Name: "mod" + id, Secret: secret}
	f.reload(t)
	return secret
}

func (f *fixture) reload(t *testing.T) {
	t.Helper()
	if err := f.gate.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
}

func (f *fixture) send(t *testing.T, p domain.Principal, text string) ports.Outcome {
	t.Helper()
	out, ok, err := f.conv.Continue(context.Background(), p, domain.TextInput(text))
	if err != nil {
		t.Fatalf("continue %q: %v", text, err)
	}
	if !ok {
		t.Fatalf("continue %q: no pending dialog", text)
	}
	return out
}

func (f *fixture) press(t *testing.T, p domain.Principal, index int) ports.Outcome {
	t.Helper()
	out, ok, err := f.conv.Continue(context.Background(), p, domain.PickInput(index))
	if err != nil {
		t.Fatalf("pick %d: %v", index, err)
	}
	if !ok {
		t.Fatalf("pick %d: no pending dialog", index)
	}
	return out
}

func (f *fixture) step(p domain.Principal) domain.Step {
	d, ok := f.sessions.Get(p.ID)
	if !ok {
		return domain.StepNone
	}
	return d.Step
}

func lastText(out ports.Outcome) string {
	if len(out.Replies) == 0 {
		return ""
	}
	return out.Replies[len(out.Replies)-1].Text
}
