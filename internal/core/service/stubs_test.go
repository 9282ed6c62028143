package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/commissionhub/commission-api/internal/core/domain"
	"github.com/commissionhub/commission-api/internal/core/ports"
)

// ---------------------------------------------------------------------------
// In-memory stub repositories
// ---------------------------------------------------------------------------

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.Plans = append([]domain.PricePlan(nil), u.Plans...)
	return &c
}

type stubUserRepo struct {
	mu       sync.Mutex
	byID     map[string]*domain.User
	updates  int
	findErr  error // if set, FindByID returns this error
	upsertFn func(u *domain.User) (*domain.User, error)
}

func newStubUserRepo(users ...*domain.User) *stubUserRepo {
	r := &stubUserRepo{byID: make(map[string]*domain.User)}
	for _, u := range users {
		r.byID[u.ID] = cloneUser(u)
	}
	return r
}

func (r *stubUserRepo) UpsertByExternalID(_ context.Context, u *domain.User) (*domain.User, error) {
	if r.upsertFn != nil {
		return r.upsertFn(u)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.ExternalID == u.ExternalID {
			existing.Handle = u.Handle
			existing.DisplayName = u.DisplayName
			existing.AvatarURL = u.AvatarURL
			return cloneUser(existing), nil
		}
	}
	for _, existing := range r.byID {
		if domain.NormalizeHandle(existing.Handle) == domain.NormalizeHandle(u.Handle) {
			return nil, domain.ErrHandleTaken
		}
	}
	r.byID[u.ID] = cloneUser(u)
	return cloneUser(u), nil
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *stubUserRepo) FindByHandle(_ context.Context, handle string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if domain.NormalizeHandle(u.Handle) == domain.NormalizeHandle(handle) {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) FindByIDs(_ context.Context, ids []string) (map[string]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*domain.User, len(ids))
	for _, id := range ids {
		if u, ok := r.byID[id]; ok {
			out[id] = cloneUser(u)
		}
	}
	return out, nil
}

// Update applies fn to a copy and only stores it when fn succeeds, the way the
// real stores roll back a failed transaction.
func (r *stubUserRepo) Update(_ context.Context, id string, fn ports.UserUpdateFn) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	c := cloneUser(u)
	if err := fn(c); err != nil {
		return nil, err
	}
	c.Version++
	r.byID[id] = c
	r.updates++
	return cloneUser(c), nil
}

func (r *stubUserRepo) get(id string) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneUser(r.byID[id])
}

type stubWorkRepo struct {
	mu            sync.Mutex
	users         *stubUserRepo
	byID          map[string]*domain.Work
	notifications []*domain.Notification
	seq           int64
	transitions   int
	createErr     error // if set, Create returns this error
	transitionErr error // if set, Transition returns this error
	// beforeTransition runs right before the conditional update, letting a
	// test simulate a concurrent writer.
	beforeTransition func()
}

func newStubWorkRepo(users *stubUserRepo) *stubWorkRepo {
	return &stubWorkRepo{users: users, byID: make(map[string]*domain.Work)}
}

// Create re-checks the plan against the stored creator, mirroring the
// transactional check of the real stores.
func (r *stubWorkRepo) Create(ctx context.Context, w *domain.Work, n *domain.Notification) error {
	if r.createErr != nil {
		return r.createErr
	}
	creator, err := r.users.FindByID(ctx, w.CreatorID)
	if err != nil {
		return err
	}
	plan, err := creator.RequestablePlan(w.PlanID)
	if err != nil {
		return err
	}
	if plan.Amount != w.Amount || plan.PaymentURL != w.PaymentURL {
		return domain.ErrPlanChanged
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	w.Number = r.seq
	n.WorkNumber = r.seq
	c := *w
	r.byID[w.ID] = &c
	nc := *n
	r.notifications = append(r.notifications, &nc)
	return nil
}

func (r *stubWorkRepo) FindByID(_ context.Context, id string) (*domain.Work, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrWorkNotFound
	}
	c := *w
	return &c, nil
}

func (r *stubWorkRepo) ListByParty(_ context.Context, party domain.Party, userID string) ([]*domain.Work, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Work
	for _, w := range r.byID {
		if w.PartyID(party) == userID {
			c := *w
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	return out, nil
}

func (r *stubWorkRepo) Transition(_ context.Context, t ports.WorkTransition, n *domain.Notification) (*domain.Work, error) {
	if r.beforeTransition != nil {
		r.beforeTransition()
	}
	if r.transitionErr != nil {
		return nil, r.transitionErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byID[t.WorkID]
	if !ok || w.Status != t.From || w.PartyID(t.Actor) != t.ActorID {
		return nil, domain.ErrTransitionConflict
	}
	w.Apply(t.To, t.FileRef, t.At)
	nc := *n
	r.notifications = append(r.notifications, &nc)
	r.transitions++
	c := *w
	return &c, nil
}

func (r *stubWorkRepo) CountByStatus(_ context.Context, party domain.Party, userID string) (map[domain.WorkStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[domain.WorkStatus]int64)
	for _, w := range r.byID {
		if w.PartyID(party) == userID {
			out[w.Status]++
		}
	}
	return out, nil
}

// forceStatus moves a stored work without going through the service.
func (r *stubWorkRepo) forceStatus(id string, s domain.WorkStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id].Status = s
}

func (r *stubWorkRepo) get(id string) domain.Work {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.byID[id]
}

func (r *stubWorkRepo) notificationsFor(recipientID string) []*domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Notification
	for _, n := range r.notifications {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out
}

type stubNotificationRepo struct {
	items     []*domain.Notification
	lastLimit int
}

func (r *stubNotificationRepo) ListByRecipient(_ context.Context, userID string, limit int) ([]*domain.Notification, error) {
	r.lastLimit = limit
	var out []*domain.Notification
	for i := len(r.items) - 1; i >= 0 && len(out) < limit; i-- {
		if r.items[i].RecipientID == userID {
			out = append(out, r.items[i])
		}
	}
	return out, nil
}

func (r *stubNotificationRepo) CountUnread(_ context.Context, userID string) (int64, error) {
	var n int64
	for _, item := range r.items {
		if item.RecipientID == userID && !item.Read {
			n++
		}
	}
	return n, nil
}

func (r *stubNotificationRepo) MarkRead(_ context.Context, id, userID string, at time.Time) (*domain.Notification, error) {
	for _, item := range r.items {
		if item.ID != id || item.RecipientID != userID {
			continue
		}
		if !item.Read {
			item.Read = true
			item.ReadAt = &at
		}
		c := *item
		return &c, nil
	}
	return nil, domain.ErrNotificationNotFound
}

// ---------------------------------------------------------------------------
// Storage and idempotency stubs
// ---------------------------------------------------------------------------

type stubStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	removed []string
	putErr  error
	signErr error
}

func newStubStorage() *stubStorage {
	return &stubStorage{objects: make(map[string][]byte)}
}

func (s *stubStorage) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	if s.putErr != nil {
		return s.putErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = buf.Bytes()
	return nil
}

func (s *stubStorage) SignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	if s.signErr != nil {
		return "", s.signErr
	}
	return fmt.Sprintf("https://files.test/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

func (s *stubStorage) SignPut(_ context.Context, key string, ttl time.Duration) (string, error) {
	if s.signErr != nil {
		return "", s.signErr
	}
	return fmt.Sprintf("https://files.test/upload/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

func (s *stubStorage) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *stubStorage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.removed = append(s.removed, key)
	return nil
}

func (s *stubStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

const idemPending = "\x00pending"

type stubIdempotency struct {
	mu         sync.Mutex
	entries    map[string]string
	reserveErr error
	released   int
}

func newStubIdempotency() *stubIdempotency {
	return &stubIdempotency{entries: make(map[string]string)}
}

func (s *stubIdempotency) Reserve(_ context.Context, scope, key string) (string, error) {
	if s.reserveErr != nil {
		return "", s.reserveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scope + ":" + key
	v, ok := s.entries[k]
	switch {
	case !ok:
		s.entries[k] = idemPending
		return "", nil
	case v == idemPending:
		return "", domain.ErrIdempotencyInFlight
	}
	return v, nil
}

func (s *stubIdempotency) Complete(_ context.Context, scope, key, workID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[scope+":"+key] = workID
	return nil
}

func (s *stubIdempotency) Release(_ context.Context, scope, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, scope+":"+key)
	s.released++
	return nil
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func newCreator(id, handle string, plans ...domain.PricePlan) *domain.User {
	now := time.Now().UTC()
	u := &domain.User{
		ID:          id,
		ExternalID:  "ext-" + id,
		Handle:      handle,
		DisplayName: handle,
		Status:      domain.UserUnavailable,
		Plans:       plans,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if u.HasActivePlan() {
		u.Status = domain.UserAvailable
	}
	return u
}

func newPlan(id, userID string, amount int64) domain.PricePlan {
	return domain.PricePlan{
		ID:         id,
		UserID:     userID,
		Title:      "Plan " + id,
		Amount:     amount,
		PaymentURL: "https://pay.test/" + id,
	}
}
