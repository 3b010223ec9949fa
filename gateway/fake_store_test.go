package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
	"github.com/Peap0ds-23/collaborative-todo-1/realtime"
)

type memStore struct {
	mu            sync.Mutex
	tasks         map[string]domain.Task
	shares        map[string]map[string]domain.Share
	ranks         map[string]map[string]int
	notifications []domain.Notification
	audit         []domain.AuditLogEntry
	users         map[string]domain.User
	calls         []string

	failOrder map[string]error
	failAudit error
	// beforeRanks runs once, outside the lock, on the next Ranks call
	beforeRanks func()
}

func newMemStore() *memStore {
	return &memStore{
		tasks:     map[string]domain.Task{},
		shares:    map[string]map[string]domain.Share{},
		ranks:     map[string]map[string]int{},
		users:     map[string]domain.User{},
		failOrder: map[string]error{},
	}
}

func (m *memStore) record(call string) { m.calls = append(m.calls, call) }

func notFound(kind, id string) error { return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound) }

func (m *memStore) InsertTask(ctx context.Context, t domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("InsertTask")
	m.tasks[t.ID] = t
	return nil
}

func (m *memStore) GetTask(ctx context.Context, id string) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetTask")
	t, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, notFound("task", id)
	}
	return t, nil
}

func (m *memStore) canAccess(userID string, t domain.Task) bool {
	if t.OwnerID == userID {
		return true
	}
	for _, sh := range m.shares[t.ID] {
		if sh.UserID == userID {
			return true
		}
	}
	return false
}

func (m *memStore) CanAccess(ctx context.Context, userID string, t domain.Task) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canAccess(userID, t), nil
}

func (m *memStore) UpdateTask(ctx context.Context, actorID string, upd domain.TaskUpdate) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("UpdateTask")
	t, ok := m.tasks[upd.ID]
	if !ok || !m.canAccess(actorID, t) {
		return domain.Task{}, notFound("task", upd.ID)
	}
	t.Title, t.Description, t.DueAt, t.Priority = upd.Title, upd.Description, upd.DueAt, upd.Priority
	m.tasks[t.ID] = t
	return t, nil
}

func (m *memStore) SetComplete(ctx context.Context, actorID, id string, complete bool) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SetComplete")
	t, ok := m.tasks[id]
	if !ok || !m.canAccess(actorID, t) {
		return domain.Task{}, notFound("task", id)
	}
	t.Complete = complete
	m.tasks[id] = t
	return t, nil
}

func (m *memStore) DeleteTask(ctx context.Context, ownerID, id string) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteTask")
	t, ok := m.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return domain.Task{}, notFound("task", id)
	}
	delete(m.tasks, id)
	delete(m.shares, id)
	return t, nil
}

func (m *memStore) deleteWhere(ownerID string, completedOnly bool) []domain.Task {
	var out []domain.Task
	for id, t := range m.tasks {
		if t.OwnerID != ownerID || (completedOnly && !t.Complete) {
			continue
		}
		delete(m.tasks, id)
		delete(m.shares, id)
		out = append(out, t)
	}
	return out
}

func (m *memStore) DeleteCompleted(ctx context.Context, ownerID string) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteCompleted")
	return m.deleteWhere(ownerID, true), nil
}

func (m *memStore) DeleteAll(ctx context.Context, ownerID string) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteAll")
	return m.deleteWhere(ownerID, false), nil
}

func (m *memStore) OwnedTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Task
	for _, t := range m.tasks {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) SharedTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Task
	for taskID, shares := range m.shares {
		for _, sh := range shares {
			if sh.UserID == userID {
				if t, ok := m.tasks[taskID]; ok {
					out = append(out, t)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) AddShare(ctx context.Context, sh domain.Share) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("AddShare")
	email := domain.NormalizeEmail(sh.Email)
	if _, ok := m.shares[sh.TaskID][email]; ok {
		return domain.ErrAlreadyShared
	}
	if m.shares[sh.TaskID] == nil {
		m.shares[sh.TaskID] = map[string]domain.Share{}
	}
	sh.Email = email
	m.shares[sh.TaskID][email] = sh
	return nil
}

func (m *memStore) GetShare(ctx context.Context, taskID, email string) (domain.Share, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sh, ok := m.shares[taskID][domain.NormalizeEmail(email)]
	if !ok {
		return domain.Share{}, notFound("share", email)
	}
	return sh, nil
}

func (m *memStore) Shares(ctx context.Context, taskID string) ([]domain.Share, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Share{}
	for _, sh := range m.shares[taskID] {
		out = append(out, sh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *memStore) DeleteShare(ctx context.Context, ownerID, taskID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteShare")
	email = domain.NormalizeEmail(email)
	sh, ok := m.shares[taskID][email]
	if !ok || sh.OwnerID != ownerID {
		return notFound("share", email)
	}
	delete(m.shares[taskID], email)
	return nil
}

func (m *memStore) ResolveShares(ctx context.Context, email, userID string) ([]domain.Share, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = domain.NormalizeEmail(email)
	var out []domain.Share
	for taskID, shares := range m.shares {
		if sh, ok := shares[email]; ok && sh.UserID != userID {
			sh.UserID = userID
			m.shares[taskID][email] = sh
			out = append(out, sh)
		}
	}
	return out, nil
}

func (m *memStore) UpsertOrder(ctx context.Context, e domain.OrderEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("UpsertOrder")
	if err := m.failOrder[e.TaskID]; err != nil {
		return err
	}
	if m.ranks[e.UserID] == nil {
		m.ranks[e.UserID] = map[string]int{}
	}
	m.ranks[e.UserID][e.TaskID] = e.Rank
	return nil
}

func (m *memStore) Ranks(ctx context.Context, userID string) (map[string]int, error) {
	m.mu.Lock()
	hook := m.beforeRanks
	m.beforeRanks = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]int{}
	for k, v := range m.ranks[userID] {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) InsertNotification(ctx context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("InsertNotification")
	m.notifications = append([]domain.Notification{n}, m.notifications...)
	return nil
}

func (m *memStore) Notifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Notification{}
	for _, n := range m.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) MarkNotificationRead(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, n := range m.notifications {
		if n.UserID == userID && n.ID == id {
			m.notifications[i].Read = true
			return nil
		}
	}
	return notFound("notification", id)
}

func (m *memStore) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, n := range m.notifications {
		if n.UserID == userID {
			m.notifications[i].Read = true
		}
	}
	return nil
}

func (m *memStore) AppendAudit(ctx context.Context, e domain.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("AppendAudit")
	if m.failAudit != nil {
		return m.failAudit
	}
	m.audit = append(m.audit, e)
	return nil
}

func (m *memStore) AuditLog(ctx context.Context, taskID string) ([]domain.AuditLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.AuditLogEntry{}
	for i := len(m.audit) - 1; i >= 0; i-- {
		if m.audit[i].TaskID == taskID {
			out = append(out, m.audit[i])
		}
	}
	return out, nil
}

func (m *memStore) CreateUser(ctx context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := domain.NormalizeEmail(u.Email)
	if _, ok := m.users[email]; ok {
		return domain.ErrEmailTaken
	}
	u.Email = email
	m.users[email] = u
	return nil
}

func (m *memStore) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[domain.NormalizeEmail(email)]
	if !ok {
		return domain.User{}, notFound("user", email)
	}
	return u, nil
}

func (m *memStore) UserByID(ctx context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return domain.User{}, notFound("user", id)
}

func (m *memStore) auditFor(taskID string) []domain.AuditLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditLogEntry
	for _, e := range m.audit {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out
}

type capturePublisher struct {
	mu      sync.Mutex
	changes []realtime.Change
}

func (p *capturePublisher) Publish(ctx context.Context, c realtime.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
	return nil
}

func (p *capturePublisher) recipients(table realtime.Table) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, c := range p.changes {
		if c.Table == table {
			out = append(out, c.UserID)
		}
	}
	return out
}

func (p *capturePublisher) reset() {
	p.mu.Lock()
	p.changes = nil
	p.mu.Unlock()
}

type evictRecorder struct {
	mu      sync.Mutex
	evicted []string
	lists   map[string]domain.TaskList
	gens    map[string]int64
}

func (c *evictRecorder) Load(ctx context.Context, userID string) (domain.TaskList, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lists[userID]
	return l, ok
}

func (c *evictRecorder) Generation(ctx context.Context, userID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[userID]
}

func (c *evictRecorder) Store(ctx context.Context, userID string, gen int64, list domain.TaskList) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gens[userID] {
		return
	}
	if c.lists == nil {
		c.lists = map[string]domain.TaskList{}
	}
	c.lists[userID] = list
}

func (c *evictRecorder) Evict(ctx context.Context, userIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens == nil {
		c.gens = map[string]int64{}
	}
	for _, id := range userIDs {
		delete(c.lists, id)
		c.gens[id]++
		c.evicted = append(c.evicted, id)
	}
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	svc   *Service
	store *memStore
	pub   *capturePublisher
	cache *evictRecorder
	clock *time.Time
}

func newHarness() *harness {
	h := &harness{store: newMemStore(), pub: &capturePublisher{}, cache: &evictRecorder{}}
	now := fixedNow
	h.clock = &now
	seq := 0
	h.svc = New(h.store, h.pub, nil,
		WithCache(h.cache),
		WithClock(func() time.Time { return *h.clock }),
		WithIDs(func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		}),
	)
	return h
}

func (h *harness) user(id, email string) domain.Identity {
	h.store.users[email] = domain.User{ID: id, Email: email, Verified: true}
	return domain.Identity{UserID: id, Email: email}
}
