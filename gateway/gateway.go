// Package gateway is the single entry point for every mutation and read the
// application performs on behalf of a signed-in user.
package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
	"github.com/Peap0ds-23/collaborative-todo-1/realtime"
)

// TaskStore persists tasks and answers row-level access questions.
type TaskStore interface {
	InsertTask(ctx context.Context, t domain.Task) error
	GetTask(ctx context.Context, id string) (domain.Task, error)
	CanAccess(ctx context.Context, userID string, t domain.Task) (bool, error)
	UpdateTask(ctx context.Context, actorID string, upd domain.TaskUpdate) (domain.Task, error)
	SetComplete(ctx context.Context, actorID, id string, complete bool) (domain.Task, error)
	DeleteTask(ctx context.Context, ownerID, id string) (domain.Task, error)
	DeleteCompleted(ctx context.Context, ownerID string) ([]domain.Task, error)
	DeleteAll(ctx context.Context, ownerID string) ([]domain.Task, error)
	OwnedTasks(ctx context.Context, ownerID string) ([]domain.Task, error)
	SharedTasks(ctx context.Context, userID string) ([]domain.Task, error)
}

// ShareStore persists collaborator grants.
type ShareStore interface {
	AddShare(ctx context.Context, sh domain.Share) error
	GetShare(ctx context.Context, taskID, email string) (domain.Share, error)
	Shares(ctx context.Context, taskID string) ([]domain.Share, error)
	DeleteShare(ctx context.Context, ownerID, taskID, email string) error
	ResolveShares(ctx context.Context, email, userID string) ([]domain.Share, error)
}

// OrderStore persists per-user manual ranks.
type OrderStore interface {
	UpsertOrder(ctx context.Context, e domain.OrderEntry) error
	Ranks(ctx context.Context, userID string) (map[string]int, error)
}

// NotificationStore persists user notifications.
type NotificationStore interface {
	InsertNotification(ctx context.Context, n domain.Notification) error
	Notifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) error
}

// AuditStore persists the per-task history.
type AuditStore interface {
	AppendAudit(ctx context.Context, e domain.AuditLogEntry) error
	AuditLog(ctx context.Context, taskID string) ([]domain.AuditLogEntry, error)
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u domain.User) error
	UserByEmail(ctx context.Context, email string) (domain.User, error)
	UserByID(ctx context.Context, id string) (domain.User, error)
}

// Store is everything the gateway persists.
type Store interface {
	TaskStore
	ShareStore
	OrderStore
	NotificationStore
	AuditStore
	UserStore
}

// ListCache holds assembled task lists per user. Store must drop a list
// whose generation was superseded by an Evict for that user.
type ListCache interface {
	Load(ctx context.Context, userID string) (domain.TaskList, bool)
	Generation(ctx context.Context, userID string) int64
	Store(ctx context.Context, userID string, gen int64, list domain.TaskList)
	Evict(ctx context.Context, userIDs ...string)
}

// NotificationLimit caps how many notifications a user is shown.
const NotificationLimit = 20

// Service implements the application's actions.
type Service struct {
	store  Store
	cache  ListCache
	pub    realtime.Publisher
	logger *log.Logger
	now    func() time.Time
	newID  func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithCache enables the task-list cache.
func WithCache(c ListCache) Option { return func(s *Service) { s.cache = c } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithIDs overrides the identifier generator.
func WithIDs(newID func() string) Option { return func(s *Service) { s.newID = newID } }

// New creates a Service. pub receives a change for every participant after
// each successful mutation.
func New(store Store, pub realtime.Publisher, logger *log.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := &Service{
		store:  store,
		pub:    pub,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func requireIdentity(id domain.Identity) error {
	if !id.Authenticated() {
		return domain.ErrUnauthenticated
	}
	return nil
}

// audit appends a history entry. Failures never fail the action.
func (s *Service) audit(ctx context.Context, id domain.Identity, taskID string, action domain.AuditAction, subject string) {
	e := domain.AuditLogEntry{
		ID:         s.newID(),
		TaskID:     taskID,
		Action:     action,
		Message:    domain.AuditMessage(action, subject),
		ActorID:    id.UserID,
		ActorEmail: id.Email,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.AppendAudit(ctx, e); err != nil {
		s.logger.WithFields(log.Fields{"task": taskID, "action": action}).WithError(err).Error("audit append failed")
	}
}

// participants returns the owner and every collaborator with an account.
func (s *Service) participants(ctx context.Context, t domain.Task) []string {
	users := []string{t.OwnerID}
	shares, err := s.store.Shares(ctx, t.ID)
	if err != nil {
		s.logger.WithField("task", t.ID).WithError(err).Warn("list shares for refresh failed")
		return users
	}
	for _, sh := range shares {
		if sh.Joined() && sh.UserID != t.OwnerID {
			users = append(users, sh.UserID)
		}
	}
	return users
}

// notifyChange evicts cached lists and tells every recipient's views to
// refresh.
func (s *Service) notifyChange(ctx context.Context, table realtime.Table, ev realtime.EventType, recordID string, record any, recipients []string) {
	if s.cache != nil {
		s.cache.Evict(ctx, recipients...)
	}
	if s.pub == nil {
		return
	}
	var raw json.RawMessage
	if record != nil {
		if data, err := json.Marshal(record); err == nil {
			raw = data
		}
	}
	at := s.now().UTC()
	for _, uid := range recipients {
		c := realtime.Change{Table: table, Type: ev, UserID: uid, RecordID: recordID, Record: raw, At: at}
		if err := s.pub.Publish(ctx, c); err != nil {
			s.logger.WithFields(log.Fields{"table": table, "user": uid}).WithError(err).Warn("publish change failed")
		}
	}
}
