package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
	"github.com/Peap0ds-23/collaborative-todo-1/realtime"
)

// TaskInput is the user-entered content of a task. Due is local wall-clock
// time in TimeZone (an IANA name, UTC when empty).
type TaskInput struct {
	Title       string
	Description string
	Due         string
	Priority    string
	TimeZone    string
}

func loadZone(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &domain.ValidationError{Field: "timeZone", Message: fmt.Sprintf("unknown time zone %q", name)}
	}
	return loc, nil
}

type validTask struct {
	title       string
	description string
	due         *time.Time
	priority    domain.Priority
}

func (s *Service) validate(in TaskInput, current *time.Time) (validTask, error) {
	title, err := domain.ValidateTitle(in.Title)
	if err != nil {
		return validTask{}, err
	}
	priority, err := domain.ParsePriority(in.Priority)
	if err != nil {
		return validTask{}, err
	}
	loc, err := loadZone(in.TimeZone)
	if err != nil {
		return validTask{}, err
	}
	// An unchanged due date may already be behind us; only a new one must
	// not lie in the past.
	now := s.now()
	checkFrom := now
	keepsPast := current != nil && current.Before(now)
	if keepsPast {
		checkFrom = *current
	}
	due, err := domain.ParseLocalDue(in.Due, loc, checkFrom)
	if err != nil {
		return validTask{}, err
	}
	if due != nil && keepsPast && !due.Equal(*current) {
		if _, err := domain.ParseLocalDue(in.Due, loc, now); err != nil {
			return validTask{}, err
		}
	}
	return validTask{title: title, description: in.Description, due: due, priority: priority}, nil
}

// AddTask creates a task owned by the caller.
func (s *Service) AddTask(ctx context.Context, id domain.Identity, in TaskInput) (domain.Task, error) {
	if err := requireIdentity(id); err != nil {
		return domain.Task{}, err
	}
	v, err := s.validate(in, nil)
	if err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:          s.newID(),
		OwnerID:     id.UserID,
		Title:       v.title,
		Description: v.description,
		DueAt:       v.due,
		Priority:    v.priority,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.InsertTask(ctx, t); err != nil {
		return domain.Task{}, err
	}
	s.audit(ctx, id, t.ID, domain.AuditCreated, t.Title)
	s.notifyChange(ctx, realtime.TableTasks, realtime.EventInsert, t.ID, t, []string{id.UserID})
	return t, nil
}

// visibleTask loads a task the caller owns or collaborates on. Tasks the
// caller may not see are reported missing.
func (s *Service) visibleTask(ctx context.Context, id domain.Identity, taskID string) (domain.Task, error) {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	ok, err := s.store.CanAccess(ctx, id.UserID, t)
	if err != nil {
		return domain.Task{}, err
	}
	if !ok {
		return domain.Task{}, fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	return t, nil
}

// ownedTask loads a task and fails with ErrForbidden when a collaborator
// attempts an owner-only action.
func (s *Service) ownedTask(ctx context.Context, id domain.Identity, taskID string) (domain.Task, error) {
	t, err := s.visibleTask(ctx, id, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.OwnerID != id.UserID {
		return domain.Task{}, fmt.Errorf("task %s: %w", taskID, domain.ErrForbidden)
	}
	return t, nil
}

// EditTask replaces the content of a task the caller owns or collaborates on.
func (s *Service) EditTask(ctx context.Context, id domain.Identity, taskID string, in TaskInput) (domain.Task, error) {
	if err := requireIdentity(id); err != nil {
		return domain.Task{}, err
	}
	current, err := s.visibleTask(ctx, id, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	v, err := s.validate(in, current.DueAt)
	if err != nil {
		return domain.Task{}, err
	}
	t, err := s.store.UpdateTask(ctx, id.UserID, domain.TaskUpdate{
		ID:          taskID,
		Title:       v.title,
		Description: v.description,
		DueAt:       v.due,
		Priority:    v.priority,
	})
	if err != nil {
		return domain.Task{}, err
	}
	s.audit(ctx, id, t.ID, domain.AuditUpdated, t.Title)
	s.notifyChange(ctx, realtime.TableTasks, realtime.EventUpdate, t.ID, t, s.participants(ctx, t))
	return t, nil
}

// SetComplete moves a task to the given completion state. Setting the state
// a task already has succeeds and is recorded again.
func (s *Service) SetComplete(ctx context.Context, id domain.Identity, taskID string, complete bool) (domain.Task, error) {
	if err := requireIdentity(id); err != nil {
		return domain.Task{}, err
	}
	t, err := s.store.SetComplete(ctx, id.UserID, taskID, complete)
	if err != nil {
		return domain.Task{}, err
	}
	action := domain.AuditUncompleted
	if complete {
		action = domain.AuditCompleted
	}
	s.audit(ctx, id, t.ID, action, t.Title)
	s.notifyChange(ctx, realtime.TableTasks, realtime.EventUpdate, t.ID, t, s.participants(ctx, t))
	return t, nil
}

// DeleteTask removes one of the caller's tasks.
func (s *Service) DeleteTask(ctx context.Context, id domain.Identity, taskID string) error {
	if err := requireIdentity(id); err != nil {
		return err
	}
	t, err := s.ownedTask(ctx, id, taskID)
	if err != nil {
		return err
	}
	recipients := s.participants(ctx, t)
	if _, err := s.store.DeleteTask(ctx, id.UserID, taskID); err != nil {
		return err
	}
	s.notifyChange(ctx, realtime.TableTasks, realtime.EventDelete, t.ID, nil, recipients)
	return nil
}

// DeleteCompleted removes every completed task the caller owns and returns
// how many were removed.
func (s *Service) DeleteCompleted(ctx context.Context, id domain.Identity) (int, error) {
	if err := requireIdentity(id); err != nil {
		return 0, err
	}
	return s.deleteBulk(ctx, id, true)
}

// DeleteAll removes every task the caller owns and returns how many were
// removed.
func (s *Service) DeleteAll(ctx context.Context, id domain.Identity) (int, error) {
	if err := requireIdentity(id); err != nil {
		return 0, err
	}
	return s.deleteBulk(ctx, id, false)
}

func (s *Service) deleteBulk(ctx context.Context, id domain.Identity, completedOnly bool) (int, error) {
	owned, err := s.store.OwnedTasks(ctx, id.UserID)
	if err != nil {
		return 0, err
	}
	recipients := map[string][]string{}
	for _, t := range owned {
		if completedOnly && !t.Complete {
			continue
		}
		recipients[t.ID] = s.participants(ctx, t)
	}

	var deleted []domain.Task
	if completedOnly {
		deleted, err = s.store.DeleteCompleted(ctx, id.UserID)
	} else {
		deleted, err = s.store.DeleteAll(ctx, id.UserID)
	}
	// rows removed before a failure are still announced
	for _, t := range deleted {
		users, ok := recipients[t.ID]
		if !ok {
			users = []string{t.OwnerID}
		}
		s.notifyChange(ctx, realtime.TableTasks, realtime.EventDelete, t.ID, nil, users)
	}
	return len(deleted), err
}

// UpdateOrder stores the caller's manual order as ranks 0..N-1. Rows are
// written independently; a failed row is logged and does not stop the rest.
// No change is broadcast since the order is private to the caller.
func (s *Service) UpdateOrder(ctx context.Context, id domain.Identity, taskIDs []string) error {
	if err := requireIdentity(id); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(taskIDs))
	for _, tid := range taskIDs {
		if tid == "" {
			return &domain.ValidationError{Field: "taskIds", Message: "task id is required"}
		}
		if _, dup := seen[tid]; dup {
			return &domain.ValidationError{Field: "taskIds", Message: fmt.Sprintf("task %s listed twice", tid)}
		}
		seen[tid] = struct{}{}
	}

	var errs []error
	for _, e := range domain.RanksFor(id.UserID, taskIDs) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.store.UpsertOrder(ctx, e); err != nil {
			s.logger.WithFields(log.Fields{"user": e.UserID, "task": e.TaskID, "rank": e.Rank}).WithError(err).Error("order upsert failed")
			errs = append(errs, fmt.Errorf("task %s: %w", e.TaskID, err))
		}
	}
	if s.cache != nil {
		s.cache.Evict(ctx, id.UserID)
	}
	return errors.Join(errs...)
}

// ListTasks returns everything the caller can see: owned tasks plus tasks
// shared with them, in the caller's manual order, split by completion.
func (s *Service) ListTasks(ctx context.Context, id domain.Identity) (domain.TaskList, error) {
	if err := requireIdentity(id); err != nil {
		return domain.TaskList{}, err
	}
	gen := int64(-1)
	if s.cache != nil {
		if list, ok := s.cache.Load(ctx, id.UserID); ok {
			return list, nil
		}
		gen = s.cache.Generation(ctx, id.UserID)
	}
	owned, err := s.store.OwnedTasks(ctx, id.UserID)
	if err != nil {
		return domain.TaskList{}, err
	}
	shared, err := s.store.SharedTasks(ctx, id.UserID)
	if err != nil {
		return domain.TaskList{}, err
	}
	ranks, err := s.store.Ranks(ctx, id.UserID)
	if err != nil {
		return domain.TaskList{}, err
	}

	emails := map[string]string{}
	ownerEmail := func(ownerID string) string {
		if e, ok := emails[ownerID]; ok {
			return e
		}
		u, err := s.store.UserByID(ctx, ownerID)
		if err != nil {
			s.logger.WithField("user", ownerID).WithError(err).Debug("owner lookup failed")
		}
		emails[ownerID] = u.Email
		return u.Email
	}

	views := domain.MergeViews(owned, shared, ownerEmail)
	tasks := make([]domain.Task, len(views))
	for i, v := range views {
		tasks[i] = v.Task()
	}
	domain.SortByRank(tasks, ranks)
	list := domain.Split(tasks)
	if s.cache != nil {
		s.cache.Store(ctx, id.UserID, gen, list)
	}
	return list, nil
}

// TaskHistory returns the audit log of a task the caller can see, newest
// first.
func (s *Service) TaskHistory(ctx context.Context, id domain.Identity, taskID string) ([]domain.AuditLogEntry, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	if _, err := s.visibleTask(ctx, id, taskID); err != nil {
		return nil, err
	}
	return s.store.AuditLog(ctx, taskID)
}
