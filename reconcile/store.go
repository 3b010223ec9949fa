// Package reconcile keeps one user's task list consistent while full
// refreshes, optimistic local edits and realtime events arrive independently.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
)

// TaskSource loads the caller's full task list.
type TaskSource interface {
	LoadTasks(ctx context.Context) (domain.TaskList, error)
}

// Mutator persists a completion toggle.
type Mutator interface {
	SetComplete(ctx context.Context, taskID string, complete bool) error
}

// OrderSaver persists the caller's manual order.
type OrderSaver interface {
	SaveOrder(ctx context.Context, taskIDs []string) error
}

// NotificationSource loads the caller's recent notifications.
type NotificationSource interface {
	Notifications(ctx context.Context) ([]domain.Notification, error)
}

// Backend is everything a View needs from the server side.
type Backend interface {
	TaskSource
	Mutator
	OrderSaver
	NotificationSource
}

// ErrInvalidMove is returned for a reorder outside the incomplete list.
var ErrInvalidMove = errors.New("invalid reorder position")

// Store holds the incomplete and complete sequences shown to one user.
type Store struct {
	mu         sync.Mutex
	incomplete []domain.Task
	complete   []domain.Task
	// pending maps tasks with an in-flight toggle to the newest toggle.
	pending   map[string]pendingToggle
	seq       uint64
	listeners []func()
}

type pendingToggle struct {
	seq    uint64
	target bool
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{pending: make(map[string]pendingToggle)}
}

// OnChange registers fn to run after every update.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Store) changed() {
	s.mu.Lock()
	fns := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Snapshot returns copies of both sequences.
func (s *Store) Snapshot() domain.TaskList {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.TaskList{
		Incomplete: append([]domain.Task{}, s.incomplete...),
		Complete:   append([]domain.Task{}, s.complete...),
	}
}

// Merge folds a freshly fetched list into the store. Tasks still present keep
// their position and take the fetched content. New incomplete tasks are
// appended in fetched order, new complete tasks are prepended, and tasks
// missing from the fetch are dropped. A task with a toggle in flight keeps its
// optimistic completion state.
func (s *Store) Merge(list domain.TaskList) {
	s.mu.Lock()
	fresh := make(map[string]domain.Task, len(list.Incomplete)+len(list.Complete))
	order := make([]string, 0, len(list.Incomplete)+len(list.Complete))
	for _, t := range list.All() {
		if p, ok := s.pending[t.ID]; ok {
			t.Complete = p.target
		}
		if _, dup := fresh[t.ID]; !dup {
			order = append(order, t.ID)
		}
		fresh[t.ID] = t
	}

	placed := make(map[string]bool, len(fresh))
	incomplete := make([]domain.Task, 0, len(fresh))
	for _, cur := range s.incomplete {
		if t, ok := fresh[cur.ID]; ok && !t.Complete {
			incomplete = append(incomplete, t)
			placed[t.ID] = true
		}
	}
	for _, id := range order {
		if t := fresh[id]; !t.Complete && !placed[id] {
			incomplete = append(incomplete, t)
			placed[id] = true
		}
	}

	var kept []domain.Task
	for _, cur := range s.complete {
		if t, ok := fresh[cur.ID]; ok && t.Complete {
			kept = append(kept, t)
			placed[t.ID] = true
		}
	}
	complete := make([]domain.Task, 0, len(fresh))
	for _, id := range order {
		if t := fresh[id]; t.Complete && !placed[id] {
			complete = append(complete, t)
			placed[id] = true
		}
	}
	complete = append(complete, kept...)

	s.incomplete = incomplete
	s.complete = complete
	s.mu.Unlock()
	s.changed()
}

func indexOf(tasks []domain.Task, id string) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func remove(tasks []domain.Task, i int) []domain.Task {
	return append(tasks[:i:i], tasks[i+1:]...)
}

// ToggleComplete flips a task's completion state at once, then persists it.
// Completing moves the task to the front of the complete list; un-completing
// appends it to the incomplete list. If the mutation fails the task is moved
// back to the end of the list it came from and the error is returned, unless
// a newer toggle of the same task has taken over.
func (s *Store) ToggleComplete(ctx context.Context, id string, m Mutator) error {
	s.mu.Lock()
	var target bool
	if i := indexOf(s.incomplete, id); i >= 0 {
		t := s.incomplete[i]
		s.incomplete = remove(s.incomplete, i)
		t.Complete = true
		s.complete = append([]domain.Task{t}, s.complete...)
		target = true
	} else if i := indexOf(s.complete, id); i >= 0 {
		t := s.complete[i]
		s.complete = remove(s.complete, i)
		t.Complete = false
		s.incomplete = append(s.incomplete, t)
	} else {
		s.mu.Unlock()
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	s.seq++
	seq := s.seq
	s.pending[id] = pendingToggle{seq: seq, target: target}
	s.mu.Unlock()
	s.changed()

	err := m.SetComplete(ctx, id, target)

	s.mu.Lock()
	if p, ok := s.pending[id]; !ok || p.seq != seq {
		// superseded; the newer toggle owns the task's state
		s.mu.Unlock()
		return err
	}
	delete(s.pending, id)
	if err == nil {
		s.mu.Unlock()
		return nil
	}
	// a refresh may have dropped the task meanwhile; then there is nothing to revert
	if i := indexOf(s.complete, id); i >= 0 && target {
		t := s.complete[i]
		s.complete = remove(s.complete, i)
		t.Complete = false
		s.incomplete = append(s.incomplete, t)
	} else if i := indexOf(s.incomplete, id); i >= 0 && !target {
		t := s.incomplete[i]
		s.incomplete = remove(s.incomplete, i)
		t.Complete = true
		s.complete = append(s.complete, t)
	}
	s.mu.Unlock()
	s.changed()
	return err
}

// Move splices the incomplete task at from to position to and returns the
// resulting order. moved is false when nothing changed.
func (s *Store) Move(from, to int) (ids []string, moved bool, err error) {
	s.mu.Lock()
	n := len(s.incomplete)
	if from < 0 || from >= n || to < 0 || to >= n {
		s.mu.Unlock()
		return nil, false, fmt.Errorf("%w: %d -> %d of %d", ErrInvalidMove, from, to, n)
	}
	if from == to {
		s.mu.Unlock()
		return nil, false, nil
	}
	t := s.incomplete[from]
	rest := remove(s.incomplete, from)
	out := make([]domain.Task, 0, n)
	out = append(out, rest[:to]...)
	out = append(out, t)
	out = append(out, rest[to:]...)
	s.incomplete = out
	ids = make([]string, len(out))
	for i, task := range out {
		ids[i] = task.ID
	}
	s.mu.Unlock()
	s.changed()
	return ids, true, nil
}

// Reorder moves an incomplete task and persists ranks 0..N-1 for the whole
// resulting order. No refresh follows; the local order already is the truth.
func (s *Store) Reorder(ctx context.Context, from, to int, saver OrderSaver) error {
	ids, moved, err := s.Move(from, to)
	if err != nil || !moved {
		return err
	}
	return saver.SaveOrder(ctx, ids)
}
