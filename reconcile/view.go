package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
	"github.com/Peap0ds-23/collaborative-todo-1/realtime"
)

// View is one user's live task list. Open acquires the realtime
// subscriptions and Close releases every one of them, including those
// acquired by an Open that failed or is still running.
type View struct {
	backend Backend
	feed    realtime.Feed
	userID  string
	logger  *log.Logger

	store *Store
	inbox *Inbox

	mu        sync.Mutex
	handles   []realtime.Handle
	closed    bool
	started   bool
	cancel    context.CancelFunc
	done      chan struct{}
	refreshCh chan struct{}
	listeners []func()
	// inboxStale (guarded by mu) asks the refresh loop to reload
	// notifications too
	inboxStale bool

	// saveMu serializes order saves; saveCancel (guarded by mu) cancels the
	// newest one
	saveMu     sync.Mutex
	saveCancel context.CancelFunc
}

// NewView creates a closed view for userID.
func NewView(backend Backend, feed realtime.Feed, userID string, logger *log.Logger) *View {
	if logger == nil {
		logger = log.StandardLogger()
	}
	v := &View{
		backend:   backend,
		feed:      feed,
		userID:    userID,
		logger:    logger,
		store:     NewStore(),
		inbox:     &Inbox{},
		done:      make(chan struct{}),
		refreshCh: make(chan struct{}, 1),
	}
	v.store.OnChange(v.emit)
	return v
}

// Open subscribes to task, share and notification changes for the user,
// loads the initial state and starts the refresh loop. The caller must call
// Close even when Open fails.
func (v *View) Open(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return realtime.ErrClosed
	}
	if v.started {
		v.mu.Unlock()
		return errors.New("view already open")
	}
	v.started = true
	loopCtx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	v.mu.Unlock()

	go v.refreshLoop(loopCtx)

	own := realtime.Filter{UserID: v.userID}
	if err := v.subscribe(ctx, realtime.TableTasks, own, v.onTaskChange); err != nil {
		return err
	}
	if err := v.subscribe(ctx, realtime.TableShares, own, v.onTaskChange); err != nil {
		return err
	}
	if err := v.subscribe(ctx, realtime.TableNotifications, own, v.onNotification); err != nil {
		return err
	}

	if err := v.Refresh(ctx); err != nil {
		return err
	}
	if err := v.reloadInbox(ctx); err != nil {
		return err
	}
	v.emit()
	return nil
}

// reloadInbox merges the stored notifications into the inbox, keeping any
// pushed while the load was in flight.
func (v *View) reloadInbox(ctx context.Context) error {
	notes, err := v.backend.Notifications(ctx)
	if err != nil {
		return err
	}
	v.inbox.Merge(notes)
	return nil
}

func (v *View) subscribe(ctx context.Context, table realtime.Table, f realtime.Filter, cb func(realtime.Change)) error {
	h, err := v.feed.Subscribe(ctx, table, f, cb)
	if err != nil {
		return err
	}
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		// Close already ran; release what it could not see
		_ = v.feed.Unsubscribe(h)
		return realtime.ErrClosed
	}
	v.handles = append(v.handles, h)
	v.mu.Unlock()
	return nil
}

// Close releases every subscription and stops the refresh loop. It is safe
// to call more than once and before Open.
func (v *View) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	handles := v.handles
	v.handles = nil
	cancel := v.cancel
	started := v.started
	v.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := v.feed.Unsubscribe(h); err != nil {
			errs = append(errs, err)
		}
	}
	if cancel != nil {
		cancel()
	}
	if started {
		<-v.done
	}
	v.mu.Lock()
	if v.saveCancel != nil {
		v.saveCancel()
	}
	v.mu.Unlock()
	return errors.Join(errs...)
}

// OnChange registers fn to run whenever tasks or notifications change.
func (v *View) OnChange(fn func()) {
	v.mu.Lock()
	v.listeners = append(v.listeners, fn)
	v.mu.Unlock()
}

func (v *View) emit() {
	v.mu.Lock()
	fns := append([]func(){}, v.listeners...)
	v.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Tasks returns the current list.
func (v *View) Tasks() domain.TaskList { return v.store.Snapshot() }

// Inbox returns the notification inbox.
func (v *View) Inbox() *Inbox { return v.inbox }

// Refresh refetches the full list and merges it.
func (v *View) Refresh(ctx context.Context) error {
	list, err := v.backend.LoadTasks(ctx)
	if err != nil {
		return err
	}
	v.store.Merge(list)
	return nil
}

// ToggleComplete flips a task optimistically and persists it.
func (v *View) ToggleComplete(ctx context.Context, taskID string) error {
	return v.store.ToggleComplete(ctx, taskID, v.backend)
}

// Reorder moves an incomplete task and saves the new order. Saves run one
// at a time and a newer reorder cancels a save still waiting or in flight, so
// the last gesture's order is the one that sticks. A failed save is logged
// and the local order is kept.
func (v *View) Reorder(ctx context.Context, from, to int) error {
	ids, moved, err := v.store.Move(from, to)
	if err != nil || !moved {
		return err
	}

	saveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	v.mu.Lock()
	if v.saveCancel != nil {
		v.saveCancel()
	}
	v.saveCancel = cancel
	v.mu.Unlock()

	v.saveMu.Lock()
	if saveCtx.Err() != nil {
		// superseded while an earlier save was still running
		v.saveMu.Unlock()
		return ctx.Err()
	}
	err = v.backend.SaveOrder(saveCtx, ids)
	v.saveMu.Unlock()

	if err != nil {
		if saveCtx.Err() != nil && ctx.Err() == nil {
			return nil
		}
		v.logger.WithField("user", v.userID).WithError(err).Error("save order failed")
		return err
	}
	return nil
}

func (v *View) requestRefresh() {
	select {
	case v.refreshCh <- struct{}{}:
	default:
	}
}

func (v *View) refreshLoop(ctx context.Context) {
	defer close(v.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-v.refreshCh:
			if err := v.Refresh(ctx); err != nil && ctx.Err() == nil {
				v.logger.WithField("user", v.userID).WithError(err).Warn("refresh failed")
			}
			v.mu.Lock()
			stale := v.inboxStale
			v.inboxStale = false
			v.mu.Unlock()
			if !stale {
				continue
			}
			if err := v.reloadInbox(ctx); err != nil {
				if ctx.Err() == nil {
					v.logger.WithField("user", v.userID).WithError(err).Warn("notification reload failed")
				}
				continue
			}
			v.emit()
		}
	}
}

func (v *View) onTaskChange(realtime.Change) {
	v.requestRefresh()
}

func (v *View) onNotification(c realtime.Change) {
	var n domain.Notification
	if len(c.Record) > 0 {
		if err := json.Unmarshal(c.Record, &n); err != nil {
			v.logger.WithError(err).Warn("bad notification payload")
			return
		}
	}
	switch c.Type {
	case realtime.EventResync:
		v.mu.Lock()
		v.inboxStale = true
		v.mu.Unlock()
		v.requestRefresh()
		return
	case realtime.EventInsert:
		if n.ID == "" {
			n.ID = c.RecordID
		}
		v.inbox.Prepend(n)
	case realtime.EventUpdate:
		if c.RecordID == "" {
			v.inbox.MarkAllRead()
		} else if n.Read {
			v.inbox.MarkRead(c.RecordID)
		}
	default:
		return
	}
	v.emit()
}
