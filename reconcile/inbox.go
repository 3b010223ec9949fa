package reconcile

import (
	"sync"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
)

// Inbox holds the caller's notifications, newest first.
type Inbox struct {
	mu    sync.Mutex
	items []domain.Notification
}

// Reset replaces the contents with a freshly loaded list.
func (i *Inbox) Reset(items []domain.Notification) {
	i.mu.Lock()
	i.items = append([]domain.Notification{}, items...)
	i.mu.Unlock()
}

// Merge folds a freshly loaded list into the inbox. Loaded items replace
// their local copies, keeping a local read flag; local items the load did not
// return arrived after it was taken and stay in front.
func (i *Inbox) Merge(loaded []domain.Notification) {
	i.mu.Lock()
	defer i.mu.Unlock()
	local := make(map[string]domain.Notification, len(i.items))
	for _, n := range i.items {
		local[n.ID] = n
	}
	seen := make(map[string]bool, len(loaded))
	merged := make([]domain.Notification, 0, len(loaded)+len(i.items))
	for _, n := range loaded {
		seen[n.ID] = true
	}
	for _, n := range i.items {
		if !seen[n.ID] {
			merged = append(merged, n)
		}
	}
	for _, n := range loaded {
		if cur, ok := local[n.ID]; ok && cur.Read {
			n.Read = true
		}
		merged = append(merged, n)
	}
	i.items = merged
}

// Prepend adds a newly inserted notification without a reload. A notification
// already present is left where it is.
func (i *Inbox) Prepend(n domain.Notification) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, cur := range i.items {
		if cur.ID == n.ID {
			return
		}
	}
	i.items = append([]domain.Notification{n}, i.items...)
}

// MarkRead flags one notification as read.
func (i *Inbox) MarkRead(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for k := range i.items {
		if i.items[k].ID == id {
			i.items[k].Read = true
		}
	}
}

// MarkAllRead flags every notification as read.
func (i *Inbox) MarkAllRead() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for k := range i.items {
		i.items[k].Read = true
	}
}

// Items returns a copy of the notifications.
func (i *Inbox) Items() []domain.Notification {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]domain.Notification{}, i.items...)
}

// Unread counts notifications not yet read.
func (i *Inbox) Unread() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := 0
	for _, it := range i.items {
		if !it.Read {
			n++
		}
	}
	return n
}
