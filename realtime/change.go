// Package realtime carries row changes from the mutation side to every
// subscribed view, within one process and across instances via Redis.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Table names a change source.
type Table string

const (
	TableTasks         Table = "tasks"
	TableShares        Table = "task_shares"
	TableNotifications Table = "notifications"
)

// Valid reports whether t is a table the feed carries.
func (t Table) Valid() bool {
	switch t {
	case TableTasks, TableShares, TableNotifications:
		return true
	}
	return false
}

// EventType is the kind of row change.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	// EventResync carries no row. It tells the subscriber that changes may
	// have been missed and its state should be reloaded.
	EventResync EventType = "RESYNC"
)

// Change describes one row change addressed to one recipient.
type Change struct {
	Table    Table           `json:"table"`
	Type     EventType       `json:"type"`
	UserID   string          `json:"userId"`
	RecordID string          `json:"recordId"`
	Record   json.RawMessage `json:"record,omitempty"`
	At       time.Time       `json:"at"`
}

// Filter narrows a subscription. Zero fields match everything.
type Filter struct {
	UserID string
	Events []EventType
}

// Match reports whether c passes the filter. Resync changes pass any event
// filter.
func (f Filter) Match(c Change) bool {
	if f.UserID != "" && f.UserID != c.UserID {
		return false
	}
	if len(f.Events) == 0 || c.Type == EventResync {
		return true
	}
	for _, ev := range f.Events {
		if ev == c.Type {
			return true
		}
	}
	return false
}

// Handle identifies a live subscription.
type Handle struct {
	id    uint64
	table Table
}

// Table returns the table the handle listens to.
func (h Handle) Table() Table { return h.table }

// Valid reports whether the handle came from a successful Subscribe.
func (h Handle) Valid() bool { return h.id != 0 }

// Feed is the subscription side of the change feed.
type Feed interface {
	Subscribe(ctx context.Context, table Table, filter Filter, cb func(Change)) (Handle, error)
	Unsubscribe(h Handle) error
}

// Publisher is the publishing side of the change feed.
type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

var (
	ErrUnknownTable = errors.New("unknown realtime table")
	ErrClosed       = errors.New("realtime feed closed")
)
