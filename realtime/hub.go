package realtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

const subscriberBuffer = 64

type subscriber struct {
	table  Table
	filter Filter
	cb     func(Change)
	ch     chan Change
	done   chan struct{}
	// missed is set when a change could not be queued; kick wakes run so
	// it delivers a resync.
	missed atomic.Bool
	kick   chan struct{}
}

// Hub fans changes out to in-process subscribers. Each subscriber gets its own
// delivery goroutine so one slow callback never stalls Publish.
type Hub struct {
	mu     sync.Mutex
	next   uint64
	subs   map[uint64]*subscriber
	closed bool
	logger *log.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Hub{subs: make(map[uint64]*subscriber), logger: logger}
}

// Subscribe registers cb for changes on table that pass filter.
func (h *Hub) Subscribe(ctx context.Context, table Table, filter Filter, cb func(Change)) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	if !table.Valid() {
		return Handle{}, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	if cb == nil {
		return Handle{}, fmt.Errorf("nil callback for %s", table)
	}
	s := &subscriber{
		table:  table,
		filter: filter,
		cb:     cb,
		ch:     make(chan Change, subscriberBuffer),
		done:   make(chan struct{}),
		kick:   make(chan struct{}, 1),
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return Handle{}, ErrClosed
	}
	h.next++
	id := h.next
	h.subs[id] = s
	h.mu.Unlock()

	go s.run()
	return Handle{id: id, table: table}, nil
}

// Unsubscribe stops delivery for the handle. Unknown or already released
// handles are ignored.
func (h *Hub) Unsubscribe(handle Handle) error {
	h.mu.Lock()
	s, ok := h.subs[handle.id]
	delete(h.subs, handle.id)
	h.mu.Unlock()
	if ok {
		close(s.done)
	}
	return nil
}

// Publish delivers c to every matching subscriber.
func (h *Hub) Publish(ctx context.Context, c Change) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	for id, s := range h.subs {
		if s.table != c.Table || !s.filter.Match(c) {
			continue
		}
		select {
		case s.ch <- c:
		default:
			h.logger.WithFields(log.Fields{"subscription": id, "table": c.Table, "user": c.UserID}).Warn("subscriber backlog full, change dropped; resync queued")
			s.markMissed()
		}
	}
	return nil
}

// Resync tells every subscriber to reload its state, for example after the
// upstream connection feeding the hub was re-established.
func (h *Hub) Resync() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		s.markMissed()
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close releases every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uint64]*subscriber)
	h.closed = true
	h.mu.Unlock()
	for _, s := range subs {
		close(s.done)
	}
}

func (s *subscriber) markMissed() {
	s.missed.Store(true)
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *subscriber) resync() {
	if s.missed.Swap(false) {
		s.cb(Change{Table: s.table, Type: EventResync, UserID: s.filter.UserID})
	}
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.kick:
			s.resync()
		case c := <-s.ch:
			select {
			case <-s.done:
				return
			default:
			}
			s.cb(c)
			s.resync()
		}
	}
}
