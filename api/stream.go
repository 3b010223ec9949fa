package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/Peap0ds-23/collaborative-todo-1/realtime"
)

const (
	streamBuffer    = 64
	streamKeepAlive = 25 * time.Second
)

var streamTables = [...]realtime.Table{
	realtime.TableTasks,
	realtime.TableShares,
	realtime.TableNotifications,
}

// streamChanges forwards every change addressed to the caller as a server-sent
// event named after its table. When the buffer overflows the dropped tables
// get a resync event instead.
func streamChanges(feed realtime.Feed, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := identityFrom(c)
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		ctx := c.Request().Context()

		queue := newChangeQueue(streamBuffer)
		forward := func(ch realtime.Change) {
			if !queue.push(ch) {
				logger.WithFields(log.Fields{"user": id.UserID, "table": ch.Table}).Warn("stream buffer full; resync queued")
			}
		}

		handles := make([]realtime.Handle, 0, len(streamTables))
		defer func() {
			for _, h := range handles {
				if err := feed.Unsubscribe(h); err != nil {
					logger.WithError(err).Warn("stream unsubscribe failed")
				}
			}
		}()
		for _, table := range streamTables {
			h, err := feed.Subscribe(ctx, table, realtime.Filter{UserID: id.UserID}, forward)
			if err != nil {
				return writeError(c, err)
			}
			handles = append(handles, h)
		}

		res := c.Response()
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set(echo.HeaderCacheControl, "no-cache")
		res.Header().Set(echo.HeaderConnection, "keep-alive")
		res.Header().Set("X-Accel-Buffering", "no")
		res.WriteHeader(http.StatusOK)
		if _, err := res.Write([]byte(": connected\n\n")); err != nil {
			return err
		}
		flusher.Flush()

		keepAlive := time.NewTicker(streamKeepAlive)
		defer keepAlive.Stop()
		sent := 0
		for {
			select {
			case <-ctx.Done():
				metricsFrom(c).SetItemsReturned(sent)
				return nil
			case <-keepAlive.C:
				if _, err := res.Write([]byte(": ping\n\n")); err != nil {
					return err
				}
				flusher.Flush()
			case ch := <-queue.events:
				if err := sendChange(res, ch, logger); err != nil {
					return err
				}
				flusher.Flush()
				sent++
			case <-queue.resync:
				for _, table := range queue.takeMissed() {
					ch := realtime.Change{Table: table, Type: realtime.EventResync, UserID: id.UserID, At: time.Now().UTC()}
					if err := sendChange(res, ch, logger); err != nil {
						return err
					}
				}
				flusher.Flush()
			}
		}
	}
}

// changeQueue buffers changes for one stream and remembers the tables whose
// changes overflowed.
type changeQueue struct {
	events chan realtime.Change
	resync chan struct{}

	mu     sync.Mutex
	missed map[realtime.Table]bool
}

func newChangeQueue(size int) *changeQueue {
	return &changeQueue{
		events: make(chan realtime.Change, size),
		resync: make(chan struct{}, 1),
		missed: map[realtime.Table]bool{},
	}
}

// push queues ch. It reports false when the buffer was full and the table
// was marked for resync instead.
func (q *changeQueue) push(ch realtime.Change) bool {
	select {
	case q.events <- ch:
		return true
	default:
	}
	q.mu.Lock()
	q.missed[ch.Table] = true
	q.mu.Unlock()
	select {
	case q.resync <- struct{}{}:
	default:
	}
	return false
}

func (q *changeQueue) takeMissed() []realtime.Table {
	q.mu.Lock()
	defer q.mu.Unlock()
	tables := make([]realtime.Table, 0, len(q.missed))
	for _, table := range streamTables {
		if q.missed[table] {
			tables = append(tables, table)
		}
	}
	q.missed = map[realtime.Table]bool{}
	return tables
}

func sendChange(w http.ResponseWriter, ch realtime.Change, logger *log.Logger) error {
	data, err := sonic.Marshal(ch)
	if err != nil {
		logger.WithError(err).Error("encode change")
		return nil
	}
	return writeEvent(w, string(ch.Table), data)
}

func writeEvent(w http.ResponseWriter, name string, data []byte) error {
	if _, err := w.Write([]byte("event: " + name + "\ndata: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\n\n"))
	return err
}
