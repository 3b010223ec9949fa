package client

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/Peap0ds-23/collaborative-todo-1/realtime"
)

const (
	minReconnectDelay = 200 * time.Millisecond
	maxReconnectDelay = 10 * time.Second
)

// Stream relays the server's change feed into a local hub. The connection
// is opened on the first subscription and re-established after drops. Every
// established connection resyncs the hub's subscribers, since changes made
// while disconnected are not replayed.
type Stream struct {
	c   *Client
	hub *realtime.Hub

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// Stream returns a feed backed by GET /api/stream.
func (c *Client) Stream() *Stream {
	return &Stream{c: c, hub: realtime.NewHub(c.logger)}
}

// Subscribe registers cb for changes to table that match filter.
func (s *Stream) Subscribe(ctx context.Context, table realtime.Table, filter realtime.Filter, cb func(realtime.Change)) (realtime.Handle, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return realtime.Handle{}, realtime.ErrClosed
	}
	if s.cancel == nil {
		runCtx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.done = make(chan struct{})
		go s.run(runCtx)
	}
	s.mu.Unlock()
	return s.hub.Subscribe(ctx, table, filter, cb)
}

// Unsubscribe removes a subscription.
func (s *Stream) Unsubscribe(h realtime.Handle) error {
	return s.hub.Unsubscribe(h)
}

// Close drops the connection and every subscription.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	s.hub.Close()
}

func (s *Stream) run(ctx context.Context) {
	defer close(s.done)
	delay := minReconnectDelay
	for {
		delivered, err := s.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if delivered {
			delay = minReconnectDelay
		}
		s.c.logger.WithError(err).Warnf("change stream dropped, reconnecting in %v", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// consume reads one connection until it ends. It reports whether any
// event arrived so the caller can reset its backoff.
func (s *Stream) consume(ctx context.Context) (bool, error) {
	req, err := s.c.newRequest(ctx, http.MethodGet, "/api/stream", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	hc := &http.Client{Transport: s.c.http.Transport}
	resp, err := hc.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: %d", errStreamStatus, resp.StatusCode)
	}
	s.hub.Resync()

	delivered := false
	var data strings.Builder
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var c realtime.Change
			if err := sonic.UnmarshalString(data.String(), &c); err != nil {
				s.c.logger.Errorf("unable to parse change: %v", err)
			} else if err := s.hub.Publish(ctx, c); err != nil {
				s.c.logger.Errorf("deliver change: %v", err)
			} else {
				delivered = true
			}
			data.Reset()
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return delivered, err
	}
	return delivered, fmt.Errorf("stream closed by server")
}
