package realtime

import (
	"context"
	"hash/crc32"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// PoolConfig sizes a Dispatcher.
type PoolConfig struct {
	Workers        int
	Buffer         int
	PublishTimeout time.Duration
	HandoffTimeout time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Buffer <= 0 {
		c.Buffer = 1024
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	if c.HandoffTimeout < 0 {
		c.HandoffTimeout = 0
	}
	return c
}

// Dispatcher publishes changes off the request path. Changes for one user
// always go through the same worker, so a user sees them in publish order.
// When every queue slot stays taken past the handoff timeout the change is
// published inline instead of being dropped.
type Dispatcher struct {
	pub     Publisher
	cfg     PoolConfig
	shards  []chan Change
	wg      sync.WaitGroup
	logger  *log.Logger
	closeMu sync.Once
}

// NewDispatcher starts the worker pool.
func NewDispatcher(pub Publisher, cfg PoolConfig, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	cfg = cfg.withDefaults()
	d := &Dispatcher{pub: pub, cfg: cfg, logger: logger}
	perShard := cfg.Buffer / cfg.Workers
	if perShard < 1 {
		perShard = 1
	}
	for i := 0; i < cfg.Workers; i++ {
		ch := make(chan Change, perShard)
		d.shards = append(d.shards, ch)
		d.wg.Add(1)
		go d.worker(i, ch)
	}
	logger.Infof("change dispatcher started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.PublishTimeout, cfg.HandoffTimeout)
	return d
}

// Publish queues c for delivery.
func (d *Dispatcher) Publish(ctx context.Context, c Change) error {
	if d.tryHandoff(c) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.PublishTimeout)
	defer cancel()
	return d.pub.Publish(ctx, c)
}

// Close drains queued changes and stops the workers.
func (d *Dispatcher) Close() {
	d.closeMu.Do(func() {
		for _, ch := range d.shards {
			close(ch)
		}
	})
	d.wg.Wait()
}

func (d *Dispatcher) worker(id int, ch <-chan Change) {
	defer d.wg.Done()
	for c := range ch {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.PublishTimeout)
		err := d.pub.Publish(ctx, c)
		cancel()
		if err != nil {
			d.logger.Errorf("publish failed, err: %v, table: %s, user: %s, worker: %d", err, c.Table, c.UserID, id)
		}
	}
}

func (d *Dispatcher) shard(userID string) chan Change {
	return d.shards[crc32.ChecksumIEEE([]byte(userID))%uint32(len(d.shards))]
}

func (d *Dispatcher) tryHandoff(c Change) bool {
	ch := d.shard(c.UserID)
	if ok, closed := trySendNonBlocking(ch, c); closed {
		return false
	} else if ok {
		return true
	}
	if d.cfg.HandoffTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(d.cfg.HandoffTimeout)
	defer timer.Stop()
	ok, closed := sendWithTimer(ch, c, timer.C)
	if closed {
		return false
	}
	return ok
}

func trySendNonBlocking(ch chan Change, c Change) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- c:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan Change, c Change, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- c:
		return true, false
	case <-timer:
		return false, false
	}
}
