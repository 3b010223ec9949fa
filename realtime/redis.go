package realtime

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// DefaultChannel is the pub/sub channel changes travel on between instances.
const DefaultChannel = "todo:changes"

// Bus publishes changes and delivers them to the local hub. With a Redis
// client every instance sees every change; without one, changes stay local.
type Bus struct {
	rc      *redis.Client
	channel string
	hub     *Hub
	logger  *log.Logger
}

// NewBus creates a bus over hub. rc may be nil.
func NewBus(rc *redis.Client, channel string, hub *Hub, logger *log.Logger) *Bus {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Bus{rc: rc, channel: channel, hub: hub, logger: logger}
}

// Publish sends c to every instance.
func (b *Bus) Publish(ctx context.Context, c Change) error {
	if b.rc == nil {
		return b.hub.Publish(ctx, c)
	}
	data, err := sonic.Marshal(c)
	if err != nil {
		return err
	}
	return b.rc.Publish(ctx, b.channel, data).Err()
}

// Subscribe registers a local subscription.
func (b *Bus) Subscribe(ctx context.Context, table Table, filter Filter, cb func(Change)) (Handle, error) {
	return b.hub.Subscribe(ctx, table, filter, cb)
}

// Unsubscribe releases a local subscription.
func (b *Bus) Unsubscribe(h Handle) error {
	return b.hub.Unsubscribe(h)
}

// Run relays changes from Redis into the local hub until ctx is cancelled,
// resubscribing whenever the pub/sub connection drops.
func (b *Bus) Run(ctx context.Context) {
	if b.rc == nil {
		<-ctx.Done()
		return
	}
	for {
		sub := b.rc.Subscribe(ctx, b.channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var c Change
				if err := sonic.UnmarshalString(msg.Payload, &c); err != nil {
					b.logger.Errorf("unable to parse change: %v", err)
					continue
				}
				if err := b.hub.Publish(ctx, c); err != nil {
					b.logger.Errorf("deliver change: %v", err)
				}
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		b.logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
