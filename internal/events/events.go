// Package events publishes named core events on a Redis pub/sub channel.
// Delivery is best effort and at most once; publishing never blocks request
// handling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohit83k/radius-aaa/internal/logger"
)

// Channel is the pub/sub channel events are published on.
const Channel = "radius:events"

// Event names.
const (
	AccountExpire   = "account_expire"
	UnlockOnline    = "unlock_online"
	CacheInvalidate = "cache_invalidate"
)

// Event is a notification emitted by the core.
type Event struct {
	Name      string    `json:"name"`
	Account   string    `json:"account,omitempty"`
	NasAddr   string    `json:"nas_addr,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	CacheKey  string    `json:"cache_key,omitempty"`
	Time      time.Time `json:"time"`
}

// Publisher emits events.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type discard struct{}

func (discard) Publish(context.Context, Event) {}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

// RedisPublisher queues events in memory and publishes them from Run.
type RedisPublisher struct {
	client *redis.Client
	queue  chan Event
	log    logger.Logger
}

// NewRedisPublisher returns a publisher with a queue of size buffered events.
func NewRedisPublisher(client *redis.Client, size int, log logger.Logger) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		queue:  make(chan Event, size),
		log:    log,
	}
}

// Publish enqueues e. When the queue is full the event is dropped.
func (p *RedisPublisher) Publish(_ context.Context, e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	select {
	case p.queue <- e:
	default:
		p.log.WithFields(map[string]any{"event": e.Name}).Warn("Event queue full, dropping event")
	}
}

// Run publishes queued events until ctx is done.
func (p *RedisPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-p.queue:
			payload, err := json.Marshal(e)
			if err != nil {
				p.log.Error(fmt.Errorf("failed to marshal event: %w", err))
				continue
			}
			if err := p.client.Publish(ctx, Channel, payload).Err(); err != nil {
				p.log.WithFields(map[string]any{"event": e.Name}).Error(fmt.Errorf("failed to publish event: %w", err))
			}
		}
	}
}

// Subscribe delivers events from the channel to handle until ctx is done.
// Malformed payloads are logged and skipped.
func Subscribe(ctx context.Context, client *redis.Client, log logger.Logger, handle func(Event)) error {
	pubsub := client.Subscribe(ctx, Channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", Channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				log.WithFields(map[string]any{"payload": msg.Payload}).Error(fmt.Errorf("invalid event payload: %w", err))
				continue
			}
			handle(e)
		}
	}
}
