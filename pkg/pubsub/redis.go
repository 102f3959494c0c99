package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-live/chat-core/pkg/log"
)

// eventBuffer bounds the deliveries queued per subscription. A relay that
// falls further behind loses events rather than stalling the bus.
const eventBuffer = 100

// RedisPubSub carries chat deliveries between instances over Redis
// PUBLISH/PSUBSCRIBE. Delivery is at most once.
type RedisPubSub struct {
	client *redis.Client

	mu   sync.Mutex
	subs map[string]*redis.PubSub // by channel or pattern
}

// NewRedisPubSub connects to Redis and verifies the connection.
func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect relay bus to redis: %w", err)
	}

	return &RedisPubSub{
		client: client,
		subs:   make(map[string]*redis.PubSub),
	}, nil
}

// Publish sends event on a room or notify channel.
func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}
	return r.client.Publish(ctx, channel, data).Err()
}

// Subscribe follows a single room or notify channel.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return r.follow(ctx, channel, r.client.Subscribe(ctx, channel))
}

// SubscribePattern follows every channel matching pattern, such as
// PatternRoom.
func (r *RedisPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return r.follow(ctx, pattern, r.client.PSubscribe(ctx, pattern))
}

func (r *RedisPubSub) follow(ctx context.Context, name string, sub *redis.PubSub) (<-chan *Event, error) {
	// Wait for the subscription to be confirmed so no event published after
	// this call returns is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", name, err)
	}

	r.mu.Lock()
	if prev, ok := r.subs[name]; ok {
		_ = prev.Close()
	}
	r.subs[name] = sub
	r.mu.Unlock()

	events := make(chan *Event, eventBuffer)
	go r.forward(ctx, sub, events)
	return events, nil
}

// Unsubscribe stops following a channel or pattern.
func (r *RedisPubSub) Unsubscribe(_ context.Context, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[channel]
	if !ok {
		return nil
	}
	delete(r.subs, channel)
	return sub.Close()
}

// Close drops every subscription and the Redis client.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, sub := range r.subs {
		_ = sub.Close()
		delete(r.subs, name)
	}
	return r.client.Close()
}

// forward decodes bus messages into events until ctx ends or the
// subscription is closed.
func (r *RedisPubSub) forward(ctx context.Context, sub *redis.PubSub, events chan<- *Event) {
	defer close(events)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				l := log.L()
				l.Warn().Err(err).Str("channel", msg.Channel).Msg("relay bus: undecodable event")
				continue
			}

			select {
			case events <- &evt:
			case <-ctx.Done():
				return
			default:
				l := log.L()
				l.Warn().
					Str("channel", msg.Channel).
					Str(log.FieldDestination, evt.Destination).
					Msg("relay bus: subscriber behind, event dropped")
			}
		}
	}
}
