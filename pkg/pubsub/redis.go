package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	pkglog "github.com/Sumit-1011/CampusXchange/pkg/log"
)

const eventBuffer = 256

// RedisPubSub implements PubSub on Redis channels.
type RedisPubSub struct {
	client        *redis.Client
	ownsClient    bool
	subscriptions map[string]*redis.PubSub
	mu            sync.Mutex
}

// NewRedisClient opens a Redis client and verifies the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisPubSub creates a PubSub with its own Redis connection.
func NewRedisPubSub(ctx context.Context, cfg RedisConfig) (*RedisPubSub, error) {
	client, err := NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ps := NewRedisPubSubFromClient(client)
	ps.ownsClient = true
	return ps, nil
}

// NewRedisPubSubFromClient wraps an existing client. Close leaves the
// client open.
func NewRedisPubSubFromClient(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{
		client:        client,
		subscriptions: make(map[string]*redis.PubSub),
	}
}

// Publish publishes an event to the specified channel.
func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return r.client.Publish(ctx, channel, data).Err()
}

// Subscribe subscribes to a specific channel.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return r.subscribe(ctx, channel, r.client.Subscribe(ctx, channel))
}

// SubscribePattern subscribes to channels matching a pattern.
func (r *RedisPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return r.subscribe(ctx, pattern, r.client.PSubscribe(ctx, pattern))
}

func (r *RedisPubSub) subscribe(ctx context.Context, key string, sub *redis.PubSub) (<-chan *Event, error) {
	// Wait for the subscription confirmation so no publish is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", key, err)
	}

	r.mu.Lock()
	if old, ok := r.subscriptions[key]; ok {
		_ = old.Close()
	}
	r.subscriptions[key] = sub
	r.mu.Unlock()

	eventCh := make(chan *Event, eventBuffer)
	go r.processMessages(ctx, sub, eventCh)
	return eventCh, nil
}

// Unsubscribe closes the subscription registered under channel or pattern.
func (r *RedisPubSub) Unsubscribe(ctx context.Context, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub, ok := r.subscriptions[channel]; ok {
		delete(r.subscriptions, channel)
		return sub.Close()
	}
	return nil
}

// Close closes all subscriptions, and the client when owned.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.subscriptions {
		_ = sub.Close()
	}
	r.subscriptions = make(map[string]*redis.PubSub)

	if r.ownsClient {
		return r.client.Close()
	}
	return nil
}

func (r *RedisPubSub) processMessages(ctx context.Context, sub *redis.PubSub, eventCh chan<- *Event) {
	defer close(eventCh)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				l := pkglog.L()
				l.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed event")
				continue
			}
			if event.RoomID == "" {
				event.RoomID, _ = RoomFromChannel(msg.Channel)
			}

			select {
			case eventCh <- &event:
			case <-ctx.Done():
				return
			default:
				l := pkglog.L()
				l.Warn().Str("channel", msg.Channel).Msg("event buffer full, dropping event")
			}
		}
	}
}

// Client returns the underlying Redis client.
func (r *RedisPubSub) Client() *redis.Client {
	return r.client
}
