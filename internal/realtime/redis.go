package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"biocloud/internal/domain/models"

	"github.com/redis/go-redis/v9"
)

// channelPrefix namespaces change channels in a shared Redis.
const channelPrefix = "biocloud:changes:"

// RedisFeed fans change events out over Redis pub/sub so every server
// instance sees changes relayed by any of them.
type RedisFeed struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisFeed connects to redisURL. prefix isolates environments sharing
// one Redis (normally the table prefix).
func NewRedisFeed(redisURL, prefix string, logger *slog.Logger) (*RedisFeed, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisFeedFromClient(client, prefix, logger), nil
}

// NewRedisFeedFromClient wraps an existing client.
func NewRedisFeedFromClient(client *redis.Client, prefix string, logger *slog.Logger) *RedisFeed {
	return &RedisFeed{
		client: client,
		prefix: channelPrefix + prefix,
		logger: logger,
	}
}

func (f *RedisFeed) channel(topic string) string {
	return f.prefix + topic
}

// Publish sends the event on its topic's channel
func (f *RedisFeed) Publish(ctx context.Context, event models.ChangeEvent) error {
	if event.Topic == "" {
		return fmt.Errorf("publish %s %s: empty topic", event.Table, event.Type)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	if err := f.client.Publish(ctx, f.channel(event.Topic), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Topic, err)
	}
	return nil
}

// Subscribe listens on the given topics. It waits for Redis to confirm the
// subscription before returning.
func (f *RedisFeed) Subscribe(ctx context.Context, topics ...string) (Subscription, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("subscribe: no topics")
	}

	channels := make([]string, len(topics))
	for i, topic := range topics {
		channels[i] = f.channel(topic)
	}

	pubsub := f.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", strings.Join(topics, ","), err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan models.ChangeEvent, eventBuffer),
		done:   make(chan struct{}),
	}
	go sub.pump(f.logger)

	return sub, nil
}

// Close closes the underlying client
func (f *RedisFeed) Close() error {
	return f.client.Close()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan models.ChangeEvent
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) Events() <-chan models.ChangeEvent {
	return s.events
}

func (s *redisSubscription) pump(logger *slog.Logger) {
	defer close(s.events)

	for msg := range s.pubsub.Channel() {
		var event models.ChangeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			logger.Warn("dropping malformed change event", "channel", msg.Channel, "error", err)
			continue
		}

		select {
		case s.events <- event:
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
