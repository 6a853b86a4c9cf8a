package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"biocloud/internal/domain/models"
)

// MemoryFeed is a single-process feed, used when no Redis is configured and
// in tests.
type MemoryFeed struct {
	mu     sync.RWMutex
	topics map[string]map[*memorySubscription]struct{}
	logger *slog.Logger
}

func NewMemoryFeed(logger *slog.Logger) *MemoryFeed {
	return &MemoryFeed{
		topics: make(map[string]map[*memorySubscription]struct{}),
		logger: logger,
	}
}

// Publish never waits on a subscriber. A subscriber whose buffer is full is
// closed; it re-subscribes and re-fetches like after any other gap.
func (f *MemoryFeed) Publish(ctx context.Context, event models.ChangeEvent) error {
	if event.Topic == "" {
		return fmt.Errorf("publish %s %s: empty topic", event.Table, event.Type)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.RLock()
	subs := make([]*memorySubscription, 0, len(f.topics[event.Topic]))
	for sub := range f.topics[event.Topic] {
		subs = append(subs, sub)
	}
	f.mu.RUnlock()

	for _, sub := range subs {
		if !sub.offer(event) {
			f.logger.Warn("dropping lagging subscriber", "topic", event.Topic, "buffer", eventBuffer)
			sub.Close()
		}
	}
	return nil
}

func (f *MemoryFeed) Subscribe(ctx context.Context, topics ...string) (Subscription, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("subscribe: no topics")
	}

	sub := &memorySubscription{
		feed:   f,
		topics: topics,
		events: make(chan models.ChangeEvent, eventBuffer),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, topic := range topics {
		if f.topics[topic] == nil {
			f.topics[topic] = make(map[*memorySubscription]struct{})
		}
		f.topics[topic][sub] = struct{}{}
	}
	return sub, nil
}

func (f *MemoryFeed) Close() error {
	return nil
}

func (f *MemoryFeed) remove(sub *memorySubscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, topic := range sub.topics {
		delete(f.topics[topic], sub)
		if len(f.topics[topic]) == 0 {
			delete(f.topics, topic)
		}
	}
}

type memorySubscription struct {
	feed   *MemoryFeed
	topics []string
	events chan models.ChangeEvent

	// mu orders sends against close(events)
	mu     sync.Mutex
	closed bool
}

func (s *memorySubscription) Events() <-chan models.ChangeEvent {
	return s.events
}

// offer buffers event without blocking. It reports false when the buffer
// is full; a closed subscription silently discards.
func (s *memorySubscription) offer(event models.ChangeEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}

func (s *memorySubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	s.feed.remove(s)
	return nil
}
