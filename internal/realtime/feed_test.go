package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"biocloud/internal/domain/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRedisFeed(t *testing.T) *RedisFeed {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	feed := NewRedisFeedFromClient(client, "test_", testLogger())
	t.Cleanup(func() { feed.Close() })
	return feed
}

// feeds runs a test against both implementations.
func feeds(t *testing.T) map[string]Feed {
	return map[string]Feed{
		"memory": NewMemoryFeed(testLogger()),
		"redis":  newRedisFeed(t),
	}
}

func commentInsert(projectID, commentID string) models.ChangeEvent {
	return models.ChangeEvent{
		ID:    "01J0000000000000000000000",
		Table: models.TableComments,
		Type:  models.ChangeInsert,
		Topic: models.CommentsTopic(projectID),
		New:   json.RawMessage(`{"id":"` + commentID + `","project_id":"` + projectID + `"}`),
	}
}

func receive(t *testing.T, sub Subscription) models.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return models.ChangeEvent{}
}

func TestFeedDeliversToTopicSubscribers(t *testing.T) {
	for name, feed := range feeds(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			sub, err := feed.Subscribe(ctx, models.CommentsTopic("p1"))
			require.NoError(t, err)
			defer sub.Close()

			require.NoError(t, feed.Publish(ctx, commentInsert("p2", "other")))
			require.NoError(t, feed.Publish(ctx, commentInsert("p1", "c1")))

			ev := receive(t, sub)
			assert.Equal(t, "comments:p1", ev.Topic)
			assert.Equal(t, models.ChangeInsert, ev.Type)

			row, err := ev.Row()
			require.NoError(t, err)
			assert.Equal(t, "c1", row.ID)
		})
	}
}

func TestFeedPreservesPublishOrder(t *testing.T) {
	for name, feed := range feeds(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			sub, err := feed.Subscribe(ctx, models.CommentsTopic("p1"))
			require.NoError(t, err)
			defer sub.Close()

			ids := []string{"c1", "c2", "c3"}
			for _, id := range ids {
				require.NoError(t, feed.Publish(ctx, commentInsert("p1", id)))
			}

			for _, want := range ids {
				row, err := receive(t, sub).Row()
				require.NoError(t, err)
				assert.Equal(t, want, row.ID)
			}
		})
	}
}

func TestSubscriptionCloseEndsEvents(t *testing.T) {
	for name, feed := range feeds(t) {
		t.Run(name, func(t *testing.T) {
			sub, err := feed.Subscribe(context.Background(), "project:p1")
			require.NoError(t, err)

			require.NoError(t, sub.Close())
			require.NoError(t, sub.Close())

			select {
			case _, ok := <-sub.Events():
				assert.False(t, ok)
			case <-time.After(2 * time.Second):
				t.Fatal("events channel not closed")
			}
		})
	}
}

func TestPublishRequiresTopic(t *testing.T) {
	for name, feed := range feeds(t) {
		t.Run(name, func(t *testing.T) {
			err := feed.Publish(context.Background(), models.ChangeEvent{Table: models.TableComments})
			assert.Error(t, err)
		})
	}
}

func TestMemoryFeedDropsStalledSubscriber(t *testing.T) {
	feed := NewMemoryFeed(testLogger())
	ctx := context.Background()

	stalled, err := feed.Subscribe(ctx, models.CommentsTopic("p1"))
	require.NoError(t, err)
	healthy, err := feed.Subscribe(ctx, models.CommentsTopic("p2"))
	require.NoError(t, err)
	defer healthy.Close()

	published := make(chan struct{})
	go func() {
		defer close(published)
		for i := 0; i <= eventBuffer; i++ {
			assert.NoError(t, feed.Publish(ctx, commentInsert("p1", "flood")))
		}
		assert.NoError(t, feed.Publish(ctx, commentInsert("p2", "c1")))
	}()

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a subscriber that is not reading")
	}

	row, err := receive(t, healthy).Row()
	require.NoError(t, err)
	assert.Equal(t, "c1", row.ID)

	// The stalled subscriber keeps what it buffered, then sees its stream end
	drained := 0
	for range stalled.Events() {
		drained++
	}
	assert.Equal(t, eventBuffer, drained)
	assert.NoError(t, stalled.Close())

	subscribed := make(chan error, 1)
	go func() {
		sub, err := feed.Subscribe(ctx, models.CommentsTopic("p1"))
		if err == nil {
			sub.Close()
		}
		subscribed <- err
	}()
	select {
	case err := <-subscribed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe blocked after a stalled subscriber")
	}
}

func TestMemoryPublishAfterCloseIsDiscarded(t *testing.T) {
	feed := NewMemoryFeed(testLogger())
	ctx := context.Background()

	sub, err := feed.Subscribe(ctx, "project:p1")
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	assert.NoError(t, feed.Publish(ctx, models.ChangeEvent{Topic: "project:p1"}))
}

func TestRedisFeedIsolatesPrefixes(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	dev := NewRedisFeedFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "dev_", testLogger())
	prod := NewRedisFeedFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "prod_", testLogger())
	defer dev.Close()
	defer prod.Close()

	sub, err := prod.Subscribe(ctx, models.CommentsTopic("p1"))
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, dev.Publish(ctx, commentInsert("p1", "dev-comment")))
	require.NoError(t, prod.Publish(ctx, commentInsert("p1", "prod-comment")))

	row, err := receive(t, sub).Row()
	require.NoError(t, err)
	assert.Equal(t, "prod-comment", row.ID)
}
