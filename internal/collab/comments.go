// Package collab keeps a client's view of a project's notes and comment feed
// consistent with the store while change events race with local actions.
//
// Comments are multi-writer and append-only: inserts announced by the change
// feed trigger a full re-fetch (the event carries no author display data),
// deletes are applied locally by id. Notes have a single writer, the owner,
// and are last-write-wins.
package collab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"biocloud/internal/domain/models"
	"biocloud/internal/domain/services"
	"biocloud/internal/realtime"
)

// ErrNotOpen is returned by operations that need an open project.
var ErrNotOpen = errors.New("no project open")

// CommentsSnapshot is delivered to observers after every change of the list.
type CommentsSnapshot struct {
	ProjectID string
	Comments  []models.Comment
}

// CommentFeed is one client's ordered comment list for the open project.
type CommentFeed struct {
	comments   services.CommentService
	subscriber realtime.Subscriber
	viewer     models.Identity
	logger     *slog.Logger

	mu        sync.Mutex
	projectID string
	list      []models.Comment
	known     map[string]struct{}
	removed   map[string]struct{}
	issued    uint64
	applied   uint64
	sub       realtime.Subscription
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	observers []func(CommentsSnapshot)

	notifyMu sync.Mutex
}

// NewCommentFeed creates a closed feed for viewer.
func NewCommentFeed(comments services.CommentService, subscriber realtime.Subscriber, viewer models.Identity, logger *slog.Logger) *CommentFeed {
	return &CommentFeed{
		comments:   comments,
		subscriber: subscriber,
		viewer:     viewer,
		logger:     logger,
	}
}

// Observe registers an observer. Observers must not call back into the feed.
func (f *CommentFeed) Observe(fn func(CommentsSnapshot)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers = append(f.observers, fn)
}

// Open subscribes to the project's comment topic and loads the list. The
// subscription is live before the fetch, so no insert can fall between them.
func (f *CommentFeed) Open(ctx context.Context, projectID string) error {
	f.Close()

	sub, err := f.subscriber.Subscribe(ctx, models.CommentsTopic(projectID))
	if err != nil {
		return fmt.Errorf("subscribe to comments: %w", err)
	}

	feedCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	f.mu.Lock()
	f.projectID = projectID
	f.list = nil
	f.known = make(map[string]struct{})
	f.removed = make(map[string]struct{})
	f.sub = sub
	f.ctx = feedCtx
	f.cancel = cancel
	f.done = done
	f.mu.Unlock()

	go f.pump(feedCtx, sub, done)

	if err := f.refetch(ctx); err != nil {
		f.Close()
		return err
	}
	return nil
}

// Comments returns a copy of the current list.
func (f *CommentFeed) Comments() []models.Comment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.list)
}

// ProjectID returns the open project, or "".
func (f *CommentFeed) ProjectID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.projectID
}

// Post appends a comment, then re-fetches so the author data is complete.
func (f *CommentFeed) Post(ctx context.Context, content string) (*models.Comment, error) {
	projectID := f.ProjectID()
	if projectID == "" {
		return nil, ErrNotOpen
	}

	comment, err := f.comments.PostComment(ctx, f.viewer, projectID, content)
	if err != nil {
		return nil, err
	}

	if err := f.refetch(ctx); err != nil {
		f.logger.Warn("comment re-fetch after post failed", "project_id", projectID, "error", err)
	}
	return comment, nil
}

// Delete removes a comment through the service, then drops it locally.
func (f *CommentFeed) Delete(ctx context.Context, commentID string) error {
	if f.ProjectID() == "" {
		return ErrNotOpen
	}

	if err := f.comments.DeleteComment(ctx, f.viewer, commentID); err != nil {
		return err
	}
	f.remove(commentID)
	return nil
}

// Close unsubscribes and discards the list. In-flight re-fetches are ignored.
func (f *CommentFeed) Close() {
	f.mu.Lock()
	sub, cancel, done := f.sub, f.cancel, f.done
	f.projectID = ""
	f.list = nil
	f.sub, f.cancel, f.done = nil, nil, nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		if err := sub.Close(); err != nil {
			f.logger.Debug("comment subscription close failed", "error", err)
		}
	}
	if done != nil {
		<-done
	}
}

func (f *CommentFeed) pump(ctx context.Context, sub realtime.Subscription, done chan struct{}) {
	defer close(done)
	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			f.handle(ctx, event)
		case <-ctx.Done():
			return
		}
	}
}

func (f *CommentFeed) handle(ctx context.Context, event models.ChangeEvent) {
	row, err := event.Row()
	if err != nil || row.ID == "" {
		f.logger.Warn("ignoring malformed comment event", "event_id", event.ID, "error", err)
		return
	}

	switch event.Type {
	case models.ChangeInsert:
		f.mu.Lock()
		_, known := f.known[row.ID]
		f.mu.Unlock()
		if known {
			return
		}
		if err := f.refetch(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn("comment re-fetch failed", "project_id", row.ProjectID, "error", err)
		}
	case models.ChangeDelete:
		f.remove(row.ID)
	}
}

// refetch loads the full list and applies it only if it still belongs to the
// open project and no later fetch has been applied.
func (f *CommentFeed) refetch(ctx context.Context) error {
	f.mu.Lock()
	if f.projectID == "" {
		f.mu.Unlock()
		return ErrNotOpen
	}
	f.issued++
	seq := f.issued
	projectID := f.projectID
	feedCtx := f.ctx
	f.mu.Unlock()

	ctx, cancel := mergeCancel(ctx, feedCtx)
	defer cancel()

	list, err := f.comments.ListComments(ctx, f.viewer, projectID)
	if err != nil {
		return err
	}

	f.mu.Lock()
	if projectID != f.projectID || seq <= f.applied {
		f.mu.Unlock()
		return nil
	}
	f.applied = seq
	f.list = f.list[:0]
	for _, c := range list {
		if _, gone := f.removed[c.ID]; gone {
			continue
		}
		f.list = append(f.list, c)
		f.known[c.ID] = struct{}{}
	}
	f.notifyLocked()
	return nil
}

func (f *CommentFeed) remove(id string) {
	f.mu.Lock()
	if f.projectID == "" {
		f.mu.Unlock()
		return
	}
	f.removed[id] = struct{}{}
	i := slices.IndexFunc(f.list, func(c models.Comment) bool { return c.ID == id })
	if i < 0 {
		f.mu.Unlock()
		return
	}
	f.list = slices.Delete(f.list, i, i+1)
	f.notifyLocked()
}

// notifyLocked releases mu and delivers a snapshot in order.
func (f *CommentFeed) notifyLocked() {
	snap := CommentsSnapshot{ProjectID: f.projectID, Comments: slices.Clone(f.list)}
	observers := f.observers
	f.notifyMu.Lock()
	f.mu.Unlock()
	defer f.notifyMu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

// mergeCancel returns a context cancelled when either parent is.
func mergeCancel(ctx, other context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	if other == nil {
		return merged, cancel
	}
	stop := context.AfterFunc(other, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}
