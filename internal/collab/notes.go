package collab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"biocloud/internal/domain"
	"biocloud/internal/domain/models"
	"biocloud/internal/domain/services"
	"biocloud/internal/realtime"
)

// NotesState is delivered to observers whenever the editor changes.
type NotesState struct {
	ProjectID string
	Notes     string
	Dirty     bool
	Editable  bool

	// Project is the latest project row seen, including visibility
	Project *models.Project

	// Lost is set once the project was deleted or hidden from the viewer
	Lost    bool
	Deleted bool
}

// NotesEditor holds the notes of the open project for one viewer. Only the
// owner may edit or save; saving is explicit and concurrent saves from other
// sessions of the owner are last-write-wins.
type NotesEditor struct {
	projects   services.ProjectService
	subscriber realtime.Subscriber
	viewer     models.Identity
	logger     *slog.Logger

	mu        sync.Mutex
	project   *models.Project
	saved     string
	draft     string
	dirty     bool
	lost      bool
	deleted   bool
	gen       uint64
	issued    uint64
	applied   uint64
	sub       realtime.Subscription
	cancel    context.CancelFunc
	done      chan struct{}
	observers []func(NotesState)

	notifyMu sync.Mutex
}

// NewNotesEditor creates an editor with no project open.
func NewNotesEditor(projects services.ProjectService, subscriber realtime.Subscriber, viewer models.Identity, logger *slog.Logger) *NotesEditor {
	return &NotesEditor{
		projects:   projects,
		subscriber: subscriber,
		viewer:     viewer,
		logger:     logger,
	}
}

// Observe registers an observer. Observers must not call back into the editor.
func (e *NotesEditor) Observe(fn func(NotesState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

// Open adopts the project's notes and follows its row changes.
func (e *NotesEditor) Open(ctx context.Context, project *models.Project) error {
	e.Close()

	sub, err := e.subscriber.Subscribe(ctx, models.ProjectTopic(project.ID))
	if err != nil {
		return fmt.Errorf("subscribe to project: %w", err)
	}

	editorCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	e.mu.Lock()
	e.gen++
	p := *project
	e.project = &p
	e.saved, e.draft = project.Notes, project.Notes
	e.dirty, e.lost, e.deleted = false, false, false
	e.sub, e.cancel, e.done = sub, cancel, done
	gen := e.gen
	e.notifyLocked()

	go e.pump(editorCtx, gen, sub, done)
	return nil
}

// State returns the current editor state.
func (e *NotesEditor) State() NotesState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// Edit replaces the local draft. Nothing is stored until Save.
func (e *NotesEditor) Edit(text string) error {
	e.mu.Lock()
	if err := e.checkOwnerLocked("edit notes of"); err != nil {
		e.mu.Unlock()
		return err
	}
	if text == e.draft {
		e.mu.Unlock()
		return nil
	}
	e.draft = text
	e.dirty = e.draft != e.saved
	e.notifyLocked()
	return nil
}

// Save stores the draft. Edits made while the save is in flight stay dirty.
func (e *NotesEditor) Save(ctx context.Context) error {
	e.mu.Lock()
	if err := e.checkOwnerLocked("edit notes of"); err != nil {
		e.mu.Unlock()
		return err
	}
	id, text, gen := e.project.ID, e.draft, e.gen
	e.mu.Unlock()

	project, err := e.projects.SaveNotes(ctx, e.viewer, id, text)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return nil
	}
	e.saved = text
	e.project.Notes = text
	e.project.UpdatedAt = project.UpdatedAt
	e.dirty = e.draft != e.saved
	// Re-fetches issued before this save may carry older notes
	e.applied = e.issued
	e.notifyLocked()
	return nil
}

// Close stops following the project.
func (e *NotesEditor) Close() {
	e.mu.Lock()
	e.gen++
	sub, cancel, done := e.sub, e.cancel, e.done
	e.project = nil
	e.sub, e.cancel, e.done = nil, nil, nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		if err := sub.Close(); err != nil {
			e.logger.Debug("project subscription close failed", "error", err)
		}
	}
	if done != nil {
		<-done
	}
}

func (e *NotesEditor) checkOwnerLocked(action string) error {
	if e.project == nil {
		return ErrNotOpen
	}
	if e.lost {
		return fmt.Errorf("project %s: %w", e.project.ID, domain.ErrNotFound)
	}
	if !e.project.IsOwnedBy(e.viewer) {
		return &domain.PermissionError{Action: action, Resource: "project", ID: e.project.ID}
	}
	return nil
}

func (e *NotesEditor) pump(ctx context.Context, gen uint64, sub realtime.Subscription, done chan struct{}) {
	defer close(done)
	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			e.handle(ctx, gen, event)
		case <-ctx.Done():
			return
		}
	}
}

func (e *NotesEditor) handle(ctx context.Context, gen uint64, event models.ChangeEvent) {
	switch event.Type {
	case models.ChangeDelete:
		e.mu.Lock()
		if gen != e.gen || e.lost {
			e.mu.Unlock()
			return
		}
		e.lost, e.deleted = true, true
		e.notifyLocked()
	case models.ChangeUpdate:
		if err := e.refetch(ctx, gen); err != nil && ctx.Err() == nil {
			e.logger.Warn("notes re-fetch failed", "error", err)
		}
	}
}

// refetch reloads the project row. A result is applied only for the current
// generation and only if no later fetch was applied; remote notes replace
// the local text only when there is no unsaved draft.
func (e *NotesEditor) refetch(ctx context.Context, gen uint64) error {
	e.mu.Lock()
	if gen != e.gen || e.project == nil {
		e.mu.Unlock()
		return nil
	}
	e.issued++
	seq := e.issued
	id := e.project.ID
	e.mu.Unlock()

	project, err := e.projects.PeekProject(ctx, e.viewer, id)
	hidden := errors.Is(err, domain.ErrNotFound)
	if err != nil && !hidden {
		return err
	}

	e.mu.Lock()
	if gen != e.gen || seq <= e.applied {
		e.mu.Unlock()
		return nil
	}
	e.applied = seq

	if hidden {
		if e.lost {
			e.mu.Unlock()
			return nil
		}
		e.lost = true
		e.notifyLocked()
		return nil
	}

	changed := project.IsPublic != e.project.IsPublic || project.Notes != e.saved
	e.project = project
	if project.Notes != e.saved {
		e.saved = project.Notes
		if !e.dirty {
			e.draft = project.Notes
		}
		e.dirty = e.draft != e.saved
	}
	if !changed {
		e.mu.Unlock()
		return nil
	}
	e.notifyLocked()
	return nil
}

func (e *NotesEditor) stateLocked() NotesState {
	st := NotesState{
		Notes:   e.draft,
		Dirty:   e.dirty,
		Lost:    e.lost,
		Deleted: e.deleted,
	}
	if e.project != nil {
		p := *e.project
		st.ProjectID = p.ID
		st.Project = &p
		st.Editable = !e.lost && p.IsOwnedBy(e.viewer)
	}
	return st
}

// notifyLocked releases mu and delivers the state in order.
func (e *NotesEditor) notifyLocked() {
	st := e.stateLocked()
	observers := e.observers
	e.notifyMu.Lock()
	e.mu.Unlock()
	defer e.notifyMu.Unlock()

	for _, fn := range observers {
		fn(st)
	}
}
