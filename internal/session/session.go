// Package session runs one connected client: a single event loop that
// executes client commands against the services and forwards the state of
// the client's viewer, notes editor and comment feed.
//
// Components notify from their own goroutines. Their observers only append
// to an unbounded inbox, so a component never waits on the loop while the
// loop is calling into it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"biocloud/internal/collab"
	"biocloud/internal/domain"
	"biocloud/internal/domain/models"
	"biocloud/internal/domain/services"
	"biocloud/internal/formats"
	"biocloud/internal/httputil"
	"biocloud/internal/realtime"
	"biocloud/internal/viewer"

	"github.com/google/uuid"
)

// Limiter throttles comment posts per user.
type Limiter interface {
	Allow(key string) bool
}

// Deps are the shared collaborators of every session.
type Deps struct {
	Projects   services.ProjectService
	Comments   services.CommentService
	Subscriber realtime.Subscriber
	Engine     viewer.Engine
	Fetcher    viewer.Fetcher
	Catalog    *formats.Catalog
	Limiter    Limiter
	Logger     *slog.Logger
}

// Session is the server side of one client connection.
type Session struct {
	id       string
	identity models.Identity
	deps     Deps
	logger   *slog.Logger

	viewer   *viewer.Viewer
	comments *collab.CommentFeed
	notes    *collab.NotesEditor
	inbox    *inbox

	// Owned by the Run goroutine
	project   *models.Project
	viewerGen uint64
}

// New creates a session for identity. Nothing runs until Run.
func New(identity models.Identity, deps Deps) *Session {
	id := uuid.New().String()
	logger := deps.Logger.With("session_id", id)

	s := &Session{
		id:       id,
		identity: identity,
		deps:     deps,
		logger:   logger,
		viewer:   viewer.New(deps.Engine, deps.Fetcher, deps.Catalog, logger),
		comments: collab.NewCommentFeed(deps.Comments, deps.Subscriber, identity, logger),
		notes:    collab.NewNotesEditor(deps.Projects, deps.Subscriber, identity, logger),
		inbox:    newInbox(),
	}

	s.viewer.Observe(func(st viewer.Status) { s.inbox.push(st) })
	s.comments.Observe(func(snap collab.CommentsSnapshot) { s.inbox.push(snap) })
	s.notes.Observe(func(st collab.NotesState) { s.inbox.push(st) })
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id
}

// Run is the event loop. It returns when ctx ends or commands is closed,
// after closing the open project and the viewer.
func (s *Session) Run(ctx context.Context, commands <-chan Command, out chan<- Message) {
	defer s.teardown()

	s.logger.Info("session started", "user_id", s.identity.UserID)
	s.send(ctx, out, Message{Type: MsgReady, Data: ReadyPayload{
		SessionID: s.id,
		UserID:    s.identity.UserID,
		Accepted:  s.deps.Catalog.Accepted(),
	}})

	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			s.handle(ctx, cmd, out)
		case <-s.inbox.ready():
			for _, item := range s.inbox.drain() {
				s.apply(ctx, item, out)
			}
		}
	}
}

func (s *Session) teardown() {
	s.closeProject()
	s.viewer.Close()
	s.logger.Info("session ended", "user_id", s.identity.UserID)
}

func (s *Session) handle(ctx context.Context, cmd Command, out chan<- Message) {
	var err error
	switch cmd.Type {
	case CmdOpenProject:
		err = s.open(ctx, cmd.ProjectID, out)
	case CmdCloseProject:
		s.closeProject()
	case CmdPostComment:
		err = s.postComment(ctx, cmd.Content)
	case CmdDeleteComment:
		err = s.comments.Delete(ctx, cmd.CommentID)
	case CmdEditNotes:
		err = s.notes.Edit(cmd.Notes)
	case CmdSaveNotes:
		err = s.notes.Save(ctx)
	case CmdSetVisibility:
		err = s.setVisibility(ctx, cmd.IsPublic, out)
	default:
		err = domain.NewValidationError(domain.ReasonInvalid, "unknown command %q", cmd.Type)
	}

	if err != nil {
		s.sendError(ctx, out, cmd, err)
		return
	}
	s.send(ctx, out, Message{Type: MsgAck, Ref: cmd.ID, ProjectID: s.projectID()})
}

// open replaces the open project. The project is read first, so a project
// the viewer may not see leaves the current one untouched.
func (s *Session) open(ctx context.Context, id string, out chan<- Message) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.NewValidationError(domain.ReasonInvalid, "invalid project id %q", id)
	}

	project, err := s.deps.Projects.GetProject(ctx, s.identity, id)
	if err != nil {
		return err
	}

	s.closeProject()
	s.project = project
	s.send(ctx, out, Message{Type: MsgProject, ProjectID: project.ID, Data: project})

	if err := s.notes.Open(ctx, project); err != nil {
		s.closeProject()
		return err
	}
	if err := s.comments.Open(ctx, project.ID); err != nil {
		s.closeProject()
		return err
	}

	prev := s.viewerGen
	s.viewerGen = s.viewer.SetInput(viewer.Input{URL: project.FileURL, Extension: project.FileExtension})
	if s.viewerGen == prev {
		// Same file as before: no new transitions will come
		s.inbox.push(s.viewer.Status())
	}

	s.logger.Debug("project opened", "project_id", project.ID, "generation", s.viewerGen)
	return nil
}

func (s *Session) closeProject() {
	if s.project == nil {
		return
	}
	s.comments.Close()
	s.notes.Close()
	s.logger.Debug("project closed", "project_id", s.project.ID)
	s.project = nil
}

func (s *Session) postComment(ctx context.Context, content string) error {
	if s.project == nil {
		return collab.ErrNotOpen
	}
	if s.deps.Limiter != nil && !s.identity.IsAnonymous() && !s.deps.Limiter.Allow(s.identity.UserID) {
		return fmt.Errorf("post comment: %w", domain.ErrRateLimited)
	}
	_, err := s.comments.Post(ctx, content)
	return err
}

func (s *Session) setVisibility(ctx context.Context, isPublic *bool, out chan<- Message) error {
	if s.project == nil {
		return collab.ErrNotOpen
	}
	if isPublic == nil {
		return domain.NewValidationError(domain.ReasonInvalid, "is_public is required")
	}

	project, err := s.deps.Projects.SetVisibility(ctx, s.identity, s.project.ID, *isPublic)
	if err != nil {
		return err
	}
	s.project = project
	s.send(ctx, out, Message{Type: MsgProject, ProjectID: project.ID, Data: project})
	return nil
}

// apply forwards a component notification if it belongs to the open project.
func (s *Session) apply(ctx context.Context, item any, out chan<- Message) {
	if s.project == nil {
		return
	}
	projectID := s.project.ID

	switch ev := item.(type) {
	case viewer.Status:
		if ev.Generation != s.viewerGen {
			return
		}
		s.send(ctx, out, Message{Type: MsgRender, ProjectID: projectID, Data: renderPayload(ev)})

	case collab.CommentsSnapshot:
		if ev.ProjectID != projectID {
			return
		}
		s.send(ctx, out, Message{Type: MsgComments, ProjectID: projectID, Data: CommentsPayload{Comments: ev.Comments}})

	case collab.NotesState:
		if ev.ProjectID != projectID {
			return
		}
		if ev.Lost {
			msgType := MsgAccessRevoked
			if ev.Deleted {
				msgType = MsgProjectDeleted
			}
			s.logger.Info("open project lost", "project_id", projectID, "deleted", ev.Deleted)
			s.closeProject()
			s.send(ctx, out, Message{Type: msgType, ProjectID: projectID})
			return
		}
		if ev.Project != nil {
			s.project = ev.Project
		}
		s.send(ctx, out, Message{Type: MsgNotes, ProjectID: projectID, Data: notesPayload(ev)})
	}
}

func (s *Session) projectID() string {
	if s.project == nil {
		return ""
	}
	return s.project.ID
}

func (s *Session) send(ctx context.Context, out chan<- Message, msg Message) {
	select {
	case out <- msg:
	case <-ctx.Done():
	}
}

func (s *Session) sendError(ctx context.Context, out chan<- Message, cmd Command, err error) {
	status := httputil.StatusFromError(err)
	if errors.Is(err, collab.ErrNotOpen) {
		status = http.StatusConflict
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("command failed", "command", cmd.Type, "error", err)
	} else {
		s.logger.Debug("command rejected", "command", cmd.Type, "status", status, "error", err)
	}

	s.send(ctx, out, Message{
		Type:      MsgError,
		Ref:       cmd.ID,
		ProjectID: s.projectID(),
		Data:      ErrorPayload{Status: status, Message: httputil.PublicMessage(status, err)},
	})
}

// inbox is an unbounded queue with a level-triggered ready signal.
type inbox struct {
	mu     sync.Mutex
	items  []any
	signal chan struct{}
}

func newInbox() *inbox {
	return &inbox{signal: make(chan struct{}, 1)}
}

func (b *inbox) push(item any) {
	b.mu.Lock()
	b.items = append(b.items, item)
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *inbox) ready() <-chan struct{} {
	return b.signal
}

func (b *inbox) drain() []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	return items
}
