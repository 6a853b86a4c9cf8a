// Package servicetest provides in-memory repositories and an object store
// with call counting and failure injection, for tests of the service,
// collaboration, session and handler layers.
//
// The fakes apply the same visibility predicate as the Postgres queries and,
// when a publisher is attached, emit the change events the database triggers
// would.
package servicetest

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"biocloud/internal/domain"
	"biocloud/internal/domain/models"
	"biocloud/internal/domain/repositories"

	"github.com/google/uuid"
)

// Publisher receives the change events a write produces.
type Publisher interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

// DB is a shared in-memory relational store.
type DB struct {
	mu        sync.Mutex
	projects  map[string]*models.Project
	comments  map[string]*models.Comment
	profiles  map[string]*models.Profile
	views     map[string]int
	calls     map[string]int
	failures  map[string]error
	clock     time.Time
	publisher Publisher
}

// NewDB creates an empty store. Timestamps advance one millisecond per write
// so ordering is deterministic.
func NewDB() *DB {
	return &DB{
		projects: make(map[string]*models.Project),
		comments: make(map[string]*models.Comment),
		profiles: make(map[string]*models.Profile),
		views:    make(map[string]int),
		calls:    make(map[string]int),
		failures: make(map[string]error),
		clock:    time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

// Attach makes writes publish change events.
func (db *DB) Attach(p Publisher) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.publisher = p
}

// FailOn makes the named operation (e.g. "projects.Create") return err.
func (db *DB) FailOn(op string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failures[op] = err
}

// Calls reports how often an operation was invoked.
func (db *DB) Calls(op string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.calls[op]
}

// Writes sums the calls of every mutating project and comment operation.
func (db *DB) Writes() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	total := 0
	for _, op := range []string{
		"projects.Create", "projects.UpdateVisibility", "projects.UpdateNotes",
		"projects.Delete", "projects.RecordView", "comments.Create", "comments.Delete",
	} {
		total += db.calls[op]
	}
	return total
}

// Views reports the recorded views of a project.
func (db *DB) Views(projectID string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.views[projectID]
}

// enter counts a call and returns the injected failure, if any. Caller holds mu.
func (db *DB) enter(op string) error {
	db.calls[op]++
	return db.failures[op]
}

func (db *DB) tick() time.Time {
	db.clock = db.clock.Add(time.Millisecond)
	return db.clock
}

func (db *DB) visible(p *models.Project, viewer models.Identity) bool {
	return p.IsPublic || (!viewer.IsAnonymous() && p.OwnerID == viewer.UserID)
}

// emit publishes a row change on every topic it belongs to. Caller must not hold mu.
func (db *DB) emit(ctx context.Context, table string, typ models.ChangeType, newRow, oldRow any) {
	db.mu.Lock()
	p := db.publisher
	db.mu.Unlock()
	if p == nil {
		return
	}

	event := models.ChangeEvent{
		ID:         uuid.NewString(),
		Table:      table,
		Type:       typ,
		CommitTime: time.Now(),
	}
	if newRow != nil {
		event.New, _ = json.Marshal(newRow)
	}
	if oldRow != nil {
		event.Old, _ = json.Marshal(oldRow)
	}
	for _, topic := range event.Topics() {
		event.Topic = topic
		_ = p.Publish(ctx, event)
	}
}

// Projects returns the project repository view of the store.
func (db *DB) Projects() *ProjectRepo { return &ProjectRepo{db: db} }

// Comments returns the comment repository view of the store.
func (db *DB) Comments() *CommentRepo { return &CommentRepo{db: db} }

// Profiles returns the profile repository view of the store.
func (db *DB) Profiles() *ProfileRepo { return &ProfileRepo{db: db} }

// TxManager runs functions directly; the fakes have no rollback.
type TxManager struct{}

func (TxManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return fn(ctx)
}

type projectRow struct {
	ID       string `json:"id"`
	OwnerID  string `json:"owner_id"`
	IsPublic bool   `json:"is_public"`
}

func rowOf(p *models.Project) projectRow {
	return projectRow{ID: p.ID, OwnerID: p.OwnerID, IsPublic: p.IsPublic}
}

// ProjectRepo implements repositories.ProjectRepository.
type ProjectRepo struct{ db *DB }

var _ repositories.ProjectRepository = (*ProjectRepo)(nil)

func (r *ProjectRepo) Create(ctx context.Context, project *models.Project) error {
	db := r.db
	db.mu.Lock()
	if err := db.enter("projects.Create"); err != nil {
		db.mu.Unlock()
		return err
	}
	project.ID = uuid.NewString()
	project.CreatedAt = db.tick()
	project.UpdatedAt = project.CreatedAt
	stored := *project
	db.projects[project.ID] = &stored
	row := rowOf(&stored)
	db.mu.Unlock()

	db.emit(ctx, models.TableProjects, models.ChangeInsert, row, nil)
	return nil
}

func (r *ProjectRepo) GetVisible(ctx context.Context, id string, viewer models.Identity) (*models.Project, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.enter("projects.GetVisible"); err != nil {
		return nil, err
	}

	p, ok := db.projects[id]
	if !ok || !db.visible(p, viewer) {
		return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	out := *p
	out.ViewCount = db.views[id]
	return &out, nil
}

func (r *ProjectRepo) ListByOwner(ctx context.Context, ownerID string) ([]models.Project, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.enter("projects.ListByOwner"); err != nil {
		return nil, err
	}

	projects := []models.Project{}
	for _, p := range db.projects {
		if p.OwnerID == ownerID {
			out := *p
			out.ViewCount = db.views[p.ID]
			projects = append(projects, out)
		}
	}
	slices.SortFunc(projects, func(a, b models.Project) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.ID > b.ID {
			return -1
		}
		return 1
	})
	return projects, nil
}

// owned returns the project if it exists and belongs to ownerID. Caller holds mu.
func (r *ProjectRepo) owned(id, ownerID string) (*models.Project, error) {
	p, ok := r.db.projects[id]
	if !ok || p.OwnerID != ownerID {
		return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (r *ProjectRepo) UpdateVisibility(ctx context.Context, id, ownerID string, isPublic bool) error {
	db := r.db
	db.mu.Lock()
	if err := db.enter("projects.UpdateVisibility"); err != nil {
		db.mu.Unlock()
		return err
	}
	p, err := r.owned(id, ownerID)
	if err != nil {
		db.mu.Unlock()
		return err
	}
	old := rowOf(p)
	p.IsPublic = isPublic
	p.UpdatedAt = db.tick()
	row := rowOf(p)
	db.mu.Unlock()

	db.emit(ctx, models.TableProjects, models.ChangeUpdate, row, old)
	return nil
}

func (r *ProjectRepo) UpdateNotes(ctx context.Context, id, ownerID, notes string) (time.Time, error) {
	db := r.db
	db.mu.Lock()
	if err := db.enter("projects.UpdateNotes"); err != nil {
		db.mu.Unlock()
		return time.Time{}, err
	}
	p, err := r.owned(id, ownerID)
	if err != nil {
		db.mu.Unlock()
		return time.Time{}, err
	}
	p.Notes = notes
	p.UpdatedAt = db.tick()
	updatedAt := p.UpdatedAt
	row := rowOf(p)
	db.mu.Unlock()

	db.emit(ctx, models.TableProjects, models.ChangeUpdate, row, row)
	return updatedAt, nil
}

func (r *ProjectRepo) Delete(ctx context.Context, id, ownerID string) error {
	db := r.db
	db.mu.Lock()
	if err := db.enter("projects.Delete"); err != nil {
		db.mu.Unlock()
		return err
	}
	p, err := r.owned(id, ownerID)
	if err != nil {
		db.mu.Unlock()
		return err
	}
	old := rowOf(p)
	delete(db.projects, id)
	delete(db.views, id)
	for cid, c := range db.comments {
		if c.ProjectID == id {
			delete(db.comments, cid)
		}
	}
	db.mu.Unlock()

	db.emit(ctx, models.TableProjects, models.ChangeDelete, nil, old)
	return nil
}

func (r *ProjectRepo) RecordView(ctx context.Context, projectID string, viewer models.Identity) error {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.enter("projects.RecordView"); err != nil {
		return err
	}
	if _, ok := db.projects[projectID]; !ok {
		return fmt.Errorf("project %s: %w", projectID, domain.ErrNotFound)
	}
	db.views[projectID]++
	return nil
}

type commentRow struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
}

// CommentRepo implements repositories.CommentRepository.
type CommentRepo struct{ db *DB }

var _ repositories.CommentRepository = (*CommentRepo)(nil)

func (r *CommentRepo) ListVisible(ctx context.Context, projectID string, viewer models.Identity) ([]models.Comment, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.enter("comments.ListVisible"); err != nil {
		return nil, err
	}

	comments := []models.Comment{}
	p, ok := db.projects[projectID]
	if !ok || !db.visible(p, viewer) {
		return comments, nil
	}
	for _, c := range db.comments {
		if c.ProjectID == projectID {
			out := *c
			out.Author = models.NewCommentAuthor(c.UserID, db.profiles[c.UserID])
			comments = append(comments, out)
		}
	}
	slices.SortFunc(comments, func(a, b models.Comment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		return 1
	})
	return comments, nil
}

func (r *CommentRepo) Create(ctx context.Context, comment *models.Comment) error {
	db := r.db
	db.mu.Lock()
	if err := db.enter("comments.Create"); err != nil {
		db.mu.Unlock()
		return err
	}
	p, ok := db.projects[comment.ProjectID]
	if !ok || !db.visible(p, models.Identity{UserID: comment.UserID}) {
		db.mu.Unlock()
		return fmt.Errorf("project %s: %w", comment.ProjectID, domain.ErrNotFound)
	}
	comment.ID = uuid.NewString()
	comment.CreatedAt = db.tick()
	stored := *comment
	db.comments[comment.ID] = &stored
	row := commentRow{ID: stored.ID, ProjectID: stored.ProjectID, UserID: stored.UserID}
	db.mu.Unlock()

	db.emit(ctx, models.TableComments, models.ChangeInsert, row, nil)
	return nil
}

func (r *CommentRepo) GetRef(ctx context.Context, id string, viewer models.Identity) (*repositories.CommentRef, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.enter("comments.GetRef"); err != nil {
		return nil, err
	}

	c, ok := db.comments[id]
	if !ok {
		return nil, fmt.Errorf("comment %s: %w", id, domain.ErrNotFound)
	}
	p := db.projects[c.ProjectID]
	if p == nil || !db.visible(p, viewer) {
		return nil, fmt.Errorf("comment %s: %w", id, domain.ErrNotFound)
	}
	return &repositories.CommentRef{
		ID:             c.ID,
		ProjectID:      c.ProjectID,
		AuthorID:       c.UserID,
		ProjectOwnerID: p.OwnerID,
	}, nil
}

func (r *CommentRepo) Delete(ctx context.Context, id string, actor models.Identity) error {
	db := r.db
	db.mu.Lock()
	if err := db.enter("comments.Delete"); err != nil {
		db.mu.Unlock()
		return err
	}
	c, ok := db.comments[id]
	if !ok || actor.IsAnonymous() {
		db.mu.Unlock()
		return fmt.Errorf("comment %s: %w", id, domain.ErrNotFound)
	}
	p := db.projects[c.ProjectID]
	if p == nil || !db.visible(p, actor) || (c.UserID != actor.UserID && p.OwnerID != actor.UserID) {
		db.mu.Unlock()
		return fmt.Errorf("comment %s: %w", id, domain.ErrNotFound)
	}
	delete(db.comments, id)
	row := commentRow{ID: c.ID, ProjectID: c.ProjectID, UserID: c.UserID}
	db.mu.Unlock()

	db.emit(ctx, models.TableComments, models.ChangeDelete, nil, row)
	return nil
}

// ProfileRepo implements repositories.ProfileRepository.
type ProfileRepo struct{ db *DB }

var _ repositories.ProfileRepository = (*ProfileRepo)(nil)

func (r *ProfileRepo) Upsert(ctx context.Context, profile *models.Profile) error {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.enter("profiles.Upsert"); err != nil {
		return err
	}

	existing, ok := db.profiles[profile.ID]
	if !ok {
		stored := *profile
		stored.CreatedAt = db.tick()
		db.profiles[profile.ID] = &stored
		profile.CreatedAt = stored.CreatedAt
		return nil
	}
	if profile.Email != "" {
		existing.Email = profile.Email
	}
	if profile.FullName != "" {
		existing.FullName = profile.FullName
	}
	if profile.AvatarURL != "" {
		existing.AvatarURL = profile.AvatarURL
	}
	profile.CreatedAt = existing.CreatedAt
	return nil
}

func (r *ProfileRepo) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.enter("profiles.GetByID"); err != nil {
		return nil, err
	}

	p, ok := db.profiles[id]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", id, domain.ErrNotFound)
	}
	out := *p
	return &out, nil
}
