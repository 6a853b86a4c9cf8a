package models

import (
	"encoding/json"
	"time"
)

// ChangeType is the kind of committed row change.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Logical table names carried by change events, independent of prefix.
const (
	TableProjects = "projects"
	TableComments = "comments"
)

// ChangeEvent is one committed row change delivered on a topic.
// New is set for INSERT/UPDATE, Old for UPDATE/DELETE. Large text columns
// (notes, comment content) are never carried; consumers re-fetch.
type ChangeEvent struct {
	ID         string          `json:"id"`
	Table      string          `json:"table"`
	Type       ChangeType      `json:"type"`
	Topic      string          `json:"topic"`
	New        json.RawMessage `json:"new,omitempty"`
	Old        json.RawMessage `json:"old,omitempty"`
	CommitTime time.Time       `json:"commit_time"`
}

// ChangedRow is the subset of row columns used for routing and de-duplication.
type ChangedRow struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id,omitempty"`
	OwnerID   string `json:"owner_id,omitempty"`
	IsPublic  *bool  `json:"is_public,omitempty"`
}

// Row decodes the most recent row image (New, else Old).
func (e ChangeEvent) Row() (ChangedRow, error) {
	raw := e.New
	if len(raw) == 0 {
		raw = e.Old
	}
	var row ChangedRow
	if len(raw) == 0 {
		return row, nil
	}
	err := json.Unmarshal(raw, &row)
	return row, err
}

// OldRow decodes the previous row image, if any.
func (e ChangeEvent) OldRow() (ChangedRow, error) {
	var row ChangedRow
	if len(e.Old) == 0 {
		return row, nil
	}
	err := json.Unmarshal(e.Old, &row)
	return row, err
}

// Topics lists every topic the event belongs to.
func (e ChangeEvent) Topics() []string {
	row, err := e.Row()
	if err != nil || row.ID == "" {
		return nil
	}

	switch e.Table {
	case TableComments:
		if row.ProjectID == "" {
			return nil
		}
		return []string{CommentsTopic(row.ProjectID)}
	case TableProjects:
		topics := []string{ProjectTopic(row.ID)}
		if row.OwnerID != "" {
			topics = append(topics, OwnerProjectsTopic(row.OwnerID))
		}
		return topics
	default:
		return nil
	}
}

// CommentsTopic carries comment inserts and deletes of one project.
func CommentsTopic(projectID string) string {
	return "comments:" + projectID
}

// ProjectTopic carries updates and deletion of one project row.
func ProjectTopic(projectID string) string {
	return "project:" + projectID
}

// OwnerProjectsTopic carries every project change of one owner (dashboard feed).
func OwnerProjectsTopic(ownerID string) string {
	return "projects:owner:" + ownerID
}
