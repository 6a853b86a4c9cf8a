package session

import (
	"biocloud/internal/collab"
	"biocloud/internal/domain/models"
	"biocloud/internal/formats"
	"biocloud/internal/viewer"
)

// Command types sent by the client.
const (
	CmdOpenProject   = "open_project"
	CmdCloseProject  = "close_project"
	CmdPostComment   = "post_comment"
	CmdDeleteComment = "delete_comment"
	CmdEditNotes     = "edit_notes"
	CmdSaveNotes     = "save_notes"
	CmdSetVisibility = "set_visibility"
)

// Message types pushed to the client.
const (
	MsgReady          = "ready"
	MsgProject        = "project"
	MsgRender         = "render"
	MsgNotes          = "notes"
	MsgComments       = "comments"
	MsgAccessRevoked  = "access_revoked"
	MsgProjectDeleted = "project_deleted"
	MsgAck            = "ack"
	MsgError          = "error"
)

// Command is one client request. ID is echoed as Ref on the ack or error.
type Command struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	CommentID string `json:"comment_id,omitempty"`
	Content   string `json:"content,omitempty"`
	Notes     string `json:"notes,omitempty"`
	IsPublic  *bool  `json:"is_public,omitempty"`
}

// Message is one server push.
type Message struct {
	Type      string `json:"type"`
	Ref       string `json:"ref,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// ReadyPayload greets a new connection.
type ReadyPayload struct {
	SessionID string   `json:"session_id"`
	UserID    string   `json:"user_id,omitempty"`
	Accepted  []string `json:"accepted_formats"`
}

// RenderPayload mirrors a viewer transition. Scene is set once rendered.
type RenderPayload struct {
	State      viewer.State       `json:"state"`
	Generation uint64             `json:"generation"`
	StyleClass formats.StyleClass `json:"style_class,omitempty"`
	Scene      any                `json:"scene,omitempty"`
	Error      *RenderFailure     `json:"error,omitempty"`
}

// RenderFailure explains an ERROR state. Status is the upstream HTTP status
// of a failed content fetch, zero otherwise.
type RenderFailure struct {
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
}

// NotesPayload is the notes field as this client sees it.
type NotesPayload struct {
	Notes    string `json:"notes"`
	Dirty    bool   `json:"dirty"`
	Editable bool   `json:"editable"`
	IsPublic bool   `json:"is_public"`
}

// CommentsPayload is the full ordered comment list.
type CommentsPayload struct {
	Comments []models.Comment `json:"comments"`
}

// ErrorPayload reports a failed command with its HTTP-equivalent status.
type ErrorPayload struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func renderPayload(st viewer.Status) RenderPayload {
	p := RenderPayload{
		State:      st.State,
		Generation: st.Generation,
	}
	if st.State == viewer.StateRendered {
		p.StyleClass = st.Style.Class
		p.Scene = st.Frame
	}
	if st.Err != nil {
		p.Error = &RenderFailure{Status: st.Err.Status, Message: st.Err.Message}
	}
	return p
}

func notesPayload(st collab.NotesState) NotesPayload {
	p := NotesPayload{
		Notes:    st.Notes,
		Dirty:    st.Dirty,
		Editable: st.Editable,
	}
	if st.Project != nil {
		p.IsPublic = st.Project.IsPublic
	}
	return p
}
