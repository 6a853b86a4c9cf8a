package handler

import (
	"log/slog"
	"net/http"

	"biocloud/internal/domain/services"
	"biocloud/internal/httputil"
)

// CommentHandler handles comment HTTP requests
type CommentHandler struct {
	commentService services.CommentService
	logger         *slog.Logger
}

// NewCommentHandler creates a new comment handler
func NewCommentHandler(commentService services.CommentService, logger *slog.Logger) *CommentHandler {
	return &CommentHandler{
		commentService: commentService,
		logger:         logger,
	}
}

// ListComments returns a project's comments, oldest first
// GET /api/projects/{id}/comments
func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	projectID, ok := PathParam(w, r, "id", "Project ID")
	if !ok {
		return
	}

	comments, err := h.commentService.ListComments(r.Context(), httputil.GetIdentity(r), projectID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, comments)
}

// PostComment appends a comment
// POST /api/projects/{id}/comments
func (h *CommentHandler) PostComment(w http.ResponseWriter, r *http.Request) {
	projectID, ok := PathParam(w, r, "id", "Project ID")
	if !ok {
		return
	}

	var req services.PostCommentRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	comment, err := h.commentService.PostComment(r.Context(), httputil.GetIdentity(r), projectID, req.Content)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, comment)
}

// DeleteComment removes a comment
// DELETE /api/comments/{id}
func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	id, ok := PathParam(w, r, "id", "Comment ID")
	if !ok {
		return
	}

	if err := h.commentService.DeleteComment(r.Context(), httputil.GetIdentity(r), id); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
