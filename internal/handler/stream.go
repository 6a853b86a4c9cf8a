package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"biocloud/internal/domain"
	"biocloud/internal/domain/models"
	"biocloud/internal/handler/sse"
	"biocloud/internal/httputil"
	"biocloud/internal/realtime"
)

// SSE event names on the dashboard stream
const (
	EventProjectCreated = "project_created"
	EventProjectUpdated = "project_updated"
	EventProjectDeleted = "project_deleted"
)

// ProjectStreamHandler streams the caller's project changes so a dashboard
// can refresh its list without polling
type ProjectStreamHandler struct {
	subscriber realtime.Subscriber
	config     *sse.Config
	logger     *slog.Logger
}

// NewProjectStreamHandler creates a new dashboard stream handler
func NewProjectStreamHandler(subscriber realtime.Subscriber, config *sse.Config, logger *slog.Logger) *ProjectStreamHandler {
	if config == nil {
		config = sse.DefaultConfig()
	}
	return &ProjectStreamHandler{
		subscriber: subscriber,
		config:     config,
		logger:     logger,
	}
}

// projectChange is the payload of one stream event. Clients re-fetch the
// list; the row carries only routing columns.
type projectChange struct {
	ID         string `json:"id"`
	IsPublic   *bool  `json:"is_public,omitempty"`
	CommitTime string `json:"commit_time"`
}

// StreamProjects handles GET /api/projects/stream
func (h *ProjectStreamHandler) StreamProjects(w http.ResponseWriter, r *http.Request) {
	identity := httputil.GetIdentity(r)
	if identity.IsAnonymous() {
		handleError(w, domain.ErrUnauthorized)
		return
	}

	ctx := r.Context()
	sub, err := h.subscriber.Subscribe(ctx, models.OwnerProjectsTopic(identity.UserID))
	if err != nil {
		h.logger.Error("project stream subscribe failed", "user_id", identity.UserID, "error", err)
		httputil.RespondError(w, http.StatusServiceUnavailable, "realtime feed unavailable")
		return
	}
	defer sub.Close()

	stream, err := sse.NewWriter(w, h.config.WriteTimeout)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	h.logger.Info("project stream opened", "user_id", identity.UserID)
	defer h.logger.Info("project stream closed", "user_id", identity.UserID)

	keepAlive := sse.NewTickerKeepAlive(h.config.KeepAliveInterval)
	stopped := keepAlive.Start(stream, h.logger)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopped:
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := h.writeChange(stream, event); err != nil {
				h.logger.Debug("project stream write failed", "error", err)
				return
			}
		}
	}
}

func (h *ProjectStreamHandler) writeChange(stream *sse.Writer, event models.ChangeEvent) error {
	row, err := event.Row()
	if err != nil || row.ID == "" {
		h.logger.Warn("dropping undecodable project change", "event_id", event.ID, "error", err)
		return nil
	}

	var name string
	switch event.Type {
	case models.ChangeInsert:
		name = EventProjectCreated
	case models.ChangeUpdate:
		name = EventProjectUpdated
	case models.ChangeDelete:
		name = EventProjectDeleted
	default:
		return nil
	}

	data, err := json.Marshal(projectChange{
		ID:         row.ID,
		IsPublic:   row.IsPublic,
		CommitTime: event.CommitTime.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		return err
	}
	return stream.WriteEvent(event.ID, name, data)
}
