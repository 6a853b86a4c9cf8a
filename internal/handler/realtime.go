package handler

import (
	"log/slog"
	"net/http"
	"slices"

	"biocloud/internal/httputil"
	"biocloud/internal/session"

	"github.com/gorilla/websocket"
)

// RealtimeHandler upgrades to a WebSocket and runs a client session on it
type RealtimeHandler struct {
	deps     session.Deps
	settings *session.Settings
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewRealtimeHandler creates a realtime handler accepting browser origins
// listed in allowedOrigins. A "*" entry accepts any origin.
func NewRealtimeHandler(deps session.Deps, settings *session.Settings, allowedOrigins []string, logger *slog.Logger) *RealtimeHandler {
	if settings == nil {
		settings = session.DefaultSettings()
	}
	return &RealtimeHandler{
		deps:     deps,
		settings: settings,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				return slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
		logger: logger,
	}
}

// Connect handles GET /api/realtime
func (h *RealtimeHandler) Connect(w http.ResponseWriter, r *http.Request) {
	identity := httputil.GetIdentity(r)

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	s := session.New(identity, h.deps)
	h.logger.Info("realtime connected",
		"session_id", s.ID(),
		"user_id", identity.UserID,
		"remote_addr", r.RemoteAddr,
	)

	// The connection is hijacked, so r's context only ends through the
	// server's BaseContext on shutdown.
	session.Serve(r.Context(), ws, s, h.settings)
}
