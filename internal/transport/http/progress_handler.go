package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/mullenkamp/nz-allo-usage-tools/internal/middleware"
	ws "github.com/mullenkamp/nz-allo-usage-tools/internal/websocket"
)

// ProgressHandler upgrades clients onto the progress hub
type ProgressHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewProgressHandler creates a handler accepting same-host origins and the
// listed extra origins
func NewProgressHandler(hub *ws.Hub, allowedOrigins []string, logger *slog.Logger) *ProgressHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &ProgressHandler{
		hub:    hub,
		logger: logger.With(slog.String("handler", "progress")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(allowedOrigins, origin) {
				return true
			}
			if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
				return true
			}
			h.logger.WarnContext(r.Context(), "websocket origin not allowed", slog.String("origin", origin))
			return false
		},
	}
	return h
}

// ServeWS handles GET /api/v1/ws
func (h *ProgressHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the error response
		h.logger.WarnContext(ctx, "websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := ws.NewClient(h.hub, conn, middleware.GetRequestID(ctx), h.logger)
	if !h.hub.Register(client) {
		_ = conn.Close()
		return
	}
	h.logger.InfoContext(ctx, "websocket client connected",
		slog.String("client_id", client.ID()),
		slog.String("remote_addr", r.RemoteAddr),
	)
	go client.WritePump()
	go client.ReadPump()
}
