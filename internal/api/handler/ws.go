package handler

import (
	"net/http"

	"civicdesk/backend/internal/events"
	"civicdesk/backend/internal/lifecycle"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards are served from other origins; the bearer token is the guard.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades the connection and streams the events the caller may see.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	actor, found := lifecycle.ActorFromContext(c.Request.Context())
	if !found {
		h.writeError(c, lifecycle.ErrUnauthenticated)
		return
	}
	if h.Hub == nil {
		fail(c, http.StatusServiceUnavailable, "unavailable", "live events are disabled")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.Logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	client := events.NewWebSocketClient(h.Hub, conn, actor, h.Logger)
	if err := client.Run(); err != nil {
		h.Logger.Warn("websocket client rejected", zap.Error(err))
	}
}
