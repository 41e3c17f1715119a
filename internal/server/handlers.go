package server

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/digitorchestra/server/internal/metrics"
)

// Browser clients connect from arbitrary origins (phones on venue wifi),
// so origin checking is disabled like the original CORS-any policy.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()

	admitted, reason := s.limits.Acquire(ip)
	if !admitted {
		metrics.ConnectionsRejectedTotal.WithLabelValues(string(reason)).Inc()
		slog.Warn("Rejecting connection", "ip", ip, "reason", reason)
		return c.String(http.StatusServiceUnavailable, "too many connections")
	}
	defer s.limits.Release(ip)

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "ip", ip, "error", err)
		return nil
	}

	id := uuid.New()
	if err := s.hub.Register(id, conn); err != nil {
		slog.Error("Failed to register with hub", "connection_id", id.String(), "error", err)
		conn.Close()
		return nil
	}

	s.dispatcher.HandleConnect(id)

	// Read pump; blocks until the client disconnects. All writes go
	// through the hub's writer goroutine, never through this one.
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		s.dispatcher.HandleMessage(id, raw)
	}

	s.dispatcher.HandleDisconnect(id)
	s.hub.Unregister(id)
	return nil
}
