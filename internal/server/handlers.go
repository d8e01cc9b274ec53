package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/AIGun-Labs/aigun-backend/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Clients connect from arbitrary frontends
	},
}

// handleWebSocket admits, upgrades, and serves one intelligence-stream
// connection. It blocks for the lifetime of the session.
func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()

	ok, reason := s.limits.Acquire(ip)
	if !ok {
		metrics.GatewayRejectedConnectionsTotal.WithLabelValues(string(reason)).Inc()
		slog.Warn("Connection rejected", "ip", ip, "reason", reason)
		return c.String(http.StatusServiceUnavailable, "connection limit reached")
	}
	defer s.limits.Release(ip)

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket", "ip", ip, "error", err)
		return nil
	}

	s.room.Serve(c.Request().Context(), conn, c.Request().Header)
	return nil
}
