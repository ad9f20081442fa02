package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mytechsonamy/mytrader-sub018/internal/broadcast"
)

func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadiness reports per-channel health. Any channel with throttled
// connections marks the whole instance degraded (503) so operators notice
// before clients do.
func (s *Server) handleReadiness(c echo.Context) error {
	channels := make(map[string]broadcast.HealthStatus, len(s.sessions))
	healthy := true
	for _, session := range s.sessions {
		status := session.HealthStatus()
		channels[session.Channel()] = status
		if !status.IsHealthy {
			healthy = false
		}
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]any{
		"healthy":  healthy,
		"channels": channels,
	})
}
