// Package server exposes the HTTP surface: the per-channel WebSocket
// endpoints, health probes and the metrics endpoint.
package server

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mytechsonamy/mytrader-sub018/internal/broadcast"
	"github.com/mytechsonamy/mytrader-sub018/internal/config"
)

type Server struct {
	echo     *echo.Echo
	config   *config.Config
	sessions []*broadcast.ChannelSession
	limits   *ConnectionLimits
	clock    clockwork.Clock
}

// NewServer builds the echo server around the given channel sessions. One
// WebSocket route is registered per session, at /ws/<channel>.
func NewServer(cfg *config.Config, sessions []*broadcast.ChannelSession, limits *ConnectionLimits, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	srv := &Server{
		echo:     e,
		config:   cfg,
		sessions: sessions,
		limits:   limits,
		clock:    clock,
	}
	srv.registerRoutes()
	return srv
}

// Start begins serving on the configured port. Blocks until shutdown.
func (s *Server) Start() error {
	return s.echo.Start(":" + s.config.Port)
}

// Shutdown closes every live WebSocket with a close frame, then stops the
// HTTP server. The explicit close pass is required: http.Server.Shutdown does
// not touch hijacked connections.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, session := range s.sessions {
		session.Shutdown("server shutting down")
	}
	return s.echo.Shutdown(ctx)
}
