// Package server exposes the WebSocket endpoint the browser clients talk
// to, plus health and metrics endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/digitorchestra/server/internal/broadcast"
	"github.com/digitorchestra/server/internal/config"
	"github.com/digitorchestra/server/internal/dispatch"
	"github.com/digitorchestra/server/internal/show"
)

type Server struct {
	echo       *echo.Echo
	config     *config.Config
	state      *show.State
	hub        *broadcast.Hub
	dispatcher *dispatch.Dispatcher
	limits     *connectionLimits
}

func NewServer(cfg *config.Config, state *show.State, hub *broadcast.Hub, dispatcher *dispatch.Dispatcher) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	srv := &Server{
		echo:       e,
		config:     cfg,
		state:      state,
		hub:        hub,
		dispatcher: dispatcher,
		limits:     newConnectionLimits(cfg.MaxConnections, cfg.MaxConnectionsPerIP, cfg.ConnectRatePerSec, cfg.ConnectBurst),
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Server starting", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
