package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/digitorchestra/server/internal/version"
)

func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"build":  version.Get(),
	})
}

func (s *Server) handleReadiness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":       "ok",
		"connections":  s.limits.Current(),
		"participants": s.state.ParticipantCount(),
		"hasConductor": s.state.HasConductor(),
	})
}
