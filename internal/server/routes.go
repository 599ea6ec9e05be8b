package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	s.E.POST("/messages", s.messageHandler.SendMessage)
	s.E.GET("/messages", s.messageHandler.ViewMessages)

	s.E.GET("/ws", s.gateway.Handler())

	s.E.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
}
