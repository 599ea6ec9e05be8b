package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Start runs the HTTP server and blocks until an interrupt or terminate
// signal arrives, then shuts everything down: HTTP first so no new
// connections arrive, then the broker (cancelling every active consumer),
// then the bus and the database. Each step is best-effort.
func (s *Server) Start() {
	go func() {
		if err := s.E.Start(s.Cfg.Addr); err != nil && err != http.ErrServerClosed {
			s.E.Logger.Fatalf("shutting down the server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.E.Shutdown(ctx); err != nil {
		s.E.Logger.Error(err)
	}
	s.broker.Close()
	if err := s.bus.Close(); err != nil {
		s.E.Logger.Error(err)
	}
	if err := s.DB.Close(ctx); err != nil {
		s.E.Logger.Error(err)
	}
}
