package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Start runs the dispatcher and the HTTP server, then blocks until a
// shutdown signal arrives.
func (s *Server) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Dispatcher.Start(ctx); err != nil {
		s.E.Logger.Fatalf("starting dispatcher: %v", err)
	}

	go func() {
		if err := s.E.Start(s.Cfg.Addr); err != nil && err != http.ErrServerClosed {
			s.E.Logger.Fatalf("shutting down the server: %v", err)
		}
	}()

	waitForShutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cancel()
	s.Registry.CloseAll()
	s.Bus.Close()
	s.DB.Close(shutdownCtx)
	if err := s.E.Shutdown(shutdownCtx); err != nil {
		s.E.Logger.Fatal(err)
	}
}

// waitForShutdown blocks until an interrupt or terminate signal is
// received.
func waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
}
