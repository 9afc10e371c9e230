package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/uwezert/verification/internal/platform/timeouts"
)

// Server hosts the verification HTTP API.
type Server struct {
	httpAddr   string
	httpServer *http.Server
}

// NewServer wraps the handler in an http.Server with bounded header reads.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		httpAddr: addr,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
	}
}

// ListenAndServe serves until the context is canceled, then drains in-flight
// requests within the shutdown budget.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return errors.New("verification server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("verification api listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
