// Package httpx provides the HTTP server, JSON helpers and middleware shared by
// the loadcast binaries.
package httpx

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server is an http.Server with graceful shutdown. It serves HTTPS when
// built with a TLS config.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer creates a server listening on addr. tlsConfig may be nil for
// plain HTTP; otherwise its Certificates must be populated.
func NewServer(addr string, handler http.Handler, tlsConfig *tls.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// TLS reports whether the server terminates TLS.
func (s *Server) TLS() bool {
	return s.srv.TLSConfig != nil
}

// Start serves until Stop is called. A clean shutdown returns nil.
func (s *Server) Start() error {
	var err error
	if s.TLS() {
		s.logger.Info("starting HTTPS server", "addr", s.srv.Addr)
		err = s.srv.ListenAndServeTLS("", "")
	} else {
		s.logger.Info("starting HTTP server", "addr", s.srv.Addr)
		err = s.srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop waits up to timeout for in-flight requests before closing.
func (s *Server) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("stopping HTTP server", "timeout", timeout)
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("HTTP server stopped gracefully")
	return nil
}
