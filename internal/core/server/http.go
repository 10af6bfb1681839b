// Package server provides HTTP server lifecycle management.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/cohortlab/cohort/internal/api"
	"github.com/cohortlab/cohort/internal/core/config"
)

// HTTPServer manages the fiber application lifecycle.
type HTTPServer struct {
	app    *fiber.App
	config *config.ServerConfig
}

// NewHTTPServer configures routes and middleware.
func NewHTTPServer(cfg *config.ServerConfig, handler *api.Handler) (*HTTPServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})
	app.Use(recover.New())

	api.Register(app, handler)

	return &HTTPServer{app: app, config: cfg}, nil
}

// App exposes the fiber application for in-process testing.
func (s *HTTPServer) App() *fiber.App {
	return s.app
}

// Start binds the listener and serves requests.
// Blocks until Shutdown is called.
func (s *HTTPServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server within the configured timeout.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	stopped := make(chan error, 1)
	go func() {
		stopped <- s.app.ShutdownWithTimeout(timeout)
	}()

	select {
	case err := <-stopped:
		return err
	case <-ctx.Done():
		return fmt.Errorf("shutdown cancelled by context: %w", ctx.Err())
	}
}
