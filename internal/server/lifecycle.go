package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"murmur/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

// Cleanup releases one resource during shutdown.
type Cleanup func(ctx context.Context) error

// Serve runs app on ln until ctx is done or the listener fails. It then stops
// the HTTP server and runs each cleanup in order under a shared grace
// deadline. Serve returns only after every cleanup has returned.
func Serve(ctx context.Context, app *fiber.App, ln net.Listener, grace time.Duration, cleanups ...Cleanup) error {
	serveErr := make(chan error, 1)
	go func() { serveErr <- app.Listener(ln) }()

	var errs []error
	listening := true
	select {
	case err := <-serveErr:
		listening = false
		if err != nil {
			errs = append(errs, fmt.Errorf("listen: %w", err))
		}
	case <-ctx.Done():
		middleware.Logger.Info("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if listening {
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		select {
		case err := <-serveErr:
			if err != nil {
				errs = append(errs, fmt.Errorf("listen: %w", err))
			}
		case <-shutdownCtx.Done():
			errs = append(errs, fmt.Errorf("http shutdown: %w", shutdownCtx.Err()))
		}
	}

	for _, cleanup := range cleanups {
		if err := cleanup(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
