package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc releases one resource during shutdown.
type ShutdownFunc func(context.Context) error

type closer struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager drains the HTTP server and then releases registered
// resources on SIGINT or SIGTERM. Resources are closed in reverse
// registration order, so anything registered later (which may depend on
// earlier resources) goes down first.
type ShutdownManager struct {
	logger  *Logger
	server  *http.Server
	timeout time.Duration

	mu      sync.Mutex
	closers []closer
}

// NewShutdownManager wraps server with signal-driven graceful shutdown.
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{logger: logger, server: server, timeout: timeout}
}

// Register adds a named resource to release during shutdown.
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.closers = append(sm.closers, closer{name: name, fn: fn})
}

// WaitForShutdown blocks until a termination signal arrives, then drains
// in-flight requests and closes registered resources. It returns an error
// when the drain or any closer fails, or when the timeout elapses first.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	sm.logger.WithField("signal", sig.String()).Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	return sm.shutdown(ctx)
}

func (sm *ShutdownManager) shutdown(ctx context.Context) error {
	var failed []string

	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server drain failed")
			failed = append(failed, "server")
		} else {
			sm.logger.Info("HTTP server drained")
		}
	}

	sm.mu.Lock()
	closers := make([]closer, len(sm.closers))
	copy(closers, sm.closers)
	sm.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		if err := ctx.Err(); err != nil {
			sm.logger.WithField("resource", c.name).Warn("shutdown timeout reached, skipping remaining resources")
			return fmt.Errorf("shutdown timed out before %s closed", c.name)
		}
		if err := c.fn(ctx); err != nil {
			sm.logger.WithError(err).WithField("resource", c.name).Error("resource close failed")
			failed = append(failed, c.name)
			continue
		}
		sm.logger.WithField("resource", c.name).Debug("resource closed")
	}

	if len(failed) > 0 {
		return fmt.Errorf("shutdown completed with failures: %v", failed)
	}
	sm.logger.Info("graceful shutdown complete")
	return nil
}
