package observability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

type namedShutdown struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager runs cleanup steps in reverse registration order, so whatever started last
// stops first.
type ShutdownManager struct {
	log     *logrus.Logger
	timeout time.Duration

	mu    sync.Mutex
	steps []namedShutdown
	done  bool
}

// NewShutdownManager creates a manager that gives all steps timeout in total.
// Zero selects 30 seconds.
func NewShutdownManager(log *logrus.Logger, timeout time.Duration) *ShutdownManager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{log: log, timeout: timeout}
}

// Register adds a named cleanup step
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.steps = append(sm.steps, namedShutdown{name: name, fn: fn})
}

// Shutdown runs every step once. Failing steps do not stop the remaining ones; their errors
// are joined.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	if sm.done {
		sm.mu.Unlock()
		return nil
	}
	sm.done = true
	steps := sm.steps
	sm.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sm.timeout)
	defer cancel()

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			continue
		}
		sm.log.WithField("step", step.name).Debug("Shutting down")
		if err := step.fn(ctx); err != nil {
			sm.log.WithError(err).WithField("step", step.name).Error("Shutdown step failed")
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	sm.log.Info("Graceful shutdown complete")
	return nil
}
