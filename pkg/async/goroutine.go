package async

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Group tracks fire-and-forget goroutines so shutdown can wait for them.
type Group struct {
	log *logrus.Logger
	wg  sync.WaitGroup
}

// NewGroup creates a task group that logs through log
func NewGroup(log *logrus.Logger) *Group {
	if log == nil {
		log = logrus.New()
	}
	return &Group{log: log}
}

// Go executes fn in a goroutine with panic recovery and a timeout. The task keeps the values
// of parentCtx but not its cancellation, so a finished HTTP request does not abort it.
// Errors are logged, never returned.
func (g *Group) Go(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				g.log.WithFields(logrus.Fields{
					"task":  taskName,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("Panic in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			g.log.WithError(err).WithField("task", taskName).Warn("Background task failed")
		}
	}()
}

// Wait blocks until every started task has finished or timeout elapses. It reports whether
// all tasks finished.
func (g *Group) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
