// Package task manages the lifecycle of goroutines owned by a server.
//
// All tasks share one cancellable context: Stop signals every task, Wait
// blocks until they all returned.
//
//	mgr := task.NewManager(ctx, logger)
//	_ = mgr.Start("reader", func() bool {
//	    // ... one iteration ...
//	    return true // keep running
//	})
//	mgr.Stop()
//	mgr.Wait()
package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-motor/logger"
)

// ErrStopped is returned when a task is started on a stopped Manager.
var ErrStopped = errors.New("task: manager already stopped")

// Func performs one iteration of a task. It returns false to end the task.
type Func func() bool

// CancelFunc is called when a task exits, for cleanup.
type CancelFunc func()

// Manager manages a group of goroutines.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
	mu     sync.Mutex // serializes task creation against Stop
}

// NewManager creates a Manager whose tasks end when ctx is done or Stop is called.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	if l == nil {
		l = logger.GetLogger()
	}

	mgr := &Manager{logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context shared by all tasks.
func (mgr *Manager) Context() context.Context { return mgr.ctx }

// Start runs taskFunc repeatedly in a new goroutine until it returns false
// or the manager is stopped.
func (mgr *Manager) Start(name string, taskFunc Func, cancelFunc CancelFunc) error {
	return mgr.spawn(name, func(ctx context.Context) {
		if cancelFunc != nil {
			defer cancelFunc()
		}

		for {
			select {
			case <-ctx.Done():
				return
			default:
				if !taskFunc() {
					return
				}
			}
		}
	})
}

// Go runs fn once in a new goroutine. fn must return when ctx is done.
func (mgr *Manager) Go(name string, fn func(ctx context.Context)) error {
	return mgr.spawn(name, fn)
}

// StartConsumer runs taskFunc for every item received from input until it
// returns false, input is closed or the manager is stopped.
func StartConsumer[T any](mgr *Manager, name string, taskFunc func(item T) bool, cancelFunc CancelFunc, input <-chan T) error {
	if input == nil {
		return errors.New("task: input channel is nil")
	}

	return mgr.spawn(name, func(ctx context.Context) {
		if cancelFunc != nil {
			defer cancelFunc()
		}

		for {
			select {
			case <-ctx.Done():
				return
			case item, ok := <-input:
				if !ok {
					mgr.logger.Debug("input channel closed", "task", name)
					return
				}
				if !taskFunc(item) {
					return
				}
			}
		}
	})
}

// Stop signals all running tasks.
func (mgr *Manager) Stop() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	mgr.cancel()
}

// Wait blocks until every task has returned.
func (mgr *Manager) Wait() {
	mgr.wg.Wait()
}

// TaskCount returns the number of running tasks.
func (mgr *Manager) TaskCount() int {
	return int(mgr.count.Load())
}

func (mgr *Manager) spawn(name string, body func(ctx context.Context)) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if mgr.ctx.Err() != nil {
		return ErrStopped
	}

	mgr.logger.Debug("start task", "task", name)

	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer mgr.wg.Done()
		defer func() {
			mgr.count.Add(-1)
			mgr.logger.Debug("task terminated", "task", name, "task_count", mgr.TaskCount())
		}()
		defer func() {
			if r := recover(); r != nil {
				mgr.logger.Error("panic in task", "task", name, "panic", r)
			}
		}()

		body(mgr.ctx)
	}()

	return nil
}
