// Package workers provides a single bounded worker pool per binary, sized
// by MAX_CONCURRENCY, serving whichever unit of work a given binary
// submits: a Generator turn, a History Writer persist, or a Memory Writer
// extraction.
package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/alitto/pond"
)

// Pool wraps a pond.WorkerPool sized from config.WorkerConfig.MaxConcurrency.
type Pool struct {
	inner *pond.WorkerPool
	name  string
}

func NewPool(name string, maxConcurrency int) *Pool {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Pool{
		name: name,
		inner: pond.New(
			maxConcurrency,
			maxConcurrency*2,
			pond.MinWorkers(1),
			pond.IdleTimeout(30*time.Second),
		),
	}
}

// Submit enqueues task for execution on a pool worker.
func (p *Pool) Submit(task func()) {
	p.inner.Submit(task)
}

// SubmitWithTimeout runs task on the pool but returns ctx.Err() if it hasn't
// completed before timeout elapses. A panicking task is recovered and logged
// rather than crashing the worker.
func (p *Pool) SubmitWithTimeout(ctx context.Context, task func(), timeout time.Duration) error {
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan struct{}, 1)
	p.inner.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("worker task panicked", "pool", p.name, "error", r)
			}
			done <- struct{}{}
		}()
		task()
	})

	select {
	case <-done:
		return nil
	case <-taskCtx.Done():
		return taskCtx.Err()
	}
}

// Stats reports pool occupancy. No /health endpoint currently reports it.
func (p *Pool) Stats() map[string]interface{} {
	return map[string]interface{}{
		"running_workers":  p.inner.RunningWorkers(),
		"idle_workers":     p.inner.IdleWorkers(),
		"submitted_tasks":  p.inner.SubmittedTasks(),
		"waiting_tasks":    p.inner.WaitingTasks(),
		"successful_tasks": p.inner.SuccessfulTasks(),
		"failed_tasks":     p.inner.FailedTasks(),
	}
}

// Shutdown drains and stops the pool, called during each binary's graceful
// shutdown sequence.
func (p *Pool) Shutdown() {
	slog.Info("shutting down worker pool", "pool", p.name)
	p.inner.StopAndWait()
	slog.Info("worker pool stopped", "pool", p.name)
}
