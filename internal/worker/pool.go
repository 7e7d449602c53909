package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/subgen/api/internal/logging"
)

// ErrPoolClosed is returned by Go after Shutdown has started.
var ErrPoolClosed = errors.New("worker pool is shutting down")

// Task is a handle on one background run.
type Task struct {
	Name string
	done chan error
}

// Done delivers the run's result exactly once, then is closed.
func (t *Task) Done() <-chan error {
	return t.done
}

// Pool runs background work under a shared context that Shutdown cancels.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool

	logger zerolog.Logger
}

func NewPool() *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		ctx:    ctx,
		cancel: cancel,
		logger: logging.WithComponent("pool"),
	}
}

// Go starts fn in the background. A panic in fn is recovered and reported
// as the task's error.
func (p *Pool) Go(name string, fn func(ctx context.Context) error) (*Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}

	task := &Task{Name: name, done: make(chan error, 1)}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(task.done)

		var err error
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("task %s panicked: %v", name, r)
					p.logger.Error().Str("task", name).Interface("panic", r).Msg("task panicked")
				}
			}()
			err = fn(p.ctx)
		}()
		task.done <- err
	}()

	return task, nil
}

// Shutdown stops accepting tasks, cancels running ones and waits for them
// until ctx expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.cancel()

	waited := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		p.logger.Info().Msg("worker pool drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
}
