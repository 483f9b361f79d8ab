// Package coordinator supervises the long-running parts of watch mode.
package coordinator

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Task is a long-running component that stops when ctx is canceled.
// *runner.Runner satisfies it.
type Task interface {
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context) error

// Run implements Task.
func (f TaskFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Reloader rebuilds configuration in place. *manager.Manager satisfies it.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Coordinator runs named tasks in parallel and waits for all of them.
type Coordinator struct {
	logger     zerolog.Logger
	order      []string
	tasks      map[string]Task
	taskErrors map[string]error
	mu         sync.RWMutex
}

// New constructs an empty Coordinator.
func New(logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		logger:     logger,
		tasks:      make(map[string]Task),
		taskErrors: make(map[string]error),
	}
}

// Add registers a task under name. Adding a name twice replaces the task.
func (c *Coordinator) Add(name string, task Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tasks[name]; !exists {
		c.order = append(c.order, name)
	}
	c.tasks[name] = task
}

// Run starts all tasks in parallel and blocks until every one has returned.
// Returns nil on clean shutdown; per-task errors are logged and kept for Errors.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.RLock()
	names := append([]string(nil), c.order...)
	c.mu.RUnlock()

	c.logger.Info().
		Int("tasks", len(names)).
		Msg("starting coordinator")

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go c.spawn(ctx, &wg, name)
	}

	wg.Wait()
	c.logger.Info().Msg("all tasks stopped")

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, name := range names {
		if err := c.taskErrors[name]; err != nil {
			c.logger.Error().Err(err).Str("task", name).Msg("task error")
		}
	}

	return nil
}

func (c *Coordinator) spawn(ctx context.Context, wg *sync.WaitGroup, name string) {
	defer wg.Done()

	c.mu.RLock()
	task := c.tasks[name]
	c.mu.RUnlock()

	taskLogger := c.logger.With().Str("task", name).Logger()
	taskLogger.Info().Msg("task started")

	if err := task.Run(ctx); err != nil {
		taskLogger.Error().Err(err).Msg("task exited with error")
		c.recordError(name, err)
	} else {
		taskLogger.Info().Msg("task exited cleanly")
	}
}

func (c *Coordinator) recordError(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taskErrors[name] = err
}

// Errors returns a copy of the errors recorded by the last Run.
func (c *Coordinator) Errors() map[string]error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]error, len(c.taskErrors))
	for k, v := range c.taskErrors {
		result[k] = v
	}
	return result
}

// ReloadOn returns a task that calls reloader.Reload on every trigger until
// ctx is canceled. A failed reload keeps the current configuration.
func ReloadOn(logger zerolog.Logger, reloader Reloader, trigger <-chan struct{}) Task {
	return TaskFunc(func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case _, ok := <-trigger:
				if !ok {
					return nil
				}
				if err := reloader.Reload(ctx); err != nil {
					logger.Error().Err(err).Msg("registry reload failed, keeping current registry")
					continue
				}
				logger.Info().Msg("registry reload applied")
			}
		}
	})
}
