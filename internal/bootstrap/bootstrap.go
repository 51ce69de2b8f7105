// Package bootstrap provides application lifecycle helpers.
package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

const DefaultGracePeriod = 5 * time.Second

// App runs one command and then releases the resources registered as shutdown hooks,
// such as the database and the embedding model.
type App struct {
	mu          sync.Mutex
	hooks       []func(ctx context.Context) error
	gracePeriod time.Duration
}

type Option func(*App)

// WithGracePeriod sets how long Run waits for the command to return after an interrupt.
func WithGracePeriod(d time.Duration) Option {
	return func(a *App) {
		a.gracePeriod = d
	}
}

// New creates a new App.
func New(opts ...Option) *App {
	a := &App{gracePeriod: DefaultGracePeriod}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AddShutdownHook registers a function to call when Run finishes.
// Hooks run in reverse order (LIFO). Thread-safe.
func (a *App) AddShutdownHook(fn func(ctx context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks = append(a.hooks, fn)
}

// Run executes run with a context canceled on SIGINT or SIGTERM, then calls the shutdown
// hooks in LIFO order. After an interrupt, run has the grace period to return before the
// hooks are called anyway. The errors of run and of the hooks are joined.
func (a *App) Run(ctx context.Context, run func(ctx context.Context) error) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx)
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		timer := time.NewTimer(a.gracePeriod)
		defer timer.Stop()
		select {
		case runErr = <-errCh:
		case <-timer.C:
			slog.Default().Warn("command did not stop within the grace period", "grace_period", a.gracePeriod)
			runErr = ctx.Err()
		}
	}

	return errors.Join(runErr, a.shutdown(context.Background()))
}

func (a *App) shutdown(ctx context.Context) error {
	a.mu.Lock()
	hooks := a.hooks
	a.hooks = nil
	a.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
