package bootstrap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApp_Run(t *testing.T) {
	t.Run("hooks run after run returns nil", func(t *testing.T) {
		app := New()
		closed := false
		app.AddShutdownHook(func(ctx context.Context) error {
			closed = true
			return nil
		})
		err := app.Run(context.Background(), func(ctx context.Context) error {
			return nil
		})
		assert.NoError(t, err)
		assert.True(t, closed)
	})

	t.Run("run error is returned and hooks still run", func(t *testing.T) {
		app := New()
		closed := false
		app.AddShutdownHook(func(ctx context.Context) error {
			closed = true
			return nil
		})
		want := errors.New("run failed")
		err := app.Run(context.Background(), func(ctx context.Context) error {
			return want
		})
		assert.ErrorIs(t, err, want)
		assert.True(t, closed)
	})

	t.Run("hook errors are joined with the run error", func(t *testing.T) {
		app := New()
		runErr := errors.New("run failed")
		closeErr := errors.New("close failed")
		app.AddShutdownHook(func(ctx context.Context) error {
			return closeErr
		})
		err := app.Run(context.Background(), func(ctx context.Context) error {
			return runErr
		})
		assert.ErrorIs(t, err, runErr)
		assert.ErrorIs(t, err, closeErr)
	})

	t.Run("shutdown hooks run in LIFO order on context cancel", func(t *testing.T) {
		app := New()
		var mu sync.Mutex
		var order []string
		for _, name := range []string{"first", "second", "third"} {
			app.AddShutdownHook(func(ctx context.Context) error {
				mu.Lock()
				defer mu.Unlock()
				order = append(order, name)
				return nil
			})
		}

		ctx, cancel := context.WithCancel(context.Background())
		err := app.Run(ctx, func(ctx context.Context) error {
			cancel()
			<-ctx.Done()
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"third", "second", "first"}, order)
	})

	t.Run("hook registered from inside run callback", func(t *testing.T) {
		app := New()
		hookCalled := false

		err := app.Run(context.Background(), func(ctx context.Context) error {
			app.AddShutdownHook(func(ctx context.Context) error {
				hookCalled = true
				return nil
			})
			return nil
		})
		require.NoError(t, err)
		assert.True(t, hookCalled)
	})

	t.Run("hooks run once the grace period expires", func(t *testing.T) {
		app := New(WithGracePeriod(10 * time.Millisecond))
		hookCalled := false
		app.AddShutdownHook(func(ctx context.Context) error {
			hookCalled = true
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		block := make(chan struct{})
		defer close(block)
		err := app.Run(ctx, func(ctx context.Context) error {
			cancel()
			<-block
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, hookCalled)
	})

	t.Run("hooks run only once", func(t *testing.T) {
		app := New()
		calls := 0
		app.AddShutdownHook(func(ctx context.Context) error {
			calls++
			return nil
		})
		require.NoError(t, app.Run(context.Background(), func(ctx context.Context) error { return nil }))
		require.NoError(t, app.Run(context.Background(), func(ctx context.Context) error { return nil }))
		assert.Equal(t, 1, calls)
	})
}
