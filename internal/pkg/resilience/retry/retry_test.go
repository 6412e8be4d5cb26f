package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_Execute(t *testing.T) {
	t.Run("successful operation", func(t *testing.T) {
		r := New()
		callCount := 0

		err := r.Execute(t.Context(), func() error {
			callCount++
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 1, callCount, "Operation should be called exactly once")
	})

	t.Run("retry until success", func(t *testing.T) {
		r := New(WithAttempts(3), WithDelay(time.Millisecond))
		callCount := 0

		err := r.Execute(t.Context(), func() error {
			callCount++
			if callCount < 2 {
				return errors.New("temporary error")
			}
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 2, callCount, "Operation should be called exactly twice")
	})

	t.Run("retry exhausted returns last error", func(t *testing.T) {
		r := New(
			WithAttempts(3),
			WithDelay(time.Millisecond),
			WithMaxDelay(5*time.Millisecond),
		)
		callCount := 0
		expectedErr := errors.New("persistent error")

		err := r.Execute(t.Context(), func() error {
			callCount++
			return expectedErr
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, expectedErr)
		assert.Equal(t, 3, callCount, "Operation should be called exactly 3 times")
	})

	t.Run("all errors kept when last error only is disabled", func(t *testing.T) {
		r := New(
			WithAttempts(2),
			WithDelay(time.Millisecond),
			WithLastErrorOnly(false),
		)
		first := errors.New("first")
		second := errors.New("second")
		calls := 0

		err := r.Execute(t.Context(), func() error {
			calls++
			if calls == 1 {
				return first
			}
			return second
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, first)
		assert.ErrorIs(t, err, second)
	})

	t.Run("on retry observer", func(t *testing.T) {
		var attempts []uint
		r := New(
			WithAttempts(3),
			WithDelay(time.Millisecond),
			WithOnRetry(func(n uint, err error) {
				attempts = append(attempts, n)
			}),
		)

		_ = r.Execute(t.Context(), func() error {
			return errors.New("boom")
		})

		assert.NotEmpty(t, attempts)
		assert.Equal(t, uint(0), attempts[0])
	})

	t.Run("context cancellation", func(t *testing.T) {
		r := New(
			WithAttempts(5),
			WithDelay(100*time.Millisecond),
		)
		callCount := 0

		ctx, cancel := context.WithCancel(t.Context())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		err := r.Execute(ctx, func() error {
			callCount++
			return errors.New("error that would normally trigger retry")
		})

		require.Error(t, err)
		assert.Equal(t, 1, callCount, "Operation should be called exactly once due to context cancellation")
	})
}

func TestRetry_Options(t *testing.T) {
	t.Run("default options", func(t *testing.T) {
		r := New()
		retrier, ok := r.(*retrier)
		require.True(t, ok, "Expected r to be of type *retrier")

		assert.Equal(t, uint(3), retrier.cfg.attempts)
		assert.Equal(t, 1*time.Second, retrier.cfg.delay)
		assert.Equal(t, 5*time.Second, retrier.cfg.maxDelay)
		assert.True(t, retrier.cfg.lastErrOnly)
		assert.Nil(t, retrier.cfg.onRetry)
	})

	t.Run("custom options", func(t *testing.T) {
		r := New(
			WithAttempts(5),
			WithDelay(2*time.Second),
			WithMaxDelay(10*time.Second),
		)
		retrier, ok := r.(*retrier)
		require.True(t, ok, "Expected r to be of type *retrier")

		assert.Equal(t, uint(5), retrier.cfg.attempts)
		assert.Equal(t, 2*time.Second, retrier.cfg.delay)
		assert.Equal(t, 10*time.Second, retrier.cfg.maxDelay)
	})
}
