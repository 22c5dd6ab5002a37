package statusflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/clock"

	"github.com/julo/statusflow"
)

func TestPollLock(t *testing.T) {
	ctx := t.Context()
	key := statusflow.LockKey(workflowName, "app-1")
	require.Equal(t, "JuloOne:app-1", key)

	t.Run("Acquired after retries", func(t *testing.T) {
		var calls int
		err := statusflow.PollLock(ctx, clock.RealClock{}, key, time.Second, time.Millisecond, func(ctx context.Context) (bool, error) {
			calls++
			return calls == 3, nil
		})
		jtest.RequireNil(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("No wait", func(t *testing.T) {
		var calls int
		err := statusflow.PollLock(ctx, clock.RealClock{}, key, 0, time.Millisecond, func(ctx context.Context) (bool, error) {
			calls++
			return false, nil
		})
		require.ErrorIs(t, err, statusflow.ErrDuplicateRequest)
		require.Equal(t, 1, calls)
	})

	t.Run("Timeout", func(t *testing.T) {
		err := statusflow.PollLock(ctx, clock.RealClock{}, key, 20*time.Millisecond, 5*time.Millisecond, func(ctx context.Context) (bool, error) {
			return false, nil
		})
		require.ErrorIs(t, err, statusflow.ErrLockTimeout)
	})

	t.Run("Try error", func(t *testing.T) {
		tryErr := errors.New("connection refused")
		err := statusflow.PollLock(ctx, clock.RealClock{}, key, time.Second, time.Millisecond, func(ctx context.Context) (bool, error) {
			return false, tryErr
		})
		require.ErrorIs(t, err, tryErr)
	})

	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(ctx)
		cancel()

		err := statusflow.PollLock(ctx, clock.RealClock{}, key, time.Minute, time.Second, func(ctx context.Context) (bool, error) {
			return false, nil
		})
		require.ErrorIs(t, err, context.Canceled)
	})
}
