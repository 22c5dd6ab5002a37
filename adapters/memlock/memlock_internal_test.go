package memlock

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/julo/statusflow"
)

func TestLockerForgetsReleasedKeys(t *testing.T) {
	ctx := t.Context()
	l := New()

	unlock, err := l.Lock(ctx, "JuloOne/app-1", time.Second)
	jtest.RequireNil(t, err)
	require.Equal(t, 1, l.keys.len())

	_, err = l.Lock(ctx, "JuloOne/app-1", 0)
	require.ErrorIs(t, err, statusflow.ErrDuplicateRequest)

	_, err = l.Lock(ctx, "JuloOne/app-1", 10*time.Millisecond)
	require.ErrorIs(t, err, statusflow.ErrLockTimeout)
	require.Equal(t, 1, l.keys.len())

	jtest.RequireNil(t, unlock(ctx))
	jtest.RequireNil(t, unlock(ctx))
	require.Equal(t, 0, l.keys.len())

	for i := range 100 {
		unlock, err := l.Lock(ctx, "JuloOne/app-"+strconv.Itoa(i), time.Second)
		jtest.RequireNil(t, err)
		jtest.RequireNil(t, unlock(ctx))
	}
	require.Equal(t, 0, l.keys.len())
}

func TestLockerKeepsKeyWhileWaiting(t *testing.T) {
	ctx := t.Context()
	l := New()

	unlock, err := l.Lock(ctx, "JuloOne/app-1", time.Second)
	jtest.RequireNil(t, err)

	acquired := make(chan statusflow.Unlock)
	go func() {
		next, err := l.Lock(ctx, "JuloOne/app-1", time.Minute)
		if err != nil {
			close(acquired)
			return
		}
		acquired <- next
	}()

	require.Eventually(t, func() bool {
		l.keys.mu.Lock()
		defer l.keys.mu.Unlock()
		return l.keys.sems["JuloOne/app-1"].refs == 2
	}, time.Second, time.Millisecond)

	jtest.RequireNil(t, unlock(ctx))
	next, ok := <-acquired
	require.True(t, ok)
	require.Equal(t, 1, l.keys.len())

	jtest.RequireNil(t, next(ctx))
	require.Equal(t, 0, l.keys.len())
}

func TestRoleSchedulerForgetsReleasedRoles(t *testing.T) {
	r := NewRoleScheduler()

	ctx, cancel, err := r.Await(t.Context(), "expire-partial-forms")
	jtest.RequireNil(t, err)
	require.NoError(t, ctx.Err())
	require.Equal(t, 1, r.roles.len())

	cancel()
	require.Eventually(t, func() bool {
		return r.roles.len() == 0
	}, time.Second, time.Millisecond)

	cancelled, stop := context.WithCancel(t.Context())
	stop()
	_, _, err = r.Await(cancelled, "expire-partial-forms")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, r.roles.len())
}
