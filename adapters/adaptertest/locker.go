package adaptertest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/julo/statusflow"
)

// RunLockerTest runs the conformance tests for statusflow.Locker. Lockers built by one factory call may share a
// backend with other calls; every test uses its own keys.
func RunLockerTest(t *testing.T, factory func() statusflow.Locker) {
	tests := []func(t *testing.T, l statusflow.Locker){
		testLockNoWait,
		testLockTimeout,
		testLockRelease,
		testLockWaitsForRelease,
		testLockKeysIndependent,
		testStaleUnlock,
	}

	for _, test := range tests {
		test(t, factory())
	}
}

func testLockNoWait(t *testing.T, l statusflow.Locker) {
	t.Run("No wait fails fast with duplicate request", func(t *testing.T) {
		key := statusflow.LockKey("JuloOne", uuid.NewString())

		unlock, err := l.Lock(t.Context(), key, 0)
		jtest.RequireNil(t, err)
		t.Cleanup(func() { _ = unlock(context.Background()) })

		_, err = l.Lock(t.Context(), key, 0)
		require.ErrorIs(t, err, statusflow.ErrDuplicateRequest)
	})
}

func testLockTimeout(t *testing.T, l statusflow.Locker) {
	t.Run("Bounded wait returns lock timeout", func(t *testing.T) {
		key := statusflow.LockKey("JuloOne", uuid.NewString())

		unlock, err := l.Lock(t.Context(), key, 0)
		jtest.RequireNil(t, err)
		t.Cleanup(func() { _ = unlock(context.Background()) })

		start := time.Now()
		_, err = l.Lock(t.Context(), key, 200*time.Millisecond)
		require.ErrorIs(t, err, statusflow.ErrLockTimeout)
		require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	})
}

func testLockRelease(t *testing.T, l statusflow.Locker) {
	t.Run("Lock can be taken again after unlock", func(t *testing.T) {
		key := statusflow.LockKey("JuloOne", uuid.NewString())

		unlock, err := l.Lock(t.Context(), key, 0)
		jtest.RequireNil(t, err)
		jtest.RequireNil(t, unlock(t.Context()))

		unlock, err = l.Lock(t.Context(), key, 0)
		jtest.RequireNil(t, err)
		jtest.RequireNil(t, unlock(t.Context()))
	})
}

func testLockWaitsForRelease(t *testing.T, l statusflow.Locker) {
	t.Run("Waiting lock is acquired once released", func(t *testing.T) {
		key := statusflow.LockKey("JuloOne", uuid.NewString())

		unlock, err := l.Lock(t.Context(), key, 0)
		jtest.RequireNil(t, err)

		go func() {
			time.Sleep(100 * time.Millisecond)
			_ = unlock(t.Context())
		}()

		unlock2, err := l.Lock(t.Context(), key, 5*time.Second)
		jtest.RequireNil(t, err)
		jtest.RequireNil(t, unlock2(t.Context()))
	})
}

func testLockKeysIndependent(t *testing.T, l statusflow.Locker) {
	t.Run("Different keys do not contend", func(t *testing.T) {
		id := uuid.NewString()

		unlock, err := l.Lock(t.Context(), statusflow.LockKey("JuloOne", id), 0)
		jtest.RequireNil(t, err)
		t.Cleanup(func() { _ = unlock(context.Background()) })

		unlock2, err := l.Lock(t.Context(), statusflow.LockKey("Autodebet-BCA", id), 0)
		jtest.RequireNil(t, err)
		jtest.RequireNil(t, unlock2(t.Context()))
	})
}

func testStaleUnlock(t *testing.T, l statusflow.Locker) {
	t.Run("Repeated unlock does not release a later holder", func(t *testing.T) {
		key := statusflow.LockKey("JuloOne", uuid.NewString())

		unlock, err := l.Lock(t.Context(), key, 0)
		jtest.RequireNil(t, err)
		jtest.RequireNil(t, unlock(t.Context()))

		unlock2, err := l.Lock(t.Context(), key, 0)
		jtest.RequireNil(t, err)
		t.Cleanup(func() { _ = unlock2(context.Background()) })

		_ = unlock(t.Context())

		_, err = l.Lock(t.Context(), key, 0)
		require.ErrorIs(t, err, statusflow.ErrDuplicateRequest)
	})
}
