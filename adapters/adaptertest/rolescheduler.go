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

type contextKey string

// RunRoleSchedulerTest runs the conformance tests against the role schedulers returned by factory. The instances
// returned must coordinate with each other, as separate processes would.
func RunRoleSchedulerTest(t *testing.T, factory func(t *testing.T, instances int) []statusflow.RoleScheduler) {
	tests := []func(t *testing.T, rs []statusflow.RoleScheduler){
		testReturnedContext,
		testLocking,
		testReleasing,
	}

	for _, test := range tests {
		test(t, factory(t, 2))
	}
}

func testReturnedContext(t *testing.T, rs []statusflow.RoleScheduler) {
	t.Run("Returned context is a child of the provided context", func(t *testing.T) {
		ctxWithValue := context.WithValue(t.Context(), contextKey("parent"), "context")

		ctx, cancel, err := rs[0].Await(ctxWithValue, "role-"+uuid.NewString())
		jtest.RequireNil(t, err)
		t.Cleanup(cancel)

		require.Equal(t, "context", ctx.Value(contextKey("parent")))
	})
}

func testLocking(t *testing.T, rs []statusflow.RoleScheduler) {
	t.Run("Role is held and other instances are blocked", func(t *testing.T) {
		role := "role-" + uuid.NewString()

		_, cancel, err := rs[0].Await(t.Context(), role)
		jtest.RequireNil(t, err)
		t.Cleanup(cancel)

		ctx, cancel2 := context.WithCancel(t.Context())
		t.Cleanup(cancel2)

		acquired := make(chan struct{}, 1)
		go func() {
			_, _, err := rs[1].Await(ctx, role)
			if err != nil {
				return
			}

			acquired <- struct{}{}
		}()

		select {
		case <-time.After(time.Second):
			// Pass: the role has not been released
		case <-acquired:
			t.Fatal("role acquired twice")
		}
	})
}

func testReleasing(t *testing.T, rs []statusflow.RoleScheduler) {
	t.Run("Role is released when the returned context is cancelled", func(t *testing.T) {
		role := "role-" + uuid.NewString()

		_, cancel, err := rs[0].Await(t.Context(), role)
		jtest.RequireNil(t, err)

		acquired := make(chan struct{}, 1)
		go func() {
			_, cancel2, err := rs[1].Await(t.Context(), role)
			if err != nil {
				return
			}
			defer cancel2()

			acquired <- struct{}{}
		}()

		cancel()

		select {
		case <-time.After(10 * time.Second):
			t.Fatal("role not released")
		case <-acquired:
		}
	})
}
