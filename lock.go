package statusflow

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"k8s.io/utils/clock"
)

// Unlock releases a lock obtained from a Locker.
type Unlock func(ctx context.Context) error

// Locker implementations should all be tested with adaptertest.RunLockerTest.
type Locker interface {
	// Lock acquires the lock for key. With a zero wait it fails immediately with ErrDuplicateRequest when the lock
	// is held, otherwise it waits up to wait before returning ErrLockTimeout.
	Lock(ctx context.Context, key string, wait time.Duration) (Unlock, error)
}

// LockKey is the key used for the per-entity lock.
func LockKey(workflow, entityID string) string {
	return workflow + ":" + entityID
}

// TryLockFunc attempts to take a lock once and reports whether it succeeded.
type TryLockFunc func(ctx context.Context) (bool, error)

// PollLock calls try until it succeeds or wait elapses, sleeping interval between attempts. It implements the
// wait semantics of Locker for adapters that only offer a try-lock primitive.
func PollLock(ctx context.Context, clk clock.Clock, key string, wait, interval time.Duration, try TryLockFunc) error {
	ok, err := try(ctx)
	if err != nil {
		return err
	} else if ok {
		return nil
	}

	if wait <= 0 {
		return errors.Wrap(ErrDuplicateRequest, "", j.MKV{"key": key})
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)
	deadline := clk.Now().Add(wait)
	for {
		remaining := deadline.Sub(clk.Now())
		if remaining <= 0 {
			return errors.Wrap(ErrLockTimeout, "", j.MKV{"key": key, "wait": wait.String()})
		}

		next := b.NextBackOff()
		if next == backoff.Stop {
			return ctx.Err()
		}

		err := waitFor(ctx, clk, min(next, remaining))
		if err != nil {
			return err
		}

		ok, err := try(ctx)
		if err != nil {
			return err
		} else if ok {
			return nil
		}
	}
}

func waitFor(ctx context.Context, clk clock.Clock, d time.Duration) error {
	t := clk.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}

// waitUntil blocks until the clock reaches until or ctx is done.
func waitUntil(ctx context.Context, clk clock.Clock, until time.Time) error {
	d := until.Sub(clk.Now())
	if d <= 0 {
		return nil
	}

	return waitFor(ctx, clk, d)
}
