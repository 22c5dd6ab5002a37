package pgstore

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"k8s.io/utils/clock"

	"github.com/julo/statusflow"
)

const defaultLockPollInterval = 50 * time.Millisecond

// Locker implements statusflow.Locker with session level advisory locks. The pool connection that took the lock
// is held until the lock is released.
type Locker struct {
	pool         *pgxpool.Pool
	clock        clock.Clock
	pollInterval time.Duration
}

type LockerOption func(l *Locker)

func WithLockerClock(c clock.Clock) LockerOption {
	return func(l *Locker) {
		l.clock = c
	}
}

func WithLockPollInterval(d time.Duration) LockerOption {
	return func(l *Locker) {
		l.pollInterval = d
	}
}

func NewLocker(pool *pgxpool.Pool, opts ...LockerOption) *Locker {
	l := &Locker{
		pool:         pool,
		clock:        clock.RealClock{},
		pollInterval: defaultLockPollInterval,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

var _ statusflow.Locker = (*Locker)(nil)

func (l *Locker) Lock(ctx context.Context, key string, wait time.Duration) (statusflow.Unlock, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "acquire connection", j.MKV{"key": key})
	}

	err = statusflow.PollLock(ctx, l.clock, key, wait, l.pollInterval, func(ctx context.Context) (bool, error) {
		var acquired bool
		err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", key).Scan(&acquired)
		if err != nil {
			return false, errors.Wrap(err, "pg_try_advisory_lock", j.MKV{"key": key})
		}

		return acquired, nil
	})
	if err != nil {
		conn.Release()
		return nil, err
	}

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			defer conn.Release()

			_, err = conn.Exec(ctx, "SELECT pg_advisory_unlock(hashtext($1))", key)
		})

		return err
	}, nil
}
