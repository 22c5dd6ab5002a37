package sqlstore

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"k8s.io/utils/clock"

	"github.com/julo/statusflow"
)

const defaultLockPollInterval = 50 * time.Millisecond

// Locker implements statusflow.Locker with MySQL named locks. A named lock belongs to the connection that took it
// so every held lock pins one connection of the pool until it is released.
type Locker struct {
	db           *sql.DB
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

func NewLocker(db *sql.DB, opts ...LockerOption) *Locker {
	l := &Locker{
		db:           db,
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
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "lock connection", j.MKV{"key": key})
	}

	err = statusflow.PollLock(ctx, l.clock, key, wait, l.pollInterval, func(ctx context.Context) (bool, error) {
		var acquired sql.NullInt64
		err := conn.QueryRowContext(ctx, "select get_lock(?, 0)", key).Scan(&acquired)
		if err != nil {
			return false, errors.Wrap(err, "get_lock", j.MKV{"key": key})
		}

		return acquired.Valid && acquired.Int64 == 1, nil
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			defer conn.Close()

			_, err = conn.ExecContext(ctx, "select release_lock(?)", key)
		})

		return err
	}, nil
}
