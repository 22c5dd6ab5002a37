package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/redis/go-redis/v9"
	"k8s.io/utils/clock"

	"github.com/julo/statusflow"
)

const (
	lockKeyPrefix           = "statusflow:lock:"
	defaultLockTTL          = 30 * time.Second
	defaultLockPollInterval = 25 * time.Millisecond
)

// releaseScript deletes the lock only while it still holds the caller's token so that a holder whose lock expired
// cannot release a lock taken by someone else.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end

	return 0
`)

// refreshScript extends the lock's expiry while it still holds the caller's token.
var refreshScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end

	return 0
`)

// Locker implements statusflow.Locker with SET NX PX. A held lock is refreshed every third of its TTL until it is
// released, so it only expires when the holder dies without unlocking.
type Locker struct {
	client       redis.UniversalClient
	clock        clock.WithTicker
	ttl          time.Duration
	pollInterval time.Duration
}

type LockerOption func(l *Locker)

func WithLockTTL(ttl time.Duration) LockerOption {
	return func(l *Locker) {
		l.ttl = ttl
	}
}

func WithLockPollInterval(d time.Duration) LockerOption {
	return func(l *Locker) {
		l.pollInterval = d
	}
}

func WithLockerClock(c clock.WithTicker) LockerOption {
	return func(l *Locker) {
		l.clock = c
	}
}

func NewLocker(client redis.UniversalClient, opts ...LockerOption) *Locker {
	l := &Locker{
		client:       client,
		clock:        clock.RealClock{},
		ttl:          defaultLockTTL,
		pollInterval: defaultLockPollInterval,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

var _ statusflow.Locker = (*Locker)(nil)

func (l *Locker) Lock(ctx context.Context, key string, wait time.Duration) (statusflow.Unlock, error) {
	redisKey := lockKeyPrefix + key
	token := uuid.NewString()

	err := statusflow.PollLock(ctx, l.clock, key, wait, l.pollInterval, func(ctx context.Context) (bool, error) {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return false, errors.Wrap(err, "set lock", j.MKV{"key": key})
		}

		return ok, nil
	})
	if err != nil {
		return nil, err
	}

	renewCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go l.keepAlive(renewCtx, redisKey, token, done)

	return func(ctx context.Context) error {
		stop()
		<-done

		n, err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Int()
		if err != nil {
			return errors.Wrap(err, "release lock", j.MKV{"key": key})
		} else if n == 0 {
			return errors.Wrap(statusflow.ErrLockLost, "", j.MKV{"key": key})
		}

		return nil
	}, nil
}

// keepAlive refreshes the lock until ctx is cancelled or the lock is no longer held with token. A failed refresh
// is retried on the next tick.
func (l *Locker) keepAlive(ctx context.Context, redisKey, token string, done chan<- struct{}) {
	defer close(done)

	t := l.clock.NewTicker(l.ttl / 3)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
		}

		n, err := refreshScript.Run(ctx, l.client, []string{redisKey}, token, l.ttl.Milliseconds()).Int()
		if err != nil {
			continue
		} else if n == 0 {
			return
		}
	}
}
