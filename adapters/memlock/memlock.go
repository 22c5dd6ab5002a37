// Package memlock provides in-process implementations of statusflow.Locker and statusflow.RoleScheduler. They
// only coordinate goroutines of a single process.
package memlock

import (
	"context"
	"sync"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"k8s.io/utils/clock"

	"github.com/julo/statusflow"
)

type semaphore struct {
	ch   chan struct{}
	refs int
}

// semaphores holds a semaphore per key for as long as some caller holds or waits on it.
type semaphores struct {
	mu   sync.Mutex
	sems map[string]*semaphore
}

func newSemaphores() semaphores {
	return semaphores{sems: make(map[string]*semaphore)}
}

// get returns the semaphore of key. Every get must be matched by a put.
func (s *semaphores) get(key string) *semaphore {
	s.mu.Lock()
	defer s.mu.Unlock()

	sem, ok := s.sems[key]
	if !ok {
		sem = &semaphore{ch: make(chan struct{}, 1)}
		s.sems[key] = sem
	}
	sem.refs++

	return sem
}

func (s *semaphores) put(key string, sem *semaphore) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sem.refs--
	if sem.refs == 0 {
		delete(s.sems, key)
	}
}

func (s *semaphores) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sems)
}

type Option func(l *Locker)

func WithClock(c clock.Clock) Option {
	return func(l *Locker) {
		l.clock = c
	}
}

func New(opts ...Option) *Locker {
	l := &Locker{
		clock: clock.RealClock{},
		keys:  newSemaphores(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

var _ statusflow.Locker = (*Locker)(nil)

type Locker struct {
	clock clock.Clock
	keys  semaphores
}

func (l *Locker) Lock(ctx context.Context, key string, wait time.Duration) (statusflow.Unlock, error) {
	sem := l.keys.get(key)

	select {
	case sem.ch <- struct{}{}:
		return l.release(key, sem), nil
	default:
	}

	if wait <= 0 {
		l.keys.put(key, sem)
		return nil, errors.Wrap(statusflow.ErrDuplicateRequest, "", j.MKV{"key": key})
	}

	t := l.clock.NewTimer(wait)
	defer t.Stop()

	select {
	case sem.ch <- struct{}{}:
		return l.release(key, sem), nil
	case <-t.C():
		l.keys.put(key, sem)
		return nil, errors.Wrap(statusflow.ErrLockTimeout, "", j.MKV{"key": key, "wait": wait.String()})
	case <-ctx.Done():
		l.keys.put(key, sem)
		return nil, ctx.Err()
	}
}

func (l *Locker) release(key string, sem *semaphore) statusflow.Unlock {
	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() {
			<-sem.ch
			l.keys.put(key, sem)
		})
		return nil
	}
}

var _ statusflow.RoleScheduler = (*RoleScheduler)(nil)

// RoleScheduler hands each role to one caller at a time. The role is released when the returned context is
// cancelled.
type RoleScheduler struct {
	roles semaphores
}

func NewRoleScheduler() *RoleScheduler {
	return &RoleScheduler{
		roles: newSemaphores(),
	}
}

func (r *RoleScheduler) Await(ctx context.Context, role string) (context.Context, context.CancelFunc, error) {
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}

	sem := r.roles.get(role)
	select {
	case sem.ch <- struct{}{}:
	case <-ctx.Done():
		r.roles.put(role, sem)
		return nil, nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		<-ctx.Done()
		<-sem.ch
		r.roles.put(role, sem)
	}()

	return ctx, cancel, nil
}
