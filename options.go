package statusflow

import (
	"time"

	"k8s.io/utils/clock"
)

const defaultLockWait = 5 * time.Second

type options struct {
	clock     clock.Clock
	logger    Logger
	debugMode bool
	lockWait  time.Duration
	publisher Publisher
}

func defaultOptions() options {
	return options{
		clock:    clock.RealClock{},
		lockWait: defaultLockWait,
	}
}

type Option func(o *options)

func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithLogger overrides the default JSON logger that writes to stdout.
func WithLogger(l Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func WithDebugMode() Option {
	return func(o *options) {
		o.debugMode = true
	}
}

// WithLockTimeout sets how long Apply waits for the entity lock when the request does not ask for NoWait.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		o.lockWait = d
	}
}

// WithPublisher publishes a TransitionEvent after every committed transition.
func WithPublisher(p Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}
