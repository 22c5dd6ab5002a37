package statusflow

import (
	"context"
	"errors"
	"time"
)

// PostHookRetryTask is the task enqueued when a Post hook fails after its transition committed.
const PostHookRetryTask = "statusflow.post_hook.retry"

// Task is a unit of asynchronous work produced by a handler. ID is stable across redeliveries so task functions
// can detect repeats.
type Task struct {
	ID        string
	Name      string
	Args      map[string]string
	Countdown time.Duration
	Attempt   int
	RunAt     time.Time
	LastError string
}

// TaskQueue implementations should all be tested with adaptertest.RunTaskQueueTest.
type TaskQueue interface {
	// Enqueue stores t to become due at t.RunAt. Enqueueing a task with an ID that is already queued replaces it.
	Enqueue(ctx context.Context, t Task) error
	// Claim returns up to limit tasks that are due at now and hides them from other claims until now+lease. A claimed
	// task that is not acked becomes due again once the lease expires.
	Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]Task, error)
	// Ack removes a task after it has been processed.
	Ack(ctx context.Context, id string) error
}

// TaskFunc executes a task. Returning an error wrapped with Permanent skips the remaining retries.
type TaskFunc func(ctx context.Context, t Task) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
