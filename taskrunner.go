package statusflow

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"k8s.io/utils/clock"

	"github.com/julo/statusflow/internal/metrics"
)

const (
	defaultTaskPollingFrequency = 500 * time.Millisecond
	defaultTaskErrBackOff       = time.Second
	defaultTaskMaxAttempts      = 5
	defaultTaskBaseBackOff      = 10 * time.Second
	defaultTaskMaxBackOff       = 30 * time.Minute
	defaultTaskLease            = 5 * time.Minute
	defaultTaskBatchSize        = 25
)

// DeadLetterFunc is called once a task will no longer be retried.
type DeadLetterFunc func(ctx context.Context, t Task, err error)

// TaskRunner claims due tasks from a TaskQueue and executes the registered TaskFunc for each. Failed tasks are
// re-enqueued with exponential backoff until the attempt limit is reached.
type TaskRunner struct {
	queue  TaskQueue
	clock  clock.Clock
	logger *logger

	mu    sync.RWMutex
	funcs map[string]TaskFunc

	pollingFrequency time.Duration
	errBackOff       time.Duration
	maxAttempts      int
	baseBackOff      time.Duration
	maxBackOff       time.Duration
	lease            time.Duration
	batchSize        int
	deadLetter       DeadLetterFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type TaskRunnerOption func(r *TaskRunner)

func WithTaskPollingFrequency(d time.Duration) TaskRunnerOption {
	return func(r *TaskRunner) {
		r.pollingFrequency = d
	}
}

// WithTaskRetries sets the attempt limit and the backoff of the n-th retry, base * 2^n capped at ceiling.
func WithTaskRetries(maxAttempts int, base, ceiling time.Duration) TaskRunnerOption {
	return func(r *TaskRunner) {
		r.maxAttempts = maxAttempts
		r.baseBackOff = base
		r.maxBackOff = ceiling
	}
}

// WithTaskLease sets how long a claimed task stays hidden from other runners.
func WithTaskLease(d time.Duration) TaskRunnerOption {
	return func(r *TaskRunner) {
		r.lease = d
	}
}

func WithTaskBatchSize(n int) TaskRunnerOption {
	return func(r *TaskRunner) {
		r.batchSize = n
	}
}

func WithDeadLetter(fn DeadLetterFunc) TaskRunnerOption {
	return func(r *TaskRunner) {
		r.deadLetter = fn
	}
}

func WithTaskRunnerClock(c clock.Clock) TaskRunnerOption {
	return func(r *TaskRunner) {
		r.clock = c
	}
}

func WithTaskRunnerLogger(l Logger, debugMode bool) TaskRunnerOption {
	return func(r *TaskRunner) {
		r.logger = newLogger(l, debugMode)
	}
}

func NewTaskRunner(q TaskQueue, opts ...TaskRunnerOption) *TaskRunner {
	r := &TaskRunner{
		queue:            q,
		clock:            clock.RealClock{},
		funcs:            make(map[string]TaskFunc),
		pollingFrequency: defaultTaskPollingFrequency,
		errBackOff:       defaultTaskErrBackOff,
		maxAttempts:      defaultTaskMaxAttempts,
		baseBackOff:      defaultTaskBaseBackOff,
		maxBackOff:       defaultTaskMaxBackOff,
		lease:            defaultTaskLease,
		batchSize:        defaultTaskBatchSize,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = newLogger(nil, false)
	}

	return r
}

// Register binds fn to tasks named name. Registering a name twice replaces the previous function.
func (r *TaskRunner) Register(name string, fn TaskFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.funcs[name] = fn
}

// Run starts polling in the background until Stop is called or ctx is cancelled.
func (r *TaskRunner) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		for {
			n, err := r.RunOnce(ctx)
			if ctx.Err() != nil {
				return
			}

			wait := r.pollingFrequency
			if err != nil {
				r.logger.Error(ctx, errors.Wrap(err, "task runner"))
				wait = r.errBackOff
			} else if n > 0 {
				// Keep draining while tasks are due.
				continue
			}

			if waitFor(ctx, r.clock, wait) != nil {
				return
			}
		}
	}()
}

// Stop cancels the polling loop and waits for in flight tasks to finish.
func (r *TaskRunner) Stop() {
	if r.cancel == nil {
		return
	}

	r.cancel()
	r.wg.Wait()
}

// RunOnce claims one batch of due tasks and executes them. It returns the number of tasks claimed.
func (r *TaskRunner) RunOnce(ctx context.Context) (int, error) {
	tasks, err := r.queue.Claim(ctx, r.clock.Now(), r.lease, r.batchSize)
	if err != nil {
		return 0, err
	}

	// A failed ack or re-enqueue must not strand the rest of the batch until its lease expires.
	var first error
	for _, t := range tasks {
		err := r.execute(ctx, t)
		if err != nil && first == nil {
			first = errors.Wrap(err, "execute task", j.MKV{"task_id": t.ID})
		}
	}

	return len(tasks), first
}

func (r *TaskRunner) execute(ctx context.Context, t Task) error {
	r.mu.RLock()
	fn, ok := r.funcs[t.Name]
	r.mu.RUnlock()

	var runErr error
	if !ok {
		runErr = Permanent(errors.Wrap(ErrTaskNotRegistered, "", j.MKV{"task_name": t.Name}))
	} else {
		runErr = fn(ctx, t)
	}

	if runErr == nil {
		metrics.TaskExecutions.WithLabelValues(t.Name, "ok").Inc()
		r.logger.Debug(ctx, "task completed", map[string]string{
			"task_id":   t.ID,
			"task_name": t.Name,
			"attempt":   strconv.Itoa(t.Attempt),
		})
		return r.queue.Ack(ctx, t.ID)
	}

	t.Attempt++
	t.LastError = runErr.Error()

	if IsPermanent(runErr) || t.Attempt >= r.maxAttempts {
		metrics.TaskExecutions.WithLabelValues(t.Name, "dead").Inc()

		err := runErr
		if !IsPermanent(runErr) {
			err = errors.Wrap(ErrRetriesExhausted, runErr.Error())
		}

		r.logger.Error(ctx, errors.Wrap(err, "task dead lettered", j.MKV{
			"task_id":   t.ID,
			"task_name": t.Name,
			"attempt":   strconv.Itoa(t.Attempt),
		}))

		if r.deadLetter != nil {
			r.deadLetter(ctx, t, err)
		}

		return r.queue.Ack(ctx, t.ID)
	}

	metrics.TaskExecutions.WithLabelValues(t.Name, "retry").Inc()
	t.RunAt = r.clock.Now().Add(r.backOff(t.Attempt))
	return r.queue.Enqueue(ctx, t)
}

// backOff returns base * 2^(attempt-1) capped at the configured maximum.
func (r *TaskRunner) backOff(attempt int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval: r.baseBackOff,
		Multiplier:      2,
		MaxInterval:     r.maxBackOff,
		Stop:            backoff.Stop,
		Clock:           r.clock,
	}
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}

	return d
}
