package statusflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"
	clock_testing "k8s.io/utils/clock/testing"

	"github.com/julo/statusflow"
	"github.com/julo/statusflow/adapters/memqueue"
)

type deadLetter struct {
	task statusflow.Task
	err  error
}

func newTaskRunner(t *testing.T, opts ...statusflow.TaskRunnerOption) (*statusflow.TaskRunner, *memqueue.Queue, *clock_testing.FakeClock, *[]deadLetter) {
	clock := clock_testing.NewFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	q := memqueue.New()

	var dead []deadLetter
	opts = append([]statusflow.TaskRunnerOption{
		statusflow.WithTaskRunnerClock(clock),
		statusflow.WithTaskRetries(3, time.Second, 3*time.Second),
		statusflow.WithDeadLetter(func(ctx context.Context, task statusflow.Task, err error) {
			dead = append(dead, deadLetter{task: task, err: err})
		}),
	}, opts...)

	return statusflow.NewTaskRunner(q, opts...), q, clock, &dead
}

func TestTaskRunnerSuccess(t *testing.T) {
	r, q, clock, dead := newTaskRunner(t)
	ctx := t.Context()

	var got []statusflow.Task
	r.Register("notify_customer", func(ctx context.Context, task statusflow.Task) error {
		got = append(got, task)
		return nil
	})

	err := q.Enqueue(ctx, statusflow.Task{
		ID:    "hist-1-0",
		Name:  "notify_customer",
		Args:  map[string]string{"entity_id": "app-1"},
		RunAt: clock.Now(),
	})
	jtest.RequireNil(t, err)

	n, err := r.RunOnce(ctx)
	jtest.RequireNil(t, err)
	require.Equal(t, 1, n)
	require.Len(t, got, 1)
	require.Equal(t, "app-1", got[0].Args["entity_id"])
	require.Empty(t, q.Tasks())
	require.Empty(t, *dead)
}

func TestTaskRunnerRetriesWithBackOff(t *testing.T) {
	r, q, clock, dead := newTaskRunner(t)
	ctx := t.Context()

	var calls int
	r.Register("partner_callback", func(ctx context.Context, task statusflow.Task) error {
		calls++
		require.Equal(t, calls-1, task.Attempt)
		return errors.New("partner unavailable")
	})

	err := q.Enqueue(ctx, statusflow.Task{ID: "hist-1-0", Name: "partner_callback", RunAt: clock.Now()})
	jtest.RequireNil(t, err)

	n, err := r.RunOnce(ctx)
	jtest.RequireNil(t, err)
	require.Equal(t, 1, n)

	tasks := q.Tasks()
	require.Len(t, tasks, 1)
	require.Equal(t, 1, tasks[0].Attempt)
	require.Equal(t, "partner unavailable", tasks[0].LastError)
	require.Equal(t, clock.Now().Add(time.Second), tasks[0].RunAt)

	// Not due until the backoff elapses.
	n, err = r.RunOnce(ctx)
	jtest.RequireNil(t, err)
	require.Equal(t, 0, n)

	clock.Step(time.Second)
	n, err = r.RunOnce(ctx)
	jtest.RequireNil(t, err)
	require.Equal(t, 1, n)

	tasks = q.Tasks()
	require.Len(t, tasks, 1)
	require.Equal(t, 2, tasks[0].Attempt)
	require.Equal(t, clock.Now().Add(2*time.Second), tasks[0].RunAt)

	clock.Step(2 * time.Second)
	n, err = r.RunOnce(ctx)
	jtest.RequireNil(t, err)
	require.Equal(t, 1, n)

	require.Equal(t, 3, calls)
	require.Empty(t, q.Tasks())
	require.Len(t, *dead, 1)
	require.Equal(t, 3, (*dead)[0].task.Attempt)
	require.ErrorIs(t, (*dead)[0].err, statusflow.ErrRetriesExhausted)
}

type failingAckQueue struct {
	*memqueue.Queue
	failID string
	err    error
}

func (q *failingAckQueue) Ack(ctx context.Context, id string) error {
	if id == q.failID {
		return q.err
	}

	return q.Queue.Ack(ctx, id)
}

func TestTaskRunnerFinishesBatchAfterAckFailure(t *testing.T) {
	clock := clock_testing.NewFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	ackErr := errors.New("queue unavailable")
	q := &failingAckQueue{Queue: memqueue.New(), failID: "hist-1-0", err: ackErr}
	r := statusflow.NewTaskRunner(q, statusflow.WithTaskRunnerClock(clock))
	ctx := t.Context()

	var ran []string
	r.Register("partner_callback", func(ctx context.Context, task statusflow.Task) error {
		ran = append(ran, task.ID)
		return nil
	})

	for _, id := range []string{"hist-1-0", "hist-2-0", "hist-3-0"} {
		err := q.Enqueue(ctx, statusflow.Task{ID: id, Name: "partner_callback", RunAt: clock.Now()})
		jtest.RequireNil(t, err)
	}

	n, err := r.RunOnce(ctx)
	require.ErrorIs(t, err, ackErr)
	require.Equal(t, 3, n)
	require.ElementsMatch(t, []string{"hist-1-0", "hist-2-0", "hist-3-0"}, ran)

	// Only the task whose ack failed is left to be claimed again.
	tasks := q.Tasks()
	require.Len(t, tasks, 1)
	require.Equal(t, "hist-1-0", tasks[0].ID)
}

func TestTaskRunnerPermanentFailure(t *testing.T) {
	r, q, clock, dead := newTaskRunner(t)
	ctx := t.Context()

	var calls int
	r.Register("partner_callback", func(ctx context.Context, task statusflow.Task) error {
		calls++
		return statusflow.Permanent(errors.New("partner rejected callback"))
	})

	err := q.Enqueue(ctx, statusflow.Task{ID: "hist-1-0", Name: "partner_callback", RunAt: clock.Now()})
	jtest.RequireNil(t, err)

	_, err = r.RunOnce(ctx)
	jtest.RequireNil(t, err)

	require.Equal(t, 1, calls)
	require.Empty(t, q.Tasks())
	require.Len(t, *dead, 1)
	require.True(t, statusflow.IsPermanent((*dead)[0].err))
	require.Equal(t, 1, (*dead)[0].task.Attempt)
}

func TestTaskRunnerUnregisteredTask(t *testing.T) {
	r, q, clock, dead := newTaskRunner(t)
	ctx := t.Context()

	err := q.Enqueue(ctx, statusflow.Task{ID: "hist-1-0", Name: "unknown", RunAt: clock.Now()})
	jtest.RequireNil(t, err)

	_, err = r.RunOnce(ctx)
	jtest.RequireNil(t, err)

	require.Empty(t, q.Tasks())
	require.Len(t, *dead, 1)
	require.ErrorIs(t, (*dead)[0].err, statusflow.ErrTaskNotRegistered)
}

func TestTaskRunnerRun(t *testing.T) {
	r, q, clock, _ := newTaskRunner(t, statusflow.WithTaskPollingFrequency(time.Minute))
	ctx := t.Context()

	done := make(chan string, 2)
	r.Register("notify_customer", func(ctx context.Context, task statusflow.Task) error {
		done <- task.ID
		return nil
	})

	err := q.Enqueue(ctx, statusflow.Task{ID: "hist-1-0", Name: "notify_customer", RunAt: clock.Now()})
	jtest.RequireNil(t, err)

	r.Run(ctx)
	t.Cleanup(r.Stop)

	require.Equal(t, "hist-1-0", <-done)

	err = q.Enqueue(ctx, statusflow.Task{ID: "hist-2-0", Name: "notify_customer", RunAt: clock.Now()})
	jtest.RequireNil(t, err)

	require.Eventually(t, clock.HasWaiters, time.Second, 10*time.Millisecond)
	clock.Step(time.Minute)

	require.Equal(t, "hist-2-0", <-done)
}

func TestEngineTasksExecutedByRunner(t *testing.T) {
	h := newHarness(t, []statusflow.HandlerBinding{{
		Workflow: workflowName,
		Status:   statusCustomerOnDeletion,
		Handler: statusflow.HandlerFuncs{
			TasksFunc: func(tr statusflow.Transition) []statusflow.Task {
				return []statusflow.Task{{Name: "delete_customer_data", Args: map[string]string{"entity_id": tr.Entity.ID}}}
			},
		},
	}}, nil)
	ctx := t.Context()
	h.create(t, "app-1", statusFormSubmitted)

	_, err := h.engine.Apply(ctx, statusflow.TransitionRequest{
		Workflow:    workflowName,
		EntityID:    "app-1",
		Destination: statusCustomerOnDeletion,
		Reason:      "customer request",
		Actor:       customer("cust-1"),
	})
	jtest.RequireNil(t, err)

	var deleted []string
	r := statusflow.NewTaskRunner(h.queue)
	r.Register("delete_customer_data", func(ctx context.Context, task statusflow.Task) error {
		deleted = append(deleted, task.Args["entity_id"])
		return nil
	})

	n, err := r.RunOnce(ctx)
	jtest.RequireNil(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"app-1"}, deleted)
	require.Empty(t, h.queue.Tasks())
}
