package adaptertest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/julo/statusflow"
)

// RunTaskQueueTest runs the conformance tests for statusflow.TaskQueue. Each test needs an empty queue.
func RunTaskQueueTest(t *testing.T, factory func() statusflow.TaskQueue) {
	tests := []func(t *testing.T, q statusflow.TaskQueue){
		testClaimDueTask,
		testClaimLease,
		testClaimFutureTask,
		testAck,
		testEnqueueReplaces,
		testClaimLimitAndOrder,
	}

	for _, test := range tests {
		test(t, factory())
	}
}

func newTask(runAt time.Time) statusflow.Task {
	return statusflow.Task{
		ID:   uuid.NewString(),
		Name: "send_deletion_notification",
		Args: map[string]string{
			"entity_id": "app-1",
			"channel":   "email",
		},
		RunAt: runAt,
	}
}

func testClaimDueTask(t *testing.T, q statusflow.TaskQueue) {
	t.Run("Due task is claimed with its fields", func(t *testing.T) {
		now := time.Now().Truncate(time.Millisecond)
		task := newTask(now)
		task.Attempt = 2
		task.LastError = "smtp unavailable"

		err := q.Enqueue(t.Context(), task)
		jtest.RequireNil(t, err)

		tasks, err := q.Claim(t.Context(), now, time.Minute, 10)
		jtest.RequireNil(t, err)
		require.Len(t, tasks, 1)
		require.Equal(t, task.ID, tasks[0].ID)
		require.Equal(t, task.Name, tasks[0].Name)
		require.Equal(t, task.Args, tasks[0].Args)
		require.Equal(t, 2, tasks[0].Attempt)
		require.Equal(t, "smtp unavailable", tasks[0].LastError)
		require.WithinDuration(t, now, tasks[0].RunAt, time.Millisecond)
	})
}

func testClaimLease(t *testing.T, q statusflow.TaskQueue) {
	t.Run("Claimed task reappears after the lease", func(t *testing.T) {
		now := time.Now().Truncate(time.Millisecond)
		task := newTask(now)
		jtest.RequireNil(t, q.Enqueue(t.Context(), task))

		tasks, err := q.Claim(t.Context(), now, time.Minute, 10)
		jtest.RequireNil(t, err)
		require.Len(t, tasks, 1)

		tasks, err = q.Claim(t.Context(), now.Add(30*time.Second), time.Minute, 10)
		jtest.RequireNil(t, err)
		require.Empty(t, tasks)

		tasks, err = q.Claim(t.Context(), now.Add(2*time.Minute), time.Minute, 10)
		jtest.RequireNil(t, err)
		require.Len(t, tasks, 1)
		require.Equal(t, task.ID, tasks[0].ID)
	})
}

func testClaimFutureTask(t *testing.T, q statusflow.TaskQueue) {
	t.Run("Task is not claimed before it is due", func(t *testing.T) {
		now := time.Now().Truncate(time.Millisecond)
		task := newTask(now.Add(time.Hour))
		jtest.RequireNil(t, q.Enqueue(t.Context(), task))

		tasks, err := q.Claim(t.Context(), now, time.Minute, 10)
		jtest.RequireNil(t, err)
		require.Empty(t, tasks)

		tasks, err = q.Claim(t.Context(), now.Add(time.Hour), time.Minute, 10)
		jtest.RequireNil(t, err)
		require.Len(t, tasks, 1)
	})
}

func testAck(t *testing.T, q statusflow.TaskQueue) {
	t.Run("Acked task is removed", func(t *testing.T) {
		now := time.Now().Truncate(time.Millisecond)
		task := newTask(now)
		jtest.RequireNil(t, q.Enqueue(t.Context(), task))

		tasks, err := q.Claim(t.Context(), now, time.Minute, 10)
		jtest.RequireNil(t, err)
		require.Len(t, tasks, 1)

		jtest.RequireNil(t, q.Ack(t.Context(), task.ID))

		tasks, err = q.Claim(t.Context(), now.Add(time.Hour), time.Minute, 10)
		jtest.RequireNil(t, err)
		require.Empty(t, tasks)
	})
}

func testEnqueueReplaces(t *testing.T, q statusflow.TaskQueue) {
	t.Run("Enqueue with an existing id replaces the task", func(t *testing.T) {
		now := time.Now().Truncate(time.Millisecond)
		task := newTask(now)
		jtest.RequireNil(t, q.Enqueue(t.Context(), task))

		tasks, err := q.Claim(t.Context(), now, time.Minute, 10)
		jtest.RequireNil(t, err)
		require.Len(t, tasks, 1)

		retry := tasks[0]
		retry.Attempt = 1
		retry.LastError = "timeout"
		retry.RunAt = now.Add(10 * time.Second)
		jtest.RequireNil(t, q.Enqueue(t.Context(), retry))

		tasks, err = q.Claim(t.Context(), now.Add(10*time.Second), time.Minute, 10)
		jtest.RequireNil(t, err)
		require.Len(t, tasks, 1)
		require.Equal(t, 1, tasks[0].Attempt)
		require.Equal(t, "timeout", tasks[0].LastError)
	})
}

func testClaimLimitAndOrder(t *testing.T, q statusflow.TaskQueue) {
	t.Run("Claim returns the oldest due tasks up to the limit", func(t *testing.T) {
		now := time.Now().Truncate(time.Millisecond)

		var ids []string
		for i := range 4 {
			task := newTask(now.Add(time.Duration(i-4) * time.Second))
			jtest.RequireNil(t, q.Enqueue(t.Context(), task))
			ids = append(ids, task.ID)
		}

		tasks, err := q.Claim(t.Context(), now, time.Minute, 3)
		jtest.RequireNil(t, err)
		require.Len(t, tasks, 3)
		for i, task := range tasks {
			require.Equal(t, ids[i], task.ID)
		}

		tasks, err = q.Claim(t.Context(), now, time.Minute, 3)
		jtest.RequireNil(t, err)
		require.Len(t, tasks, 1)
		require.Equal(t, ids[3], tasks[0].ID)
	})
}
