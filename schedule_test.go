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
	"github.com/julo/statusflow/adapters/memlock"
)

func expireJob(filter func(ctx context.Context, e statusflow.Entity, now time.Time) (bool, error)) statusflow.BatchJob {
	return statusflow.BatchJob{
		Name:        "expire-partial-forms",
		Spec:        "0 2 * * *",
		Workflow:    workflowName,
		Origin:      statusFormPartial,
		Destination: statusFormPartialExpired,
		Reason:      "form expired",
		Filter:      filter,
	}
}

// partialForm creates an entity and moves it to 105 the way a customer would.
func (h *harness) partialForm(t *testing.T, id string) {
	h.create(t, id, statusFormCreated)

	_, err := h.engine.Apply(context.Background(), statusflow.TransitionRequest{
		Workflow:    workflowName,
		EntityID:    id,
		Destination: statusFormPartial,
		Reason:      "form started",
		Actor:       customer("cust-" + id),
	})
	require.NoError(t, err)
}

func TestSchedulerAdd(t *testing.T) {
	h := newHarness(t, nil, nil)
	s := statusflow.NewScheduler(h.engine, memlock.NewRoleScheduler())

	jtest.RequireNil(t, s.Add(expireJob(nil)))

	testCases := []struct {
		name        string
		job         statusflow.BatchJob
		expectedErr error
	}{
		{
			name: "Unknown workflow",
			job: func() statusflow.BatchJob {
				j := expireJob(nil)
				j.Name = "other"
				j.Workflow = "Grab"
				return j
			}(),
			expectedErr: statusflow.ErrUnknownWorkflow,
		},
		{
			name: "Path not in schema",
			job: func() statusflow.BatchJob {
				j := expireJob(nil)
				j.Name = "other"
				j.Origin = statusFormSubmitted
				return j
			}(),
			expectedErr: statusflow.ErrUnknownTransition,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, s.Add(tc.job), tc.expectedErr)
		})
	}

	t.Run("Invalid cron spec", func(t *testing.T) {
		j := expireJob(nil)
		j.Name = "other"
		j.Spec = "every day"
		require.Error(t, s.Add(j))
	})

	t.Run("Duplicate name", func(t *testing.T) {
		require.Error(t, s.Add(expireJob(nil)))
	})

	t.Run("Missing name", func(t *testing.T) {
		j := expireJob(nil)
		j.Name = ""
		require.Error(t, s.Add(j))
	})
}

func TestSchedulerRunJob(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := t.Context()

	for _, id := range []string{"app-1", "app-2", "app-3", "app-4", "app-5"} {
		h.partialForm(t, id)
	}
	h.create(t, "app-6", statusFormSubmitted)

	s := statusflow.NewScheduler(h.engine, memlock.NewRoleScheduler(), statusflow.WithSchedulerBatchSize(2))
	jtest.RequireNil(t, s.Add(expireJob(func(ctx context.Context, e statusflow.Entity, now time.Time) (bool, error) {
		return e.ID != "app-3", nil
	})))

	report, err := s.RunJob(ctx, "expire-partial-forms")
	jtest.RequireNil(t, err)
	require.Equal(t, statusflow.BatchReport{
		Job:      "expire-partial-forms",
		Selected: 4,
		Applied:  4,
	}, report)

	for _, id := range []string{"app-1", "app-2", "app-4", "app-5"} {
		e, err := h.engine.Lookup(ctx, workflowName, id)
		jtest.RequireNil(t, err)
		require.Equal(t, statusFormPartialExpired, e.Status)

		hist, err := h.engine.History(ctx, workflowName, id)
		jtest.RequireNil(t, err)
		last := hist[len(hist)-1]
		require.Equal(t, "form expired", last.ChangeReason)
		require.Equal(t, statusflow.SystemActor("scheduler:expire-partial-forms"), last.ChangedBy)
	}

	e, err := h.engine.Lookup(ctx, workflowName, "app-3")
	jtest.RequireNil(t, err)
	require.Equal(t, statusFormPartial, e.Status)

	_, err = s.RunJob(ctx, "unknown")
	require.Error(t, err)
}

func TestSchedulerSkipsRepeatedFailures(t *testing.T) {
	var attempts int
	h := newHarness(t, []statusflow.HandlerBinding{{
		Workflow: workflowName,
		Status:   statusFormPartialExpired,
		Handler: statusflow.HandlerFuncs{
			PreFunc: func(ctx context.Context, tr statusflow.Transition) error {
				if tr.Entity.ID != "app-2" {
					return nil
				}

				attempts++
				return errors.New("form service unavailable")
			},
		},
	}}, nil)
	ctx := t.Context()

	h.partialForm(t, "app-1")
	h.partialForm(t, "app-2")

	s := statusflow.NewScheduler(h.engine, memlock.NewRoleScheduler(), statusflow.WithMaxEntityFailures(2))
	jtest.RequireNil(t, s.Add(expireJob(nil)))

	report, err := s.RunJob(ctx, "expire-partial-forms")
	jtest.RequireNil(t, err)
	require.Equal(t, 1, report.Applied)
	require.Equal(t, 1, report.Failed)

	report, err = s.RunJob(ctx, "expire-partial-forms")
	jtest.RequireNil(t, err)
	require.Equal(t, 0, report.Applied)
	require.Equal(t, 1, report.Failed)

	report, err = s.RunJob(ctx, "expire-partial-forms")
	jtest.RequireNil(t, err)
	require.Equal(t, 0, report.Failed)
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, 2, attempts)
}

func TestSchedulerSkipsLockedEntities(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := t.Context()
	h.partialForm(t, "app-1")

	unlock, err := h.locker.Lock(ctx, statusflow.LockKey(workflowName, "app-1"), 0)
	jtest.RequireNil(t, err)

	s := statusflow.NewScheduler(h.engine, memlock.NewRoleScheduler())
	jtest.RequireNil(t, s.Add(expireJob(nil)))

	report, err := s.RunJob(ctx, "expire-partial-forms")
	jtest.RequireNil(t, err)
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, 0, report.Failed)

	jtest.RequireNil(t, unlock(ctx))

	report, err = s.RunJob(ctx, "expire-partial-forms")
	jtest.RequireNil(t, err)
	require.Equal(t, 1, report.Applied)
}

func TestSchedulerRun(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.partialForm(t, "app-1")

	clock := clock_testing.NewFakeClock(time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC))
	s := statusflow.NewScheduler(h.engine, memlock.NewRoleScheduler(), statusflow.WithSchedulerClock(clock))
	jtest.RequireNil(t, s.Add(expireJob(nil)))

	s.Run(t.Context())
	t.Cleanup(s.Stop)

	require.Eventually(t, clock.HasWaiters, time.Second, 10*time.Millisecond)

	e, err := h.engine.Lookup(t.Context(), workflowName, "app-1")
	jtest.RequireNil(t, err)
	require.Equal(t, statusFormPartial, e.Status)

	clock.Step(time.Hour)

	statusflow.Require(t, h.engine, workflowName, "app-1", statusFormPartialExpired)
}
