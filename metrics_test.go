package statusflow_test

import (
	"context"
	"testing"

	"github.com/luno/jettison/jtest"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/julo/statusflow"
	"github.com/julo/statusflow/internal/metrics"
)

func TestMetricTransitions(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := t.Context()
	h.create(t, "metrics-1", statusFormSubmitted)

	committed := metrics.Transitions.WithLabelValues(workflowName, "110", "185", "committed")
	rejected := metrics.Transitions.WithLabelValues(workflowName, "185", "110", "rejected")
	before := testutil.ToFloat64(committed)
	beforeRejected := testutil.ToFloat64(rejected)

	req := statusflow.TransitionRequest{
		Workflow:    workflowName,
		EntityID:    "metrics-1",
		Destination: statusCustomerOnDeletion,
		Reason:      "customer request",
		Actor:       customer("cust-1"),
	}
	_, err := h.engine.Apply(ctx, req)
	jtest.RequireNil(t, err)
	require.Equal(t, before+1, testutil.ToFloat64(committed))

	req.Destination = statusFormSubmitted
	_, err = h.engine.Apply(ctx, req)
	require.ErrorIs(t, err, statusflow.ErrUnknownTransition)
	require.Equal(t, beforeRejected+1, testutil.ToFloat64(rejected))
}

func TestMetricPostHookFailures(t *testing.T) {
	h := newHarness(t, []statusflow.HandlerBinding{{
		Workflow: workflowName,
		Status:   statusDocumentsSubmitted,
		Handler: statusflow.HandlerFuncs{
			PostFunc: func(ctx context.Context, tr statusflow.Transition) error {
				return context.DeadlineExceeded
			},
		},
	}}, nil)
	h.create(t, "metrics-2", statusFormSubmitted)

	failures := metrics.PostHookFailures.WithLabelValues(workflowName, "120")
	before := testutil.ToFloat64(failures)

	_, err := h.engine.Apply(t.Context(), statusflow.TransitionRequest{
		Workflow:    workflowName,
		EntityID:    "metrics-2",
		Destination: statusDocumentsSubmitted,
		Actor:       customer("cust-2"),
	})
	require.ErrorIs(t, err, statusflow.ErrPostHookFailure)
	require.Equal(t, before+1, testutil.ToFloat64(failures))
}
