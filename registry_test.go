package statusflow_test

import (
	"testing"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/julo/statusflow"
)

func TestRegistry(t *testing.T) {
	statuses := newStatuses(t)
	schema := newSchema(t, statuses)

	bound := statusflow.HandlerFuncs{}
	r, err := statusflow.NewRegistry(statuses, []*statusflow.Schema{schema}, statusflow.HandlerBinding{
		Workflow: workflowName,
		Status:   statusFlaggedForFraud,
		Handler:  bound,
	})
	jtest.RequireNil(t, err)

	require.Equal(t, []string{workflowName}, r.Workflows())
	require.Equal(t, statuses, r.Statuses())

	s, err := r.Schema(workflowName)
	jtest.RequireNil(t, err)
	require.Equal(t, schema, s)

	_, err = r.Schema("Grab")
	require.ErrorIs(t, err, statusflow.ErrUnknownWorkflow)

	require.Equal(t, bound, r.Handler(workflowName, statusFlaggedForFraud))
	require.Equal(t, statusflow.NoopHandler{}, r.Handler(workflowName, statusCustomerOnDeletion))
}

func TestRegistryBindingValidation(t *testing.T) {
	statuses := newStatuses(t)
	schema := newSchema(t, statuses)

	testCases := []struct {
		name        string
		bindings    []statusflow.HandlerBinding
		expectedErr error
	}{
		{
			name:        "Unknown workflow",
			bindings:    []statusflow.HandlerBinding{{Workflow: "Grab", Status: statusFlaggedForFraud, Handler: statusflow.NoopHandler{}}},
			expectedErr: statusflow.ErrUnknownWorkflow,
		},
		{
			name:        "Unknown status",
			bindings:    []statusflow.HandlerBinding{{Workflow: workflowName, Status: 999, Handler: statusflow.NoopHandler{}}},
			expectedErr: statusflow.ErrUnknownStatus,
		},
		{
			name:        "Status never entered by a path",
			bindings:    []statusflow.HandlerBinding{{Workflow: workflowName, Status: statusFormCreated, Handler: statusflow.NoopHandler{}}},
			expectedErr: statusflow.ErrHandlerNotReachable,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := statusflow.NewRegistry(statuses, []*statusflow.Schema{schema}, tc.bindings...)
			require.ErrorIs(t, err, tc.expectedErr)
		})
	}

	t.Run("Bound twice", func(t *testing.T) {
		b := statusflow.HandlerBinding{Workflow: workflowName, Status: statusFlaggedForFraud, Handler: statusflow.NoopHandler{}}
		_, err := statusflow.NewRegistry(statuses, []*statusflow.Schema{schema}, b, b)
		require.Error(t, err)
	})

	t.Run("Workflow registered twice", func(t *testing.T) {
		_, err := statusflow.NewRegistry(statuses, []*statusflow.Schema{schema, schema})
		require.Error(t, err)
	})

	t.Run("Schema from another status registry", func(t *testing.T) {
		_, err := statusflow.NewRegistry(newStatuses(t), []*statusflow.Schema{schema})
		require.Error(t, err)
	})
}
