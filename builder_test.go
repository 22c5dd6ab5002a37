package statusflow_test

import (
	"testing"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/julo/statusflow"
)

func TestSchemaBuilder(t *testing.T) {
	s := newSchema(t, newStatuses(t))

	require.Equal(t, workflowName, s.Name())
	require.Len(t, s.Paths(), 12)

	p, ok := s.Path(statusFormSubmitted, statusCustomerOnDeletion)
	require.True(t, ok)
	require.Equal(t, statusflow.AllowedPath{
		Origin:             statusFormSubmitted,
		Destination:        statusCustomerOnDeletion,
		CustomerAccessible: true,
		AgentAccessible:    true,
		Type:               statusflow.PathTypeGraveyard,
	}, p)

	_, ok = s.Path(statusCustomerOnDeletion, statusFormSubmitted)
	require.False(t, ok)

	require.True(t, s.HasSelfLoop(statusDocumentsSubmitted))
	require.False(t, s.HasSelfLoop(statusFormSubmitted))
	require.True(t, s.IsDestination(statusFlaggedForFraud))
	require.False(t, s.IsDestination(statusFormCreated))
	require.True(t, s.IsTerminal(statusLocApproved))
	require.False(t, s.IsTerminal(statusDocumentsSubmitted))
	require.Equal(t, []statusflow.StatusCode{statusFormCreated, statusFormSubmitted}, s.InitialStatuses())
	require.ElementsMatch(t, []statusflow.StatusCode{
		statusFormPartialExpired,
		statusLocApproved,
		statusApplicationDenied,
		statusCustomerDeleted,
	}, s.TerminalStatuses())
}

func TestSchemaBuilderDefaultInitial(t *testing.T) {
	statuses := newStatuses(t)
	s, err := statusflow.NewSchemaBuilder("Autodebet-BCA", statuses).
		AddPath(statusFormCreated, statusFormPartial, statusflow.PathTypeHappy).
		AddPath(statusFormPartial, statusFormSubmitted, statusflow.PathTypeHappy).
		Build()
	jtest.RequireNil(t, err)

	require.Equal(t, []statusflow.StatusCode{statusFormCreated}, s.InitialStatuses())
	require.True(t, s.IsInitial(statusFormCreated))
	require.False(t, s.IsInitial(statusFormSubmitted))
}

func TestSchemaBuilderErrors(t *testing.T) {
	statuses := newStatuses(t)

	testCases := []struct {
		name        string
		build       func(b *statusflow.SchemaBuilder) *statusflow.SchemaBuilder
		expectedErr error
	}{
		{
			name: "Duplicate path",
			build: func(b *statusflow.SchemaBuilder) *statusflow.SchemaBuilder {
				return b.
					AddPath(statusFormSubmitted, statusCustomerOnDeletion, statusflow.PathTypeGraveyard).
					AddPath(statusFormSubmitted, statusCustomerOnDeletion, statusflow.PathTypeDetour, statusflow.AgentAccessible())
			},
			expectedErr: statusflow.ErrDuplicatePath,
		},
		{
			name: "Unknown destination",
			build: func(b *statusflow.SchemaBuilder) *statusflow.SchemaBuilder {
				return b.AddPath(statusCustomerOnDeletion, 999, statusflow.PathTypeHappy)
			},
			expectedErr: statusflow.ErrUnknownStatus,
		},
		{
			name: "Unknown initial",
			build: func(b *statusflow.SchemaBuilder) *statusflow.SchemaBuilder {
				return b.AddPath(statusFormSubmitted, statusCustomerOnDeletion, statusflow.PathTypeGraveyard).AddInitial(999)
			},
			expectedErr: statusflow.ErrUnknownStatus,
		},
		{
			name: "Initial status outside of the schema",
			build: func(b *statusflow.SchemaBuilder) *statusflow.SchemaBuilder {
				return b.AddPath(statusFormSubmitted, statusCustomerOnDeletion, statusflow.PathTypeGraveyard).AddInitial(statusLocApproved)
			},
			expectedErr: statusflow.ErrInvalidInitial,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.build(statusflow.NewSchemaBuilder(workflowName, statuses)).Build()
			require.ErrorIs(t, err, tc.expectedErr)
		})
	}

	t.Run("Missing path type", func(t *testing.T) {
		_, err := statusflow.NewSchemaBuilder(workflowName, statuses).
			AddPath(statusFormSubmitted, statusCustomerOnDeletion, statusflow.PathTypeUnknown).
			Build()
		require.Error(t, err)
	})

	t.Run("No paths", func(t *testing.T) {
		_, err := statusflow.NewSchemaBuilder(workflowName, statuses).Build()
		require.Error(t, err)
	})

	t.Run("MustBuild panics", func(t *testing.T) {
		require.Panics(t, func() {
			statusflow.NewSchemaBuilder(workflowName, statuses).MustBuild()
		})
	})
}
