package statusflow_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/julo/statusflow"
)

func TestValidateTransition(t *testing.T) {
	s := newSchema(t, newStatuses(t))

	testCases := []struct {
		name        string
		origin      statusflow.StatusCode
		destination statusflow.StatusCode
		role        statusflow.Role
		expectedErr error
		expected    statusflow.PathType
	}{
		{
			name:        "Customer requests deletion",
			origin:      statusFormSubmitted,
			destination: statusCustomerOnDeletion,
			role:        statusflow.RoleCustomer,
			expected:    statusflow.PathTypeGraveyard,
		},
		{
			name:        "Agent verifies documents",
			origin:      statusDocumentsSubmitted,
			destination: statusDocumentsVerified,
			role:        statusflow.RoleAgent,
			expected:    statusflow.PathTypeHappy,
		},
		{
			name:        "Customer cannot verify documents",
			origin:      statusDocumentsSubmitted,
			destination: statusDocumentsVerified,
			role:        statusflow.RoleCustomer,
			expectedErr: statusflow.ErrForbiddenActor,
		},
		{
			name:        "System may take paths without flags",
			origin:      statusCustomerOnDeletion,
			destination: statusCustomerDeleted,
			role:        statusflow.RoleSystem,
			expected:    statusflow.PathTypeGraveyard,
		},
		{
			name:        "Undefined destination",
			origin:      statusCustomerOnDeletion,
			destination: 999,
			role:        statusflow.RoleSystem,
			expectedErr: statusflow.ErrUnknownTransition,
		},
		{
			name:        "Reverse of a path",
			origin:      statusCustomerOnDeletion,
			destination: statusFormSubmitted,
			role:        statusflow.RoleAgent,
			expectedErr: statusflow.ErrUnknownTransition,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := statusflow.ValidateTransition(s, tc.origin, tc.destination, tc.role)
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
				require.Equal(t, statusflow.AllowedPath{}, p)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.origin, p.Origin)
			require.Equal(t, tc.destination, p.Destination)
			require.Equal(t, tc.expected, p.Type)
		})
	}
}

func TestAvailableTransitionsByRole(t *testing.T) {
	s := newSchema(t, newStatuses(t))

	require.Len(t, statusflow.AvailableTransitions(s, statusDocumentsVerified, statusflow.RoleAgent), 2)
	require.Empty(t, statusflow.AvailableTransitions(s, statusDocumentsVerified, statusflow.RoleCustomer))
	require.Empty(t, statusflow.AvailableTransitions(s, statusLocApproved, statusflow.RoleSystem))
}

func TestPathType(t *testing.T) {
	for _, p := range []statusflow.PathType{statusflow.PathTypeHappy, statusflow.PathTypeDetour, statusflow.PathTypeGraveyard} {
		parsed, ok := statusflow.ParsePathType(p.String())
		require.True(t, ok)
		require.Equal(t, p, parsed)
	}

	_, ok := statusflow.ParsePathType("shortcut")
	require.False(t, ok)
}
