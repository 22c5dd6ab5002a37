package statusflow_test

import (
	"testing"
	"time"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/julo/statusflow"
)

func TestRecordTransition(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	e := statusflow.Entity{ID: "app-1", Workflow: workflowName, Status: statusFormSubmitted}

	h := statusflow.RecordTransition(e, statusFormSubmitted, statusCustomerOnDeletion, "customer request", customer("cust-42"), statusflow.PathTypeGraveyard, now)
	require.NotEmpty(t, h.ID)
	require.Equal(t, "app-1", h.EntityID)
	require.Equal(t, workflowName, h.Workflow)
	require.Equal(t, statusFormSubmitted, h.StatusOld)
	require.Equal(t, statusCustomerOnDeletion, h.StatusNew)
	require.Equal(t, "customer request", h.ChangeReason)
	require.Equal(t, customer("cust-42"), h.ChangedBy)
	require.Equal(t, now, h.CreatedAt)

	h2 := statusflow.RecordTransition(e, statusFormSubmitted, statusCustomerOnDeletion, "customer request", customer("cust-42"), statusflow.PathTypeGraveyard, now)
	require.NotEqual(t, h.ID, h2.ID)
}

func TestReplay(t *testing.T) {
	rows := []statusflow.History{
		{ID: "1", StatusOld: 0, StatusNew: statusFormSubmitted},
		{ID: "2", StatusOld: statusFormSubmitted, StatusNew: statusDocumentsSubmitted},
		{ID: "3", StatusOld: statusDocumentsSubmitted, StatusNew: statusDocumentsSubmitted},
		{ID: "4", StatusOld: statusDocumentsSubmitted, StatusNew: statusDocumentsVerified},
	}

	status, err := statusflow.Replay(rows)
	jtest.RequireNil(t, err)
	require.Equal(t, statusDocumentsVerified, status)

	_, err = statusflow.Replay(nil)
	require.ErrorIs(t, err, statusflow.ErrBrokenHistory)

	broken := append([]statusflow.History(nil), rows...)
	broken[2].StatusOld = statusFlaggedForFraud
	_, err = statusflow.Replay(broken)
	require.ErrorIs(t, err, statusflow.ErrBrokenHistory)
}
