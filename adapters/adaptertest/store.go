package adaptertest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/julo/statusflow"
)

const (
	statusFormSubmitted     statusflow.StatusCode = 110
	statusScrapedDataVerify statusflow.StatusCode = 120
	statusDocumentsVerified statusflow.StatusCode = 124
	statusOnDeletion        statusflow.StatusCode = 185
)

// RunStoreTest runs the conformance tests for statusflow.Store. Each test uses fresh entity ids so a factory may
// return stores sharing one database.
func RunStoreTest(t *testing.T, factory func() statusflow.Store) {
	tests := []func(t *testing.T, store statusflow.Store){
		testCreateAndLookup,
		testCreateDuplicate,
		testLookupNotFound,
		testTransition,
		testTransitionConflict,
		testTransitionStaleVersion,
		testWorkflowScope,
		testList,
	}

	for _, test := range tests {
		test(t, factory())
	}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func newEntity(workflow string, status statusflow.StatusCode) statusflow.Entity {
	createdAt := now()
	return statusflow.Entity{
		ID:        uuid.NewString(),
		Workflow:  workflow,
		Status:    status,
		Version:   1,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func create(t *testing.T, store statusflow.Store, e statusflow.Entity) statusflow.History {
	h := statusflow.RecordTransition(e, 0, e.Status, "application form submitted", statusflow.Actor{
		ID:   "customer-1",
		Role: statusflow.RoleCustomer,
	}, statusflow.PathTypeHappy, e.CreatedAt)

	err := store.Create(t.Context(), e, h)
	jtest.RequireNil(t, err)

	return h
}

func requireHistoryEqual(t *testing.T, expected, actual statusflow.History) {
	require.Equal(t, expected.ID, actual.ID)
	require.Equal(t, expected.EntityID, actual.EntityID)
	require.Equal(t, expected.Workflow, actual.Workflow)
	require.Equal(t, expected.StatusOld, actual.StatusOld)
	require.Equal(t, expected.StatusNew, actual.StatusNew)
	require.Equal(t, expected.ChangeReason, actual.ChangeReason)
	require.Equal(t, expected.ChangedBy, actual.ChangedBy)
	require.Equal(t, expected.PathType, actual.PathType)
	require.WithinDuration(t, expected.CreatedAt, actual.CreatedAt, time.Second)
}

func testCreateAndLookup(t *testing.T, store statusflow.Store) {
	t.Run("Create and lookup", func(t *testing.T) {
		e := newEntity("JuloOne", statusFormSubmitted)
		h := create(t, store, e)

		actual, err := store.Lookup(t.Context(), e.Workflow, e.ID)
		jtest.RequireNil(t, err)
		require.Equal(t, e.ID, actual.ID)
		require.Equal(t, e.Workflow, actual.Workflow)
		require.Equal(t, e.Status, actual.Status)
		require.Equal(t, int64(1), actual.Version)
		require.WithinDuration(t, e.CreatedAt, actual.CreatedAt, time.Second)

		history, err := store.History(t.Context(), e.Workflow, e.ID)
		jtest.RequireNil(t, err)
		require.Len(t, history, 1)
		requireHistoryEqual(t, h, history[0])
	})
}

func testCreateDuplicate(t *testing.T, store statusflow.Store) {
	t.Run("Create with a taken id fails", func(t *testing.T) {
		e := newEntity("JuloOne", statusFormSubmitted)
		create(t, store, e)

		h := statusflow.RecordTransition(e, 0, e.Status, "", statusflow.SystemActor("test"), statusflow.PathTypeHappy, now())
		err := store.Create(t.Context(), e, h)
		require.ErrorIs(t, err, statusflow.ErrEntityExists)
	})
}

func testLookupNotFound(t *testing.T, store statusflow.Store) {
	t.Run("Lookup of a missing entity", func(t *testing.T) {
		_, err := store.Lookup(t.Context(), "JuloOne", uuid.NewString())
		require.ErrorIs(t, err, statusflow.ErrEntityNotFound)
	})
}

func testTransition(t *testing.T, store statusflow.Store) {
	t.Run("Transition updates the entity and appends history", func(t *testing.T) {
		e := newEntity("JuloOne", statusFormSubmitted)
		first := create(t, store, e)

		actor := statusflow.Actor{ID: "agent-7", Role: statusflow.RoleAgent}
		h := statusflow.RecordTransition(e, statusFormSubmitted, statusScrapedDataVerify, "scraped data checked", actor, statusflow.PathTypeHappy, now().Add(time.Second))
		updated, err := store.Transition(t.Context(), statusflow.Update{
			Workflow: e.Workflow,
			EntityID: e.ID,
			From:     statusFormSubmitted,
			To:       statusScrapedDataVerify,
			Version:  1,
			History:  h,
		})
		jtest.RequireNil(t, err)
		require.Equal(t, statusScrapedDataVerify, updated.Status)
		require.Equal(t, int64(2), updated.Version)

		actual, err := store.Lookup(t.Context(), e.Workflow, e.ID)
		jtest.RequireNil(t, err)
		require.Equal(t, statusScrapedDataVerify, actual.Status)
		require.Equal(t, int64(2), actual.Version)

		history, err := store.History(t.Context(), e.Workflow, e.ID)
		jtest.RequireNil(t, err)
		require.Len(t, history, 2)
		requireHistoryEqual(t, first, history[0])
		requireHistoryEqual(t, h, history[1])

		status, err := statusflow.Replay(history)
		jtest.RequireNil(t, err)
		require.Equal(t, actual.Status, status)
	})
}

func testTransitionConflict(t *testing.T, store statusflow.Store) {
	t.Run("Transition from the wrong status writes nothing", func(t *testing.T) {
		e := newEntity("JuloOne", statusFormSubmitted)
		create(t, store, e)

		h := statusflow.RecordTransition(e, statusDocumentsVerified, statusOnDeletion, "", statusflow.SystemActor("test"), statusflow.PathTypeGraveyard, now())
		_, err := store.Transition(t.Context(), statusflow.Update{
			Workflow: e.Workflow,
			EntityID: e.ID,
			From:     statusDocumentsVerified,
			To:       statusOnDeletion,
			Version:  1,
			History:  h,
		})
		require.ErrorIs(t, err, statusflow.ErrStatusConflict)

		actual, err := store.Lookup(t.Context(), e.Workflow, e.ID)
		jtest.RequireNil(t, err)
		require.Equal(t, statusFormSubmitted, actual.Status)

		history, err := store.History(t.Context(), e.Workflow, e.ID)
		jtest.RequireNil(t, err)
		require.Len(t, history, 1)
	})
}

func testTransitionStaleVersion(t *testing.T, store statusflow.Store) {
	t.Run("Transition with a stale version writes nothing", func(t *testing.T) {
		e := newEntity("JuloOne", statusFormSubmitted)
		create(t, store, e)

		h := statusflow.RecordTransition(e, statusFormSubmitted, statusOnDeletion, "", statusflow.SystemActor("test"), statusflow.PathTypeGraveyard, now())
		_, err := store.Transition(t.Context(), statusflow.Update{
			Workflow: e.Workflow,
			EntityID: e.ID,
			From:     statusFormSubmitted,
			To:       statusOnDeletion,
			Version:  7,
			History:  h,
		})
		require.ErrorIs(t, err, statusflow.ErrStatusConflict)

		history, err := store.History(t.Context(), e.Workflow, e.ID)
		jtest.RequireNil(t, err)
		require.Len(t, history, 1)
	})
}

func testWorkflowScope(t *testing.T, store statusflow.Store) {
	t.Run("Entities are scoped by workflow", func(t *testing.T) {
		e := newEntity("JuloOne", statusFormSubmitted)
		create(t, store, e)

		other := e
		other.Workflow = "Autodebet-BCA"
		create(t, store, other)

		_, err := store.Lookup(t.Context(), "Grab", e.ID)
		require.ErrorIs(t, err, statusflow.ErrEntityNotFound)

		history, err := store.History(t.Context(), "Autodebet-BCA", e.ID)
		jtest.RequireNil(t, err)
		require.Len(t, history, 1)
		require.Equal(t, "Autodebet-BCA", history[0].Workflow)
	})
}

func testList(t *testing.T, store statusflow.Store) {
	t.Run("List pages through entities in a status", func(t *testing.T) {
		workflow := "list-" + uuid.NewString()

		var ids []string
		for range 5 {
			e := newEntity(workflow, statusFormSubmitted)
			create(t, store, e)
			ids = append(ids, e.ID)
		}

		other := newEntity(workflow, statusDocumentsVerified)
		create(t, store, other)

		page, err := store.List(t.Context(), workflow, statusFormSubmitted, "", 3)
		jtest.RequireNil(t, err)
		require.Len(t, page, 3)

		rest, err := store.List(t.Context(), workflow, statusFormSubmitted, page[2].ID, 3)
		jtest.RequireNil(t, err)
		require.Len(t, rest, 2)

		var listed []string
		for _, e := range append(page, rest...) {
			require.Equal(t, statusFormSubmitted, e.Status)
			listed = append(listed, e.ID)
		}
		require.ElementsMatch(t, ids, listed)
		require.IsIncreasing(t, listed)
	})
}
