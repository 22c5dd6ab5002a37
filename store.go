package statusflow

import (
	"context"
	"time"
)

// Entity is the persisted state of a loan application, account or any other entity governed by a workflow.
// Version increases by one on every committed transition.
type Entity struct {
	ID        string
	Workflow  string
	Status    StatusCode
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Update describes a compare-and-set of an entity's status together with the history row to append.
type Update struct {
	Workflow string
	EntityID string
	From     StatusCode
	To       StatusCode
	// Version is the version the entity is expected to have before the update.
	Version int64
	History History
}

// Store implementations should all be tested with adaptertest.RunStoreTest. Transition must update the entity and
// append the history row in a single transaction: either both are visible or neither is.
type Store interface {
	// Create inserts e along with its initial history row. Returns ErrEntityExists when the id is taken.
	Create(ctx context.Context, e Entity, h History) error
	// Lookup returns ErrEntityNotFound when no entity exists.
	Lookup(ctx context.Context, workflow, id string) (*Entity, error)
	// Transition applies u. When the entity no longer has u.From and u.Version it returns ErrStatusConflict and
	// writes nothing.
	Transition(ctx context.Context, u Update) (*Entity, error)
	// History returns the rows of an entity ordered oldest first.
	History(ctx context.Context, workflow, id string) ([]History, error)
	// List returns up to limit entities of workflow currently in status, ordered by id, starting after afterID.
	List(ctx context.Context, workflow string, status StatusCode, afterID string, limit int) ([]Entity, error)
}
