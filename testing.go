package statusflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/stretchr/testify/require"
)

const testingPollInterval = 10 * time.Millisecond

// Require blocks until the entity reaches status and fails the test if the status is not part of the workflow.
func Require(t testing.TB, e *Engine, workflow, entityID string, status StatusCode) *Entity {
	if t == nil {
		panic("Require can only be used for testing")
	}

	schema, err := e.registry.Schema(workflow)
	require.NoError(t, err)

	if !schema.Contains(status) {
		t.Error(fmt.Sprintf(`Status provided is not configured for workflow: "%v" (Workflow: %v)`, status, workflow))
		return nil
	}

	return WaitFor(t, e, workflow, entityID, func(ent *Entity) (bool, error) {
		return ent.Status == status, nil
	})
}

// WaitFor polls the entity until fn returns true. Entities that do not exist yet are waited for as well.
func WaitFor(t testing.TB, e *Engine, workflow, entityID string, fn func(ent *Entity) (bool, error)) *Entity {
	if t == nil {
		panic("WaitFor can only be used for testing")
	}

	ctx := context.Background()
	for {
		ent, err := e.store.Lookup(ctx, workflow, entityID)
		if errors.Is(err, ErrEntityNotFound) {
			time.Sleep(testingPollInterval)
			continue
		}
		require.NoError(t, err)

		ok, err := fn(ent)
		require.NoError(t, err)

		if ok {
			return ent
		}

		time.Sleep(testingPollInterval)
	}
}

// NewTestingTransition builds the Transition a handler would receive for moving e to "to". It is meant for unit
// testing handlers without an Engine.
func NewTestingTransition(t testing.TB, e Entity, to StatusCode, actor Actor, opts ...TestingTransitionOption) Transition {
	if t == nil {
		panic("Cannot use NewTestingTransition without testing.TB parameter")
	}

	tr := Transition{
		Workflow:  e.Workflow,
		Entity:    e,
		From:      e.Status,
		To:        to,
		Actor:     actor,
		HistoryID: "testing-history-id",
		Path: AllowedPath{
			Origin:      e.Status,
			Destination: to,
			Type:        PathTypeHappy,
		},
	}

	for _, opt := range opts {
		opt(&tr)
	}

	return tr
}

type TestingTransitionOption func(t *Transition)

func WithTestingReason(reason string) TestingTransitionOption {
	return func(t *Transition) {
		t.Reason = reason
	}
}

func WithTestingPathType(p PathType) TestingTransitionOption {
	return func(t *Transition) {
		t.Path.Type = p
	}
}

func WithTestingHistoryID(id string) TestingTransitionOption {
	return func(t *Transition) {
		t.HistoryID = id
	}
}
