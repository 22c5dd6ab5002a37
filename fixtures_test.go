package statusflow_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/julo/statusflow"
	"github.com/julo/statusflow/adapters/memlock"
	"github.com/julo/statusflow/adapters/memqueue"
	"github.com/julo/statusflow/adapters/memstore"
)

const (
	statusFormCreated        statusflow.StatusCode = 100
	statusFormPartial        statusflow.StatusCode = 105
	statusFormPartialExpired statusflow.StatusCode = 106
	statusFormSubmitted      statusflow.StatusCode = 110
	statusDocumentsSubmitted statusflow.StatusCode = 120
	statusDocumentsVerified  statusflow.StatusCode = 124
	statusFlaggedForFraud    statusflow.StatusCode = 133
	statusApplicationDenied  statusflow.StatusCode = 135
	statusCustomerOnDeletion statusflow.StatusCode = 185
	statusCustomerDeleted    statusflow.StatusCode = 186
	statusLocApproved        statusflow.StatusCode = 190

	workflowName = "JuloOne"
)

func newStatuses(t testing.TB) *statusflow.StatusRegistry {
	statuses, err := statusflow.NewStatusRegistry(
		statusflow.Status{Code: statusFormCreated, Label: "FORM_CREATED"},
		statusflow.Status{Code: statusFormPartial, Label: "FORM_PARTIAL"},
		statusflow.Status{Code: statusFormPartialExpired, Label: "FORM_PARTIAL_EXPIRED", Groups: []statusflow.Group{statusflow.GroupGraveyard, statusflow.GroupTerminal}},
		statusflow.Status{Code: statusFormSubmitted, Label: "FORM_SUBMITTED"},
		statusflow.Status{Code: statusDocumentsSubmitted, Label: "DOCUMENTS_SUBMITTED"},
		statusflow.Status{Code: statusDocumentsVerified, Label: "DOCUMENTS_VERIFIED"},
		statusflow.Status{Code: statusFlaggedForFraud, Label: "APPLICATION_FLAGGED_FOR_FRAUD", Groups: []statusflow.Group{statusflow.GroupManualReview}},
		statusflow.Status{Code: statusApplicationDenied, Label: "APPLICATION_DENIED", Groups: []statusflow.Group{statusflow.GroupGraveyard, statusflow.GroupTerminal}},
		statusflow.Status{Code: statusCustomerOnDeletion, Label: "CUSTOMER_ON_DELETION", Groups: []statusflow.Group{statusflow.GroupGraveyard}},
		statusflow.Status{Code: statusCustomerDeleted, Label: "CUSTOMER_DELETED", Groups: []statusflow.Group{statusflow.GroupGraveyard, statusflow.GroupTerminal}},
		statusflow.Status{Code: statusLocApproved, Label: "LOC_APPROVED", Groups: []statusflow.Group{statusflow.GroupTerminal}},
	)
	require.NoError(t, err)

	return statuses
}

func newSchema(t testing.TB, statuses *statusflow.StatusRegistry) *statusflow.Schema {
	s, err := statusflow.NewSchemaBuilder(workflowName, statuses).
		AddPath(statusFormCreated, statusFormPartial, statusflow.PathTypeHappy, statusflow.CustomerAccessible()).
		AddPath(statusFormPartial, statusFormSubmitted, statusflow.PathTypeHappy, statusflow.CustomerAccessible()).
		AddPath(statusFormPartial, statusFormPartialExpired, statusflow.PathTypeGraveyard).
		AddPath(statusFormSubmitted, statusDocumentsSubmitted, statusflow.PathTypeHappy, statusflow.CustomerAccessible(), statusflow.AgentAccessible()).
		AddPath(statusFormSubmitted, statusCustomerOnDeletion, statusflow.PathTypeGraveyard, statusflow.CustomerAccessible(), statusflow.AgentAccessible()).
		AddPath(statusDocumentsSubmitted, statusDocumentsSubmitted, statusflow.PathTypeDetour, statusflow.AgentAccessible()).
		AddPath(statusDocumentsSubmitted, statusDocumentsVerified, statusflow.PathTypeHappy, statusflow.AgentAccessible()).
		AddPath(statusDocumentsVerified, statusFlaggedForFraud, statusflow.PathTypeDetour, statusflow.AgentAccessible()).
		AddPath(statusDocumentsVerified, statusLocApproved, statusflow.PathTypeHappy, statusflow.AgentAccessible()).
		AddPath(statusFlaggedForFraud, statusDocumentsVerified, statusflow.PathTypeDetour, statusflow.AgentAccessible()).
		AddPath(statusFlaggedForFraud, statusApplicationDenied, statusflow.PathTypeGraveyard, statusflow.AgentAccessible()).
		AddPath(statusCustomerOnDeletion, statusCustomerDeleted, statusflow.PathTypeGraveyard).
		AddInitial(statusFormCreated, statusFormSubmitted).
		Build()
	require.NoError(t, err)

	return s
}

type harness struct {
	engine *statusflow.Engine
	store  *memstore.Store
	queue  *memqueue.Queue
	locker *memlock.Locker
}

func newHarness(t testing.TB, bindings []statusflow.HandlerBinding, storeOpts []memstore.Option, opts ...statusflow.Option) *harness {
	statuses := newStatuses(t)
	registry, err := statusflow.NewRegistry(statuses, []*statusflow.Schema{newSchema(t, statuses)}, bindings...)
	require.NoError(t, err)

	h := &harness{
		store:  memstore.New(storeOpts...),
		queue:  memqueue.New(),
		locker: memlock.New(),
	}
	h.engine = statusflow.New(registry, h.store, h.locker, h.queue, opts...)

	return h
}

func (h *harness) create(t testing.TB, id string, status statusflow.StatusCode) *statusflow.Entity {
	e, err := h.engine.Create(context.Background(), statusflow.CreateRequest{
		Workflow: workflowName,
		EntityID: id,
		Initial:  status,
		Reason:   "created",
		Actor:    statusflow.SystemActor("test"),
	})
	require.NoError(t, err)

	return e
}

func customer(id string) statusflow.Actor {
	return statusflow.Actor{ID: id, Role: statusflow.RoleCustomer}
}

func agent(id string) statusflow.Actor {
	return statusflow.Actor{ID: id, Role: statusflow.RoleAgent}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []statusflow.TransitionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e statusflow.TransitionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Events() []statusflow.TransitionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]statusflow.TransitionEvent(nil), p.events...)
}
