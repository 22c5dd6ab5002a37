package statusflow

import (
	"slices"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

type handlerKey struct {
	workflow string
	status   StatusCode
}

// Registry is the immutable set of statuses, workflow schemas and handler bindings an Engine works with.
type Registry struct {
	statuses *StatusRegistry
	schemas  map[string]*Schema
	order    []string
	handlers map[handlerKey]Handler
}

// NewRegistry validates and assembles a Registry. Every schema must have been built against statuses and every
// binding must target a status that is a destination of its workflow.
func NewRegistry(statuses *StatusRegistry, schemas []*Schema, bindings ...HandlerBinding) (*Registry, error) {
	r := &Registry{
		statuses: statuses,
		schemas:  make(map[string]*Schema, len(schemas)),
		handlers: make(map[handlerKey]Handler, len(bindings)),
	}

	for _, s := range schemas {
		if _, ok := r.schemas[s.Name()]; ok {
			return nil, errors.New("workflow registered twice", j.MKV{"workflow": s.Name()})
		}

		if s.Statuses() != statuses {
			return nil, errors.New("schema built against a different status registry", j.MKV{"workflow": s.Name()})
		}

		r.schemas[s.Name()] = s
		r.order = append(r.order, s.Name())
	}

	for _, b := range bindings {
		meta := j.MKV{"workflow": b.Workflow, "status": b.Status.String()}

		s, ok := r.schemas[b.Workflow]
		if !ok {
			return nil, errors.Wrap(ErrUnknownWorkflow, "handler binding", meta)
		}

		if !statuses.IsValid(b.Status) {
			return nil, errors.Wrap(ErrUnknownStatus, "handler binding", meta)
		}

		if !s.IsDestination(b.Status) {
			return nil, errors.Wrap(ErrHandlerNotReachable, "", meta)
		}

		if b.Handler == nil {
			return nil, errors.New("nil handler", meta)
		}

		key := handlerKey{workflow: b.Workflow, status: b.Status}
		if _, ok := r.handlers[key]; ok {
			return nil, errors.New("handler bound twice", meta)
		}

		r.handlers[key] = b.Handler
	}

	return r, nil
}

func (r *Registry) Statuses() *StatusRegistry {
	return r.statuses
}

func (r *Registry) Schema(workflow string) (*Schema, error) {
	s, ok := r.schemas[workflow]
	if !ok {
		return nil, errors.Wrap(ErrUnknownWorkflow, "", j.MKV{"workflow": workflow})
	}

	return s, nil
}

// Workflows returns the registered workflow names in registration order.
func (r *Registry) Workflows() []string {
	return slices.Clone(r.order)
}

// Handler returns the handler bound to the destination status, or NoopHandler.
func (r *Registry) Handler(workflow string, destination StatusCode) Handler {
	h, ok := r.handlers[handlerKey{workflow: workflow, status: destination}]
	if !ok {
		return NoopHandler{}
	}

	return h
}
