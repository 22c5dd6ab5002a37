package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/julo/statusflow"
)

// New constructs and returns an in-memory Store configured by the provided options.
func New(opts ...Option) *Store {
	var opt options
	for _, o := range opts {
		o(&opt)
	}

	return &Store{
		entities:     make(map[key]statusflow.Entity),
		history:      make(map[key][]statusflow.History),
		beforeCommit: opt.beforeCommit,
	}
}

type options struct {
	beforeCommit func(u statusflow.Update) error
}

type Option func(o *options)

// WithBeforeCommit sets a hook that runs inside Transition after the compare-and-set check passed and before any
// write is applied. Returning an error aborts the transaction. Used to inject persistence failures in tests.
func WithBeforeCommit(fn func(u statusflow.Update) error) Option {
	return func(o *options) {
		o.beforeCommit = fn
	}
}

var _ statusflow.Store = (*Store)(nil)

type key struct {
	workflow string
	id       string
}

type Store struct {
	mu       sync.Mutex
	entities map[key]statusflow.Entity
	history  map[key][]statusflow.History

	beforeCommit func(u statusflow.Update) error
}

func (s *Store) Create(ctx context.Context, e statusflow.Entity, h statusflow.History) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{workflow: e.Workflow, id: e.ID}
	if _, ok := s.entities[k]; ok {
		return errors.Wrap(statusflow.ErrEntityExists, "", j.MKV{"workflow": e.Workflow, "entity_id": e.ID})
	}

	s.entities[k] = e
	s.history[k] = append(s.history[k], h)
	return nil
}

func (s *Store) Lookup(ctx context.Context, workflow, id string) (*statusflow.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[key{workflow: workflow, id: id}]
	if !ok {
		return nil, errors.Wrap(statusflow.ErrEntityNotFound, "", j.MKV{"workflow": workflow, "entity_id": id})
	}

	return &e, nil
}

func (s *Store) Transition(ctx context.Context, u statusflow.Update) (*statusflow.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{workflow: u.Workflow, id: u.EntityID}
	current, ok := s.entities[k]
	if !ok {
		return nil, errors.Wrap(statusflow.ErrEntityNotFound, "", j.MKV{"workflow": u.Workflow, "entity_id": u.EntityID})
	}

	if current.Status != u.From || current.Version != u.Version {
		return nil, errors.Wrap(statusflow.ErrStatusConflict, "", j.MKV{
			"entity_id":       u.EntityID,
			"expected_status": u.From.String(),
			"current_status":  current.Status.String(),
		})
	}

	// Stage both writes so that a failure leaves neither applied.
	next := current
	next.Status = u.To
	next.Version++
	next.UpdatedAt = u.History.CreatedAt

	if s.beforeCommit != nil {
		err := s.beforeCommit(u)
		if err != nil {
			return nil, err
		}
	}

	s.entities[k] = next
	s.history[k] = append(s.history[k], u.History)

	return &next, nil
}

func (s *Store) History(ctx context.Context, workflow, id string) ([]statusflow.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.history[key{workflow: workflow, id: id}]), nil
}

func (s *Store) List(ctx context.Context, workflow string, status statusflow.StatusCode, afterID string, limit int) ([]statusflow.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entities []statusflow.Entity
	for k, e := range s.entities {
		if k.workflow != workflow || e.Status != status || e.ID <= afterID {
			continue
		}

		entities = append(entities, e)
	}

	sort.Slice(entities, func(i, j int) bool {
		return entities[i].ID < entities[j].ID
	})

	if len(entities) > limit {
		entities = entities[:limit]
	}

	return entities, nil
}
