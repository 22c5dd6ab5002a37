package statusflow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"k8s.io/utils/clock"

	"github.com/julo/statusflow/internal/metrics"
)

const (
	outcomeCommitted = "committed"
	outcomeNoop      = "noop"
	outcomeRejected  = "rejected"
	outcomeVetoed    = "vetoed"
	outcomeFailed    = "failed"
)

// Engine applies transitions to entities. Every side effect of a transition (handler hooks, async tasks, events)
// is triggered from Apply.
type Engine struct {
	registry  *Registry
	store     Store
	locker    Locker
	queue     TaskQueue
	publisher Publisher
	clock     clock.Clock
	logger    *logger
	lockWait  time.Duration
}

func New(registry *Registry, store Store, locker Locker, queue TaskQueue, opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Engine{
		registry:  registry,
		store:     store,
		locker:    locker,
		queue:     queue,
		publisher: o.publisher,
		clock:     o.clock,
		logger:    newLogger(o.logger, o.debugMode),
		lockWait:  o.lockWait,
	}
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

type TransitionRequest struct {
	Workflow    string
	EntityID    string
	Destination StatusCode
	Reason      string
	Actor       Actor
	// NoWait fails with ErrDuplicateRequest instead of waiting when another request holds the entity lock.
	NoWait bool
}

type Result struct {
	// Entity is the state after the transition, or the current state when NoOp is set.
	Entity Entity
	// History is nil when NoOp is set.
	History *History
	Path    AllowedPath
	// NoOp is set when the entity already had the requested status, usually because a duplicate request
	// committed first.
	NoOp  bool
	Tasks []Task
}

// Apply moves an entity to req.Destination.
//
// The transition is validated, the entity lock is taken and the entity is re-read and validated again. The Pre
// hook may veto. The status change and its history row are committed together. Post runs after the commit while
// the lock is still held, followed by enqueueing the async tasks and publishing the event. When a post commit step
// fails the committed Result is returned along with an error wrapping ErrPostHookFailure.
func (e *Engine) Apply(ctx context.Context, req TransitionRequest) (*Result, error) {
	start := e.clock.Now()
	defer func() {
		metrics.ApplyLatency.WithLabelValues(req.Workflow).Observe(e.clock.Since(start).Seconds())
	}()

	if !req.Actor.Role.Valid() {
		return nil, errors.Wrap(ErrForbiddenActor, "unknown role", j.MKV{
			"role":      string(req.Actor.Role),
			"entity_id": req.EntityID,
		})
	}

	schema, err := e.registry.Schema(req.Workflow)
	if err != nil {
		return nil, err
	}

	entity, err := e.store.Lookup(ctx, req.Workflow, req.EntityID)
	if err != nil {
		return nil, err
	}

	if alreadyApplied(schema, entity, req.Destination) {
		e.count(req, entity.Status, outcomeNoop)
		return &Result{Entity: *entity, NoOp: true}, nil
	}

	_, err = ValidateTransition(schema, entity.Status, req.Destination, req.Actor.Role)
	if err != nil {
		e.count(req, entity.Status, outcomeRejected)
		return nil, err
	}

	handler := e.registry.Handler(req.Workflow, req.Destination)

	unlock, err := e.lock(ctx, req.Workflow, req.EntityID, req.NoWait)
	if err != nil {
		return nil, err
	}
	defer e.unlock(ctx, unlock, req.Workflow, req.EntityID)

	return e.applyLocked(ctx, schema, handler, req)
}

func (e *Engine) applyLocked(ctx context.Context, schema *Schema, handler Handler, req TransitionRequest) (*Result, error) {
	meta := j.MKV{
		"workflow":    req.Workflow,
		"entity_id":   req.EntityID,
		"destination": req.Destination.String(),
	}

	// Re-read under the lock: a concurrent request may have moved the entity while we waited.
	entity, err := e.store.Lookup(ctx, req.Workflow, req.EntityID)
	if err != nil {
		return nil, err
	}

	if alreadyApplied(schema, entity, req.Destination) {
		e.count(req, entity.Status, outcomeNoop)
		return &Result{Entity: *entity, NoOp: true}, nil
	}

	path, err := ValidateTransition(schema, entity.Status, req.Destination, req.Actor.Role)
	if err != nil {
		e.count(req, entity.Status, outcomeRejected)
		return nil, err
	}

	t := Transition{
		Workflow: req.Workflow,
		Entity:   *entity,
		From:     entity.Status,
		To:       req.Destination,
		Reason:   req.Reason,
		Actor:    req.Actor,
		Path:     path,
	}

	err = handler.Pre(ctx, t)
	if errors.Is(err, ErrHandlerVeto) {
		e.count(req, entity.Status, outcomeVetoed)
		return nil, err
	} else if err != nil {
		e.count(req, entity.Status, outcomeFailed)
		return nil, errors.Wrap(err, "pre hook", meta)
	}

	h := RecordTransition(*entity, entity.Status, req.Destination, req.Reason, req.Actor, path.Type, e.clock.Now())
	updated, err := e.store.Transition(ctx, Update{
		Workflow: req.Workflow,
		EntityID: req.EntityID,
		From:     entity.Status,
		To:       req.Destination,
		Version:  entity.Version,
		History:  h,
	})
	if err != nil {
		e.count(req, entity.Status, outcomeFailed)
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	t.Entity = *updated
	t.HistoryID = h.ID

	var postErr error
	err = handler.Post(ctx, t)
	if err != nil {
		postErr = e.postHookFailed(ctx, t, err)
	}

	tasks, err := e.enqueueTasks(ctx, t, handler.AsyncTasks(t))
	if err != nil && postErr == nil {
		postErr = err
	}

	e.publish(ctx, h, updated.Version)
	e.count(req, h.StatusOld, outcomeCommitted)

	e.logger.Debug(ctx, "transition committed", map[string]string{
		"workflow":   req.Workflow,
		"entity_id":  req.EntityID,
		"status_old": h.StatusOld.String(),
		"status_new": h.StatusNew.String(),
		"actor_role": string(req.Actor.Role),
		"history_id": h.ID,
	})

	return &Result{
		Entity:  *updated,
		History: &h,
		Path:    path,
		Tasks:   tasks,
	}, postErr
}

// alreadyApplied reports whether the entity already sits at destination and the schema has no self-loop that
// would make a repeat meaningful.
func alreadyApplied(s *Schema, e *Entity, destination StatusCode) bool {
	return e.Status == destination && !s.HasSelfLoop(destination)
}

func (e *Engine) lock(ctx context.Context, workflow, entityID string, noWait bool) (Unlock, error) {
	wait := e.lockWait
	if noWait {
		wait = 0
	}

	start := e.clock.Now()
	unlock, err := e.locker.Lock(ctx, LockKey(workflow, entityID), wait)
	metrics.LockWait.WithLabelValues(workflow).Observe(e.clock.Since(start).Seconds())
	if errors.Is(err, ErrLockTimeout) {
		metrics.LockFailures.WithLabelValues(workflow, "timeout").Inc()
		return nil, err
	} else if errors.Is(err, ErrDuplicateRequest) {
		metrics.LockFailures.WithLabelValues(workflow, "busy").Inc()
		return nil, err
	} else if err != nil {
		return nil, err
	}

	return unlock, nil
}

func (e *Engine) unlock(ctx context.Context, unlock Unlock, workflow, entityID string) {
	// The lock must be released even if the caller's context was cancelled mid transition.
	err := unlock(context.WithoutCancel(ctx))
	if err != nil {
		e.logger.Error(ctx, errors.Wrap(err, "release entity lock", j.MKV{
			"workflow":  workflow,
			"entity_id": entityID,
		}))
	}
}

func (e *Engine) postHookFailed(ctx context.Context, t Transition, cause error) error {
	meta := j.MKV{
		"workflow":   t.Workflow,
		"entity_id":  t.Entity.ID,
		"status_new": t.To.String(),
		"history_id": t.HistoryID,
	}

	e.logger.Error(ctx, errors.Wrap(cause, "post hook failed", meta))
	metrics.PostHookFailures.WithLabelValues(t.Workflow, t.To.String()).Inc()

	retry := Task{
		ID:    t.HistoryID + "-post",
		Name:  PostHookRetryTask,
		Args:  postHookArgs(t),
		RunAt: e.clock.Now(),
	}

	err := e.queue.Enqueue(ctx, retry)
	if err != nil {
		e.logger.Error(ctx, errors.Wrap(err, "enqueue post hook retry", meta))
	}

	return fmt.Errorf("%w: %w", ErrPostHookFailure, cause)
}

func (e *Engine) enqueueTasks(ctx context.Context, t Transition, tasks []Task) ([]Task, error) {
	now := e.clock.Now()

	var (
		queued   []Task
		firstErr error
	)
	for i, task := range tasks {
		if task.ID == "" {
			task.ID = t.HistoryID + "-" + strconv.Itoa(i)
		}

		task.RunAt = now.Add(task.Countdown)
		task.Attempt = 0

		err := e.queue.Enqueue(ctx, task)
		if err != nil {
			err = errors.Wrap(err, "enqueue async task", j.MKV{
				"workflow":  t.Workflow,
				"entity_id": t.Entity.ID,
				"task_id":   task.ID,
				"task_name": task.Name,
			})
			e.logger.Error(ctx, err)

			if firstErr == nil {
				firstErr = fmt.Errorf("%w: %w", ErrPostHookFailure, err)
			}
			continue
		}

		queued = append(queued, task)
	}

	return queued, firstErr
}

func (e *Engine) publish(ctx context.Context, h History, version int64) {
	if e.publisher == nil {
		return
	}

	err := e.publisher.Publish(ctx, newTransitionEvent(h, version))
	if err != nil {
		e.logger.Error(ctx, errors.Wrap(err, "publish transition event", j.MKV{
			"workflow":   h.Workflow,
			"entity_id":  h.EntityID,
			"history_id": h.ID,
		}))
	}
}

func (e *Engine) count(req TransitionRequest, from StatusCode, outcome string) {
	metrics.Transitions.WithLabelValues(req.Workflow, from.String(), req.Destination.String(), outcome).Inc()
}

type CreateRequest struct {
	Workflow string
	// EntityID is generated when empty.
	EntityID string
	Initial  StatusCode
	Reason   string
	Actor    Actor
}

// Create stores a new entity at one of the workflow's initial statuses and records its first history row with
// StatusOld set to zero.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*Entity, error) {
	schema, err := e.registry.Schema(req.Workflow)
	if err != nil {
		return nil, err
	}

	if !schema.IsInitial(req.Initial) {
		return nil, errors.Wrap(ErrInvalidInitial, "", j.MKV{
			"workflow": req.Workflow,
			"status":   req.Initial.String(),
		})
	}

	if !req.Actor.Role.Valid() {
		return nil, errors.Wrap(ErrForbiddenActor, "unknown role", j.MKV{"role": string(req.Actor.Role)})
	}

	id := req.EntityID
	if id == "" {
		id = uuid.NewString()
	}

	now := e.clock.Now()
	entity := Entity{
		ID:        id,
		Workflow:  req.Workflow,
		Status:    req.Initial,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	h := RecordTransition(entity, 0, req.Initial, req.Reason, req.Actor, PathTypeHappy, now)
	err = e.store.Create(ctx, entity, h)
	if err != nil {
		return nil, err
	}

	e.publish(ctx, h, entity.Version)

	return &entity, nil
}

func (e *Engine) Lookup(ctx context.Context, workflow, entityID string) (*Entity, error) {
	_, err := e.registry.Schema(workflow)
	if err != nil {
		return nil, err
	}

	return e.store.Lookup(ctx, workflow, entityID)
}

func (e *Engine) History(ctx context.Context, workflow, entityID string) ([]History, error) {
	_, err := e.registry.Schema(workflow)
	if err != nil {
		return nil, err
	}

	return e.store.History(ctx, workflow, entityID)
}

// AvailableTransitions lists the paths role may take from the entity's current status.
func (e *Engine) AvailableTransitions(ctx context.Context, workflow, entityID string, role Role) ([]AllowedPath, error) {
	schema, err := e.registry.Schema(workflow)
	if err != nil {
		return nil, err
	}

	entity, err := e.store.Lookup(ctx, workflow, entityID)
	if err != nil {
		return nil, err
	}

	return AvailableTransitions(schema, entity.Status, role), nil
}

func postHookArgs(t Transition) map[string]string {
	return map[string]string{
		"workflow":   t.Workflow,
		"entity_id":  t.Entity.ID,
		"history_id": t.HistoryID,
		"status_old": t.From.String(),
		"status_new": t.To.String(),
		"reason":     t.Reason,
		"actor_id":   t.Actor.ID,
		"actor_role": string(t.Actor.Role),
	}
}

// RetryPostHook is the TaskFunc for PostHookRetryTask. It re-runs the Post hook of a committed transition under
// the entity lock.
func (e *Engine) RetryPostHook(ctx context.Context, task Task) error {
	workflow := task.Args["workflow"]
	entityID := task.Args["entity_id"]

	schema, err := e.registry.Schema(workflow)
	if err != nil {
		return Permanent(err)
	}

	from, err := strconv.Atoi(task.Args["status_old"])
	if err != nil {
		return Permanent(errors.Wrap(err, "parse status_old"))
	}

	to, err := strconv.Atoi(task.Args["status_new"])
	if err != nil {
		return Permanent(errors.Wrap(err, "parse status_new"))
	}

	path, ok := schema.Path(StatusCode(from), StatusCode(to))
	if !ok {
		return Permanent(errors.Wrap(ErrUnknownTransition, "", j.MKV{
			"workflow":    workflow,
			"origin":      task.Args["status_old"],
			"destination": task.Args["status_new"],
		}))
	}

	unlock, err := e.lock(ctx, workflow, entityID, false)
	if err != nil {
		return err
	}
	defer e.unlock(ctx, unlock, workflow, entityID)

	entity, err := e.store.Lookup(ctx, workflow, entityID)
	if errors.Is(err, ErrEntityNotFound) {
		return Permanent(err)
	} else if err != nil {
		return err
	}

	return e.registry.Handler(workflow, StatusCode(to)).Post(ctx, Transition{
		Workflow:  workflow,
		Entity:    *entity,
		From:      StatusCode(from),
		To:        StatusCode(to),
		Reason:    task.Args["reason"],
		Actor:     Actor{ID: task.Args["actor_id"], Role: Role(task.Args["actor_role"])},
		Path:      path,
		HistoryID: task.Args["history_id"],
	})
}
