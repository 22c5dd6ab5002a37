package statusflow

import (
	"context"
	"errors"
)

// Transition is what handlers see. Entity holds the state before the commit when passed to Pre and the committed
// state when passed to Post or AsyncTasks.
type Transition struct {
	Workflow  string
	Entity    Entity
	From      StatusCode
	To        StatusCode
	Reason    string
	Actor     Actor
	Path      AllowedPath
	HistoryID string
}

// Handler holds the side effects of entering a status. Post must be idempotent since it is retried as a task
// when it fails after the commit.
type Handler interface {
	// Pre runs under the entity lock before anything is written. Returning an error created with Veto aborts
	// the transition with ErrHandlerVeto.
	Pre(ctx context.Context, t Transition) error
	// Post runs under the entity lock after the commit.
	Post(ctx context.Context, t Transition) error
	// AsyncTasks returns the tasks to enqueue after Post. They run outside the entity lock.
	AsyncTasks(t Transition) []Task
}

// NoopHandler is used for statuses that have no handler bound.
type NoopHandler struct{}

func (NoopHandler) Pre(context.Context, Transition) error  { return nil }
func (NoopHandler) Post(context.Context, Transition) error { return nil }
func (NoopHandler) AsyncTasks(Transition) []Task           { return nil }

// HandlerFuncs adapts plain functions to Handler. Nil fields are no-ops.
type HandlerFuncs struct {
	PreFunc   func(ctx context.Context, t Transition) error
	PostFunc  func(ctx context.Context, t Transition) error
	TasksFunc func(t Transition) []Task
}

func (h HandlerFuncs) Pre(ctx context.Context, t Transition) error {
	if h.PreFunc == nil {
		return nil
	}

	return h.PreFunc(ctx, t)
}

func (h HandlerFuncs) Post(ctx context.Context, t Transition) error {
	if h.PostFunc == nil {
		return nil
	}

	return h.PostFunc(ctx, t)
}

func (h HandlerFuncs) AsyncTasks(t Transition) []Task {
	if h.TasksFunc == nil {
		return nil
	}

	return h.TasksFunc(t)
}

// HandlerBinding binds a handler to the destination status of a workflow.
type HandlerBinding struct {
	Workflow string
	Status   StatusCode
	Handler  Handler
}

type vetoError struct {
	reason string
}

func (e *vetoError) Error() string {
	return ErrHandlerVeto.Error() + ": " + e.reason
}

func (e *vetoError) Is(target error) bool {
	return target == ErrHandlerVeto
}

// Veto returns the error a Pre hook uses to refuse a transition.
func Veto(reason string) error {
	return &vetoError{reason: reason}
}

// VetoReason returns the reason given to Veto anywhere in err's chain.
func VetoReason(err error) (string, bool) {
	var ve *vetoError
	if !errors.As(err, &ve) {
		return "", false
	}

	return ve.reason, true
}
