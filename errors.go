package statusflow

import (
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

var (
	ErrUnknownStatus       = errors.New("unknown status code", j.C("ERR_4a1f0c7e9b3d2a11"))
	ErrUnknownWorkflow     = errors.New("unknown workflow", j.C("ERR_8c2e61d0f5a7b934"))
	ErrUnknownTransition   = errors.New("transition not allowed by workflow", j.C("ERR_d93b07a4e16c5f28"))
	ErrForbiddenActor      = errors.New("actor role not permitted for transition", j.C("ERR_1e7f3a9c0b4d6852"))
	ErrHandlerVeto         = errors.New("transition vetoed by handler", j.C("ERR_b5d2c8e17a0f3946"))
	ErrPersistenceFailure  = errors.New("failed to persist transition", j.C("ERR_62a9f4e3c1b70d85"))
	ErrPostHookFailure     = errors.New("post hook failed after commit", j.C("ERR_f0c4b61e9d2a8357"))
	ErrLockTimeout         = errors.New("timed out waiting for entity lock", j.C("ERR_3d8e0a5b7f19c624"))
	ErrDuplicateRequest    = errors.New("entity is locked by a concurrent request", j.C("ERR_a7b1d93c4e605f82"))
	ErrLockLost            = errors.New("entity lock expired before release", j.C("ERR_6f3b9d1e0a7c4528"))
	ErrEntityNotFound      = errors.New("entity not found", j.C("ERR_0f6c2e8d5a1b7439"))
	ErrEntityExists        = errors.New("entity already exists", j.C("ERR_95e3a7c0d2f84b16"))
	ErrStatusConflict      = errors.New("entity status changed concurrently", j.C("ERR_c2a8e5f13b9d0764"))
	ErrDuplicatePath       = errors.New("path declared more than once", j.C("ERR_7b0d4f2a6c8e1953"))
	ErrInvalidInitial      = errors.New("status is not an initial status of the workflow", j.C("ERR_e41c9b7d3a05f628"))
	ErrHandlerNotReachable = errors.New("handler bound to a status that is not a destination", j.C("ERR_58f2a0c6e9d3b174"))
	ErrTaskNotRegistered   = errors.New("no task function registered", j.C("ERR_2c9e7a4f1d60b835"))
	ErrRetriesExhausted    = errors.New("task retries exhausted", j.C("ERR_d6b3f8a20e4c7159"))
	ErrBrokenHistory       = errors.New("history rows do not form a chain", j.C("ERR_8e5a1c3f7b2d0946"))
)
