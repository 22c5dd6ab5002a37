package statusflow

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// History is one append-only row describing a committed status change. StatusOld is zero for the row written when
// the entity is created.
type History struct {
	ID           string
	EntityID     string
	Workflow     string
	StatusOld    StatusCode
	StatusNew    StatusCode
	ChangeReason string
	ChangedBy    Actor
	PathType     PathType
	CreatedAt    time.Time
}

// RecordTransition builds the history row for moving e from one status to another. The row must be persisted in the same
// transaction as the entity update (see Store.Transition).
func RecordTransition(e Entity, from, to StatusCode, reason string, actor Actor, pathType PathType, now time.Time) History {
	return History{
		ID:           uuid.NewString(),
		EntityID:     e.ID,
		Workflow:     e.Workflow,
		StatusOld:    from,
		StatusNew:    to,
		ChangeReason: reason,
		ChangedBy:    actor,
		PathType:     pathType,
		CreatedAt:    now,
	}
}

// Replay walks the history rows in order and returns the status they lead to. Every row must start where the
// previous one ended.
func Replay(rows []History) (StatusCode, error) {
	if len(rows) == 0 {
		return 0, errors.Wrap(ErrBrokenHistory, "no rows")
	}

	current := rows[0].StatusOld
	for i, h := range rows {
		if h.StatusOld != current {
			return 0, errors.Wrap(ErrBrokenHistory, "", j.MKV{
				"entity_id":  h.EntityID,
				"history_id": h.ID,
				"index":      strconv.Itoa(i),
				"expected":   current.String(),
				"status_old": h.StatusOld.String(),
			})
		}

		current = h.StatusNew
	}

	return current, nil
}
