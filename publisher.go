package statusflow

import (
	"context"
	"time"
)

// TransitionEvent announces a committed transition to other systems.
type TransitionEvent struct {
	HistoryID  string    `json:"history_id"`
	Workflow   string    `json:"workflow"`
	EntityID   string    `json:"entity_id"`
	StatusOld  int       `json:"status_old"`
	StatusNew  int       `json:"status_new"`
	Reason     string    `json:"reason"`
	ActorID    string    `json:"actor_id"`
	ActorRole  string    `json:"actor_role"`
	PathType   string    `json:"path_type"`
	Version    int64     `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers transition events. Publishing happens after the commit and failures are logged, not returned.
type Publisher interface {
	Publish(ctx context.Context, e TransitionEvent) error
}

func newTransitionEvent(h History, version int64) TransitionEvent {
	return TransitionEvent{
		HistoryID:  h.ID,
		Workflow:   h.Workflow,
		EntityID:   h.EntityID,
		StatusOld:  int(h.StatusOld),
		StatusNew:  int(h.StatusNew),
		Reason:     h.ChangeReason,
		ActorID:    h.ChangedBy.ID,
		ActorRole:  string(h.ChangedBy.Role),
		PathType:   h.PathType.String(),
		Version:    version,
		OccurredAt: h.CreatedAt,
	}
}
