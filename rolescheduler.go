package statusflow

import (
	"context"
	"strings"
)

// RoleScheduler implementations should all be tested with adaptertest.RunRoleSchedulerTest. It ensures only one
// process across the deployment runs a given scheduled batch job at a time.
type RoleScheduler interface {
	// Await must return a child context of the provided (parent) context. Await should block until the role is
	// assigned to the caller. Only one caller should be able to hold the role at any given time. The returned
	// context.CancelFunc is called after each batch run.
	Await(ctx context.Context, role string) (context.Context, context.CancelFunc, error)
}

func makeRole(inputs ...string) string {
	joined := strings.Join(inputs, "-")
	lowered := strings.ToLower(joined)
	return strings.ReplaceAll(lowered, " ", "_")
}
