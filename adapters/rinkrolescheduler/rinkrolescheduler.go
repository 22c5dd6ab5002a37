package rinkrolescheduler

import (
	"context"

	"github.com/luno/rink/v2"

	"github.com/julo/statusflow"
)

// New returns a statusflow.RoleScheduler backed by rink roles so that each batch job runs on exactly one member of
// the etcd cluster.
func New(r *rink.Rink) *RoleScheduler {
	return &RoleScheduler{
		rink: r,
	}
}

type RoleScheduler struct {
	rink *rink.Rink
}

var _ statusflow.RoleScheduler = (*RoleScheduler)(nil)

func (r *RoleScheduler) Await(ctx context.Context, role string) (context.Context, context.CancelFunc, error) {
	return r.rink.Roles.AwaitRoleContext(ctx, role)
}

func (r *RoleScheduler) Close() error {
	r.rink.Shutdown(context.Background())
	return nil
}
