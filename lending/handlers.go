package lending

import (
	"context"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/julo/statusflow"
)

const fraudOpsRecipient = "fraud-ops"

// FraudChecks reports whether the fraud service finished screening an application.
type FraudChecks interface {
	ScreeningCompleted(ctx context.Context, entityID string) (bool, error)
}

type FraudChecksFunc func(ctx context.Context, entityID string) (bool, error)

func (f FraudChecksFunc) ScreeningCompleted(ctx context.Context, entityID string) (bool, error) {
	return f(ctx, entityID)
}

// FraudFlagHandler guards 133. An application can only be parked for fraud review once screening has produced
// a result for the reviewer to look at.
type FraudFlagHandler struct {
	statusflow.NoopHandler
	Checks FraudChecks
}

func (h FraudFlagHandler) Pre(ctx context.Context, t statusflow.Transition) error {
	if h.Checks == nil {
		return statusflow.Veto("fraud screening unavailable")
	}

	ok, err := h.Checks.ScreeningCompleted(ctx, t.Entity.ID)
	if err != nil {
		return errors.Wrap(err, "fraud screening lookup", j.MKV{"entity_id": t.Entity.ID})
	} else if !ok {
		return statusflow.Veto("fraud screening not completed")
	}

	return nil
}

func (h FraudFlagHandler) AsyncTasks(t statusflow.Transition) []statusflow.Task {
	return []statusflow.Task{notificationTask(t, TemplateFraudReview, fraudOpsRecipient)}
}

// DeletionHandler runs when a customer asks for their data to be deleted. The customer is told straight away and
// the actual deletion happens once the grace period has passed, see PurgeDeletedCustomersJob.
type DeletionHandler struct {
	statusflow.NoopHandler
}

func (DeletionHandler) AsyncTasks(t statusflow.Transition) []statusflow.Task {
	return []statusflow.Task{notificationTask(t, TemplateDeletionNotice, t.Entity.ID)}
}

// DisbursalHandler tells the originating partner that funds were disbursed. The callback waits out a short
// countdown so the partner can read the disbursement record by the time it arrives.
type DisbursalHandler struct {
	statusflow.NoopHandler
	Countdown time.Duration
}

func (h DisbursalHandler) AsyncTasks(t statusflow.Transition) []statusflow.Task {
	task := partnerCallbackTask(t)
	task.Countdown = h.Countdown
	return []statusflow.Task{task}
}

// NotifyHandler sends template to the entity's owner on entering a status.
type NotifyHandler struct {
	statusflow.NoopHandler
	Template string
}

func (h NotifyHandler) AsyncTasks(t statusflow.Transition) []statusflow.Task {
	return []statusflow.Task{notificationTask(t, h.Template, t.Entity.ID)}
}
