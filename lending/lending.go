package lending

import (
	"context"
	"time"

	"github.com/julo/statusflow"
)

const (
	JobExpirePartialForms    = "expire-partial-forms"
	JobPurgeDeletedCustomers = "purge-deleted-customers"

	defaultPartialFormTTL    = 14 * 24 * time.Hour
	defaultDeletionGrace     = 30 * 24 * time.Hour
	defaultCallbackCountdown = 30 * time.Second
)

type Config struct {
	FraudChecks FraudChecks
	// PartialFormTTL is how long an application may sit in 105 before it expires.
	PartialFormTTL time.Duration
	// DeletionGrace is how long a customer may sit in 185 before their data is deleted.
	DeletionGrace     time.Duration
	CallbackCountdown time.Duration
}

func (c Config) withDefaults() Config {
	if c.PartialFormTTL == 0 {
		c.PartialFormTTL = defaultPartialFormTTL
	}
	if c.DeletionGrace == 0 {
		c.DeletionGrace = defaultDeletionGrace
	}
	if c.CallbackCountdown == 0 {
		c.CallbackCountdown = defaultCallbackCountdown
	}
	return c
}

// Bindings returns the handlers of both lending workflows.
func Bindings(c Config) []statusflow.HandlerBinding {
	c = c.withDefaults()

	return []statusflow.HandlerBinding{
		{Workflow: WorkflowJuloOne, Status: StatusFlaggedForFraud, Handler: FraudFlagHandler{Checks: c.FraudChecks}},
		{Workflow: WorkflowJuloOne, Status: StatusCustomerOnDeletion, Handler: DeletionHandler{}},
		{Workflow: WorkflowJuloOne, Status: StatusFundDisbursalSucceeded, Handler: DisbursalHandler{Countdown: c.CallbackCountdown}},
		{Workflow: WorkflowAutodebetBCA, Status: StatusAutodebetRegistered, Handler: NotifyHandler{Template: TemplateAutodebetActivated}},
		{Workflow: WorkflowAutodebetBCA, Status: StatusAutodebetRegistrationFailed, Handler: NotifyHandler{Template: TemplateAutodebetRegFailed}},
		{Workflow: WorkflowAutodebetBCA, Status: StatusAutodebetRevoked, Handler: NotifyHandler{Template: TemplateAutodebetDeactivate}},
	}
}

// NewRegistry builds the lending statuses, schemas and handlers.
func NewRegistry(c Config) (*statusflow.Registry, error) {
	doc, err := Definition()
	if err != nil {
		return nil, err
	}

	return doc.Registry(Bindings(c)...)
}

// RegisterTasks binds the lending task functions and the engine's post hook retry to r.
func RegisterTasks(r *statusflow.TaskRunner, e *statusflow.Engine, n Notifier, dir PartnerDirectory, pn PartnerNotifier) {
	r.Register(statusflow.PostHookRetryTask, e.RetryPostHook)
	r.Register(TaskSendNotification, SendNotificationTask(n))
	r.Register(TaskPartnerCallback, PartnerCallbackTask(dir, pn, e.Registry().Statuses()))
}

// Jobs returns the batch jobs of the lending workflows.
func Jobs(c Config) []statusflow.BatchJob {
	c = c.withDefaults()

	return []statusflow.BatchJob{
		{
			Name:        JobExpirePartialForms,
			Spec:        "0 2 * * *",
			Workflow:    WorkflowJuloOne,
			Origin:      StatusFormPartial,
			Destination: StatusFormPartialExpired,
			Reason:      "partial form expired",
			Filter:      olderThan(c.PartialFormTTL),
		},
		{
			Name:        JobPurgeDeletedCustomers,
			Spec:        "30 3 * * *",
			Workflow:    WorkflowJuloOne,
			Origin:      StatusCustomerOnDeletion,
			Destination: StatusCustomerDeleted,
			Reason:      "deletion grace period elapsed",
			Filter:      olderThan(c.DeletionGrace),
		},
	}
}

// olderThan selects entities that have not changed status for at least d.
func olderThan(d time.Duration) func(ctx context.Context, e statusflow.Entity, now time.Time) (bool, error) {
	return func(_ context.Context, e statusflow.Entity, now time.Time) (bool, error) {
		return now.Sub(e.UpdatedAt) >= d, nil
	}
}
