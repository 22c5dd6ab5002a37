package lending

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/julo/statusflow"
	"github.com/julo/statusflow/adapters/httpnotify"
)

const (
	TaskSendNotification = "lending.send_notification"
	TaskPartnerCallback  = "lending.partner_callback"
)

// Notification templates.
const (
	TemplateDeletionNotice      = "customer_deletion_notice"
	TemplateFraudReview         = "fraud_review_assigned"
	TemplateAutodebetActivated  = "autodebet_activated"
	TemplateAutodebetRegFailed  = "autodebet_registration_failed"
	TemplateAutodebetDeactivate = "autodebet_deactivated"
)

const (
	argTemplate  = "template"
	argRecipient = "recipient"
	argEntityID  = "entity_id"
	argWorkflow  = "workflow"
	argStatus    = "status"
	argHistoryID = "history_id"

	// argOccurredAt is the commit time of the transition in RFC 3339.
	argOccurredAt = "occurred_at"
)

// Notifier sends a templated message. It is satisfied by httpnotify.Client.
type Notifier interface {
	Send(ctx context.Context, n httpnotify.Notification) (httpnotify.Ack, error)
}

// PartnerNotifier posts status callbacks to lending partners. It is satisfied by httpnotify.Client.
type PartnerNotifier interface {
	Callback(ctx context.Context, url string, cb httpnotify.StatusCallback, idempotencyKey string) error
}

type Partner struct {
	Name        string
	CallbackURL string
}

// PartnerDirectory resolves the partner that originated an application. A nil partner means the application
// came through the JULO app and nobody needs to be told.
type PartnerDirectory interface {
	PartnerFor(ctx context.Context, workflow, entityID string) (*Partner, error)
}

// PartnerMap is a static PartnerDirectory keyed by entity id.
type PartnerMap map[string]Partner

func (m PartnerMap) PartnerFor(_ context.Context, _, entityID string) (*Partner, error) {
	p, ok := m[entityID]
	if !ok {
		return nil, nil
	}

	return &p, nil
}

// PrefixDirectory resolves partners by entity id prefix, e.g. "dana-" for applications originated by Dana. The
// longest matching prefix wins.
type PrefixDirectory map[string]Partner

func (d PrefixDirectory) PartnerFor(_ context.Context, _, entityID string) (*Partner, error) {
	var (
		match Partner
		best  = -1
	)
	for prefix, p := range d {
		if strings.HasPrefix(entityID, prefix) && len(prefix) > best {
			match, best = p, len(prefix)
		}
	}

	if best < 0 {
		return nil, nil
	}

	return &match, nil
}

func notificationTask(t statusflow.Transition, template, recipient string) statusflow.Task {
	return statusflow.Task{
		Name: TaskSendNotification,
		Args: map[string]string{
			argTemplate:  template,
			argRecipient: recipient,
			argEntityID:  t.Entity.ID,
			argWorkflow:  t.Workflow,
			argStatus:    t.To.String(),
			argHistoryID: t.HistoryID,
		},
	}
}

// SendNotificationTask delivers the notification described by the task args. The task id is used as the
// idempotency key so redeliveries are dropped by the notification service.
func SendNotificationTask(n Notifier) statusflow.TaskFunc {
	return func(ctx context.Context, t statusflow.Task) error {
		template := t.Args[argTemplate]
		if template == "" {
			return statusflow.Permanent(errors.New("notification task without template", j.MKV{"task_id": t.ID}))
		}

		data := make(map[string]string, len(t.Args))
		for k, v := range t.Args {
			if k == argTemplate || k == argRecipient {
				continue
			}
			data[k] = v
		}

		_, err := n.Send(ctx, httpnotify.Notification{
			Template:       template,
			Recipient:      t.Args[argRecipient],
			Context:        data,
			IdempotencyKey: t.ID,
		})
		return err
	}
}

// PartnerCallbackTask tells the originating partner about a status change. Entities without a partner are
// acknowledged without a call.
func PartnerCallbackTask(dir PartnerDirectory, pn PartnerNotifier, statuses *statusflow.StatusRegistry) statusflow.TaskFunc {
	return func(ctx context.Context, t statusflow.Task) error {
		workflow, entityID := t.Args[argWorkflow], t.Args[argEntityID]

		p, err := dir.PartnerFor(ctx, workflow, entityID)
		if err != nil {
			return err
		} else if p == nil {
			return nil
		}

		code, err := strconv.Atoi(t.Args[argStatus])
		if err != nil {
			return statusflow.Permanent(errors.Wrap(err, "partner callback status", j.MKV{"task_id": t.ID}))
		}

		var occurredAt time.Time
		if v := t.Args[argOccurredAt]; v != "" {
			occurredAt, err = time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return statusflow.Permanent(errors.Wrap(err, "partner callback time", j.MKV{"task_id": t.ID}))
			}
		}

		return pn.Callback(ctx, p.CallbackURL, httpnotify.StatusCallback{
			Partner:    p.Name,
			EntityID:   entityID,
			Workflow:   workflow,
			Status:     code,
			Label:      statuses.Label(statusflow.StatusCode(code)),
			HistoryID:  t.Args[argHistoryID],
			OccurredAt: occurredAt,
		}, t.ID)
	}
}

func partnerCallbackTask(t statusflow.Transition) statusflow.Task {
	return statusflow.Task{
		Name: TaskPartnerCallback,
		Args: map[string]string{
			argEntityID:   t.Entity.ID,
			argWorkflow:   t.Workflow,
			argStatus:     t.To.String(),
			argHistoryID:  t.HistoryID,
			argOccurredAt: t.Entity.UpdatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}
