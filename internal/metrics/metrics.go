package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	workflowName = "workflow_name"
	fromStatus   = "from_status"
	toStatus     = "to_status"
	outcome      = "outcome"
	taskName     = "task_name"
	jobName      = "job_name"
	partner      = "partner"
)

var (
	// Transitions counts every Apply call by its outcome (committed, noop, rejected, vetoed, failed).
	Transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statusflow_transitions_total",
		Help: "Number of transition attempts by outcome",
	}, []string{workflowName, fromStatus, toStatus, outcome})

	// ApplyLatency is how long a transition takes from validation until the lock is released
	ApplyLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statusflow_apply_latency_seconds",
		Help:    "Apply latency in seconds",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{workflowName})

	// LockWait is how long Apply waited for the per-entity lock
	LockWait = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statusflow_lock_wait_seconds",
		Help:    "Time spent waiting for the entity lock",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
	}, []string{workflowName})

	// LockFailures counts lock timeouts and no-wait rejections
	LockFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statusflow_lock_failures_total",
		Help: "Number of lock acquisitions that timed out or were rejected",
	}, []string{workflowName, outcome})

	// PostHookFailures counts committed transitions whose synchronous post hook failed
	PostHookFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statusflow_post_hook_failures_total",
		Help: "Number of post hooks that failed after commit",
	}, []string{workflowName, toStatus})

	// TaskExecutions counts async task executions by outcome (ok, retry, dead)
	TaskExecutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statusflow_task_executions_total",
		Help: "Number of async task executions by outcome",
	}, []string{taskName, outcome})

	// BatchResults counts per-entity outcomes of scheduled batch jobs
	BatchResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statusflow_batch_results_total",
		Help: "Number of entities processed by scheduled batch jobs by outcome",
	}, []string{jobName, outcome})

	// WebhookDeliveries counts partner webhook deliveries by outcome (applied, duplicate, rejected, failed)
	WebhookDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statusflow_webhook_deliveries_total",
		Help: "Number of partner webhook deliveries by outcome",
	}, []string{partner, outcome})
)

func init() {
	prometheus.MustRegister(
		Transitions,
		ApplyLatency,
		LockWait,
		LockFailures,
		PostHookFailures,
		TaskExecutions,
		BatchResults,
		WebhookDeliveries,
	)
}

func Reset() {
	Transitions.Reset()
	ApplyLatency.Reset()
	LockWait.Reset()
	LockFailures.Reset()
	PostHookFailures.Reset()
	TaskExecutions.Reset()
	BatchResults.Reset()
	WebhookDeliveries.Reset()
}
