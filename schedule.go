package statusflow

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/robfig/cron/v3"
	"k8s.io/utils/clock"

	"github.com/julo/statusflow/internal/errorcounter"
	"github.com/julo/statusflow/internal/metrics"
)

const (
	defaultBatchSize           = 100
	defaultBatchMaxFailures    = 3
	defaultSchedulerErrBackOff = 10 * time.Second
)

// BatchJob moves every entity of Workflow sitting in Origin to Destination on a cron schedule, e.g. expiring
// application forms that were never completed.
type BatchJob struct {
	Name string
	// Spec is a standard five field cron expression.
	Spec        string
	Workflow    string
	Origin      StatusCode
	Destination StatusCode
	Reason      string
	// Filter selects the entities to move. A nil Filter selects every entity in Origin.
	Filter func(ctx context.Context, e Entity, now time.Time) (bool, error)
}

type BatchReport struct {
	Job      string
	Selected int
	Applied  int
	Skipped  int
	Failed   int
}

type scheduledJob struct {
	job      BatchJob
	schedule cron.Schedule
}

// Scheduler runs batch jobs. Each job holds its own role so that only one process in the deployment runs it.
type Scheduler struct {
	engine *Engine
	roles  RoleScheduler
	clock  clock.Clock
	logger *logger

	mu   sync.Mutex
	jobs []scheduledJob

	failures    *errorcounter.Counter
	maxFailures int
	batchSize   int
	errBackOff  time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type SchedulerOption func(s *Scheduler)

func WithSchedulerClock(c clock.Clock) SchedulerOption {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithMaxEntityFailures sets how many consecutive failures an entity may have before a job stops retrying it.
func WithMaxEntityFailures(n int) SchedulerOption {
	return func(s *Scheduler) {
		s.maxFailures = n
	}
}

func WithSchedulerBatchSize(n int) SchedulerOption {
	return func(s *Scheduler) {
		s.batchSize = n
	}
}

func WithSchedulerErrBackOff(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.errBackOff = d
	}
}

func NewScheduler(e *Engine, roles RoleScheduler, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		engine:      e,
		roles:       roles,
		clock:       e.clock,
		logger:      e.logger,
		failures:    errorcounter.New(),
		maxFailures: defaultBatchMaxFailures,
		batchSize:   defaultBatchSize,
		errBackOff:  defaultSchedulerErrBackOff,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Scheduler) Add(job BatchJob) error {
	meta := j.MKV{"job": job.Name, "workflow": job.Workflow}

	if job.Name == "" {
		return errors.New("batch job name is required")
	}

	schema, err := s.engine.registry.Schema(job.Workflow)
	if err != nil {
		return errors.Wrap(err, "batch job", meta)
	}

	_, err = ValidateTransition(schema, job.Origin, job.Destination, RoleSystem)
	if err != nil {
		return errors.Wrap(err, "batch job", meta)
	}

	schedule, err := cron.ParseStandard(job.Spec)
	if err != nil {
		meta["spec"] = job.Spec
		return errors.Wrap(err, "parse batch job spec", meta)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.jobs {
		if existing.job.Name == job.Name {
			return errors.New("batch job added twice", meta)
		}
	}

	s.jobs = append(s.jobs, scheduledJob{job: job, schedule: schedule})
	return nil
}

// Run launches one goroutine per job. Each waits for its role and then runs the job at every scheduled time.
func (s *Scheduler) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.mu.Lock()
	jobs := append([]scheduledJob(nil), s.jobs...)
	s.mu.Unlock()

	for _, sj := range jobs {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(ctx, sj)
		}()
	}
}

func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, sj scheduledJob) {
	role := makeRole("statusflow", sj.job.Workflow, sj.job.Name, "scheduler")
	lastRun := s.clock.Now()

	for {
		err := s.runOnce(ctx, role, func(ctx context.Context) error {
			next := sj.schedule.Next(lastRun)
			err := waitUntil(ctx, s.clock, next)
			if err != nil {
				return err
			}

			_, err = s.runJob(ctx, sj.job)
			if err != nil {
				return err
			}

			lastRun = next
			return nil
		})
		if err != nil {
			s.logger.Debug(ctx, "shutting down scheduler", map[string]string{
				"role": role,
				"job":  sj.job.Name,
			})
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, role string, process func(ctx context.Context) error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	ctx, cancel, err := s.roles.Await(ctx, role)
	if errors.Is(err, context.Canceled) {
		return err
	} else if err != nil {
		s.logger.Error(ctx, errors.Wrap(err, "await role", j.MKV{"role": role}))
		return nil
	}
	defer cancel()

	err = process(ctx)
	if errors.Is(err, context.Canceled) {
		// The role may have been revoked. Return nil to await it again; a cancelled parent exits on the next call.
		return nil
	} else if err != nil {
		s.logger.Error(ctx, errors.Wrap(err, "scheduler run", j.MKV{"role": role}))
		_ = waitFor(ctx, s.clock, s.errBackOff)
	}

	return nil
}

// RunJob runs the named job immediately without waiting for its role.
func (s *Scheduler) RunJob(ctx context.Context, name string) (BatchReport, error) {
	s.mu.Lock()
	var (
		job   BatchJob
		found bool
	)
	for _, sj := range s.jobs {
		if sj.job.Name == name {
			job, found = sj.job, true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return BatchReport{}, errors.New("unknown batch job", j.MKV{"job": name})
	}

	return s.runJob(ctx, job)
}

func (s *Scheduler) runJob(ctx context.Context, job BatchJob) (BatchReport, error) {
	report := BatchReport{Job: job.Name}
	actor := SystemActor("scheduler:" + job.Name)
	now := s.clock.Now()

	var afterID string
	for {
		entities, err := s.engine.store.List(ctx, job.Workflow, job.Origin, afterID, s.batchSize)
		if err != nil {
			return report, err
		}

		for _, e := range entities {
			afterID = e.ID
			s.process(ctx, job, e, actor, now, &report)
		}

		if len(entities) < s.batchSize {
			break
		}
	}

	s.logger.Debug(ctx, "batch job completed", map[string]string{
		"job":      job.Name,
		"selected": strconv.Itoa(report.Selected),
		"applied":  strconv.Itoa(report.Applied),
		"skipped":  strconv.Itoa(report.Skipped),
		"failed":   strconv.Itoa(report.Failed),
	})

	return report, nil
}

func (s *Scheduler) process(ctx context.Context, job BatchJob, e Entity, actor Actor, now time.Time, report *BatchReport) {
	if s.failures.Count(job.Name, e.ID) >= s.maxFailures {
		report.Skipped++
		metrics.BatchResults.WithLabelValues(job.Name, "skipped").Inc()
		return
	}

	meta := j.MKV{"job": job.Name, "entity_id": e.ID}

	if job.Filter != nil {
		ok, err := job.Filter(ctx, e, now)
		if err != nil {
			s.fail(ctx, job, e, errors.Wrap(err, "batch job filter", meta), report)
			return
		} else if !ok {
			return
		}
	}

	report.Selected++

	res, err := s.engine.Apply(ctx, TransitionRequest{
		Workflow:    job.Workflow,
		EntityID:    e.ID,
		Destination: job.Destination,
		Reason:      job.Reason,
		Actor:       actor,
		NoWait:      true,
	})
	switch {
	case errors.Is(err, ErrDuplicateRequest):
		// Someone else is working on the entity. It will be picked up on the next run if still eligible.
		report.Skipped++
		metrics.BatchResults.WithLabelValues(job.Name, "skipped").Inc()
	case err != nil && !errors.Is(err, ErrPostHookFailure):
		s.fail(ctx, job, e, errors.Wrap(err, "batch job apply", meta), report)
	case res.NoOp:
		report.Skipped++
		metrics.BatchResults.WithLabelValues(job.Name, "skipped").Inc()
	default:
		s.failures.Clear(job.Name, e.ID)
		report.Applied++
		metrics.BatchResults.WithLabelValues(job.Name, "applied").Inc()
	}
}

func (s *Scheduler) fail(ctx context.Context, job BatchJob, e Entity, err error, report *BatchReport) {
	count := s.failures.Add(job.Name, e.ID)
	report.Failed++
	metrics.BatchResults.WithLabelValues(job.Name, "failed").Inc()

	s.logger.Error(ctx, errors.Wrap(err, "", j.MKV{"consecutive_failures": strconv.Itoa(count)}))
}
