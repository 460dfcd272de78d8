// Package dispatch drives job progress without client-initiated requests: a
// single polling loop starts queued jobs and checks running ones.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"inkforge/internal/domain"
	"inkforge/internal/jobs"
)

const (
	defaultInterval  = 5 * time.Second
	defaultBatchSize = 10
)

// Dispatcher owns the polling loop. Jobs within one tick are processed
// sequentially; one job's failure never aborts the tick.
type Dispatcher struct {
	jobs      domain.JobRepository
	registry  map[domain.JobType]jobs.Handler
	interval  time.Duration
	batchSize int
	log       zerolog.Logger
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithInterval overrides the tick interval.
func WithInterval(interval time.Duration) Option {
	return func(d *Dispatcher) { d.interval = interval }
}

// WithBatchSize caps how many queued jobs are started per tick.
func WithBatchSize(n int) Option {
	return func(d *Dispatcher) { d.batchSize = n }
}

func New(repo domain.JobRepository, registry map[domain.JobType]jobs.Handler, log zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		jobs:      repo,
		registry:  registry,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		log:       log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run ticks until the context is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info().Dur("interval", d.interval).Msg("dispatcher: started")
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		d.Tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one polling pass: start up to batchSize queued jobs in
// created_at order, then check every running job with an outstanding
// prediction. Exported so tests drive ticks manually.
func (d *Dispatcher) Tick(ctx context.Context) {
	queued, err := d.jobs.ListQueued(ctx, d.batchSize)
	if err != nil {
		d.log.Error().Err(err).Msg("dispatcher: list queued jobs failed")
	} else {
		for i := range queued {
			d.startJob(ctx, &queued[i])
		}
	}

	running, err := d.jobs.ListRunningWithPrediction(ctx)
	if err != nil {
		d.log.Error().Err(err).Msg("dispatcher: list running jobs failed")
		return
	}
	for i := range running {
		d.checkJob(ctx, &running[i])
	}
}

func (d *Dispatcher) startJob(ctx context.Context, job *domain.Job) {
	handler, ok := d.registry[job.Type]
	if !ok {
		d.settle(ctx, job, fmt.Errorf("no handler for job type %q", job.Type))
		return
	}
	d.log.Info().Str("job_id", job.ID).Str("product_id", job.ProductID).Str("type", string(job.Type)).Msg("dispatcher: starting job")
	job.Status = domain.JobStatusRunning
	d.settle(ctx, job, d.safely(func() error { return handler.Start(ctx, job) }))
}

func (d *Dispatcher) checkJob(ctx context.Context, job *domain.Job) {
	handler, ok := d.registry[job.Type]
	if !ok {
		d.settle(ctx, job, fmt.Errorf("no handler for job type %q", job.Type))
		return
	}
	d.settle(ctx, job, d.safely(func() error { return handler.Check(ctx, job) }))
}

// settle maps the handler outcome onto the job row and persists it. All
// failures are captured per-job; the dispatcher itself never raises.
func (d *Dispatcher) settle(ctx context.Context, job *domain.Job, err error) {
	var skip *jobs.SkipError
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrDependencyNotReady):
		d.softRequeue(job, err)
	case errors.As(err, &skip):
		job.Status = domain.JobStatusSkipped
		job.ErrorMessage = skip.Reason
		job.ExternalPredictionID = ""
		d.log.Info().Str("job_id", job.ID).Str("reason", skip.Reason).Msg("dispatcher: job skipped")
	default:
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = err.Error()
		job.ExternalPredictionID = ""
		d.log.Error().Err(err).Str("job_id", job.ID).Str("type", string(job.Type)).Msg("dispatcher: job failed")
	}
	if updateErr := d.jobs.Update(ctx, job); updateErr != nil {
		d.log.Error().Err(updateErr).Str("job_id", job.ID).Msg("dispatcher: persist job failed")
	}
}

// softRequeue sets the job back to queued to wait for its dependency. There
// is no backoff and no retry cap; the requeue count is kept in the output so
// operators can spot a permanently-stuck prerequisite cycling.
func (d *Dispatcher) softRequeue(job *domain.Job, cause error) {
	job.Status = domain.JobStatusQueued
	job.ErrorMessage = ""
	var marker struct {
		Requeues int `json:"requeues"`
	}
	_ = job.DecodeOutput(&marker)
	marker.Requeues++
	if err := job.MergeOutput(map[string]any{"requeues": marker.Requeues}); err != nil {
		d.log.Warn().Err(err).Str("job_id", job.ID).Msg("dispatcher: record requeue count failed")
	}
	d.log.Warn().Str("job_id", job.ID).Str("type", string(job.Type)).Int("requeues", marker.Requeues).
		AnErr("cause", cause).Msg("dispatcher: waiting on dependency")
}

// safely converts a handler panic into a per-job error.
func (d *Dispatcher) safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn()
}
