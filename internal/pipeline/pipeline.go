// Package pipeline runs research jobs end to end: one discovery task,
// candidate extraction and validation, storage with dedupe, optional
// enrichment, and scoring of everything the job stored.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hvac-targets/internal/config"
	"github.com/sells-group/hvac-targets/internal/metrics"
	"github.com/sells-group/hvac-targets/internal/model"
	"github.com/sells-group/hvac-targets/internal/research"
	"github.com/sells-group/hvac-targets/internal/scoring"
	"github.com/sells-group/hvac-targets/internal/sources"
	"github.com/sells-group/hvac-targets/internal/store"
)

// DefaultMinConfidence is the confidence below which candidates are dropped.
const DefaultMinConfidence = 0.3

// Enricher looks up supplementary data for a stored business.
type Enricher interface {
	Enrich(ctx context.Context, b *model.Business) sources.Enrichment
}

// ProgressFunc observes every checkpoint of a job. It receives a copy.
type ProgressFunc func(job model.ResearchJob)

// Config tunes a research run.
type Config struct {
	Poll          research.PollConfig
	MinConfidence float64
	Enrich        bool
}

// DefaultConfig returns the default polling schedule and confidence floor.
func DefaultConfig() Config {
	return Config{
		Poll:          research.DefaultPollConfig(),
		MinConfidence: DefaultMinConfidence,
	}
}

// ConfigFrom builds a Config from the research section of the app config.
// Zero values fall back to the defaults.
func ConfigFrom(c config.ResearchConfig) Config {
	cfg := DefaultConfig()
	if c.PollInitialSecs > 0 {
		cfg.Poll.Initial = time.Duration(c.PollInitialSecs) * time.Second
	}
	if c.PollMaxSecs > 0 {
		cfg.Poll.Max = time.Duration(c.PollMaxSecs) * time.Second
	}
	if c.TimeoutMins > 0 {
		cfg.Poll.Timeout = time.Duration(c.TimeoutMins) * time.Minute
	}
	if c.MinConfidence > 0 {
		cfg.MinConfidence = c.MinConfidence
	}
	cfg.Enrich = c.Enrich
	return cfg
}

// Orchestrator owns the research job lifecycle and batch scoring.
type Orchestrator struct {
	store    store.Store
	backend  research.Backend
	engine   *scoring.Engine
	enricher Enricher
	cfg      Config
	progress ProgressFunc
	now      func() time.Time

	wg sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEnricher sets the adapter set used when Config.Enrich is on.
func WithEnricher(e Enricher) Option {
	return func(o *Orchestrator) { o.enricher = e }
}

// WithProgress registers a checkpoint observer.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithClock overrides the time source used for estimate timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator.
func New(st store.Store, backend research.Backend, engine *scoring.Engine, cfg Config, opts ...Option) *Orchestrator {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	o := &Orchestrator{
		store:   st,
		backend: backend,
		engine:  engine,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Engine returns the scoring engine used for every score the orchestrator
// writes.
func (o *Orchestrator) Engine() *scoring.Engine { return o.engine }

// Run creates a job for q and executes it synchronously. Stage failures are
// recorded on the returned job; an error is returned only when the job
// record cannot be created.
func (o *Orchestrator) Run(ctx context.Context, q model.ResearchQuery) (*model.ResearchJob, error) {
	job, err := o.createJob(ctx, q)
	if err != nil {
		return nil, err
	}
	o.Execute(ctx, job)
	return job, nil
}

// Launch creates a job for q and executes it in a background goroutine
// bound to ctx. It returns a snapshot of the freshly created job.
func (o *Orchestrator) Launch(ctx context.Context, q model.ResearchQuery) (*model.ResearchJob, error) {
	job, err := o.createJob(ctx, q)
	if err != nil {
		return nil, err
	}
	running := *job
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.Execute(ctx, &running)
	}()
	return job, nil
}

// Wait blocks until every launched job has finished.
func (o *Orchestrator) Wait() { o.wg.Wait() }

func (o *Orchestrator) createJob(ctx context.Context, q model.ResearchQuery) (*model.ResearchJob, error) {
	job := &model.ResearchJob{
		Query:  q,
		Stage:  model.StageInit,
		Status: model.JobStatusPending,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, eris.Wrap(err, "pipeline: create job")
	}
	o.publish(job)
	return job, nil
}

// Execute runs every stage of an already created job. It never returns an
// error: failures end the job in the ERROR stage with the message recorded.
func (o *Orchestrator) Execute(ctx context.Context, job *model.ResearchJob) {
	r := &run{
		o:   o,
		job: job,
		// Job bookkeeping must land even when ctx is canceled mid-run.
		persistCtx: context.WithoutCancel(ctx),
		log:        zap.L().With(zap.String("job_id", job.ID), zap.String("region", job.Query.Region)),
		stage:      model.StageInit,
		stageStart: time.Now(),
	}
	r.log.Info("pipeline: starting research job")

	metrics.JobsStarted.Inc()
	metrics.JobsActive.Inc()
	defer metrics.JobsActive.Dec()

	job.Status = model.JobStatusRunning
	r.persist()
	o.publish(job)

	if err := r.execute(ctx); err != nil {
		r.fail(err)
		return
	}
	r.complete()
}

func (o *Orchestrator) publish(job *model.ResearchJob) {
	if o.progress != nil {
		o.progress(*job)
	}
}
