// Package research runs research jobs: it normalizes the subject, dispatches
// workers with a concurrency cap, aggregates their payloads and persists the
// job lifecycle.
package research

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/property-research/internal/address"
	"github.com/sells-group/property-research/internal/model"
	"github.com/sells-group/property-research/internal/store"
	"github.com/sells-group/property-research/internal/worker"
)

// Defaults applied by New when the config leaves a field zero.
const (
	DefaultConcurrency    = 4
	DefaultWorkerTimeout  = worker.DefaultTimeout
	DefaultWaitTimeout    = 2 * time.Minute
	DefaultCeilingGrace   = 10 * time.Second
	DefaultPortfolioLimit = 50
)

// Config controls scheduling.
type Config struct {
	Concurrency          int
	DefaultWorkerTimeout time.Duration
	WorkerTimeouts       map[string]time.Duration
	WaitTimeout          time.Duration
	CeilingGrace         time.Duration
	PortfolioLimit       int
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.DefaultWorkerTimeout <= 0 {
		c.DefaultWorkerTimeout = DefaultWorkerTimeout
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.CeilingGrace <= 0 {
		c.CeilingGrace = DefaultCeilingGrace
	}
	if c.PortfolioLimit <= 0 {
		c.PortfolioLimit = DefaultPortfolioLimit
	}
	return c
}

// Request is a research submission.
type Request struct {
	Address       string `json:"address" validate:"required,max=200"`
	City          string `json:"city,omitempty" validate:"max=100"`
	State         string `json:"state,omitempty" validate:"max=40"`
	Zip           string `json:"zip,omitempty" validate:"max=10"`
	Strategy      string `json:"strategy" validate:"required,strategy"`
	RehabTier     string `json:"rehab_tier" validate:"required,rehab_tier"`
	Extended      bool   `json:"extended"`
	CorrelationID string `json:"-"`
}

// Result is the outcome of RunAndWait. Output is set only when the job
// completed.
type Result struct {
	Job    *model.Job
	Output *model.ResearchOutput
}

// Observer receives job and worker lifecycle events.
type Observer interface {
	JobStarted()
	JobFinished(status model.JobStatus, elapsed time.Duration)
	WorkerFinished(run model.WorkerRun)
}

type noopObserver struct{}

func (noopObserver) JobStarted()                                {}
func (noopObserver) JobFinished(model.JobStatus, time.Duration) {}
func (noopObserver) WorkerFinished(model.WorkerRun)             {}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache serves repeat worker calls from c.
func WithCache(c worker.ResultCache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithObserver reports lifecycle events to obs.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.obs = obs
		}
	}
}

// Orchestrator owns the research job lifecycle.
type Orchestrator struct {
	store store.Store
	reg   *worker.Registry
	cache worker.ResultCache
	obs   Observer
	cfg   Config

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[string]chan struct{}
}

// New creates an Orchestrator. Jobs run on an internal context that is only
// cancelled by Close.
func New(st store.Store, reg *worker.Registry, cfg Config, opts ...Option) *Orchestrator {
	base, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		store:   st,
		reg:     reg,
		obs:     noopObserver{},
		cfg:     cfg.withDefaults(),
		base:    base,
		cancel:  cancel,
		running: make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit validates the request, creates a pending job and starts it in the
// background. It returns as soon as the job is persisted.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (string, error) {
	strategy, err := model.ParseStrategy(req.Strategy)
	if err != nil {
		return "", err
	}
	tier, err := model.ParseRehabTier(req.RehabTier)
	if err != nil {
		return "", err
	}
	norm, err := address.Normalize(address.Input{Street: req.Address, City: req.City, State: req.State, Zip: req.Zip})
	if err != nil {
		return "", err
	}
	workers, err := o.reg.Select(req.Extended)
	if err != nil {
		return "", eris.Wrap(err, "research: select workers")
	}

	subject, err := o.store.GetOrCreateSubject(ctx, norm.Subject())
	if err != nil {
		return "", eris.Wrap(err, "research: subject")
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	job := &model.Job{
		SubjectID:     subject.ID,
		Subject:       *subject,
		CorrelationID: correlationID,
		Strategy:      strategy,
		RehabTier:     tier,
		Extended:      req.Extended,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return "", eris.Wrap(err, "research: create job")
	}

	done := make(chan struct{})
	o.mu.Lock()
	o.running[job.ID] = done
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.running, job.ID)
			o.mu.Unlock()
			close(done)
		}()
		o.execute(job, workers)
	}()

	zap.L().Info("research: job submitted",
		zap.String("job_id", job.ID),
		zap.String("correlation_id", correlationID),
		zap.String("subject", subject.NormalizedAddress),
		zap.Int("workers", len(workers)),
	)
	return job.ID, nil
}

// RunAndWait submits a job and blocks until it finishes, timeout elapses or
// ctx is done. On timeout it returns the current job snapshot and
// ErrStillRunning; the job keeps running.
func (o *Orchestrator) RunAndWait(ctx context.Context, req Request, timeout time.Duration) (*Result, error) {
	jobID, err := o.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = o.cfg.WaitTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-o.doneChan(jobID):
	case <-timer.C:
		job, err := o.store.GetJob(context.WithoutCancel(ctx), jobID)
		if err != nil {
			return nil, err
		}
		return &Result{Job: job}, eris.Wrapf(model.ErrStillRunning, "job %s", jobID)
	case <-ctx.Done():
		job, err := o.store.GetJob(context.WithoutCancel(ctx), jobID)
		if err != nil {
			return nil, err
		}
		return &Result{Job: job}, ctx.Err()
	}

	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	res := &Result{Job: job, Output: job.Output}
	if job.Status == model.JobStatusFailed {
		if strings.Contains(job.Error, model.ErrInsufficientData.Error()) {
			return res, eris.Wrapf(model.ErrInsufficientData, "job %s", jobID)
		}
		return res, eris.Errorf("research: job %s failed: %s", jobID, job.Error)
	}
	return res, nil
}

// doneChan returns the job's completion channel, or a closed channel when
// the job is not running in this process.
func (o *Orchestrator) doneChan(jobID string) <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ch, ok := o.running[jobID]; ok {
		return ch
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

// GetStatus returns the job.
func (o *Orchestrator) GetStatus(ctx context.Context, jobID string) (*model.Job, error) {
	return o.store.GetJob(ctx, jobID)
}

// GetOutput returns the output of a completed job.
func (o *Orchestrator) GetOutput(ctx context.Context, jobID string) (*model.ResearchOutput, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted || job.Output == nil {
		return nil, eris.Wrapf(model.ErrJobNotCompleted, "job %s is %s", jobID, job.Status)
	}
	return job.Output, nil
}

// GetDossier returns the rendered dossier of a completed job.
func (o *Orchestrator) GetDossier(ctx context.Context, jobID string) (string, error) {
	out, err := o.GetOutput(ctx, jobID)
	if err != nil {
		return "", err
	}
	return out.Dossier, nil
}

// GetDossierByAddress returns the dossier of the latest completed job for
// the address in req.
func (o *Orchestrator) GetDossierByAddress(ctx context.Context, req Request) (string, error) {
	norm, err := address.Normalize(address.Input{Street: req.Address, City: req.City, State: req.State, Zip: req.Zip})
	if err != nil {
		return "", err
	}
	subject, err := o.store.GetSubjectByAddress(ctx, norm.Key())
	if err != nil {
		return "", err
	}
	if subject == nil {
		return "", eris.Wrapf(model.ErrJobNotFound, "no research for %s", norm.Key())
	}
	job, err := o.store.LatestJobForSubject(ctx, subject.ID, model.JobStatusCompleted)
	if err != nil {
		return "", err
	}
	if job.Output == nil {
		return "", eris.Wrapf(model.ErrJobNotCompleted, "job %s", job.ID)
	}
	return job.Output.Dossier, nil
}

// ListJobs lists jobs newest first.
func (o *Orchestrator) ListJobs(ctx context.Context, filter store.JobFilter) ([]model.Job, error) {
	return o.store.ListJobs(ctx, filter)
}

// WorkerRuns returns the recorded worker runs of a job.
func (o *Orchestrator) WorkerRuns(ctx context.Context, jobID string) ([]model.WorkerRun, error) {
	if _, err := o.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return o.store.ListWorkerRuns(ctx, jobID)
}

// Recover fails jobs a previous process left pending or in progress.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	n, err := o.store.FailStaleJobs(ctx, store.InterruptedReason)
	if err != nil {
		return 0, eris.Wrap(err, "research: recover")
	}
	if n > 0 {
		zap.L().Warn("research: failed interrupted jobs", zap.Int("count", n))
	}
	return n, nil
}

// Wait blocks until every background job has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close waits for running jobs until ctx is done, then cancels them and
// waits for them to record their outcome.
func (o *Orchestrator) Close(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.cancel()
		<-finished
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return eris.Wrap(ctx.Err(), "research: close: jobs cancelled")
		}
		return ctx.Err()
	}
}
