package research

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/property-research/internal/aggregate"
	"github.com/sells-group/property-research/internal/model"
	"github.com/sells-group/property-research/internal/store"
	"github.com/sells-group/property-research/internal/worker"
)

// tracker serializes progress writes for one job.
type tracker struct {
	mu    sync.Mutex
	total int
	done  int
	runs  []model.WorkerRun
}

// timeoutFor resolves a worker's deadline: config override, then the
// worker's own, then the configured default.
func (o *Orchestrator) timeoutFor(w worker.Worker) time.Duration {
	if d, ok := o.cfg.WorkerTimeouts[w.Name()]; ok && d > 0 {
		return d
	}
	if d := w.Timeout(); d > 0 {
		return d
	}
	return o.cfg.DefaultWorkerTimeout
}

// ceiling bounds a whole job: every wave of workers at the slowest timeout,
// plus grace.
func (o *Orchestrator) ceiling(workers []worker.Worker) time.Duration {
	var longest time.Duration
	for _, w := range workers {
		longest = max(longest, o.timeoutFor(w))
	}
	waves := int(math.Ceil(float64(len(workers)) / float64(o.cfg.Concurrency)))
	return time.Duration(waves)*longest + o.cfg.CeilingGrace
}

// execute runs one job to a terminal status.
func (o *Orchestrator) execute(job *model.Job, workers []worker.Worker) {
	// Persistence outlives Close so a cancelled job still records its outcome.
	ctx := context.WithoutCancel(o.base)
	log := zap.L().With(
		zap.String("job_id", job.ID),
		zap.String("correlation_id", job.CorrelationID),
		zap.String("subject", job.Subject.NormalizedAddress),
	)
	start := time.Now()

	if err := o.store.StartJob(ctx, job.ID); err != nil {
		log.Error("research: start job failed", zap.Error(err))
		if ferr := o.store.FailJob(ctx, job.ID, err.Error()); ferr != nil {
			log.Error("research: record start failure", zap.Error(ferr))
		}
		return
	}
	o.obs.JobStarted()
	log.Info("research: job started", zap.Int("workers", len(workers)))

	req := worker.Request{
		JobID:     job.ID,
		Subject:   job.Subject,
		Strategy:  job.Strategy,
		RehabTier: job.RehabTier,
	}

	runCtx, cancel := context.WithTimeout(o.base, o.ceiling(workers))
	defer cancel()

	tr := &tracker{total: len(workers)}
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(o.cfg.Concurrency)

	for _, w := range workers {
		g.Go(func() error {
			run := worker.Execute(gctx, w, req, o.timeoutFor(w), o.cache)
			o.record(ctx, job.ID, tr, w, run, log)
			return nil // a worker failure never aborts its siblings
		})
	}
	_ = g.Wait()

	status := o.finalize(ctx, job, tr.runs, log)
	o.obs.JobFinished(status, time.Since(start))
	log.Info("research: job finished",
		zap.String("status", string(status)),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// record persists one worker run and advances progress under the job's
// tracker lock.
func (o *Orchestrator) record(ctx context.Context, jobID string, tr *tracker, w worker.Worker, run model.WorkerRun, log *zap.Logger) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if err := o.store.CreateWorkerRun(ctx, run); err != nil {
		log.Error("research: record worker run", zap.String("worker", run.Worker), zap.Error(err))
	}
	tr.runs = append(tr.runs, run)
	tr.done++

	progress := int(math.Round(100 * float64(tr.done) / float64(tr.total)))
	if err := o.store.UpdateJobProgress(ctx, jobID, min(progress, store.MaxInProgress), w.Label()); err != nil {
		log.Warn("research: update progress", zap.Error(err))
	}
	o.obs.WorkerFinished(run)

	fields := []zap.Field{
		zap.String("worker", run.Worker),
		zap.String("status", string(run.Status)),
		zap.Int64("duration_ms", run.DurationMS),
		zap.Bool("cached", run.Cached),
	}
	if run.Status == model.WorkerFailed {
		log.Warn("research: worker failed", append(fields, zap.String("error", run.Error))...)
		return
	}
	log.Debug("research: worker finished", fields...)
}

// finalize aggregates the runs and moves the job to completed or failed.
func (o *Orchestrator) finalize(ctx context.Context, job *model.Job, runs []model.WorkerRun, log *zap.Logger) model.JobStatus {
	critical := o.reg.Critical()
	if err := aggregate.Sufficient(runs, critical); err != nil {
		log.Warn("research: insufficient data", zap.Error(err))
		if ferr := o.store.FailJob(ctx, job.ID, err.Error()); ferr != nil {
			log.Error("research: fail job", zap.Error(ferr))
		}
		return model.JobStatusFailed
	}

	portfolio, err := o.store.ListPortfolio(ctx, job.Subject.City, job.Subject.State, job.SubjectID, o.cfg.PortfolioLimit)
	if err != nil {
		log.Warn("research: list portfolio", zap.Error(err))
	}

	out := aggregate.Aggregate(aggregate.Input{
		JobID:     job.ID,
		Subject:   job.Subject,
		Strategy:  job.Strategy,
		RehabTier: job.RehabTier,
		Runs:      runs,
		Critical:  critical,
		Portfolio: portfolio,
	})
	if err := o.store.CompleteJob(ctx, job.ID, out); err != nil {
		log.Error("research: complete job", zap.Error(err))
		if ferr := o.store.FailJob(ctx, job.ID, err.Error()); ferr != nil {
			log.Error("research: fail job", zap.Error(ferr))
		}
		return model.JobStatusFailed
	}
	return model.JobStatusCompleted
}
