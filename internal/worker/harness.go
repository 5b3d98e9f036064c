package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/property-research/internal/model"
)

// ResultCache stores successful payloads keyed by worker and subject.
// Implementations log and swallow their own errors.
type ResultCache interface {
	Get(ctx context.Context, worker, address string) (model.Payload, bool)
	Set(ctx context.Context, worker, address string, p model.Payload)
}

type outcome struct {
	payload model.Payload
	err     error
}

// Execute runs w once under a deadline and returns the resulting WorkerRun.
// A zero timeout falls back to w.Timeout() and then DefaultTimeout. Panics,
// errors and deadline hits become failed runs; Execute itself never fails.
// A worker that ignores its context is abandoned when the deadline passes.
func Execute(ctx context.Context, w Worker, req Request, timeout time.Duration, cache ResultCache) model.WorkerRun {
	start := time.Now()
	run := model.WorkerRun{
		JobID:     req.JobID,
		Worker:    w.Name(),
		Category:  w.Category(),
		StartedAt: start.UTC(),
	}
	addr := req.Subject.NormalizedAddress

	if cache != nil {
		if p, ok := cache.Get(ctx, w.Name(), addr); ok {
			run.Status = model.WorkerSucceeded
			run.Payload = p
			run.Cached = true
			run.DurationMS = time.Since(start).Milliseconds()
			return run
		}
	}

	if timeout <= 0 {
		timeout = w.Timeout()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				zap.L().Error("worker: panic",
					zap.String("worker", w.Name()),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				done <- outcome{err: eris.Wrapf(model.ErrWorkerError, "panic: %v", r)}
			}
		}()
		p, err := w.Run(wctx, req)
		done <- outcome{payload: p, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-wctx.Done():
		res = outcome{err: wctx.Err()}
	}
	run.DurationMS = time.Since(start).Milliseconds()

	switch {
	case res.err == nil && res.payload == nil:
		run.Status = model.WorkerSkipped
		run.Error = ErrNoData.Error()
	case res.err == nil:
		run.Status = model.WorkerSucceeded
		run.Payload = res.payload
		if cache != nil {
			cache.Set(ctx, w.Name(), addr, res.payload)
		}
	case errors.Is(res.err, ErrNoData):
		run.Status = model.WorkerSkipped
		run.Error = res.err.Error()
	case errors.Is(wctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		run.Status = model.WorkerFailed
		run.Error = fmt.Sprintf("%s after %s", model.ErrWorkerTimeout.Error(), timeout)
	default:
		run.Status = model.WorkerFailed
		run.Error = res.err.Error()
	}
	return run
}

// IsTimeout reports whether a failed run hit its deadline.
func IsTimeout(run model.WorkerRun) bool {
	return run.Status == model.WorkerFailed && strings.HasPrefix(run.Error, model.ErrWorkerTimeout.Error())
}
