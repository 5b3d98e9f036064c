package monitoring

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/property-research/internal/model"
	"github.com/sells-group/property-research/internal/resilience"
	"github.com/sells-group/property-research/internal/store"
)

// listLimit bounds how many jobs one snapshot reads.
const listLimit = 10000

// Snapshot holds a point-in-time view of research job health.
type Snapshot struct {
	// Jobs created within the lookback window.
	JobsTotal        int     `json:"jobs_total"`
	JobsCompleted    int     `json:"jobs_completed"`
	JobsFailed       int     `json:"jobs_failed"`
	JobsInsufficient int     `json:"jobs_insufficient"`
	JobsInterrupted  int     `json:"jobs_interrupted"`
	JobsRunning      int     `json:"jobs_running"`
	JobsStuck        int     `json:"jobs_stuck"`
	FailRate         float64 `json:"fail_rate"`
	InsufficientRate float64 `json:"insufficient_rate"`
	AvgDurationSecs  float64 `json:"avg_duration_secs"`

	// Provider breakers currently rejecting calls.
	OpenBreakers []string `json:"open_breakers,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Finished returns the number of jobs in a terminal state.
func (s *Snapshot) Finished() int {
	return s.JobsCompleted + s.JobsFailed
}

// Summarize tallies jobs created at or after cutoff. A zero cutoff includes
// every job. Unfinished jobs created before now-stuckAfter count as stuck
// when stuckAfter is positive.
func Summarize(jobs []model.Job, cutoff, now time.Time, stuckAfter time.Duration) *Snapshot {
	snap := &Snapshot{CollectedAt: now}

	var totalDur time.Duration
	var durCount int

	for _, j := range jobs {
		if !cutoff.IsZero() && j.CreatedAt.Before(cutoff) {
			continue
		}
		snap.JobsTotal++
		switch j.Status {
		case model.JobStatusCompleted:
			snap.JobsCompleted++
			if j.StartedAt != nil && j.CompletedAt != nil {
				totalDur += j.CompletedAt.Sub(*j.StartedAt)
				durCount++
			}
		case model.JobStatusFailed:
			snap.JobsFailed++
			switch {
			case strings.Contains(j.Error, model.ErrInsufficientData.Error()):
				snap.JobsInsufficient++
			case j.Error == store.InterruptedReason:
				snap.JobsInterrupted++
			}
		default:
			snap.JobsRunning++
			if stuckAfter > 0 && now.Sub(j.CreatedAt) > stuckAfter {
				snap.JobsStuck++
			}
		}
	}

	if finished := snap.Finished(); finished > 0 {
		snap.FailRate = float64(snap.JobsFailed) / float64(finished)
		snap.InsufficientRate = float64(snap.JobsInsufficient) / float64(finished)
	}
	if durCount > 0 {
		snap.AvgDurationSecs = totalDur.Seconds() / float64(durCount)
	}
	return snap
}

// JobLister reads job history. Both store.Store and the research
// orchestrator satisfy it.
type JobLister interface {
	ListJobs(ctx context.Context, filter store.JobFilter) ([]model.Job, error)
}

// BreakerStates reports provider circuit breaker states.
type BreakerStates interface {
	States() map[string]resilience.BreakerState
}

// Collector gathers snapshots from the job history and provider breakers.
type Collector struct {
	jobs       JobLister
	breakers   BreakerStates
	stuckAfter time.Duration
}

// NewCollector creates a collector. breakers may be nil.
func NewCollector(jobs JobLister, breakers BreakerStates, stuckAfter time.Duration) *Collector {
	return &Collector{jobs: jobs, breakers: breakers, stuckAfter: stuckAfter}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	jobs, err := c.jobs.ListJobs(ctx, store.JobFilter{Limit: listLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list jobs")
	}

	now := time.Now().UTC()
	var cutoff time.Time
	if lookbackHours > 0 {
		cutoff = now.Add(-time.Duration(lookbackHours) * time.Hour)
	}
	snap := Summarize(jobs, cutoff, now, c.stuckAfter)
	snap.LookbackHours = lookbackHours

	if c.breakers != nil {
		for name, state := range c.breakers.States() {
			if state == resilience.StateOpen {
				snap.OpenBreakers = append(snap.OpenBreakers, name)
			}
		}
		sort.Strings(snap.OpenBreakers)
	}
	return snap, nil
}
