// Package store persists research subjects, jobs and worker runs.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/property-research/internal/model"
)

// MaxInProgress is the highest progress an unfinished job may report. Only
// CompleteJob sets 100.
const MaxInProgress = 99

// InterruptedReason is the error recorded on jobs reaped at startup.
const InterruptedReason = "interrupted: process restarted"

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status    model.JobStatus `json:"status,omitempty"`
	SubjectID string          `json:"subject_id,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Offset    int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for research jobs.
type Store interface {
	// Subjects
	GetOrCreateSubject(ctx context.Context, subject model.ResearchSubject) (*model.ResearchSubject, error)
	GetSubjectByAddress(ctx context.Context, normalizedAddress string) (*model.ResearchSubject, error)

	// Jobs
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)
	LatestJobForSubject(ctx context.Context, subjectID string, status model.JobStatus) (*model.Job, error)
	StartJob(ctx context.Context, jobID string) error
	UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error
	CompleteJob(ctx context.Context, jobID string, output *model.ResearchOutput) error
	FailJob(ctx context.Context, jobID string, reason string) error
	FailStaleJobs(ctx context.Context, reason string) (int, error)

	// Worker runs
	CreateWorkerRun(ctx context.Context, run model.WorkerRun) error
	ListWorkerRuns(ctx context.Context, jobID string) ([]model.WorkerRun, error)

	// Portfolio
	ListPortfolio(ctx context.Context, city, state, excludeSubjectID string, limit int) ([]model.PortfolioProperty, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

type scannable interface {
	Scan(dest ...any) error
}

func clampProgress(p int) int {
	return max(0, min(p, MaxInProgress))
}

func jobNotFound(jobID string) error {
	return eris.Wrapf(model.ErrJobNotFound, "job %s", jobID)
}

func invalidTransition(jobID string, from, to model.JobStatus) error {
	return eris.Wrapf(model.ErrInvalidTransition, "job %s: %s -> %s", jobID, from, to)
}

func decodeOutput(raw []byte) (*model.ResearchOutput, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out model.ResearchOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, eris.Wrap(err, "unmarshal output")
	}
	return &out, nil
}

func encodePayload(p model.Payload) (kind string, raw []byte, err error) {
	if p == nil {
		return "", nil, nil
	}
	raw, err = json.Marshal(p)
	if err != nil {
		return "", nil, eris.Wrap(err, "marshal payload")
	}
	return string(p.Kind()), raw, nil
}

// portfolioEntry turns a stored output into a portfolio comparable. Outputs
// without a profile or a value are skipped.
func portfolioEntry(subjectID, address string, raw []byte) (model.PortfolioProperty, bool) {
	out, err := decodeOutput(raw)
	if err != nil || out == nil || out.Profile == nil {
		return model.PortfolioProperty{}, false
	}
	value := out.Underwriting.ARV.Base
	if value <= 0 {
		value = out.Profile.EstimatedValue
	}
	if value <= 0 {
		return model.PortfolioProperty{}, false
	}
	return model.PortfolioProperty{
		SubjectID: subjectID,
		Address:   address,
		Beds:      out.Profile.Beds,
		Baths:     out.Profile.Baths,
		Sqft:      out.Profile.Sqft,
		Value:     value,
	}, true
}
