package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// JobStatus represents the lifecycle state of a research job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether a job may move from s to next. Status only
// moves forward; pending may fail directly when an interrupted job is reaped.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusInProgress || next == JobStatusFailed
	case JobStatusInProgress:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// ParseJobStatus converts a string into a JobStatus.
func ParseJobStatus(s string) (JobStatus, error) {
	switch st := JobStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case JobStatusPending, JobStatusInProgress, JobStatusCompleted, JobStatusFailed:
		return st, nil
	default:
		return "", eris.Errorf("unknown job status: %q", s)
	}
}

// Strategy is the investment strategy a job underwrites for.
type Strategy string

const (
	StrategyFlip      Strategy = "flip"
	StrategyRental    Strategy = "rental"
	StrategyWholesale Strategy = "wholesale"
)

// ParseStrategy converts a string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyFlip, StrategyRental, StrategyWholesale:
		return st, nil
	default:
		return "", eris.Wrapf(ErrInvalidStrategy, "%q (valid: flip, rental, wholesale)", s)
	}
}

// RehabTier is the coarse renovation scope driving the per-sqft rehab rate.
type RehabTier string

const (
	RehabLight  RehabTier = "light"
	RehabMedium RehabTier = "medium"
	RehabHeavy  RehabTier = "heavy"
)

// ParseRehabTier converts a string into a RehabTier.
func ParseRehabTier(s string) (RehabTier, error) {
	switch t := RehabTier(strings.ToLower(strings.TrimSpace(s))); t {
	case RehabLight, RehabMedium, RehabHeavy:
		return t, nil
	default:
		return "", eris.Wrapf(ErrInvalidRehabTier, "%q (valid: light, medium, heavy)", s)
	}
}

// Job is one research run against one subject.
type Job struct {
	ID            string          `json:"id"`
	SubjectID     string          `json:"subject_id"`
	Subject       ResearchSubject `json:"subject"`
	Status        JobStatus       `json:"status"`
	Progress      int             `json:"progress"`
	CurrentStep   string          `json:"current_step"`
	CorrelationID string          `json:"correlation_id"`
	Error         string          `json:"error,omitempty"`
	Strategy      Strategy        `json:"strategy"`
	RehabTier     RehabTier       `json:"rehab_tier"`
	Extended      bool            `json:"extended"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	Output        *ResearchOutput `json:"output,omitempty"`
}
