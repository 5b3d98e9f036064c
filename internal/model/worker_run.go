package model

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// WorkerStatus is the terminal outcome of one worker within one job.
type WorkerStatus string

const (
	WorkerSucceeded WorkerStatus = "succeeded"
	WorkerFailed    WorkerStatus = "failed"
	WorkerSkipped   WorkerStatus = "skipped"
)

// WorkerRun records the execution of one worker within one job. It is
// written once and never retried.
type WorkerRun struct {
	JobID      string       `json:"job_id"`
	Worker     string       `json:"worker"`
	Category   Category     `json:"category"`
	Status     WorkerStatus `json:"status"`
	DurationMS int64        `json:"duration_ms"`
	Payload    Payload      `json:"-"`
	Error      string       `json:"error,omitempty"`
	Cached     bool         `json:"cached,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
}

type workerRunJSON struct {
	JobID       string          `json:"job_id"`
	Worker      string          `json:"worker"`
	Category    Category        `json:"category"`
	Status      WorkerStatus    `json:"status"`
	DurationMS  int64           `json:"duration_ms"`
	PayloadKind PayloadKind     `json:"payload_kind,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Error       string          `json:"error,omitempty"`
	Cached      bool            `json:"cached,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
}

// MarshalJSON encodes the payload alongside its kind tag.
func (r WorkerRun) MarshalJSON() ([]byte, error) {
	out := workerRunJSON{
		JobID:      r.JobID,
		Worker:     r.Worker,
		Category:   r.Category,
		Status:     r.Status,
		DurationMS: r.DurationMS,
		Error:      r.Error,
		Cached:     r.Cached,
		StartedAt:  r.StartedAt,
	}
	if r.Payload != nil {
		raw, err := json.Marshal(r.Payload)
		if err != nil {
			return nil, eris.Wrapf(err, "model: marshal %s payload", r.Worker)
		}
		out.PayloadKind = r.Payload.Kind()
		out.Payload = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the typed payload from its kind tag.
func (r *WorkerRun) UnmarshalJSON(data []byte) error {
	var in workerRunJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return eris.Wrap(err, "model: unmarshal worker run")
	}
	*r = WorkerRun{
		JobID:      in.JobID,
		Worker:     in.Worker,
		Category:   in.Category,
		Status:     in.Status,
		DurationMS: in.DurationMS,
		Error:      in.Error,
		Cached:     in.Cached,
		StartedAt:  in.StartedAt,
	}
	if in.PayloadKind != "" && len(in.Payload) > 0 {
		p, err := DecodePayload(in.PayloadKind, in.Payload)
		if err != nil {
			return err
		}
		r.Payload = p
	}
	return nil
}
