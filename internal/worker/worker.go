// Package worker defines research workers, the harness that runs one worker
// under a deadline, and the registry the orchestrator selects them from.
package worker

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/property-research/internal/model"
)

// DefaultTimeout bounds a worker that declares no timeout of its own.
const DefaultTimeout = 20 * time.Second

// ErrNoData is returned by a worker whose provider has nothing on file for
// the subject. The run is recorded as skipped rather than failed.
var ErrNoData = eris.New("no data for subject")

// Set is the worker-set tier a worker belongs to.
type Set int

const (
	// Standard workers always run.
	Standard Set = iota + 1
	// Extended workers run only when the request asks for the extended set.
	Extended
)

// String returns the human-readable set name.
func (s Set) String() string {
	switch s {
	case Standard:
		return "standard"
	case Extended:
		return "extended"
	default:
		return "unknown"
	}
}

// ParseSet converts a string into a Set.
func ParseSet(s string) (Set, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard":
		return Standard, nil
	case "extended":
		return Extended, nil
	default:
		return 0, eris.Errorf("unknown worker set: %q (valid: standard, extended)", s)
	}
}

// Request is the input every worker receives.
type Request struct {
	JobID     string
	Subject   model.ResearchSubject
	Strategy  model.Strategy
	RehabTier model.RehabTier
}

// Worker gathers one slice of research data from one provider.
type Worker interface {
	// Name returns the unique identifier (e.g., "parcel", "comps_sales").
	Name() string

	// Category returns the output slice the payload feeds.
	Category() model.Category

	// Set returns the tier the worker belongs to.
	Set() Set

	// Label is the human-readable step shown while the job runs.
	Label() string

	// Timeout returns the worker's own deadline, or 0 for the default.
	Timeout() time.Duration

	// Critical reports whether the job cannot complete without this worker.
	Critical() bool

	// Run fetches and returns the worker's payload.
	Run(ctx context.Context, req Request) (model.Payload, error)
}
