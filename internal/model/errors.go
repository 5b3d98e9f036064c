package model

import "github.com/rotisserie/eris"

// Caller input errors, rejected synchronously at submission.
var (
	ErrInvalidAddress   = eris.New("invalid address")
	ErrInvalidStrategy  = eris.New("invalid strategy")
	ErrInvalidRehabTier = eris.New("invalid rehab tier")
)

// Query errors against the job store.
var (
	ErrJobNotFound       = eris.New("job not found")
	ErrJobNotCompleted   = eris.New("job not completed")
	ErrInvalidTransition = eris.New("invalid job status transition")
	ErrStillRunning      = eris.New("job still running, poll for status")
)

// Worker and job-level failures.
var (
	ErrWorkerTimeout    = eris.New("worker timed out")
	ErrWorkerError      = eris.New("worker failed")
	ErrUnknownWorker    = eris.New("unknown worker")
	ErrInsufficientData = eris.New("insufficient data for a usable profile")
)
