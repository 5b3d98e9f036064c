package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-research/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testSubject(addr, city string) model.ResearchSubject {
	return model.ResearchSubject{
		NormalizedAddress: addr + ", " + city + ", TX",
		RawAddress:        addr,
		Street:            addr,
		City:              city,
		State:             "TX",
	}
}

func createTestJob(t *testing.T, s Store, addr string) *model.Job {
	t.Helper()
	ctx := context.Background()
	sub, err := s.GetOrCreateSubject(ctx, testSubject(addr, "AUSTIN"))
	require.NoError(t, err)
	job := &model.Job{
		SubjectID:     sub.ID,
		Strategy:      model.StrategyFlip,
		RehabTier:     model.RehabMedium,
		CorrelationID: "corr-1",
	}
	require.NoError(t, s.CreateJob(ctx, job))
	return job
}

func TestSQLite_GetOrCreateSubject_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.GetOrCreateSubject(ctx, testSubject("123 MAIN ST", "AUSTIN"))
	require.NoError(t, err)
	b, err := st.GetOrCreateSubject(ctx, testSubject("123 MAIN ST", "AUSTIN"))
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "AUSTIN", b.City)
}

func TestSQLite_GetOrCreateSubject_Concurrent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	const n = 16
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := st.GetOrCreateSubject(ctx, testSubject("9 ELM ST", "DALLAS"))
			errs[i] = err
			if sub != nil {
				ids[i] = sub.ID
			}
		}()
	}
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	var count int
	require.NoError(t, st.db.QueryRow(`SELECT COUNT(*) FROM subjects`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSQLite_GetOrCreateSubject_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetOrCreateSubject(context.Background(), model.ResearchSubject{})
	assert.True(t, errors.Is(err, model.ErrInvalidAddress))
}

func TestSQLite_GetSubjectByAddress_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)
	sub, err := st.GetSubjectByAddress(context.Background(), "1 NOWHERE")
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestSQLite_CreateAndGetJob(t *testing.T) {
	st := newTestSQLiteStore(t)
	job := createTestJob(t, st, "123 MAIN ST")

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobStatusPending, job.Status)

	got, err := st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, model.JobStatusPending, got.Status)
	assert.Equal(t, model.StrategyFlip, got.Strategy)
	assert.Equal(t, model.RehabMedium, got.RehabTier)
	assert.Equal(t, "corr-1", got.CorrelationID)
	assert.Equal(t, "123 MAIN ST, AUSTIN, TX", got.Subject.NormalizedAddress)
	assert.Equal(t, got.SubjectID, got.Subject.ID)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.Output)
}

func TestSQLite_GetJob_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetJob(context.Background(), "missing")
	assert.True(t, errors.Is(err, model.ErrJobNotFound))
}

func TestSQLite_JobLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	job := createTestJob(t, st, "1 OAK AVE")

	require.NoError(t, st.StartJob(ctx, job.ID))
	require.NoError(t, st.UpdateJobProgress(ctx, job.ID, 40, "Fetching tax records"))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusInProgress, got.Status)
	assert.Equal(t, 40, got.Progress)
	assert.Equal(t, "Fetching tax records", got.CurrentStep)
	require.NotNil(t, got.StartedAt)

	out := &model.ResearchOutput{
		JobID:   job.ID,
		Profile: &model.PropertyProfile{Beds: 3, Baths: 2, Sqft: 1800},
		Dossier: "# Investment Dossier",
	}
	require.NoError(t, st.CompleteJob(ctx, job.ID, out))

	got, err = st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.Output)
	assert.Equal(t, 1800, got.Output.Profile.Sqft)
	assert.Equal(t, "# Investment Dossier", got.Output.Dossier)
	require.NotNil(t, got.CompletedAt)
}

func TestSQLite_ProgressIsMonotonicAndCapped(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	job := createTestJob(t, st, "2 OAK AVE")
	require.NoError(t, st.StartJob(ctx, job.ID))

	require.NoError(t, st.UpdateJobProgress(ctx, job.ID, 60, "b"))
	require.NoError(t, st.UpdateJobProgress(ctx, job.ID, 30, "a"))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, got.Progress)
	assert.Equal(t, "b", got.CurrentStep)

	require.NoError(t, st.UpdateJobProgress(ctx, job.ID, 100, "c"))
	got, err = st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, MaxInProgress, got.Progress)
}

func TestSQLite_InvalidTransitions(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	job := createTestJob(t, st, "3 OAK AVE")

	// pending cannot complete, fail, or report progress
	assert.True(t, errors.Is(st.CompleteJob(ctx, job.ID, &model.ResearchOutput{}), model.ErrInvalidTransition))
	assert.True(t, errors.Is(st.FailJob(ctx, job.ID, "x"), model.ErrInvalidTransition))
	assert.True(t, errors.Is(st.UpdateJobProgress(ctx, job.ID, 10, "x"), model.ErrInvalidTransition))

	require.NoError(t, st.StartJob(ctx, job.ID))
	assert.True(t, errors.Is(st.StartJob(ctx, job.ID), model.ErrInvalidTransition))

	require.NoError(t, st.FailJob(ctx, job.ID, "insufficient data"))
	assert.True(t, errors.Is(st.CompleteJob(ctx, job.ID, &model.ResearchOutput{}), model.ErrInvalidTransition))
	assert.True(t, errors.Is(st.UpdateJobProgress(ctx, job.ID, 99, "x"), model.ErrInvalidTransition))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Equal(t, "insufficient data", got.Error)
	assert.Less(t, got.Progress, 100)
}

func TestSQLite_TransitionsOnMissingJob(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	assert.True(t, errors.Is(st.StartJob(ctx, "nope"), model.ErrJobNotFound))
	assert.True(t, errors.Is(st.UpdateJobProgress(ctx, "nope", 5, ""), model.ErrJobNotFound))
	assert.True(t, errors.Is(st.FailJob(ctx, "nope", ""), model.ErrJobNotFound))
}

func TestSQLite_FailStaleJobs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	pending := createTestJob(t, st, "4 OAK AVE")
	running := createTestJob(t, st, "5 OAK AVE")
	done := createTestJob(t, st, "6 OAK AVE")
	require.NoError(t, st.StartJob(ctx, running.ID))
	require.NoError(t, st.StartJob(ctx, done.ID))
	require.NoError(t, st.CompleteJob(ctx, done.ID, &model.ResearchOutput{}))

	n, err := st.FailStaleJobs(ctx, InterruptedReason)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{pending.ID, running.ID} {
		got, err := st.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, got.Status)
		assert.Equal(t, InterruptedReason, got.Error)
	}
	got, err := st.GetJob(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
}

func TestSQLite_ListJobs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var ids []string
	for i := range 3 {
		j := createTestJob(t, st, fmt.Sprintf("%d PINE RD", i+1))
		ids = append(ids, j.ID)
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, st.StartJob(ctx, ids[1]))

	all, err := st.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID, "newest first")

	running, err := st.ListJobs(ctx, JobFilter{Status: model.JobStatusInProgress})
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, ids[1], running[0].ID)

	page, err := st.ListJobs(ctx, JobFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)
}

func TestSQLite_LatestJobForSubject(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := createTestJob(t, st, "7 OAK AVE")
	require.NoError(t, st.StartJob(ctx, first.ID))
	require.NoError(t, st.CompleteJob(ctx, first.ID, &model.ResearchOutput{Dossier: "first"}))
	time.Sleep(2 * time.Millisecond)
	second := createTestJob(t, st, "7 OAK AVE")

	latest, err := st.LatestJobForSubject(ctx, first.SubjectID, "")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	done, err := st.LatestJobForSubject(ctx, first.SubjectID, model.JobStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, first.ID, done.ID)
	assert.Equal(t, "first", done.Output.Dossier)

	_, err = st.LatestJobForSubject(ctx, "nobody", model.JobStatusCompleted)
	assert.True(t, errors.Is(err, model.ErrJobNotFound))
}

func TestSQLite_WorkerRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	job := createTestJob(t, st, "8 OAK AVE")
	started := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, st.CreateWorkerRun(ctx, model.WorkerRun{
		JobID:      job.ID,
		Worker:     "parcel",
		Category:   model.CategoryParcel,
		Status:     model.WorkerSucceeded,
		DurationMS: 120,
		Payload:    &model.ParcelFacts{APN: "A-1", Beds: 3, Baths: 2, Sqft: 1800},
		Cached:     true,
		StartedAt:  started,
	}))
	require.NoError(t, st.CreateWorkerRun(ctx, model.WorkerRun{
		JobID:     job.ID,
		Worker:    "flood",
		Category:  model.CategoryRisk,
		Status:    model.WorkerFailed,
		Error:     "worker timed out",
		StartedAt: started,
	}))

	// (job_id, worker) is written once.
	require.Error(t, st.CreateWorkerRun(ctx, model.WorkerRun{
		JobID: job.ID, Worker: "parcel", Category: model.CategoryParcel,
		Status: model.WorkerFailed, StartedAt: started,
	}))

	runs, err := st.ListWorkerRuns(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "flood", runs[0].Worker)
	assert.Equal(t, model.WorkerFailed, runs[0].Status)
	assert.Nil(t, runs[0].Payload)
	assert.Equal(t, "worker timed out", runs[0].Error)

	assert.Equal(t, "parcel", runs[1].Worker)
	assert.True(t, runs[1].Cached)
	assert.Equal(t, int64(120), runs[1].DurationMS)
	facts, ok := runs[1].Payload.(*model.ParcelFacts)
	require.True(t, ok)
	assert.Equal(t, "A-1", facts.APN)
	assert.Equal(t, 1800, facts.Sqft)
}

func TestSQLite_ListPortfolio(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	complete := func(addr, city string, sqft int, arv float64) string {
		sub, err := st.GetOrCreateSubject(ctx, testSubject(addr, city))
		require.NoError(t, err)
		job := &model.Job{SubjectID: sub.ID, Strategy: model.StrategyFlip, RehabTier: model.RehabLight}
		require.NoError(t, st.CreateJob(ctx, job))
		require.NoError(t, st.StartJob(ctx, job.ID))
		out := &model.ResearchOutput{
			Profile:      &model.PropertyProfile{Beds: 3, Baths: 2, Sqft: sqft},
			Underwriting: model.Underwriting{ARV: model.Range{Base: arv}},
		}
		require.NoError(t, st.CompleteJob(ctx, job.ID, out))
		return sub.ID
	}

	self := complete("1 MAIN ST", "AUSTIN", 1800, 400000)
	other := complete("2 MAIN ST", "AUSTIN", 1700, 380000)
	time.Sleep(2 * time.Millisecond)
	complete("2 MAIN ST", "AUSTIN", 1750, 390000) // newer run for the same subject
	complete("3 MAIN ST", "DALLAS", 2000, 500000)
	complete("4 MAIN ST", "AUSTIN", 1600, 0) // no value

	got, err := st.ListPortfolio(ctx, "AUSTIN", "TX", self, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, other, got[0].SubjectID)
	assert.Equal(t, 1750, got[0].Sqft)
	assert.InDelta(t, 390000, got[0].Value, 0.01)
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestNewSQLite_EmptyDSN(t *testing.T) {
	_, err := NewSQLite("")
	require.Error(t, err)
}

func TestNewSQLite_Memory(t *testing.T) {
	st, err := NewSQLite(":memory:")
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	job := createTestJob(t, st, "10 MEMORY LN")
	_, err = st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
}
