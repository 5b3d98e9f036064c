package research

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-research/internal/model"
	"github.com/sells-group/property-research/internal/store"
	"github.com/sells-group/property-research/internal/worker"
)

// fakeWorker implements worker.Worker for testing.
type fakeWorker struct {
	name     string
	category model.Category
	set      worker.Set
	critical bool
	delay    time.Duration
	ignore   bool // ignore context cancellation while sleeping
	fail     bool
	panics   bool
	payload  model.Payload

	calls    *atomic.Int64
	inflight *atomic.Int64
	peak     *atomic.Int64
}

func (f *fakeWorker) Name() string             { return f.name }
func (f *fakeWorker) Category() model.Category { return f.category }
func (f *fakeWorker) Set() worker.Set          { return f.set }
func (f *fakeWorker) Label() string            { return "Running " + f.name }
func (f *fakeWorker) Timeout() time.Duration   { return 0 }
func (f *fakeWorker) Critical() bool           { return f.critical }

func (f *fakeWorker) Run(ctx context.Context, _ worker.Request) (model.Payload, error) {
	if f.calls != nil {
		f.calls.Add(1)
	}
	if f.inflight != nil {
		n := f.inflight.Add(1)
		defer f.inflight.Add(-1)
		for {
			p := f.peak.Load()
			if n <= p || f.peak.CompareAndSwap(p, n) {
				break
			}
		}
	}
	if f.delay > 0 {
		if f.ignore {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if f.panics {
		panic("worker exploded")
	}
	if f.fail {
		return nil, errors.New("provider returned garbage")
	}
	return f.payload, nil
}

// standardWorkers mirrors the default catalog with canned payloads.
func standardWorkers() []*fakeWorker {
	return []*fakeWorker{
		{name: "parcel", category: model.CategoryParcel, set: worker.Standard, critical: true,
			payload: &model.ParcelFacts{APN: "0123", Beds: 3, Baths: 2, Sqft: 1800, YearBuilt: 1978}},
		{name: "tax", category: model.CategoryTax, set: worker.Standard, critical: true,
			payload: &model.TaxRecord{TaxYear: 2025, AssessedValue: 310000, AnnualTax: 6800}},
		{name: "avm", category: model.CategoryValuation, set: worker.Standard, critical: true,
			payload: &model.Valuation{Source: "avm", Primary: true, Estimate: 450000}},
		{name: "avm_secondary", category: model.CategoryValuation, set: worker.Standard,
			payload: &model.Valuation{Source: "avm_secondary", Estimate: 440000}},
		{name: "comps_sales", category: model.CategoryCompsSales, set: worker.Standard,
			payload: &model.CompSet{Type: model.CompKindSales, Comps: []model.CompRecord{
				{Address: "125 MAIN ST", Price: 455000, Beds: 3, Baths: 2, Sqft: 1820},
			}}},
		{name: "comps_rentals", category: model.CategoryCompsRentals, set: worker.Standard,
			payload: &model.CompSet{Type: model.CompKindRentals, Comps: []model.CompRecord{
				{Address: "9 ELM ST", Price: 2300, Beds: 3, Baths: 2, Sqft: 1750},
			}}},
		{name: "market_trend", category: model.CategoryMarket, set: worker.Standard,
			payload: &model.MarketTrend{Direction: model.TrendFlat}},
		{name: "flood", category: model.CategoryRisk, set: worker.Standard,
			payload: &model.FloodRisk{Zone: "X"}},
		{name: "permits", category: model.CategoryRisk, set: worker.Standard,
			payload: &model.PermitHistory{}},
		{name: "liens", category: model.CategoryRisk, set: worker.Standard,
			payload: &model.LienReport{}},
		{name: "demographics", category: model.CategoryNeighborhood, set: worker.Standard,
			payload: &model.Demographics{MedianIncome: 70000, Population: 5000}},
		{name: "schools", category: model.CategoryNeighborhood, set: worker.Standard,
			payload: &model.SchoolReport{Schools: []model.School{{Name: "A", Rating: 7}}, AvgRating: 7}},
		{name: "noise", category: model.CategoryNeighborhood, set: worker.Extended,
			payload: &model.NoiseReport{Score: 70}},
	}
}

func newRegistry(t *testing.T, workers []*fakeWorker) *worker.Registry {
	t.Helper()
	reg := worker.NewRegistry()
	for _, w := range workers {
		require.NoError(t, reg.Register(w))
	}
	return reg
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "research.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestOrchestrator(t *testing.T, st store.Store, workers []*fakeWorker, cfg Config, opts ...Option) *Orchestrator {
	t.Helper()
	o := New(st, newRegistry(t, workers), cfg, opts...)
	t.Cleanup(o.Wait)
	return o
}

func mainStreet(strategy string) Request {
	return Request{Address: "123 Main St", Strategy: strategy, RehabTier: "medium"}
}

// event is one observed job mutation.
type event struct {
	status   model.JobStatus
	progress int
}

// recordingStore records every lifecycle mutation that reaches the store.
type recordingStore struct {
	store.Store
	mu     sync.Mutex
	events map[string][]event
}

func newRecordingStore(inner store.Store) *recordingStore {
	return &recordingStore{Store: inner, events: make(map[string][]event)}
}

func (r *recordingStore) add(jobID string, e event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[jobID] = append(r.events[jobID], e)
}

func (r *recordingStore) snapshot(jobID string) []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events[jobID]...)
}

func (r *recordingStore) CreateJob(ctx context.Context, job *model.Job) error {
	if err := r.Store.CreateJob(ctx, job); err != nil {
		return err
	}
	r.add(job.ID, event{status: model.JobStatusPending})
	return nil
}

func (r *recordingStore) StartJob(ctx context.Context, jobID string) error {
	if err := r.Store.StartJob(ctx, jobID); err != nil {
		return err
	}
	r.add(jobID, event{status: model.JobStatusInProgress})
	return nil
}

func (r *recordingStore) UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error {
	if err := r.Store.UpdateJobProgress(ctx, jobID, progress, step); err != nil {
		return err
	}
	job, err := r.Store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	r.add(jobID, event{status: job.Status, progress: job.Progress})
	return nil
}

func (r *recordingStore) CompleteJob(ctx context.Context, jobID string, out *model.ResearchOutput) error {
	if err := r.Store.CompleteJob(ctx, jobID, out); err != nil {
		return err
	}
	r.add(jobID, event{status: model.JobStatusCompleted, progress: 100})
	return nil
}

func (r *recordingStore) FailJob(ctx context.Context, jobID, reason string) error {
	if err := r.Store.FailJob(ctx, jobID, reason); err != nil {
		return err
	}
	r.add(jobID, event{status: model.JobStatusFailed})
	return nil
}

// countingObserver counts lifecycle events.
type countingObserver struct {
	started  atomic.Int64
	finished atomic.Int64
	runs     atomic.Int64
	cached   atomic.Int64
}

func (c *countingObserver) JobStarted()                                { c.started.Add(1) }
func (c *countingObserver) JobFinished(model.JobStatus, time.Duration) { c.finished.Add(1) }
func (c *countingObserver) WorkerFinished(run model.WorkerRun) {
	c.runs.Add(1)
	if run.Cached {
		c.cached.Add(1)
	}
}

// memCache is an in-process worker.ResultCache.
type memCache struct {
	mu   sync.Mutex
	data map[string]model.Payload
}

func (m *memCache) Get(_ context.Context, w, addr string) (model.Payload, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[w+"|"+addr]
	return p, ok
}

func (m *memCache) Set(_ context.Context, w, addr string, p model.Payload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string]model.Payload)
	}
	m.data[w+"|"+addr] = p
}
