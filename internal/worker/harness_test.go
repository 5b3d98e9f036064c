package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-research/internal/model"
)

// stubWorker implements Worker for testing.
type stubWorker struct {
	name     string
	category model.Category
	set      Set
	timeout  time.Duration
	critical bool
	run      func(ctx context.Context, req Request) (model.Payload, error)
}

func (s *stubWorker) Name() string             { return s.name }
func (s *stubWorker) Category() model.Category { return s.category }
func (s *stubWorker) Set() Set                 { return s.set }
func (s *stubWorker) Label() string            { return "Running " + s.name }
func (s *stubWorker) Timeout() time.Duration   { return s.timeout }
func (s *stubWorker) Critical() bool           { return s.critical }
func (s *stubWorker) Run(ctx context.Context, req Request) (model.Payload, error) {
	return s.run(ctx, req)
}

type memCache struct {
	mu   sync.Mutex
	data map[string]model.Payload
	sets int
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string]model.Payload)}
}

func (c *memCache) Get(_ context.Context, worker, address string) (model.Payload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.data[worker+"|"+address]
	return p, ok
}

func (c *memCache) Set(_ context.Context, worker, address string, p model.Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[worker+"|"+address] = p
	c.sets++
}

func testRequest() Request {
	return Request{
		JobID: "job-1",
		Subject: model.ResearchSubject{
			ID:                "subj-1",
			NormalizedAddress: "123 MAIN ST, AUSTIN, TX 78701",
			Street:            "123 MAIN ST",
			City:              "AUSTIN",
			State:             "TX",
			PostalCode:        "78701",
		},
		Strategy:  model.StrategyFlip,
		RehabTier: model.RehabMedium,
	}
}

func TestExecute_Success(t *testing.T) {
	w := &stubWorker{name: "flood", category: model.CategoryRisk, run: func(context.Context, Request) (model.Payload, error) {
		return &model.FloodRisk{Zone: "X"}, nil
	}}
	cache := newMemCache()

	run := Execute(context.Background(), w, testRequest(), time.Second, cache)

	assert.Equal(t, model.WorkerSucceeded, run.Status)
	assert.Equal(t, "job-1", run.JobID)
	assert.Equal(t, "flood", run.Worker)
	assert.Equal(t, model.CategoryRisk, run.Category)
	assert.False(t, run.Cached)
	assert.Empty(t, run.Error)
	require.IsType(t, &model.FloodRisk{}, run.Payload)
	assert.Equal(t, 1, cache.sets)
	assert.False(t, run.StartedAt.IsZero())
}

func TestExecute_CacheHit(t *testing.T) {
	cache := newMemCache()
	req := testRequest()
	cache.data["flood|"+req.Subject.NormalizedAddress] = &model.FloodRisk{Zone: "AE"}

	called := false
	w := &stubWorker{name: "flood", category: model.CategoryRisk, run: func(context.Context, Request) (model.Payload, error) {
		called = true
		return nil, nil
	}}

	run := Execute(context.Background(), w, req, time.Second, cache)

	assert.False(t, called)
	assert.True(t, run.Cached)
	assert.Equal(t, model.WorkerSucceeded, run.Status)
	assert.Equal(t, "AE", run.Payload.(*model.FloodRisk).Zone)
}

func TestExecute_Error(t *testing.T) {
	w := &stubWorker{name: "tax", run: func(context.Context, Request) (model.Payload, error) {
		return nil, errors.New("county offline")
	}}
	cache := newMemCache()

	run := Execute(context.Background(), w, testRequest(), time.Second, cache)

	assert.Equal(t, model.WorkerFailed, run.Status)
	assert.Contains(t, run.Error, "county offline")
	assert.Nil(t, run.Payload)
	assert.Zero(t, cache.sets)
	assert.False(t, IsTimeout(run))
}

func TestExecute_NoDataSkipped(t *testing.T) {
	w := &stubWorker{name: "liens", run: func(context.Context, Request) (model.Payload, error) {
		return nil, ErrNoData
	}}

	run := Execute(context.Background(), w, testRequest(), time.Second, nil)

	assert.Equal(t, model.WorkerSkipped, run.Status)
	assert.Nil(t, run.Payload)
}

func TestExecute_NilPayloadSkipped(t *testing.T) {
	w := &stubWorker{name: "liens", run: func(context.Context, Request) (model.Payload, error) {
		return nil, nil
	}}

	run := Execute(context.Background(), w, testRequest(), time.Second, nil)

	assert.Equal(t, model.WorkerSkipped, run.Status)
}

func TestExecute_TimeoutIgnoringContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	w := &stubWorker{name: "slow", run: func(context.Context, Request) (model.Payload, error) {
		<-release
		return &model.FloodRisk{}, nil
	}}

	start := time.Now()
	run := Execute(context.Background(), w, testRequest(), 30*time.Millisecond, nil)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, model.WorkerFailed, run.Status)
	assert.True(t, IsTimeout(run))
	assert.Contains(t, run.Error, "worker timed out")
}

func TestExecute_WorkerTimeoutFallback(t *testing.T) {
	w := &stubWorker{name: "slow", timeout: 20 * time.Millisecond, run: func(ctx context.Context, _ Request) (model.Payload, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	run := Execute(context.Background(), w, testRequest(), 0, nil)

	assert.True(t, IsTimeout(run))
	assert.Contains(t, run.Error, "20ms")
}

func TestExecute_Panic(t *testing.T) {
	w := &stubWorker{name: "boom", run: func(context.Context, Request) (model.Payload, error) {
		panic("nil map write")
	}}

	run := Execute(context.Background(), w, testRequest(), time.Second, nil)

	assert.Equal(t, model.WorkerFailed, run.Status)
	assert.Contains(t, run.Error, "panic: nil map write")
}

func TestExecute_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := &stubWorker{name: "parcel", run: func(ctx context.Context, _ Request) (model.Payload, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	run := Execute(ctx, w, testRequest(), time.Second, nil)

	assert.Equal(t, model.WorkerFailed, run.Status)
	assert.False(t, IsTimeout(run))
}

func TestSet_String(t *testing.T) {
	assert.Equal(t, "standard", Standard.String())
	assert.Equal(t, "extended", Extended.String())
	assert.Equal(t, "unknown", Set(0).String())
}

func TestParseSet(t *testing.T) {
	s, err := ParseSet(" Extended ")
	require.NoError(t, err)
	assert.Equal(t, Extended, s)

	_, err = ParseSet("premium")
	require.Error(t, err)
}
