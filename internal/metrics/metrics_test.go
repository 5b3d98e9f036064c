package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-research/internal/model"
)

func TestMetrics_Jobs(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.JobStarted()
	m.JobStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobsInFlight))

	m.JobFinished(model.JobStatusCompleted, 3*time.Second)
	m.JobFinished(model.JobStatusFailed, time.Second)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.jobsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.jobDuration))
}

func TestMetrics_Workers(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.WorkerFinished(model.WorkerRun{Worker: "parcel", Status: model.WorkerSucceeded, DurationMS: 120})
	m.WorkerFinished(model.WorkerRun{Worker: "parcel", Status: model.WorkerSucceeded, Cached: true})
	m.WorkerFinished(model.WorkerRun{Worker: "tax", Status: model.WorkerFailed, DurationMS: 20000})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.workerRuns.WithLabelValues("parcel", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workerRuns.WithLabelValues("tax", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHits))
	assert.Equal(t, 2, testutil.CollectAndCount(m.workerDuration))
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	mw := NewMiddleware(reg)

	r := chi.NewRouter()
	r.Use(mw.Handler)
	r.Get("/v1/research/jobs/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/research/jobs/abc", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(mw.requests.WithLabelValues("404", "GET", "/v1/research/jobs/{id}")))
}
