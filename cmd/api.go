package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/property-research/internal/export"
	"github.com/sells-group/property-research/internal/metrics"
	"github.com/sells-group/property-research/internal/model"
	"github.com/sells-group/property-research/internal/monitoring"
	"github.com/sells-group/property-research/internal/research"
	"github.com/sells-group/property-research/internal/store"
	"github.com/sells-group/property-research/internal/worker"
)

// CorrelationHeader carries the caller's correlation id.
const CorrelationHeader = "X-Correlation-ID"

const (
	defaultListLimit = 50
	maxListLimit     = 500
	defaultMaxBody   = 1 << 20

	defaultLookbackHours = 24
)

type ctxKey struct{}

// api serves the research HTTP endpoints.
type api struct {
	orch     *research.Orchestrator
	registry *worker.Registry
	validate *validator.Validate
	maxBody  int64
}

// newAPI creates the handlers. Validation messages use JSON field names.
func newAPI(orch *research.Orchestrator, registry *worker.Registry, maxBody int64) *api {
	v := research.NewValidator()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return &api{orch: orch, registry: registry, validate: v, maxBody: maxBody}
}

// syncRequest is the body of POST /v1/research.
type syncRequest struct {
	research.Request
	TimeoutSecs int `json:"timeout_secs" validate:"gte=0,lte=600"`
}

// jobStatus is the poll response for one job.
type jobStatus struct {
	JobID       string          `json:"job_id"`
	Status      model.JobStatus `json:"status"`
	Progress    int             `json:"progress"`
	CurrentStep string          `json:"current_step"`
	Error       string          `json:"error,omitempty"`
}

func statusOf(job *model.Job) jobStatus {
	return jobStatus{
		JobID:       job.ID,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		Error:       job.Error,
	}
}

// routerOptions configure the router's ambient middleware.
type routerOptions struct {
	CORSOrigins []string
	Gatherer    prometheus.Gatherer
	Metrics     *metrics.Middleware
	Monitor     *monitoring.Collector
}

// newRouter builds the chi router for the API.
func newRouter(a *api, opts routerOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationID)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Handler)
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", CorrelationHeader},
		ExposedHeaders: []string{CorrelationHeader},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/workers", a.listWorkers)
		if opts.Monitor != nil {
			r.Get("/stats", statsHandler(opts.Monitor))
		}
		r.Route("/research", func(r chi.Router) {
			r.Post("/", a.research)
			r.Get("/dossier", a.dossierByAddress)
			r.Route("/jobs", func(r chi.Router) {
				r.Post("/", a.submit)
				r.Get("/", a.listJobs)
				r.Get("/{id}", a.getJob)
				r.Get("/{id}/output", a.getOutput)
				r.Get("/{id}/dossier", a.getDossier)
				r.Get("/{id}/runs", a.getRuns)
				r.Get("/{id}/export", a.exportJob)
			})
		})
	})
	return r
}

// correlationID propagates or assigns the request's correlation id.
func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(CorrelationHeader))
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}
		w.Header().Set(CorrelationHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func correlationFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// decode reads and validates a JSON body into dst.
func (a *api) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, a.maxBody)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func (a *api) research(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if !a.decode(w, r, &req) {
		return
	}
	req.CorrelationID = correlationFrom(r.Context())

	res, err := a.orch.RunAndWait(r.Context(), req.Request, time.Duration(req.TimeoutSecs)*time.Second)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res.Output)
	case res != nil && errors.Is(err, model.ErrStillRunning):
		writeJSON(w, http.StatusAccepted, statusOf(res.Job))
	case res != nil && errors.Is(err, model.ErrInsufficientData):
		writeJSON(w, http.StatusUnprocessableEntity, statusOf(res.Job))
	default:
		writeError(w, r, err)
	}
}

func (a *api) submit(w http.ResponseWriter, r *http.Request) {
	var req research.Request
	if !a.decode(w, r, &req) {
		return
	}
	req.CorrelationID = correlationFrom(r.Context())

	id, err := a.orch.Submit(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id, "status": string(model.JobStatusPending)})
}

func (a *api) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.JobFilter{Limit: defaultListLimit, SubjectID: q.Get("subject_id")}

	if s := q.Get("status"); s != "" {
		st, err := model.ParseJobStatus(s)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = st
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeProblem(w, http.StatusBadRequest, fmt.Sprintf("%s must be a non-negative integer", name))
			return
		}
		*dst = n
	}
	if filter.Limit == 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	jobs, err := a.orch.ListJobs(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]jobStatus, 0, len(jobs))
	for i := range jobs {
		out = append(out, statusOf(&jobs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out, "limit": filter.Limit, "offset": filter.Offset})
}

func (a *api) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.orch.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusOf(job))
}

func (a *api) getOutput(w http.ResponseWriter, r *http.Request) {
	out, err := a.orch.GetOutput(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) getDossier(w http.ResponseWriter, r *http.Request) {
	dossier, err := a.orch.GetDossier(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeText(w, dossier)
}

func (a *api) getRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := a.orch.WorkerRuns(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"worker_runs": runs})
}

func (a *api) exportJob(w http.ResponseWriter, r *http.Request) {
	out, err := a.orch.GetOutput(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="research-%s.xlsx"`, truncateID(out.JobID)))
	if err := export.Write(w, out); err != nil {
		zap.L().Error("api: export workbook", zap.String("job_id", out.JobID), zap.Error(err))
	}
}

func (a *api) dossierByAddress(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := research.Request{
		Address: q.Get("address"),
		City:    q.Get("city"),
		State:   q.Get("state"),
		Zip:     q.Get("zip"),
	}
	if req.Address == "" {
		writeProblem(w, http.StatusBadRequest, "address is required")
		return
	}
	dossier, err := a.orch.GetDossierByAddress(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeText(w, dossier)
}

func (a *api) listWorkers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"workers": describeWorkers(a.registry)})
}

// statsHandler serves a job health snapshot. lookback_hours defaults to 24;
// 0 covers all history.
func statsHandler(c *monitoring.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lookback := defaultLookbackHours
		if raw := r.URL.Query().Get("lookback_hours"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeProblem(w, http.StatusBadRequest, "lookback_hours must be a non-negative integer")
				return
			}
			lookback = n
		}
		snap, err := c.Collect(r.Context(), lookback)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// httpStatus maps domain errors onto response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidAddress),
		errors.Is(err, model.ErrInvalidStrategy),
		errors.Is(err, model.ErrInvalidRehabTier):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrJobNotCompleted):
		return http.StatusConflict
	case errors.Is(err, model.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	if code >= http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("path", r.URL.Path),
			zap.String("correlation_id", correlationFrom(r.Context())),
			zap.Error(err),
		)
	}
	writeProblem(w, code, err.Error())
}

func writeProblem(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s))
}

// validationMessage flattens validator errors into one line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		case "strategy":
			msgs = append(msgs, field+" must be one of flip, rental, wholesale")
		case "rehab_tier":
			msgs = append(msgs, field+" must be one of light, medium, heavy")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}
