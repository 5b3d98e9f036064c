package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/property-research/internal/db"
	"github.com/sells-group/property-research/internal/model"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects a pool and returns a PostgresStore.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. The caller owns its lifecycle.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS subjects (
	id                 TEXT PRIMARY KEY,
	normalized_address TEXT NOT NULL UNIQUE,
	raw_address        TEXT NOT NULL,
	street             TEXT NOT NULL DEFAULT '',
	city               TEXT NOT NULL DEFAULT '',
	state              TEXT NOT NULL DEFAULT '',
	postal_code        TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS jobs (
	id             TEXT PRIMARY KEY,
	subject_id     TEXT NOT NULL REFERENCES subjects(id),
	status         TEXT NOT NULL DEFAULT 'pending',
	progress       INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
	current_step   TEXT NOT NULL DEFAULT '',
	correlation_id TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL DEFAULT '',
	strategy       TEXT NOT NULL,
	rehab_tier     TEXT NOT NULL,
	extended       BOOLEAN NOT NULL DEFAULT false,
	output         JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at     TIMESTAMPTZ,
	completed_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS worker_runs (
	job_id       TEXT NOT NULL REFERENCES jobs(id),
	worker       TEXT NOT NULL,
	category     TEXT NOT NULL,
	status       TEXT NOT NULL,
	duration_ms  BIGINT NOT NULL DEFAULT 0,
	payload_kind TEXT NOT NULL DEFAULT '',
	payload      JSONB,
	error        TEXT NOT NULL DEFAULT '',
	cached       BOOLEAN NOT NULL DEFAULT false,
	started_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (job_id, worker)
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_subject ON jobs(subject_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_subjects_city_state ON subjects(city, state);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- subjects ---

func (s *PostgresStore) GetOrCreateSubject(ctx context.Context, subject model.ResearchSubject) (*model.ResearchSubject, error) {
	if subject.NormalizedAddress == "" {
		return nil, eris.Wrap(model.ErrInvalidAddress, "postgres: subject has no normalized address")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO subjects (id, normalized_address, raw_address, street, city, state, postal_code, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (normalized_address) DO NOTHING`,
		uuid.New().String(), subject.NormalizedAddress, subject.RawAddress, subject.Street,
		subject.City, subject.State, subject.PostalCode, time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert subject")
	}
	return s.GetSubjectByAddress(ctx, subject.NormalizedAddress)
}

func (s *PostgresStore) GetSubjectByAddress(ctx context.Context, normalizedAddress string) (*model.ResearchSubject, error) {
	var sub model.ResearchSubject
	err := s.pool.QueryRow(ctx,
		`SELECT id, normalized_address, raw_address, street, city, state, postal_code, created_at
		 FROM subjects WHERE normalized_address = $1`,
		normalizedAddress,
	).Scan(&sub.ID, &sub.NormalizedAddress, &sub.RawAddress, &sub.Street,
		&sub.City, &sub.State, &sub.PostalCode, &sub.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get subject")
	}
	return &sub, nil
}

// --- jobs ---

const pgJobSelect = `SELECT j.id, j.subject_id, s.normalized_address, s.raw_address, s.street,
	s.city, s.state, s.postal_code, s.created_at, j.status, j.progress, j.current_step,
	j.correlation_id, j.error, j.strategy, j.rehab_tier, j.extended, j.output,
	j.created_at, j.started_at, j.completed_at
	FROM jobs j JOIN subjects s ON s.id = j.subject_id`

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.Status = model.JobStatusPending
	job.Progress = 0
	job.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, subject_id, status, progress, current_step, correlation_id,
		 strategy, rehab_tier, extended, created_at) VALUES ($1, $2, $3, 0, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.SubjectID, string(job.Status), job.CurrentStep, job.CorrelationID,
		string(job.Strategy), string(job.RehabTier), job.Extended, job.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert job %s", job.ID)
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := scanPgJob(s.pool.QueryRow(ctx, pgJobSelect+` WHERE j.id = $1`, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, jobNotFound(jobID)
	}
	return job, err
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := pgJobSelect + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND j.status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.SubjectID != "" {
		query += fmt.Sprintf(` AND j.subject_id = $%d`, argIdx)
		args = append(args, filter.SubjectID)
		argIdx++
	}
	query += ` ORDER BY j.created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanPgJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) LatestJobForSubject(ctx context.Context, subjectID string, status model.JobStatus) (*model.Job, error) {
	query := pgJobSelect + ` WHERE j.subject_id = $1`
	args := []any{subjectID}
	if status != "" {
		query += ` AND j.status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY j.created_at DESC LIMIT 1`

	job, err := scanPgJob(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrJobNotFound, "no %s job for subject %s", status, subjectID)
	}
	return job, err
}

func (s *PostgresStore) StartJob(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, started_at = $2, current_step = 'dispatching workers'
		 WHERE id = $3 AND status = $4`,
		string(model.JobStatusInProgress), time.Now().UTC(), jobID, string(model.JobStatusPending),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: start job %s", jobID)
	}
	return s.checkTransition(ctx, tag, jobID, model.JobStatusInProgress)
}

func (s *PostgresStore) UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error {
	progress = clampProgress(progress)
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET progress = $1, current_step = $2
		 WHERE id = $3 AND status = $4 AND progress <= $1`,
		progress, step, jobID, string(model.JobStatusInProgress),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update progress %s", jobID)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	status, err := s.jobStatus(ctx, jobID)
	if err != nil {
		return err
	}
	if status != model.JobStatusInProgress {
		return invalidTransition(jobID, status, status)
	}
	return nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID string, output *model.ResearchOutput) error {
	outJSON, err := json.Marshal(output)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal output")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, progress = 100, current_step = 'completed', output = $2, completed_at = $3
		 WHERE id = $4 AND status = $5`,
		string(model.JobStatusCompleted), outJSON, time.Now().UTC(), jobID, string(model.JobStatusInProgress),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete job %s", jobID)
	}
	return s.checkTransition(ctx, tag, jobID, model.JobStatusCompleted)
}

func (s *PostgresStore) FailJob(ctx context.Context, jobID string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, error = $2, current_step = 'failed', completed_at = $3
		 WHERE id = $4 AND status = $5`,
		string(model.JobStatusFailed), reason, time.Now().UTC(), jobID, string(model.JobStatusInProgress),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail job %s", jobID)
	}
	return s.checkTransition(ctx, tag, jobID, model.JobStatusFailed)
}

func (s *PostgresStore) FailStaleJobs(ctx context.Context, reason string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, error = $2, current_step = 'failed', completed_at = $3
		 WHERE status IN ($4, $5)`,
		string(model.JobStatusFailed), reason, time.Now().UTC(),
		string(model.JobStatusPending), string(model.JobStatusInProgress),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: fail stale jobs")
	}
	return int(tag.RowsAffected()), nil
}

// --- worker runs ---

func (s *PostgresStore) CreateWorkerRun(ctx context.Context, run model.WorkerRun) error {
	kind, payload, err := encodePayload(run.Payload)
	if err != nil {
		return eris.Wrapf(err, "postgres: worker run %s/%s", run.JobID, run.Worker)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO worker_runs (job_id, worker, category, status, duration_ms, payload_kind, payload, error, cached, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.JobID, run.Worker, string(run.Category), string(run.Status), run.DurationMS,
		kind, payload, run.Error, run.Cached, run.StartedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert worker run %s/%s", run.JobID, run.Worker)
}

func (s *PostgresStore) ListWorkerRuns(ctx context.Context, jobID string) ([]model.WorkerRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT job_id, worker, category, status, duration_ms, payload_kind, payload, error, cached, started_at
		 FROM worker_runs WHERE job_id = $1 ORDER BY worker`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list worker runs")
	}
	defer rows.Close()

	var runs []model.WorkerRun
	for rows.Next() {
		var (
			r       model.WorkerRun
			kind    string
			payload []byte
		)
		if err := rows.Scan(&r.JobID, &r.Worker, &r.Category, &r.Status, &r.DurationMS,
			&kind, &payload, &r.Error, &r.Cached, &r.StartedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan worker run")
		}
		if kind != "" && payload != nil {
			p, err := model.DecodePayload(model.PayloadKind(kind), payload)
			if err != nil {
				return nil, eris.Wrapf(err, "postgres: decode payload for %s", r.Worker)
			}
			r.Payload = p
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list worker runs iterate")
}

// --- portfolio ---

func (s *PostgresStore) ListPortfolio(ctx context.Context, city, state, excludeSubjectID string, limit int) ([]model.PortfolioProperty, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (s.id) s.id, s.normalized_address, j.output
		 FROM jobs j JOIN subjects s ON s.id = j.subject_id
		 WHERE j.status = $1 AND s.city = $2 AND s.state = $3 AND s.id <> $4 AND j.output IS NOT NULL
		 ORDER BY s.id, j.completed_at DESC
		 LIMIT $5`,
		string(model.JobStatusCompleted), city, state, excludeSubjectID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list portfolio")
	}
	defer rows.Close()

	var out []model.PortfolioProperty
	for rows.Next() {
		var (
			id, addr string
			raw      []byte
		)
		if err := rows.Scan(&id, &addr, &raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan portfolio")
		}
		if p, ok := portfolioEntry(id, addr, raw); ok {
			out = append(out, p)
		}
	}
	return out, eris.Wrap(rows.Err(), "postgres: list portfolio iterate")
}

// helpers

func (s *PostgresStore) jobStatus(ctx context.Context, jobID string) (model.JobStatus, error) {
	var status model.JobStatus
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, jobID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", jobNotFound(jobID)
	}
	if err != nil {
		return "", eris.Wrapf(err, "postgres: job status %s", jobID)
	}
	return status, nil
}

func (s *PostgresStore) checkTransition(ctx context.Context, tag pgconn.CommandTag, jobID string, to model.JobStatus) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	from, err := s.jobStatus(ctx, jobID)
	if err != nil {
		return err
	}
	return invalidTransition(jobID, from, to)
}

func scanPgJob(row scannable) (*model.Job, error) {
	var (
		j      model.Job
		output []byte
	)
	err := row.Scan(&j.ID, &j.SubjectID, &j.Subject.NormalizedAddress, &j.Subject.RawAddress,
		&j.Subject.Street, &j.Subject.City, &j.Subject.State, &j.Subject.PostalCode,
		&j.Subject.CreatedAt, &j.Status, &j.Progress, &j.CurrentStep, &j.CorrelationID,
		&j.Error, &j.Strategy, &j.RehabTier, &j.Extended, &output,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan job")
	}
	j.Subject.ID = j.SubjectID
	out, err := decodeOutput(output)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: job %s", j.ID)
	}
	j.Output = out
	return &j, nil
}
