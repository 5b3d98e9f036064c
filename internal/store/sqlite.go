package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/property-research/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}

// NewSQLite opens a SQLite database at the given path. WAL mode and a busy
// timeout are set on every pooled connection through the DSN.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, eris.New("sqlite: empty dsn")
	}
	memory := dsn == ":memory:"
	if !memory && !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, p := range sqlitePragmas {
		dsn += sep + "_pragma=" + p
		sep = "&"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS subjects (
	id                 TEXT PRIMARY KEY,
	normalized_address TEXT NOT NULL UNIQUE,
	raw_address        TEXT NOT NULL,
	street             TEXT NOT NULL DEFAULT '',
	city               TEXT NOT NULL DEFAULT '',
	state              TEXT NOT NULL DEFAULT '',
	postal_code        TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id             TEXT PRIMARY KEY,
	subject_id     TEXT NOT NULL REFERENCES subjects(id),
	status         TEXT NOT NULL DEFAULT 'pending',
	progress       INTEGER NOT NULL DEFAULT 0,
	current_step   TEXT NOT NULL DEFAULT '',
	correlation_id TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL DEFAULT '',
	strategy       TEXT NOT NULL,
	rehab_tier     TEXT NOT NULL,
	extended       INTEGER NOT NULL DEFAULT 0,
	output         TEXT,
	created_at     DATETIME NOT NULL,
	started_at     DATETIME,
	completed_at   DATETIME
);

CREATE TABLE IF NOT EXISTS worker_runs (
	job_id       TEXT NOT NULL REFERENCES jobs(id),
	worker       TEXT NOT NULL,
	category     TEXT NOT NULL,
	status       TEXT NOT NULL,
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	payload_kind TEXT NOT NULL DEFAULT '',
	payload      TEXT,
	error        TEXT NOT NULL DEFAULT '',
	cached       INTEGER NOT NULL DEFAULT 0,
	started_at   DATETIME NOT NULL,
	PRIMARY KEY (job_id, worker)
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_subject ON jobs(subject_id, created_at);
CREATE INDEX IF NOT EXISTS idx_subjects_city_state ON subjects(city, state);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- subjects ---

const sqliteSubjectCols = `id, normalized_address, raw_address, street, city, state, postal_code, created_at`

func (s *SQLiteStore) GetOrCreateSubject(ctx context.Context, subject model.ResearchSubject) (*model.ResearchSubject, error) {
	if subject.NormalizedAddress == "" {
		return nil, eris.Wrap(model.ErrInvalidAddress, "sqlite: subject has no normalized address")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subjects (`+sqliteSubjectCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (normalized_address) DO NOTHING`,
		uuid.New().String(), subject.NormalizedAddress, subject.RawAddress, subject.Street,
		subject.City, subject.State, subject.PostalCode, time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert subject")
	}
	return s.GetSubjectByAddress(ctx, subject.NormalizedAddress)
}

func (s *SQLiteStore) GetSubjectByAddress(ctx context.Context, normalizedAddress string) (*model.ResearchSubject, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteSubjectCols+` FROM subjects WHERE normalized_address = ?`,
		normalizedAddress,
	)
	var sub model.ResearchSubject
	err := row.Scan(&sub.ID, &sub.NormalizedAddress, &sub.RawAddress, &sub.Street,
		&sub.City, &sub.State, &sub.PostalCode, &sub.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get subject")
	}
	return &sub, nil
}

// --- jobs ---

const sqliteJobSelect = `SELECT j.id, j.subject_id, s.normalized_address, s.raw_address, s.street,
	s.city, s.state, s.postal_code, s.created_at, j.status, j.progress, j.current_step,
	j.correlation_id, j.error, j.strategy, j.rehab_tier, j.extended, j.output,
	j.created_at, j.started_at, j.completed_at
	FROM jobs j JOIN subjects s ON s.id = j.subject_id`

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.Status = model.JobStatusPending
	job.Progress = 0
	job.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, subject_id, status, progress, current_step, correlation_id,
		 strategy, rehab_tier, extended, created_at) VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.SubjectID, string(job.Status), job.CurrentStep, job.CorrelationID,
		string(job.Strategy), string(job.RehabTier), job.Extended, job.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert job %s", job.ID)
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, sqliteJobSelect+` WHERE j.id = ?`, jobID)
	job, err := scanSQLiteJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobNotFound(jobID)
	}
	return job, err
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := sqliteJobSelect + ` WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND j.status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.SubjectID != "" {
		query += ` AND j.subject_id = ?`
		args = append(args, filter.SubjectID)
	}
	query += ` ORDER BY j.created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close() //nolint:errcheck

	var jobs []model.Job
	for rows.Next() {
		j, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) LatestJobForSubject(ctx context.Context, subjectID string, status model.JobStatus) (*model.Job, error) {
	query := sqliteJobSelect + ` WHERE j.subject_id = ?`
	args := []any{subjectID}
	if status != "" {
		query += ` AND j.status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY j.created_at DESC LIMIT 1`

	job, err := scanSQLiteJob(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrJobNotFound, "no %s job for subject %s", status, subjectID)
	}
	return job, err
}

func (s *SQLiteStore) StartJob(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, started_at = ?, current_step = 'dispatching workers'
		 WHERE id = ? AND status = ?`,
		string(model.JobStatusInProgress), time.Now().UTC(), jobID, string(model.JobStatusPending),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: start job %s", jobID)
	}
	return s.checkTransition(ctx, res, jobID, model.JobStatusInProgress)
}

func (s *SQLiteStore) UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error {
	progress = clampProgress(progress)
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET progress = ?, current_step = ?
		 WHERE id = ? AND status = ? AND progress <= ?`,
		progress, step, jobID, string(model.JobStatusInProgress), progress,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update progress %s", jobID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}
	status, err := s.jobStatus(ctx, jobID)
	if err != nil {
		return err
	}
	if status != model.JobStatusInProgress {
		return invalidTransition(jobID, status, status)
	}
	// A lower progress value than the stored one is ignored.
	return nil
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, jobID string, output *model.ResearchOutput) error {
	outJSON, err := json.Marshal(output)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal output")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, progress = 100, current_step = 'completed', output = ?, completed_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.JobStatusCompleted), string(outJSON), time.Now().UTC(), jobID, string(model.JobStatusInProgress),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete job %s", jobID)
	}
	return s.checkTransition(ctx, res, jobID, model.JobStatusCompleted)
}

func (s *SQLiteStore) FailJob(ctx context.Context, jobID string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, current_step = 'failed', completed_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.JobStatusFailed), reason, time.Now().UTC(), jobID, string(model.JobStatusInProgress),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail job %s", jobID)
	}
	return s.checkTransition(ctx, res, jobID, model.JobStatusFailed)
}

func (s *SQLiteStore) FailStaleJobs(ctx context.Context, reason string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, current_step = 'failed', completed_at = ?
		 WHERE status IN (?, ?)`,
		string(model.JobStatusFailed), reason, time.Now().UTC(),
		string(model.JobStatusPending), string(model.JobStatusInProgress),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: fail stale jobs")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// --- worker runs ---

func (s *SQLiteStore) CreateWorkerRun(ctx context.Context, run model.WorkerRun) error {
	kind, payload, err := encodePayload(run.Payload)
	if err != nil {
		return eris.Wrapf(err, "sqlite: worker run %s/%s", run.JobID, run.Worker)
	}
	var payloadCol any
	if payload != nil {
		payloadCol = string(payload)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO worker_runs (job_id, worker, category, status, duration_ms, payload_kind, payload, error, cached, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.JobID, run.Worker, string(run.Category), string(run.Status), run.DurationMS,
		kind, payloadCol, run.Error, run.Cached, run.StartedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert worker run %s/%s", run.JobID, run.Worker)
}

func (s *SQLiteStore) ListWorkerRuns(ctx context.Context, jobID string) ([]model.WorkerRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, worker, category, status, duration_ms, payload_kind, payload, error, cached, started_at
		 FROM worker_runs WHERE job_id = ? ORDER BY worker`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list worker runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.WorkerRun
	for rows.Next() {
		var (
			r       model.WorkerRun
			kind    string
			payload sql.NullString
		)
		if err := rows.Scan(&r.JobID, &r.Worker, &r.Category, &r.Status, &r.DurationMS,
			&kind, &payload, &r.Error, &r.Cached, &r.StartedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan worker run")
		}
		if kind != "" && payload.Valid {
			p, err := model.DecodePayload(model.PayloadKind(kind), []byte(payload.String))
			if err != nil {
				return nil, eris.Wrapf(err, "sqlite: decode payload for %s", r.Worker)
			}
			r.Payload = p
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list worker runs iterate")
}

// --- portfolio ---

func (s *SQLiteStore) ListPortfolio(ctx context.Context, city, state, excludeSubjectID string, limit int) ([]model.PortfolioProperty, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.normalized_address, j.output
		 FROM jobs j JOIN subjects s ON s.id = j.subject_id
		 WHERE j.status = ? AND s.city = ? AND s.state = ? AND s.id <> ? AND j.output IS NOT NULL
		   AND j.completed_at = (SELECT MAX(j2.completed_at) FROM jobs j2
		                         WHERE j2.subject_id = j.subject_id AND j2.status = j.status)
		 ORDER BY j.completed_at DESC LIMIT ?`,
		string(model.JobStatusCompleted), city, state, excludeSubjectID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list portfolio")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PortfolioProperty
	for rows.Next() {
		var id, addr, raw string
		if err := rows.Scan(&id, &addr, &raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan portfolio")
		}
		if p, ok := portfolioEntry(id, addr, []byte(raw)); ok {
			out = append(out, p)
		}
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list portfolio iterate")
}

// helpers

func (s *SQLiteStore) jobStatus(ctx context.Context, jobID string) (model.JobStatus, error) {
	var status model.JobStatus
	err := s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, jobID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", jobNotFound(jobID)
	}
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: job status %s", jobID)
	}
	return status, nil
}

// checkTransition turns a zero-row guarded update into ErrJobNotFound or
// ErrInvalidTransition.
func (s *SQLiteStore) checkTransition(ctx context.Context, res sql.Result, jobID string, to model.JobStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}
	from, err := s.jobStatus(ctx, jobID)
	if err != nil {
		return err
	}
	return invalidTransition(jobID, from, to)
}

func scanSQLiteJob(row scannable) (*model.Job, error) {
	var (
		j         model.Job
		output    sql.NullString
		started   sql.NullTime
		completed sql.NullTime
	)
	err := row.Scan(&j.ID, &j.SubjectID, &j.Subject.NormalizedAddress, &j.Subject.RawAddress,
		&j.Subject.Street, &j.Subject.City, &j.Subject.State, &j.Subject.PostalCode,
		&j.Subject.CreatedAt, &j.Status, &j.Progress, &j.CurrentStep, &j.CorrelationID,
		&j.Error, &j.Strategy, &j.RehabTier, &j.Extended, &output,
		&j.CreatedAt, &started, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan job")
	}
	j.Subject.ID = j.SubjectID
	if started.Valid {
		t := started.Time
		j.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		j.CompletedAt = &t
	}
	if output.Valid {
		out, err := decodeOutput([]byte(output.String))
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: job %s", j.ID)
		}
		j.Output = out
	}
	return &j, nil
}
