package async

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/buzzsnip/buzzsnip/db"
	"github.com/buzzsnip/buzzsnip/errors"
)

// SQLStore persists jobs in the generation_jobs table.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a job store backed by a migrated database
func NewSQLStore(conn *sql.DB) *SQLStore {
	return &SQLStore{db: conn}
}

const jobColumns = `id, kind, status, progress, params, result, error, error_kind, schedule_id,
	created_at, started_at, completed_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// jobScanArgs holds the nullable and encoded columns while scanning a job row
type jobScanArgs struct {
	params      string
	result      sql.NullString
	errMsg      sql.NullString
	errKind     sql.NullString
	scheduleID  sql.NullString
	createdAt   string
	startedAt   sql.NullString
	completedAt sql.NullString
	updatedAt   string
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var args jobScanArgs

	err := row.Scan(
		&job.ID,
		&job.Kind,
		&job.Status,
		&job.Progress,
		&args.params,
		&args.result,
		&args.errMsg,
		&args.errKind,
		&args.scheduleID,
		&args.createdAt,
		&args.startedAt,
		&args.completedAt,
		&args.updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if job.Params, err = UnmarshalParams(args.params); err != nil {
		return nil, errors.Wrapf(err, "job %s", job.ID)
	}
	if args.result.Valid {
		if job.Result, err = UnmarshalResult(args.result.String); err != nil {
			return nil, errors.Wrapf(err, "job %s", job.ID)
		}
	}
	job.Error = args.errMsg.String
	job.ErrorKind = DispatchErrorKind(args.errKind.String)
	job.ScheduleID = args.scheduleID.String

	if job.CreatedAt, err = db.ParseTime(args.createdAt); err != nil {
		return nil, errors.Wrapf(err, "created_at for job %s", job.ID)
	}
	if job.UpdatedAt, err = db.ParseTime(args.updatedAt); err != nil {
		return nil, errors.Wrapf(err, "updated_at for job %s", job.ID)
	}
	if job.StartedAt, err = db.ParseNullTime(args.startedAt); err != nil {
		return nil, errors.Wrapf(err, "started_at for job %s", job.ID)
	}
	if job.CompletedAt, err = db.ParseNullTime(args.completedAt); err != nil {
		return nil, errors.Wrapf(err, "completed_at for job %s", job.ID)
	}
	return &job, nil
}

// scanJobs scans multiple jobs from query rows
func scanJobs(rows *sql.Rows, context string) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.MarkStore(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.MarkStore(err, fmt.Sprintf("error iterating %s", context))
	}
	return jobs, nil
}

// jobValues returns the column values for an insert, in jobColumns order
func jobValues(job *Job) ([]interface{}, error) {
	params, err := MarshalParams(job.Params)
	if err != nil {
		return nil, err
	}
	result, err := MarshalResult(job.Result)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		job.ID,
		job.Kind,
		job.Status,
		job.Progress,
		params,
		result,
		sql.NullString{String: job.Error, Valid: job.Error != ""},
		nullKind(job.ErrorKind),
		sql.NullString{String: job.ScheduleID, Valid: job.ScheduleID != ""},
		db.FormatTime(job.CreatedAt),
		db.NullTime(job.StartedAt),
		db.NullTime(job.CompletedAt),
		db.FormatTime(job.UpdatedAt),
	}, nil
}

func nullKind(k DispatchErrorKind) sql.NullString {
	return sql.NullString{String: string(k), Valid: k != ""}
}

// Create inserts a new job into the database
func (s *SQLStore) Create(ctx context.Context, job *Job) error {
	values, err := jobValues(job)
	if err != nil {
		return err
	}

	query := `INSERT INTO generation_jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, values...); err != nil {
		err = errors.MarkStore(err, "failed to create job")
		return errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
	}
	return nil
}

// Get retrieves a job by ID
func (s *SQLStore) Get(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE id = ?`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job %s", id)
	}
	if err != nil {
		return nil, errors.MarkStore(err, "failed to get job")
	}
	return job, nil
}

// List returns jobs newest first, optionally filtered by status or schedule
func (s *SQLStore) List(ctx context.Context, opts ListOptions) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE 1=1`
	var args []interface{}

	if opts.Status != nil {
		query += ` AND status = ?`
		args = append(args, *opts.Status)
	}
	if opts.ScheduleID != "" {
		query += ` AND schedule_id = ?`
		args = append(args, opts.ScheduleID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, opts.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.MarkStore(err, "failed to list jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "jobs")
}

// ListActive returns all jobs that are currently queued or processing
func (s *SQLStore) ListActive(ctx context.Context) ([]*Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM generation_jobs
		WHERE status IN ('queued', 'processing')
		ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.MarkStore(err, "failed to list active jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "active jobs")
}

// Update runs fn against the stored job inside an immediate transaction
func (s *SQLStore) Update(ctx context.Context, id string, fn func(*Job) error) (*Job, error) {
	return s.mutate(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE id = ?`, []interface{}{id}, id, fn)
}

// ClaimNext runs fn against the oldest queued job inside an immediate transaction
func (s *SQLStore) ClaimNext(ctx context.Context, fn func(*Job) error) (*Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM generation_jobs
		WHERE status = 'queued'
		ORDER BY created_at ASC, rowid ASC
		LIMIT 1`
	return s.mutate(ctx, query, nil, "", fn)
}

// mutate is the single read-modify-write path. An empty id means a missing
// row is not an error (ClaimNext on an empty queue).
func (s *SQLStore) mutate(ctx context.Context, query string, args []interface{}, id string, fn func(*Job) error) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.MarkStore(err, "failed to begin job update")
	}
	defer tx.Rollback()

	job, err := scanJob(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		if id == "" {
			return nil, nil
		}
		return nil, errors.NewNotFoundError("job %s", id)
	}
	if err != nil {
		return nil, errors.MarkStore(err, "failed to load job for update")
	}

	if err := fn(job); err != nil {
		return nil, err
	}

	result, err := MarshalResult(job.Result)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE generation_jobs
		SET status = ?,
		    progress = ?,
		    result = ?,
		    error = ?,
		    error_kind = ?,
		    started_at = ?,
		    completed_at = ?,
		    updated_at = ?
		WHERE id = ?`,
		job.Status,
		job.Progress,
		result,
		sql.NullString{String: job.Error, Valid: job.Error != ""},
		nullKind(job.ErrorKind),
		db.NullTime(job.StartedAt),
		db.NullTime(job.CompletedAt),
		db.FormatTime(job.UpdatedAt),
		job.ID,
	)
	if err != nil {
		err = errors.MarkStore(err, "failed to update job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		return nil, errors.WithDetail(err, fmt.Sprintf("Status: %s", job.Status))
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.MarkStore(err, "failed to commit job update")
	}
	return job, nil
}

// FindActiveBySchedule finds the newest queued or processing job for a schedule.
// Returns nil if no active job exists for it.
func (s *SQLStore) FindActiveBySchedule(ctx context.Context, scheduleID string) (*Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM generation_jobs
		WHERE schedule_id = ?
		  AND status IN ('queued', 'processing')
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, scheduleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.MarkStore(err, "failed to find active job by schedule")
	}
	return job, nil
}

// CountByStatus counts jobs grouped by status
func (s *SQLStore) CountByStatus(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM generation_jobs GROUP BY status`)
	if err != nil {
		return nil, errors.MarkStore(err, "failed to count jobs")
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.MarkStore(err, "failed to scan job count")
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.MarkStore(err, "error iterating job counts")
	}
	return counts, nil
}

// CleanupOld removes completed/failed jobs last updated before cutoff
func (s *SQLStore) CleanupOld(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		DELETE FROM generation_jobs
		WHERE status IN ('completed', 'failed')
		  AND updated_at < ?`

	result, err := s.db.ExecContext(ctx, query, db.FormatTime(cutoff))
	if err != nil {
		return 0, errors.MarkStore(err, "failed to cleanup old jobs")
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.MarkStore(err, "failed to get rows affected")
	}
	return int(n), nil
}
