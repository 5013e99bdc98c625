package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const jobColumns = "id, type, page_title, lang, status, priority, retries, last_error, run_after, created_at, updated_at"

// Enqueue inserts a queued job. The partial unique index drops the insert
// when an equivalent job is already queued, in which case ErrDuplicateQueued
// is returned.
func (s *Store) Enqueue(ctx context.Context, jobType JobType, pageTitle, lang string, priority int) (int64, error) {
	now := timestamp(time.Now())
	result, err := s.db.ExecContext(ctx, `
        INSERT INTO jobs (type, page_title, lang, status, priority, created_at, updated_at)
        VALUES (?, ?, ?, 'queued', ?, ?, ?)
        ON CONFLICT (type, page_title, lang) WHERE status = 'queued' DO NOTHING`,
		string(jobType), pageTitle, lang, priority, now, now)
	if err != nil {
		return 0, fmt.Errorf("enqueue job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("enqueue job: rows affected: %w", err)
	}
	if affected == 0 {
		return 0, ErrDuplicateQueued
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue job: last insert id: %w", err)
	}
	return id, nil
}

// Claim atomically moves the next eligible queued job to running and returns
// it. Eligibility skips jobs whose run_after backoff has not elapsed. Returns
// nil when the queue is empty.
func (s *Store) Claim(ctx context.Context, now time.Time) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
        UPDATE jobs SET status = 'running', updated_at = ?
        WHERE id = (
            SELECT id FROM jobs
            WHERE status = 'queued' AND (run_after IS NULL OR run_after <= ?)
            ORDER BY priority DESC, id ASC
            LIMIT 1
        )
        RETURNING `+jobColumns,
		timestamp(now), timestamp(now))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// MarkDone finalizes a job successfully.
func (s *Store) MarkDone(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'done', last_error = NULL, updated_at = ? WHERE id = ?`,
		timestamp(time.Now()), id); err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}
	return nil
}

// MarkError finalizes a job as terminally failed.
func (s *Store) MarkError(ctx context.Context, id int64, message string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'error', last_error = ?, updated_at = ? WHERE id = ?`,
		message, timestamp(time.Now()), id); err != nil {
		return fmt.Errorf("mark job error: %w", err)
	}
	return nil
}

// RequeueForRetry returns a running job to the queue with an incremented
// retry count and a run_after backoff deadline. When an equivalent job was
// queued in the meantime the unique index rejects the requeue; the job is
// then marked done as superseded and ErrDuplicateQueued is returned.
func (s *Store) RequeueForRetry(ctx context.Context, id int64, message string, runAfter time.Time) error {
	_, err := s.db.ExecContext(ctx, `
        UPDATE jobs SET status = 'queued', retries = retries + 1,
            last_error = ?, run_after = ?, updated_at = ?
        WHERE id = ?`,
		message, timestamp(runAfter), timestamp(time.Now()), id)
	if err != nil {
		if isUniqueViolation(err) {
			if doneErr := s.MarkDone(ctx, id); doneErr != nil {
				return doneErr
			}
			return ErrDuplicateQueued
		}
		return fmt.Errorf("requeue job: %w", err)
	}
	return nil
}

// ResetRunning returns jobs stuck in running back to queued. Used at daemon
// startup to recover from a crash mid-job; the dedup index may reject some,
// those are marked done instead.
func (s *Store) ResetRunning(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM jobs WHERE status = 'running' ORDER BY id`)
	if err != nil {
		return 0, fmt.Errorf("list running jobs: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan running job id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate running jobs: %w", err)
	}

	reset := 0
	now := timestamp(time.Now())
	for _, id := range ids {
		_, err := s.db.ExecContext(ctx,
			`UPDATE jobs SET status = 'queued', run_after = NULL, updated_at = ? WHERE id = ?`,
			now, id)
		if err != nil {
			if isUniqueViolation(err) {
				if doneErr := s.MarkDone(ctx, id); doneErr != nil {
					return reset, doneErr
				}
				continue
			}
			return reset, fmt.Errorf("reset running job %d: %w", id, err)
		}
		reset++
	}
	return reset, nil
}

// RetryErrored requeues terminally errored jobs one by one, optionally
// scoped to a page title. Retry counts restart from zero. Jobs whose
// requeue the dedup index rejects stay errored; the rest still requeue.
func (s *Store) RetryErrored(ctx context.Context, pageTitle string) (int, error) {
	query := `SELECT id FROM jobs WHERE status = 'error'`
	var args []any
	if pageTitle != "" {
		query += ` AND page_title = ?`
		args = append(args, pageTitle)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("list errored jobs: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan errored job id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate errored jobs: %w", err)
	}

	retried := 0
	now := timestamp(time.Now())
	for _, id := range ids {
		_, err := s.db.ExecContext(ctx,
			`UPDATE jobs SET status = 'queued', retries = 0, run_after = NULL, updated_at = ? WHERE id = ?`,
			now, id)
		if err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return retried, fmt.Errorf("retry errored job %d: %w", id, err)
		}
		retried++
	}
	return retried, nil
}

// ClearQueued removes all queued jobs and returns how many were deleted.
func (s *Store) ClearQueued(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE status = 'queued'`)
	if err != nil {
		return 0, fmt.Errorf("clear queued jobs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear queued jobs: rows affected: %w", err)
	}
	return int(affected), nil
}

// DeleteQueuedNotInLangs drops queued translate jobs targeting languages no
// longer configured.
func (s *Store) DeleteQueuedNotInLangs(ctx context.Context, langs []string) (int, error) {
	if len(langs) == 0 {
		return s.ClearQueued(ctx)
	}
	args := make([]any, 0, len(langs))
	for _, lang := range langs {
		args = append(args, lang)
	}
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE status = 'queued' AND type = ? AND lang NOT IN (`+makePlaceholders(len(langs))+`)`,
		append([]any{string(JobTranslatePage)}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("delete stale queued jobs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete stale queued jobs: rows affected: %w", err)
	}
	return int(affected), nil
}

// Counts returns the queue totals by status.
func (s *Store) Counts(ctx context.Context) (QueueCounts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return QueueCounts{}, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	var counts QueueCounts
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return QueueCounts{}, fmt.Errorf("scan job count: %w", err)
		}
		switch JobStatus(status) {
		case JobQueued:
			counts.Queued = count
		case JobRunning:
			counts.Running = count
		case JobDone:
			counts.Done = count
		case JobErrored:
			counts.Errored = count
		}
	}
	if err := rows.Err(); err != nil {
		return QueueCounts{}, fmt.Errorf("iterate job counts: %w", err)
	}
	return counts, nil
}

// ListJobs returns jobs, newest first, optionally filtered by status.
func (s *Store) ListJobs(ctx context.Context, status JobStatus, limit int) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// GetJob loads one job by id.
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var jobType, status string
	var lastError sql.NullString
	var runAfter sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&job.ID, &jobType, &job.PageTitle, &job.Lang, &status,
		&job.Priority, &job.Retries, &lastError, &runAfter, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	job.Type = JobType(jobType)
	job.Status = JobStatus(status)
	if lastError.Valid {
		job.LastError = &lastError.String
	}
	if runAfter.Valid {
		if t, err := parseTimeString(runAfter.String); err == nil {
			job.RunAfter = &t
		}
	}
	if t, err := parseTimeString(createdAt); err == nil {
		job.CreatedAt = t
	}
	if t, err := parseTimeString(updatedAt); err == nil {
		job.UpdatedAt = t
	}
	return &job, nil
}
