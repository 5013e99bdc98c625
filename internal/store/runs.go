package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// StartRun opens a run record and returns it.
func (s *Store) StartRun(ctx context.Context, mode string, targetLangs []string) (*Run, error) {
	run := Run{
		UUID:        uuid.NewString(),
		Mode:        mode,
		TargetLangs: strings.Join(targetLangs, ","),
		Status:      RunRunning,
		StartedAt:   time.Now().UTC(),
	}
	result, err := s.db.ExecContext(ctx, `
        INSERT INTO runs (uuid, mode, target_langs, status, started_at)
        VALUES (?, ?, ?, ?, ?)`,
		run.UUID, run.Mode, run.TargetLangs, string(run.Status), timestamp(run.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("start run: last insert id: %w", err)
	}
	return &run, nil
}

// FinishRun closes a run with its final status.
func (s *Store) FinishRun(ctx context.Context, id int64, status RunStatus) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		string(status), timestamp(time.Now()), id); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// AddRunItem logs one outcome inside a run.
func (s *Store) AddRunItem(ctx context.Context, item RunItem) error {
	if _, err := s.db.ExecContext(ctx, `
        INSERT INTO run_items (run_id, kind, page_title, lang, status, message, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.RunID, item.Kind,
		nullablePtr(item.PageTitle), nullablePtr(item.Lang),
		item.Status, nullablePtr(item.Message), timestamp(time.Now())); err != nil {
		return fmt.Errorf("add run item: %w", err)
	}
	return nil
}

// LastRun returns the most recent run, or ErrNotFound when none exist.
func (s *Store) LastRun(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, uuid, mode, target_langs, status, started_at, finished_at
        FROM runs ORDER BY id DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("last run: %w", err)
	}
	return run, nil
}

// RunItemFilter narrows a run item query. Zero values mean no filtering on
// that dimension.
type RunItemFilter struct {
	Kind   string
	Lang   string
	Status string
	Limit  int
}

// RunItems returns the items of a run matching the filter, oldest first.
func (s *Store) RunItems(ctx context.Context, runID int64, filter RunItemFilter) ([]RunItem, error) {
	builder := sq.Select("id", "run_id", "kind", "page_title", "lang", "status", "message", "created_at").
		From("run_items").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("id ASC")
	if filter.Kind != "" {
		builder = builder.Where(sq.Eq{"kind": filter.Kind})
	}
	if filter.Lang != "" {
		builder = builder.Where(sq.Eq{"lang": filter.Lang})
	}
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build run items query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list run items: %w", err)
	}
	defer rows.Close()

	var items []RunItem
	for rows.Next() {
		var item RunItem
		var pageTitle, lang, message sql.NullString
		var createdAt string
		if err := rows.Scan(&item.ID, &item.RunID, &item.Kind, &pageTitle, &lang,
			&item.Status, &message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan run item: %w", err)
		}
		if pageTitle.Valid {
			item.PageTitle = &pageTitle.String
		}
		if lang.Valid {
			item.Lang = &lang.String
		}
		if message.Valid {
			item.Message = &message.String
		}
		if t, err := parseTimeString(createdAt); err == nil {
			item.CreatedAt = t
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run items: %w", err)
	}
	return items, nil
}

// RunStatusCounts tallies run items by status.
func (s *Store) RunStatusCounts(ctx context.Context, runID int64) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM run_items WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return nil, fmt.Errorf("count run items: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan run item count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run item counts: %w", err)
	}
	return counts, nil
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var status, startedAt string
	var finishedAt sql.NullString
	if err := row.Scan(&run.ID, &run.UUID, &run.Mode, &run.TargetLangs, &status, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	if t, err := parseTimeString(startedAt); err == nil {
		run.StartedAt = t
	}
	if finishedAt.Valid {
		if t, err := parseTimeString(finishedAt.String); err == nil {
			run.FinishedAt = &t
		}
	}
	return &run, nil
}

func nullablePtr(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}
