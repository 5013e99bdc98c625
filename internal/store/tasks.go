package store

import (
	"context"
	"fmt"
	"time"
)

// AddGlossaryTask records a non-blocking glossary followup.
func (s *Store) AddGlossaryTask(ctx context.Context, task GlossaryTask) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
        INSERT INTO glossary_tasks (page_title, lang, segment_key, term, detail, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		task.PageTitle, task.Lang, task.SegmentKey, task.Term, task.Detail, timestamp(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("add glossary task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add glossary task: last insert id: %w", err)
	}
	return id, nil
}

// ListGlossaryTasks returns open glossary followups, newest first.
func (s *Store) ListGlossaryTasks(ctx context.Context, limit int) ([]GlossaryTask, error) {
	query := `SELECT id, page_title, lang, segment_key, term, detail, created_at
        FROM glossary_tasks ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list glossary tasks: %w", err)
	}
	defer rows.Close()

	var tasks []GlossaryTask
	for rows.Next() {
		var task GlossaryTask
		var createdAt string
		if err := rows.Scan(&task.ID, &task.PageTitle, &task.Lang, &task.SegmentKey,
			&task.Term, &task.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan glossary task: %w", err)
		}
		if t, err := parseTimeString(createdAt); err == nil {
			task.CreatedAt = t
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate glossary tasks: %w", err)
	}
	return tasks, nil
}

// ClearGlossaryTasks removes followups, optionally scoped to one page.
func (s *Store) ClearGlossaryTasks(ctx context.Context, pageTitle string) (int, error) {
	query := `DELETE FROM glossary_tasks`
	var args []any
	if pageTitle != "" {
		query += ` WHERE page_title = ?`
		args = append(args, pageTitle)
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("clear glossary tasks: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear glossary tasks: rows affected: %w", err)
	}
	return int(affected), nil
}
