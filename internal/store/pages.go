package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertPage records or updates a tracked source page.
func (s *Store) UpsertPage(ctx context.Context, page Page) error {
	now := timestamp(time.Now())
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO pages (title, source_lang, last_source_rev, updated_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT (title) DO UPDATE SET
            source_lang = excluded.source_lang,
            last_source_rev = excluded.last_source_rev,
            updated_at = excluded.updated_at`,
		page.Title, page.SourceLang, page.LastSourceRev, now)
	if err != nil {
		return fmt.Errorf("upsert page: %w", err)
	}
	return nil
}

// GetPage loads one tracked page by title.
func (s *Store) GetPage(ctx context.Context, title string) (*Page, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT title, source_lang, last_source_rev, updated_at FROM pages WHERE title = ?`, title)

	var page Page
	var updatedAt string
	err := row.Scan(&page.Title, &page.SourceLang, &page.LastSourceRev, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}
	if t, err := parseTimeString(updatedAt); err == nil {
		page.UpdatedAt = t
	}
	return &page, nil
}

// ListPages returns all tracked pages ordered by title.
func (s *Store) ListPages(ctx context.Context) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT title, source_lang, last_source_rev, updated_at FROM pages ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var page Page
		var updatedAt string
		if err := rows.Scan(&page.Title, &page.SourceLang, &page.LastSourceRev, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		if t, err := parseTimeString(updatedAt); err == nil {
			page.UpdatedAt = t
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}
