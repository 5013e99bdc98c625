package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wikiloom/internal/pagestate"
)

// GetState loads the stored translation state of a page/language pair. When
// no row exists the pair is in the default state with a zero source revision.
func (s *Store) GetState(ctx context.Context, pageTitle, lang string) (PageStateRow, error) {
	stored, _, err := s.lookupState(ctx, pageTitle, lang)
	return stored, err
}

func (s *Store) lookupState(ctx context.Context, pageTitle, lang string) (PageStateRow, bool, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT page_title, lang, state, source_rev, updated_at
        FROM page_state WHERE page_title = ? AND lang = ?`, pageTitle, lang)

	var stored PageStateRow
	var updatedAt string
	err := row.Scan(&stored.PageTitle, &stored.Lang, &stored.State, &stored.SourceRev, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return PageStateRow{
			PageTitle: pageTitle,
			Lang:      lang,
			State:     string(pagestate.Default),
		}, false, nil
	}
	if err != nil {
		return PageStateRow{}, false, fmt.Errorf("get page state: %w", err)
	}
	if t, err := parseTimeString(updatedAt); err == nil {
		stored.UpdatedAt = t
	}
	return stored, true, nil
}

// ApplyStateEvent runs the state transition for one page/language pair and
// persists the outcome. The transition itself is pure; rejected events
// surface as pagestate.RejectedError without touching the row. The write is
// conditioned on the state that was read, so a concurrent transition makes
// this one re-read and reapply instead of clobbering it.
func (s *Store) ApplyStateEvent(ctx context.Context, pageTitle, lang string, event pagestate.Event, actor pagestate.Actor, sourceRev int64) (pagestate.State, error) {
	for attempt := 0; attempt < 3; attempt++ {
		current, exists, err := s.lookupState(ctx, pageTitle, lang)
		if err != nil {
			return "", err
		}

		next, err := pagestate.Apply(pagestate.Parse(current.State), event, actor)
		if err != nil {
			return "", err
		}

		rev := sourceRev
		if rev == 0 {
			rev = current.SourceRev
		}
		now := timestamp(time.Now())

		var result sql.Result
		if exists {
			result, err = s.db.ExecContext(ctx, `
        UPDATE page_state SET state = ?, source_rev = ?, updated_at = ?
        WHERE page_title = ? AND lang = ? AND state = ?`,
				string(next), rev, now, pageTitle, lang, current.State)
		} else {
			result, err = s.db.ExecContext(ctx, `
        INSERT INTO page_state (page_title, lang, state, source_rev, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (page_title, lang) DO NOTHING`,
				pageTitle, lang, string(next), rev, now)
		}
		if err != nil {
			return "", fmt.Errorf("persist page state: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return "", fmt.Errorf("persist page state: rows affected: %w", err)
		}
		if affected == 1 {
			return next, nil
		}
		// Another writer changed the row between read and write.
	}
	return "", fmt.Errorf("persist page state %s/%s: concurrent transitions", pageTitle, lang)
}

// ListStates returns stored states, optionally filtered to one page.
func (s *Store) ListStates(ctx context.Context, pageTitle string) ([]PageStateRow, error) {
	query := `SELECT page_title, lang, state, source_rev, updated_at FROM page_state`
	var args []any
	if pageTitle != "" {
		query += ` WHERE page_title = ?`
		args = append(args, pageTitle)
	}
	query += ` ORDER BY page_title, lang`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list page states: %w", err)
	}
	defer rows.Close()

	var states []PageStateRow
	for rows.Next() {
		var stored PageStateRow
		var updatedAt string
		if err := rows.Scan(&stored.PageTitle, &stored.Lang, &stored.State, &stored.SourceRev, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan page state: %w", err)
		}
		if t, err := parseTimeString(updatedAt); err == nil {
			stored.UpdatedAt = t
		}
		states = append(states, stored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page states: %w", err)
	}
	return states, nil
}
