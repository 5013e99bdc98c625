package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const translationColumns = "page_title, segment_key, lang, translated_text, engine_id, qa_status, source_fingerprint, created_at, updated_at"

// UpsertTranslation stores or replaces the cached translation for one unit
// and language.
func (s *Store) UpsertTranslation(ctx context.Context, tr Translation) error {
	now := timestamp(time.Now())
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO translations (`+translationColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (page_title, segment_key, lang) DO UPDATE SET
            translated_text = excluded.translated_text,
            engine_id = excluded.engine_id,
            qa_status = excluded.qa_status,
            source_fingerprint = excluded.source_fingerprint,
            updated_at = excluded.updated_at`,
		tr.PageTitle, tr.SegmentKey, tr.Lang, tr.TranslatedText, tr.EngineID,
		string(tr.QAStatus), tr.SourceFingerprint, now, now)
	if err != nil {
		return fmt.Errorf("upsert translation: %w", err)
	}
	return nil
}

// GetTranslation looks up the unit-exact cache entry.
func (s *Store) GetTranslation(ctx context.Context, pageTitle, segmentKey, lang string) (*Translation, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT `+translationColumns+` FROM translations
        WHERE page_title = ? AND segment_key = ? AND lang = ?`,
		pageTitle, segmentKey, lang)
	tr, err := scanTranslation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get translation: %w", err)
	}
	return tr, nil
}

// FindByFingerprint looks up a content-identical translation from any page,
// restricted to entries that passed validation. The freshest match wins.
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint, lang string) (*Translation, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT `+translationColumns+` FROM translations
        WHERE source_fingerprint = ? AND lang = ? AND qa_status = 'passed'
        ORDER BY updated_at DESC LIMIT 1`,
		fingerprint, lang)
	tr, err := scanTranslation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find translation by fingerprint: %w", err)
	}
	return tr, nil
}

// ListTranslations returns every cached translation of a page in one
// language, keyed by segment.
func (s *Store) ListTranslations(ctx context.Context, pageTitle, lang string) (map[string]Translation, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT `+translationColumns+` FROM translations
        WHERE page_title = ? AND lang = ?`, pageTitle, lang)
	if err != nil {
		return nil, fmt.Errorf("list translations: %w", err)
	}
	defer rows.Close()

	translations := map[string]Translation{}
	for rows.Next() {
		tr, err := scanTranslation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan translation: %w", err)
		}
		translations[tr.SegmentKey] = *tr
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate translations: %w", err)
	}
	return translations, nil
}

// DeleteTranslations drops cached entries for a page and language. Used by
// forced refresh.
func (s *Store) DeleteTranslations(ctx context.Context, pageTitle, lang string) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM translations WHERE page_title = ? AND lang = ?`, pageTitle, lang)
	if err != nil {
		return 0, fmt.Errorf("delete translations: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete translations: rows affected: %w", err)
	}
	return int(affected), nil
}

func scanTranslation(row rowScanner) (*Translation, error) {
	var tr Translation
	var qaStatus, createdAt, updatedAt string
	if err := row.Scan(&tr.PageTitle, &tr.SegmentKey, &tr.Lang, &tr.TranslatedText,
		&tr.EngineID, &qaStatus, &tr.SourceFingerprint, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	tr.QAStatus = QAStatus(qaStatus)
	if t, err := parseTimeString(createdAt); err == nil {
		tr.CreatedAt = t
	}
	if t, err := parseTimeString(updatedAt); err == nil {
		tr.UpdatedAt = t
	}
	return &tr, nil
}
