package store

import (
	"context"
	"fmt"
)

// ReplaceTermsForLang swaps the entire termbase of one language for the
// given entries.
func (s *Store) ReplaceTermsForLang(ctx context.Context, lang string, entries []TermEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace terms: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM termbase WHERE lang = ?`, lang); err != nil {
		return fmt.Errorf("replace terms: clear: %w", err)
	}
	for _, entry := range entries {
		forbidden := 0
		if entry.Forbidden {
			forbidden = 1
		}
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO termbase (lang, term, preferred, forbidden)
            VALUES (?, ?, ?, ?)`,
			lang, entry.Term, entry.Preferred, forbidden); err != nil {
			return fmt.Errorf("replace terms: insert %q: %w", entry.Term, err)
		}
	}
	return tx.Commit()
}

// TermsForLang returns the termbase entries of one language.
func (s *Store) TermsForLang(ctx context.Context, lang string) ([]TermEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lang, term, preferred, forbidden FROM termbase WHERE lang = ? ORDER BY term`, lang)
	if err != nil {
		return nil, fmt.Errorf("list terms: %w", err)
	}
	defer rows.Close()

	var entries []TermEntry
	for rows.Next() {
		var entry TermEntry
		var forbidden int
		if err := rows.Scan(&entry.Lang, &entry.Term, &entry.Preferred, &forbidden); err != nil {
			return nil, fmt.Errorf("scan term: %w", err)
		}
		entry.Forbidden = forbidden != 0
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate terms: %w", err)
	}
	return entries, nil
}
