package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"wikiloom/internal/segment"
)

// RefreshSegments replaces the stored segments of a page with the given
// units and returns the keys whose content fingerprint changed or is new.
// Unchanged segments keep their original created_at.
func (s *Store) RefreshSegments(ctx context.Context, pageTitle string, units []segment.Segment) ([]string, error) {
	existing, err := s.segmentFingerprints(ctx, pageTitle)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("refresh segments: begin: %w", err)
	}
	defer tx.Rollback()

	now := timestamp(time.Now())
	var changed []string
	kept := make(map[string]struct{}, len(units))
	for _, unit := range units {
		kept[unit.Key] = struct{}{}
		fingerprint := segment.Fingerprint(unit.Text)
		if existing[unit.Key] == fingerprint {
			continue
		}
		changed = append(changed, unit.Key)
		_, err := tx.ExecContext(ctx, `
            INSERT INTO segments (page_title, segment_key, source_text, fingerprint, created_at)
            VALUES (?, ?, ?, ?, ?)
            ON CONFLICT (page_title, segment_key) DO UPDATE SET
                source_text = excluded.source_text,
                fingerprint = excluded.fingerprint`,
			pageTitle, unit.Key, unit.Text, fingerprint, now)
		if err != nil {
			return nil, fmt.Errorf("refresh segments: upsert %s: %w", unit.Key, err)
		}
	}

	for key := range existing {
		if _, ok := kept[key]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM segments WHERE page_title = ? AND segment_key = ?`, pageTitle, key); err != nil {
			return nil, fmt.Errorf("refresh segments: delete %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("refresh segments: commit: %w", err)
	}
	segment.SortKeys(changed)
	return changed, nil
}

// ListSegments returns the stored units of a page in numeric key order.
func (s *Store) ListSegments(ctx context.Context, pageTitle string) ([]SegmentRow, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT page_title, segment_key, source_text, fingerprint, created_at
        FROM segments WHERE page_title = ?`, pageTitle)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var segments []SegmentRow
	for rows.Next() {
		var row SegmentRow
		var createdAt string
		if err := rows.Scan(&row.PageTitle, &row.SegmentKey, &row.SourceText, &row.Fingerprint, &createdAt); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		if t, err := parseTimeString(createdAt); err == nil {
			row.CreatedAt = t
		}
		segments = append(segments, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segments: %w", err)
	}
	sort.Slice(segments, func(i, j int) bool {
		a, _ := strconv.Atoi(segments[i].SegmentKey)
		b, _ := strconv.Atoi(segments[j].SegmentKey)
		return a < b
	})
	return segments, nil
}

func (s *Store) segmentFingerprints(ctx context.Context, pageTitle string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT segment_key, fingerprint FROM segments WHERE page_title = ?`, pageTitle)
	if err != nil {
		return nil, fmt.Errorf("load segment fingerprints: %w", err)
	}
	defer rows.Close()

	fingerprints := map[string]string{}
	for rows.Next() {
		var key, fingerprint string
		if err := rows.Scan(&key, &fingerprint); err != nil {
			return nil, fmt.Errorf("scan segment fingerprint: %w", err)
		}
		fingerprints[key] = fingerprint
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segment fingerprints: %w", err)
	}
	return fingerprints, nil
}
