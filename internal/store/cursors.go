package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SetCursor stores a named progress marker, such as the last processed
// recent-changes timestamp.
func (s *Store) SetCursor(ctx context.Context, name, value string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO cursors (name, value, updated_at) VALUES (?, ?, ?)
        ON CONFLICT (name) DO UPDATE SET
            value = excluded.value,
            updated_at = excluded.updated_at`,
		name, value, timestamp(time.Now()))
	if err != nil {
		return fmt.Errorf("set cursor %s: %w", name, err)
	}
	return nil
}

// GetCursor loads a named progress marker. Missing cursors read as empty.
func (s *Store) GetCursor(ctx context.Context, name string) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM cursors WHERE name = ?`, name)
	var value sql.NullString
	err := row.Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get cursor %s: %w", name, err)
	}
	return value.String, nil
}
