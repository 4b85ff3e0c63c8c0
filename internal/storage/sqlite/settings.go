package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prlibrary/matching/internal/types"
)

const globalSettingsKey = "matching_global"

// GetSettings returns the stored settings, or nil when none were saved yet
func (s *SQLiteStorage) GetSettings(ctx context.Context) (*types.GlobalSettings, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM settings WHERE key = ?`, globalSettingsKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	var st types.GlobalSettings
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return &st, nil
}

// SaveSettings replaces the stored settings
func (s *SQLiteStorage) SaveSettings(ctx context.Context, st *types.GlobalSettings) error {
	data, err := marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, globalSettingsKey, data, millis(st.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
