package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/prlibrary/matching/internal/types"
)

const globalSettingsKey = "matching_global"

// GetSettings returns the stored settings, or nil when none were saved yet
func (s *PostgresStorage) GetSettings(ctx context.Context) (*types.GlobalSettings, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM settings WHERE key = $1`, globalSettingsKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return decode[types.GlobalSettings](raw, "settings")
}

// SaveSettings replaces the stored settings
func (s *PostgresStorage) SaveSettings(ctx context.Context, st *types.GlobalSettings) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO settings (key, data, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`, globalSettingsKey, data, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
