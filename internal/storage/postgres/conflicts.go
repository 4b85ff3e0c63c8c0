package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/prlibrary/matching/internal/types"
)

// CreateConflict stores a new conflict review
func (s *PostgresStorage) CreateConflict(ctx context.Context, c *types.FieldConflict) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid conflict: %w", err)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal conflict: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO field_conflicts (id, entity_id, field, status, priority_rank, created_at, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.EntityID, c.Field, string(c.Status), c.Priority.Rank(), c.CreatedAt, data)
	if isUniqueViolation(err) {
		return fmt.Errorf("conflict %s: %w", c.ID, types.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert conflict: %w", err)
	}
	return nil
}

// UpdateConflict rewrites a stored conflict
func (s *PostgresStorage) UpdateConflict(ctx context.Context, c *types.FieldConflict) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid conflict: %w", err)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal conflict: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE field_conflicts SET status = $1, priority_rank = $2, data = $3 WHERE id = $4
	`, string(c.Status), c.Priority.Rank(), data, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update conflict: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conflict %s: %w", c.ID, types.ErrNotFound)
	}
	return nil
}

// GetConflict retrieves a conflict by id
func (s *PostgresStorage) GetConflict(ctx context.Context, id string) (*types.FieldConflict, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM field_conflicts WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conflict %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict: %w", err)
	}
	return decode[types.FieldConflict](raw, "conflict")
}

// ListConflicts returns conflicts matching filter, highest priority first
func (s *PostgresStorage) ListConflicts(ctx context.Context, filter types.ConflictFilter) ([]*types.FieldConflict, error) {
	query := `SELECT data FROM field_conflicts WHERE 1=1`
	args := []interface{}{}
	argNum := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argNum)
		args = append(args, string(filter.Status))
		argNum++
	}
	if filter.EntityID != "" {
		query += fmt.Sprintf(` AND entity_id = $%d`, argNum)
		args = append(args, filter.EntityID)
		argNum++
	}
	if filter.Field != "" {
		query += fmt.Sprintf(` AND field = $%d`, argNum)
		args = append(args, filter.Field)
		argNum++
	}
	query += ` ORDER BY priority_rank DESC, created_at DESC, id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argNum)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conflicts: %w", err)
	}
	return collectData[types.FieldConflict](rows, "conflict")
}
