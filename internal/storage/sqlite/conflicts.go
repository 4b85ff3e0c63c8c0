package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prlibrary/matching/internal/types"
)

// CreateConflict stores a new conflict review
func (s *SQLiteStorage) CreateConflict(ctx context.Context, c *types.FieldConflict) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid conflict: %w", err)
	}
	data, err := marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal conflict: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO field_conflicts (id, entity_id, field, status, priority_rank, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.EntityID, c.Field, string(c.Status), c.Priority.Rank(), millis(c.CreatedAt), data)
	if isUniqueViolation(err) {
		return fmt.Errorf("conflict %s: %w", c.ID, types.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert conflict: %w", err)
	}
	return nil
}

// UpdateConflict rewrites a stored conflict
func (s *SQLiteStorage) UpdateConflict(ctx context.Context, c *types.FieldConflict) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid conflict: %w", err)
	}
	data, err := marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal conflict: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE field_conflicts SET status = ?, priority_rank = ?, data = ? WHERE id = ?
	`, string(c.Status), c.Priority.Rank(), data, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update conflict: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("conflict %s: %w", c.ID, types.ErrNotFound)
	}
	return nil
}

// GetConflict retrieves a conflict by id
func (s *SQLiteStorage) GetConflict(ctx context.Context, id string) (*types.FieldConflict, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM field_conflicts WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conflict %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict: %w", err)
	}
	var c types.FieldConflict
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("failed to decode conflict: %w", err)
	}
	return &c, nil
}

// ListConflicts returns conflicts matching filter, highest priority first
func (s *SQLiteStorage) ListConflicts(ctx context.Context, filter types.ConflictFilter) ([]*types.FieldConflict, error) {
	query := `SELECT data FROM field_conflicts WHERE 1=1`
	args := []interface{}{}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.EntityID != "" {
		query += ` AND entity_id = ?`
		args = append(args, filter.EntityID)
	}
	if filter.Field != "" {
		query += ` AND field = ?`
		args = append(args, filter.Field)
	}
	query += ` ORDER BY priority_rank DESC, created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conflicts: %w", err)
	}
	defer rows.Close()

	var out []*types.FieldConflict
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		var c types.FieldConflict
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("failed to decode conflict: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
