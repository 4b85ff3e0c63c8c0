package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prlibrary/matching/internal/types"
)

// CreateCandidate inserts a new candidate at version 1. It returns
// types.ErrDuplicate when a candidate with the same entity type and match key
// already exists.
func (s *SQLiteStorage) CreateCandidate(ctx context.Context, c *types.MatchingCandidate) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid candidate: %w", err)
	}
	c.Version = 1
	data, err := marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal candidate: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO candidates (id, entity_type, match_key, status, score, version, created_at, updated_at, data)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, string(c.EntityType), c.MatchKey, string(c.Status), c.Score, c.Version,
			millis(c.CreatedAt), millis(c.UpdatedAt), data)
		if isUniqueViolation(err) {
			return fmt.Errorf("candidate %s/%s: %w", c.EntityType, c.MatchKey, types.ErrDuplicate)
		}
		if err != nil {
			return fmt.Errorf("failed to insert candidate: %w", err)
		}
		return replaceCandidateOrgs(ctx, tx, c)
	})
}

// UpdateCandidate writes c if the stored version still equals
// expectedVersion, then sets c.Version to the new version. A stale version
// yields types.ErrVersionConflict.
func (s *SQLiteStorage) UpdateCandidate(ctx context.Context, c *types.MatchingCandidate, expectedVersion int64) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid candidate: %w", err)
	}
	next := *c
	next.Version = expectedVersion + 1
	data, err := marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to marshal candidate: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE candidates
			SET status = ?, score = ?, version = ?, updated_at = ?, data = ?
			WHERE id = ? AND version = ?
		`, string(next.Status), next.Score, next.Version, millis(next.UpdatedAt), data, next.ID, expectedVersion)
		if err != nil {
			return fmt.Errorf("failed to update candidate: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM candidates WHERE id = ?`, next.ID).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("candidate %s: %w", next.ID, types.ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("failed to check candidate: %w", err)
			}
			return fmt.Errorf("candidate %s at version %d: %w", next.ID, expectedVersion, types.ErrVersionConflict)
		}
		return replaceCandidateOrgs(ctx, tx, &next)
	})
	if err != nil {
		return err
	}
	c.Version = next.Version
	return nil
}

func replaceCandidateOrgs(ctx context.Context, tx *sql.Tx, c *types.MatchingCandidate) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM candidate_organizations WHERE candidate_id = ?`, c.ID); err != nil {
		return fmt.Errorf("failed to clear candidate organizations: %w", err)
	}
	for _, orgID := range c.OrganizationIDs() {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO candidate_organizations (candidate_id, organization_id) VALUES (?, ?)`, c.ID, orgID)
		if err != nil {
			return fmt.Errorf("failed to link candidate organization: %w", err)
		}
	}
	return nil
}

// GetCandidate retrieves a candidate by id
func (s *SQLiteStorage) GetCandidate(ctx context.Context, id string) (*types.MatchingCandidate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM candidates WHERE id = ?`, id)
	return scanCandidate(row, id)
}

// GetCandidateByKey retrieves the candidate for an entity type and match key
func (s *SQLiteStorage) GetCandidateByKey(ctx context.Context, entityType types.EntityType, matchKey string) (*types.MatchingCandidate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM candidates WHERE entity_type = ? AND match_key = ?`, string(entityType), matchKey)
	return scanCandidate(row, string(entityType)+"/"+matchKey)
}

// DeleteCandidate removes a candidate and its organization links
func (s *SQLiteStorage) DeleteCandidate(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM candidate_organizations WHERE candidate_id = ?`, id); err != nil {
			return fmt.Errorf("failed to unlink candidate organizations: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM candidates WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete candidate: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("candidate %s: %w", id, types.ErrNotFound)
		}
		return nil
	})
}

func scanCandidate(row *sql.Row, ref string) (*types.MatchingCandidate, error) {
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("candidate %s: %w", ref, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	var c types.MatchingCandidate
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("failed to decode candidate: %w", err)
	}
	return &c, nil
}

// ListCandidates returns candidates matching filter, highest score first
func (s *SQLiteStorage) ListCandidates(ctx context.Context, filter types.CandidateFilter) ([]*types.MatchingCandidate, error) {
	query := `SELECT c.data FROM candidates c WHERE 1=1`
	args := []interface{}{}

	if filter.EntityType != "" {
		query += ` AND c.entity_type = ?`
		args = append(args, string(filter.EntityType))
	}
	if filter.Status != "" {
		query += ` AND c.status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.MinScore > 0 {
		query += ` AND c.score >= ?`
		args = append(args, filter.MinScore)
	}
	if filter.OrganizationID != "" {
		query += ` AND EXISTS (SELECT 1 FROM candidate_organizations o WHERE o.candidate_id = c.id AND o.organization_id = ?)`
		args = append(args, filter.OrganizationID)
	}
	query += ` ORDER BY c.score DESC, c.updated_at DESC, c.id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var out []*types.MatchingCandidate
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		var c types.MatchingCandidate
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("failed to decode candidate: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
