package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/prlibrary/matching/internal/types"
)

// CreateCandidate inserts a new candidate at version 1, returning
// types.ErrDuplicate when the entity type and match key are taken.
func (s *PostgresStorage) CreateCandidate(ctx context.Context, c *types.MatchingCandidate) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid candidate: %w", err)
	}
	c.Version = 1
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal candidate: %w", err)
	}

	return s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO candidates (id, entity_type, match_key, status, score, version, created_at, updated_at, data)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, c.ID, string(c.EntityType), c.MatchKey, string(c.Status), c.Score, c.Version,
			c.CreatedAt, c.UpdatedAt, data)
		if isUniqueViolation(err) {
			return fmt.Errorf("candidate %s/%s: %w", c.EntityType, c.MatchKey, types.ErrDuplicate)
		}
		if err != nil {
			return fmt.Errorf("failed to insert candidate: %w", err)
		}
		return replaceCandidateOrgs(ctx, tx, c)
	})
}

// UpdateCandidate writes c when the stored version equals expectedVersion
func (s *PostgresStorage) UpdateCandidate(ctx context.Context, c *types.MatchingCandidate, expectedVersion int64) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid candidate: %w", err)
	}
	next := *c
	next.Version = expectedVersion + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to marshal candidate: %w", err)
	}

	err = s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE candidates
			SET status = $1, score = $2, version = $3, updated_at = $4, data = $5
			WHERE id = $6 AND version = $7
		`, string(next.Status), next.Score, next.Version, next.UpdatedAt, data, next.ID, expectedVersion)
		if err != nil {
			return fmt.Errorf("failed to update candidate: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists int
			err := tx.QueryRow(ctx, `SELECT 1 FROM candidates WHERE id = $1`, next.ID).Scan(&exists)
			if errors.Is(err, pgx.ErrNoRows) {
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

func replaceCandidateOrgs(ctx context.Context, tx pgx.Tx, c *types.MatchingCandidate) error {
	if _, err := tx.Exec(ctx, `DELETE FROM candidate_organizations WHERE candidate_id = $1`, c.ID); err != nil {
		return fmt.Errorf("failed to clear candidate organizations: %w", err)
	}
	batch := &pgx.Batch{}
	for _, orgID := range c.OrganizationIDs() {
		batch.Queue(`INSERT INTO candidate_organizations (candidate_id, organization_id) VALUES ($1, $2)`, c.ID, orgID)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to link candidate organizations: %w", err)
	}
	return nil
}

// GetCandidate retrieves a candidate by id
func (s *PostgresStorage) GetCandidate(ctx context.Context, id string) (*types.MatchingCandidate, error) {
	row := s.pool.QueryRow(ctx, `SELECT data FROM candidates WHERE id = $1`, id)
	return scanCandidate(row, id)
}

// GetCandidateByKey retrieves the candidate for an entity type and match key
func (s *PostgresStorage) GetCandidateByKey(ctx context.Context, entityType types.EntityType, matchKey string) (*types.MatchingCandidate, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT data FROM candidates WHERE entity_type = $1 AND match_key = $2`, string(entityType), matchKey)
	return scanCandidate(row, string(entityType)+"/"+matchKey)
}

// DeleteCandidate removes a candidate; its organization links cascade
func (s *PostgresStorage) DeleteCandidate(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM candidates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete candidate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("candidate %s: %w", id, types.ErrNotFound)
	}
	return nil
}

func scanCandidate(row pgx.Row, ref string) (*types.MatchingCandidate, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("candidate %s: %w", ref, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	return decode[types.MatchingCandidate](raw, "candidate")
}

// ListCandidates returns candidates matching filter, highest score first
func (s *PostgresStorage) ListCandidates(ctx context.Context, filter types.CandidateFilter) ([]*types.MatchingCandidate, error) {
	query := `SELECT c.data FROM candidates c WHERE 1=1`
	args := []interface{}{}
	argNum := 1

	if filter.EntityType != "" {
		query += fmt.Sprintf(` AND c.entity_type = $%d`, argNum)
		args = append(args, string(filter.EntityType))
		argNum++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND c.status = $%d`, argNum)
		args = append(args, string(filter.Status))
		argNum++
	}
	if filter.MinScore > 0 {
		query += fmt.Sprintf(` AND c.score >= $%d`, argNum)
		args = append(args, filter.MinScore)
		argNum++
	}
	if filter.OrganizationID != "" {
		query += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM candidate_organizations o WHERE o.candidate_id = c.id AND o.organization_id = $%d)`, argNum)
		args = append(args, filter.OrganizationID)
		argNum++
	}
	query += ` ORDER BY c.score DESC, c.updated_at DESC, c.id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argNum)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	return collectData[types.MatchingCandidate](rows, "candidate")
}
