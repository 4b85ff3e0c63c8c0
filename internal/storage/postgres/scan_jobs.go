package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/prlibrary/matching/internal/types"
)

// CreateScanJob records a newly started scan
func (s *PostgresStorage) CreateScanJob(ctx context.Context, job *types.ScanJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid scan job: %w", err)
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal scan job: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO scan_jobs (id, status, triggered_by, started_at, data) VALUES ($1, $2, $3, $4, $5)
	`, job.ID, string(job.Status), string(job.TriggeredBy), job.StartedAt, data)
	if err != nil {
		return fmt.Errorf("failed to insert scan job: %w", err)
	}
	return nil
}

// FinishScanJob stores the final state of a running job. Finished jobs are
// never rewritten.
func (s *PostgresStorage) FinishScanJob(ctx context.Context, job *types.ScanJob) error {
	if job.Status == types.JobRunning {
		return fmt.Errorf("scan job %s is still running", job.ID)
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid scan job: %w", err)
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal scan job: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE scan_jobs SET status = $1, data = $2 WHERE id = $3 AND status = $4
	`, string(job.Status), data, job.ID, string(types.JobRunning))
	if err != nil {
		return fmt.Errorf("failed to finish scan job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scan job %s is not running: %w", job.ID, types.ErrNotFound)
	}
	return nil
}

// GetScanJob retrieves a scan job by id
func (s *PostgresStorage) GetScanJob(ctx context.Context, id string) (*types.ScanJob, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM scan_jobs WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("scan job %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan job: %w", err)
	}
	return decode[types.ScanJob](raw, "scan job")
}

// ListScanJobs returns the most recent jobs first
func (s *PostgresStorage) ListScanJobs(ctx context.Context, limit int) ([]*types.ScanJob, error) {
	query := `SELECT data FROM scan_jobs ORDER BY started_at DESC, id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan jobs: %w", err)
	}
	return collectData[types.ScanJob](rows, "scan job")
}

// ListRunningScanJobs returns jobs not yet finalized, oldest first
func (s *PostgresStorage) ListRunningScanJobs(ctx context.Context) ([]*types.ScanJob, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM scan_jobs WHERE status = $1 ORDER BY started_at, id`,
		string(types.JobRunning))
	if err != nil {
		return nil, fmt.Errorf("failed to query running scan jobs: %w", err)
	}
	return collectData[types.ScanJob](rows, "scan job")
}
