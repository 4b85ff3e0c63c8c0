package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prlibrary/matching/internal/types"
)

// CreateScanJob records a newly started scan
func (s *SQLiteStorage) CreateScanJob(ctx context.Context, job *types.ScanJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid scan job: %w", err)
	}
	data, err := marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal scan job: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scan_jobs (id, status, triggered_by, started_at, data) VALUES (?, ?, ?, ?, ?)
	`, job.ID, string(job.Status), string(job.TriggeredBy), millis(job.StartedAt), data)
	if err != nil {
		return fmt.Errorf("failed to insert scan job: %w", err)
	}
	return nil
}

// FinishScanJob stores the final state of a running job. Finished jobs are
// immutable; writing one again fails.
func (s *SQLiteStorage) FinishScanJob(ctx context.Context, job *types.ScanJob) error {
	if job.Status == types.JobRunning {
		return fmt.Errorf("scan job %s is still running", job.ID)
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid scan job: %w", err)
	}
	data, err := marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal scan job: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE scan_jobs SET status = ?, data = ? WHERE id = ? AND status = ?
	`, string(job.Status), data, job.ID, string(types.JobRunning))
	if err != nil {
		return fmt.Errorf("failed to finish scan job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("scan job %s is not running: %w", job.ID, types.ErrNotFound)
	}
	return nil
}

// GetScanJob retrieves a scan job by id
func (s *SQLiteStorage) GetScanJob(ctx context.Context, id string) (*types.ScanJob, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM scan_jobs WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan job %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan job: %w", err)
	}
	var job types.ScanJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to decode scan job: %w", err)
	}
	return &job, nil
}

// ListScanJobs returns the most recent jobs first
func (s *SQLiteStorage) ListScanJobs(ctx context.Context, limit int) ([]*types.ScanJob, error) {
	query := `SELECT data FROM scan_jobs ORDER BY started_at DESC, id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryScanJobs(ctx, query, args...)
}

// ListRunningScanJobs returns jobs not yet finalized, oldest first
func (s *SQLiteStorage) ListRunningScanJobs(ctx context.Context) ([]*types.ScanJob, error) {
	return s.queryScanJobs(ctx, `SELECT data FROM scan_jobs WHERE status = ? ORDER BY started_at, id`,
		string(types.JobRunning))
}

func (s *SQLiteStorage) queryScanJobs(ctx context.Context, query string, args ...interface{}) ([]*types.ScanJob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*types.ScanJob
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		var job types.ScanJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, fmt.Errorf("failed to decode scan job: %w", err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}
