package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prlibrary/matching/internal/events"
)

// StoreEvent stores a new engine event in the database
func (s *SQLiteStorage) StoreEvent(ctx context.Context, event *events.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, type, severity, job_id, candidate_id, timestamp, message, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, string(event.Type), string(event.Severity), event.JobID, event.CandidateID,
		millis(event.Timestamp), event.Message, string(dataJSON))
	if err != nil {
		return fmt.Errorf("failed to store event (type=%s, job=%s): %w", event.Type, event.JobID, err)
	}
	return nil
}

// GetEvents retrieves events matching the given filter, most recent first
func (s *SQLiteStorage) GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.Event, error) {
	query := `
		SELECT id, type, severity, job_id, candidate_id, timestamp, message, data
		FROM events
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(filter.Severity))
	}
	if filter.JobID != "" {
		query += " AND job_id = ?"
		args = append(args, filter.JobID)
	}
	if !filter.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, millis(filter.Since))
	}

	query += " ORDER BY timestamp DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*events.Event, error) {
	var out []*events.Event
	for rows.Next() {
		var (
			e        events.Event
			ts       int64
			dataJSON string
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.Severity, &e.JobID, &e.CandidateID, &ts, &e.Message, &dataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		if dataJSON != "" && dataJSON != "null" {
			if err := json.Unmarshal([]byte(dataJSON), &e.Data); err != nil {
				return nil, fmt.Errorf("failed to decode event data: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// GetEventCounts returns event totals grouped by type and severity
func (s *SQLiteStorage) GetEventCounts(ctx context.Context) (*events.EventCounts, error) {
	counts := &events.EventCounts{
		EventsByType:     map[string]int{},
		EventsBySeverity: map[string]int{},
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&counts.TotalEvents); err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	if err := s.groupCount(ctx, "type", counts.EventsByType); err != nil {
		return nil, err
	}
	if err := s.groupCount(ctx, "severity", counts.EventsBySeverity); err != nil {
		return nil, err
	}
	return counts, nil
}

// column is always a constant
func (s *SQLiteStorage) groupCount(ctx context.Context, column string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s, COUNT(*) FROM events GROUP BY %s`, column, column))
	if err != nil {
		return fmt.Errorf("failed to count events by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan event count: %w", err)
		}
		into[key] = n
	}
	return rows.Err()
}

// CleanupEventsByAge deletes events older than retentionDays in batches of
// batchSize and returns the number of deleted events
func (s *SQLiteStorage) CleanupEventsByAge(ctx context.Context, retentionDays, batchSize int) (int, error) {
	if retentionDays < 0 {
		return 0, fmt.Errorf("retention days cannot be negative")
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}
	cutoff := millis(time.Now().AddDate(0, 0, -retentionDays))

	total := 0
	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		res, err := s.db.ExecContext(ctx, `
			DELETE FROM events WHERE id IN (
				SELECT id FROM events WHERE timestamp < ? ORDER BY timestamp LIMIT ?
			)
		`, cutoff, batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to delete old events: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to read affected rows: %w", err)
		}
		total += int(n)
		if int(n) < batchSize {
			return total, nil
		}
	}
}
