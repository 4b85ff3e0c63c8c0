package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prlibrary/matching/internal/events"
)

// StoreEvent stores a new engine event in the database
func (p *PostgresStorage) StoreEvent(ctx context.Context, event *events.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO events (id, type, severity, job_id, candidate_id, timestamp, message, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.ID, string(event.Type), string(event.Severity), event.JobID, event.CandidateID,
		event.Timestamp, event.Message, dataJSON)
	if err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}
	return nil
}

// GetEvents retrieves events matching the given filter, most recent first
func (p *PostgresStorage) GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.Event, error) {
	query := `
		SELECT id, type, severity, job_id, candidate_id, timestamp, message, data
		FROM events
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", argNum)
		args = append(args, string(filter.Type))
		argNum++
	}
	if filter.Severity != "" {
		query += fmt.Sprintf(" AND severity = $%d", argNum)
		args = append(args, string(filter.Severity))
		argNum++
	}
	if filter.JobID != "" {
		query += fmt.Sprintf(" AND job_id = $%d", argNum)
		args = append(args, filter.JobID)
		argNum++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND timestamp >= $%d", argNum)
		args = append(args, filter.Since)
		argNum++
	}

	query += " ORDER BY timestamp DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]*events.Event, error) {
	defer rows.Close()

	var out []*events.Event
	for rows.Next() {
		var (
			e        events.Event
			eType    string
			severity string
			ts       time.Time
			dataJSON []byte
		)
		if err := rows.Scan(&e.ID, &eType, &severity, &e.JobID, &e.CandidateID, &ts, &e.Message, &dataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = events.EventType(eType)
		e.Severity = events.EventSeverity(severity)
		e.Timestamp = ts
		if len(dataJSON) > 0 && string(dataJSON) != "null" {
			if err := json.Unmarshal(dataJSON, &e.Data); err != nil {
				return nil, fmt.Errorf("failed to decode event data: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// GetEventCounts returns event totals grouped by type and severity
func (p *PostgresStorage) GetEventCounts(ctx context.Context) (*events.EventCounts, error) {
	counts := &events.EventCounts{
		EventsByType:     map[string]int{},
		EventsBySeverity: map[string]int{},
	}
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM events`).Scan(&counts.TotalEvents); err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	for column, into := range map[string]map[string]int{
		"type":     counts.EventsByType,
		"severity": counts.EventsBySeverity,
	} {
		rows, err := p.pool.Query(ctx, fmt.Sprintf(`SELECT %s, COUNT(*) FROM events GROUP BY %s`, column, column))
		if err != nil {
			return nil, fmt.Errorf("failed to count events by %s: %w", column, err)
		}
		for rows.Next() {
			var key string
			var n int
			if err := rows.Scan(&key, &n); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan event count: %w", err)
			}
			into[key] = n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return counts, nil
}

// CleanupEventsByAge deletes events older than retentionDays in batches
func (p *PostgresStorage) CleanupEventsByAge(ctx context.Context, retentionDays, batchSize int) (int, error) {
	if retentionDays < 0 {
		return 0, fmt.Errorf("retention days cannot be negative")
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		tag, err := p.pool.Exec(ctx, `
			DELETE FROM events WHERE id IN (
				SELECT id FROM events WHERE timestamp < $1 ORDER BY timestamp LIMIT $2
			)
		`, cutoff, batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to delete old events: %w", err)
		}
		n := int(tag.RowsAffected())
		total += n
		if n < batchSize {
			return total, nil
		}
	}
}
