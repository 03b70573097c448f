package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/clustermon/internal/monitor"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

const runColumns = `id, task, host, started_at, finished_at, alert_lines, notified, coalesce(error, ''), measurements`

// RecordRun inserts one finished run. Recording the same id twice is a no-op.
func (s *Store) RecordRun(ctx context.Context, run monitor.Run) error {
	var runErr *string
	if run.Error != "" {
		runErr = &run.Error
	}
	// nil keeps the column NULL for tasks without readings.
	var measurements any
	if len(run.Measurements) > 0 {
		measurements = run.Measurements
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO monitor_runs (id, task, host, started_at, finished_at, alert_lines, notified, error, measurements)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		run.ID, run.Task, run.Host, run.StartedAt, run.FinishedAt, run.AlertLines, run.Notified, runErr, measurements,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. An empty task matches
// every task; limit is clamped to [1, MaxListLimit].
func (s *Store) ListRuns(ctx context.Context, task string, limit int) ([]monitor.Run, error) {
	limit = ClampLimit(limit)

	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+`
		FROM monitor_runs
		WHERE $1 = '' OR task = $1
		ORDER BY started_at DESC
		LIMIT $2`, task, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []monitor.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (monitor.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM monitor_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return monitor.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ClampLimit applies the list defaults to a caller supplied limit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

func scanRun(row pgx.Row) (monitor.Run, error) {
	var run monitor.Run
	err := row.Scan(&run.ID, &run.Task, &run.Host, &run.StartedAt, &run.FinishedAt, &run.AlertLines, &run.Notified, &run.Error, &run.Measurements)
	return run, err
}
