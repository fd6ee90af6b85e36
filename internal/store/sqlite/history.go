package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Ning0612/Syncenum/internal/store"
)

// SaveRun records a watcher pass
func (s *Store) SaveRun(ctx context.Context, run store.RunRecord) error {
	if run.Status != store.RunSuccess && run.Status != store.RunFailed && run.Status != store.RunPartial {
		return fmt.Errorf("invalid status: %s (must be 'success', 'failed', or 'partial')", run.Status)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (account, path, start_time, end_time, status, updated, deleted, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.Account,
		run.Path,
		run.StartTime,
		run.EndTime,
		run.Status,
		run.Updated,
		run.Deleted,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}
	return nil
}

// GetHistory returns the most recent runs of an account, newest first
func (s *Store) GetHistory(ctx context.Context, account string, limit int) ([]store.RunRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account, path, start_time, end_time, status, updated, deleted, error
		FROM runs
		WHERE account = ?
		ORDER BY start_time DESC, id DESC
		LIMIT ?
	`, account, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var runs []store.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// GetLastSuccess returns the last successful run for a path, or nil
func (s *Store) GetLastSuccess(ctx context.Context, account, path string) (*store.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account, path, start_time, end_time, status, updated, deleted, error
		FROM runs
		WHERE account = ? AND path = ? AND status = 'success'
		ORDER BY start_time DESC, id DESC
		LIMIT 1
	`, account, path)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last success: %w", err)
	}
	return run, nil
}

func scanRun(row scanner) (*store.RunRecord, error) {
	var (
		run     store.RunRecord
		errText sql.NullString
	)
	err := row.Scan(
		&run.ID,
		&run.Account,
		&run.Path,
		&run.StartTime,
		&run.EndTime,
		&run.Status,
		&run.Updated,
		&run.Deleted,
		&errText,
	)
	if err != nil {
		return nil, err
	}
	run.Error = errText.String
	return &run, nil
}
