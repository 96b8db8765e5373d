// pkg/store/pgstore/runlog.go
package pgstore

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/David-Botos/flat-ingress/pkg/model"
	"github.com/David-Botos/flat-ingress/pkg/store"
)

var logColumns = []string{"id", "run_id", "stage", "message", "status", "start_time", "end_time", "duration_seconds"}

// RunLogStore keeps stage logs in a table
type RunLogStore struct {
	db    *sqlx.DB
	table string
}

var _ store.RunLogStore = (*RunLogStore)(nil)

// NewRunLogStore creates a run log store over table
func NewRunLogStore(db *sqlx.DB, table string) *RunLogStore {
	return &RunLogStore{db: db, table: table}
}

// Insert stores a new log entry
func (s *RunLogStore) Insert(ctx context.Context, entry *model.RunLog) error {
	query, args, err := psql.Insert(s.table).
		Columns(logColumns...).
		Values(entry.ID, entry.RunID, entry.Stage, entry.Message, entry.Status,
			entry.StartTime, entry.EndTime, entry.DurationSeconds).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build run log insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert run log: %w", err)
	}
	return nil
}

// Update writes the completion fields of an existing entry
func (s *RunLogStore) Update(ctx context.Context, entry *model.RunLog) error {
	query, args, err := psql.Update(s.table).
		Set("message", entry.Message).
		Set("status", entry.Status).
		Set("end_time", entry.EndTime).
		Set("duration_seconds", entry.DurationSeconds).
		Where(sq.Eq{"id": entry.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build run log update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update run log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListByRun returns the run's logs ordered by start time
func (s *RunLogStore) ListByRun(ctx context.Context, runID string) ([]model.RunLog, error) {
	query, args, err := psql.Select(logColumns...).
		From(s.table).
		Where(sq.Eq{"run_id": runID}).
		OrderBy("start_time ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build run log query: %w", err)
	}

	logs := make([]model.RunLog, 0)
	if err := s.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query run logs: %w", err)
	}
	return logs, nil
}

type logCountsRow struct {
	Total  int64 `db:"total"`
	Failed int64 `db:"failed"`
	Done   int64 `db:"done"`
}

// CountByStatus counts all logs, failed logs and completed logs in one query
func (s *RunLogStore) CountByStatus(ctx context.Context) (model.LogCounts, error) {
	query, args, err := psql.Select("COUNT(*) AS total").
		Column(sq.Expr("COUNT(*) FILTER (WHERE status = ?) AS failed", model.StageError)).
		Column(sq.Expr("COUNT(*) FILTER (WHERE status = ?) AS done", model.StageDone)).
		From(s.table).
		ToSql()
	if err != nil {
		return model.LogCounts{}, fmt.Errorf("failed to build run log count: %w", err)
	}

	var row logCountsRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		return model.LogCounts{}, fmt.Errorf("failed to count run logs: %w", err)
	}
	return model.LogCounts{Total: row.Total, Error: row.Failed, Done: row.Done}, nil
}

// DeleteStartedBefore removes logs older than cutoff
func (s *RunLogStore) DeleteStartedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := psql.Delete(s.table).
		Where(sq.Lt{"start_time": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build run log delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete run logs: %w", err)
	}
	return res.RowsAffected()
}
