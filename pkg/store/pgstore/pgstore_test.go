// pkg/store/pgstore/pgstore_test.go
package pgstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/David-Botos/flat-ingress/pkg/model"
	"github.com/David-Botos/flat-ingress/pkg/store"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

var now = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func TestControlGet(t *testing.T) {
	db, mock := newMock(t)
	s := NewControlStore(db, "process_control")

	rows := sqlmock.NewRows(controlColumns).
		AddRow(model.ControlRecordID, "PROCESSED", "run-1", now, "", int64(4))
	mock.ExpectQuery(`SELECT id, status, run_id, updated_at, error_detail, version FROM process_control WHERE id = \$1`).
		WithArgs(model.ControlRecordID).
		WillReturnRows(rows)

	rec, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessed, rec.Status)
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, int64(4), rec.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestControlGetMissing(t *testing.T) {
	db, mock := newMock(t)
	s := NewControlStore(db, "process_control")

	mock.ExpectQuery(`SELECT .* FROM process_control`).
		WillReturnRows(sqlmock.NewRows(controlColumns))

	_, err := s.Get(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestControlCreate(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{"inserted", 1, nil},
		{"existing row", 0, store.ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			s := NewControlStore(db, "process_control")
			rec := model.NewControlRecord("run-1", now)

			mock.ExpectExec(`INSERT INTO process_control .* ON CONFLICT \(id\) DO NOTHING`).
				WithArgs(model.ControlRecordID, model.StatusRunning, "run-1", now, "", int64(1)).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := s.Create(context.Background(), rec)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestControlCompareAndSwap(t *testing.T) {
	db, mock := newMock(t)
	s := NewControlStore(db, "process_control")
	rec := &model.ControlRecord{ID: model.ControlRecordID, Status: model.StatusRunning, RunID: "run-2", UpdatedAt: now, Version: 3}

	mock.ExpectExec(`UPDATE process_control SET .* WHERE id = \$6 AND version = \$7`).
		WithArgs(model.StatusRunning, "run-2", now, "", int64(4), model.ControlRecordID, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.CompareAndSwap(context.Background(), rec))
	assert.Equal(t, int64(4), rec.Version)

	// a concurrent writer moved the version
	mock.ExpectExec(`UPDATE process_control`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.CompareAndSwap(context.Background(), rec)
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, int64(4), rec.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestControlCompareAndSwapDriverError(t *testing.T) {
	db, mock := newMock(t)
	s := NewControlStore(db, "process_control")

	mock.ExpectExec(`UPDATE process_control`).WillReturnError(errors.New("connection reset"))

	err := s.CompareAndSwap(context.Background(), &model.ControlRecord{ID: model.ControlRecordID, Version: 1})
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrConflict)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRunLogLifecycle(t *testing.T) {
	db, mock := newMock(t)
	s := NewRunLogStore(db, "process_logs")
	ctx := context.Background()

	entry := model.NewRunLog("run-1", model.StageLock, "Lock acquired", now)
	mock.ExpectExec(`INSERT INTO process_logs \(id,run_id,stage,message,status,start_time,end_time,duration_seconds\)`).
		WithArgs(entry.ID, "run-1", model.StageLock, "Lock acquired", model.StageInProgress, now, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Insert(ctx, entry))

	entry.Complete("", now.Add(1500*time.Millisecond))
	mock.ExpectExec(`UPDATE process_logs SET message = \$1, status = \$2, end_time = \$3, duration_seconds = \$4 WHERE id = \$5`).
		WithArgs("Lock acquired", model.StageDone, sqlmock.AnyArg(), 1.5, entry.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Update(ctx, entry))

	mock.ExpectExec(`UPDATE process_logs`).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.Update(ctx, entry), store.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLogListByRun(t *testing.T) {
	db, mock := newMock(t)
	s := NewRunLogStore(db, "process_logs")

	end := now.Add(time.Second)
	d := 1.0
	rows := sqlmock.NewRows(logColumns).
		AddRow("a", "run-1", model.StageLock, "Lock acquired", "DONE", now, end, d).
		AddRow("b", "run-1", model.StageValidate, "Checking", "IN_PROGRESS", end, nil, nil)
	mock.ExpectQuery(`SELECT .* FROM process_logs WHERE run_id = \$1 ORDER BY start_time ASC, id ASC`).
		WithArgs("run-1").
		WillReturnRows(rows)

	logs, err := s.ListByRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, model.StageDone, logs[0].Status)
	require.NotNil(t, logs[0].DurationSeconds)
	assert.Equal(t, 1.0, *logs[0].DurationSeconds)
	assert.Nil(t, logs[1].EndTime)
	assert.False(t, logs[1].Completed())
}

func TestRunLogCountByStatus(t *testing.T) {
	db, mock := newMock(t)
	s := NewRunLogStore(db, "process_logs")

	mock.ExpectQuery(`SELECT COUNT\(\*\) AS total, COUNT\(\*\) FILTER \(WHERE status = \$1\) AS failed, COUNT\(\*\) FILTER \(WHERE status = \$2\) AS done FROM process_logs`).
		WithArgs(model.StageError, model.StageDone).
		WillReturnRows(sqlmock.NewRows([]string{"total", "failed", "done"}).AddRow(7, 1, 5))

	counts, err := s.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.LogCounts{Total: 7, Error: 1, Done: 5}, counts)
}

func TestRunLogDeleteStartedBefore(t *testing.T) {
	db, mock := newMock(t)
	s := NewRunLogStore(db, "process_logs")
	cutoff := now.AddDate(0, 0, -30)

	mock.ExpectExec(`DELETE FROM process_logs WHERE start_time < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := s.DeleteStartedBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}

func TestEnsureSchema(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS process_control`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS process_logs`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS idx_process_logs_run_start`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, EnsureSchema(context.Background(), db, "process_control", "process_logs"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaRejectsBadNames(t *testing.T) {
	db, _ := newMock(t)
	err := EnsureSchema(context.Background(), db, "control; DROP TABLE x", "process_logs")
	assert.Error(t, err)
}
