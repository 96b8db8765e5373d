// pkg/stagelog/stagelog.go

// Package stagelog writes the append-only audit trail of pipeline stages.
package stagelog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/flat-ingress/pkg/model"
	"github.com/David-Botos/flat-ingress/pkg/store"
)

// ErrAlreadyCompleted is returned when completing a log that already has an end time
var ErrAlreadyCompleted = errors.New("stage log already completed")

// Logger persists one RunLog per stage
type Logger struct {
	store  store.RunLogStore
	clock  func() time.Time
	logger *zap.Logger
}

// NewLogger creates a stage logger over s
func NewLogger(s store.RunLogStore, logger *zap.Logger) *Logger {
	return &Logger{
		store:  s,
		clock:  time.Now,
		logger: logger.Named("stagelog"),
	}
}

// WithClock sets the time source for start and end times
func (l *Logger) WithClock(clock func() time.Time) *Logger {
	l.clock = clock
	return l
}

// Begin opens and persists an in-progress log for stage
func (l *Logger) Begin(ctx context.Context, runID, stage, message string) (*model.RunLog, error) {
	entry := model.NewRunLog(runID, stage, message, l.clock())
	if err := l.store.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to begin stage %s: %w", stage, err)
	}

	l.logger.Info("Stage started",
		zap.String("runId", runID),
		zap.String("stage", stage),
		zap.String("message", message))
	return entry, nil
}

// CompleteOK marks the log done. An empty message keeps the original one.
func (l *Logger) CompleteOK(ctx context.Context, entry *model.RunLog, message string) error {
	if entry.Completed() {
		return ErrAlreadyCompleted
	}
	entry.Complete(message, l.clock())
	if err := l.store.Update(ctx, entry); err != nil {
		return fmt.Errorf("failed to complete stage %s: %w", entry.Stage, err)
	}

	l.logger.Info("Stage completed",
		zap.String("runId", entry.RunID),
		zap.String("stage", entry.Stage),
		zap.Float64("durationSeconds", *entry.DurationSeconds))
	return nil
}

// CompleteError marks the log failed and appends errMsg to its message
func (l *Logger) CompleteError(ctx context.Context, entry *model.RunLog, errMsg string) error {
	if entry.Completed() {
		return ErrAlreadyCompleted
	}
	entry.CompleteWithError(errMsg, l.clock())
	if err := l.store.Update(ctx, entry); err != nil {
		return fmt.Errorf("failed to record error for stage %s: %w", entry.Stage, err)
	}

	l.logger.Error("Stage failed",
		zap.String("runId", entry.RunID),
		zap.String("stage", entry.Stage),
		zap.String("error", errMsg),
		zap.Float64("durationSeconds", *entry.DurationSeconds))
	return nil
}

// ForRun returns the run's logs ordered by start time
func (l *Logger) ForRun(ctx context.Context, runID string) ([]model.RunLog, error) {
	logs, err := l.store.ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs for run %s: %w", runID, err)
	}
	return logs, nil
}

// Counts returns log totals by status
func (l *Logger) Counts(ctx context.Context) (model.LogCounts, error) {
	counts, err := l.store.CountByStatus(ctx)
	if err != nil {
		return counts, fmt.Errorf("failed to count logs: %w", err)
	}
	return counts, nil
}

// PurgeOlderThan deletes logs started more than retention ago
func (l *Logger) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := l.clock().Add(-retention)
	n, err := l.store.DeleteStartedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge logs before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	l.logger.Info("Purged old stage logs",
		zap.Int64("deleted", n),
		zap.Time("cutoff", cutoff))
	return n, nil
}
