// pkg/lock/lock.go

// Package lock guards pipeline execution with the singleton control record.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/flat-ingress/pkg/model"
	"github.com/David-Botos/flat-ingress/pkg/store"
)

var (
	// ErrAlreadyRunning is returned when another run holds the lock
	ErrAlreadyRunning = errors.New("a run is already in progress")
	// ErrBlockedByError is returned while the last run ended in error and has not been reset
	ErrBlockedByError = errors.New("last run ended in error; reset required")
	// ErrNotOwner is returned when releasing a lock held by another run
	ErrNotOwner = errors.New("control record is owned by another run")
)

// maxWriteAttempts bounds retries of a release or reset that lost a version race
const maxWriteAttempts = 3

// Manager acquires and releases the single global run lock
type Manager struct {
	store  store.ControlStore
	clock  func() time.Time
	logger *zap.Logger
}

// NewManager creates a lock manager over s
func NewManager(s store.ControlStore, logger *zap.Logger) *Manager {
	return &Manager{
		store:  s,
		clock:  time.Now,
		logger: logger.Named("lock"),
	}
}

// WithClock sets the time source for UpdatedAt
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// Acquire marks runID as the running owner. It fails with ErrAlreadyRunning
// when a run is in progress (including one that won a concurrent race) and
// with ErrBlockedByError when the previous run failed.
func (m *Manager) Acquire(ctx context.Context, runID string) (*model.ControlRecord, error) {
	rec, err := m.store.Get(ctx)
	if errors.Is(err, store.ErrNotFound) {
		rec = model.NewControlRecord(runID, m.clock())
		if err := m.store.Create(ctx, rec); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return nil, ErrAlreadyRunning
			}
			return nil, fmt.Errorf("failed to create control record: %w", err)
		}
		m.logger.Info("Lock acquired", zap.String("runId", runID), zap.Bool("created", true))
		return rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read control record: %w", err)
	}

	switch rec.Status {
	case model.StatusRunning:
		m.logger.Warn("Lock held by another run",
			zap.String("runId", runID),
			zap.String("ownerRunId", rec.RunID))
		return nil, ErrAlreadyRunning
	case model.StatusError:
		m.logger.Warn("Lock blocked by a failed run",
			zap.String("runId", runID),
			zap.String("failedRunId", rec.RunID),
			zap.String("errorDetail", rec.ErrorDetail))
		return nil, ErrBlockedByError
	}

	rec.RunID = runID
	rec.SetStatus(model.StatusRunning, "", m.clock())
	if err := m.store.CompareAndSwap(ctx, rec); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("failed to update control record: %w", err)
	}

	m.logger.Info("Lock acquired", zap.String("runId", runID))
	return rec, nil
}

// Release sets the final status for runID. errorDetail is kept only for StatusError.
func (m *Manager) Release(ctx context.Context, runID string, status model.ControlStatus, errorDetail string) (*model.ControlRecord, error) {
	var rec *model.ControlRecord
	err := m.update(ctx, func(r *model.ControlRecord) error {
		if r.RunID != runID {
			return ErrNotOwner
		}
		r.SetStatus(status, errorDetail, m.clock())
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Lock released",
		zap.String("runId", runID),
		zap.String("status", string(status)))
	return rec, nil
}

// Reset forces the record back to Ready, clearing any error detail and keeping
// the last run id. It returns the status before the reset, or "" when no
// record exists.
func (m *Manager) Reset(ctx context.Context) (model.ControlStatus, error) {
	var previous model.ControlStatus
	err := m.update(ctx, func(r *model.ControlRecord) error {
		previous = r.Status
		r.SetStatus(model.StatusReady, "", m.clock())
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		m.logger.Info("Reset requested with no control record")
		return "", nil
	}
	if err != nil {
		return "", err
	}

	m.logger.Warn("Control record reset", zap.String("previousStatus", string(previous)))
	return previous, nil
}

// Current returns the control record
func (m *Manager) Current(ctx context.Context) (*model.ControlRecord, error) {
	return m.store.Get(ctx)
}

// update applies mutate to a fresh copy and writes it with compare-and-swap,
// retrying when another writer got there first
func (m *Manager) update(ctx context.Context, mutate func(*model.ControlRecord) error) error {
	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		rec, err := m.store.Get(ctx)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return err
			}
			return fmt.Errorf("failed to read control record: %w", err)
		}
		if err := mutate(rec); err != nil {
			return err
		}

		err = m.store.CompareAndSwap(ctx, rec)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("failed to update control record: %w", err)
		}
		lastErr = err
		m.logger.Debug("Control record changed concurrently, retrying", zap.Int("attempt", attempt+1))
	}
	return fmt.Errorf("failed to update control record after %d attempts: %w", maxWriteAttempts, lastErr)
}
