// pkg/pipeline/orchestrator.go

// Package pipeline runs the migration state machine: lock, validate, transform,
// classify, index, collect statistics and finalize.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/David-Botos/flat-ingress/pkg/classifier"
	"github.com/David-Botos/flat-ingress/pkg/indexer"
	"github.com/David-Botos/flat-ingress/pkg/lock"
	"github.com/David-Botos/flat-ingress/pkg/model"
	"github.com/David-Botos/flat-ingress/pkg/stagelog"
	"github.com/David-Botos/flat-ingress/pkg/stats"
	"github.com/David-Botos/flat-ingress/pkg/store"
)

// Dependencies are the collaborators a run drives
type Dependencies struct {
	Locks        *lock.Manager
	Stages       *stagelog.Logger
	Availability store.AvailabilityStore
	Projector    classifier.Projector
	Classifier   *classifier.Classifier
	Verifier     *classifier.Verifier
	Indexes      *indexer.Builder
	Stats        *stats.Collector
	Partitions   store.PartitionStore
}

// Options configure partition naming, the run date timezone and log retention
type Options struct {
	WorkingPrefix string
	ValidPrefix   string
	InvalidPrefix string
	Location      *time.Location
	LogRetention  time.Duration
}

// Partitions are the date-stamped collections of one run
type Partitions struct {
	Date    string `json:"date"`
	Working string `json:"working"`
	Valid   string `json:"valid"`
	Invalid string `json:"invalid"`
}

// Result describes how a run ended
type Result struct {
	RunID       string                     `json:"runId"`
	Trigger     Trigger                    `json:"trigger"`
	State       State                      `json:"state"`
	Transitions []State                    `json:"transitions"`
	Partitions  *Partitions                `json:"partitions,omitempty"`
	Summary     *model.AvailabilitySummary `json:"summary,omitempty"`
	Control     *model.ControlRecord       `json:"control,omitempty"`
}

// Overview is the last run's status with log totals
type Overview struct {
	RunID       string          `json:"runId,omitempty"`
	Status      string          `json:"status,omitempty"`
	UpdatedAt   *time.Time      `json:"updatedAt,omitempty"`
	ErrorDetail string          `json:"errorDetail,omitempty"`
	Logs        model.LogCounts `json:"logs"`
}

// Orchestrator runs the pipeline. Scheduled and manual triggers share Run;
// the lock decides which one proceeds.
type Orchestrator struct {
	deps     Dependencies
	opts     Options
	clock    func() time.Time
	newRunID func() string
	logger   *zap.Logger
}

// New creates an orchestrator
func New(deps Dependencies, opts Options, logger *zap.Logger) *Orchestrator {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Orchestrator{
		deps:     deps,
		opts:     opts,
		clock:    time.Now,
		newRunID: func() string { return uuid.New().String() },
		logger:   logger.Named("orchestrator"),
	}
}

// WithClock sets the time source used to pick the run date
func (o *Orchestrator) WithClock(clock func() time.Time) *Orchestrator {
	o.clock = clock
	return o
}

// PartitionsFor names the partitions for the day containing t in the configured timezone
func (o *Orchestrator) PartitionsFor(t time.Time) Partitions {
	local := t.In(o.opts.Location)
	suffix := local.Format(model.PartitionDateLayout)
	return Partitions{
		Date:    local.Format(model.DateLayout),
		Working: o.opts.WorkingPrefix + "_" + suffix,
		Valid:   o.opts.ValidPrefix + "_" + suffix,
		Invalid: o.opts.InvalidPrefix + "_" + suffix,
	}
}

// Run executes one pass of the pipeline. Aborted and Failed runs return an
// error that unwraps to *Error. The run ignores cancellation of ctx once
// started; store client timeouts still apply.
func (o *Orchestrator) Run(ctx context.Context, trigger Trigger) (*Result, error) {
	ctx = context.WithoutCancel(ctx)

	res := &Result{
		RunID:   o.newRunID(),
		Trigger: trigger,
		State:   StateIdle,
	}
	logger := o.logger.With(zap.String("runId", res.RunID), zap.String("trigger", string(trigger)))
	logger.Info("Run triggered")

	// Locking
	o.enter(res, StateLocking)
	if _, err := o.deps.Locks.Acquire(ctx, res.RunID); err != nil {
		kind := KindLockFailure
		switch {
		case errors.Is(err, lock.ErrAlreadyRunning):
			kind = KindLockContention
		case errors.Is(err, lock.ErrBlockedByError):
			kind = KindLockedWithPriorError
		}
		o.enter(res, StateAborted)
		if current, getErr := o.deps.Locks.Current(ctx); getErr == nil {
			res.Control = current
		}
		logger.Warn("Run aborted", zap.String("kind", kind.String()), zap.Error(err))
		return res, &Error{Kind: kind, Stage: model.StageLock, Err: err}
	}
	if err := o.stage(ctx, res, model.StageLock, "Lock acquired", KindAuditFailure, func(context.Context) (string, error) {
		return "", nil
	}); err != nil {
		return o.fail(ctx, res, err)
	}

	p := o.PartitionsFor(o.clock())
	res.Partitions = &p
	logger = logger.With(zap.String("date", p.Date))

	// Validating
	o.enter(res, StateValidating)
	ready := false
	err := o.stage(ctx, res, model.StageValidate, "Checking availability for "+p.Date, KindValidationFailure,
		func(ctx context.Context) (string, error) {
			_, err := o.deps.Availability.FindReady(ctx, p.Date)
			if errors.Is(err, store.ErrNotFound) {
				return "No ready data for " + p.Date, nil
			}
			if err != nil {
				return "", err
			}
			ready = true
			return "Data ready for " + p.Date, nil
		})
	if err != nil {
		return o.fail(ctx, res, err)
	}
	if !ready {
		logger.Info("No data available, finishing run")
		o.enter(res, StateFinalizing)
		return o.finish(ctx, res, model.StatusReady)
	}

	// Transforming
	o.enter(res, StateTransforming)
	err = o.stage(ctx, res, model.StageTransform, "Projecting source into "+p.Working, KindTransformFailure,
		func(ctx context.Context) (string, error) {
			n, err := o.deps.Projector.Project(ctx, p.Working)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Projected %d records into %s", n, p.Working), nil
		})
	if err != nil {
		return o.fail(ctx, res, err)
	}

	// Classifying
	o.enter(res, StateClassifying)
	err = o.stage(ctx, res, model.StageClassify, "Classifying "+p.Working, KindClassificationFailure,
		func(ctx context.Context) (string, error) {
			cr, err := o.deps.Classifier.Run(ctx, p.Working, p.Valid, p.Invalid)
			if err != nil {
				return "", err
			}
			msg := fmt.Sprintf("Classified %d records: %d valid, %d invalid", cr.Processed, cr.Valid, cr.Invalid)
			if o.deps.Verifier != nil {
				report, verr := o.deps.Verifier.VerifyCounts(ctx, cr, p.Valid, p.Invalid)
				switch {
				case verr != nil:
					logger.Warn("Could not verify classified counts", zap.Error(verr))
				case !report.CountMatches:
					msg += fmt.Sprintf(" (partition count differs by %d)", report.Discrepancy())
				}
			}
			return msg, nil
		})
	if err != nil {
		return o.fail(ctx, res, err)
	}

	// Indexing
	o.enter(res, StateIndexing)
	err = o.stage(ctx, res, model.StageIndex, "Building indexes", KindIndexBuildFailure,
		func(ctx context.Context) (string, error) {
			if err := o.deps.Indexes.EnsureAll(ctx, p.Working, p.Valid); err != nil {
				return "", err
			}
			return "Indexes ready", nil
		})
	if err != nil && !o.continues(logger, err) {
		return o.fail(ctx, res, err)
	}

	// Statting
	o.enter(res, StateStatting)
	err = o.stage(ctx, res, model.StageStatistics, "Collecting statistics", KindStatisticsFailure,
		func(ctx context.Context) (string, error) {
			summary, err := o.deps.Stats.Finalize(ctx, res.RunID, p.Date, p.Working)
			if err != nil {
				return "", err
			}
			res.Summary = &summary
			return fmt.Sprintf("Total %d, valid %d (%.2f%%), invalid %d (%.2f%%)",
				summary.Total, summary.Valid, summary.PercentValid, summary.Invalid, summary.PercentInvalid), nil
		})
	if err != nil {
		return o.fail(ctx, res, err)
	}

	// Finalizing
	o.enter(res, StateFinalizing)
	err = o.stage(ctx, res, model.StageCleanup, "Dropping "+p.Working, KindCleanupFailure,
		func(ctx context.Context) (string, error) {
			if err := o.deps.Partitions.Drop(ctx, p.Working); err != nil {
				return "", err
			}
			return "Dropped " + p.Working, nil
		})
	if err != nil && !o.continues(logger, err) {
		return o.fail(ctx, res, err)
	}

	return o.finish(ctx, res, model.StatusProcessed)
}

// stage wraps fn in a RunLog. fn returns the completion message; an empty
// message keeps the one given at Begin.
func (o *Orchestrator) stage(
	ctx context.Context,
	res *Result,
	name, message string,
	kind ErrorKind,
	fn func(ctx context.Context) (string, error),
) error {
	entry, err := o.deps.Stages.Begin(ctx, res.RunID, name, message)
	if err != nil {
		return &Error{Kind: KindAuditFailure, Stage: name, Err: err}
	}

	done, runErr := fn(ctx)
	if runErr != nil {
		if logErr := o.deps.Stages.CompleteError(ctx, entry, runErr.Error()); logErr != nil {
			o.logger.Error("Failed to record stage error",
				zap.String("runId", res.RunID),
				zap.String("stage", name),
				zap.Error(logErr))
		}
		return &Error{Kind: kind, Stage: name, Err: runErr}
	}

	if err := o.deps.Stages.CompleteOK(ctx, entry, done); err != nil {
		return &Error{Kind: KindAuditFailure, Stage: name, Err: err}
	}
	return nil
}

// continues reports whether err's kind lets the run go on, logging it if so
func (o *Orchestrator) continues(logger *zap.Logger, err error) bool {
	var runErr *Error
	if errors.As(err, &runErr) && runErr.Kind.Action() == ActionContinue {
		logger.Warn("Stage failed, continuing",
			zap.String("stage", runErr.Stage),
			zap.String("kind", runErr.Kind.String()),
			zap.Error(runErr.Err))
		return true
	}
	return false
}

// fail records runErr on the control record. Data already written is kept.
func (o *Orchestrator) fail(ctx context.Context, res *Result, runErr error) (*Result, error) {
	o.enter(res, StateFailed)
	o.logger.Error("Run failed", zap.String("runId", res.RunID), zap.Error(runErr))

	rec, err := o.deps.Locks.Release(ctx, res.RunID, model.StatusError, runErr.Error())
	if err != nil {
		o.logger.Error("Failed to release lock after failure", zap.String("runId", res.RunID), zap.Error(err))
		return res, errors.Join(runErr, fmt.Errorf("failed to release lock: %w", err))
	}
	res.Control = rec
	return res, runErr
}

// finish releases the lock with status and ends the run in Done
func (o *Orchestrator) finish(ctx context.Context, res *Result, status model.ControlStatus) (*Result, error) {
	rec, err := o.deps.Locks.Release(ctx, res.RunID, status, "")
	if err != nil {
		o.enter(res, StateFailed)
		o.logger.Error("Failed to release lock", zap.String("runId", res.RunID), zap.Error(err))
		return res, fmt.Errorf("failed to release lock: %w", err)
	}
	res.Control = rec
	o.enter(res, StateDone)

	o.logger.Info("Run complete",
		zap.String("runId", res.RunID),
		zap.String("status", string(status)),
		zap.Int("transitions", len(res.Transitions)))
	return res, nil
}

func (o *Orchestrator) enter(res *Result, s State) {
	res.State = s
	res.Transitions = append(res.Transitions, s)
	o.logger.Debug("State transition", zap.String("runId", res.RunID), zap.Stringer("state", s))
}

// Status returns the control record
func (o *Orchestrator) Status(ctx context.Context) (*model.ControlRecord, error) {
	return o.deps.Locks.Current(ctx)
}

// Logs returns a run's stage logs ordered by start time
func (o *Orchestrator) Logs(ctx context.Context, runID string) ([]model.RunLog, error) {
	return o.deps.Stages.ForRun(ctx, runID)
}

// Reset forces the control record back to Ready and returns the prior status
func (o *Orchestrator) Reset(ctx context.Context) (model.ControlStatus, error) {
	return o.deps.Locks.Reset(ctx)
}

// Overview returns the control record summary with log totals
func (o *Orchestrator) Overview(ctx context.Context) (*Overview, error) {
	ov := &Overview{}

	rec, err := o.deps.Locks.Current(ctx)
	switch {
	case err == nil:
		updated := rec.UpdatedAt
		ov.RunID = rec.RunID
		ov.Status = string(rec.Status)
		ov.UpdatedAt = &updated
		ov.ErrorDetail = rec.ErrorDetail
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	counts, err := o.deps.Stages.Counts(ctx)
	if err != nil {
		return nil, err
	}
	ov.Logs = counts
	return ov, nil
}

// PurgeLogs deletes stage logs older than the configured retention
func (o *Orchestrator) PurgeLogs(ctx context.Context) (int64, error) {
	if o.opts.LogRetention <= 0 {
		return 0, nil
	}
	return o.deps.Stages.PurgeOlderThan(ctx, o.opts.LogRetention)
}
