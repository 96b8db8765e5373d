// pkg/model/runlog.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// StageStatus is the completion status of a single stage log
type StageStatus string

const (
	StageInProgress StageStatus = "IN_PROGRESS"
	StageDone       StageStatus = "DONE"
	StageError      StageStatus = "ERROR"
)

// Stage names written by the orchestrator
const (
	StageLock       = "LOCK"
	StageValidate   = "VALIDATE"
	StageTransform  = "TRANSFORM"
	StageClassify   = "CLASSIFY"
	StageIndex      = "INDEX"
	StageStatistics = "STATISTICS"
	StageCleanup    = "CLEANUP"
)

// RunLog is one audit entry for one stage of one run
type RunLog struct {
	ID              string      `bson:"_id" json:"id" db:"id"`
	RunID           string      `bson:"runId" json:"runId" db:"run_id"`
	Stage           string      `bson:"stage" json:"stage" db:"stage"`
	Message         string      `bson:"message" json:"message" db:"message"`
	Status          StageStatus `bson:"status" json:"status" db:"status"`
	StartTime       time.Time   `bson:"startTime" json:"startTime" db:"start_time"`
	EndTime         *time.Time  `bson:"endTime,omitempty" json:"endTime,omitempty" db:"end_time"`
	DurationSeconds *float64    `bson:"durationSeconds,omitempty" json:"durationSeconds,omitempty" db:"duration_seconds"`
}

// NewRunLog opens a stage log in progress
func NewRunLog(runID, stage, message string, now time.Time) *RunLog {
	return &RunLog{
		ID:        uuid.New().String(),
		RunID:     runID,
		Stage:     stage,
		Message:   message,
		Status:    StageInProgress,
		StartTime: now,
	}
}

// Completed reports whether the log already carries an end time
func (l *RunLog) Completed() bool {
	return l.EndTime != nil
}

// Complete marks the stage as done and calculates duration.
// An empty message keeps the message given at Begin.
func (l *RunLog) Complete(message string, now time.Time) {
	if message != "" {
		l.Message = message
	}
	l.finish(StageDone, now)
}

// CompleteWithError marks the stage as failed and appends the error to the message
func (l *RunLog) CompleteWithError(errMsg string, now time.Time) {
	l.Message = l.Message + " - ERROR: " + errMsg
	l.finish(StageError, now)
}

func (l *RunLog) finish(status StageStatus, now time.Time) {
	end := now
	seconds := float64(end.Sub(l.StartTime).Milliseconds()) / 1000.0
	if seconds < 0 {
		seconds = 0
	}
	l.EndTime = &end
	l.DurationSeconds = &seconds
	l.Status = status
}

// LogCounts aggregates run logs by status
type LogCounts struct {
	Total int64 `json:"total"`
	Error int64 `json:"error"`
	Done  int64 `json:"done"`
}
