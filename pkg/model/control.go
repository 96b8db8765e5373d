// pkg/model/control.go
package model

import "time"

// ControlRecordID is the fixed identifier of the singleton control record
const ControlRecordID = "flow-control"

// ControlStatus is the lifecycle status held by the control record
type ControlStatus string

const (
	StatusReady     ControlStatus = "READY"
	StatusRunning   ControlStatus = "RUNNING"
	StatusProcessed ControlStatus = "PROCESSED"
	StatusError     ControlStatus = "ERROR"
)

// IsValid reports whether s is one of the known statuses
func (s ControlStatus) IsValid() bool {
	switch s {
	case StatusReady, StatusRunning, StatusProcessed, StatusError:
		return true
	}
	return false
}

// ControlRecord is the single global lock and status record for pipeline runs
type ControlRecord struct {
	ID          string        `bson:"_id" json:"id" db:"id"`
	Status      ControlStatus `bson:"status" json:"status" db:"status"`
	RunID       string        `bson:"runId" json:"runId" db:"run_id"`
	UpdatedAt   time.Time     `bson:"updatedAt" json:"updatedAt" db:"updated_at"`
	ErrorDetail string        `bson:"errorDetail,omitempty" json:"errorDetail,omitempty" db:"error_detail"`
	// Version increases on every write and guards compare-and-swap updates
	Version int64 `bson:"version" json:"version" db:"version"`
}

// NewControlRecord creates the control record for a run that found no prior record
func NewControlRecord(runID string, now time.Time) *ControlRecord {
	return &ControlRecord{
		ID:        ControlRecordID,
		Status:    StatusRunning,
		RunID:     runID,
		UpdatedAt: now,
		Version:   1,
	}
}

// SetStatus changes the status and refreshes UpdatedAt.
// The error detail is kept only for StatusError.
func (c *ControlRecord) SetStatus(status ControlStatus, detail string, now time.Time) {
	c.Status = status
	c.UpdatedAt = now
	if status == StatusError {
		c.ErrorDetail = detail
	} else {
		c.ErrorDetail = ""
	}
}
