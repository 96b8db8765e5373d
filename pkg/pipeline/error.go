// pkg/pipeline/error.go
package pipeline

import "fmt"

// Action defines what the orchestrator does after a stage error
type Action int

const (
	// ActionAbort stops before any mutation; the control record is left as is
	ActionAbort Action = iota
	// ActionFail stops the run and records the error on the control record
	ActionFail
	// ActionContinue logs the error on the stage and moves to the next stage
	ActionContinue
)

// String returns a string representation of the action
func (a Action) String() string {
	switch a {
	case ActionAbort:
		return "Abort"
	case ActionFail:
		return "Fail"
	case ActionContinue:
		return "Continue"
	default:
		return fmt.Sprintf("Unknown(%d)", a)
	}
}

// ErrorKind classifies run errors
type ErrorKind int

const (
	KindLockContention ErrorKind = iota
	KindLockedWithPriorError
	// KindLockFailure means the control record could not be read or written
	KindLockFailure
	KindValidationFailure
	KindTransformFailure
	KindClassificationFailure
	KindIndexBuildFailure
	KindStatisticsFailure
	KindCleanupFailure
	// KindAuditFailure means a stage log could not be persisted
	KindAuditFailure
)

// String returns a string representation of the error kind
func (k ErrorKind) String() string {
	switch k {
	case KindLockContention:
		return "LockContention"
	case KindLockedWithPriorError:
		return "LockedWithPriorError"
	case KindLockFailure:
		return "LockFailure"
	case KindValidationFailure:
		return "ValidationFailure"
	case KindTransformFailure:
		return "TransformFailure"
	case KindClassificationFailure:
		return "ClassificationFailure"
	case KindIndexBuildFailure:
		return "IndexBuildFailure"
	case KindStatisticsFailure:
		return "StatisticsFailure"
	case KindCleanupFailure:
		return "CleanupFailure"
	case KindAuditFailure:
		return "AuditFailure"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// Action returns the policy for the kind
func (k ErrorKind) Action() Action {
	switch k {
	case KindLockContention, KindLockedWithPriorError, KindLockFailure:
		return ActionAbort
	case KindIndexBuildFailure, KindCleanupFailure:
		return ActionContinue
	default:
		return ActionFail
	}
}

// Error is a stage failure carrying its kind
type Error struct {
	Kind  ErrorKind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
