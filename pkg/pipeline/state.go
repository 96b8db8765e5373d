// pkg/pipeline/state.go
package pipeline

import "fmt"

// State is a step of the run state machine
type State int

const (
	StateIdle State = iota
	StateLocking
	StateValidating
	StateTransforming
	StateClassifying
	StateIndexing
	StateStatting
	StateFinalizing
	StateDone
	StateAborted
	StateFailed
)

// String returns a string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLocking:
		return "Locking"
	case StateValidating:
		return "Validating"
	case StateTransforming:
		return "Transforming"
	case StateClassifying:
		return "Classifying"
	case StateIndexing:
		return "Indexing"
	case StateStatting:
		return "Statting"
	case StateFinalizing:
		return "Finalizing"
	case StateDone:
		return "Done"
	case StateAborted:
		return "Aborted"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// Terminal reports whether no further transition follows s
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted || s == StateFailed
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Trigger identifies what started a run
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)
