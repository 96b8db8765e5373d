// pkg/store/store.go

// Package store declares the persistence collaborators the pipeline depends on.
// Implementations live in mongostore, pgstore and memstore.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/David-Botos/flat-ingress/pkg/model"
)

var (
	// ErrNotFound is returned when the requested record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a create hits an existing record or a
	// compare-and-swap finds a different version
	ErrConflict = errors.New("concurrent modification")
)

// ControlStore persists the singleton control record
type ControlStore interface {
	// Get returns the control record or ErrNotFound
	Get(ctx context.Context) (*model.ControlRecord, error)
	// Create inserts the control record, returning ErrConflict if one exists
	Create(ctx context.Context, rec *model.ControlRecord) error
	// CompareAndSwap replaces the record only if its stored version equals
	// rec.Version. On success rec.Version is incremented.
	CompareAndSwap(ctx context.Context, rec *model.ControlRecord) error
}

// RunLogStore persists stage audit entries
type RunLogStore interface {
	Insert(ctx context.Context, entry *model.RunLog) error
	Update(ctx context.Context, entry *model.RunLog) error
	// ListByRun returns the run's logs ordered by start time ascending
	ListByRun(ctx context.Context, runID string) ([]model.RunLog, error)
	CountByStatus(ctx context.Context) (model.LogCounts, error)
	// DeleteStartedBefore removes logs whose start time precedes cutoff
	DeleteStartedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AvailabilityStore reads and finalizes per-day availability records
type AvailabilityStore interface {
	// FindReady returns the record for date with status ready or ErrNotFound
	FindReady(ctx context.Context, date string) (*model.AvailabilityRecord, error)
	// MarkProcessed applies summary to the record for date with status ready.
	// It returns ErrNotFound when no such record matched.
	MarkProcessed(ctx context.Context, date string, summary model.AvailabilitySummary) error
}

// Cursor iterates documents one at a time. It matches *mongo.Cursor.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(v interface{}) error
	Err() error
	Close(ctx context.Context) error
}

// SourceReader streams raw payloads from the source partition
type SourceReader interface {
	// StreamSource returns a cursor decoding into model.RawRecord
	StreamSource(ctx context.Context) (Cursor, error)
}

// IndexSpec describes an index on a partition
type IndexSpec struct {
	Name   string
	Keys   []string
	Unique bool
	// Filter restricts a partial index to documents whose field equals the value
	Filter map[string]interface{}
}

// ValidityCounts are the working partition counts used for statistics
type ValidityCounts struct {
	Total   int64
	Valid   int64
	Invalid int64
}

// PartitionStore manages the date-stamped working, valid and invalid partitions
type PartitionStore interface {
	// StreamWorking returns a cursor decoding into model.WorkingDocument
	StreamWorking(ctx context.Context, partition string) (Cursor, error)
	InsertWorking(ctx context.Context, partition string, docs []model.WorkingDocument) error
	InsertValid(ctx context.Context, partition string, records []model.ValidRecord) error
	InsertInvalid(ctx context.Context, partition string, records []model.InvalidRecord) error
	Count(ctx context.Context, partition string) (int64, error)
	CountValidity(ctx context.Context, partition string) (ValidityCounts, error)
	EnsureIndex(ctx context.Context, partition string, spec IndexSpec) error
	Drop(ctx context.Context, partition string) error
}

// Pinger is implemented by anything with a reachable backend
type Pinger interface {
	Ping(ctx context.Context) error
}
