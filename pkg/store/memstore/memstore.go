// pkg/store/memstore/memstore.go

// Package memstore is an in-memory test fake of every store interface.
// It adds failure injection and inspection helpers for tests and holds
// nothing across restarts, so it is not meant to be wired into cmd/.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/David-Botos/flat-ingress/pkg/model"
	"github.com/David-Botos/flat-ingress/pkg/store"
)

// Store holds control, log, availability, source and partition data in memory
type Store struct {
	mu sync.Mutex

	control      *model.ControlRecord
	logs         map[string]model.RunLog
	availability []model.AvailabilityRecord
	source       []model.RawRecord

	working map[string][]model.WorkingDocument
	valid   map[string][]model.ValidRecord
	invalid map[string][]model.InvalidRecord
	indexes map[string][]store.IndexSpec

	failures map[string]error

	cursorFailAfter int
	cursorErr       error
}

var (
	_ store.ControlStore      = (*Store)(nil)
	_ store.RunLogStore       = (*Store)(nil)
	_ store.AvailabilityStore = (*Store)(nil)
	_ store.SourceReader      = (*Store)(nil)
	_ store.PartitionStore    = (*Store)(nil)
	_ store.Pinger            = (*Store)(nil)
)

// New creates an empty store
func New() *Store {
	return &Store{
		logs:     make(map[string]model.RunLog),
		working:  make(map[string][]model.WorkingDocument),
		valid:    make(map[string][]model.ValidRecord),
		invalid:  make(map[string][]model.InvalidRecord),
		indexes:  make(map[string][]store.IndexSpec),
		failures: make(map[string]error),

		cursorFailAfter: -1,
	}
}

// FailOn makes the named operation (a method name such as "InsertValid") return err.
// A nil err clears the failure.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// FailWorkingCursorAfter makes working partition cursors stop with err after
// yielding n documents
func (s *Store) FailWorkingCursorAfter(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursorFailAfter = n
	s.cursorErr = err
}

func (s *Store) fail(op string) error {
	return s.failures[op]
}

// Ping always succeeds unless failed with FailOn("Ping")
func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail("Ping")
}

// ----- control -----

// Get returns a copy of the control record
func (s *Store) Get(ctx context.Context) (*model.ControlRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Get"); err != nil {
		return nil, err
	}
	if s.control == nil {
		return nil, store.ErrNotFound
	}
	rec := *s.control
	return &rec, nil
}

// Create stores the control record if none exists
func (s *Store) Create(ctx context.Context, rec *model.ControlRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Create"); err != nil {
		return err
	}
	if s.control != nil {
		return store.ErrConflict
	}
	cp := *rec
	s.control = &cp
	return nil
}

// CompareAndSwap replaces the control record when versions match
func (s *Store) CompareAndSwap(ctx context.Context, rec *model.ControlRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CompareAndSwap"); err != nil {
		return err
	}
	if s.control == nil || s.control.Version != rec.Version {
		return store.ErrConflict
	}
	cp := *rec
	cp.Version++
	s.control = &cp
	rec.Version = cp.Version
	return nil
}

// SetControl seeds the control record
func (s *Store) SetControl(rec model.ControlRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.control = &rec
}

// ----- run logs -----

// Insert stores a new log entry
func (s *Store) Insert(ctx context.Context, entry *model.RunLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Insert"); err != nil {
		return err
	}
	if _, ok := s.logs[entry.ID]; ok {
		return store.ErrConflict
	}
	s.logs[entry.ID] = copyLog(*entry)
	return nil
}

// Update replaces an existing log entry
func (s *Store) Update(ctx context.Context, entry *model.RunLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Update"); err != nil {
		return err
	}
	if _, ok := s.logs[entry.ID]; !ok {
		return store.ErrNotFound
	}
	s.logs[entry.ID] = copyLog(*entry)
	return nil
}

// ListByRun returns the run's logs ordered by start time
func (s *Store) ListByRun(ctx context.Context, runID string) ([]model.RunLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListByRun"); err != nil {
		return nil, err
	}
	out := make([]model.RunLog, 0)
	for _, l := range s.logs {
		if l.RunID == runID {
			out = append(out, copyLog(l))
		}
	}
	sortLogs(out)
	return out, nil
}

// CountByStatus counts logs by status
func (s *Store) CountByStatus(ctx context.Context) (model.LogCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts model.LogCounts
	if err := s.fail("CountByStatus"); err != nil {
		return counts, err
	}
	for _, l := range s.logs {
		counts.Total++
		switch l.Status {
		case model.StageError:
			counts.Error++
		case model.StageDone:
			counts.Done++
		}
	}
	return counts, nil
}

// DeleteStartedBefore removes logs older than cutoff
func (s *Store) DeleteStartedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteStartedBefore"); err != nil {
		return 0, err
	}
	var n int64
	for id, l := range s.logs {
		if l.StartTime.Before(cutoff) {
			delete(s.logs, id)
			n++
		}
	}
	return n, nil
}

// Logs returns every stored log ordered by start time
func (s *Store) Logs() []model.RunLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.RunLog, 0, len(s.logs))
	for _, l := range s.logs {
		out = append(out, copyLog(l))
	}
	sortLogs(out)
	return out
}

func sortLogs(logs []model.RunLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].StartTime.Equal(logs[j].StartTime) {
			return logs[i].ID < logs[j].ID
		}
		return logs[i].StartTime.Before(logs[j].StartTime)
	})
}

func copyLog(l model.RunLog) model.RunLog {
	if l.EndTime != nil {
		end := *l.EndTime
		l.EndTime = &end
	}
	if l.DurationSeconds != nil {
		d := *l.DurationSeconds
		l.DurationSeconds = &d
	}
	return l
}

// ----- availability -----

// AddAvailability seeds an availability record
func (s *Store) AddAvailability(rec model.AvailabilityRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availability = append(s.availability, rec)
}

// Availability returns the first record for date regardless of status
func (s *Store) Availability(date string) (model.AvailabilityRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.availability {
		if r.Date == date {
			return r, true
		}
	}
	return model.AvailabilityRecord{}, false
}

// FindReady returns the ready record for date
func (s *Store) FindReady(ctx context.Context, date string) (*model.AvailabilityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("FindReady"); err != nil {
		return nil, err
	}
	if i := s.readyIndex(date); i >= 0 {
		rec := s.availability[i]
		return &rec, nil
	}
	return nil, store.ErrNotFound
}

// MarkProcessed applies summary to the ready record for date
func (s *Store) MarkProcessed(ctx context.Context, date string, summary model.AvailabilitySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("MarkProcessed"); err != nil {
		return err
	}
	i := s.readyIndex(date)
	if i < 0 {
		return store.ErrNotFound
	}
	summary.Apply(&s.availability[i])
	return nil
}

func (s *Store) readyIndex(date string) int {
	for i, r := range s.availability {
		if r.Date == date && r.Status == model.AvailabilityReady {
			return i
		}
	}
	return -1
}

// ----- source -----

// AddSource appends raw payloads to the source partition
func (s *Store) AddSource(payloads ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range payloads {
		s.source = append(s.source, model.RawRecord{Payload: p})
	}
}

// StreamSource returns a cursor over the source payloads
func (s *Store) StreamSource(ctx context.Context) (store.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("StreamSource"); err != nil {
		return nil, err
	}
	items := make([]interface{}, len(s.source))
	for i, r := range s.source {
		items[i] = r
	}
	return &cursor{items: items, pos: -1, failAt: -1}, nil
}

// ----- partitions -----

// StreamWorking returns a cursor over the working partition
func (s *Store) StreamWorking(ctx context.Context, partition string) (store.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("StreamWorking"); err != nil {
		return nil, err
	}
	docs := s.working[partition]
	items := make([]interface{}, len(docs))
	for i, d := range docs {
		items[i] = d
	}
	return &cursor{items: items, pos: -1, failAt: s.cursorFailAfter, failErr: s.cursorErr}, nil
}

// InsertWorking appends working documents
func (s *Store) InsertWorking(ctx context.Context, partition string, docs []model.WorkingDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertWorking"); err != nil {
		return err
	}
	s.working[partition] = append(s.working[partition], docs...)
	return nil
}

// InsertValid appends valid records, honoring unique indexes already built
func (s *Store) InsertValid(ctx context.Context, partition string, records []model.ValidRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertValid"); err != nil {
		return err
	}
	for _, spec := range s.indexes[partition] {
		if spec.Unique {
			if err := checkUnique(spec, append(append([]model.ValidRecord{}, s.valid[partition]...), records...)); err != nil {
				return err
			}
		}
	}
	s.valid[partition] = append(s.valid[partition], records...)
	return nil
}

// InsertInvalid appends invalid records
func (s *Store) InsertInvalid(ctx context.Context, partition string, records []model.InvalidRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertInvalid"); err != nil {
		return err
	}
	s.invalid[partition] = append(s.invalid[partition], records...)
	return nil
}

// Count returns the document count of partition
func (s *Store) Count(ctx context.Context, partition string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Count"); err != nil {
		return 0, err
	}
	return int64(len(s.working[partition]) + len(s.valid[partition]) + len(s.invalid[partition])), nil
}

// CountValidity counts the working partition by validity flag
func (s *Store) CountValidity(ctx context.Context, partition string) (store.ValidityCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts store.ValidityCounts
	if err := s.fail("CountValidity"); err != nil {
		return counts, err
	}
	for _, d := range s.working[partition] {
		counts.Total++
		if d.Validity {
			counts.Valid++
		} else {
			counts.Invalid++
		}
	}
	return counts, nil
}

// EnsureIndex records the index. A unique index over existing duplicates fails.
func (s *Store) EnsureIndex(ctx context.Context, partition string, spec store.IndexSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("EnsureIndex"); err != nil {
		return err
	}
	for _, existing := range s.indexes[partition] {
		if existing.Name == spec.Name {
			return nil
		}
	}
	if spec.Unique {
		if err := checkUnique(spec, s.valid[partition]); err != nil {
			return err
		}
	}
	s.indexes[partition] = append(s.indexes[partition], spec)
	return nil
}

// Drop removes the partition and its indexes
func (s *Store) Drop(ctx context.Context, partition string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Drop"); err != nil {
		return err
	}
	delete(s.working, partition)
	delete(s.valid, partition)
	delete(s.invalid, partition)
	delete(s.indexes, partition)
	return nil
}

// Working returns a copy of the working partition
func (s *Store) Working(partition string) []model.WorkingDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.WorkingDocument(nil), s.working[partition]...)
}

// Valid returns a copy of the valid partition
func (s *Store) Valid(partition string) []model.ValidRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ValidRecord(nil), s.valid[partition]...)
}

// Invalid returns a copy of the invalid partition
func (s *Store) Invalid(partition string) []model.InvalidRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.InvalidRecord(nil), s.invalid[partition]...)
}

// Indexes returns the indexes recorded on partition
func (s *Store) Indexes(partition string) []store.IndexSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.IndexSpec(nil), s.indexes[partition]...)
}

// HasPartition reports whether any data or index exists under partition
func (s *Store) HasPartition(partition string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, w := s.working[partition]
	_, v := s.valid[partition]
	_, i := s.invalid[partition]
	_, x := s.indexes[partition]
	return w || v || i || x
}

func checkUnique(spec store.IndexSpec, records []model.ValidRecord) error {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		key := ""
		for _, k := range spec.Keys {
			key += "\x00" + validField(r, k)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate key for index %s", spec.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func validField(r model.ValidRecord, key string) string {
	switch key {
	case "corp":
		return r.Corp
	case "cpf":
		return r.CPF
	case "card_number":
		return r.CardNumber
	case "brand":
		return r.Brand
	case "product_desc":
		return r.ProductDesc
	case "product_limit":
		return r.ProductLimit
	case "global_limit":
		return r.GlobalLimit
	case "account":
		return r.Account
	}
	return ""
}
