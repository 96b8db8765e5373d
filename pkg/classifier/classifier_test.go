// pkg/classifier/classifier_test.go
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/flat-ingress/pkg/model"
	"github.com/David-Botos/flat-ingress/pkg/store"
	"github.com/David-Botos/flat-ingress/pkg/store/memstore"
)

const (
	working = "temp_20240101"
	valid   = "valid_20240101"
	invalid = "invalid_20240101"
)

// countingStore records the size of every bulk write
type countingStore struct {
	*memstore.Store
	validWrites   []int
	invalidWrites []int
}

func (c *countingStore) InsertValid(ctx context.Context, partition string, records []model.ValidRecord) error {
	c.validWrites = append(c.validWrites, len(records))
	return c.Store.InsertValid(ctx, partition, records)
}

func (c *countingStore) InsertInvalid(ctx context.Context, partition string, records []model.InvalidRecord) error {
	c.invalidWrites = append(c.invalidWrites, len(records))
	return c.Store.InsertInvalid(ctx, partition, records)
}

var _ store.PartitionStore = (*countingStore)(nil)

func seedWorking(t *testing.T, s *memstore.Store, validCount, invalidCount int) {
	t.Helper()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := make([]model.WorkingDocument, 0, validCount+invalidCount)
	// interleave so flush boundaries cut across both buckets
	for i := 0; i < validCount || i < invalidCount; i++ {
		if i < validCount {
			docs = append(docs, Project(payload("01", fmt.Sprintf("%011d", i), fmt.Sprintf("%016d", i), "V", "D", "S", "N", "A"), now))
		}
		if i < invalidCount {
			docs = append(docs, Project(strings.Repeat("x", 10+i%50), now))
		}
	}
	require.NoError(t, s.InsertWorking(context.Background(), working, docs))
}

func TestNewClassifierRejectsNonPositiveBatch(t *testing.T) {
	_, err := NewClassifier(memstore.New(), 0, zap.NewNop())
	require.ErrorIs(t, err, ErrInvalidBatchSize)

	_, err = NewStreamProjector(memstore.New(), memstore.New(), -1, zap.NewNop())
	require.ErrorIs(t, err, ErrInvalidBatchSize)
}

func TestClassifierRun(t *testing.T) {
	tests := []struct {
		name         string
		valid        int
		invalid      int
		batchSize    int
		validWrites  []int
		invalidWrite []int
	}{
		{"empty partition", 0, 0, 10, nil, nil},
		{"smaller than batch", 2, 1, 10, []int{2}, []int{1}},
		// 10 docs interleaved v,i,v,i...; flush at 4 and 8, tail 2
		{"batch boundaries", 5, 5, 4, []int{2, 2, 1}, []int{2, 2, 1}},
		// all valid: invalid buffer never written
		{"only valid", 6, 0, 3, []int{3, 3}, nil},
		{"batch of one", 2, 2, 1, []int{1, 1}, []int{1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := memstore.New()
			seedWorking(t, mem, tt.valid, tt.invalid)
			cs := &countingStore{Store: mem}

			c, err := NewClassifier(cs, tt.batchSize, zap.NewNop())
			require.NoError(t, err)

			res, err := c.Run(context.Background(), working, valid, invalid)
			require.NoError(t, err)

			assert.Equal(t, int64(tt.valid+tt.invalid), res.Processed)
			assert.Equal(t, int64(tt.valid), res.Valid)
			assert.Equal(t, int64(tt.invalid), res.Invalid)
			assert.Equal(t, tt.validWrites, cs.validWrites)
			assert.Equal(t, tt.invalidWrite, cs.invalidWrites)

			for _, n := range append(cs.validWrites, cs.invalidWrites...) {
				assert.LessOrEqual(t, n, tt.batchSize)
			}
			assert.Len(t, mem.Valid(valid), tt.valid)
			assert.Len(t, mem.Invalid(invalid), tt.invalid)
		})
	}
}

func TestClassifierKeepsFlushedBatchesOnCursorFailure(t *testing.T) {
	mem := memstore.New()
	seedWorking(t, mem, 5, 5)
	mem.FailWorkingCursorAfter(6, errors.New("connection reset"))

	c, err := NewClassifier(mem, 4, zap.NewNop())
	require.NoError(t, err)

	res, err := c.Run(context.Background(), working, valid, invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	// the first batch of four was written before the failure
	assert.Equal(t, int64(6), res.Processed)
	assert.Len(t, mem.Valid(valid), 2)
	assert.Len(t, mem.Invalid(invalid), 2)
}

func TestClassifierWriteFailure(t *testing.T) {
	mem := memstore.New()
	seedWorking(t, mem, 3, 0)
	mem.FailOn("InsertValid", errors.New("disk full"))

	c, err := NewClassifier(mem, 10, zap.NewNop())
	require.NoError(t, err)

	_, err = c.Run(context.Background(), working, valid, invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write valid batch")
}

func TestStreamProjector(t *testing.T) {
	mem := memstore.New()
	a := payload("01", "11111111111", "4111111111111111", "V", "A", "S", "N", "1")
	b := strings.Repeat("b", 50)
	mem.AddSource(a, b, a, b, a)

	now := time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)
	p, err := NewStreamProjector(mem, mem, 2, zap.NewNop())
	require.NoError(t, err)
	p.WithClock(func() time.Time { return now })

	n, err := p.Project(context.Background(), working)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	counts, err := mem.CountValidity(context.Background(), working)
	require.NoError(t, err)
	assert.Equal(t, store.ValidityCounts{Total: 5, Valid: 3, Invalid: 2}, counts)

	for _, doc := range mem.Working(working) {
		assert.Equal(t, now, doc.InsertedAt)
	}
}

func TestVerifier(t *testing.T) {
	mem := memstore.New()
	seedWorking(t, mem, 2, 1)

	c, err := NewClassifier(mem, 10, zap.NewNop())
	require.NoError(t, err)
	res, err := c.Run(context.Background(), working, valid, invalid)
	require.NoError(t, err)

	v := NewVerifier(mem, zap.NewNop())
	report, err := v.VerifyCounts(context.Background(), res, valid, invalid)
	require.NoError(t, err)
	assert.True(t, report.CountMatches)
	assert.Equal(t, int64(0), report.Discrepancy())

	// leftovers from an earlier attempt the same day
	require.NoError(t, mem.InsertInvalid(context.Background(), invalid, []model.InvalidRecord{{Original: "old"}}))
	report, err = v.VerifyCounts(context.Background(), res, valid, invalid)
	require.NoError(t, err)
	assert.False(t, report.CountMatches)
	assert.Equal(t, int64(1), report.Discrepancy())
}
