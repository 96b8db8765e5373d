// pkg/stats/stats_test.go
package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/flat-ingress/pkg/model"
	"github.com/David-Botos/flat-ingress/pkg/store"
	"github.com/David-Botos/flat-ingress/pkg/store/memstore"
)

func TestPercentages(t *testing.T) {
	tests := []struct {
		name        string
		counts      store.ValidityCounts
		wantValid   float64
		wantInvalid float64
	}{
		{"empty", store.ValidityCounts{}, 0, 0},
		{"all valid", store.ValidityCounts{Total: 4, Valid: 4}, 100, 0},
		{"two of three", store.ValidityCounts{Total: 3, Valid: 2, Invalid: 1}, 66.67, 33.33},
		{"one of three", store.ValidityCounts{Total: 3, Valid: 1, Invalid: 2}, 33.33, 66.67},
		{"one of eight", store.ValidityCounts{Total: 8, Valid: 1, Invalid: 7}, 12.5, 87.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, i := Percentages(tt.counts)
			assert.Equal(t, tt.wantValid, v)
			assert.Equal(t, tt.wantInvalid, i)
		})
	}
}

func completedLog(stage string, start time.Time, d time.Duration) model.RunLog {
	l := model.NewRunLog("run-1", stage, stage, start)
	l.Complete("", start.Add(d))
	return *l
}

func TestElapsedSeconds(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	open := model.NewRunLog("run-1", model.StageStatistics, "", start)

	logs := []model.RunLog{
		completedLog(model.StageLock, start, 10*time.Millisecond),
		completedLog(model.StageTransform, start, 1240*time.Millisecond),
		completedLog(model.StageClassify, start, 2000*time.Millisecond),
		*open,
	}

	assert.Equal(t, 3.25, ElapsedSeconds(logs))

	stages := ExecutedStages(logs)
	require.Len(t, stages, 3)
	assert.Equal(t, model.StageLock, stages[0].Name)
	assert.Equal(t, start, stages[1].ExecutedAt)
}

func TestExecutedStagesUsesStartTime(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	stages := ExecutedStages([]model.RunLog{completedLog(model.StageTransform, start, 5*time.Second)})

	require.Len(t, stages, 1)
	assert.Equal(t, start, stages[0].ExecutedAt)
	assert.Equal(t, 5.0, stages[0].DurationSeconds)
}

func TestFinalize(t *testing.T) {
	mem := memstore.New()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC)

	mem.AddAvailability(model.AvailabilityRecord{Date: "2024-01-01", Status: model.AvailabilityReady})
	require.NoError(t, mem.InsertWorking(ctx, "temp_20240101", []model.WorkingDocument{
		{Validity: true}, {Validity: true}, {Validity: false},
	}))
	for _, l := range []model.RunLog{
		completedLog(model.StageLock, now, time.Second),
		completedLog(model.StageTransform, now.Add(time.Second), 500*time.Millisecond),
	} {
		l := l
		require.NoError(t, mem.Insert(ctx, &l))
	}

	c := NewCollector(mem, mem, mem, zap.NewNop()).WithClock(func() time.Time { return now })
	summary, err := c.Finalize(ctx, "run-1", "2024-01-01", "temp_20240101")
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.Total)
	assert.Equal(t, 1.5, summary.TotalElapsedSeconds)

	rec, ok := mem.Availability("2024-01-01")
	require.True(t, ok)
	assert.Equal(t, model.AvailabilityProcessed, rec.Status)
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, int64(3), rec.TotalCount)
	assert.Equal(t, int64(2), rec.ValidCount)
	assert.Equal(t, int64(1), rec.InvalidCount)
	assert.Equal(t, 66.67, rec.PercentValid)
	assert.Equal(t, 33.33, rec.PercentInvalid)
	assert.Equal(t, "20240101", rec.ProcessedDate)
	require.Len(t, rec.ExecutedStages, 2)
	assert.Equal(t, model.StageLock, rec.ExecutedStages[0].Name)

	// processed records are not matched twice
	_, err = c.Finalize(ctx, "run-2", "2024-01-01", "temp_20240101")
	require.ErrorIs(t, err, ErrNoReadyRecord)
}

func TestFinalizeEmptyPartition(t *testing.T) {
	mem := memstore.New()
	mem.AddAvailability(model.AvailabilityRecord{Date: "2024-01-02", Status: model.AvailabilityReady})

	c := NewCollector(mem, mem, mem, zap.NewNop())
	summary, err := c.Finalize(context.Background(), "run-1", "2024-01-02", "temp_20240102")
	require.NoError(t, err)

	assert.Equal(t, int64(0), summary.Total)
	assert.Equal(t, 0.0, summary.PercentValid)
	assert.Equal(t, 0.0, summary.PercentInvalid)
}
