// pkg/stats/stats.go

// Package stats computes run statistics and finalizes the availability record.
package stats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/flat-ingress/pkg/model"
	"github.com/David-Botos/flat-ingress/pkg/store"
)

// ErrNoReadyRecord is returned when no ready availability record matches the run date
var ErrNoReadyRecord = errors.New("no ready availability record for date")

// Round2 rounds to two decimal places
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Percentages returns the valid and invalid shares of total, rounded to two
// decimals. Both are 0 when total is 0.
func Percentages(c store.ValidityCounts) (valid, invalid float64) {
	if c.Total == 0 {
		return 0, 0
	}
	total := float64(c.Total)
	return Round2(float64(c.Valid) / total * 100), Round2(float64(c.Invalid) / total * 100)
}

// ExecutedStages lists completed logs in order with their durations and start times
func ExecutedStages(logs []model.RunLog) []model.ExecutedStage {
	stages := make([]model.ExecutedStage, 0, len(logs))
	for _, l := range logs {
		if l.EndTime == nil || l.DurationSeconds == nil {
			continue
		}
		stages = append(stages, model.ExecutedStage{
			Name:            l.Stage,
			DurationSeconds: *l.DurationSeconds,
			ExecutedAt:      l.StartTime,
		})
	}
	return stages
}

// ElapsedSeconds sums the durations of completed logs, rounded to two decimals
func ElapsedSeconds(logs []model.RunLog) float64 {
	var total float64
	for _, s := range ExecutedStages(logs) {
		total += s.DurationSeconds
	}
	return Round2(total)
}

// Collector gathers counts and timings for a run
type Collector struct {
	partitions   store.PartitionStore
	availability store.AvailabilityStore
	logs         store.RunLogStore
	clock        func() time.Time
	logger       *zap.Logger
}

// NewCollector creates a new statistics collector
func NewCollector(
	partitions store.PartitionStore,
	availability store.AvailabilityStore,
	logs store.RunLogStore,
	logger *zap.Logger,
) *Collector {
	return &Collector{
		partitions:   partitions,
		availability: availability,
		logs:         logs,
		clock:        time.Now,
		logger:       logger.Named("stats"),
	}
}

// WithClock sets the time source for processedAt
func (c *Collector) WithClock(clock func() time.Time) *Collector {
	c.clock = clock
	return c
}

// Summarize counts the working partition and sums the run's completed stage durations
func (c *Collector) Summarize(ctx context.Context, runID, working string) (model.AvailabilitySummary, error) {
	var summary model.AvailabilitySummary

	counts, err := c.partitions.CountValidity(ctx, working)
	if err != nil {
		return summary, err
	}

	logs, err := c.logs.ListByRun(ctx, runID)
	if err != nil {
		return summary, fmt.Errorf("failed to list logs for run %s: %w", runID, err)
	}

	now := c.clock()
	summary = model.AvailabilitySummary{
		RunID:               runID,
		Stages:              ExecutedStages(logs),
		Total:               counts.Total,
		Valid:               counts.Valid,
		Invalid:             counts.Invalid,
		TotalElapsedSeconds: ElapsedSeconds(logs),
		ProcessedAt:         now,
		ProcessedDate:       now.Format(model.PartitionDateLayout),
	}
	summary.PercentValid, summary.PercentInvalid = Percentages(counts)
	return summary, nil
}

// Finalize summarizes the run and writes it onto the ready availability record for date
func (c *Collector) Finalize(ctx context.Context, runID, date, working string) (model.AvailabilitySummary, error) {
	summary, err := c.Summarize(ctx, runID, working)
	if err != nil {
		return summary, err
	}

	if err := c.availability.MarkProcessed(ctx, date, summary); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return summary, fmt.Errorf("%w: %s", ErrNoReadyRecord, date)
		}
		return summary, err
	}

	c.logger.Info("Availability record processed",
		zap.String("runId", runID),
		zap.String("date", date),
		zap.Int64("total", summary.Total),
		zap.Int64("valid", summary.Valid),
		zap.Int64("invalid", summary.Invalid),
		zap.Float64("percentValid", summary.PercentValid),
		zap.Float64("percentInvalid", summary.PercentInvalid),
		zap.Float64("elapsedSeconds", summary.TotalElapsedSeconds))
	return summary, nil
}
