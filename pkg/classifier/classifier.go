// pkg/classifier/classifier.go
package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/flat-ingress/pkg/model"
	"github.com/David-Botos/flat-ingress/pkg/store"
)

// ErrInvalidBatchSize is returned when the batch size is not positive
var ErrInvalidBatchSize = errors.New("batch size must be positive")

// Result summarizes one classification pass
type Result struct {
	Processed int64
	Valid     int64
	Invalid   int64
	Flushes   int
	Duration  time.Duration
}

// Classifier streams the working partition into the valid and invalid partitions
type Classifier struct {
	store     store.PartitionStore
	batchSize int
	logger    *zap.Logger
}

// NewClassifier creates a classifier flushing every batchSize records
func NewClassifier(partitions store.PartitionStore, batchSize int, logger *zap.Logger) (*Classifier, error) {
	if batchSize <= 0 {
		return nil, ErrInvalidBatchSize
	}
	return &Classifier{
		store:     partitions,
		batchSize: batchSize,
		logger:    logger.Named("classifier"),
	}, nil
}

// Run reads working with a single cursor. Whenever the processed count reaches
// a multiple of the batch size, both non-empty buffers are written before the
// cursor advances; the remaining tail is written at the end. Batches already
// written stay in place if a later write fails.
func (c *Classifier) Run(ctx context.Context, working, valid, invalid string) (Result, error) {
	start := time.Now()
	var res Result

	c.logger.Info("Classifying working partition",
		zap.String("working", working),
		zap.String("valid", valid),
		zap.String("invalid", invalid),
		zap.Int("batchSize", c.batchSize))

	cur, err := c.store.StreamWorking(ctx, working)
	if err != nil {
		return res, err
	}
	defer cur.Close(ctx)

	validBatch := newBatch(c.batchSize, func(ctx context.Context, items []model.ValidRecord) error {
		return c.store.InsertValid(ctx, valid, items)
	})
	invalidBatch := newBatch(c.batchSize, func(ctx context.Context, items []model.InvalidRecord) error {
		return c.store.InsertInvalid(ctx, invalid, items)
	})

	flush := func() error {
		if err := validBatch.flush(ctx); err != nil {
			return fmt.Errorf("failed to write valid batch: %w", err)
		}
		if err := invalidBatch.flush(ctx); err != nil {
			return fmt.Errorf("failed to write invalid batch: %w", err)
		}
		return nil
	}

	collect := func() Result {
		res.Valid = validBatch.written
		res.Invalid = invalidBatch.written
		res.Flushes = validBatch.flushes + invalidBatch.flushes
		res.Duration = time.Since(start)
		return res
	}

	for cur.Next(ctx) {
		var doc model.WorkingDocument
		if err := cur.Decode(&doc); err != nil {
			return collect(), fmt.Errorf("failed to decode working document %d: %w", res.Processed+1, err)
		}

		switch rec := Classify(doc).(type) {
		case model.ValidRecord:
			validBatch.add(rec)
		case model.InvalidRecord:
			invalidBatch.add(rec)
		}
		res.Processed++

		if res.Processed%int64(c.batchSize) == 0 {
			if err := flush(); err != nil {
				return collect(), err
			}
			c.logger.Debug("Flushed batch",
				zap.Int64("processed", res.Processed),
				zap.Int64("valid", validBatch.written),
				zap.Int64("invalid", invalidBatch.written))
		}
	}
	if err := cur.Err(); err != nil {
		return collect(), fmt.Errorf("cursor failed after %d documents: %w", res.Processed, err)
	}

	// Tail
	if err := flush(); err != nil {
		return collect(), err
	}

	res = collect()
	c.logger.Info("Classification complete",
		zap.Int64("processed", res.Processed),
		zap.Int64("valid", res.Valid),
		zap.Int64("invalid", res.Invalid),
		zap.Int("flushes", res.Flushes),
		zap.Duration("duration", res.Duration))

	return res, nil
}
