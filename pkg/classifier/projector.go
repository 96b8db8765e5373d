// pkg/classifier/projector.go
package classifier

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/flat-ingress/pkg/model"
	"github.com/David-Botos/flat-ingress/pkg/store"
)

// Projector materializes the source partition into a working partition and
// returns the number of documents written
type Projector interface {
	Project(ctx context.Context, target string) (int64, error)
}

// StreamProjector builds the working partition client-side. It is used when
// the source cluster cannot $out into the working cluster.
type StreamProjector struct {
	source    store.SourceReader
	sink      store.PartitionStore
	batchSize int
	clock     func() time.Time
	logger    *zap.Logger
}

var _ Projector = (*StreamProjector)(nil)

// NewStreamProjector creates a projector writing batchSize documents per bulk insert
func NewStreamProjector(source store.SourceReader, sink store.PartitionStore, batchSize int, logger *zap.Logger) (*StreamProjector, error) {
	if batchSize <= 0 {
		return nil, ErrInvalidBatchSize
	}
	return &StreamProjector{
		source:    source,
		sink:      sink,
		batchSize: batchSize,
		clock:     time.Now,
		logger:    logger.Named("stream-projector"),
	}, nil
}

// WithClock sets the time source used for insertedAt
func (p *StreamProjector) WithClock(clock func() time.Time) *StreamProjector {
	p.clock = clock
	return p
}

// Project reads every source payload, validates and decomposes it and writes
// the result into target
func (p *StreamProjector) Project(ctx context.Context, target string) (int64, error) {
	p.logger.Info("Projecting source into working partition", zap.String("target", target))

	cur, err := p.source.StreamSource(ctx)
	if err != nil {
		return 0, err
	}
	defer cur.Close(ctx)

	// one timestamp per run, as a server-side $$NOW would give
	now := p.clock()
	working := newBatch(p.batchSize, func(ctx context.Context, docs []model.WorkingDocument) error {
		return p.sink.InsertWorking(ctx, target, docs)
	})

	var read int64
	for cur.Next(ctx) {
		var raw model.RawRecord
		if err := cur.Decode(&raw); err != nil {
			return working.written, fmt.Errorf("failed to decode source document %d: %w", read+1, err)
		}
		working.add(Project(raw.Payload, now))
		read++

		if read%int64(p.batchSize) == 0 {
			if err := working.flush(ctx); err != nil {
				return working.written, fmt.Errorf("failed to write working batch: %w", err)
			}
		}
	}
	if err := cur.Err(); err != nil {
		return working.written, fmt.Errorf("source cursor failed after %d documents: %w", read, err)
	}
	if err := working.flush(ctx); err != nil {
		return working.written, fmt.Errorf("failed to write working batch: %w", err)
	}

	p.logger.Info("Projection complete", zap.Int64("documents", working.written))
	return working.written, nil
}
