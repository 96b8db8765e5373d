// pkg/classifier/verifier.go
package classifier

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/flat-ingress/pkg/store"
)

// VerificationReport compares the classified partitions against the stream count
type VerificationReport struct {
	Valid            string
	Invalid          string
	VerificationTime time.Time
	Expected         int64
	ValidCount       int64
	InvalidCount     int64
	CountMatches     bool
}

// Discrepancy is the difference between stored and streamed counts
func (r *VerificationReport) Discrepancy() int64 {
	return r.ValidCount + r.InvalidCount - r.Expected
}

// Verifier checks that classification wrote every record exactly once
type Verifier struct {
	store  store.PartitionStore
	logger *zap.Logger
}

// NewVerifier creates a new verifier
func NewVerifier(partitions store.PartitionStore, logger *zap.Logger) *Verifier {
	return &Verifier{store: partitions, logger: logger.Named("verifier")}
}

// VerifyCounts checks count(valid) + count(invalid) == res.Processed.
// A mismatch is reported, not returned as an error.
func (v *Verifier) VerifyCounts(ctx context.Context, res Result, valid, invalid string) (*VerificationReport, error) {
	report := &VerificationReport{
		Valid:            valid,
		Invalid:          invalid,
		VerificationTime: time.Now(),
		Expected:         res.Processed,
	}

	var err error
	if report.ValidCount, err = v.store.Count(ctx, valid); err != nil {
		return nil, fmt.Errorf("failed to count valid partition: %w", err)
	}
	if report.InvalidCount, err = v.store.Count(ctx, invalid); err != nil {
		return nil, fmt.Errorf("failed to count invalid partition: %w", err)
	}
	report.CountMatches = report.Discrepancy() == 0

	if !report.CountMatches {
		v.logger.Warn("Classified partitions do not match the stream",
			zap.String("valid", valid),
			zap.String("invalid", invalid),
			zap.Int64("expected", report.Expected),
			zap.Int64("validCount", report.ValidCount),
			zap.Int64("invalidCount", report.InvalidCount))
	}
	return report, nil
}
