// pkg/store/mongostore/availability.go
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/David-Botos/flat-ingress/pkg/model"
	"github.com/David-Botos/flat-ingress/pkg/store"
)

// AvailabilityStore reads the externally maintained availability collection
type AvailabilityStore struct {
	coll *mongo.Collection
}

var _ store.AvailabilityStore = (*AvailabilityStore)(nil)

// NewAvailabilityStore creates an availability store over db.collection
func NewAvailabilityStore(db *mongo.Database, collection string) *AvailabilityStore {
	return &AvailabilityStore{coll: db.Collection(collection)}
}

func readyFilter(date string) bson.M {
	return bson.M{"date": date, "status": model.AvailabilityReady}
}

// FindReady returns the ready record for date
func (s *AvailabilityStore) FindReady(ctx context.Context, date string) (*model.AvailabilityRecord, error) {
	var rec model.AvailabilityRecord
	err := s.coll.FindOne(ctx, readyFilter(date)).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read availability for %s: %w", date, err)
	}
	return &rec, nil
}

// MarkProcessed writes the run summary onto the ready record for date
func (s *AvailabilityStore) MarkProcessed(ctx context.Context, date string, summary model.AvailabilitySummary) error {
	update := bson.M{"$set": bson.M{
		"status":              model.AvailabilityProcessed,
		"runId":               summary.RunID,
		"executedStages":      summary.Stages,
		"totalCount":          summary.Total,
		"validCount":          summary.Valid,
		"invalidCount":        summary.Invalid,
		"percentValid":        summary.PercentValid,
		"percentInvalid":      summary.PercentInvalid,
		"totalElapsedSeconds": summary.TotalElapsedSeconds,
		"processedAt":         summary.ProcessedAt,
		"processedDate":       summary.ProcessedDate,
	}}

	res, err := s.coll.UpdateOne(ctx, readyFilter(date), update)
	if err != nil {
		return fmt.Errorf("failed to update availability for %s: %w", date, err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
