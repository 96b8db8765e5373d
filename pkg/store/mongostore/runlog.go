// pkg/store/mongostore/runlog.go
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/David-Botos/flat-ingress/pkg/model"
	"github.com/David-Botos/flat-ingress/pkg/store"
)

// RunLogStore keeps stage logs in a MongoDB collection
type RunLogStore struct {
	coll *mongo.Collection
}

var _ store.RunLogStore = (*RunLogStore)(nil)

// NewRunLogStore creates a run log store over db.collection
func NewRunLogStore(db *mongo.Database, collection string) *RunLogStore {
	return &RunLogStore{coll: db.Collection(collection)}
}

// EnsureIndexes creates the lookup index used by ListByRun and the retention purge
func (s *RunLogStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "runId", Value: 1}, {Key: "startTime", Value: 1}},
			Options: options.Index().SetName("idx_run_start"),
		},
		{
			Keys:    bson.D{{Key: "startTime", Value: 1}},
			Options: options.Index().SetName("idx_start"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create run log indexes: %w", err)
	}
	return nil
}

// Insert stores a new log entry
func (s *RunLogStore) Insert(ctx context.Context, entry *model.RunLog) error {
	if _, err := s.coll.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert run log: %w", err)
	}
	return nil
}

// Update replaces an existing log entry
func (s *RunLogStore) Update(ctx context.Context, entry *model.RunLog) error {
	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": entry.ID}, entry)
	if err != nil {
		return fmt.Errorf("failed to update run log: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListByRun returns the run's logs ordered by start time
func (s *RunLogStore) ListByRun(ctx context.Context, runID string) ([]model.RunLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "startTime", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{"runId": runID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query run logs: %w", err)
	}

	logs := make([]model.RunLog, 0)
	if err := cur.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("failed to decode run logs: %w", err)
	}
	return logs, nil
}

// CountByStatus counts all logs, failed logs and completed logs
func (s *RunLogStore) CountByStatus(ctx context.Context) (model.LogCounts, error) {
	var counts model.LogCounts
	var err error

	if counts.Total, err = s.coll.CountDocuments(ctx, bson.M{}); err != nil {
		return counts, fmt.Errorf("failed to count run logs: %w", err)
	}
	if counts.Error, err = s.coll.CountDocuments(ctx, bson.M{"status": model.StageError}); err != nil {
		return counts, fmt.Errorf("failed to count failed run logs: %w", err)
	}
	if counts.Done, err = s.coll.CountDocuments(ctx, bson.M{"status": model.StageDone}); err != nil {
		return counts, fmt.Errorf("failed to count completed run logs: %w", err)
	}
	return counts, nil
}

// DeleteStartedBefore removes logs older than cutoff
func (s *RunLogStore) DeleteStartedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"startTime": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete run logs: %w", err)
	}
	return res.DeletedCount, nil
}
