// pkg/store/mongostore/partitions.go
package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/David-Botos/flat-ingress/pkg/model"
	"github.com/David-Botos/flat-ingress/pkg/store"
)

// PartitionStore manages date-stamped collections in the working database
type PartitionStore struct {
	db        *mongo.Database
	batchSize int32
}

var _ store.PartitionStore = (*PartitionStore)(nil)

// NewPartitionStore creates a partition store. cursorBatch sets the server
// batch size for streaming reads; zero leaves the driver default.
func NewPartitionStore(db *mongo.Database, cursorBatch int) *PartitionStore {
	return &PartitionStore{db: db, batchSize: int32(cursorBatch)}
}

// StreamWorking opens a cursor over the working partition
func (s *PartitionStore) StreamWorking(ctx context.Context, partition string) (store.Cursor, error) {
	opts := options.Find()
	if s.batchSize > 0 {
		opts.SetBatchSize(s.batchSize)
	}
	cur, err := s.db.Collection(partition).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cursor on %s: %w", partition, err)
	}
	return cur, nil
}

// InsertWorking bulk-writes working documents
func (s *PartitionStore) InsertWorking(ctx context.Context, partition string, docs []model.WorkingDocument) error {
	return s.insert(ctx, partition, toDocuments(docs))
}

// InsertValid bulk-writes valid records
func (s *PartitionStore) InsertValid(ctx context.Context, partition string, records []model.ValidRecord) error {
	return s.insert(ctx, partition, toDocuments(records))
}

// InsertInvalid bulk-writes invalid records
func (s *PartitionStore) InsertInvalid(ctx context.Context, partition string, records []model.InvalidRecord) error {
	return s.insert(ctx, partition, toDocuments(records))
}

func (s *PartitionStore) insert(ctx context.Context, partition string, docs []interface{}) error {
	if len(docs) == 0 {
		return nil
	}
	if _, err := s.db.Collection(partition).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert %d documents into %s: %w", len(docs), partition, err)
	}
	return nil
}

// Count returns the number of documents in partition
func (s *PartitionStore) Count(ctx context.Context, partition string) (int64, error) {
	n, err := s.db.Collection(partition).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", partition, err)
	}
	return n, nil
}

// CountValidity counts the working partition by validity flag
func (s *PartitionStore) CountValidity(ctx context.Context, partition string) (store.ValidityCounts, error) {
	var counts store.ValidityCounts
	coll := s.db.Collection(partition)

	var err error
	if counts.Total, err = coll.CountDocuments(ctx, bson.M{}); err != nil {
		return counts, fmt.Errorf("failed to count %s: %w", partition, err)
	}
	if counts.Valid, err = coll.CountDocuments(ctx, bson.M{"validity": true}); err != nil {
		return counts, fmt.Errorf("failed to count valid documents in %s: %w", partition, err)
	}
	if counts.Invalid, err = coll.CountDocuments(ctx, bson.M{"validity": false}); err != nil {
		return counts, fmt.Errorf("failed to count invalid documents in %s: %w", partition, err)
	}
	return counts, nil
}

// EnsureIndex creates the index if it does not exist
func (s *PartitionStore) EnsureIndex(ctx context.Context, partition string, spec store.IndexSpec) error {
	keys := bson.D{}
	for _, k := range spec.Keys {
		keys = append(keys, bson.E{Key: k, Value: 1})
	}

	opts := options.Index().SetName(spec.Name)
	if spec.Unique {
		opts.SetUnique(true)
	}
	if len(spec.Filter) > 0 {
		opts.SetPartialFilterExpression(bson.M(spec.Filter))
	}

	_, err := s.db.Collection(partition).Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys, Options: opts})
	if err != nil {
		return fmt.Errorf("failed to create index %s on %s: %w", spec.Name, partition, err)
	}
	return nil
}

// Drop removes the partition
func (s *PartitionStore) Drop(ctx context.Context, partition string) error {
	if err := s.db.Collection(partition).Drop(ctx); err != nil {
		return fmt.Errorf("failed to drop %s: %w", partition, err)
	}
	return nil
}

func toDocuments[T any](items []T) []interface{} {
	docs := make([]interface{}, len(items))
	for i := range items {
		docs[i] = items[i]
	}
	return docs
}
