// pkg/store/mongostore/control.go
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

// ControlStore keeps the singleton control record in a MongoDB collection
type ControlStore struct {
	coll *mongo.Collection
}

var _ store.ControlStore = (*ControlStore)(nil)

// NewControlStore creates a control store over db.collection
func NewControlStore(db *mongo.Database, collection string) *ControlStore {
	return &ControlStore{coll: db.Collection(collection)}
}

// Get returns the control record
func (s *ControlStore) Get(ctx context.Context) (*model.ControlRecord, error) {
	var rec model.ControlRecord
	err := s.coll.FindOne(ctx, bson.M{"_id": model.ControlRecordID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read control record: %w", err)
	}
	return &rec, nil
}

// Create inserts the control record. The fixed _id makes a second insert a duplicate.
func (s *ControlStore) Create(ctx context.Context, rec *model.ControlRecord) error {
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("failed to create control record: %w", err)
	}
	return nil
}

// CompareAndSwap replaces the record filtered on its current version
func (s *ControlStore) CompareAndSwap(ctx context.Context, rec *model.ControlRecord) error {
	expected := rec.Version
	next := *rec
	next.Version = expected + 1

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": rec.ID, "version": expected}, &next)
	if err != nil {
		return fmt.Errorf("failed to update control record: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrConflict
	}

	rec.Version = next.Version
	return nil
}
