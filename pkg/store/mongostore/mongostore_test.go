// pkg/store/mongostore/mongostore_test.go
package mongostore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.uber.org/zap"

	"github.com/David-Botos/flat-ingress/pkg/classifier"
	"github.com/David-Botos/flat-ingress/pkg/model"
	"github.com/David-Botos/flat-ingress/pkg/store"
)

func newMock(t *testing.T) *mtest.T {
	return mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
}

func TestControlStore(t *testing.T) {
	mt := newMock(t)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	mt.Run("get existing", func(mt *mtest.T) {
		s := NewControlStore(mt.DB, "process_control")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.process_control", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: model.ControlRecordID},
			{Key: "status", Value: "PROCESSED"},
			{Key: "runId", Value: "run-1"},
			{Key: "updatedAt", Value: now},
			{Key: "version", Value: int64(3)},
		}))

		rec, err := s.Get(context.Background())
		require.NoError(mt, err)
		assert.Equal(mt, model.StatusProcessed, rec.Status)
		assert.Equal(mt, int64(3), rec.Version)
	})

	mt.Run("get missing", func(mt *mtest.T) {
		s := NewControlStore(mt.DB, "process_control")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.process_control", mtest.FirstBatch))

		_, err := s.Get(context.Background())
		assert.ErrorIs(mt, err, store.ErrNotFound)
	})

	mt.Run("create duplicate", func(mt *mtest.T) {
		s := NewControlStore(mt.DB, "process_control")
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index: 0, Code: 11000, Message: "duplicate key error",
		}))

		err := s.Create(context.Background(), model.NewControlRecord("run-1", now))
		assert.ErrorIs(mt, err, store.ErrConflict)
	})

	mt.Run("compare and swap", func(mt *mtest.T) {
		s := NewControlStore(mt.DB, "process_control")
		rec := &model.ControlRecord{ID: model.ControlRecordID, Status: model.StatusRunning, Version: 2}

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))
		require.NoError(mt, s.CompareAndSwap(context.Background(), rec))
		assert.Equal(mt, int64(3), rec.Version)

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))
		assert.ErrorIs(mt, s.CompareAndSwap(context.Background(), rec), store.ErrConflict)
		assert.Equal(mt, int64(3), rec.Version)
	})
}

func TestAvailabilityStore(t *testing.T) {
	mt := newMock(t)

	mt.Run("find ready", func(mt *mtest.T) {
		s := NewAvailabilityStore(mt.DB, "load_data")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.load_data", mtest.FirstBatch, bson.D{
			{Key: "date", Value: "2024-01-01"},
			{Key: "status", Value: "ready"},
		}))

		rec, err := s.FindReady(context.Background(), "2024-01-01")
		require.NoError(mt, err)
		assert.Equal(mt, model.AvailabilityReady, rec.Status)
	})

	mt.Run("mark processed without ready record", func(mt *mtest.T) {
		s := NewAvailabilityStore(mt.DB, "load_data")
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		err := s.MarkProcessed(context.Background(), "2024-01-01", model.AvailabilitySummary{RunID: "run-1"})
		assert.ErrorIs(mt, err, store.ErrNotFound)
	})

	mt.Run("mark processed", func(mt *mtest.T) {
		s := NewAvailabilityStore(mt.DB, "load_data")
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		err := s.MarkProcessed(context.Background(), "2024-01-01", model.AvailabilitySummary{RunID: "run-1", Total: 3})
		assert.NoError(mt, err)
	})
}

func TestSourceCursorDecodesPayloads(t *testing.T) {
	docs := []interface{}{
		bson.D{{Key: "DATA", Value: "abc"}},
		bson.D{{Key: "DATA", Value: nil}},
		bson.D{{Key: "other", Value: "x"}},
		bson.D{{Key: "DATA", Value: int32(42)}},
		bson.D{{Key: "DATA", Value: 1.5}},
	}
	cur, err := mongo.NewCursorFromDocuments(docs, nil, nil)
	require.NoError(t, err)

	pc := &payloadCursor{Cursor: cur, field: "DATA"}
	var got []string
	for pc.Next(context.Background()) {
		var raw model.RawRecord
		require.NoError(t, pc.Decode(&raw))
		got = append(got, raw.Payload)
	}
	require.NoError(t, pc.Err())
	assert.Equal(t, []string{"abc", "", "", "42", "1.5"}, got)

	var wrong model.WorkingDocument
	assert.Error(t, pc.Decode(&wrong))
}

func TestAggregatePipeline(t *testing.T) {
	mt := newMock(t)

	mt.Run("plain out", func(mt *mtest.T) {
		p := NewAggregateProjector(mt.Coll, "DATA", mt.DB, nil, zap.NewNop())
		pipeline := p.Pipeline("temp_20240101")
		require.Len(mt, pipeline, 2)

		project := pipeline[0][0]
		assert.Equal(mt, "$project", project.Key)
		fields := project.Value.(bson.D)
		assert.Equal(mt, []string{"validity", "data", "original", "insertedAt"}, keys(fields))

		cond := fields[1].Value.(bson.M)["$cond"].(bson.M)
		assert.Equal(mt, "$$REMOVE", cond["else"])
		assert.Len(mt, cond["then"].(bson.M), len(classifier.Layout))

		out := pipeline[1][0]
		assert.Equal(mt, "$out", out.Key)
		assert.Equal(mt, bson.M{"db": mt.DB.Name(), "coll": "temp_20240101"}, out.Value)
	})

	mt.Run("atlas out", func(mt *mtest.T) {
		p := NewAggregateProjector(mt.Coll, "DATA", mt.DB, &AtlasTarget{ProjectID: "proj", ClusterName: "cluster0"}, zap.NewNop())
		out := p.Pipeline("temp_20240101")[1][0].Value.(bson.M)
		atlas := out["atlas"].(bson.M)
		assert.Equal(mt, "proj", atlas["projectId"])
		assert.Equal(mt, "cluster0", atlas["clusterName"])
		assert.Equal(mt, "temp_20240101", atlas["coll"])
	})
}

func keys(d bson.D) []string {
	out := make([]string, len(d))
	for i, e := range d {
		out[i] = e.Key
	}
	return out
}
