// pkg/store/mongostore/source.go
package mongostore

import (
	"context"
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/David-Botos/flat-ingress/pkg/model"
	"github.com/David-Botos/flat-ingress/pkg/store"
)

// SourceReader streams the payload field of the source collection
type SourceReader struct {
	coll      *mongo.Collection
	field     string
	batchSize int32
}

var _ store.SourceReader = (*SourceReader)(nil)

// NewSourceReader reads field from db.collection
func NewSourceReader(db *mongo.Database, collection, field string, cursorBatch int) *SourceReader {
	return &SourceReader{coll: db.Collection(collection), field: field, batchSize: int32(cursorBatch)}
}

// StreamSource opens a cursor that decodes into model.RawRecord
func (r *SourceReader) StreamSource(ctx context.Context) (store.Cursor, error) {
	opts := options.Find().SetProjection(bson.M{r.field: 1})
	if r.batchSize > 0 {
		opts.SetBatchSize(r.batchSize)
	}
	cur, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open source cursor: %w", err)
	}
	return &payloadCursor{Cursor: cur, field: r.field}, nil
}

// payloadCursor decodes the configured field of each document as a RawRecord.
// A missing or null field yields an empty payload, which never validates.
type payloadCursor struct {
	*mongo.Cursor
	field string
}

func (c *payloadCursor) Decode(v interface{}) error {
	out, ok := v.(*model.RawRecord)
	if !ok {
		return fmt.Errorf("source cursor decodes into *model.RawRecord, got %T", v)
	}

	val, err := c.Current.LookupErr(c.field)
	if err != nil {
		out.Payload = ""
		return nil
	}

	switch val.Type {
	case bsontype.String:
		out.Payload = val.StringValue()
	case bsontype.Null, bsontype.Undefined:
		out.Payload = ""
	case bsontype.Int32:
		out.Payload = strconv.FormatInt(int64(val.Int32()), 10)
	case bsontype.Int64:
		out.Payload = strconv.FormatInt(val.Int64(), 10)
	case bsontype.Double:
		out.Payload = strconv.FormatFloat(val.Double(), 'g', -1, 64)
	case bsontype.Decimal128:
		out.Payload = val.Decimal128().String()
	default:
		out.Payload = val.String()
	}
	return nil
}
