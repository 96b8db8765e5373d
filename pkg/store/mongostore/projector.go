// pkg/store/mongostore/projector.go
package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/David-Botos/flat-ingress/pkg/classifier"
)

// AtlasTarget names an Atlas cluster for federated $out
type AtlasTarget struct {
	ProjectID   string
	ClusterName string
}

// AggregateProjector materializes the working partition with a server-side
// $project followed by $out, so payloads never pass through this process
type AggregateProjector struct {
	source    *mongo.Collection
	field     string
	workingDB *mongo.Database
	atlas     *AtlasTarget
	logger    *zap.Logger
}

var _ classifier.Projector = (*AggregateProjector)(nil)

// NewAggregateProjector projects field of source into collections of workingDB.
// A nil atlas writes with the plain {db, coll} form of $out.
func NewAggregateProjector(
	source *mongo.Collection,
	field string,
	workingDB *mongo.Database,
	atlas *AtlasTarget,
	logger *zap.Logger,
) *AggregateProjector {
	return &AggregateProjector{
		source:    source,
		field:     field,
		workingDB: workingDB,
		atlas:     atlas,
		logger:    logger.Named("aggregate-projector"),
	}
}

// Project writes every source document into target and returns the target count
func (p *AggregateProjector) Project(ctx context.Context, target string) (int64, error) {
	p.logger.Info("Projecting source into working partition",
		zap.String("source", p.source.Name()),
		zap.String("target", target),
		zap.Bool("atlas", p.atlas != nil))

	cur, err := p.source.Aggregate(ctx, p.Pipeline(target))
	if err != nil {
		return 0, fmt.Errorf("failed to run projection into %s: %w", target, err)
	}
	// $out returns no documents; closing the cursor completes the command
	if err := cur.Close(ctx); err != nil {
		return 0, fmt.Errorf("failed to close projection cursor: %w", err)
	}

	n, err := p.workingDB.Collection(target).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", target, err)
	}
	return n, nil
}

// Pipeline builds the aggregation that validates and decomposes each payload
func (p *AggregateProjector) Pipeline(target string) mongo.Pipeline {
	payload := bson.M{"$ifNull": bson.A{bson.M{"$toString": "$" + p.field}, ""}}
	validity := bson.M{"$eq": bson.A{bson.M{"$strLenCP": payload}, classifier.RecordLength}}

	fields := bson.M{}
	for _, f := range classifier.Layout {
		fields[f.Name] = bson.M{"$trim": bson.M{
			"input": bson.M{"$substrCP": bson.A{payload, f.Start, f.Length}},
		}}
	}

	project := bson.D{
		{Key: "validity", Value: validity},
		{Key: "data", Value: bson.M{"$cond": bson.M{
			"if":   validity,
			"then": fields,
			"else": "$$REMOVE",
		}}},
		{Key: "original", Value: payload},
		{Key: "insertedAt", Value: "$$NOW"},
	}

	return mongo.Pipeline{
		{{Key: "$project", Value: project}},
		{{Key: "$out", Value: p.outStage(target)}},
	}
}

func (p *AggregateProjector) outStage(target string) bson.M {
	if p.atlas != nil {
		return bson.M{"atlas": bson.M{
			"projectId":   p.atlas.ProjectID,
			"clusterName": p.atlas.ClusterName,
			"db":          p.workingDB.Name(),
			"coll":        target,
		}}
	}
	return bson.M{"db": p.workingDB.Name(), "coll": target}
}
