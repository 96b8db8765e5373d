// cmd/flatingress/wiring.go
package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/flat-ingress/pkg/api"
	"github.com/David-Botos/flat-ingress/pkg/classifier"
	"github.com/David-Botos/flat-ingress/pkg/config"
	"github.com/David-Botos/flat-ingress/pkg/connector"
	"github.com/David-Botos/flat-ingress/pkg/indexer"
	"github.com/David-Botos/flat-ingress/pkg/lock"
	"github.com/David-Botos/flat-ingress/pkg/pipeline"
	"github.com/David-Botos/flat-ingress/pkg/stagelog"
	"github.com/David-Botos/flat-ingress/pkg/stats"
	"github.com/David-Botos/flat-ingress/pkg/store"
	"github.com/David-Botos/flat-ingress/pkg/store/mongostore"
	"github.com/David-Botos/flat-ingress/pkg/store/pgstore"
)

// app holds the open connections and the orchestrator built on them
type app struct {
	mongo    *connector.MongoConnectors
	postgres *connector.PostgresConnector
	orch     *pipeline.Orchestrator
	checks   []api.HealthCheck
	logger   *zap.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	factory := connector.NewConnectorFactory(cfg, logger)

	mongos, err := factory.CreateMongoConnectors(ctx)
	if err != nil {
		return nil, err
	}
	a := &app{mongo: mongos, logger: logger}
	for _, c := range mongos.All() {
		a.checks = append(a.checks, api.HealthCheck{Name: c.Name(), Pinger: c})
	}

	controlStore, logStore, err := a.controlStores(ctx, cfg, factory)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	col := cfg.Collections
	partitions := mongostore.NewPartitionStore(mongos.Working.Database(), cfg.BatchSize)

	projector, err := newProjector(cfg, mongos, partitions, logger)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	cls, err := classifier.NewClassifier(partitions, cfg.BatchSize, logger)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	availability := mongostore.NewAvailabilityStore(mongos.Control.Database(), col.Availability)

	a.orch = pipeline.New(pipeline.Dependencies{
		Locks:        lock.NewManager(controlStore, logger),
		Stages:       stagelog.NewLogger(logStore, logger),
		Availability: availability,
		Projector:    projector,
		Classifier:   cls,
		Verifier:     classifier.NewVerifier(partitions, logger),
		Indexes:      indexer.NewBuilder(partitions, logger),
		Stats:        stats.NewCollector(partitions, availability, logStore, logger),
		Partitions:   partitions,
	}, pipeline.Options{
		WorkingPrefix: col.WorkingPrefix,
		ValidPrefix:   col.ValidPrefix,
		InvalidPrefix: col.InvalidPrefix,
		Location:      cfg.Scheduler.Location(),
		LogRetention:  cfg.LogRetention(),
	}, logger)

	return a, nil
}

// controlStores picks where the control record and run logs live
func (a *app) controlStores(
	ctx context.Context,
	cfg *config.Config,
	factory *connector.ConnectorFactory,
) (store.ControlStore, store.RunLogStore, error) {
	col := cfg.Collections

	if cfg.ControlBackend == config.ControlBackendPostgres {
		pg, err := factory.CreatePostgresConnector(ctx)
		if err != nil {
			return nil, nil, err
		}
		a.postgres = pg
		a.checks = append(a.checks, api.HealthCheck{Name: pg.Name(), Pinger: pg})

		if err := pgstore.EnsureSchema(ctx, pg.DB(), col.Control, col.RunLogs); err != nil {
			return nil, nil, err
		}
		return pgstore.NewControlStore(pg.DB(), col.Control), pgstore.NewRunLogStore(pg.DB(), col.RunLogs), nil
	}

	db := a.mongo.Control.Database()
	logs := mongostore.NewRunLogStore(db, col.RunLogs)
	if err := logs.EnsureIndexes(ctx); err != nil {
		// lookups still work without the index
		a.logger.Warn("Could not create run log indexes", zap.Error(err))
	}
	return mongostore.NewControlStore(db, col.Control), logs, nil
}

func newProjector(
	cfg *config.Config,
	mongos *connector.MongoConnectors,
	partitions store.PartitionStore,
	logger *zap.Logger,
) (classifier.Projector, error) {
	col := cfg.Collections

	switch cfg.Projection.Mode {
	case config.ProjectionAggregate:
		var atlas *mongostore.AtlasTarget
		if cfg.Projection.HasAtlasTarget() {
			atlas = &mongostore.AtlasTarget{
				ProjectID:   cfg.Projection.AtlasProjectID,
				ClusterName: cfg.Projection.AtlasClusterName,
			}
		}
		source := mongos.Source.Database().Collection(col.Source)
		return mongostore.NewAggregateProjector(source, col.SourceField, mongos.Working.Database(), atlas, logger), nil

	case config.ProjectionStream:
		reader := mongostore.NewSourceReader(mongos.Source.Database(), col.Source, col.SourceField, cfg.BatchSize)
		p, err := classifier.NewStreamProjector(reader, partitions, cfg.BatchSize, logger)
		if err != nil {
			return nil, err
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unknown projection mode %q", cfg.Projection.Mode)
	}
}

// Close releases every connection, returning all errors joined
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.mongo != nil {
		if err := a.mongo.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.postgres != nil {
		if err := a.postgres.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
