// pkg/connector/factory.go
package connector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/flat-ingress/pkg/config"
)

// MongoConnectors groups the three MongoDB endpoints of a run
type MongoConnectors struct {
	Source  *MongoConnector
	Working *MongoConnector
	Control *MongoConnector
}

// All returns the connectors in a stable order
func (m *MongoConnectors) All() []*MongoConnector {
	return []*MongoConnector{m.Source, m.Working, m.Control}
}

// Close disconnects every connector, returning the first error
func (m *MongoConnectors) Close(ctx context.Context) error {
	var first error
	for _, c := range m.All() {
		if c == nil {
			continue
		}
		if err := c.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ConnectorFactory creates database connectors
type ConnectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewConnectorFactory creates a new connector factory
func NewConnectorFactory(cfg *config.Config, logger *zap.Logger) *ConnectorFactory {
	return &ConnectorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateMongoConnectors creates the source, working and control connectors
func (f *ConnectorFactory) CreateMongoConnectors(ctx context.Context) (*MongoConnectors, error) {
	f.logger.Info("Creating MongoDB connectors")

	m := &MongoConnectors{}
	mc := &f.cfg.Mongo

	var err error
	if m.Source, err = NewMongoConnector(ctx, "source", mc.SourceURI, mc.SourceDatabase, mc); err != nil {
		return nil, fmt.Errorf("failed to create source connector: %w", err)
	}

	if m.Working, err = NewMongoConnector(ctx, "working", mc.WorkingURI, mc.WorkingDatabase, mc); err != nil {
		_ = m.Close(ctx) // Clean up the connectors already opened
		return nil, fmt.Errorf("failed to create working connector: %w", err)
	}

	if m.Control, err = NewMongoConnector(ctx, "control", mc.ControlURI, mc.ControlDatabase, mc); err != nil {
		_ = m.Close(ctx)
		return nil, fmt.Errorf("failed to create control connector: %w", err)
	}

	return m, nil
}

// CreatePostgresConnector creates a new PostgreSQL connector
func (f *ConnectorFactory) CreatePostgresConnector(ctx context.Context) (*PostgresConnector, error) {
	f.logger.Info("Creating PostgreSQL connector")

	c, err := NewPostgresConnector(ctx, &f.cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connector: %w", err)
	}

	return c, nil
}
