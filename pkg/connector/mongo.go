// pkg/connector/mongo.go
package connector

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/David-Botos/flat-ingress/pkg/config"
)

// MongoConnector wraps a MongoDB client bound to one database
type MongoConnector struct {
	name   string
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

var _ Connector = (*MongoConnector)(nil)

// NewMongoConnector connects to uri and verifies the connection with a ping
func NewMongoConnector(ctx context.Context, name, uri, database string, cfg *config.MongoConfig) (*MongoConnector, error) {
	logger := zap.L().Named("mongo-connector").With(zap.String("connector", name))

	logger.Info("Connecting to MongoDB", zap.String("database", database))

	opts := options.Client().ApplyURI(uri).SetAppName("flat-ingress")
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	if cfg.ServerSelectionTimeout > 0 {
		opts.SetServerSelectionTimeout(cfg.ServerSelectionTimeout)
	}
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(uint64(cfg.MaxPoolSize))
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MongoDB client %s: %w", name, err)
	}

	c := &MongoConnector{
		name:   name,
		client: client,
		db:     client.Database(database),
		logger: logger,
	}

	// Verify connection
	if err := c.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to connect to MongoDB %s: %w", name, err)
	}

	logger.Info("Connected to MongoDB", zap.String("database", database))
	return c, nil
}

// NewMongoConnectorFromClient wraps an existing client
func NewMongoConnectorFromClient(name string, client *mongo.Client, database string) *MongoConnector {
	return &MongoConnector{
		name:   name,
		client: client,
		db:     client.Database(database),
		logger: zap.L().Named("mongo-connector").With(zap.String("connector", name)),
	}
}

// Name returns the connector name
func (c *MongoConnector) Name() string {
	return c.name
}

// Client returns the underlying client
func (c *MongoConnector) Client() *mongo.Client {
	return c.client
}

// Database returns the bound database
func (c *MongoConnector) Database() *mongo.Database {
	return c.db
}

// Ping checks the primary is reachable
func (c *MongoConnector) Ping(ctx context.Context) error {
	return PingWithTimeout(ctx, defaultPingTimeout, func(ctx context.Context) error {
		return c.client.Ping(ctx, readpref.Primary())
	})
}

// Close disconnects the client
func (c *MongoConnector) Close(ctx context.Context) error {
	c.logger.Info("Closing MongoDB connection")
	return c.client.Disconnect(ctx)
}
