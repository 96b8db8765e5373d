// pkg/connector/postgres.go
package connector

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/David-Botos/flat-ingress/pkg/config"
)

// PostgresConnector holds the PostgreSQL pool used by the control backend
type PostgresConnector struct {
	db     *sqlx.DB
	logger *zap.Logger
	cfg    *config.PostgresConfig
}

var _ Connector = (*PostgresConnector)(nil)

// NewPostgresConnector creates and initializes a new PostgreSQL connector
func NewPostgresConnector(ctx context.Context, cfg *config.PostgresConfig) (*PostgresConnector, error) {
	logger := zap.L().Named("postgres-connector")

	// Log connection attempt
	logger.Info("Connecting to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.String("user", cfg.User))

	connStr := cfg.ConnectionString()
	// lib/pq forwards unknown keys as session parameters, so every pooled
	// connection gets the timeout
	if cfg.StatementTimeout > 0 {
		connStr = fmt.Sprintf("%s statement_timeout=%d", connStr, cfg.StatementTimeout.Milliseconds())
	}

	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL connection: %w", err)
	}

	// Configure connection pool
	ApplyConnectionSettings(
		db.DB,
		cfg.MaxOpenConns,
		cfg.MaxIdleConns,
		cfg.ConnMaxLifetime,
		cfg.ConnMaxIdleTime,
	)

	c := &PostgresConnector{
		db:     db,
		logger: logger,
		cfg:    cfg,
	}

	// Verify connection
	if err := c.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	LogConnectionStats(logger, cfg.Database, db.DB)
	return c, nil
}

// Name returns the connector name
func (c *PostgresConnector) Name() string {
	return "postgres"
}

// DB returns the underlying pool
func (c *PostgresConnector) DB() *sqlx.DB {
	return c.db
}

// Ping verifies the database is reachable
func (c *PostgresConnector) Ping(ctx context.Context) error {
	return PingWithTimeout(ctx, defaultPingTimeout, c.db.PingContext)
}

// Close closes the pool
func (c *PostgresConnector) Close(ctx context.Context) error {
	c.logger.Info("Closing PostgreSQL connection")
	LogConnectionStats(c.logger, c.cfg.Database, c.db.DB)
	return c.db.Close()
}
