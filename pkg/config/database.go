// pkg/config/database.go
package config

import (
	"errors"
	"fmt"
	"time"
)

// MongoConfig holds the three MongoDB endpoints used by a run.
// Source holds raw payloads, Working receives the partitions and Control
// holds the control record, run logs and availability records.
type MongoConfig struct {
	SourceURI       string `yaml:"sourceUri"`
	SourceDatabase  string `yaml:"sourceDatabase"`
	WorkingURI      string `yaml:"workingUri"`
	WorkingDatabase string `yaml:"workingDatabase"`
	ControlURI      string `yaml:"controlUri"`
	ControlDatabase string `yaml:"controlDatabase"`

	// Client settings
	MaxPoolSize            int           `yaml:"maxPoolSize"`
	ConnectTimeout         time.Duration `yaml:"connectTimeout"`
	ServerSelectionTimeout time.Duration `yaml:"serverSelectionTimeout"`
}

// CollectionConfig names the collections the pipeline reads and writes
type CollectionConfig struct {
	Source        string `yaml:"source"`
	SourceField   string `yaml:"sourceField"`
	Availability  string `yaml:"availability"`
	Control       string `yaml:"control"`
	RunLogs       string `yaml:"runLogs"`
	WorkingPrefix string `yaml:"workingPrefix"`
	ValidPrefix   string `yaml:"validPrefix"`
	InvalidPrefix string `yaml:"invalidPrefix"`
}

// PostgresConfig holds PostgreSQL connection parameters for the control backend
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslMode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	ConnMaxIdleTime time.Duration `yaml:"connMaxIdleTime"`

	// Statement timeout
	StatementTimeout time.Duration `yaml:"statementTimeout"`
}

func defaultMongoConfig() MongoConfig {
	return MongoConfig{
		SourceDatabase:         "flat",
		WorkingDatabase:        "flat",
		ControlDatabase:        "control",
		MaxPoolSize:            20,
		ConnectTimeout:         10 * time.Second,
		ServerSelectionTimeout: 10 * time.Second,
	}
}

func defaultCollectionConfig() CollectionConfig {
	return CollectionConfig{
		Source:        "flat",
		SourceField:   "DATA",
		Availability:  "load_data",
		Control:       "process_control",
		RunLogs:       "process_logs",
		WorkingPrefix: "temp",
		ValidPrefix:   "valid",
		InvalidPrefix: "invalid",
	}
}

func defaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:             "localhost",
		Port:             5432,
		SSLMode:          "disable",
		MaxOpenConns:     10,
		MaxIdleConns:     5,
		ConnMaxLifetime:  30 * time.Minute,
		ConnMaxIdleTime:  10 * time.Minute,
		StatementTimeout: 60 * time.Second,
	}
}

// applyEnv overrides Mongo settings from environment variables.
// A single MONGO_URI serves every endpoint that is not set explicitly.
func (c *MongoConfig) applyEnv() {
	shared := getEnv("MONGO_URI", "")
	c.SourceURI = getEnv("MONGO_SOURCE_URI", firstNonEmpty(c.SourceURI, shared))
	c.WorkingURI = getEnv("MONGO_WORKING_URI", firstNonEmpty(c.WorkingURI, shared))
	c.ControlURI = getEnv("MONGO_CONTROL_URI", firstNonEmpty(c.ControlURI, shared))
	c.SourceDatabase = getEnv("MONGO_SOURCE_DB", c.SourceDatabase)
	c.WorkingDatabase = getEnv("MONGO_WORKING_DB", c.WorkingDatabase)
	c.ControlDatabase = getEnv("MONGO_CONTROL_DB", c.ControlDatabase)
	c.MaxPoolSize = getEnvAsInt("MONGO_MAX_POOL_SIZE", c.MaxPoolSize)
	c.ConnectTimeout = getEnvAsSeconds("MONGO_CONNECT_TIMEOUT_SECONDS", c.ConnectTimeout)
	c.ServerSelectionTimeout = getEnvAsSeconds("MONGO_SERVER_SELECTION_TIMEOUT_SECONDS", c.ServerSelectionTimeout)
}

func (c *CollectionConfig) applyEnv() {
	c.Source = getEnv("SOURCE_COLLECTION", c.Source)
	c.SourceField = getEnv("SOURCE_FIELD", c.SourceField)
	c.Availability = getEnv("AVAILABILITY_COLLECTION", c.Availability)
	c.Control = getEnv("CONTROL_COLLECTION", c.Control)
	c.RunLogs = getEnv("RUN_LOG_COLLECTION", c.RunLogs)
	c.WorkingPrefix = getEnv("WORKING_PREFIX", c.WorkingPrefix)
	c.ValidPrefix = getEnv("VALID_PREFIX", c.ValidPrefix)
	c.InvalidPrefix = getEnv("INVALID_PREFIX", c.InvalidPrefix)
}

func (c *PostgresConfig) applyEnv() {
	c.Host = getEnv("POSTGRES_HOST", c.Host)
	c.Port = getEnvAsInt("POSTGRES_PORT", c.Port)
	c.User = getEnv("POSTGRES_USER", c.User)
	c.Password = getEnv("POSTGRES_PASSWORD", c.Password)
	c.Database = getEnv("POSTGRES_DB", c.Database)
	c.SSLMode = getEnv("POSTGRES_SSLMODE", c.SSLMode)
	c.MaxOpenConns = getEnvAsInt("POSTGRES_MAX_OPEN_CONNS", c.MaxOpenConns)
	c.MaxIdleConns = getEnvAsInt("POSTGRES_MAX_IDLE_CONNS", c.MaxIdleConns)
	c.ConnMaxLifetime = getEnvAsSeconds("POSTGRES_CONN_MAX_LIFETIME_SECONDS", c.ConnMaxLifetime)
	c.ConnMaxIdleTime = getEnvAsSeconds("POSTGRES_CONN_MAX_IDLE_TIME_SECONDS", c.ConnMaxIdleTime)
	c.StatementTimeout = getEnvAsSeconds("POSTGRES_STATEMENT_TIMEOUT_SECONDS", c.StatementTimeout)
}

// Validate checks the Mongo endpoints are configured
func (c *MongoConfig) Validate() error {
	if c.SourceURI == "" {
		return errors.New("MONGO_SOURCE_URI (or MONGO_URI) is required")
	}
	if c.WorkingURI == "" {
		return errors.New("MONGO_WORKING_URI (or MONGO_URI) is required")
	}
	if c.ControlURI == "" {
		return errors.New("MONGO_CONTROL_URI (or MONGO_URI) is required")
	}
	return nil
}

// Validate checks the PostgreSQL credentials are present
func (c *PostgresConfig) Validate() error {
	if c.User == "" {
		return errors.New("POSTGRES_USER environment variable is required")
	}
	if c.Password == "" {
		return errors.New("POSTGRES_PASSWORD environment variable is required")
	}
	if c.Database == "" {
		return errors.New("POSTGRES_DB environment variable is required")
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
