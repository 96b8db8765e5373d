// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv   = "FLATINGRESS_CONFIG"
	defaultTimezone = "UTC"

	// ControlBackendMongo keeps control records and run logs in MongoDB
	ControlBackendMongo = "mongo"
	// ControlBackendPostgres keeps control records and run logs in PostgreSQL
	ControlBackendPostgres = "postgres"

	// ProjectionAggregate materializes the working partition server-side
	ProjectionAggregate = "aggregate"
	// ProjectionStream materializes the working partition client-side
	ProjectionStream = "stream"
)

// Config represents the application configuration
type Config struct {
	// Database connections
	Mongo          MongoConfig      `yaml:"mongo"`
	Postgres       PostgresConfig   `yaml:"postgres"`
	ControlBackend string           `yaml:"controlBackend"`
	Collections    CollectionConfig `yaml:"collections"`

	// Pipeline settings
	BatchSize  int              `yaml:"batchSize"`
	Projection ProjectionConfig `yaml:"projection"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	HTTP       HTTPConfig       `yaml:"http"`

	// LogRetentionDays is how long run logs are kept before the purge job removes them
	LogRetentionDays int `yaml:"logRetentionDays"`

	// Logging
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// ProjectionConfig selects how the working partition is materialized
type ProjectionConfig struct {
	Mode string `yaml:"mode"`
	// Atlas federated $out target; both must be set to use it
	AtlasProjectID   string `yaml:"atlasProjectId"`
	AtlasClusterName string `yaml:"atlasClusterName"`
}

// HasAtlasTarget reports whether both Atlas $out settings are present
func (p ProjectionConfig) HasAtlasTarget() bool {
	return p.AtlasProjectID != "" && p.AtlasClusterName != ""
}

// SchedulerConfig defines when runs and log retention are triggered
type SchedulerConfig struct {
	Enabled        bool   `yaml:"enabled"`
	CronExpression string `yaml:"cronExpression"`
	RetentionCron  string `yaml:"retentionCron"`
	Timezone       string `yaml:"timezone"`

	location *time.Location
}

// Location resolves the scheduler timezone. Run dates are computed in it too.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	return time.UTC
}

// HTTPConfig holds the API listener settings
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// LoadConfig loads the optional YAML file named by FLATINGRESS_CONFIG
// and then applies environment variables on top of it
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.bindTimezone(); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Mongo:          defaultMongoConfig(),
		Postgres:       defaultPostgresConfig(),
		ControlBackend: ControlBackendMongo,
		Collections:    defaultCollectionConfig(),
		BatchSize:      30000,
		Projection: ProjectionConfig{
			Mode: ProjectionAggregate,
		},
		Scheduler: SchedulerConfig{
			Enabled:        true,
			CronExpression: "0 0 * * * *",
			RetentionCron:  "0 0 2 * * *",
			Timezone:       defaultTimezone,
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		LogRetentionDays: 30,
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	// Unmarshal over the defaults so keys missing from the file keep them
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	c.Mongo.applyEnv()
	c.Postgres.applyEnv()
	c.Collections.applyEnv()

	c.ControlBackend = strings.ToLower(getEnv("CONTROL_BACKEND", c.ControlBackend))
	c.BatchSize = getEnvAsInt("BATCH_SIZE", c.BatchSize)

	c.Projection.Mode = strings.ToLower(getEnv("PROJECTION_MODE", c.Projection.Mode))
	c.Projection.AtlasProjectID = getEnv("ATLAS_PROJECT_ID", c.Projection.AtlasProjectID)
	c.Projection.AtlasClusterName = getEnv("ATLAS_CLUSTER_NAME", c.Projection.AtlasClusterName)

	c.Scheduler.Enabled = getEnvAsBool("SCHEDULER_ENABLED", c.Scheduler.Enabled)
	c.Scheduler.CronExpression = getEnv("SCHEDULER_CRON", c.Scheduler.CronExpression)
	c.Scheduler.RetentionCron = getEnv("RETENTION_CRON", c.Scheduler.RetentionCron)
	c.Scheduler.Timezone = getEnv("SCHEDULER_TIMEZONE", c.Scheduler.Timezone)

	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.ShutdownTimeout = getEnvAsSeconds("HTTP_SHUTDOWN_TIMEOUT_SECONDS", c.HTTP.ShutdownTimeout)

	c.LogRetentionDays = getEnvAsInt("LOG_RETENTION_DAYS", c.LogRetentionDays)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("invalid scheduler timezone %q: %w", tz, err)
	}
	c.Scheduler.Timezone = tz
	c.Scheduler.location = loc
	return nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.Mongo.Validate(); err != nil {
		return err
	}

	switch c.ControlBackend {
	case ControlBackendMongo:
	case ControlBackendPostgres:
		if err := c.Postgres.Validate(); err != nil {
			return fmt.Errorf("postgres control backend: %w", err)
		}
	default:
		return fmt.Errorf("unknown control backend %q", c.ControlBackend)
	}

	switch c.Projection.Mode {
	case ProjectionAggregate:
		// A plain $out only writes to the cluster it runs on
		if c.Mongo.SourceURI != c.Mongo.WorkingURI && !c.Projection.HasAtlasTarget() {
			return errors.New("aggregate projection cannot reach a working cluster other than the source: " +
				"set PROJECTION_MODE=stream or ATLAS_PROJECT_ID and ATLAS_CLUSTER_NAME")
		}
	case ProjectionStream:
	default:
		return fmt.Errorf("unknown projection mode %q", c.Projection.Mode)
	}

	// An unbounded batch would buffer the whole working partition in memory
	if c.BatchSize <= 0 {
		return errors.New("batch size must be positive")
	}

	if c.Collections.SourceField == "" {
		return errors.New("source field name is required")
	}

	if c.Scheduler.Enabled && c.Scheduler.CronExpression == "" {
		return errors.New("scheduler cron expression is required when the scheduler is enabled")
	}

	if c.LogRetentionDays < 0 {
		return errors.New("log retention days cannot be negative")
	}

	return nil
}

// LogRetention returns the retention window as a duration
func (c *Config) LogRetention() time.Duration {
	return time.Duration(c.LogRetentionDays) * 24 * time.Hour
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	seconds := getEnvAsInt(key, -1)
	if seconds < 0 {
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}
