// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Resources, Store, Redis, Postgres, SQLite, Kafka,
// Analytics, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// DefaultStoragePrefix namespaces every storage key written by the resource
// cache so unrelated data sharing the same backend is never clobbered.
const DefaultStoragePrefix = "static-site-search-973804c0-"

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Resources ResourcesConfig `yaml:"resources"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Search    SearchConfig    `yaml:"search"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	RPC       RPCConfig       `yaml:"rpc"`
	Admin     AdminConfig     `yaml:"admin"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowOrigins    []string      `yaml:"allowOrigins"`
}

// Resource names one cached resource and the path it is fetched from,
// relative to ResourcesConfig.BaseURL unless absolute.
type Resource struct {
	Key  string `yaml:"key"`
	Path string `yaml:"path"`
}

// Keys of the two resources the index is unpacked from. Every
// configuration must fetch both.
const (
	ResourceIndex = "index"
	ResourceURLs  = "index_urls"
)

// ResourcesConfig controls where the index resources come from and how long
// a cached copy stays fresh.
type ResourcesConfig struct {
	BaseURL       string        `yaml:"baseUrl"`
	Items         []Resource    `yaml:"items"`
	Expiry        time.Duration `yaml:"expiry"`
	FetchTimeout  time.Duration `yaml:"fetchTimeout"`
	FetchAttempts int           `yaml:"fetchAttempts"`
	LoadOnStart   bool          `yaml:"loadOnStart"`
}

// StoreConfig selects the durable key-value backend.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Prefix  string `yaml:"prefix"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// SQLiteConfig holds the SQLite database location and pragmas.
type SQLiteConfig struct {
	Path        string `yaml:"path"`
	BusyTimeout int    `yaml:"busyTimeout"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexPublished  string `yaml:"indexPublished"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// SearchConfig controls result limits and request throttling.
type SearchConfig struct {
	DefaultLimit     int           `yaml:"defaultLimit"`
	MaxResults       int           `yaml:"maxResults"`
	RateLimit        int           `yaml:"rateLimit"`
	RateLimitWindow  time.Duration `yaml:"rateLimitWindow"`
	AnalyticsBuffer  int           `yaml:"analyticsBuffer"`
	ReadyWaitTimeout time.Duration `yaml:"readyWaitTimeout"`
}

// AnalyticsConfig controls event batching and where aggregated stats are
// snapshotted. An empty Snapshots keeps stats in memory only.
type AnalyticsConfig struct {
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	Snapshots        string        `yaml:"snapshots"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// RPCConfig controls the internal JSON-over-TCP RPC listener.
type RPCConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// AdminConfig guards the administrative endpoints.
type AdminConfig struct {
	Token string `yaml:"token"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values. A missing file at path is not an error.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	return defaultConfig()
}

// Validate checks the configuration for values the service cannot run with.
// Every problem is reported, not just the first.
func (c *Config) Validate() error {
	var result error
	if len(c.Resources.Items) == 0 {
		result = multierror.Append(result, errors.New("resources.items must name at least one resource"))
	}
	seen := make(map[string]struct{}, len(c.Resources.Items))
	for i, r := range c.Resources.Items {
		if r.Key == "" {
			result = multierror.Append(result, fmt.Errorf("resources.items[%d]: key is empty", i))
		}
		if r.Path == "" {
			result = multierror.Append(result, fmt.Errorf("resources.items[%d]: path is empty", i))
		}
		if _, dup := seen[r.Key]; dup {
			result = multierror.Append(result, fmt.Errorf("resources.items[%d]: duplicate key %q", i, r.Key))
		}
		seen[r.Key] = struct{}{}
	}
	for _, key := range []string{ResourceIndex, ResourceURLs} {
		if _, ok := seen[key]; !ok {
			result = multierror.Append(result, fmt.Errorf("resources.items must include key %q", key))
		}
	}
	if c.Resources.Expiry <= 0 {
		result = multierror.Append(result, errors.New("resources.expiry must be positive"))
	}
	if c.Resources.FetchTimeout < 0 {
		result = multierror.Append(result, errors.New("resources.fetchTimeout must not be negative"))
	}
	switch c.Store.Backend {
	case "memory", "sqlite", "redis", "postgres":
	default:
		result = multierror.Append(result, fmt.Errorf("store.backend %q is not one of memory, sqlite, redis, postgres", c.Store.Backend))
	}
	if c.Store.Backend == "sqlite" && c.SQLite.Path == "" {
		result = multierror.Append(result, errors.New("sqlite.path is required for the sqlite backend"))
	}
	if c.Search.MaxResults < 0 || c.Search.DefaultLimit < 0 {
		result = multierror.Append(result, errors.New("search limits must not be negative"))
	}
	switch c.Analytics.Snapshots {
	case "", "sqlite", "postgres":
	default:
		result = multierror.Append(result, fmt.Errorf("analytics.snapshots %q is not one of sqlite, postgres", c.Analytics.Snapshots))
	}
	if c.Analytics.Snapshots != "" && c.Analytics.SnapshotInterval <= 0 {
		result = multierror.Append(result, errors.New("analytics.snapshotInterval must be positive when snapshots are enabled"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		result = multierror.Append(result, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	return result
}

// defaultConfig returns a Config with defaults suitable for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			AllowOrigins:    []string{"*"},
		},
		Resources: ResourcesConfig{
			BaseURL: "http://localhost:8000/",
			Items: []Resource{
				{Key: ResourceIndex, Path: "index.json"},
				{Key: ResourceURLs, Path: "index_urls.json"},
			},
			Expiry:        24 * time.Hour,
			FetchAttempts: 1,
			LoadOnStart:   true,
		},
		Store: StoreConfig{
			Backend: "sqlite",
			Prefix:  DefaultStoragePrefix,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "sitesearch",
			User:            "sitesearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		SQLite: SQLiteConfig{
			Path:        "data/sitesearch.db",
			BusyTimeout: 10_000,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "sitesearch-group",
			Topics: KafkaTopics{
				IndexPublished:  "index-published",
				AnalyticsEvents: "analytics-events",
			},
		},
		Search: SearchConfig{
			DefaultLimit:     0,
			MaxResults:       100,
			RateLimit:        120,
			RateLimitWindow:  time.Minute,
			AnalyticsBuffer:  10000,
			ReadyWaitTimeout: 10 * time.Second,
		},
		Analytics: AnalyticsConfig{
			BatchSize:        100,
			FlushInterval:    5 * time.Second,
			SnapshotInterval: 5 * time.Minute,
		},
		RPC: RPCConfig{
			Port: 9100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SSS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SSS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SSS_RESOURCES_BASE_URL"); v != "" {
		cfg.Resources.BaseURL = v
	}
	if v := os.Getenv("SSS_RESOURCES_EXPIRY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Resources.Expiry = d
		}
	}
	if v := os.Getenv("SSS_RESOURCES_FETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Resources.FetchTimeout = d
		}
	}
	if v := os.Getenv("SSS_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("SSS_STORE_PREFIX"); v != "" {
		cfg.Store.Prefix = v
	}
	if v := os.Getenv("SSS_SQLITE_PATH"); v != "" {
		cfg.SQLite.Path = v
	}
	if v := os.Getenv("SSS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SSS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SSS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SSS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SSS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SSS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SSS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SSS_KAFKA_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = enabled
		}
	}
	if v := os.Getenv("SSS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SSS_ANALYTICS_SNAPSHOTS"); v != "" {
		cfg.Analytics.Snapshots = v
	}
	if v := os.Getenv("SSS_RPC_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.RPC.Enabled = enabled
		}
	}
	if v := os.Getenv("SSS_ADMIN_TOKEN"); v != "" {
		cfg.Admin.Token = v
	}
	if v := os.Getenv("SSS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SSS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
