// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, RPC, Postgres, Kafka, Redis, Indexer, Facet, Coordinator,
// Analytics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	RPC         RPCConfig         `yaml:"rpc"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Redis       RedisConfig       `yaml:"redis"`
	Schema      SchemaConfig      `yaml:"schema"`
	Indexer     IndexerConfig     `yaml:"indexer"`
	Facet       FacetConfig       `yaml:"facet"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Analytics   AnalyticsConfig   `yaml:"analytics"`
	Logging     LoggingConfig     `yaml:"logging"`
	Tracing     TracingConfig     `yaml:"tracing"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`

	// RateLimitRPS is the per-client request budget; 0 disables limiting.
	RateLimitRPS   float64 `yaml:"rateLimitRps"`
	RateLimitBurst int     `yaml:"rateLimitBurst"`
}

// RPCConfig holds the shard RPC listener settings.
type RPCConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
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

	// DocumentQuery must select (id, field, value) rows ordered by id.
	DocumentQuery string `yaml:"documentQuery"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	StartOffset   string      `yaml:"startOffset"`
	Topics        KafkaTopics `yaml:"topics"`

	// Compression is the producer codec: none, gzip, snappy, lz4 or zstd.
	Compression string `yaml:"compression"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest string `yaml:"documentIngest"`
	IndexComplete  string `yaml:"indexComplete"`
	FacetEvents    string `yaml:"facetEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// FieldConfig declares one facetable field.
type FieldConfig struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	MultiValued bool   `yaml:"multiValued"`
}

// SchemaConfig lists the fields documents may carry.
type SchemaConfig struct {
	Fields []FieldConfig `yaml:"fields"`
}

// IndexerConfig controls when buffered documents are flushed into segment
// files and how those files are encoded.
type IndexerConfig struct {
	DataDir        string        `yaml:"dataDir"`
	SegmentMaxDocs int           `yaml:"segmentMaxDocs"`
	FlushInterval  time.Duration `yaml:"flushInterval"`
	ReloadInterval time.Duration `yaml:"reloadInterval"`
	Compression    string        `yaml:"compression"`

	// Source selects where documents come from: "kafka" or "postgres".
	Source string `yaml:"source"`
}

// FacetConfig controls single-node facet computation.
type FacetConfig struct {
	// Threads is the default per-request concurrency: 0 runs partitions on
	// the request goroutine, a negative value is unbounded.
	Threads int `yaml:"threads"`
	// EnumCacheMinDF is the document frequency at which enumeration stops
	// walking postings and intersects cached value sets instead.
	EnumCacheMinDF  int    `yaml:"enumCacheMinDf"`
	FilterCacheSize int    `yaml:"filterCacheSize"`
	DefaultLimit    int    `yaml:"defaultLimit"`
	MaxLimit        int    `yaml:"maxLimit"`
	DefaultMethod   string `yaml:"defaultMethod"`
}

// OverrequestConfig sizes the per-shard request: limit*Ratio + Count.
type OverrequestConfig struct {
	Ratio float64 `yaml:"ratio"`
	Count int     `yaml:"count"`
}

// RetryConfig mirrors resilience.RetryConfig.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	InitialDelay time.Duration `yaml:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
}

// BreakerConfig mirrors resilience.CircuitBreakerConfig.
type BreakerConfig struct {
	FailureThreshold    int           `yaml:"failureThreshold"`
	ResetTimeout        time.Duration `yaml:"resetTimeout"`
	HalfOpenMaxRequests int           `yaml:"halfOpenMaxRequests"`
}

// CoordinatorConfig controls distributed facet requests.
type CoordinatorConfig struct {
	Shards       []string          `yaml:"shards"`
	ShardTimeout time.Duration     `yaml:"shardTimeout"`
	Overrequest  OverrequestConfig `yaml:"overrequest"`
	Retry        RetryConfig       `yaml:"retry"`
	Breaker      BreakerConfig     `yaml:"breaker"`
}

// AnalyticsConfig controls event batching and aggregate snapshots.
type AnalyticsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging (sample rate).
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	if c.Facet.EnumCacheMinDF < 0 {
		return fmt.Errorf("facet.enumCacheMinDf must be >= 0, got %d", c.Facet.EnumCacheMinDF)
	}
	if c.Facet.DefaultLimit > c.Facet.MaxLimit && c.Facet.MaxLimit > 0 {
		return fmt.Errorf("facet.defaultLimit %d exceeds maxLimit %d", c.Facet.DefaultLimit, c.Facet.MaxLimit)
	}
	switch c.Facet.DefaultMethod {
	case "fc", "fcs", "enum":
	default:
		return fmt.Errorf("facet.defaultMethod %q is not one of fc, fcs, enum", c.Facet.DefaultMethod)
	}
	if c.Coordinator.Overrequest.Ratio < 1 {
		return fmt.Errorf("coordinator.overrequest.ratio must be >= 1, got %v", c.Coordinator.Overrequest.Ratio)
	}
	if c.Coordinator.Overrequest.Count < 0 {
		return fmt.Errorf("coordinator.overrequest.count must be >= 0, got %d", c.Coordinator.Overrequest.Count)
	}
	seen := make(map[string]bool, len(c.Schema.Fields))
	for _, f := range c.Schema.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema field with empty name")
		}
		if seen[f.Name] {
			return fmt.Errorf("schema field %q declared twice", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
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
			RequestTimeout:  10 * time.Second,
			RateLimitRPS:    200,
			RateLimitBurst:  400,
		},
		RPC: RPCConfig{
			Port:         9100,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "facetengine",
			User:            "facetengine",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			DocumentQuery:   "SELECT doc_id, field, value FROM document_fields ORDER BY doc_id",
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "facetengine",
			StartOffset:   "first",
			Compression:   "lz4",
			Topics: KafkaTopics{
				DocumentIngest: "document-ingest",
				IndexComplete:  "index.complete",
				FacetEvents:    "facet-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Indexer: IndexerConfig{
			DataDir:        "data/segments",
			SegmentMaxDocs: 50000,
			FlushInterval:  30 * time.Second,
			ReloadInterval: 15 * time.Second,
			Compression:    "lz4",
			Source:         "kafka",
		},
		Facet: FacetConfig{
			Threads:         4,
			EnumCacheMinDF:  16,
			FilterCacheSize: 4096,
			DefaultLimit:    100,
			MaxLimit:        10000,
			DefaultMethod:   "fcs",
		},
		Coordinator: CoordinatorConfig{
			ShardTimeout: 5 * time.Second,
			Overrequest: OverrequestConfig{
				Ratio: 1.5,
				Count: 10,
			},
			Retry: RetryConfig{
				MaxAttempts:  3,
				InitialDelay: 50 * time.Millisecond,
				MaxDelay:     time.Second,
			},
			Breaker: BreakerConfig{
				FailureThreshold:    5,
				ResetTimeout:        30 * time.Second,
				HalfOpenMaxRequests: 1,
			},
		},
		Analytics: AnalyticsConfig{
			Enabled:          true,
			BatchSize:        100,
			FlushInterval:    5 * time.Second,
			SnapshotInterval: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:    true,
			SampleRate: 1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads FE_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setList := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			*dst = strings.Split(v, ",")
		}
	}

	setInt("FE_SERVER_PORT", &cfg.Server.Port)
	setInt("FE_RPC_PORT", &cfg.RPC.Port)
	setString("FE_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("FE_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("FE_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("FE_POSTGRES_USER", &cfg.Postgres.User)
	setString("FE_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("FE_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	setList("FE_KAFKA_BROKERS", &cfg.Kafka.Brokers)
	setString("FE_REDIS_ADDR", &cfg.Redis.Addr)
	setString("FE_REDIS_PASSWORD", &cfg.Redis.Password)
	if v := os.Getenv("FE_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	setString("FE_INDEXER_DATA_DIR", &cfg.Indexer.DataDir)
	setString("FE_INDEXER_SOURCE", &cfg.Indexer.Source)
	setInt("FE_FACET_THREADS", &cfg.Facet.Threads)
	setInt("FE_FACET_ENUM_CACHE_MIN_DF", &cfg.Facet.EnumCacheMinDF)
	setString("FE_FACET_DEFAULT_METHOD", &cfg.Facet.DefaultMethod)
	setList("FE_COORDINATOR_SHARDS", &cfg.Coordinator.Shards)
	if v := os.Getenv("FE_ANALYTICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Analytics.Enabled = b
		}
	}
	setString("FE_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("FE_LOGGING_FORMAT", &cfg.Logging.Format)
}
