package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the question engine.
// Configuration can come from YAML file (config.yaml) or environment
// variables; environment variables always override YAML values. Secrets
// (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// ConfigRoot is the directory holding sections/ and questions/ descriptors.
	ConfigRoot string `yaml:"config_root" env:"QUESTION_CONFIG_ROOT" env-default:"./questionconfig"`

	// Evaluator tuning
	Evaluator EvaluatorConfig `yaml:"evaluator"`

	// Database configuration (PostgreSQL system of record)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (remote state cache)
	Redis RedisConfig `yaml:"redis"`

	// Kafka configuration (answer write-back queue)
	Kafka KafkaConfig `yaml:"kafka"`
}

// EvaluatorConfig tunes the question evaluator's local latency budget and
// the per-call timeouts on external I/O.
type EvaluatorConfig struct {
	// BudgetMs is the evaluator's soft deadline. Partial results are
	// returned when it fires; it is independent of the transport deadline.
	BudgetMs int `yaml:"budget_ms" env:"EVALUATE_BUDGET_MS" env-default:"8"`

	// QueryTimeoutMs bounds each system-of-record query.
	QueryTimeoutMs int `yaml:"query_timeout_ms" env:"QUERY_TIMEOUT_MS" env-default:"5"`

	// CacheTimeoutMs bounds each remote-cache round trip.
	CacheTimeoutMs int `yaml:"cache_timeout_ms" env:"CACHE_TIMEOUT_MS" env-default:"2"`
}

// Budget returns the evaluator budget as a duration.
func (c *EvaluatorConfig) Budget() time.Duration {
	return time.Duration(c.BudgetMs) * time.Millisecond
}

// QueryTimeout returns the per-query timeout as a duration.
func (c *EvaluatorConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutMs) * time.Millisecond
}

// CacheTimeout returns the per-cache-op timeout as a duration.
func (c *EvaluatorConfig) CacheTimeout() time.Duration {
	return time.Duration(c.CacheTimeoutMs) * time.Millisecond
}

// DatabaseConfig holds PostgreSQL configuration for the system of record.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"lendvoice"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"origination"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds remote-cache configuration.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`

	// TTLSeconds is the expiry shared by all four split keys of a proposal.
	TTLSeconds int `yaml:"ttl_seconds" env:"CACHE_TTL_SECONDS" env-default:"3600"`
}

// TTL returns the split-key TTL as a duration.
func (c *RedisConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// KafkaConfig holds the answer write-back queue configuration.
type KafkaConfig struct {
	// BrokersStr is a comma-separated seed broker list.
	BrokersStr string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	Topic      string `yaml:"topic" env:"KAFKA_ANSWER_TOPIC" env-default:"loan-answer-updates"`

	// Brokers is parsed from BrokersStr (not from config file).
	Brokers []string `yaml:"-"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	cfg.parseComplexFields()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() {
	c.Kafka.Brokers = c.Kafka.Brokers[:0]
	for _, broker := range strings.Split(c.Kafka.BrokersStr, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			c.Kafka.Brokers = append(c.Kafka.Brokers, broker)
		}
	}
}

func (c *Config) validate() error {
	if c.ConfigRoot == "" {
		return fmt.Errorf("config_root must be set")
	}
	if c.Evaluator.BudgetMs <= 0 {
		return fmt.Errorf("evaluator budget_ms must be positive, got %d", c.Evaluator.BudgetMs)
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers must not be empty")
	}
	return nil
}
