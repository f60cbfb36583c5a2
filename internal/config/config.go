// Package config defines the configuration structures of KeyIP-Attribution,
// their defaults, and the viper-based loader.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds the PostgreSQL parameters for the person source and
// the run ledger, which share one database.
type DatabaseConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	DBName           string        `mapstructure:"db_name"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	LedgerEnabled    bool          `mapstructure:"ledger_enabled"`
	AutoMigrate      bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds Redis connection and cache parameters.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	RunLockTTL   time.Duration `mapstructure:"run_lock_ttl"`
}

// KafkaConfig holds run-event producer and consumer parameters.
type KafkaConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Brokers        []string      `mapstructure:"brokers"`
	GroupID        string        `mapstructure:"group_id"`
	RequestTopic   string        `mapstructure:"request_topic"`
	CompletedTopic string        `mapstructure:"completed_topic"`
	FailedTopic    string        `mapstructure:"failed_topic"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// MinIOConfig holds artifact object storage parameters.
type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
}

// MetricsConfig controls the Prometheus registry.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
	Path      string `mapstructure:"path"`
}

// AnalysisConfig holds the default query and engine parameters.
type AnalysisConfig struct {
	Country     string   `mapstructure:"country"`
	StartYear   int      `mapstructure:"start_year"`
	EndYear     int      `mapstructure:"end_year"`
	TopK        int      `mapstructure:"top_k"`
	Charts      []string `mapstructure:"charts"`
	Concurrency int      `mapstructure:"concurrency"`
	Summarize   bool     `mapstructure:"summarize"`
}

// LLMConfig selects and tunes the summarization backend.
type LLMConfig struct {
	Backend     string        `mapstructure:"backend"` // "ollama" | "openai" | "gemini" | "none"
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Temperature float64       `mapstructure:"temperature"`
}

// OutputConfig controls where run artifacts land.
type OutputConfig struct {
	Dir    string `mapstructure:"dir"`
	Upload bool   `mapstructure:"upload"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object.
type Config struct {
	Server   ServerConfig      `mapstructure:"server"`
	Database DatabaseConfig    `mapstructure:"database"`
	Redis    RedisConfig       `mapstructure:"redis"`
	Kafka    KafkaConfig       `mapstructure:"kafka"`
	MinIO    MinIOConfig       `mapstructure:"minio"`
	Metrics  MetricsConfig     `mapstructure:"metrics"`
	Log      logging.LogConfig `mapstructure:"log"`
	Analysis AnalysisConfig    `mapstructure:"analysis"`
	LLM      LLMConfig         `mapstructure:"llm"`
	Output   OutputConfig      `mapstructure:"output"`
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"json": true, "console": true}
	validBackends   = map[string]bool{LLMBackendOllama: true, LLMBackendOpenAI: true, LLMBackendGemini: true, LLMBackendNone: true}
)

// LLM backend names.
const (
	LLMBackendOllama = "ollama"
	LLMBackendOpenAI = "openai"
	LLMBackendGemini = "gemini"
	LLMBackendNone   = "none"
)

// Validate performs semantic validation of a defaulted Config.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when redis is enabled")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.GroupID == "" {
			return fmt.Errorf("config: kafka.group_id is required")
		}
	}

	if c.MinIO.Enabled && (c.MinIO.Endpoint == "" || c.MinIO.Bucket == "") {
		return fmt.Errorf("config: minio.endpoint and minio.bucket are required when minio is enabled")
	}
	if c.Output.Upload && !c.MinIO.Enabled {
		return fmt.Errorf("config: output.upload requires minio.enabled")
	}

	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return fmt.Errorf("config: metrics.namespace is required when metrics are enabled")
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	if len(c.Analysis.Country) != 2 {
		return fmt.Errorf("config: analysis.country %q must be a two-letter code", c.Analysis.Country)
	}
	if c.Analysis.StartYear > c.Analysis.EndYear {
		return fmt.Errorf("config: analysis.start_year %d is after end_year %d", c.Analysis.StartYear, c.Analysis.EndYear)
	}
	if c.Analysis.TopK < 1 {
		return fmt.Errorf("config: analysis.top_k must be >= 1, got %d", c.Analysis.TopK)
	}
	if c.Analysis.Concurrency < 1 {
		return fmt.Errorf("config: analysis.concurrency must be >= 1, got %d", c.Analysis.Concurrency)
	}

	if !validBackends[c.LLM.Backend] {
		return fmt.Errorf("config: llm.backend %q is invalid; expected ollama|openai|gemini|none", c.LLM.Backend)
	}
	if (c.LLM.Backend == LLMBackendOpenAI || c.LLM.Backend == LLMBackendGemini) && c.LLM.APIKey == "" {
		return fmt.Errorf("config: llm.api_key is required for backend %q", c.LLM.Backend)
	}

	if c.Output.Dir == "" {
		return fmt.Errorf("config: output.dir is required")
	}
	return nil
}
