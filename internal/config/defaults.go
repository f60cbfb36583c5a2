package config

import (
	"time"

	"github.com/spf13/viper"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerHost      = "0.0.0.0"
	DefaultServerPort      = 8080
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 5 * time.Minute
	DefaultMaxBodySize     = 8 << 20
	DefaultShutdownTimeout = 15 * time.Second

	DefaultDBHost             = "localhost"
	DefaultDBPort             = 5432
	DefaultDBName             = "patstat"
	DefaultDBSSLMode          = "disable"
	DefaultDBMaxOpenConns     = 10
	DefaultDBMaxIdleConns     = 5
	DefaultDBConnMaxLifetime  = 30 * time.Minute
	DefaultDBStatementTimeout = 2 * time.Minute

	DefaultRedisAddr       = "localhost:6379"
	DefaultRedisPoolSize   = 10
	DefaultRedisTTL        = 6 * time.Hour
	DefaultRedisKeyPrefix  = "attrib:"
	DefaultRedisRunLockTTL = 10 * time.Minute

	DefaultKafkaBroker         = "localhost:9092"
	DefaultKafkaGroupID        = "attribution-worker"
	DefaultKafkaRequestTopic   = "attribution.report.requested"
	DefaultKafkaCompletedTopic = "attribution.report.completed"
	DefaultKafkaFailedTopic    = "attribution.report.failed"
	DefaultKafkaWriteTimeout   = 10 * time.Second
	DefaultKafkaMaxRetries     = 3

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "attribution-reports"

	DefaultMetricsNamespace = "attribution"
	DefaultMetricsPath      = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultCountry     = "NO"
	DefaultStartYear   = 2020
	DefaultEndYear     = 2020
	DefaultTopK        = 10
	DefaultConcurrency = 4

	DefaultLLMBackend     = LLMBackendOllama
	DefaultOllamaURL      = "http://localhost:11434"
	DefaultOpenAIURL      = "https://api.openai.com/v1"
	DefaultOllamaModel    = "llama3"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultGeminiModel    = "gemini-1.5-flash"
	DefaultLLMTimeout     = 2 * time.Minute
	DefaultLLMMaxRetries  = 2
	DefaultLLMTemperature = 0.2

	DefaultOutputDir = "output"
)

// ApplyDefaults fills every zero-value field in cfg with its default.
// Explicit values are kept. Booleans are defaulted through viper instead,
// since false cannot be told apart from unset here.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = DefaultDBSSLMode
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = DefaultDBMaxOpenConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = DefaultDBMaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = DefaultDBConnMaxLifetime
	}
	if cfg.Database.StatementTimeout == 0 {
		cfg.Database.StatementTimeout = DefaultDBStatementTimeout
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = DefaultRedisTTL
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.RunLockTTL == 0 {
		cfg.Redis.RunLockTTL = DefaultRedisRunLockTTL
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.RequestTopic == "" {
		cfg.Kafka.RequestTopic = DefaultKafkaRequestTopic
	}
	if cfg.Kafka.CompletedTopic == "" {
		cfg.Kafka.CompletedTopic = DefaultKafkaCompletedTopic
	}
	if cfg.Kafka.FailedTopic == "" {
		cfg.Kafka.FailedTopic = DefaultKafkaFailedTopic
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = DefaultKafkaWriteTimeout
	}
	if cfg.Kafka.MaxRetries == 0 {
		cfg.Kafka.MaxRetries = DefaultKafkaMaxRetries
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Analysis ──────────────────────────────────────────────────────────────
	if cfg.Analysis.Country == "" {
		cfg.Analysis.Country = DefaultCountry
	}
	if cfg.Analysis.StartYear == 0 {
		cfg.Analysis.StartYear = DefaultStartYear
	}
	if cfg.Analysis.EndYear == 0 {
		cfg.Analysis.EndYear = DefaultEndYear
	}
	if cfg.Analysis.TopK == 0 {
		cfg.Analysis.TopK = DefaultTopK
	}
	if cfg.Analysis.Concurrency == 0 {
		cfg.Analysis.Concurrency = DefaultConcurrency
	}

	// ── LLM ───────────────────────────────────────────────────────────────────
	if cfg.LLM.Backend == "" {
		cfg.LLM.Backend = DefaultLLMBackend
	}
	if cfg.LLM.BaseURL == "" {
		switch cfg.LLM.Backend {
		case LLMBackendOllama:
			cfg.LLM.BaseURL = DefaultOllamaURL
		case LLMBackendOpenAI:
			cfg.LLM.BaseURL = DefaultOpenAIURL
		}
	}
	if cfg.LLM.Model == "" {
		switch cfg.LLM.Backend {
		case LLMBackendOllama:
			cfg.LLM.Model = DefaultOllamaModel
		case LLMBackendOpenAI:
			cfg.LLM.Model = DefaultOpenAIModel
		case LLMBackendGemini:
			cfg.LLM.Model = DefaultGeminiModel
		}
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = DefaultLLMTimeout
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = DefaultLLMMaxRetries
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = DefaultLLMTemperature
	}

	// ── Output ────────────────────────────────────────────────────────────────
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = DefaultOutputDir
	}
}

// registerKeys declares every key with viper so that AutomaticEnv can resolve
// ATTRIB_* variables during Unmarshal even when no file mentions the key.
func registerKeys(v *viper.Viper) {
	v.SetDefault("server.host", DefaultServerHost)
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("database.host", DefaultDBHost)
	v.SetDefault("database.port", DefaultDBPort)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.db_name", DefaultDBName)
	v.SetDefault("database.ssl_mode", DefaultDBSSLMode)
	v.SetDefault("database.ledger_enabled", false)
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", DefaultRedisAddr)
	v.SetDefault("redis.password", "")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{DefaultKafkaBroker})
	v.SetDefault("kafka.group_id", DefaultKafkaGroupID)
	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", DefaultMinIOEndpoint)
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.bucket", DefaultMinIOBucket)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", DefaultMetricsNamespace)
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("analysis.country", DefaultCountry)
	v.SetDefault("analysis.start_year", DefaultStartYear)
	v.SetDefault("analysis.end_year", DefaultEndYear)
	v.SetDefault("analysis.top_k", DefaultTopK)
	v.SetDefault("analysis.summarize", true)
	v.SetDefault("llm.backend", DefaultLLMBackend)
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("output.dir", DefaultOutputDir)
	v.SetDefault("output.upload", false)
}
