package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the minutes service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Index     IndexConfig     `mapstructure:"index"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug             bool          `mapstructure:"debug"`
	LogLevel          string        `mapstructure:"log_level"`
	MaxProcessingTime time.Duration `mapstructure:"max_processing_time"`
	DefaultTimeout    time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // openai, local, etc.
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string   `mapstructure:"name"`
	APIName         string   `mapstructure:"api_name"`
	MaxTokens       int      `mapstructure:"max_tokens"`
	Temperature     float64  `mapstructure:"temperature"`
	CostPer1K       float64  `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64  `mapstructure:"cost_per_1k_output"`
	Capabilities    []string `mapstructure:"capabilities"` // summarization, extraction, embedding
}

// LLMRoutingConfig defines which model tier to use for each pipeline concern
type LLMRoutingConfig struct {
	Summarization string `mapstructure:"summarization"` // chunk and partial summaries
	Extraction    string `mapstructure:"extraction"`    // structured item extraction
	Executive     string `mapstructure:"executive"`     // executive synthesis
	Embedding     string `mapstructure:"embedding"`     // semantic vectors
	Fallback      string `mapstructure:"fallback"`      // higher tier for the quality gate retry
}

// PipelineConfig carries the extraction pipeline thresholds. Thresholds are
// configuration, not constants: over-aggressive hard filtering has dropped
// valid decisions before, so downstream stages rank rather than drop.
type PipelineConfig struct {
	MaxConcurrentJobs int `mapstructure:"max_concurrent_jobs"`

	TopicSimilarityThreshold float64 `mapstructure:"topic_similarity_threshold"`
	TopicWindow              int     `mapstructure:"topic_window"`
	ChunkMaxTokens           int     `mapstructure:"chunk_max_tokens"`
	ChunkMinTokens           int     `mapstructure:"chunk_min_tokens"`

	IntentThreshold float64 `mapstructure:"intent_threshold"`

	DedupDecisionThreshold float64 `mapstructure:"dedup_decision_threshold"`
	DedupActionThreshold   float64 `mapstructure:"dedup_action_threshold"`
	DedupRiskThreshold     float64 `mapstructure:"dedup_risk_threshold"`

	ProvenanceTopK          int     `mapstructure:"provenance_top_k"`
	ProvenanceSemanticFloor float64 `mapstructure:"provenance_semantic_floor"`
	ProvenanceKeywordFloor  float64 `mapstructure:"provenance_keyword_floor"`
	SupportThreshold        float64 `mapstructure:"support_threshold"`

	QualityRedundancyMax float64 `mapstructure:"quality_redundancy_max"`
	QualityMinItems      int     `mapstructure:"quality_min_items"`
	QualityMinConfidence float64 `mapstructure:"quality_min_confidence"`

	ChunkSummaryTokens int `mapstructure:"chunk_summary_tokens"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	File     FileConfig     `mapstructure:"file"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DSN builds a Postgres connection string from the configured fields.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == 0 {
		port = 5432
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Addr returns the host:port address of the Redis instance.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// FileConfig contains file storage settings
type FileConfig struct {
	UploadDir   string `mapstructure:"upload_dir"`
	DataDir     string `mapstructure:"data_dir"`
	MaxUploadMB int    `mapstructure:"max_upload_mb"`
}

// WorkerConfig contains job queue and background worker settings
type WorkerConfig struct {
	JobStream       string        `mapstructure:"job_stream"`
	Group           string        `mapstructure:"group"`
	Consumer        string        `mapstructure:"consumer"`
	ReadBlock       time.Duration `mapstructure:"read_block"`
	ClaimMinIdle    time.Duration `mapstructure:"claim_min_idle"`
	RetentionCron   string        `mapstructure:"retention_cron"`
	RetentionMaxAge time.Duration `mapstructure:"retention_max_age"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	CostTracking bool   `mapstructure:"cost_tracking"`
	PeriodicLogs bool   `mapstructure:"periodic_logs"`
	LogFile      string `mapstructure:"log_file"`
}

// IndexConfig contains full-text index settings. An empty path keeps the
// index in memory.
type IndexConfig struct {
	Path string `mapstructure:"path"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("minutes")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("MINUTES")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Config file is optional; defaults plus env cover the common case.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("general.debug", false)
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.max_processing_time", "10m")
	viper.SetDefault("general.default_timeout", "30s")

	viper.SetDefault("server.address", ":10010")

	viper.SetDefault("llm.routing.summarization", "gpt-5-mini")
	viper.SetDefault("llm.routing.extraction", "gpt-5-mini")
	viper.SetDefault("llm.routing.executive", "gpt-5")
	viper.SetDefault("llm.routing.embedding", "text-embedding-3-small")
	viper.SetDefault("llm.routing.fallback", "gpt-5")

	viper.SetDefault("pipeline.max_concurrent_jobs", 4)
	viper.SetDefault("pipeline.topic_similarity_threshold", 0.7)
	viper.SetDefault("pipeline.topic_window", 3)
	viper.SetDefault("pipeline.chunk_max_tokens", 600)
	viper.SetDefault("pipeline.chunk_min_tokens", 200)
	viper.SetDefault("pipeline.intent_threshold", 0.6)
	viper.SetDefault("pipeline.dedup_decision_threshold", 0.8)
	viper.SetDefault("pipeline.dedup_action_threshold", 0.75)
	viper.SetDefault("pipeline.dedup_risk_threshold", 0.8)
	viper.SetDefault("pipeline.provenance_top_k", 3)
	viper.SetDefault("pipeline.provenance_semantic_floor", 0.3)
	viper.SetDefault("pipeline.provenance_keyword_floor", 0.1)
	viper.SetDefault("pipeline.support_threshold", 0.3)
	viper.SetDefault("pipeline.quality_redundancy_max", 0.3)
	viper.SetDefault("pipeline.quality_min_items", 5)
	viper.SetDefault("pipeline.quality_min_confidence", 0.5)
	viper.SetDefault("pipeline.chunk_summary_tokens", 120)

	viper.SetDefault("storage.postgres.port", 5432)
	viper.SetDefault("storage.postgres.sslmode", "disable")
	viper.SetDefault("storage.postgres.timeout", "5s")
	viper.SetDefault("storage.redis.host", "localhost")
	viper.SetDefault("storage.redis.port", 6379)
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.redis.timeout", "5s")
	viper.SetDefault("storage.file.upload_dir", "./data/uploads")
	viper.SetDefault("storage.file.data_dir", "./data")
	viper.SetDefault("storage.file.max_upload_mb", 25)

	viper.SetDefault("worker.job_stream", "meeting.enqueued")
	viper.SetDefault("worker.group", "minutes-workers")
	viper.SetDefault("worker.consumer", "worker-1")
	viper.SetDefault("worker.read_block", "5s")
	viper.SetDefault("worker.claim_min_idle", "1m")
	viper.SetDefault("worker.retention_cron", "0 3 * * *")
	viper.SetDefault("worker.retention_max_age", "720h")

	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.metrics_port", 9090)
	viper.SetDefault("telemetry.cost_tracking", true)
	viper.SetDefault("telemetry.periodic_logs", false)

	viper.SetDefault("index.path", "")
}

// overrideFromEnv overrides configuration with environment variables
func overrideFromEnv() {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		viper.Set("llm.providers.openai.api_key", apiKey)
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		viper.Set("storage.postgres.url", url)
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		viper.Set("storage.postgres.host", host)
	}
	if port := os.Getenv("POSTGRES_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("storage.postgres.port", p)
		}
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		viper.Set("storage.postgres.user", user)
	}
	if pass := os.Getenv("POSTGRES_PASSWORD"); pass != "" {
		viper.Set("storage.postgres.password", pass)
	}
	if db := os.Getenv("POSTGRES_DB"); db != "" {
		viper.Set("storage.postgres.dbname", db)
	}

	if host := os.Getenv("REDIS_HOST"); host != "" {
		viper.Set("storage.redis.host", host)
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("storage.redis.port", p)
		}
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		viper.Set("storage.redis.password", password)
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		viper.Set("server.jwt_secret", secret)
	}
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if len(config.LLM.Providers) == 0 {
		return fmt.Errorf("at least one LLM provider must be configured")
	}

	routingModels := []string{
		config.LLM.Routing.Summarization,
		config.LLM.Routing.Extraction,
		config.LLM.Routing.Executive,
		config.LLM.Routing.Embedding,
		config.LLM.Routing.Fallback,
	}
	for _, model := range routingModels {
		if model == "" {
			continue
		}
		found := false
		for _, provider := range config.LLM.Providers {
			for _, providerModel := range provider.Models {
				if providerModel.Name == model {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return fmt.Errorf("routing model '%s' not found in any provider", model)
		}
	}

	p := &config.Pipeline
	for name, v := range map[string]float64{
		"topic_similarity_threshold": p.TopicSimilarityThreshold,
		"intent_threshold":           p.IntentThreshold,
		"dedup_decision_threshold":   p.DedupDecisionThreshold,
		"dedup_action_threshold":     p.DedupActionThreshold,
		"dedup_risk_threshold":       p.DedupRiskThreshold,
		"support_threshold":          p.SupportThreshold,
		"quality_min_confidence":     p.QualityMinConfidence,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("pipeline.%s must be within [0,1]", name)
		}
	}
	if p.ChunkMinTokens > p.ChunkMaxTokens {
		return fmt.Errorf("pipeline.chunk_min_tokens must not exceed chunk_max_tokens")
	}

	return nil
}
