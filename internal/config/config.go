// Package config loads and validates fleetscore configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Validator ValidatorConfig `mapstructure:"validator"`
	Evidence  EvidenceConfig  `mapstructure:"evidence"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Search    SearchConfig    `mapstructure:"search"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Export    ExportConfig    `mapstructure:"export"`
	Progress  ProgressConfig  `mapstructure:"progress"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// EngineConfig governs run orchestration: worker counts, phase budgets,
// and per-phase source caps.
type EngineConfig struct {
	Workers          int           `mapstructure:"workers"`
	RunWorkers       int           `mapstructure:"run_workers"`
	QueueDepth       int           `mapstructure:"queue_depth"`
	QualityThreshold float64       `mapstructure:"quality_threshold"`
	PriorityBudget   time.Duration `mapstructure:"priority_budget"`
	SearchBudget     time.Duration `mapstructure:"search_budget"`
	CrawlBudget      time.Duration `mapstructure:"crawl_budget"`
	MaxDocuments     int           `mapstructure:"max_documents"`
	MaxDocumentChars int           `mapstructure:"max_document_chars"`
	MaxSearchPages   int           `mapstructure:"max_search_pages"`
	MaxCrawlPages    int           `mapstructure:"max_crawl_pages"`
	CrawlDepth       int           `mapstructure:"crawl_depth"`
	// QueriesPerCriterion bounds the enhanced-search query fan-out.
	QueriesPerCriterion int `mapstructure:"queries_per_criterion"`
}

// BatchConfig sets the text batcher budgets.
type BatchConfig struct {
	Size               int     `mapstructure:"size"`
	Overlap            int     `mapstructure:"overlap"`
	FirstChunk         int     `mapstructure:"first_chunk"`
	MaxPerDocument     int     `mapstructure:"max_per_document"`
	ReductionThreshold float64 `mapstructure:"reduction_threshold"`
	MinKeptChars       int     `mapstructure:"min_kept_chars"`
}

// ValidatorConfig sets the document screening thresholds.
type ValidatorConfig struct {
	MentionThreshold       int `mapstructure:"mention_threshold"`
	DomainMentionThreshold int `mapstructure:"domain_mention_threshold"`
	MinTextChars           int `mapstructure:"min_text_chars"`
	MinKeywordHits         int `mapstructure:"min_keyword_hits"`
}

// EvidenceConfig sets the evidence schema validation thresholds.
type EvidenceConfig struct {
	MinQuoteChars     int `mapstructure:"min_quote_chars"`
	LowConfidenceWarn int `mapstructure:"low_confidence_warn"`
}

// FetchConfig configures the HTTP fetcher and its politeness controls.
type FetchConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	DomainRPS     float64       `mapstructure:"domain_rps"`
	DomainBurst   int           `mapstructure:"domain_burst"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaxParallel     int           `mapstructure:"max_parallel"`
	NavTimeout      time.Duration `mapstructure:"nav_timeout"`
	PromotionThresh int           `mapstructure:"promotion_threshold"`
}

// SearchConfig holds search collaborator credentials and limits.
type SearchConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	EngineID   string        `mapstructure:"engine_id"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxResults int           `mapstructure:"max_results"`
}

// OracleConfig holds the analysis oracle client settings.
type OracleConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxTokens int           `mapstructure:"max_tokens"`
}

// StorageConfig selects the source archive backend.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database. An empty DSN
// disables persistence.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// ExportConfig controls where one-shot runs write their JSON results.
type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

// ProgressConfig tunes the progress hub batching behavior.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FLEETSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")

	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.run_workers", 2)
	v.SetDefault("engine.queue_depth", 64)
	v.SetDefault("engine.quality_threshold", 2.0)
	v.SetDefault("engine.priority_budget", "15m")
	v.SetDefault("engine.search_budget", "10m")
	v.SetDefault("engine.crawl_budget", "40m")
	v.SetDefault("engine.max_documents", 3)
	v.SetDefault("engine.max_document_chars", 200000)
	v.SetDefault("engine.max_search_pages", 8)
	v.SetDefault("engine.max_crawl_pages", 12)
	v.SetDefault("engine.crawl_depth", 2)
	v.SetDefault("engine.queries_per_criterion", 2)

	v.SetDefault("batch.size", 8000)
	v.SetDefault("batch.overlap", 500)
	v.SetDefault("batch.first_chunk", 25000)
	v.SetDefault("batch.max_per_document", 5)
	v.SetDefault("batch.reduction_threshold", 0.90)
	v.SetDefault("batch.min_kept_chars", 1000)

	v.SetDefault("validator.mention_threshold", 2)
	v.SetDefault("validator.domain_mention_threshold", 1)
	v.SetDefault("validator.min_text_chars", 300)
	v.SetDefault("validator.min_keyword_hits", 2)

	v.SetDefault("evidence.min_quote_chars", 5)
	v.SetDefault("evidence.low_confidence_warn", 40)

	v.SetDefault("fetch.user_agent", "fleetscore-bot/1.0")
	v.SetDefault("fetch.timeout", "12s")
	v.SetDefault("fetch.max_body_bytes", 10<<20)
	v.SetDefault("fetch.respect_robots", true)
	v.SetDefault("fetch.domain_rps", 1.0)
	v.SetDefault("fetch.domain_burst", 2)
	v.SetDefault("fetch.retry_attempts", 2)

	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout", "12s")
	v.SetDefault("headless.promotion_threshold", 2048)

	v.SetDefault("search.timeout", "10s")
	v.SetDefault("search.max_results", 10)

	v.SetDefault("oracle.model", "gpt-4o-mini")
	v.SetDefault("oracle.timeout", "30s")
	v.SetDefault("oracle.max_tokens", 2000)

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.prefix", "sources")

	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 0)

	v.SetDefault("pubsub.enabled", false)

	v.SetDefault("export.dir", "results")

	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.max_batch_events", 1000)
	v.SetDefault("progress.max_batch_wait", "500ms")
	v.SetDefault("progress.sink_timeout", "10s")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535]")
	}
	if c.Engine.Workers <= 0 {
		return fmt.Errorf("engine.workers must be > 0")
	}
	if c.Engine.RunWorkers <= 0 {
		return fmt.Errorf("engine.run_workers must be > 0")
	}
	if c.Engine.QueueDepth <= 0 {
		return fmt.Errorf("engine.queue_depth must be > 0")
	}
	if c.Engine.QualityThreshold < 0 {
		return fmt.Errorf("engine.quality_threshold must be >= 0")
	}
	if c.Batch.Size <= 0 {
		return fmt.Errorf("batch.size must be > 0")
	}
	if c.Batch.Overlap < 0 || c.Batch.Overlap >= c.Batch.Size {
		return fmt.Errorf("batch.overlap must be in [0, batch.size)")
	}
	if c.Batch.ReductionThreshold <= 0 || c.Batch.ReductionThreshold > 1 {
		return fmt.Errorf("batch.reduction_threshold must be in (0, 1]")
	}
	switch c.Storage.Backend {
	case "memory", "local", "gcs":
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs")
	}
	if c.Storage.Backend == "local" && c.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir must be set for the local backend")
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicID == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_id must be set when pubsub is enabled")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Fetch.RetryAttempts < 0 {
		return fmt.Errorf("fetch.retry_attempts must be >= 0")
	}
	return nil
}
