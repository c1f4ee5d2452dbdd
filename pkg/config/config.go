package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for isaqe-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (the LLM API key) must only come from environment variables.
type Config struct {
	Environment string `yaml:"environment" env:"ENVIRONMENT" env-default:"development"`
	Version     string `yaml:"-"` // Set at load time, not from config

	App           AppConfig           `yaml:"app"`
	Postgres      PostgresConfig      `yaml:"postgres"`
	Redis         RedisConfig         `yaml:"redis"`
	LLM           LLMConfig           `yaml:"llm"`
	Schema        SchemaConfig        `yaml:"schema"`
	SQLGuardrails GuardrailConfig     `yaml:"sql_guardrails"`
	Observability ObservabilityConfig `yaml:"observability"`
	Security      SecurityConfig      `yaml:"security"`
	Prompts       PromptsConfig       `yaml:"prompts"`

	// LLMAPIKey selects the real LLM transport; when empty the engine runs
	// with the deterministic echo client. Never read from YAML.
	LLMAPIKey string `yaml:"-" env:"LLM_API_KEY"`
}

// AppConfig holds HTTP server settings.
type AppConfig struct {
	Host            string `yaml:"host" env:"APP_HOST" env-default:"0.0.0.0"`
	Port            int    `yaml:"port" env:"APP_PORT" env-default:"8000"`
	LogLevel        string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	MaxConcurrency  int    `yaml:"max_concurrency" env:"APP_MAX_CONCURRENCY" env-default:"100"`
	RequestTimeoutS int    `yaml:"request_timeout_s" env:"APP_REQUEST_TIMEOUT_S" env-default:"30"`
}

// PostgresConfig holds settings for the queried database.
type PostgresConfig struct {
	DSN                string `yaml:"dsn" env:"POSTGRES_DSN"`
	MinPoolSize        int32  `yaml:"min_pool_size" env:"POSTGRES_MIN_POOL_SIZE" env-default:"5"`
	MaxPoolSize        int32  `yaml:"max_pool_size" env:"POSTGRES_MAX_POOL_SIZE" env-default:"20"`
	StatementTimeoutMS int    `yaml:"statement_timeout_ms" env:"POSTGRES_STATEMENT_TIMEOUT_MS" env-default:"5000"`
	SampleLimit        int    `yaml:"sample_limit" env:"POSTGRES_SAMPLE_LIMIT" env-default:"500"`
	MaxLimit           int    `yaml:"max_limit" env:"POSTGRES_MAX_LIMIT" env-default:"1000"`
}

// RedisConfig holds cache settings. An empty URL starts the cache directly in
// its in-memory fallback mode.
type RedisConfig struct {
	URL                string `yaml:"url" env:"REDIS_URL" env-default:""`
	SchemaCacheTTLS    int    `yaml:"schema_cache_ttl_s" env:"REDIS_SCHEMA_CACHE_TTL_S" env-default:"7200"`
	EmbeddingCacheTTLS int    `yaml:"embedding_cache_ttl_s" env:"REDIS_EMBEDDING_CACHE_TTL_S" env-default:"86400"`
}

// RetryConfig bounds retries for one LLM call site.
type RetryConfig struct {
	Attempts       int     `yaml:"attempts" env-default:"3"`
	BackoffSeconds float64 `yaml:"backoff_seconds" env-default:"1.0"`
}

// LLMConfig holds model selection and call budgets.
type LLMConfig struct {
	Provider               string      `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Model                  string      `yaml:"model" env:"LLM_MODEL"`
	Temperature            float64     `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0"`
	MaxTokens              int         `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"1200"`
	RateLimitPerMinute     int         `yaml:"rate_limit_per_minute" env:"LLM_RATE_LIMIT_PER_MINUTE" env-default:"100"`
	ReasonerRetryConfig    RetryConfig `yaml:"reasoner_retry_config"`
	SynthesizerRetryConfig RetryConfig `yaml:"synthesizer_retry_config"`
}

// SchemaConfig bounds snapshot refresh and slice construction.
type SchemaConfig struct {
	RefreshIntervalS    int `yaml:"refresh_interval_s" env:"SCHEMA_REFRESH_INTERVAL_S" env-default:"3600"`
	MaxSchemaSliceBytes int `yaml:"max_schema_slice_bytes" env:"SCHEMA_MAX_SLICE_BYTES" env-default:"8192"`
	RankerTopN          int `yaml:"ranker_top_n" env:"SCHEMA_RANKER_TOP_N" env-default:"8"`
	FKDepth             int `yaml:"fk_depth" env:"SCHEMA_FK_DEPTH" env-default:"2"`
}

// GuardrailConfig holds pre-execution plan thresholds.
type GuardrailConfig struct {
	RowThreshold               int64    `yaml:"row_threshold" env:"GUARDRAIL_ROW_THRESHOLD" env-default:"500000"`
	CostThreshold              float64  `yaml:"cost_threshold" env:"GUARDRAIL_COST_THRESHOLD" env-default:"100000"`
	MaxEstimatedTimeMS         int      `yaml:"max_estimated_time_ms" env:"GUARDRAIL_MAX_ESTIMATED_TIME_MS" env-default:"2000"`
	RequireWhereForLargeTables bool     `yaml:"require_where_for_large_tables" env:"GUARDRAIL_REQUIRE_WHERE" env-default:"true"`
	DisallowedFunctions        []string `yaml:"disallowed_functions" env:"GUARDRAIL_DISALLOWED_FUNCTIONS" env-separator:","`
}

// ObservabilityConfig holds metrics and audit sink settings.
type ObservabilityConfig struct {
	EnableTracing bool   `yaml:"enable_tracing" env:"ENABLE_TRACING" env-default:"true"`
	ServiceName   string `yaml:"service_name" env:"SERVICE_NAME" env-default:"isaqe"`
	MetricsPort   int    `yaml:"metrics_port" env:"METRICS_PORT" env-default:"9000"`
	AuditLogPath  string `yaml:"audit_log_path" env:"AUDIT_LOG_PATH" env-default:"logs/audit.log"`
}

// SecurityConfig holds admission-control settings.
type SecurityConfig struct {
	EnforceReadOnlyRole  bool     `yaml:"enforce_read_only_role" env:"SECURITY_ENFORCE_READ_ONLY_ROLE" env-default:"true"`
	EnableRateLimiting   bool     `yaml:"enable_rate_limiting" env:"SECURITY_ENABLE_RATE_LIMITING" env-default:"true"`
	MaxRequestsPerMinute int      `yaml:"max_requests_per_minute" env:"SECURITY_MAX_REQUESTS_PER_MINUTE" env-default:"60"`
	IPWhitelist          []string `yaml:"ip_whitelist" env:"SECURITY_IP_WHITELIST" env-separator:","`
}

// PromptsConfig points at the prompt-resources bundle on disk.
type PromptsConfig struct {
	ExamplesPath      string `yaml:"examples_path" env:"PROMPTS_EXAMPLES_PATH" env-default:"resources/prompts/examples.json"`
	ReasonerSchema    string `yaml:"reasoner_schema" env:"PROMPTS_REASONER_SCHEMA" env-default:"resources/prompts/reasoner_schema.json"`
	SynthesizerSchema string `yaml:"synthesizer_schema" env:"PROMPTS_SYNTHESIZER_SCHEMA" env-default:"resources/prompts/synthesizer_schema.json"`
}

// Load reads configuration from config.yaml (or the file named by ISAQE_CONFIG)
// with environment variable overrides, then validates bounds. The version
// parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	path := os.Getenv("ISAQE_CONFIG")
	if path == "" {
		path = "config.yaml"
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks every bound the engine depends on. Construction fails early
// so a misconfigured process never serves traffic.
func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if c.Postgres.MinPoolSize < 1 {
		return fmt.Errorf("postgres.min_pool_size must be >= 1")
	}
	if c.Postgres.MaxPoolSize < c.Postgres.MinPoolSize {
		return fmt.Errorf("postgres.max_pool_size must be >= postgres.min_pool_size")
	}
	if c.Postgres.StatementTimeoutMS < 100 {
		return fmt.Errorf("postgres.statement_timeout_ms must be >= 100")
	}
	if c.Postgres.SampleLimit < 1 || c.Postgres.MaxLimit < 1 {
		return fmt.Errorf("postgres.sample_limit and postgres.max_limit must be >= 1")
	}

	if c.Redis.SchemaCacheTTLS < 60 {
		return fmt.Errorf("redis.schema_cache_ttl_s must be >= 60")
	}
	if c.Redis.EmbeddingCacheTTLS < 60 {
		return fmt.Errorf("redis.embedding_cache_ttl_s must be >= 60")
	}

	if err := c.LLM.validate(); err != nil {
		return err
	}

	if c.Schema.RefreshIntervalS < 60 {
		return fmt.Errorf("schema.refresh_interval_s must be >= 60")
	}
	if c.Schema.MaxSchemaSliceBytes < 1024 {
		return fmt.Errorf("schema.max_schema_slice_bytes must be >= 1024")
	}
	if c.Schema.RankerTopN < 1 {
		return fmt.Errorf("schema.ranker_top_n must be >= 1")
	}
	if c.Schema.FKDepth < 0 || c.Schema.FKDepth > 4 {
		return fmt.Errorf("schema.fk_depth must be between 0 and 4")
	}

	if c.SQLGuardrails.RowThreshold < 1 {
		return fmt.Errorf("sql_guardrails.row_threshold must be >= 1")
	}
	if c.SQLGuardrails.CostThreshold < 1 {
		return fmt.Errorf("sql_guardrails.cost_threshold must be >= 1")
	}
	if c.SQLGuardrails.MaxEstimatedTimeMS < 1 {
		return fmt.Errorf("sql_guardrails.max_estimated_time_ms must be >= 1")
	}

	if c.Observability.MetricsPort < 0 {
		return fmt.Errorf("observability.metrics_port must be >= 0")
	}
	if c.Observability.AuditLogPath == "" {
		return fmt.Errorf("observability.audit_log_path is required")
	}

	if c.Security.MaxRequestsPerMinute < 1 {
		return fmt.Errorf("security.max_requests_per_minute must be >= 1")
	}

	if c.App.MaxConcurrency < 1 {
		return fmt.Errorf("app.max_concurrency must be >= 1")
	}
	if c.App.RequestTimeoutS < 1 {
		return fmt.Errorf("app.request_timeout_s must be >= 1")
	}

	if c.Prompts.ExamplesPath == "" || c.Prompts.ReasonerSchema == "" || c.Prompts.SynthesizerSchema == "" {
		return fmt.Errorf("prompts.examples_path, prompts.reasoner_schema and prompts.synthesizer_schema are required")
	}

	return nil
}

func (l *LLMConfig) validate() error {
	provider := strings.ToLower(l.Provider)
	if provider != "openai" && provider != "anthropic" {
		return fmt.Errorf("llm.provider must be one of openai, anthropic; got %q", l.Provider)
	}
	if l.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if l.Temperature < 0 || l.Temperature > 1 {
		return fmt.Errorf("llm.temperature must be between 0 and 1")
	}
	if l.MaxTokens < 1 {
		return fmt.Errorf("llm.max_tokens must be >= 1")
	}
	if l.RateLimitPerMinute < 1 {
		return fmt.Errorf("llm.rate_limit_per_minute must be >= 1")
	}
	if err := l.ReasonerRetryConfig.validate("reasoner_retry_config"); err != nil {
		return err
	}
	return l.SynthesizerRetryConfig.validate("synthesizer_retry_config")
}

func (r *RetryConfig) validate(name string) error {
	if r.Attempts < 1 {
		return fmt.Errorf("llm.%s.attempts must be >= 1", name)
	}
	if r.BackoffSeconds < 0 {
		return fmt.Errorf("llm.%s.backoff_seconds must be >= 0", name)
	}
	return nil
}
