package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/phuslu/log"
)

type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL  string        `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns   int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	DBMinConns   int32         `envconfig:"DB_MIN_CONNS" default:"1"`
	QueryTimeout time.Duration `envconfig:"QUERY_TIMEOUT" default:"5s"`

	DefaultTopK    int    `envconfig:"DEFAULT_TOP_K" default:"5"`
	MaxTopK        int    `envconfig:"MAX_TOP_K" default:"20"`
	HistoryTurns   int    `envconfig:"HISTORY_TURNS" default:"6"`
	CitationPolicy string `envconfig:"CITATION_POLICY" default:"strict"`

	// MaxPromptTokens caps the user prompt; 0 disables the budget.
	MaxPromptTokens int `envconfig:"MAX_PROMPT_TOKENS" default:"0"`

	EmbeddingProvider    string        `envconfig:"EMBEDDING_PROVIDER" default:"openai"`
	EmbeddingModel       string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions  int           `envconfig:"EMBEDDING_DIMENSIONS" default:"768"`
	EmbeddingQueryPrefix string        `envconfig:"EMBEDDING_QUERY_PREFIX"`
	EmbeddingBaseURL     string        `envconfig:"EMBEDDING_BASE_URL"`
	EmbeddingTimeout     time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"10s"`

	LLMProvider       string        `envconfig:"LLM_PROVIDER" default:"static"`
	LLMBaseURL        string        `envconfig:"LLM_BASE_URL" default:"http://localhost:11434"`
	LLMModel          string        `envconfig:"LLM_MODEL" default:"llama3"`
	LLMAPIKey         string        `envconfig:"LLM_API_KEY"`
	LLMTimeout        time.Duration `envconfig:"LLM_TIMEOUT" default:"30s"`
	LLMMaxRetries     uint64        `envconfig:"LLM_MAX_RETRIES" default:"2"`
	LLMRateLimit      float64       `envconfig:"LLM_RATE_LIMIT" default:"0"`
	LLMStaticResponse string        `envconfig:"LLM_STATIC_RESPONSE" default:"{}"`

	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	GeminiAPIKey    string `envconfig:"GEMINI_API_KEY"`

	AuditReadRoles     string        `envconfig:"AUDIT_READ_ROLES" default:"auditor,admin"`
	AuditBuffer        int           `envconfig:"AUDIT_BUFFER" default:"1024"`
	AuditFlushInterval time.Duration `envconfig:"AUDIT_FLUSH_INTERVAL" default:"2s"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"copilot-audit"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Bootstrap: create an initial API key on startup
	InitAPIKey      string `envconfig:"INIT_API_KEY"`
	InitAPIKeyRoles string `envconfig:"INIT_API_KEY_ROLES" default:"admin"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("COPILOT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	return cfg
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	if c.DefaultTopK < 1 || c.MaxTopK < 1 || c.DefaultTopK > c.MaxTopK {
		return fmt.Errorf("invalid top_k bounds: default %d, max %d", c.DefaultTopK, c.MaxTopK)
	}
	if c.HistoryTurns < 0 {
		return fmt.Errorf("history turns cannot be negative")
	}
	switch c.CitationPolicy {
	case "strict", "lenient":
	default:
		return fmt.Errorf("invalid citation policy %q (expected strict or lenient)", c.CitationPolicy)
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive")
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}

// AuditRoles returns the roles allowed to read the audit trail.
func (c *Config) AuditRoles() []string {
	return splitList(c.AuditReadRoles)
}

// BootstrapRoles returns the roles given to the INIT_API_KEY key.
func (c *Config) BootstrapRoles() []string {
	return splitList(c.InitAPIKeyRoles)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
