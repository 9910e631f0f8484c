// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./config.yaml or /etc/ragchat/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Generation: Gemini chat model, temperature, max tokens, embedder
//   - Storage: PostgreSQL connection (see storage.go)
//   - Vector: Milvus connection and retrieval tuning
//   - Auth: collaborator auth service endpoint
//   - Observability: OTLP trace exporter
//
// Security: sensitive data (passwords) is never logged; MarshalJSON masks it.
// Validation: range checks in validation.go with sentinel errors for errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the chat model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidTopK indicates the retrieval top-K is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidScoreThreshold indicates the similarity threshold is out of range.
	ErrInvalidScoreThreshold = errors.New("invalid score threshold")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidMilvusAddress indicates the Milvus address is invalid.
	ErrInvalidMilvusAddress = errors.New("invalid Milvus address")
)

const (
	// DefaultChatModel is the Gemini model used for grounded answer generation.
	DefaultChatModel = "gemini-2.0-flash-exp"

	// DefaultEmbedderModel produces 768-dimensional vectors, matching the
	// Milvus collection schema; see vector.Dimension.
	DefaultEmbedderModel = "text-embedding-004"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys), update MarshalJSON.
type Config struct {
	// Generation configuration
	ModelName     string  `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	TopP          float32 `mapstructure:"top_p" json:"top_p"`
	TopK          int32   `mapstructure:"top_k" json:"top_k"`
	MaxTokens     int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Retrieval configuration
	RetrievalTopK  int     `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`
	ScoreThreshold float64 `mapstructure:"score_threshold" json:"score_threshold"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Vector store configuration
	MilvusAddress  string `mapstructure:"milvus_address" json:"milvus_address"`
	MilvusUsername string `mapstructure:"milvus_username" json:"milvus_username"`
	MilvusPassword string `mapstructure:"milvus_password" json:"milvus_password"` // SENSITIVE: masked in MarshalJSON
	MilvusDBName   string `mapstructure:"milvus_db_name" json:"milvus_db_name"`

	// Auth collaborator (optional; empty disables verification, all
	// sessions degrade to anonymous)
	AuthServiceURL string `mapstructure:"auth_service_url" json:"auth_service_url"`
	AuthTimeoutMS  int    `mapstructure:"auth_timeout_ms" json:"auth_timeout_ms"`

	// HTTP server configuration
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // trust X-Real-IP/X-Forwarded-For (set behind reverse proxy)

	// Observability configuration
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
	Environment  string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/ragchat")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error, defaults apply
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{".", "/etc/ragchat"})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides the individual postgres_* settings
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Generation defaults
	viper.SetDefault("model_name", DefaultChatModel)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("top_p", 0.95)
	viper.SetDefault("top_k", 40)
	viper.SetDefault("max_tokens", 2048)

	// Retrieval defaults
	viper.SetDefault("retrieval_top_k", 5)
	viper.SetDefault("score_threshold", 0.3)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "ragchat")
	viper.SetDefault("postgres_password", "ragchat_dev_password")
	viper.SetDefault("postgres_db_name", "ragchat")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Milvus defaults
	viper.SetDefault("milvus_address", "localhost:19530")
	viper.SetDefault("milvus_db_name", "default")

	// Auth defaults
	viper.SetDefault("auth_timeout_ms", 2000)

	// CORS defaults (frontend dev server)
	viper.SetDefault("cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("trust_proxy", false)

	// Observability defaults (empty endpoint disables the exporter)
	viper.SetDefault("service_name", "ragchat")
	viper.SetDefault("environment", "dev")
}

// bindEnvVariables binds environment variables explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via Viper; Validate()
// only checks its presence.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("milvus_address", "MILVUS_ADDRESS")
	mustBind("milvus_username", "MILVUS_USERNAME")
	mustBind("milvus_password", "MILVUS_PASSWORD")
	mustBind("auth_service_url", "AUTH_SERVICE_URL")
	mustBind("cors_origins", "RAGCHAT_CORS_ORIGINS")
	mustBind("trust_proxy", "RAGCHAT_TRUST_PROXY")
	mustBind("model_name", "RAGCHAT_MODEL_NAME")
	mustBind("otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	mustBind("environment", "RAGCHAT_ENVIRONMENT")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid substring matching against real secret content.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of eight
// characters or fewer are fully masked; longer ones keep the first and last
// two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.MilvusPassword = maskSecret(a.MilvusPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit,
// e.g. "googleai/gemini-2.0-flash-exp".
func (c *Config) FullModelName() string {
	return "googleai/" + c.ModelName
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
