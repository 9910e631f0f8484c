package config

import (
	"errors"
	"testing"
)

// validBaseConfig returns a Config with all required fields set.
func validBaseConfig() *Config {
	return &Config{
		ModelName:        DefaultChatModel,
		EmbedderModel:    DefaultEmbedderModel,
		Temperature:      0.7,
		TopP:             0.95,
		TopK:             40,
		MaxTokens:        2048,
		RetrievalTopK:    5,
		ScoreThreshold:   0.3,
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "ragchat",
		PostgresPassword: "test_password",
		PostgresDBName:   "ragchat",
		PostgresSSLMode:  "disable",
		MilvusAddress:    "localhost:19530",
	}
}

func TestValidateSuccess(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-api-key")

	cfg := validBaseConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error with valid config: %v", err)
	}
}

func TestValidateMissingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	err := validBaseConfig().Validate()
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Validate() error = %v, want ErrMissingAPIKey", err)
	}
}

func TestValidateFieldErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"empty model", func(c *Config) { c.ModelName = "" }, ErrInvalidModelName},
		{"empty embedder", func(c *Config) { c.EmbedderModel = "" }, ErrInvalidEmbedderModel},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }, ErrInvalidTemperature},
		{"temperature negative", func(c *Config) { c.Temperature = -0.1 }, ErrInvalidTemperature},
		{"max tokens zero", func(c *Config) { c.MaxTokens = 0 }, ErrInvalidMaxTokens},
		{"top-k zero", func(c *Config) { c.RetrievalTopK = 0 }, ErrInvalidTopK},
		{"top-k too large", func(c *Config) { c.RetrievalTopK = 50 }, ErrInvalidTopK},
		{"threshold above one", func(c *Config) { c.ScoreThreshold = 1.5 }, ErrInvalidScoreThreshold},
		{"empty postgres host", func(c *Config) { c.PostgresHost = "" }, ErrInvalidPostgresHost},
		{"postgres port out of range", func(c *Config) { c.PostgresPort = 70000 }, ErrInvalidPostgresPort},
		{"empty db name", func(c *Config) { c.PostgresDBName = "" }, ErrInvalidPostgresDBName},
		{"empty password", func(c *Config) { c.PostgresPassword = "" }, ErrInvalidPostgresPassword},
		{"short password", func(c *Config) { c.PostgresPassword = "short" }, ErrInvalidPostgresPassword},
		{"deprecated ssl mode", func(c *Config) { c.PostgresSSLMode = "prefer" }, ErrInvalidPostgresSSLMode},
		{"empty milvus address", func(c *Config) { c.MilvusAddress = "" }, ErrInvalidMilvusAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", "test-api-key")

			cfg := validBaseConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNilConfig(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("Validate() on nil config = %v, want ErrConfigNil", err)
	}
}
