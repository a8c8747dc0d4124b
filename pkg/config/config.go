// Package config loads process configuration and the intents manifest.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds process-level configuration. Values come from a config file
// (groundsman.yaml) with environment variables taking precedence.
type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	Encoder    EncoderConfig    `mapstructure:"encoder"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Summarizer SummarizerConfig `mapstructure:"summarizer"`
	Vision     VisionConfig     `mapstructure:"vision"`

	// ManifestPath points at the intents manifest. Empty means built-in
	// defaults.
	ManifestPath string `mapstructure:"manifest_path"`
}

// EncoderConfig selects and configures the embedding backend.
type EncoderConfig struct {
	// Provider: "openai" or "genai". The openai provider works against any
	// OpenAI-compatible endpoint, including a local Ollama server.
	Provider string `mapstructure:"provider"`

	OpenAIAPIKey  string `mapstructure:"openai_api_key"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`
	OpenAIModel   string `mapstructure:"openai_model"`

	GenAIAPIKey string `mapstructure:"genai_api_key"`
	GenAIModel  string `mapstructure:"genai_model"`
}

// DatabaseConfig holds the labor-records database connection.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RetrievalConfig holds the document index location.
type RetrievalConfig struct {
	IndexPath string `mapstructure:"index_path"`
	DocDir    string `mapstructure:"doc_dir"`
}

// SummarizerConfig selects and configures the summarization backend.
type SummarizerConfig struct {
	// Provider: "openai" (default, Ollama-compatible) or "anthropic".
	Provider        string `mapstructure:"provider"`
	Model           string `mapstructure:"model"`
	BaseURL         string `mapstructure:"base_url"`
	APIKey          string `mapstructure:"api_key"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
}

// VisionConfig configures the image assessment backend.
type VisionConfig struct {
	GenAIAPIKey string `mapstructure:"genai_api_key"`
	Model       string `mapstructure:"model"`
}

// Load reads configuration from groundsman.yaml (working directory or
// ~/.groundsman) and the environment. A .env file is honored in development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("groundsman")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.groundsman")

	v.SetEnvPrefix("GROUNDSMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}
	if cfg.Encoder.Provider == "" {
		cfg.Encoder.Provider = "openai"
	}
	if cfg.Encoder.OpenAIModel == "" {
		cfg.Encoder.OpenAIModel = "text-embedding-3-small"
	}
	if cfg.Encoder.GenAIModel == "" {
		cfg.Encoder.GenAIModel = "gemini-embedding-001"
	}
	if cfg.Retrieval.IndexPath == "" {
		cfg.Retrieval.IndexPath = "data/kb_index.db"
	}
	if cfg.Retrieval.DocDir == "" {
		cfg.Retrieval.DocDir = "data/docs"
	}
	if cfg.Summarizer.Provider == "" {
		cfg.Summarizer.Provider = "openai"
	}
	if cfg.Summarizer.Model == "" {
		cfg.Summarizer.Model = "llama3.2:3b"
	}
	if cfg.Summarizer.BaseURL == "" {
		cfg.Summarizer.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.Vision.Model == "" {
		cfg.Vision.Model = "gemini-2.0-flash"
	}
}
