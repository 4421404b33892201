// Package config loads service settings from the environment. It is read
// only by the entrypoints.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	StoreDynamoDB = "dynamodb"
	StoreMemory   = "memory"
)

type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":3000"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Storage
	StoreBackend string `envconfig:"STORE_BACKEND" default:"dynamodb"`
	StateTable   string `envconfig:"STATE_TABLE"`

	// Secrets and completion API
	ParamPrefix   string        `envconfig:"PARAM_PREFIX" required:"true"`
	LLMBaseURL    string        `envconfig:"LLM_BASE_URL" default:"https://api.openai.com/v1"`
	LLMTimeout    time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`
	BlogModel     string        `envconfig:"BLOG_MODEL" default:"gpt-4o-mini"`
	BlogMaxTokens int           `envconfig:"BLOG_MAX_TOKENS" default:"800"`
	ChatModel     string        `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`
	ChatMaxTokens int           `envconfig:"CHAT_MAX_TOKENS" default:"0"`
	StoryModel    string        `envconfig:"STORY_MODEL" default:"gpt-4o-mini"`
	SpeechModel   string        `envconfig:"SPEECH_MODEL" default:"tts-1"`
	SpeechVoice   string        `envconfig:"SPEECH_VOICE" default:"alloy"`

	TurnWrites         string   `envconfig:"TURN_WRITES" default:"acknowledged"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// Load reads the environment and validates cross-field rules.
func Load() (*Config, error) {
	return load(StoreDynamoDB)
}

// LoadFunctions is Load for the function entrypoint. No function route
// persists anything, so STORE_BACKEND defaults to memory and STATE_TABLE is
// only needed when dynamodb is asked for explicitly.
func LoadFunctions() (*Config, error) {
	return load(StoreMemory)
}

func load(defaultBackend string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: process env: %w", err)
	}
	if _, ok := os.LookupEnv("STORE_BACKEND"); !ok {
		cfg.StoreBackend = defaultBackend
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.ParamPrefix) == "" {
		return errors.New("config: PARAM_PREFIX must not be empty")
	}
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case "":
		c.StoreBackend = StoreDynamoDB
		fallthrough
	case StoreDynamoDB:
		if strings.TrimSpace(c.StateTable) == "" {
			return fmt.Errorf("config: STATE_TABLE is required when STORE_BACKEND=%s", StoreDynamoDB)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("config: LLM_TIMEOUT must be positive, got %s", c.LLMTimeout)
	}
	if c.BlogMaxTokens < 0 || c.ChatMaxTokens < 0 {
		return errors.New("config: max token settings must not be negative")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogValue keeps secrets and long lists out of startup logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("http_addr", c.HTTPAddr),
		slog.String("store_backend", c.StoreBackend),
		slog.String("state_table", c.StateTable),
		slog.String("param_prefix", c.ParamPrefix),
		slog.String("llm_base_url", c.LLMBaseURL),
		slog.Duration("llm_timeout", c.LLMTimeout),
		slog.String("chat_model", c.ChatModel),
		slog.String("turn_writes", c.TurnWrites),
	)
}
