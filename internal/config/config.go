// Package config loads the gateway's runtime configuration.
//
// Grounded on the teacher's cmd/agent/main.go, which loads provider
// API keys from a .env file via github.com/joho/godotenv before wiring
// concrete providers, and on RedClaus-cortex/apps/cortex-gateway, which
// layers github.com/spf13/viper on top of godotenv for env-var binding,
// defaults, and validation. original_source's core/config.py is the
// ground truth for which keys exist and what their defaults are.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every environment-driven setting the gateway needs.
type Config struct {
	Port int

	DeepgramAPIKey  string
	GroqAPIKey      string
	CartesiaAPIKey  string
	TavilyAPIKey    string
	GoogleAPIKey    string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	LokutorAPIKey   string

	RedisURL    string
	PostgresURL string

	LogFilePath string
}

// Load reads a .env file if present (ignored if missing — matches the
// teacher's godotenv.Load() call, which only warns on absence) then binds
// environment variables via viper, applying the same defaults
// original_source's Settings class does.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault("PORT", 8000)
	v.SetDefault("REDIS_URL", "redis://localhost:6379")
	v.SetDefault("POSTGRES_URL", "")
	v.SetDefault("LOG_FILE_PATH", "")

	cfg := &Config{
		Port:            v.GetInt("PORT"),
		DeepgramAPIKey:  v.GetString("DEEPGRAM_API_KEY"),
		GroqAPIKey:      v.GetString("GROQ_API_KEY"),
		CartesiaAPIKey:  v.GetString("CARTESIA_API_KEY"),
		TavilyAPIKey:    v.GetString("TAVILY_API_KEY"),
		GoogleAPIKey:    v.GetString("GOOGLE_API_KEY"),
		OpenAIAPIKey:    v.GetString("OPENAI_API_KEY"),
		AnthropicAPIKey: v.GetString("ANTHROPIC_API_KEY"),
		LokutorAPIKey:   v.GetString("LOKUTOR_API_KEY"),
		RedisURL:        v.GetString("REDIS_URL"),
		PostgresURL:     v.GetString("POSTGRES_URL"),
		LogFilePath:     v.GetString("LOG_FILE_PATH"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid PORT %d", c.Port)
	}
	if c.DeepgramAPIKey == "" {
		return fmt.Errorf("config: DEEPGRAM_API_KEY is required")
	}
	if c.GroqAPIKey == "" {
		return fmt.Errorf("config: GROQ_API_KEY is required")
	}
	if c.CartesiaAPIKey == "" && c.LokutorAPIKey == "" {
		return fmt.Errorf("config: one of CARTESIA_API_KEY or LOKUTOR_API_KEY is required for TTS")
	}
	if c.TavilyAPIKey == "" {
		return fmt.Errorf("config: TAVILY_API_KEY is required")
	}
	return nil
}
