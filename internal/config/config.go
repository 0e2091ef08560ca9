package config

import (
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/tatianab/castle-adventure/internal/logging"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// Config holds the application configuration.
type Config struct {
	Log     LogConfig
	Store   StoreConfig
	Server  ServerConfig
	Gemini  GeminiConfig
	Content string `envconfig:"CONTENT_PATH"` // empty means the embedded castle story
}

type LogConfig struct {
	Level    string `envconfig:"LOG_LEVEL" default:"info"`
	Encoding string `envconfig:"LOG_ENCODING" default:"console"`
	Output   string `envconfig:"LOG_OUTPUT" default:"stderr"`
}

// Logging converts the settings for logging.New.
func (c LogConfig) Logging() logging.Config {
	return logging.Config{Level: c.Level, Encoding: c.Encoding, OutputPath: c.Output}
}

type StoreConfig struct {
	Backend      string `envconfig:"STORE_BACKEND" default:"sqlite"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"castle.db"`
	SaveDir      string `envconfig:"SAVE_DIR" default:".saves"`
}

type ServerConfig struct {
	Addr    string `envconfig:"SERVER_ADDR" default:":8080"`
	GinMode string `envconfig:"GIN_MODE" default:"release"`
}

// GeminiConfig is only needed by the playtester.
type GeminiConfig struct {
	APIKey string `envconfig:"GEMINI_API_KEY"`
	Model  string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	Turns  int    `envconfig:"SIMULATION_TURNS" default:"40"`
}

// LoadConfig loads a .env file if present, then reads the environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	switch cfg.Store.Backend {
	case BackendSQLite, BackendFile:
	default:
		return nil, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendSQLite, BackendFile, cfg.Store.Backend)
	}
	return &cfg, nil
}

// RequireGemini fails when no API key is configured.
func (c *Config) RequireGemini() error {
	if c.Gemini.APIKey == "" {
		return errors.New("GEMINI_API_KEY environment variable is not set")
	}
	return nil
}
