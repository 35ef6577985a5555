// Package config loads schemamem settings. Values come from built-in
// defaults, then an optional YAML file, then SCHEMAMEM_* environment
// variables; command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every setting.
type Config struct {
	Backend        string  `yaml:"backend"`         // sqlite, redis or auto (default: auto)
	DBPath         string  `yaml:"db_path"`         // SQLite file (default: ~/.schemamem/memory.db)
	RedisURL       string  `yaml:"redis_url"`       // shared daemon, e.g. redis://localhost:6379/0
	RedisNamespace string  `yaml:"redis_namespace"` // key prefix on the daemon (default: schemamem)
	AnthropicKey   string  `yaml:"anthropic_api_key"`
	Model          string  `yaml:"model"`          // default: claude-haiku-4-5
	MaxTokens      int     `yaml:"max_tokens"`     // response ceiling (default: 2048)
	LLMRate        float64 `yaml:"llm_rate"`       // model requests per second (default: 5)
	DefaultIntent  string  `yaml:"default_intent"` // remember or recall (default: remember)
	DefaultLimit   int     `yaml:"default_limit"`  // recall limit (default: 20)
	AutoInit       bool    `yaml:"auto_init"`      // seed predefined categories on first write (default: true)
	LogLevel       string  `yaml:"log_level"`      // debug, info, warn, error (default: warn)
}

// DefaultDir returns the directory holding the default database and config.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".schemamem"
	}
	return filepath.Join(home, ".schemamem")
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Backend:        "auto",
		DBPath:         filepath.Join(DefaultDir(), "memory.db"),
		RedisNamespace: "schemamem",
		Model:          "claude-haiku-4-5",
		MaxTokens:      2048,
		LLMRate:        5,
		DefaultIntent:  "remember",
		DefaultLimit:   20,
		AutoInit:       true,
		LogLevel:       "warn",
	}
}

// Path returns the config file location: $SCHEMAMEM_CONFIG or
// ~/.schemamem/config.yaml.
func Path() string {
	return getEnv("SCHEMAMEM_CONFIG", filepath.Join(DefaultDir(), "config.yaml"))
}

// Load builds the configuration from defaults, the config file (if present)
// and the environment.
func Load() (*Config, error) {
	cfg := Defaults()
	if err := cfg.LoadFile(Path()); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile merges the YAML file at path into c. A missing file is not an
// error; keys absent from the file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides c with any SCHEMAMEM_* variables that are set.
func (c *Config) ApplyEnv() {
	c.Backend = getEnv("SCHEMAMEM_BACKEND", c.Backend)
	c.DBPath = getEnv("SCHEMAMEM_DB", c.DBPath)
	c.RedisURL = getEnv("SCHEMAMEM_REDIS_URL", c.RedisURL)
	c.RedisNamespace = getEnv("SCHEMAMEM_REDIS_NAMESPACE", c.RedisNamespace)
	c.AnthropicKey = getEnv("ANTHROPIC_API_KEY", c.AnthropicKey)
	c.AnthropicKey = getEnv("SCHEMAMEM_ANTHROPIC_API_KEY", c.AnthropicKey)
	c.Model = getEnv("SCHEMAMEM_MODEL", c.Model)
	c.MaxTokens = getEnvInt("SCHEMAMEM_MAX_TOKENS", c.MaxTokens)
	c.LLMRate = getEnvFloat("SCHEMAMEM_LLM_RATE", c.LLMRate)
	c.DefaultIntent = getEnv("SCHEMAMEM_DEFAULT_INTENT", c.DefaultIntent)
	c.DefaultLimit = getEnvInt("SCHEMAMEM_DEFAULT_LIMIT", c.DefaultLimit)
	c.AutoInit = getEnvBool("SCHEMAMEM_AUTO_INIT", c.AutoInit)
	c.LogLevel = getEnv("SCHEMAMEM_LOG_LEVEL", c.LogLevel)
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch c.Backend {
	case "sqlite", "redis", "auto":
	default:
		return fmt.Errorf("invalid backend %q (valid: sqlite, redis, auto)", c.Backend)
	}
	if c.Backend == "redis" && c.RedisURL == "" {
		return errors.New("backend redis requires redis_url")
	}
	if c.Backend != "redis" && c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.LLMRate < 0 {
		return fmt.Errorf("llm_rate must not be negative, got %g", c.LLMRate)
	}
	switch c.DefaultIntent {
	case "remember", "recall":
	default:
		return fmt.Errorf("invalid default_intent %q (valid: remember, recall)", c.DefaultIntent)
	}
	if c.DefaultLimit < 0 {
		return fmt.Errorf("default_limit must not be negative, got %d", c.DefaultLimit)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of key, or defaultValue when unset or
// unparseable.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		switch value {
		case "yes", "Yes", "YES":
			return true
		case "no", "No", "NO":
			return false
		}
	}
	return defaultValue
}
