// Package config provides configuration management for the intake service.
// It supports loading configuration from YAML files and environment variable
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brightlane/crm-intake/credentials"
	"github.com/brightlane/crm-intake/pkg/db"
	"github.com/brightlane/crm-intake/pkg/intake"
	"github.com/brightlane/crm-intake/pkg/intake/events"
	"github.com/brightlane/crm-intake/pkg/logging"
)

// Default configuration values.
const (
	DefaultListenAddr      = ":8080"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultAIProvider      = "openai"
	DefaultAIModel         = "gpt-4o-mini"
	DefaultAIBaseURL       = "https://api.openai.com"
	DefaultAITimeout       = 60 * time.Second
	DefaultRedisPort       = 6379
	DefaultConfigDir       = ".crm-intake"
	DefaultConfigFile      = "config.yaml"
)

// AI provider names accepted in configuration.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// ListenAddr is the host:port the API listens on.
	ListenAddr string `yaml:"listen_addr"`

	// ShutdownTimeout bounds graceful shutdown on SIGTERM.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AIConfig selects and configures the LLM provider.
type AIConfig struct {
	// Provider is "openai" or "anthropic".
	Provider string `yaml:"provider"`

	// Model is the provider model identifier.
	Model string `yaml:"model"`

	// BaseURL is the provider API base URL. Point it at any
	// OpenAI-compatible endpoint for self-hosted models.
	BaseURL string `yaml:"base_url"`

	// APIKey, when set in the file, is used directly. Prefer the
	// INTAKE_AI_API_KEY environment variable or the keyring.
	APIKey string `yaml:"api_key,omitempty"`

	// Timeout bounds a single completion call.
	Timeout time.Duration `yaml:"timeout"`
}

// EventsConfig holds the Redis event bus settings. When Host is empty the
// service falls back to the log publisher.
type EventsConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// Redis converts the section to the publisher's connection config.
func (c EventsConfig) Redis() events.RedisConfig {
	port := c.Port
	if port == 0 {
		port = DefaultRedisPort
	}
	return events.RedisConfig{Host: c.Host, Port: port, Password: c.Password, DB: c.DB}
}

// Enabled reports whether a Redis event bus is configured.
func (c EventsConfig) Enabled() bool {
	return c.Host != ""
}

// PolicyConfig holds the confidence policy settings.
type PolicyConfig struct {
	// AutoApproveThreshold is the minimum confidence for auto-approval.
	AutoApproveThreshold float64 `yaml:"auto_approve_threshold"`
}

// LoggingConfig holds the log output settings.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// JSON enables JSON output; otherwise console format.
	JSON bool `yaml:"json"`
}

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	DB      db.Config     `yaml:"db"`
	Events  EventsConfig  `yaml:"events"`
	AI      AIConfig      `yaml:"ai"`
	Policy  PolicyConfig  `yaml:"policy"`
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      DefaultListenAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		DB: *db.DefaultConfig(),
		AI: AIConfig{
			Provider: DefaultAIProvider,
			Model:    DefaultAIModel,
			BaseURL:  DefaultAIBaseURL,
			Timeout:  DefaultAITimeout,
		},
		Policy: PolicyConfig{
			AutoApproveThreshold: intake.DefaultAutoApproveThreshold,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ConfigDir returns the configuration directory path. Uses
// $INTAKE_CONFIG_DIR if set, otherwise ~/.crm-intake.
func ConfigDir() (string, error) {
	if dir := os.Getenv("INTAKE_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// Load loads the configuration. Sources are applied in order, later ones
// overriding earlier ones: defaults, the config file (when present), then
// environment variables.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// fileConfig mirrors Config for YAML with durations as strings.
type fileConfig struct {
	Server struct {
		ListenAddr      string `yaml:"listen_addr"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	DB struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Database string `yaml:"database"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		SSLMode  string `yaml:"sslmode"`
		MaxConns int32  `yaml:"max_conns"`
		MinConns int32  `yaml:"min_conns"`
	} `yaml:"db"`
	Events EventsConfig `yaml:"events"`
	AI     struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
		BaseURL  string `yaml:"base_url"`
		APIKey   string `yaml:"api_key"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"ai"`
	Policy struct {
		AutoApproveThreshold *float64 `yaml:"auto_approve_threshold"`
	} `yaml:"policy"`
	Logging struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"logging"`
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fileCfg fileConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fileCfg.Server.ListenAddr != "" {
		cfg.Server.ListenAddr = fileCfg.Server.ListenAddr
	}
	if fileCfg.Server.ShutdownTimeout != "" {
		d, err := time.ParseDuration(fileCfg.Server.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("parsing server.shutdown_timeout: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}

	if fileCfg.DB.Host != "" {
		cfg.DB.Host = fileCfg.DB.Host
	}
	if fileCfg.DB.Port != 0 {
		cfg.DB.Port = fileCfg.DB.Port
	}
	if fileCfg.DB.Database != "" {
		cfg.DB.Database = fileCfg.DB.Database
	}
	if fileCfg.DB.User != "" {
		cfg.DB.User = fileCfg.DB.User
	}
	if fileCfg.DB.Password != "" {
		cfg.DB.Password = fileCfg.DB.Password
	}
	if fileCfg.DB.SSLMode != "" {
		cfg.DB.SSLMode = fileCfg.DB.SSLMode
	}
	if fileCfg.DB.MaxConns != 0 {
		cfg.DB.MaxConns = fileCfg.DB.MaxConns
	}
	if fileCfg.DB.MinConns != 0 {
		cfg.DB.MinConns = fileCfg.DB.MinConns
	}

	if fileCfg.Events.Host != "" {
		cfg.Events = fileCfg.Events
	}

	if fileCfg.AI.Provider != "" {
		cfg.AI.Provider = strings.ToLower(fileCfg.AI.Provider)
	}
	if fileCfg.AI.Model != "" {
		cfg.AI.Model = fileCfg.AI.Model
	}
	if fileCfg.AI.BaseURL != "" {
		cfg.AI.BaseURL = fileCfg.AI.BaseURL
	}
	if fileCfg.AI.APIKey != "" {
		cfg.AI.APIKey = fileCfg.AI.APIKey
	}
	if fileCfg.AI.Timeout != "" {
		d, err := time.ParseDuration(fileCfg.AI.Timeout)
		if err != nil {
			return fmt.Errorf("parsing ai.timeout: %w", err)
		}
		cfg.AI.Timeout = d
	}

	if fileCfg.Policy.AutoApproveThreshold != nil {
		cfg.Policy.AutoApproveThreshold = *fileCfg.Policy.AutoApproveThreshold
	}

	if fileCfg.Logging.Level != "" {
		cfg.Logging.Level = fileCfg.Logging.Level
	}
	cfg.Logging.JSON = cfg.Logging.JSON || fileCfg.Logging.JSON

	return nil
}

// loadFromEnv overlays environment variables onto the configuration. DB_*
// variables are handled by the db package; everything else uses the INTAKE_
// prefix.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("INTAKE_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("INTAKE_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}

	overlayDBFromEnv(&cfg.DB)

	if v := os.Getenv("INTAKE_REDIS_HOST"); v != "" {
		cfg.Events.Host = v
	}
	if v := os.Getenv("INTAKE_REDIS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Events.Port = p
		}
	}
	if v := os.Getenv("INTAKE_REDIS_PASSWORD"); v != "" {
		cfg.Events.Password = v
	}

	if v := os.Getenv("INTAKE_AI_PROVIDER"); v != "" {
		cfg.AI.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("INTAKE_AI_MODEL"); v != "" {
		cfg.AI.Model = v
	}
	if v := os.Getenv("INTAKE_AI_BASE_URL"); v != "" {
		cfg.AI.BaseURL = v
	}
	if v := os.Getenv("INTAKE_AI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("INTAKE_AI_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.AI.Timeout = d
		}
	}

	if v := os.Getenv("INTAKE_AUTO_APPROVE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Policy.AutoApproveThreshold = f
		}
	}

	if v := os.Getenv("INTAKE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("INTAKE_LOG_JSON"); v == "true" || v == "1" {
		cfg.Logging.JSON = true
	}
}

// overlayDBFromEnv applies the db package's DB_* environment variables on
// top of whatever the config file set.
func overlayDBFromEnv(cfg *db.Config) {
	fromEnv := db.ConfigFromEnv()
	defaults := db.DefaultConfig()

	if fromEnv.Host != defaults.Host {
		cfg.Host = fromEnv.Host
	}
	if fromEnv.Port != defaults.Port {
		cfg.Port = fromEnv.Port
	}
	if fromEnv.Database != defaults.Database {
		cfg.Database = fromEnv.Database
	}
	if fromEnv.User != defaults.User {
		cfg.User = fromEnv.User
	}
	if fromEnv.Password != defaults.Password {
		cfg.Password = fromEnv.Password
	}
	if fromEnv.SSLMode != defaults.SSLMode {
		cfg.SSLMode = fromEnv.SSLMode
	}
	if fromEnv.MaxConns != defaults.MaxConns {
		cfg.MaxConns = fromEnv.MaxConns
	}
	if fromEnv.MinConns != defaults.MinConns {
		cfg.MinConns = fromEnv.MinConns
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.AI.Provider != ProviderOpenAI && c.AI.Provider != ProviderAnthropic {
		return fmt.Errorf("invalid ai.provider: %q (must be %s or %s)",
			c.AI.Provider, ProviderOpenAI, ProviderAnthropic)
	}
	if c.AI.Model == "" {
		return fmt.Errorf("ai.model is required")
	}
	if c.AI.Timeout <= 0 {
		return fmt.Errorf("ai.timeout must be positive")
	}
	if c.Policy.AutoApproveThreshold < 0 || c.Policy.AutoApproveThreshold > 1 {
		return fmt.Errorf("policy.auto_approve_threshold must be in [0,1]")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	return nil
}

// LoggingConfigFor builds the logging package config.
func (c *Config) LoggingConfigFor(serviceName string) *logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.Level(c.Logging.Level)
	cfg.ServiceName = serviceName
	cfg.JSONFormat = c.Logging.JSON
	return cfg
}

// ResolveAPIKey returns the LLM API key, preferring the environment
// variable, then the config file, then the keyring store. Store may be nil.
func (c *Config) ResolveAPIKey(store credentials.Store) (string, error) {
	if v := os.Getenv("INTAKE_AI_API_KEY"); v != "" {
		return v, nil
	}
	if c.AI.APIKey != "" {
		return c.AI.APIKey, nil
	}
	if store != nil {
		key, err := store.Get(c.AI.Provider)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, credentials.ErrNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("no api key configured for provider %q: set INTAKE_AI_API_KEY, ai.api_key, or run 'intake auth set-key'", c.AI.Provider)
}

// Save writes the configuration to the config file, creating the directory
// when needed.
func Save(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	var fileCfg fileConfig
	fileCfg.Server.ListenAddr = cfg.Server.ListenAddr
	fileCfg.Server.ShutdownTimeout = cfg.Server.ShutdownTimeout.String()
	fileCfg.DB.Host = cfg.DB.Host
	fileCfg.DB.Port = cfg.DB.Port
	fileCfg.DB.Database = cfg.DB.Database
	fileCfg.DB.User = cfg.DB.User
	fileCfg.DB.Password = cfg.DB.Password
	fileCfg.DB.SSLMode = cfg.DB.SSLMode
	fileCfg.DB.MaxConns = cfg.DB.MaxConns
	fileCfg.DB.MinConns = cfg.DB.MinConns
	fileCfg.Events = cfg.Events
	fileCfg.AI.Provider = cfg.AI.Provider
	fileCfg.AI.Model = cfg.AI.Model
	fileCfg.AI.BaseURL = cfg.AI.BaseURL
	fileCfg.AI.APIKey = cfg.AI.APIKey
	fileCfg.AI.Timeout = cfg.AI.Timeout.String()
	threshold := cfg.Policy.AutoApproveThreshold
	fileCfg.Policy.AutoApproveThreshold = &threshold
	fileCfg.Logging.Level = cfg.Logging.Level
	fileCfg.Logging.JSON = cfg.Logging.JSON

	data, err := yaml.Marshal(&fileCfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
