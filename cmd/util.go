// Package cmd provides CLI commands for the intake tool.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/brightlane/crm-intake/config"
	"github.com/brightlane/crm-intake/credentials"
	"github.com/brightlane/crm-intake/pkg/intake/ai"
	"github.com/brightlane/crm-intake/pkg/logging"
)

// Global flags shared by all commands.
var (
	// ConfigFile is the --config flag value.
	ConfigFile string

	// Debug is the --debug flag value.
	Debug bool
)

// loadConfig loads the configuration honoring the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(ConfigFile)
	if err != nil {
		return nil, err
	}
	if Debug {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger from the configuration.
func newLogger(cfg *config.Config, serviceName string) logging.Logger {
	return logging.NewLogger(cfg.LoggingConfigFor(serviceName))
}

// newProvider builds the configured LLM provider with its API key resolved
// from the environment, the config file, or the keyring.
func newProvider(cfg *config.Config) (ai.Provider, error) {
	apiKey, err := cfg.ResolveAPIKey(credentials.NewKeyringStore())
	if err != nil {
		return nil, err
	}

	providerCfg := ai.Config{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  apiKey,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
	}
	switch cfg.AI.Provider {
	case config.ProviderAnthropic:
		return ai.NewAnthropicProvider(providerCfg), nil
	default:
		return ai.NewOpenAIProvider(providerCfg), nil
	}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
