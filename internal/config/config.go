// Package config loads and manages panleme configuration.
// Configuration source priority (highest to lowest):
// 1. Environment variables (LLM_API_KEY, LLM_BASE_URL, LLM_MODEL, PANLEME_DATA_DIR)
// 2. Config file path specified via --config flag
// 3. ~/.config/panleme/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration structure for panleme.
type Config struct {
	// APIKey is the bearer credential for the chat-completion endpoint.
	APIKey string `yaml:"api_key"`

	// BaseURL is the OpenAI-compatible endpoint root.
	BaseURL string `yaml:"base_url"`

	// Model is the chat-completion model name.
	Model string `yaml:"model"`

	// DataDir holds the session database and event logs.
	// Empty = ~/.local/share/panleme.
	DataDir string `yaml:"data_dir"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	}
}

// DefaultConfigPath returns ~/.config/panleme/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "panleme", "config.yaml")
}

// Load reads the config file and merges environment variable overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		configPath = DefaultConfigPath()
	}

	// Read config file (use defaults if not found).
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}

	return cfg, nil
}

// ResolveDataDir returns the configured data directory, falling back to
// ~/.local/share/panleme and finally $TMPDIR/panleme.
func (c *Config) ResolveDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "panleme")
	}
	return filepath.Join(os.TempDir(), "panleme")
}

// SaveCredentials persists the api key and base url into the config file,
// preserving all other user settings and unknown fields.
func SaveCredentials(configPath, apiKey, baseURL string) error {
	if configPath == "" {
		configPath = DefaultConfigPath()
	}
	if configPath == "" {
		return fmt.Errorf("cannot determine config path")
	}

	// Read existing file into a generic map to preserve unknown fields.
	raw := make(map[string]any)
	if data, err := os.ReadFile(configPath); err == nil {
		_ = yaml.Unmarshal(data, &raw) // ignore errors; start fresh if corrupt
	}

	raw["api_key"] = apiKey
	if baseURL != "" {
		raw["base_url"] = baseURL
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("PANLEME_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
}
