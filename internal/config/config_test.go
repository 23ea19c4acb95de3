package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.BaseURL != "https://api.deepseek.com" {
		t.Errorf("unexpected default base_url %q", cfg.BaseURL)
	}
	if cfg.Model != "deepseek-chat" {
		t.Errorf("unexpected default model %q", cfg.Model)
	}
	if cfg.APIKey != "" {
		t.Error("expected no default api_key")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.Model != "deepseek-chat" {
		t.Errorf("expected default model, got %q", cfg.Model)
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	yaml := `
api_key: "sk-test"
base_url: "https://api.openai.com/v1"
model: "gpt-4o-mini"
data_dir: "/tmp/panleme-test"
`
	os.WriteFile(path, []byte(yaml), 0644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIKey != "sk-test" {
		t.Errorf("expected api_key 'sk-test', got %q", cfg.APIKey)
	}
	if cfg.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("unexpected base_url %q", cfg.BaseURL)
	}
	if cfg.Model != "gpt-4o-mini" {
		t.Errorf("unexpected model %q", cfg.Model)
	}
	if cfg.DataDir != "/tmp/panleme-test" {
		t.Errorf("unexpected data_dir %q", cfg.DataDir)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	os.WriteFile(path, []byte("{{invalid yaml"), 0644)

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	os.WriteFile(path, []byte("api_key: file-key\n"), 0644)

	t.Setenv("LLM_API_KEY", "env-key-123")
	t.Setenv("LLM_BASE_URL", "https://custom.api.com/v1")
	t.Setenv("LLM_MODEL", "custom-model")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIKey != "env-key-123" {
		t.Errorf("LLM_API_KEY should override, got %q", cfg.APIKey)
	}
	if cfg.BaseURL != "https://custom.api.com/v1" {
		t.Errorf("LLM_BASE_URL should override, got %q", cfg.BaseURL)
	}
	if cfg.Model != "custom-model" {
		t.Errorf("LLM_MODEL should override, got %q", cfg.Model)
	}
}

func TestSaveCredentials_PreservesUnknownFields(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	os.WriteFile(path, []byte("model: deepseek-chat\ncustom_setting: keep-me\n"), 0644)

	if err := SaveCredentials(path, "sk-new", "https://api.deepseek.com"); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, "sk-new") {
		t.Error("expected saved api_key in file")
	}
	if !strings.Contains(s, "keep-me") {
		t.Error("expected unknown field preserved")
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load after save: %v", err)
	}
	if cfg.APIKey != "sk-new" {
		t.Errorf("expected api_key sk-new, got %q", cfg.APIKey)
	}
}
