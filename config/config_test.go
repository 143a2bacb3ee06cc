package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mvalenta/kiri/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(cfgFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return cfgFile
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfgFile := writeConfig(t, `
[bot]
token = "test-token"

[llm]
gemini_key = "test-key"
`)
	cfg, err := config.Load(cfgFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Bot.Prefix != "!" {
		t.Errorf("Bot.Prefix = %q, want %q", cfg.Bot.Prefix, "!")
	}
	if cfg.Router.LengthThreshold != 150 {
		t.Errorf("Router.LengthThreshold = %d, want 150", cfg.Router.LengthThreshold)
	}
	if cfg.History.Window != 10 {
		t.Errorf("History.Window = %d, want 10", cfg.History.Window)
	}
	if cfg.LLM.ReplyCharLimit != 2000 {
		t.Errorf("LLM.ReplyCharLimit = %d, want 2000", cfg.LLM.ReplyCharLimit)
	}
	if cfg.LLM.FlashModel == "" || cfg.LLM.ProModel == "" {
		t.Error("model defaults not applied")
	}
}

func TestLoadMissingToken(t *testing.T) {
	cfgFile := writeConfig(t, `
[llm]
gemini_key = "test-key"
`)
	if _, err := config.Load(cfgFile); err == nil {
		t.Fatal("Load() should fail when bot.token is missing")
	}
}

func TestLoadMissingGeminiKey(t *testing.T) {
	cfgFile := writeConfig(t, `
[bot]
token = "test-token"
`)
	if _, err := config.Load(cfgFile); err == nil {
		t.Fatal("Load() should fail when llm.gemini_key is missing")
	}
}

func TestLoadGeminiKeyFromEnv(t *testing.T) {
	cfgFile := writeConfig(t, `
[bot]
token = "test-token"
`)
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg, err := config.Load(cfgFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LLM.GeminiKey != "env-key" {
		t.Errorf("LLM.GeminiKey = %q, want %q (GEMINI_API_KEY override not applied)", cfg.LLM.GeminiKey, "env-key")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	cfgFile := writeConfig(t, `
[bot]
token = "file-token"

[llm]
gemini_key = "file-key"
fallback_key = "file-fallback"
`)
	t.Setenv("GEMINI_FALLBACK_KEY", "env-fallback")

	cfg, err := config.Load(cfgFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LLM.FallbackKey != "env-fallback" {
		t.Errorf("LLM.FallbackKey = %q, want %q", cfg.LLM.FallbackKey, "env-fallback")
	}
	if cfg.LLM.GeminiKey != "file-key" {
		t.Errorf("LLM.GeminiKey = %q, want file value when env is unset", cfg.LLM.GeminiKey)
	}
}
