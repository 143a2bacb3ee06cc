// Package config handles TOML configuration loading and path resolution.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Bot     BotConfig
	LLM     LLMConfig
	Router  RouterConfig
	History HistoryConfig
	Profile ProfileConfig
	Agent   AgentConfig
	Log     LogConfig
	Web     WebConfig
}

type BotConfig struct {
	Token    string `toml:"token"`
	OwnerID  string `toml:"owner_id"`
	Prefix   string `toml:"prefix"`
	SoulFile string `toml:"soul_file"`
}

type LLMConfig struct {
	GeminiKey   string `toml:"gemini_key"`
	FallbackKey string `toml:"fallback_key"`

	FlashModel string `toml:"flash_model"`
	ProModel   string `toml:"pro_model"`

	// BaseURL overrides the Gemini API endpoint; used by tests.
	BaseURL string `toml:"base_url"`

	RequestTimeoutSeconds int     `toml:"request_timeout_seconds"`
	MaxOutputTokens       int     `toml:"max_output_tokens"`
	Temperature           float64 `toml:"temperature"`
	TopP                  float64 `toml:"top_p"`
	TopK                  int     `toml:"top_k"`

	// ReplyCharLimit is the platform message-size ceiling. Replies longer
	// than this are summarized down by a second flash call.
	ReplyCharLimit int `toml:"reply_char_limit"`
}

type RouterConfig struct {
	LengthThreshold int      `toml:"length_threshold"`
	Keywords        []string `toml:"keywords"`
}

type HistoryConfig struct {
	Window int `toml:"window"`
}

type ProfileConfig struct {
	Path string `toml:"path"`
}

type AgentConfig struct {
	IdleTimeoutMinutes int `toml:"idle_timeout_minutes"`
}

type LogConfig struct {
	DBPath string `toml:"db_path"`
}

type WebConfig struct {
	Addr string `toml:"addr"` // empty disables the dashboard
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyEnvOverrides(&cfg)
	ApplyDefaults(&cfg)

	// Validate required fields. A missing credential is the one fatal
	// startup condition.
	if cfg.Bot.Token == "" {
		return nil, fmt.Errorf("bot.token is required")
	}
	if cfg.LLM.GeminiKey == "" {
		return nil, fmt.Errorf("llm.gemini_key is required (or set GEMINI_API_KEY)")
	}

	return &cfg, nil
}

// applyEnvOverrides lets deployment secrets come from the environment
// instead of the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.LLM.GeminiKey = v
	}
	if v := os.Getenv("GEMINI_FALLBACK_KEY"); v != "" {
		cfg.LLM.FallbackKey = v
	}
}

// ApplyDefaults fills zero-valued fields. Exported so tests can build a
// Config literal and still get the standard defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Bot.Prefix == "" {
		cfg.Bot.Prefix = "!"
	}
	if cfg.LLM.FlashModel == "" {
		cfg.LLM.FlashModel = "gemini-2.5-flash"
	}
	if cfg.LLM.ProModel == "" {
		cfg.LLM.ProModel = "gemini-2.5-pro"
	}
	if cfg.LLM.RequestTimeoutSeconds == 0 {
		cfg.LLM.RequestTimeoutSeconds = 60
	}
	if cfg.LLM.MaxOutputTokens == 0 {
		cfg.LLM.MaxOutputTokens = 2048
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.9
	}
	if cfg.LLM.TopP == 0 {
		cfg.LLM.TopP = 0.95
	}
	if cfg.LLM.TopK == 0 {
		cfg.LLM.TopK = 40
	}
	if cfg.LLM.ReplyCharLimit == 0 {
		cfg.LLM.ReplyCharLimit = 2000
	}
	if cfg.Router.LengthThreshold == 0 {
		cfg.Router.LengthThreshold = 150
	}
	if cfg.History.Window == 0 {
		cfg.History.Window = 10
	}
	if cfg.Agent.IdleTimeoutMinutes == 0 {
		cfg.Agent.IdleTimeoutMinutes = 10
	}
	if cfg.Profile.Path == "" {
		cfg.Profile.Path = "~/.local/share/kiri/profiles.json"
	}
}

// Resolve returns the config file path from the KIRI_CONFIG env var,
// falling back to ~/.config/kiri/config.toml.
// The --config CLI flag is handled separately in main.go.
func Resolve() string {
	path := os.Getenv("KIRI_CONFIG")
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".config", "kiri", "config.toml")
	}
	path = os.ExpandEnv(path)
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
