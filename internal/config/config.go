// Package config loads mathcoach settings from an optional YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/abhisek/mathcoach/internal/llm"
	"github.com/abhisek/mathcoach/internal/logging"
	"github.com/abhisek/mathcoach/internal/problemgen"
	"github.com/abhisek/mathcoach/internal/store"
)

// EnvPrefix is prepended to every environment override, e.g.
// MATHCOACH_LLM_PROVIDER or MATHCOACH_LOG_LEVEL.
const EnvPrefix = "MATHCOACH"

// Config is the full application configuration.
type Config struct {
	LLM   llm.Config     `mapstructure:"llm"`
	Log   logging.Config `mapstructure:"log"`
	Store StoreConfig    `mapstructure:"store"`
	Quiz  QuizConfig     `mapstructure:"quiz"`
}

// StoreConfig controls the gateway call log database.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// QuizConfig holds quiz defaults.
type QuizConfig struct {
	Level string `mapstructure:"level"`
}

// StartLevel returns the configured starting level.
func (q QuizConfig) StartLevel() problemgen.Level {
	level, err := problemgen.ParseLevel(q.Level)
	if err != nil {
		return problemgen.LevelJunior
	}
	return level
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		LLM: llm.DefaultConfig(),
		Log: logging.DefaultConfig(),
		Store: StoreConfig{
			Enabled: true,
			Path:    store.DefaultDBPath(),
		},
		Quiz: QuizConfig{Level: string(problemgen.LevelJunior)},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/mathcoach/config.yaml, falling back
// to ~/.config.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "mathcoach", "config.yaml")
}

// Load reads configuration from path (or DefaultPath when empty) and the
// environment. A missing file at the default location is not an error; a
// missing file named explicitly is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			switch {
			case explicit:
				return nil, fmt.Errorf("read config %s: %w", path, err)
			case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
			default:
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if !providerPinned(v) {
		discoverProvider(&cfg.LLM)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.anthropic.api_key", "")
	v.SetDefault("llm.anthropic.model", d.LLM.Anthropic.Model)
	v.SetDefault("llm.openai.api_key", "")
	v.SetDefault("llm.openai.model", d.LLM.OpenAI.Model)
	v.SetDefault("llm.openai.base_url", "")
	v.SetDefault("llm.gemini.api_key", "")
	v.SetDefault("llm.gemini.model", d.LLM.Gemini.Model)
	v.SetDefault("llm.openrouter.api_key", "")
	v.SetDefault("llm.openrouter.model", d.LLM.OpenRouter.Model)
	v.SetDefault("llm.openrouter.base_url", "")
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.requests_per_minute", d.LLM.RequestsPerMinute)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.console", d.Log.Console)

	v.SetDefault("store.enabled", d.Store.Enabled)
	v.SetDefault("store.path", d.Store.Path)

	v.SetDefault("quiz.level", d.Quiz.Level)
}

// bindEnv maps API keys to both the prefixed and the vendor-standard
// variable names. The prefixed name wins.
func bindEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"llm.anthropic.api_key":  {"MATHCOACH_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"},
		"llm.anthropic.model":    {"MATHCOACH_ANTHROPIC_MODEL"},
		"llm.openai.api_key":     {"MATHCOACH_OPENAI_API_KEY", "OPENAI_API_KEY"},
		"llm.openai.model":       {"MATHCOACH_OPENAI_MODEL"},
		"llm.openai.base_url":    {"MATHCOACH_OPENAI_BASE_URL"},
		"llm.gemini.api_key":     {"MATHCOACH_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"llm.gemini.model":       {"MATHCOACH_GEMINI_MODEL"},
		"llm.openrouter.api_key": {"MATHCOACH_OPENROUTER_API_KEY", "OPENROUTER_API_KEY"},
		"llm.openrouter.model":   {"MATHCOACH_OPENROUTER_MODEL"},
		"store.path":             {"MATHCOACH_DB"},
		"log.file":               {"MATHCOACH_LOG"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// providerPinned reports whether the provider was chosen explicitly rather
// than left at its default.
func providerPinned(v *viper.Viper) bool {
	if _, ok := os.LookupEnv(EnvPrefix + "_LLM_PROVIDER"); ok {
		return true
	}
	return v.InConfig("llm.provider")
}

// discoverProvider switches to the first provider with a key when the
// default provider has none. Anthropic is tried first.
func discoverProvider(c *llm.Config) {
	if c.Validate() == nil {
		return
	}
	switch {
	case c.Anthropic.APIKey != "":
		c.Provider = "anthropic"
	case c.OpenAI.APIKey != "":
		c.Provider = "openai"
	case c.Gemini.APIKey != "":
		c.Provider = "gemini"
	case c.OpenRouter.APIKey != "":
		c.Provider = "openrouter"
	}
}

// Validate checks cfg against the embedded schema. Provider credentials are
// checked separately by llm.Config.Validate when a gateway is built, so
// that commands which never call the service still work without a key.
func Validate(cfg *Config) error {
	if err := validateSchema(document(cfg)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// document is the JSON view of cfg that the schema describes.
func document(cfg *Config) map[string]any {
	return map[string]any{
		"llm": map[string]any{
			"provider":            cfg.LLM.Provider,
			"max_tokens":          cfg.LLM.MaxTokens,
			"timeout_ms":          cfg.LLM.Timeout / time.Millisecond,
			"requests_per_minute": cfg.LLM.RequestsPerMinute,
			"openai_base_url":     cfg.LLM.OpenAI.BaseURL,
			"openrouter_base_url": cfg.LLM.OpenRouter.BaseURL,
		},
		"log": map[string]any{
			"level":        strings.ToLower(cfg.Log.Level),
			"max_size_mb":  cfg.Log.MaxSizeMB,
			"max_backups":  cfg.Log.MaxBackups,
			"max_age_days": cfg.Log.MaxAgeDays,
		},
		"store": map[string]any{
			"enabled": cfg.Store.Enabled,
			"path":    cfg.Store.Path,
		},
		"quiz": map[string]any{
			"level": strings.ToLower(cfg.Quiz.Level),
		},
	}
}
