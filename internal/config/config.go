package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/samsaffron/grade-llm/internal/session"
)

// APIKeyEnv is consulted when llm.api_key is empty.
const APIKeyEnv = "SILICONFLOW_API_KEY"

type Config struct {
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Agent    AgentConfig    `mapstructure:"agent" yaml:"agent"`
	Grade    GradeConfig    `mapstructure:"grade" yaml:"grade"`
	Sessions session.Config `mapstructure:"sessions" yaml:"sessions"`
	Debug    DebugConfig    `mapstructure:"debug" yaml:"debug"`
	Theme    ThemeConfig    `mapstructure:"theme" yaml:"theme"`
}

// LLMConfig configures the OpenAI-compatible endpoint.
type LLMConfig struct {
	BaseURL     string            `mapstructure:"base_url" yaml:"base_url"`
	APIKey      string            `mapstructure:"api_key" yaml:"api_key"` // $VAR or ${VAR}
	Model       string            `mapstructure:"model" yaml:"model"`
	MaxTokens   int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64           `mapstructure:"temperature" yaml:"temperature"`
	Headers     map[string]string `mapstructure:"headers" yaml:"headers,omitempty"`
}

type AgentConfig struct {
	MaxToolCalls int           `mapstructure:"max_tool_calls" yaml:"max_tool_calls"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Note         string        `mapstructure:"note" yaml:"note"` // free-text preferences for the system prompt
}

type GradeConfig struct {
	UseFilter          bool     `mapstructure:"use_filter" yaml:"use_filter"`
	UseMultiplier      bool     `mapstructure:"use_multiplier" yaml:"use_multiplier"`
	MultiplierKeywords []string `mapstructure:"multiplier_keywords" yaml:"multiplier_keywords"`
	Rules              string   `mapstructure:"rules" yaml:"rules"` // default rules file
}

type DebugConfig struct {
	LogDir string `mapstructure:"log_dir" yaml:"log_dir"`
}

// ThemeConfig allows customization of UI colors
// Colors can be ANSI color numbers (0-255) or hex codes (#RRGGBB)
type ThemeConfig struct {
	Primary   string `mapstructure:"primary" yaml:"primary,omitempty"`
	Secondary string `mapstructure:"secondary" yaml:"secondary,omitempty"`
	Success   string `mapstructure:"success" yaml:"success,omitempty"`
	Error     string `mapstructure:"error" yaml:"error,omitempty"`
	Muted     string `mapstructure:"muted" yaml:"muted,omitempty"`
	Spinner   string `mapstructure:"spinner" yaml:"spinner,omitempty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.base_url", "https://api.siliconflow.cn/v1")
	v.SetDefault("llm.api_key", "${"+APIKeyEnv+"}")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.max_tokens", 1200)
	v.SetDefault("llm.temperature", 0.6)
	v.SetDefault("agent.max_tool_calls", 6)
	v.SetDefault("agent.timeout", "3m")
	v.SetDefault("agent.note", "")
	v.SetDefault("grade.use_filter", false)
	v.SetDefault("grade.use_multiplier", false)
	v.SetDefault("grade.multiplier_keywords", []string{})
	v.SetDefault("grade.rules", "")
	v.SetDefault("sessions.enabled", true)
	v.SetDefault("sessions.max_age_days", 0)
	v.SetDefault("sessions.max_count", 0)
	v.SetDefault("sessions.path", "")
	v.SetDefault("debug.log_dir", "")
}

// Load reads config.yaml from the config directory. A missing file is not
// an error.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}
	return LoadFile(path)
}

// LoadFile reads the config at path, falling back to defaults when the
// file does not exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.LLM.MaxTokens <= 0 {
		return nil, fmt.Errorf("llm.max_tokens must be positive, got %d", cfg.LLM.MaxTokens)
	}
	resolveLLMCredentials(&cfg.LLM)
	cfg.Debug.LogDir = expandEnv(cfg.Debug.LogDir)
	return &cfg, nil
}

// ApplyOverrides applies a --model override.
func (c *Config) ApplyOverrides(model string) {
	if model != "" {
		c.LLM.Model = model
	}
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.LLM.APIKey != "" {
		c.LLM.APIKey = "********"
	}
	return c
}

func resolveLLMCredentials(cfg *LLMConfig) {
	cfg.APIKey = expandEnv(cfg.APIKey)
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(APIKeyEnv)
	}
	cfg.BaseURL = expandEnv(cfg.BaseURL)
	for k, v := range cfg.Headers {
		cfg.Headers[k] = expandEnv(v)
	}
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigDir returns the XDG config directory for grade-llm.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "grade-llm"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "grade-llm"), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// GetDebugLogDir returns the default directory for --debug-log.
func GetDebugLogDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "grade-llm", "debug")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "grade-llm-debug")
	}
	return filepath.Join(homeDir, ".local", "share", "grade-llm", "debug")
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
