package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFileDefaults(t *testing.T) {
	t.Setenv(APIKeyEnv, "sk-env")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.LLM.BaseURL != "https://api.siliconflow.cn/v1" {
		t.Errorf("base_url = %q", cfg.LLM.BaseURL)
	}
	if cfg.LLM.APIKey != "sk-env" {
		t.Errorf("api_key = %q, want value from %s", cfg.LLM.APIKey, APIKeyEnv)
	}
	if cfg.LLM.MaxTokens != 1200 || cfg.LLM.Temperature != 0.6 {
		t.Errorf("max_tokens/temperature = %d/%v", cfg.LLM.MaxTokens, cfg.LLM.Temperature)
	}
	if cfg.Agent.MaxToolCalls != 6 {
		t.Errorf("max_tool_calls = %d, want 6", cfg.Agent.MaxToolCalls)
	}
	if cfg.Agent.Timeout != 3*time.Minute {
		t.Errorf("timeout = %v, want 3m", cfg.Agent.Timeout)
	}
	if !cfg.Sessions.Enabled {
		t.Error("sessions should be enabled by default")
	}
}

func TestLoadFileOverrides(t *testing.T) {
	t.Setenv("GRADE_TEST_KEY", "sk-custom")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `llm:
  api_key: ${GRADE_TEST_KEY}
  model: Qwen/Qwen2.5-7B-Instruct
  temperature: 0.2
  headers:
    X-Trace: $GRADE_TEST_KEY
agent:
  timeout: 45s
  note: 我更关心专业课
grade:
  use_filter: true
  multiplier_keywords: [体育, 英语]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.LLM.APIKey != "sk-custom" {
		t.Errorf("api_key = %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.Headers["x-trace"] != "sk-custom" {
		t.Errorf("headers = %v", cfg.LLM.Headers)
	}
	if cfg.LLM.Temperature != 0.2 || cfg.LLM.MaxTokens != 1200 {
		t.Errorf("temperature/max_tokens = %v/%d", cfg.LLM.Temperature, cfg.LLM.MaxTokens)
	}
	if cfg.Agent.Timeout != 45*time.Second || cfg.Agent.Note != "我更关心专业课" {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if !cfg.Grade.UseFilter || len(cfg.Grade.MultiplierKeywords) != 2 {
		t.Errorf("grade = %+v", cfg.Grade)
	}
}

func TestLoadFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("llm: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for invalid yaml")
	}
}

func TestLoadFileRejectsNonPositiveMaxTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  max_tokens: 0\n  temperature: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil || !strings.Contains(err.Error(), "max_tokens") {
		t.Fatalf("LoadFile() error = %v, want max_tokens error", err)
	}
}

func TestLoadFileKeepsZeroTemperature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  temperature: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.LLM.Temperature != 0 {
		t.Errorf("temperature = %v, want 0", cfg.LLM.Temperature)
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := &Config{LLM: LLMConfig{Model: "Qwen/Qwen2.5-72B-Instruct"}}

	cfg.ApplyOverrides("")
	if cfg.LLM.Model != "Qwen/Qwen2.5-72B-Instruct" {
		t.Fatalf("empty override changed model to %q", cfg.LLM.Model)
	}
	cfg.ApplyOverrides("deepseek-ai/DeepSeek-V3")
	if cfg.LLM.Model != "deepseek-ai/DeepSeek-V3" {
		t.Fatalf("model=%q, want %q", cfg.LLM.Model, "deepseek-ai/DeepSeek-V3")
	}
}

func TestRedacted(t *testing.T) {
	cfg := Config{LLM: LLMConfig{APIKey: "sk-secret"}}
	if got := cfg.Redacted().LLM.APIKey; got == "sk-secret" {
		t.Fatal("api key not redacted")
	}
	if cfg.LLM.APIKey != "sk-secret" {
		t.Fatal("Redacted modified the receiver")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("GRADE_EXPAND", "v")
	tests := map[string]string{
		"${GRADE_EXPAND}": "v",
		"$GRADE_EXPAND":   "v",
		"plain":           "plain",
		"":                "",
	}
	for in, want := range tests {
		if got := expandEnv(in); got != want {
			t.Errorf("expandEnv(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSetValuePreservesComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(DefaultContent()), 0644); err != nil {
		t.Fatal(err)
	}

	if err := SetValue(path, "llm.model", "Qwen/Qwen3-8B"); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	if err := SetValue(path, "agent.max_tool_calls", "4"); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "# grade-llm configuration") {
		t.Error("leading comment lost")
	}
	if got, _ := GetValue(path, "llm.model"); got != "Qwen/Qwen3-8B" {
		t.Errorf("llm.model = %q", got)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Agent.MaxToolCalls != 4 || cfg.LLM.Model != "Qwen/Qwen3-8B" {
		t.Errorf("reloaded config = %+v", cfg)
	}
}

func TestSetValueCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := SetValue(path, "grade.use_multiplier", "true"); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	got, err := GetValue(path, "grade.use_multiplier")
	if err != nil || got != "true" {
		t.Fatalf("GetValue() = %q, %v", got, err)
	}
}

func TestSetValueRejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	tests := []struct {
		key, value string
	}{
		{"llm.api_key", "sk-literal"},
		{"llm.max_tokens", "lots"},
		{"agent.timeout", "soon"},
		{"grade.use_filter", "maybe"},
		{"unknown.key", "x"},
	}
	for _, tt := range tests {
		if err := SetValue(path, tt.key, tt.value); err == nil {
			t.Errorf("SetValue(%q, %q) succeeded, want error", tt.key, tt.value)
		}
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("rejected values must not create the file")
	}
	if err := SetValue(path, "llm.api_key", "${MY_KEY}"); err != nil {
		t.Errorf("env reference rejected: %v", err)
	}
}

func TestGetConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	dir, err := GetConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	if dir != filepath.Join("/tmp/xdg", "grade-llm") {
		t.Errorf("GetConfigDir() = %q", dir)
	}
}
