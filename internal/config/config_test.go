package config

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigFromEnvWithDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing-config.yaml"))
	t.Setenv("GROQ_API_KEY", "gsk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.LLMProvider != ProviderGroq {
		t.Fatalf("unexpected provider default: %q", cfg.LLMProvider)
	}
	if cfg.LLMAPIKey() != "gsk-test" {
		t.Fatalf("unexpected api key: %q", cfg.LLMAPIKey())
	}
	if cfg.HTTPAddr != ":8000" {
		t.Fatalf("unexpected http addr default: %q", cfg.HTTPAddr)
	}
	if cfg.ChatTemperature != 0.7 || cfg.ChatMaxTokens != 600 {
		t.Fatalf("unexpected chat defaults: temperature=%f max_tokens=%d", cfg.ChatTemperature, cfg.ChatMaxTokens)
	}
	if cfg.CacheBackend != CacheBackendMemory {
		t.Fatalf("unexpected cache backend default: %q", cfg.CacheBackend)
	}
	if cfg.DBPath != "./mkulima.db" {
		t.Fatalf("unexpected db path default: %q", cfg.DBPath)
	}
	if cfg.ExternalHTTPTimeoutSeconds != int(defaultExternalHTTPTimeout/time.Second) {
		t.Fatalf("unexpected external HTTP timeout default: %d", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.HistoryRetention() != 90*24*time.Hour {
		t.Fatalf("unexpected history retention: %s", cfg.HistoryRetention())
	}
	if cfg.InfluxConfigured() || cfg.SlackConfigured() {
		t.Fatal("expected influx and slack to be disabled by default")
	}
}

func TestLoadConfigYAMLAndEnvOverride(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
http_addr: ":9100"
llm_provider: "anthropic"
anthropic_api_key: "yaml-anthropic"
models_dir: "/srv/models"
db_path: "/tmp/yaml.db"
cache_backend: "redis"
redis_url: "redis://localhost:6379/0"
chat_max_tokens: 300
external_http_timeout_seconds: 75
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONFIG_PATH", cfgPath)
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("DB_PATH", "/tmp/env.db")
	t.Setenv("EXTERNAL_HTTP_TIMEOUT_SECONDS", "120")
	t.Setenv("CHAT_TEMPERATURE", "0.2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.LLMProvider != ProviderOpenAI {
		t.Fatalf("expected provider from env override, got %q", cfg.LLMProvider)
	}
	if cfg.LLMAPIKey() != "sk-env" {
		t.Fatalf("expected openai key from env override, got %q", cfg.LLMAPIKey())
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Fatalf("expected db path from env override, got %q", cfg.DBPath)
	}
	if cfg.ModelsDir != "/srv/models" {
		t.Fatalf("expected models dir from yaml, got %q", cfg.ModelsDir)
	}
	if cfg.HTTPAddr != ":9100" {
		t.Fatalf("expected http addr from yaml, got %q", cfg.HTTPAddr)
	}
	if cfg.CacheBackend != CacheBackendRedis || cfg.RedisURL == "" {
		t.Fatalf("expected redis cache from yaml, got backend=%q url=%q", cfg.CacheBackend, cfg.RedisURL)
	}
	if cfg.ChatMaxTokens != 300 {
		t.Fatalf("expected chat max tokens from yaml, got %d", cfg.ChatMaxTokens)
	}
	if cfg.ChatTemperature != 0.2 {
		t.Fatalf("expected chat temperature from env, got %f", cfg.ChatTemperature)
	}
	if cfg.ExternalHTTPTimeoutSeconds != 120 {
		t.Fatalf("expected external HTTP timeout from env override, got %d", cfg.ExternalHTTPTimeoutSeconds)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := Config{}
	applyDefaults(&base)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown provider", func(c *Config) { c.LLMProvider = "bard" }, "llm_provider"},
		{"redis without url", func(c *Config) { c.CacheBackend = CacheBackendRedis }, "redis_url"},
		{"unknown cache backend", func(c *Config) { c.CacheBackend = "disk" }, "cache_backend"},
		{"temperature out of range", func(c *Config) { c.ChatTemperature = 3 }, "chat_temperature"},
		{"short http timeout", func(c *Config) { c.ExternalHTTPTimeoutSeconds = 2 }, "external_http_timeout_seconds"},
		{"partial influx", func(c *Config) { c.InfluxURL = "http://influx:8086" }, "Partial InfluxDB config"},
		{"slack token without channel", func(c *Config) { c.SlackBotToken = "xoxb-test" }, "slack_bot_token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("defaults should validate, got %v", err)
	}
}

func TestEnvOverrideHelpers(t *testing.T) {
	s := "initial"
	t.Setenv("MK_TEST_STR", "value")
	envOverride(&s, "MK_TEST_STR")
	if s != "value" {
		t.Fatalf("envOverride failed, got %q", s)
	}

	empty := "keep"
	t.Setenv("MK_TEST_EMPTY", "")
	envOverrideAllowEmpty(&empty, "MK_TEST_EMPTY")
	if empty != "" {
		t.Fatalf("envOverrideAllowEmpty failed, got %q", empty)
	}

	i := 1
	t.Setenv("MK_TEST_INT", "42")
	if err := envOverrideInt(&i, "MK_TEST_INT"); err != nil || i != 42 {
		t.Fatalf("envOverrideInt failed, got %d err=%v", i, err)
	}
	t.Setenv("MK_TEST_INT", "forty-two")
	if err := envOverrideInt(&i, "MK_TEST_INT"); err == nil {
		t.Fatal("expected envOverrideInt to fail for malformed input")
	}

	f := 0.1
	t.Setenv("MK_TEST_FLOAT", "0.75")
	if err := envOverrideFloat(&f, "MK_TEST_FLOAT"); err != nil || f != 0.75 {
		t.Fatalf("envOverrideFloat failed, got %f err=%v", f, err)
	}
}

func TestLoadConfigInvalidProviderFatal(t *testing.T) {
	if os.Getenv("TEST_INVALID_PROVIDER_FATAL") == "1" {
		_ = os.Setenv("CONFIG_PATH", filepath.Join(os.TempDir(), "no-config.yaml"))
		_ = os.Setenv("LLM_PROVIDER", "bard")
		LoadConfig()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestLoadConfigInvalidProviderFatal")
	cmd.Env = append(os.Environ(), "TEST_INVALID_PROVIDER_FATAL=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with failure")
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got: %v", err)
	}
}
