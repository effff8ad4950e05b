package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 60 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	ProviderGroq      = "groq"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	ModelsDir       string `yaml:"models_dir"`
	CropCatalogPath string `yaml:"crop_catalog_path"`

	EnvDataCSVPath string `yaml:"env_data_csv_path"`
	EnvDataURL     string `yaml:"env_data_url"`
	EnvDataRetries int    `yaml:"env_data_retries"`

	LLMProvider     string  `yaml:"llm_provider"`
	LLMModel        string  `yaml:"llm_model"`
	LLMBaseURL      string  `yaml:"llm_base_url"`
	GroqAPIKey      string  `yaml:"groq_api_key"`
	OpenAIAPIKey    string  `yaml:"openai_api_key"`
	AnthropicAPIKey string  `yaml:"anthropic_api_key"`
	ChatTemperature float64 `yaml:"chat_temperature"`
	ChatMaxTokens   int     `yaml:"chat_max_tokens"`

	CacheBackend    string `yaml:"cache_backend"`
	RedisURL        string `yaml:"redis_url"`
	CacheTTLMinutes int    `yaml:"cache_ttl_minutes"`

	DBPath               string `yaml:"db_path"`
	HistoryRetentionDays int    `yaml:"history_retention_days"`
	HistoryPruneSchedule string `yaml:"history_prune_schedule"`

	InfluxURL    string `yaml:"influx_url"`
	InfluxToken  string `yaml:"influx_token"`
	InfluxOrg    string `yaml:"influx_org"`
	InfluxBucket string `yaml:"influx_bucket"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`

	ExternalHTTPTimeoutSeconds int `yaml:"external_http_timeout_seconds"`
}

func LoadConfig() Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("%v", err)
	}
	return cfg
}

// Load reads config.yaml (or CONFIG_PATH), applies .env and environment
// overrides, fills defaults and validates the result.
func Load() (Config, error) {
	var cfg Config

	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded environment from .env")
	}

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("Error parsing %s: %w", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	envOverride(&cfg.HTTPAddr, "HTTP_ADDR")
	envOverride(&cfg.ModelsDir, "MODELS_DIR")
	envOverride(&cfg.CropCatalogPath, "CROP_CATALOG_PATH")
	envOverride(&cfg.EnvDataCSVPath, "ENV_DATA_CSV_PATH")
	envOverrideAllowEmpty(&cfg.EnvDataURL, "ENV_DATA_URL")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.LLMBaseURL, "LLM_BASE_URL")
	envOverride(&cfg.GroqAPIKey, "GROQ_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.CacheBackend, "CACHE_BACKEND")
	envOverride(&cfg.RedisURL, "REDIS_URL")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverrideAllowEmpty(&cfg.HistoryPruneSchedule, "HISTORY_PRUNE_SCHEDULE")
	envOverride(&cfg.InfluxURL, "INFLUX_URL")
	envOverride(&cfg.InfluxToken, "INFLUX_TOKEN")
	envOverride(&cfg.InfluxOrg, "INFLUX_ORG")
	envOverride(&cfg.InfluxBucket, "INFLUX_BUCKET")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")

	ints := []struct {
		field *int
		key   string
	}{
		{&cfg.EnvDataRetries, "ENV_DATA_RETRIES"},
		{&cfg.ChatMaxTokens, "CHAT_MAX_TOKENS"},
		{&cfg.CacheTTLMinutes, "CACHE_TTL_MINUTES"},
		{&cfg.HistoryRetentionDays, "HISTORY_RETENTION_DAYS"},
		{&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"},
	}
	for _, i := range ints {
		if err := envOverrideInt(i.field, i.key); err != nil {
			return err
		}
	}
	return envOverrideFloat(&cfg.ChatTemperature, "CHAT_TEMPERATURE")
}

func applyDefaults(cfg *Config) {
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8000"
	}
	if cfg.ModelsDir == "" {
		cfg.ModelsDir = "./data/models"
	}
	if cfg.EnvDataCSVPath == "" {
		cfg.EnvDataCSVPath = "./data/county_features.csv"
	}
	if cfg.EnvDataRetries == 0 {
		cfg.EnvDataRetries = 3
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = ProviderGroq
	}
	if cfg.ChatTemperature == 0 {
		cfg.ChatTemperature = 0.7
	}
	if cfg.ChatMaxTokens == 0 {
		cfg.ChatMaxTokens = 600
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = CacheBackendMemory
	}
	if cfg.CacheTTLMinutes == 0 {
		cfg.CacheTTLMinutes = 24 * 60
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./mkulima.db"
	}
	if cfg.HistoryRetentionDays == 0 {
		cfg.HistoryRetentionDays = 90
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
}

func (c Config) Validate() error {
	switch c.LLMProvider {
	case ProviderGroq, ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("llm_provider must be 'groq', 'openai' or 'anthropic', got '%s'", c.LLMProvider)
	}
	if c.LLMAPIKey() == "" {
		log.Printf("WARNING: no API key for llm_provider=%s. Insight and chat endpoints will return 503.", c.LLMProvider)
	}

	switch c.CacheBackend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("redis_url is required when cache_backend=redis")
		}
	default:
		return fmt.Errorf("cache_backend must be 'memory' or 'redis', got '%s'", c.CacheBackend)
	}

	if c.EnvDataRetries < 1 {
		return fmt.Errorf("invalid env_data_retries '%d': must be >= 1", c.EnvDataRetries)
	}
	if c.ChatTemperature < 0 || c.ChatTemperature > 2 {
		return fmt.Errorf("invalid chat_temperature '%f': must be between 0 and 2", c.ChatTemperature)
	}
	if c.ChatMaxTokens < 1 {
		return fmt.Errorf("invalid chat_max_tokens '%d': must be >= 1", c.ChatMaxTokens)
	}
	if c.CacheTTLMinutes < 1 {
		return fmt.Errorf("invalid cache_ttl_minutes '%d': must be >= 1", c.CacheTTLMinutes)
	}
	if c.HistoryRetentionDays < 1 {
		return fmt.Errorf("invalid history_retention_days '%d': must be >= 1", c.HistoryRetentionDays)
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds)
	}

	influxFields := map[string]string{
		"influx_url":    c.InfluxURL,
		"influx_token":  c.InfluxToken,
		"influx_org":    c.InfluxOrg,
		"influx_bucket": c.InfluxBucket,
	}
	influxSet := 0
	for _, v := range influxFields {
		if v != "" {
			influxSet++
		}
	}
	if influxSet > 0 && influxSet < len(influxFields) {
		for name, val := range influxFields {
			if val == "" {
				return fmt.Errorf("Partial InfluxDB config: '%s' is not set (influx_url, influx_token, influx_org, influx_bucket are required together)", name)
			}
		}
	}

	if (c.SlackBotToken == "") != (c.SlackChannelID == "") {
		return fmt.Errorf("slack_bot_token and slack_channel_id must be set together")
	}
	return nil
}

// LLMAPIKey returns the key that belongs to the configured provider.
func (c Config) LLMAPIKey() string {
	switch c.LLMProvider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	default:
		return c.GroqAPIKey
	}
}

func (c Config) InfluxConfigured() bool {
	return c.InfluxURL != "" && c.InfluxToken != "" && c.InfluxOrg != "" && c.InfluxBucket != ""
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

func (c Config) HistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionDays) * 24 * time.Hour
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideFloat(field *float64, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}
