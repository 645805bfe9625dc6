package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EscalationConfig tunes the escalation sweep.
type EscalationConfig struct {
	DelayMinutes    int `yaml:"delay_minutes"`
	IntervalSeconds int `yaml:"interval_seconds"`
	MaxLevel        int `yaml:"max_level"`
	BatchSize       int `yaml:"batch_size"`
}

// ProviderConfig points at one outbound notification provider.
type ProviderConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	From     string `yaml:"from"`
}

// RedisConfig selects the suppression store backend. An empty address
// falls back to the in-process store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Config defines the service configuration. Values come from an optional
// yaml file named by SENTINEL_CONFIG, with env fallbacks for everything.
type Config struct {
	ListenAddr         string           `yaml:"listen_addr"`
	Env                string           `yaml:"env"`
	LogLevel           string           `yaml:"log_level"`
	DatabaseURL        string           `yaml:"database_url"`
	JWTSecret          string           `yaml:"jwt_secret"`
	IngestToken        string           `yaml:"ingest_token"`
	WebhookToken       string           `yaml:"webhook_token"`
	TenantID           string           `yaml:"tenant_id"`
	Redis              RedisConfig      `yaml:"redis"`
	Escalation         EscalationConfig `yaml:"escalation"`
	Email              ProviderConfig   `yaml:"email"`
	SMS                ProviderConfig   `yaml:"sms"`
	ChannelTimeoutSecs int              `yaml:"channel_timeout_seconds"`
}

// Load reads configuration from yaml and environment.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:         getenvDefault("SENTINEL_LISTEN_ADDR", ":8080"),
		Env:                getenvDefault("ENV", "development"),
		LogLevel:           getenvDefault("LOG_LEVEL", "info"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		IngestToken:        os.Getenv("INGEST_TOKEN"),
		WebhookToken:       os.Getenv("WEBHOOK_TOKEN"),
		TenantID:           os.Getenv("TENANT_ID"),
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getenvIntDefault("REDIS_DB", 0),
		},
		Escalation: EscalationConfig{
			DelayMinutes:    getenvIntDefault("ESCALATION_DELAY_MINUTES", 30),
			IntervalSeconds: getenvIntDefault("ESCALATION_INTERVAL_SECONDS", 60),
			MaxLevel:        getenvIntDefault("ESCALATION_MAX_LEVEL", 3),
			BatchSize:       getenvIntDefault("ESCALATION_BATCH_SIZE", 50),
		},
		Email: ProviderConfig{
			Endpoint: os.Getenv("EMAIL_PROVIDER_ENDPOINT"),
			APIKey:   os.Getenv("EMAIL_PROVIDER_API_KEY"),
			From:     getenvDefault("EMAIL_FROM", "alerts@warehouse-sentinel.local"),
		},
		SMS: ProviderConfig{
			Endpoint: os.Getenv("SMS_PROVIDER_ENDPOINT"),
			APIKey:   os.Getenv("SMS_PROVIDER_API_KEY"),
			From:     os.Getenv("SMS_FROM"),
		},
		ChannelTimeoutSecs: getenvIntDefault("CHANNEL_TIMEOUT_SECONDS", 20),
	}

	if path := os.Getenv("SENTINEL_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("config: database url required")
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("config: jwt secret required")
	}
	if cfg.WebhookToken == "" {
		cfg.WebhookToken = cfg.IngestToken
	}
	return cfg, nil
}

// EscalationDelay returns the delay as a duration.
func (c Config) EscalationDelay() time.Duration {
	return time.Duration(c.Escalation.DelayMinutes) * time.Minute
}

// EscalationInterval returns the sweep cadence as a duration.
func (c Config) EscalationInterval() time.Duration {
	return time.Duration(c.Escalation.IntervalSeconds) * time.Second
}

// ChannelTimeout returns the per-channel send timeout.
func (c Config) ChannelTimeout() time.Duration {
	return time.Duration(c.ChannelTimeoutSecs) * time.Second
}

// Development reports whether the service runs in development mode.
func (c Config) Development() bool {
	return strings.EqualFold(c.Env, "development")
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
