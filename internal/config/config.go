package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	Sync       SyncConfig       `yaml:"sync"`
	Network    NetworkConfig    `yaml:"network"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Alerts     AlertsConfig     `yaml:"alerts"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type DeliveryConfig struct {
	BaseURL        string      `yaml:"base_url"`
	TimeoutSeconds int         `yaml:"timeout_seconds"`
	HealthPath     string      `yaml:"health_path"`
	OAuth          OAuthConfig `yaml:"oauth"`
}

type OAuthConfig struct {
	Enabled      bool     `yaml:"enabled"`
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

type SyncConfig struct {
	BatchSize int           `yaml:"batch_size"`
	Backoff   BackoffConfig `yaml:"backoff"`
}

type BackoffConfig struct {
	Enabled       bool    `yaml:"enabled"`
	InitialDelay  string  `yaml:"initial_delay"`
	MaxDelay      string  `yaml:"max_delay"`
	BackoffFactor float64 `yaml:"backoff_factor"`
}

type NetworkConfig struct {
	ProbeIntervalSeconds int `yaml:"probe_interval_seconds"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
	Exports   ExportConfig       `yaml:"exports"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AlertsConfig struct {
	TelegramEnabled bool   `yaml:"telegram_enabled"`
	BotToken        string `yaml:"bot_token"`
	ChatID          int64  `yaml:"chat_id"`
}

func Load(configPath string) (*Config, error) {
	// Подхватываем .env, если он есть
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Delivery.BaseURL == "" {
		return errors.New("delivery base_url is required")
	}

	if c.Delivery.OAuth.Enabled {
		if c.Delivery.OAuth.TokenURL == "" || c.Delivery.OAuth.ClientID == "" {
			return errors.New("delivery oauth requires token_url and client_id")
		}
	}

	if c.Alerts.TelegramEnabled {
		if c.Alerts.BotToken == "" || c.Alerts.ChatID == 0 {
			return errors.New("telegram alerts require bot_token and chat_id")
		}
	}

	if c.Sync.Backoff.Enabled {
		if _, err := time.ParseDuration(c.Sync.Backoff.InitialDelay); err != nil {
			return fmt.Errorf("sync backoff initial_delay: %w", err)
		}
		if _, err := time.ParseDuration(c.Sync.Backoff.MaxDelay); err != nil {
			return fmt.Errorf("sync backoff max_delay: %w", err)
		}
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 5
	}
	if c.API.Exports.Path == "" {
		c.API.Exports.Path = "exports"
	}

	if c.Delivery.TimeoutSeconds == 0 {
		c.Delivery.TimeoutSeconds = 15
	}
	if c.Delivery.HealthPath == "" {
		c.Delivery.HealthPath = "/api/health"
	}

	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = 100
	}
	if c.Sync.Backoff.Enabled {
		if c.Sync.Backoff.InitialDelay == "" {
			c.Sync.Backoff.InitialDelay = "2s"
		}
		if c.Sync.Backoff.MaxDelay == "" {
			c.Sync.Backoff.MaxDelay = "1m"
		}
		if c.Sync.Backoff.BackoffFactor == 0 {
			c.Sync.Backoff.BackoffFactor = 2
		}
	}

	if c.Network.ProbeIntervalSeconds == 0 {
		c.Network.ProbeIntervalSeconds = 15
	}
}
