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
	Device     DeviceConfig     `yaml:"device"`
	Backend    BackendConfig    `yaml:"backend"`
	Auth       AuthConfig       `yaml:"auth"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Sync       SyncConfig       `yaml:"sync"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DeviceConfig struct {
	ID     string `yaml:"id"`
	APIKey string `yaml:"api_key"`
}

type BackendConfig struct {
	BaseURL        string   `yaml:"base_url"`
	RequestTimeout Duration `yaml:"request_timeout"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
}

type AuthConfig struct {
	RefreshThreshold Duration `yaml:"refresh_threshold"`
	CheckInterval    Duration `yaml:"check_interval"`
	MaxAttempts      int      `yaml:"max_attempts"`
	RetryDelay       Duration `yaml:"retry_delay"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	CacheTTL int    `yaml:"cache_ttl"` // seconds
}

type SyncConfig struct {
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`
	RetryCeiling      int      `yaml:"retry_ceiling"`
	BackoffBase       Duration `yaml:"backoff_base"`
	BackoffMax        Duration `yaml:"backoff_max"`
	BackoffExponent   int      `yaml:"backoff_exponent"`
	IdleSleep         Duration `yaml:"idle_sleep"`
}

type MonitoringConfig struct {
	HealthPort        int  `yaml:"health_port"`
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; environment may already be populated.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Expand ${VAR} references before parsing.
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
	if c.Backend.BaseURL == "" {
		return errors.New("backend base_url is required")
	}
	if c.Device.APIKey == "" || c.Device.APIKey == "YOUR_API_KEY_HERE" {
		return errors.New("device api key is required")
	}
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Sync.RetryCeiling < 0 {
		return errors.New("sync retry_ceiling must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Backend.RequestTimeout == 0 {
		c.Backend.RequestTimeout = Duration(15 * time.Second)
	}
	if c.Backend.RateLimitRPS == 0 {
		c.Backend.RateLimitRPS = 10
	}
	if c.Backend.RateLimitBurst == 0 {
		c.Backend.RateLimitBurst = 5
	}

	if c.Auth.RefreshThreshold == 0 {
		c.Auth.RefreshThreshold = Duration(5 * time.Minute)
	}
	if c.Auth.CheckInterval == 0 {
		c.Auth.CheckInterval = Duration(time.Minute)
	}
	if c.Auth.MaxAttempts == 0 {
		c.Auth.MaxAttempts = 3
	}
	if c.Auth.RetryDelay == 0 {
		c.Auth.RetryDelay = Duration(2 * time.Second)
	}

	if c.Sync.HeartbeatInterval == 0 {
		c.Sync.HeartbeatInterval = Duration(time.Minute)
	}
	if c.Sync.RetryCeiling == 0 {
		c.Sync.RetryCeiling = 8
	}
	if c.Sync.BackoffBase == 0 {
		c.Sync.BackoffBase = Duration(2 * time.Second)
	}
	if c.Sync.BackoffMax == 0 {
		c.Sync.BackoffMax = Duration(5 * time.Minute)
	}
	if c.Sync.BackoffExponent == 0 {
		c.Sync.BackoffExponent = 6
	}
	if c.Sync.IdleSleep == 0 {
		c.Sync.IdleSleep = Duration(2 * time.Second)
	}

	if c.Redis.CacheTTL == 0 {
		c.Redis.CacheTTL = 30 * 60
	}

	if c.Monitoring.HealthPort == 0 {
		c.Monitoring.HealthPort = 8080
	}

	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
