package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"coachbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	LockBackendMemory   = "memory"
	LockBackendRedis    = "redis"
	LockBackendFailover = "failover"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Lock       LockConfig       `yaml:"lock"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Sweeper    SweeperConfig    `yaml:"sweeper"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	Timezone    string `yaml:"timezone"`
}

// Location resolves the canonical timezone used for "today".
func (a AppConfig) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", a.Timezone, err)
	}
	return loc, nil
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type LockConfig struct {
	Backend           string        `yaml:"backend"`
	KeyPrefix         string        `yaml:"key_prefix"`
	TTL               time.Duration `yaml:"ttl"`
	WaitTimeout       time.Duration `yaml:"wait_timeout"`
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`
}

type SchedulingConfig struct {
	// MaxBookingDays bounds how far ahead bookings go; 0 means unlimited.
	MaxBookingDays int `yaml:"max_booking_days"`
	// Resources and Subjects enable id validation when non-empty.
	Resources []string `yaml:"resources"`
	Subjects  []string `yaml:"subjects"`
}

type SweeperConfig struct {
	Enabled             bool    `yaml:"enabled"`
	RunAt               string  `yaml:"run_at"`
	RunOnStart          bool    `yaml:"run_on_start"`
	MaxUpdatesPerSecond float64 `yaml:"max_updates_per_second"`
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
	GRPC APIGRPCConfig `yaml:"grpc"`
}

type APIGRPCConfig struct {
	Enabled    bool `yaml:"enabled"`
	Port       int  `yaml:"port"`
	Reflection bool `yaml:"reflection"`
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
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

	switch c.Lock.Backend {
	case LockBackendMemory:
	case LockBackendRedis, LockBackendFailover:
		if c.Redis.Address == "" {
			return fmt.Errorf("lock.backend=%s requires redis.address", c.Lock.Backend)
		}
	default:
		return fmt.Errorf("unknown lock backend: %q", c.Lock.Backend)
	}
	if c.Lock.TTL <= 0 || c.Lock.WaitTimeout <= 0 {
		return errors.New("lock ttl and wait_timeout must be positive")
	}

	if c.Scheduling.MaxBookingDays < 0 {
		return errors.New("scheduling.max_booking_days must not be negative")
	}
	if err := ValidateIDs("resource", c.Scheduling.Resources); err != nil {
		return err
	}
	if err := ValidateIDs("subject", c.Scheduling.Subjects); err != nil {
		return err
	}

	runAt, err := models.ParseTimeOfDay(c.Sweeper.RunAt)
	if err != nil || runAt >= models.MinutesPerDay {
		return fmt.Errorf("invalid sweeper.run_at: %q", c.Sweeper.RunAt)
	}
	if c.Sweeper.MaxUpdatesPerSecond < 0 {
		return errors.New("sweeper.max_updates_per_second must not be negative")
	}

	if _, err := c.App.Location(); err != nil {
		return err
	}
	return nil
}

// ValidateIDs rejects empty and duplicate identifiers.
func ValidateIDs(kind string, ids []string) error {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return fmt.Errorf("empty %s id", kind)
		}
		if seen[id] {
			return fmt.Errorf("duplicate %s id found: %s", kind, id)
		}
		seen[id] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "coachbook"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Lock.Backend == "" {
		c.Lock.Backend = LockBackendMemory
	}
	if c.Lock.KeyPrefix == "" {
		c.Lock.KeyPrefix = "booking_lock:"
	}
	if c.Lock.TTL == 0 {
		c.Lock.TTL = models.DefaultLockTTL * time.Millisecond
	}
	if c.Lock.WaitTimeout == 0 {
		c.Lock.WaitTimeout = models.DefaultLockWait * time.Millisecond
	}
	if c.Lock.RetryInitialDelay == 0 {
		c.Lock.RetryInitialDelay = 10 * time.Millisecond
	}
	if c.Lock.RetryMaxDelay == 0 {
		c.Lock.RetryMaxDelay = 250 * time.Millisecond
	}

	if c.Sweeper.RunAt == "" {
		c.Sweeper.RunAt = models.DefaultSweepTime
	}
}
