package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/passbi/railroute/internal/logger"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration shared by all commands
type Config struct {
	Server    ServerConfig    `yaml:"server" validate:"required"`
	Schedules SchedulesConfig `yaml:"schedules" validate:"required"`
	Solver    SolverConfig    `yaml:"solver"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port           int           `yaml:"port" validate:"gt=0,lte=65535"`
	ReadTimeout    time.Duration `yaml:"readTimeout" validate:"gte=0"`
	WriteTimeout   time.Duration `yaml:"writeTimeout" validate:"gte=0"`
	SearchTimeout  time.Duration `yaml:"searchTimeout" validate:"gt=0"`
	LocalCacheSize int           `yaml:"localCacheSize" validate:"gte=0"`
}

// SchedulesConfig tells where timetables are loaded from
type SchedulesConfig struct {
	Dir     string   `yaml:"dir" validate:"required"`
	Source  string   `yaml:"source" validate:"oneof=file db"`
	Preload []string `yaml:"preload"`
}

// SolverConfig contains batch solving configuration
type SolverConfig struct {
	Workers int `yaml:"workers" validate:"gte=1,lte=256"`
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"gt=0,lte=65535"`
	Name     string `yaml:"name" validate:"required"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MinConns int32  `yaml:"minConns" validate:"gte=0"`
	MaxConns int32  `yaml:"maxConns" validate:"gtefield=MinConns"`
}

// ConnectionString returns a key/value DSN understood by pgx and lib/pq
func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode)
}

// RedisConfig holds Redis settings for the shared result cache
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Host     string        `yaml:"host" validate:"required_if=Enabled true"`
	Port     int           `yaml:"port" validate:"gt=0,lte=65535"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	TLS      bool          `yaml:"tls"`
	TTL      time.Duration `yaml:"ttl" validate:"gte=0"`
	MutexTTL time.Duration `yaml:"mutexTTL" validate:"gte=0"`
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// RateLimitConfig holds per-client request limits for the API
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute" validate:"gte=0"`
	RequestsPerDay    int  `yaml:"requestsPerDay" validate:"gte=0"`
}

// LoggingConfig mirrors logger.Config
type LoggingConfig struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error fatal"`
	Console    bool   `yaml:"console"`
	FilePath   string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB" validate:"gte=0"`
	MaxBackups int    `yaml:"maxBackups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"maxAgeDays" validate:"gte=0"`
	Compress   bool   `yaml:"compress"`
}

// Logger converts the section into a logger configuration
func (l LoggingConfig) Logger() logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = l.Level
	cfg.Console = l.Console
	cfg.FilePath = l.FilePath
	cfg.MaxSizeMB = l.MaxSizeMB
	cfg.MaxBackups = l.MaxBackups
	cfg.MaxAgeDays = l.MaxAgeDays
	cfg.Compress = l.Compress
	return cfg
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   30 * time.Second,
			SearchTimeout:  20 * time.Second,
			LocalCacheSize: 1024,
		},
		Schedules: SchedulesConfig{
			Dir:    ".",
			Source: "file",
		},
		Solver: SolverConfig{
			Workers: 4,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Name:     "railroute",
			User:     "postgres",
			SSLMode:  "disable",
			MinConns: 2,
			MaxConns: 10,
		},
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     6379,
			TTL:      10 * time.Minute,
			MutexTTL: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			RequestsPerDay:    10000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Console:    true,
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section of cfg
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getIntEnv("PORT", cfg.Server.Port)
	cfg.Server.SearchTimeout = getDurationEnv("SEARCH_TIMEOUT", cfg.Server.SearchTimeout)

	cfg.Schedules.Dir = getEnv("SCHEDULE_DIR", cfg.Schedules.Dir)
	cfg.Schedules.Source = getEnv("SCHEDULE_SOURCE", cfg.Schedules.Source)

	cfg.Solver.Workers = getIntEnv("SOLVER_WORKERS", cfg.Solver.Workers)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getIntEnv("DB_PORT", cfg.Database.Port)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)

	cfg.Redis.Enabled = getBoolEnv("REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = getIntEnv("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getIntEnv("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.TLS = getBoolEnv("REDIS_TLS_ENABLED", cfg.Redis.TLS)
	cfg.Redis.TTL = getDurationEnv("CACHE_TTL", cfg.Redis.TTL)
	cfg.Redis.MutexTTL = getDurationEnv("CACHE_MUTEX_TTL", cfg.Redis.MutexTTL)

	cfg.RateLimit.Enabled = getBoolEnv("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.FilePath = getEnv("LOG_FILE", cfg.Logging.FilePath)
}

// getEnv retrieves an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
