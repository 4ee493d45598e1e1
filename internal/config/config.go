package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" validate:"gt=0,lt=65536"`
	ReadTimeout  time.Duration `yaml:"readTimeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"writeTimeout" validate:"gte=0"`
	IdleTimeout  time.Duration `yaml:"idleTimeout" validate:"gte=0"`
	NearbyRadius float64       `yaml:"nearbyRadiusMeters" validate:"gt=0"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"gt=0,lt=65536"`
	Database string `yaml:"name" validate:"required"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MinConns int32  `yaml:"minConns" validate:"gte=0"`
	MaxConns int32  `yaml:"maxConns" validate:"gtefield=MinConns"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host       string `yaml:"host" validate:"required"`
	Port       int    `yaml:"port" validate:"gt=0,lt=65536"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db" validate:"gte=0"`
	TLSEnabled bool   `yaml:"tls"`
}

// RateLimitConfig holds per-client request limits; zero disables a limit
type RateLimitConfig struct {
	PerSecond int `yaml:"perSecond" validate:"gte=0"`
	PerDay    int `yaml:"perDay" validate:"gte=0"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Format string `yaml:"format" validate:"oneof=console json"`
	Debug  bool   `yaml:"debug"`
}

// AppConfig is the root configuration structure
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns the configuration used when nothing is overridden
func Default() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
			NearbyRadius: 1000,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "busgraph",
			User:     "postgres",
			SSLMode:  "disable",
			MinConns: 2,
			MaxConns: 10,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		RateLimit: RateLimitConfig{
			PerSecond: 10,
			PerDay:    10000,
		},
		Log: LogConfig{
			Format: "console",
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (AppConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, fmt.Errorf("failed to read %s: %w", path, err)
	}

	applyEnv(&cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv loads the file named by BUSGRAPH_CONFIG, default config.yml
func LoadFromEnv() (AppConfig, error) {
	return Load(getEnv("BUSGRAPH_CONFIG", "config.yml"))
}

func applyEnv(cfg *AppConfig) {
	cfg.Server.Port = getEnvInt("API_PORT", cfg.Server.Port)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("DB_PORT", cfg.Database.Port)
	cfg.Database.Database = getEnv("DB_NAME", cfg.Database.Database)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.MinConns = int32(getEnvInt("DB_MIN_CONNS", int(cfg.Database.MinConns)))
	cfg.Database.MaxConns = int32(getEnvInt("DB_MAX_CONNS", int(cfg.Database.MaxConns)))

	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = getEnvInt("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)
	if v := os.Getenv("REDIS_TLS_ENABLED"); v != "" {
		cfg.Redis.TLSEnabled = v == "true"
	}

	cfg.RateLimit.PerSecond = getEnvInt("RATE_LIMIT_PER_SECOND", cfg.RateLimit.PerSecond)
	cfg.RateLimit.PerDay = getEnvInt("RATE_LIMIT_PER_DAY", cfg.RateLimit.PerDay)

	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	if v := os.Getenv("LOG_DEBUG"); v != "" {
		cfg.Log.Debug = v == "true"
	}
}

// getEnv retrieves an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}
