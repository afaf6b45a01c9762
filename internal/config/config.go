package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	API       APIConfig `mapstructure:"api"`
	Auth      AuthConfig
	Exam      ExamConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// 运行时字段（非配置文件）
	ConfigFile string `mapstructure:"-"`
}

type ServerConfig struct {
	Port string
	Mode string
}

// APIConfig 后端地址，原客户端在构建时通过环境变量注入
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout_seconds"`
}

type AuthConfig struct {
	RefreshMargin time.Duration `mapstructure:"refresh_margin_minutes"`
}

type ExamConfig struct {
	Duration      time.Duration `mapstructure:"duration_minutes"`
	TickInterval  time.Duration `mapstructure:"tick_interval_ms"`
	AutoAdvance   bool          `mapstructure:"auto_advance"`
	SubmitTimeout time.Duration `mapstructure:"submit_timeout_seconds"`
}

type StorageConfig struct {
	Driver  string `mapstructure:"driver"` // sqlite | mysql | redis | memory
	Path    string `mapstructure:"path"`
	SealKey string `mapstructure:"seal_key"`
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
}

type LogConfig struct {
	File string `mapstructure:"file"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8787")
	v.SetDefault("server.mode", "release")
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout_seconds", 15)
	v.SetDefault("auth.refresh_margin_minutes", 60)
	v.SetDefault("exam.duration_minutes", 2)
	v.SetDefault("exam.tick_interval_ms", 1000)
	v.SetDefault("exam.auto_advance", false)
	v.SetDefault("exam.submit_timeout_seconds", 15)
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "data/client.db")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.prefix", "oabt:")
	v.SetDefault("log.file", "logs/client.log")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:8081", "http://localhost:19006"})
	v.SetDefault("rate_limit.max_requests", 600)
	v.SetDefault("rate_limit.window_minutes", 1)
}

func LoadConfig(path string) (*Config, error) {
	// .env 可选，缺失时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("OABT")
	v.AutomaticEnv()

	// Backend
	v.BindEnv("api.base_url", "API_URL", "EXPO_PUBLIC_API_URL")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("server.port", "SERVER_PORT")

	// Storage
	v.BindEnv("storage.driver", "STORAGE_DRIVER")
	v.BindEnv("storage.path", "STORAGE_PATH")
	v.BindEnv("storage.seal_key", "STORAGE_SEAL_KEY")

	// Database
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	} else {
		cfg.ConfigFile = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.API.Timeout = cfg.API.Timeout * time.Second
	cfg.Auth.RefreshMargin = cfg.Auth.RefreshMargin * time.Minute
	cfg.Exam.Duration = cfg.Exam.Duration * time.Minute
	cfg.Exam.TickInterval = cfg.Exam.TickInterval * time.Millisecond
	cfg.Exam.SubmitTimeout = cfg.Exam.SubmitTimeout * time.Second

	if cfg.API.BaseURL == "" {
		return nil, errors.New("api.base_url must not be empty")
	}
	if cfg.Exam.Duration <= 0 {
		return nil, fmt.Errorf("exam.duration_minutes must be positive, got %v", cfg.Exam.Duration)
	}

	if cfg.Storage.Driver == "sqlite" {
		dir := filepath.Dir(cfg.Storage.Path)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			os.MkdirAll(dir, 0755)
		}
	}

	return &cfg, nil
}
