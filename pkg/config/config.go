package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
	_ "time/tzdata" // SCHEDULER_TZ 는 zoneinfo 없는 컨테이너에서도 로드돼야 함

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Pipeline
	Pipeline PipelineConfig

	// Database (optional: audit persistence)
	Database DatabaseConfig

	// Redis (optional: quality report cache)
	Redis RedisConfig

	// Scheduler
	Scheduler SchedulerConfig

	// API
	API APIConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string
}

// PipelineConfig holds filesystem layout and gate overrides
type PipelineConfig struct {
	DataDir    string // raw/, processed/, models/, quality/ 의 루트
	OutputDir  string // predictions CSV/JSON
	ConfigPath string // pipeline.yaml 경로 (비어 있으면 기본값)
	Workers    int

	// 0 이면 pipeline.yaml 값 사용
	MinLiquidity   float64
	MinDeliveryPct float64
	TopN           int
}

// SchedulerConfig holds cron schedules (with seconds field) and retry policy
type SchedulerConfig struct {
	TrainSchedule   string
	PredictSchedule string
	Timezone        string
	MaxRetries      int
	RetryDelay      time.Duration
	Timeout         time.Duration
}

// APIConfig holds read API limits
type APIConfig struct {
	RateLimit float64 // requests per second per client
	Burst     int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Enabled reports whether a database URL is configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// RawDir returns the raw disclosure root
func (p PipelineConfig) RawDir() string { return filepath.Join(p.DataDir, "raw") }

// ProcessedDir returns the processed table directory
func (p PipelineConfig) ProcessedDir() string { return filepath.Join(p.DataDir, "processed") }

// ModelDir returns the model store root
func (p PipelineConfig) ModelDir() string { return filepath.Join(p.DataDir, "models") }

// QualityDir returns the quality report directory
func (p PipelineConfig) QualityDir() string { return filepath.Join(p.DataDir, "quality") }

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		Pipeline: PipelineConfig{
			DataDir:        getEnv("DATA_DIR", "data"),
			OutputDir:      getEnv("OUTPUT_DIR", filepath.Join("outputs", "predictions")),
			ConfigPath:     getEnv("PIPELINE_CONFIG", ""),
			Workers:        getEnvAsInt("WORKERS", runtime.GOMAXPROCS(0)),
			MinLiquidity:   getEnvAsFloat("MIN_LIQUIDITY", 0),
			MinDeliveryPct: getEnvAsFloat("MIN_DELIVERY_PCT", 0),
			TopN:           getEnvAsInt("TOP_N", 0),
		},

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		// Scheduler
		Scheduler: SchedulerConfig{
			TrainSchedule:   getEnv("SCHEDULE_TRAIN", "0 30 19 * * 1-5"),
			PredictSchedule: getEnv("SCHEDULE_PREDICT", "0 0 8 * * 1-5"),
			Timezone:        getEnv("SCHEDULER_TZ", "Asia/Kolkata"),
			MaxRetries:      getEnvAsInt("SCHEDULER_MAX_RETRIES", 3),
			RetryDelay:      getEnvAsDuration("SCHEDULER_RETRY_DELAY", "10m"),
			Timeout:         getEnvAsDuration("SCHEDULER_TIMEOUT", "2h"),
		},

		// API
		API: APIConfig{
			RateLimit: getEnvAsFloat("API_RATE_LIMIT", 10),
			Burst:     getEnvAsInt("API_BURST", 20),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Pipeline.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("WORKERS must be >= 1")
	}

	if c.Pipeline.MinLiquidity < 0 || c.Pipeline.MinDeliveryPct < 0 || c.Pipeline.MinDeliveryPct > 100 {
		return fmt.Errorf("MIN_LIQUIDITY must be >= 0 and MIN_DELIVERY_PCT within [0, 100]")
	}

	if c.Pipeline.TopN < 0 {
		return fmt.Errorf("TOP_N must be >= 0")
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TZ invalid: %w", err)
	}

	if c.Scheduler.MaxRetries < 0 {
		return fmt.Errorf("SCHEDULER_MAX_RETRIES must be >= 0")
	}

	if c.API.RateLimit <= 0 || c.API.Burst < 1 {
		return fmt.Errorf("API_RATE_LIMIT must be > 0 and API_BURST >= 1")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
