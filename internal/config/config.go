package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/irfndi/celebrum-correlation-go/internal/utils"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	CoinGecko   CoinGeckoConfig `mapstructure:"coingecko"`
	Pipeline    PipelineConfig  `mapstructure:"pipeline"`
	Retry       RetryConfig     `mapstructure:"retry"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Telegram    TelegramConfig  `mapstructure:"telegram"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	Cleanup     CleanupConfig   `mapstructure:"cleanup"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type CoinGeckoConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key" json:"-" yaml:"-"`
	Timeout    time.Duration `mapstructure:"timeout"`
	VsCurrency string        `mapstructure:"vs_currency"`
}

// PipelineConfig controls a single analysis run. Thresholds are fixed for the
// duration of a run; the dashboard only serves what the run exported.
type PipelineConfig struct {
	TopN                 int           `mapstructure:"top_n"`
	LookbackDays         int           `mapstructure:"lookback_days"`
	MinOverlapDays       int           `mapstructure:"min_overlap_days"`
	CorrelationThreshold float64       `mapstructure:"correlation_threshold"`
	DistanceThreshold    float64       `mapstructure:"distance_threshold"`
	DataDir              string        `mapstructure:"data_dir"`
	ResultsDir           string        `mapstructure:"results_dir"`
	ReuseRaw             bool          `mapstructure:"reuse_raw"`
	RawMaxAge            time.Duration `mapstructure:"raw_max_age"`
	RequestDelayMin      time.Duration `mapstructure:"request_delay_min"`
	RequestDelayMax      time.Duration `mapstructure:"request_delay_max"`
	SMAPeriod            int           `mapstructure:"sma_period"`
}

type RetryConfig struct {
	MaxRetries    int           `mapstructure:"max_retries"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
	Jitter        bool          `mapstructure:"jitter"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token" json:"-" yaml:"-"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// CleanupConfig sets retention for raw downloads and run history. Zero keeps
// everything.
type CleanupConfig struct {
	RawRetention time.Duration `mapstructure:"raw_retention"`
	RunRetention time.Duration `mapstructure:"run_retention"`
}

type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
}

func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("coingecko.api_key", "COINGECKO_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind COINGECKO_API_KEY environment variable: %w", err)
	}
	if err := v.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind TELEGRAM_BOT_TOKEN environment variable: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings that would make a pipeline run meaningless.
func (c *Config) Validate() error {
	p := c.Pipeline
	if p.TopN <= 0 {
		return utils.NewValidationErrorf("pipeline.top_n must be positive, got %d", p.TopN)
	}
	if p.LookbackDays <= 1 {
		return utils.NewValidationErrorf("pipeline.lookback_days must be greater than 1, got %d", p.LookbackDays)
	}
	if p.MinOverlapDays < 2 {
		return utils.NewValidationErrorf("pipeline.min_overlap_days must be at least 2, got %d", p.MinOverlapDays)
	}
	if p.CorrelationThreshold < -1 || p.CorrelationThreshold > 1 {
		return utils.NewValidationErrorf("pipeline.correlation_threshold must be within [-1, 1], got %g", p.CorrelationThreshold)
	}
	if p.DistanceThreshold < 0 {
		return utils.NewValidationErrorf("pipeline.distance_threshold must not be negative, got %g", p.DistanceThreshold)
	}
	if p.RequestDelayMin < 0 || p.RequestDelayMax < p.RequestDelayMin {
		return utils.NewValidationErrorf("pipeline request delay range is invalid: [%s, %s]", p.RequestDelayMin, p.RequestDelayMax)
	}
	if c.Retry.MaxRetries < 0 {
		return utils.NewValidationErrorf("retry.max_retries must not be negative, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.BackoffFactor < 1 {
		return utils.NewValidationErrorf("retry.backoff_factor must be at least 1, got %g", c.Retry.BackoffFactor)
	}
	if c.Cleanup.RawRetention < 0 || c.Cleanup.RunRetention < 0 {
		return utils.NewValidationErrorf("cleanup retention must not be negative")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return utils.NewValidationErrorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// RedisAddr returns the host:port pair for the Redis client.
func (r RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// DSN returns the libpq-style connection string used by pgx.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

func setDefaults(v *viper.Viper) {
	// Environment
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	// Server
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")

	// CoinGecko
	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.api_key", "")
	v.SetDefault("coingecko.timeout", "30s")
	v.SetDefault("coingecko.vs_currency", "usd")

	// Pipeline
	v.SetDefault("pipeline.top_n", 100)
	v.SetDefault("pipeline.lookback_days", 180)
	v.SetDefault("pipeline.min_overlap_days", 30)
	v.SetDefault("pipeline.correlation_threshold", 0.3)
	v.SetDefault("pipeline.distance_threshold", 0.30)
	v.SetDefault("pipeline.data_dir", "historical_data")
	v.SetDefault("pipeline.results_dir", "analysis_results")
	v.SetDefault("pipeline.reuse_raw", true)
	v.SetDefault("pipeline.raw_max_age", "24h")
	v.SetDefault("pipeline.request_delay_min", "3s")
	v.SetDefault("pipeline.request_delay_max", "5s")
	v.SetDefault("pipeline.sma_period", 7)

	// Retry
	v.SetDefault("retry.max_retries", 5)
	v.SetDefault("retry.initial_delay", "10s")
	v.SetDefault("retry.max_delay", "120s")
	v.SetDefault("retry.backoff_factor", 2.0)
	v.SetDefault("retry.jitter", true)

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", "6h")

	// Database
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "celebrum_correlation")
	v.SetDefault("database.sslmode", "disable")

	// Telegram
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", 0)

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "celebrum-correlation-go")
	v.SetDefault("telemetry.service_version", "1.0.0")

	// Cleanup
	v.SetDefault("cleanup.raw_retention", "720h")
	v.SetDefault("cleanup.run_retention", "2160h")
}
