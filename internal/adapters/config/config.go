package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents application configuration
type Config struct {
	HMM        HMMConfig        `envconfig:"HMM"`
	Market     MarketConfig     `envconfig:"MARKET"`
	Exchange   ExchangeConfig   `envconfig:"EXCHANGE"`
	Database   DatabaseConfig   `envconfig:"DATABASE"`
	ClickHouse ClickHouseConfig `envconfig:"CLICKHOUSE"`
	Redis      RedisConfig      `envconfig:"REDIS"`
	Telegram   TelegramConfig   `envconfig:"TELEGRAM"`
	Workers    WorkersConfig    `envconfig:"WORKERS"`
	Logging    LoggingConfig    `envconfig:"LOGGING"`
}

// HMMConfig represents regime detector parameters. Every option has a default
// and a clamp rule applied by Normalized(); unknown environment keys are
// simply ignored by envconfig.
type HMMConfig struct {
	// NStates is parsed for compatibility but always forced to 3: the
	// bearish/ranging/bullish semantics only hold for three states
	NStates             int     `envconfig:"HMM_N_STATES" default:"3"`
	NIter               int     `envconfig:"HMM_N_ITER" default:"100"`
	InferenceWindow     int     `envconfig:"HMM_INFERENCE_WINDOW" default:"50"`
	ConfidenceThreshold float64 `envconfig:"HMM_CONFIDENCE_THRESHOLD" default:"0.15"`
	RetrainIntervalSec  float64 `envconfig:"HMM_RETRAIN_INTERVAL_SEC" default:"86400"`
	MinTrainSamples     int     `envconfig:"HMM_MIN_TRAIN_SAMPLES" default:"500"`
	BiasGain            float64 `envconfig:"HMM_BIAS_GAIN" default:"1.0"`
	BlendWithTrend      float64 `envconfig:"HMM_BLEND_WITH_TREND" default:"0.5"`
}

// Normalized returns a copy with all clamp/floor rules applied
func (c HMMConfig) Normalized() HMMConfig {
	out := c
	out.NStates = 3
	if out.NIter < 10 {
		out.NIter = 10
	}
	if out.InferenceWindow < 5 {
		out.InferenceWindow = 5
	}
	if out.ConfidenceThreshold < 0 {
		out.ConfidenceThreshold = 0
	}
	if out.RetrainIntervalSec < 1 {
		out.RetrainIntervalSec = 1
	}
	if out.MinTrainSamples < 5 {
		out.MinTrainSamples = 5
	}
	if out.BiasGain < 0 {
		out.BiasGain = 0
	}
	if out.BlendWithTrend < 0 {
		out.BlendWithTrend = 0
	}
	if out.BlendWithTrend > 1 {
		out.BlendWithTrend = 1
	}
	return out
}

// MarketConfig represents which market the detector watches
type MarketConfig struct {
	Symbol             string `envconfig:"MARKET_SYMBOL" default:"BTC/USDT"`
	PrimaryTimeframe   string `envconfig:"MARKET_PRIMARY_TIMEFRAME" default:"5m"`
	SecondaryTimeframe string `envconfig:"MARKET_SECONDARY_TIMEFRAME" default:"15m"`
	TertiaryTimeframe  string `envconfig:"MARKET_TERTIARY_TIMEFRAME" default:"1h"`
	TrainingCandles    int    `envconfig:"MARKET_TRAINING_CANDLES" default:"2000"`
	UpdateCandles      int    `envconfig:"MARKET_UPDATE_CANDLES" default:"200"`
}

// Timeframes returns the configured pipeline timeframes in order
func (c *MarketConfig) Timeframes() []string {
	return []string{c.PrimaryTimeframe, c.SecondaryTimeframe, c.TertiaryTimeframe}
}

// ExchangeConfig represents exchange connection parameters
type ExchangeConfig struct {
	APIKey  string `envconfig:"EXCHANGE_API_KEY" required:"false"`
	Secret  string `envconfig:"EXCHANGE_SECRET" required:"false"`
	Testnet bool   `envconfig:"EXCHANGE_TESTNET" default:"true"`
	Stream  bool   `envconfig:"EXCHANGE_STREAM" default:"false"`
}

// DatabaseConfig represents PostgreSQL connection parameters
type DatabaseConfig struct {
	Host           string `envconfig:"DB_HOST" default:"localhost"`
	Port           int    `envconfig:"DB_PORT" default:"5432"`
	Name           string `envconfig:"DB_NAME" default:"regime"`
	User           string `envconfig:"DB_USER" required:"true"`
	Password       string `envconfig:"DB_PASSWORD" required:"true"`
	SSLMode        string `envconfig:"DB_SSLMODE" default:"disable"`
	MigrationsPath string `envconfig:"DB_MIGRATIONS_PATH" default:"migrations"`
}

// ClickHouseConfig represents ClickHouse connection parameters for candle and
// regime history storage
type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	Database string `envconfig:"CLICKHOUSE_DATABASE" default:"regime"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD" required:"false"`
}

// RedisConfig represents Redis connection parameters
type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" required:"false"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// TelegramConfig represents Telegram notification parameters
type TelegramConfig struct {
	BotToken        string `envconfig:"TELEGRAM_BOT_TOKEN" required:"false"`
	ChatID          int64  `envconfig:"TELEGRAM_CHAT_ID" required:"false"`
	AlertOnRegime   bool   `envconfig:"TELEGRAM_ALERT_ON_REGIME" default:"true"`
	AlertOnRetrain  bool   `envconfig:"TELEGRAM_ALERT_ON_RETRAIN" default:"false"`
	AlertOnFailures bool   `envconfig:"TELEGRAM_ALERT_ON_FAILURES" default:"true"`
}

// Enabled returns true when the notifier has enough config to run
func (c *TelegramConfig) Enabled() bool {
	return c.BotToken != "" && c.ChatID != 0
}

// WorkersConfig represents background worker intervals
type WorkersConfig struct {
	CandlesInterval time.Duration `envconfig:"WORKERS_CANDLES_INTERVAL" default:"5m"`
	UpdateInterval  time.Duration `envconfig:"WORKERS_UPDATE_INTERVAL" default:"1m"`
	RetrainInterval time.Duration `envconfig:"WORKERS_RETRAIN_INTERVAL" default:"10m"`
	HealthPort      string        `envconfig:"WORKERS_HEALTH_PORT" default:"8080"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"console"`
	File   string `envconfig:"LOG_FILE" default:""`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Market.Symbol == "" {
		return fmt.Errorf("market symbol is required")
	}
	if c.Market.TrainingCandles < 2 {
		return fmt.Errorf("training candles must be at least 2")
	}
	if c.Market.UpdateCandles < 2 {
		return fmt.Errorf("update candles must be at least 2")
	}
	if c.Workers.UpdateInterval <= 0 {
		return fmt.Errorf("update interval must be positive")
	}
	if c.Workers.RetrainInterval <= 0 {
		return fmt.Errorf("retrain interval must be positive")
	}
	return nil
}

// GetDSN returns PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetDSN returns ClickHouse connection string
func (c *ClickHouseConfig) GetDSN() string {
	return fmt.Sprintf(
		"clickhouse://%s:%s@%s:%d/%s",
		c.User, c.Password, c.Host, c.Port, c.Database,
	)
}
