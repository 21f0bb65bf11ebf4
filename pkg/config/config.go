package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application, read once at process
// start and passed into components. No other package reads the environment.
type Config struct {
	// Trading parameters
	Trading TradingConfig

	// Data retrieval
	Data DataConfig

	// External sources
	EODHDAPIKey string
	NewsFeeds   []string

	// Directories
	CacheDir string
	OutDir   string

	// API server
	APIPort        string
	MetricsEnabled bool

	// Scheduler
	CronSpec string

	// Logging
	LogLevel  string
	LogFormat string
}

// TradingConfig holds ranking, sizing and evaluation parameters.
type TradingConfig struct {
	TopN                 int     `yaml:"top_n"`
	ProbabilityThreshold float64 `yaml:"probability_threshold"`
	BacktestDays         int     `yaml:"backtest_days"`
	Capital              float64 `yaml:"capital"`
	SentimentWeight      float64 `yaml:"sentiment_weight"`
	RiskPctPerTrade      float64 `yaml:"risk_pct_per_trade"`
	MaxPositionPct       float64 `yaml:"max_position_pct"`
}

// DataConfig holds history retrieval and universe filter parameters.
type DataConfig struct {
	LookbackYears      int           `yaml:"lookback_years"`
	MinHistoryRows     int           `yaml:"min_history_rows"`
	MinPrice           float64       `yaml:"min_price"`
	MinAvgVolume       float64       `yaml:"min_avg_volume"`
	UniverseSizeCap    int           `yaml:"universe_size_cap"`
	CacheStalenessDays int           `yaml:"cache_staleness_days"`
	RetryCount         int           `yaml:"retry_count"`
	RetryBackoff       time.Duration `yaml:"retry_backoff"`
	HTTPTimeout        time.Duration `yaml:"http_timeout"`
	FetchWorkers       int           `yaml:"fetch_workers"`
}

// Load reads configuration from environment variables, with .env support.
// This function is the only caller of os.Getenv in the repository.
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Trading: TradingConfig{
			TopN:                 getEnvAsInt("TOP_N", 10),
			ProbabilityThreshold: getEnvAsFloat("PROBABILITY_THRESHOLD", 0.55),
			BacktestDays:         getEnvAsInt("BACKTEST_DAYS", 30),
			Capital:              getEnvAsFloat("CAPITAL", 3000),
			SentimentWeight:      getEnvAsFloat("SENTIMENT_WEIGHT", 0.30),
			RiskPctPerTrade:      getEnvAsFloat("RISK_PCT_PER_TRADE", 0.02),
			MaxPositionPct:       getEnvAsFloat("MAX_POSITION_PCT", 0.25),
		},
		Data: DataConfig{
			LookbackYears:      getEnvAsInt("LOOKBACK_YEARS", 3),
			MinHistoryRows:     getEnvAsInt("MIN_HISTORY_ROWS", 150),
			MinPrice:           getEnvAsFloat("MIN_PRICE", 0.20),
			MinAvgVolume:       getEnvAsFloat("MIN_AVG_VOLUME", 10000),
			UniverseSizeCap:    getEnvAsInt("UNIVERSE_SIZE_CAP", 200),
			CacheStalenessDays: getEnvAsInt("CACHE_STALENESS_DAYS", 3),
			RetryCount:         getEnvAsInt("RETRY_COUNT", 3),
			RetryBackoff:       time.Duration(getEnvAsFloat("RETRY_BACKOFF_SECONDS", 1)) * time.Second,
			HTTPTimeout:        getEnvAsDuration("HTTP_TIMEOUT", "30s"),
			FetchWorkers:       getEnvAsInt("FETCH_WORKERS", 8),
		},

		EODHDAPIKey: getEnv("EODHD_API_KEY", ""),
		NewsFeeds:   splitList(getEnv("NEWS_FEEDS", "")),

		CacheDir: getEnv("CACHE_DIR", "cache"),
		OutDir:   getEnv("OUT_DIR", "out"),

		APIPort:        getEnv("API_PORT", "8090"),
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),

		CronSpec: getEnv("CRON_SPEC", "0 30 16 * * MON-FRI"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	// Optional YAML strategy overrides
	if path := getEnv("STRATEGY_FILE", ""); path != "" {
		if err := applyStrategyFile(cfg, path); err != nil {
			return nil, fmt.Errorf("strategy file %s: %w", path, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	t := c.Trading
	if t.TopN <= 0 {
		return fmt.Errorf("TOP_N must be positive, got %d", t.TopN)
	}
	if t.Capital <= 0 {
		return fmt.Errorf("CAPITAL must be positive, got %.2f", t.Capital)
	}
	if t.SentimentWeight < 0 || t.SentimentWeight > 1 {
		return fmt.Errorf("SENTIMENT_WEIGHT must be in [0,1], got %.2f", t.SentimentWeight)
	}
	if t.BacktestDays <= 0 {
		return fmt.Errorf("BACKTEST_DAYS must be positive, got %d", t.BacktestDays)
	}
	if c.Data.LookbackYears <= 0 {
		return fmt.Errorf("LOOKBACK_YEARS must be positive, got %d", c.Data.LookbackYears)
	}
	if c.Data.FetchWorkers <= 0 {
		return fmt.Errorf("FETCH_WORKERS must be positive, got %d", c.Data.FetchWorkers)
	}
	return nil
}

// loadEnvFile tries to load .env from a few likely locations.
func loadEnvFile() {
	paths := []string{".env"}

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
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
