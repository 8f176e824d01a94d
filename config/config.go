package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cryptoDataPipeline/internal/adapters/logger" // Import the logger package for LogLevel
	"cryptoDataPipeline/internal/engine"
)

// Retry backoff strategies accepted in FETCH_RETRY_BACKOFF.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	BaseURL   string // empty selects production or testnet by IsTestnet
	APIKey    string // optional, klines are public
	SecretKey string
	IsTestnet bool

	// Seed dimensions, resolved before discovery
	Symbols   []string
	Intervals []string

	// Fetching
	PageLimit      int
	MaxPages       int // 0 = follow pagination to the end
	MaxAttempts    int
	RetryDelay     time.Duration
	RetryBackoff   string
	RetryMaxDelay  time.Duration
	RequestTimeout time.Duration

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat string

	// Indicators
	IndicatorWindow  int
	IndicatorMode    engine.Mode
	PartialPolicy    engine.PartialPolicy
	IndicatorWorkers int

	// Metrics
	PushgatewayURL string
	MetricsJob     string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.BaseURL = getEnv("BINANCE_BASE_URL", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	if (cfg.APIKey == "") != (cfg.SecretKey == "") {
		errs = append(errs, "BINANCE_API_KEY and BINANCE_API_SECRET must be set together")
	}

	// Seeds
	cfg.Symbols = getEnvAsList("SYMBOLS", "BTCUSDT,ETHUSDT", true)
	cfg.Intervals = getEnvAsList("INTERVALS", "1h,1d", false)
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must list at least one symbol")
	}
	if len(cfg.Intervals) == 0 {
		errs = append(errs, "INTERVALS must list at least one interval")
	}

	// Fetching
	cfg.PageLimit, err = getEnvAsIntRequired("PAGE_LIMIT", 1000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PAGE_LIMIT: %v", err))
	} else if cfg.PageLimit < 1 || cfg.PageLimit > 1000 {
		errs = append(errs, "PAGE_LIMIT must be between 1 and 1000")
	}

	cfg.MaxPages, err = getEnvAsIntRequired("MAX_PAGES", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_PAGES: %v", err))
	} else if cfg.MaxPages < 0 {
		errs = append(errs, "MAX_PAGES cannot be negative")
	}

	cfg.MaxAttempts, err = getEnvAsIntRequired("FETCH_MAX_ATTEMPTS", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FETCH_MAX_ATTEMPTS: %v", err))
	} else if cfg.MaxAttempts < 1 {
		errs = append(errs, "FETCH_MAX_ATTEMPTS must be at least 1")
	}

	retryDelaySeconds, err := getEnvAsIntRequired("FETCH_RETRY_DELAY_SECONDS", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FETCH_RETRY_DELAY_SECONDS: %v", err))
	} else if retryDelaySeconds <= 0 {
		errs = append(errs, "FETCH_RETRY_DELAY_SECONDS must be positive")
	}
	cfg.RetryDelay = time.Duration(retryDelaySeconds) * time.Second

	cfg.RetryBackoff = strings.ToLower(getEnv("FETCH_RETRY_BACKOFF", BackoffFixed))
	if cfg.RetryBackoff != BackoffFixed && cfg.RetryBackoff != BackoffExponential {
		errs = append(errs, "FETCH_RETRY_BACKOFF must be 'fixed' or 'exponential'")
	}

	retryMaxDelaySeconds := getEnvAsInt("FETCH_RETRY_MAX_DELAY_SECONDS", 300)
	if retryMaxDelaySeconds < retryDelaySeconds {
		errs = append(errs, "FETCH_RETRY_MAX_DELAY_SECONDS must not be less than FETCH_RETRY_DELAY_SECONDS")
	}
	cfg.RetryMaxDelay = time.Duration(retryMaxDelaySeconds) * time.Second

	timeoutSeconds := getEnvAsInt("FETCH_TIMEOUT_SECONDS", 10)
	if timeoutSeconds <= 0 {
		errs = append(errs, "FETCH_TIMEOUT_SECONDS must be positive")
	}
	cfg.RequestTimeout = time.Duration(timeoutSeconds) * time.Second

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/market_data.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", logger.FormatText))
	if cfg.LogFormat != logger.FormatText && cfg.LogFormat != logger.FormatJSON {
		errs = append(errs, "LOG_FORMAT must be 'text' or 'json'")
	}

	// Indicators
	cfg.IndicatorWindow, err = getEnvAsIntRequired("INDICATOR_WINDOW", engine.DefaultWindow)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INDICATOR_WINDOW: %v", err))
	} else if cfg.IndicatorWindow < 2 {
		errs = append(errs, "INDICATOR_WINDOW must be at least 2")
	}

	cfg.IndicatorMode, err = engine.ParseMode(getEnv("INDICATOR_MODE", string(engine.ModeIncremental)))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INDICATOR_MODE: %v", err))
	}
	cfg.PartialPolicy, err = engine.ParsePartialPolicy(getEnv("PARTIAL_WINDOW_POLICY", string(engine.PartialEmit)))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PARTIAL_WINDOW_POLICY: %v", err))
	}

	cfg.IndicatorWorkers = getEnvAsInt("INDICATOR_WORKERS", engine.DefaultWorkers)
	if cfg.IndicatorWorkers < 1 {
		errs = append(errs, "INDICATOR_WORKERS must be at least 1")
	}

	// Metrics
	cfg.PushgatewayURL = getEnv("PUSHGATEWAY_URL", "")
	cfg.MetricsJob = getEnv("METRICS_JOB", "market_data_pipeline")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping blanks and duplicates.
func getEnvAsList(key, defaultValue string, upper bool) []string {
	raw := getEnv(key, defaultValue)
	seen := make(map[string]bool)
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if upper {
			item = strings.ToUpper(item)
		}
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
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

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
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
