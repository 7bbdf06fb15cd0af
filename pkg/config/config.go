package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the copy-trading core.
type Config struct {
	Port string

	// Broker (binary-option exchange)
	BrokerBaseURL   string
	BrokerStreamURL string
	BrokerTimeout   time.Duration

	// Market data
	Symbol   string
	Interval string

	// Trading engine
	TradeSettleDelay   time.Duration // pause before placing an order after a match
	ReconcilePollEvery time.Duration // per-order completion polling period
	ReconcilePollMax   int           // polling attempts before giving up
	HistorySweepEvery  time.Duration // full-history reconciliation pass period

	// Market feed resilience
	FeedReconnectMax int // reconnect attempts before the feed is declared dead

	// Database
	DBPath string

	// Strategy presets
	StrategyConfigPath string

	// Auth
	JWTSecret string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:               getEnv("PORT", "8080"),
		BrokerBaseURL:      getEnv("BROKER_BASE_URL", "https://api.example-broker.com"),
		BrokerStreamURL:    getEnv("BROKER_STREAM_URL", "wss://stream.binance.com:9443/ws"),
		BrokerTimeout:      getEnvDuration("BROKER_TIMEOUT_MS", 10*time.Second),
		Symbol:             strings.ToUpper(getEnv("TRADING_SYMBOL", "BTCUSDT")),
		Interval:           getEnv("TRADING_INTERVAL", "1m"),
		TradeSettleDelay:   getEnvDuration("TRADE_SETTLE_DELAY_MS", 3*time.Second),
		ReconcilePollEvery: getEnvDuration("RECONCILE_POLL_MS", 5*time.Second),
		ReconcilePollMax:   getEnvInt("RECONCILE_POLL_MAX", 12),
		HistorySweepEvery:  getEnvDuration("HISTORY_SWEEP_MS", 60*time.Second),
		FeedReconnectMax:   getEnvInt("FEED_RECONNECT_MAX", 10),
		DBPath:             getEnv("DB_PATH", "./data/copytrade.db"),
		StrategyConfigPath: getEnv("STRATEGY_CONFIG_PATH", "./config/strategies.yaml"),
		JWTSecret:          getEnv("JWT_SECRET", "dev-secret"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration reads a millisecond value from the environment.
func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}
