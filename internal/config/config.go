package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv    string
	Port      string
	LogLevel  string
	LogFormat string

	// Connection admission limits
	MaxConnections      int64
	MaxConnectionsPerIP int
	ConnectionRate      float64
	ConnectionBurst     int

	// Fan-out behavior
	SendTimeout  time.Duration
	ErrorWindow  time.Duration
	ErrorCeiling int

	// Simulated producers
	Symbols           []string
	PriceTickInterval time.Duration
	PriceMinInterval  time.Duration
	SignalInterval    time.Duration
	PortfolioInterval time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		MaxConnections:      int64(getEnvInt("MAX_CONNECTIONS", 5000)),
		MaxConnectionsPerIP: getEnvInt("MAX_CONNECTIONS_PER_IP", 20),
		ConnectionRate:      getEnvFloat("CONNECTION_RATE", 10),
		ConnectionBurst:     getEnvInt("CONNECTION_BURST", 10),

		SendTimeout:  getEnvDuration("SEND_TIMEOUT", 2*time.Second),
		ErrorWindow:  getEnvDuration("ERROR_WINDOW", time.Minute),
		ErrorCeiling: getEnvInt("ERROR_CEILING", 10),

		Symbols:           splitList(getEnv("SYMBOLS", "BTCUSDT,ETHUSDT,SOLUSDT")),
		PriceTickInterval: getEnvDuration("PRICE_TICK_INTERVAL", 250*time.Millisecond),
		PriceMinInterval:  getEnvDuration("PRICE_MIN_INTERVAL", time.Second),
		SignalInterval:    getEnvDuration("SIGNAL_INTERVAL", 5*time.Second),
		PortfolioInterval: getEnvDuration("PORTFOLIO_INTERVAL", 3*time.Second),
	}

	if cfg.Port == "" {
		return nil, fmt.Errorf("PORT must not be empty")
	}
	if cfg.MaxConnections <= 0 {
		return nil, fmt.Errorf("MAX_CONNECTIONS must be positive")
	}
	if cfg.MaxConnectionsPerIP <= 0 {
		return nil, fmt.Errorf("MAX_CONNECTIONS_PER_IP must be positive")
	}
	if cfg.SendTimeout <= 0 {
		return nil, fmt.Errorf("SEND_TIMEOUT must be positive")
	}
	if cfg.ErrorWindow <= 0 {
		return nil, fmt.Errorf("ERROR_WINDOW must be positive")
	}
	if cfg.ErrorCeiling <= 0 {
		return nil, fmt.Errorf("ERROR_CEILING must be positive")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("SYMBOLS must not be empty")
	}
	if cfg.PriceMinInterval < cfg.PriceTickInterval {
		return nil, fmt.Errorf("PRICE_MIN_INTERVAL must not be shorter than PRICE_TICK_INTERVAL")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
