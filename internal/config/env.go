// Package config loads process settings from the environment and index
// definitions from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads .env-style files into the environment. Variables already
// set are never overridden and missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Env holds process-level settings. Flags default to these values.
type Env struct {
	LogLevel  string
	LogPretty bool

	PostgresDSN   string
	ClickHouseDSN string
	UseMemory     bool

	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string

	CoinGeckoURL    string
	CoinGeckoAPIKey string
	BinanceURL      string
	ProviderRPS     float64

	IndexFile      string
	PublishTimeout time.Duration
	DeployTimeout  time.Duration
	MetricsAddr    string
}

// FromEnv reads Env from environment variables.
func FromEnv() Env {
	return Env{
		LogLevel:        Getenv("LOG_LEVEL", "info"),
		LogPretty:       GetenvBool("LOG_PRETTY", false),
		PostgresDSN:     Getenv("POSTGRES_DSN", ""),
		ClickHouseDSN:   Getenv("CLICKHOUSE_DSN", ""),
		UseMemory:       GetenvBool("USE_MEMORY", false),
		RedisAddr:       Getenv("REDIS_ADDR", ""),
		KafkaBrokers:    GetenvList("KAFKA_BROKERS"),
		KafkaTopic:      Getenv("KAFKA_TOPIC", "index.cycle.completed"),
		CoinGeckoURL:    Getenv("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
		CoinGeckoAPIKey: Getenv("COINGECKO_API_KEY", ""),
		BinanceURL:      Getenv("BINANCE_URL", "https://api.binance.com"),
		ProviderRPS:     GetenvFloat("PROVIDER_RPS", 0.5),
		IndexFile:       Getenv("INDEX_FILE", "indices.yaml"),
		PublishTimeout:  GetenvDuration("PUBLISH_TIMEOUT", 3*time.Minute),
		DeployTimeout:   GetenvDuration("DEPLOY_TIMEOUT", 3*time.Minute),
		MetricsAddr:     Getenv("METRICS_ADDR", ":9090"),
	}
}

// Getenv returns the variable or def when unset or blank.
func Getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// GetenvBool parses a boolean variable, falling back to def.
func GetenvBool(key string, def bool) bool {
	v, err := strconv.ParseBool(Getenv(key, ""))
	if err != nil {
		return def
	}
	return v
}

// GetenvFloat parses a float variable, falling back to def.
func GetenvFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(Getenv(key, ""), 64)
	if err != nil {
		return def
	}
	return v
}

// GetenvDuration parses a duration variable, falling back to def.
func GetenvDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(Getenv(key, ""))
	if err != nil {
		return def
	}
	return v
}

// GetenvList splits a comma-separated variable, dropping blanks.
func GetenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(Getenv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
