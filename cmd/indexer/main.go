// Command indexer runs the crypto index composition and rebalance engine.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"crypto-index-lab/internal/config"
	"crypto-index-lab/internal/logging"
)

// Flags take their defaults from env, so the .env file is loaded during
// package initialization, before any init declares flags.
var (
	envFile = envFileFromArgs(os.Args[1:])
	env     = loadEnv(envFile)
	logger  zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "Crypto index composition and rebalance engine",
	Long: `Selects index constituents, allocates weights, records snapshots and
publishes weight sets to the on-chain index registry.

Flags default from environment variables; a .env file is loaded first and
never overrides variables already set.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logging.New(logging.Options{Level: env.LogLevel, Pretty: env.LogPretty})
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&envFile, "env-file", envFile, "Path to a .env file")
	pf.StringVar(&env.LogLevel, "log-level", env.LogLevel, "Log level (trace|debug|info|warn|error)")
	pf.BoolVar(&env.LogPretty, "log-pretty", env.LogPretty, "Human-readable console logs")
	pf.StringVar(&env.PostgresDSN, "postgres-dsn", env.PostgresDSN, "PostgreSQL connection string")
	pf.StringVar(&env.ClickHouseDSN, "clickhouse-dsn", env.ClickHouseDSN, "ClickHouse connection string")
	pf.BoolVar(&env.UseMemory, "use-memory", env.UseMemory, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	pf.StringVar(&env.IndexFile, "index-file", env.IndexFile, "YAML file with chains and index definitions")
	pf.StringVar(&env.RedisAddr, "redis-addr", env.RedisAddr, "Redis address for cross-process index claims (empty: in-process)")
	pf.StringSliceVar(&env.KafkaBrokers, "kafka-brokers", env.KafkaBrokers, "Kafka brokers for cycle notifications (empty: disabled)")
	pf.StringVar(&env.KafkaTopic, "kafka-topic", env.KafkaTopic, "Kafka topic for cycle notifications")
	pf.StringVar(&env.CoinGeckoURL, "coingecko-url", env.CoinGeckoURL, "Pricing provider base URL")
	pf.StringVar(&env.BinanceURL, "binance-url", env.BinanceURL, "Exchange base URL")
	pf.Float64Var(&env.ProviderRPS, "provider-rps", env.ProviderRPS, "Provider request rate ceiling (requests per second)")
	pf.DurationVar(&env.PublishTimeout, "publish-timeout", env.PublishTimeout, "Bound on waiting for a weight publish to confirm")
	pf.DurationVar(&env.DeployTimeout, "deploy-timeout", env.DeployTimeout, "Bound on each of fund deployment and registration")
}

func envFileFromArgs(args []string) string {
	path := ".env"
	for i, a := range args {
		switch {
		case a == "--env-file" && i+1 < len(args):
			path = args[i+1]
		case strings.HasPrefix(a, "--env-file="):
			path = strings.TrimPrefix(a, "--env-file=")
		}
	}
	return path
}

func loadEnv(path string) config.Env {
	if err := config.LoadDotEnv(path); err != nil {
		logger := logging.New(logging.Options{})
		logger.Warn().Err(err).Str("path", path).Msg("load env file")
	}
	return config.FromEnv()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
