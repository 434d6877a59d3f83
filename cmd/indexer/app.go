package main

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"crypto-index-lab/internal/chain"
	"crypto-index-lab/internal/config"
	"crypto-index-lab/internal/lock"
	"crypto-index-lab/internal/marketdata"
	"crypto-index-lab/internal/notify"
	"crypto-index-lab/internal/storage"
	chstore "crypto-index-lab/internal/storage/clickhouse"
	"crypto-index-lab/internal/storage/memory"
	pgstore "crypto-index-lab/internal/storage/postgres"
)

// allStores holds all storage implementations.
type allStores struct {
	compositions storage.CompositionStore
	rebalances   storage.RebalanceStore
	listings     storage.ListingSnapshotStore
	history      storage.HistoryStore
	pendingFunds storage.PendingFundStore
	close        func()
}

// createStores opens PostgreSQL and, when configured, ClickHouse.
// The history store stays nil without a ClickHouse DSN.
func createStores(ctx context.Context) (*allStores, error) {
	if env.UseMemory {
		return &allStores{
			compositions: memory.NewCompositionStore(),
			rebalances:   memory.NewRebalanceStore(),
			listings:     memory.NewListingSnapshotStore(),
			history:      memory.NewHistoryStore(),
			pendingFunds: memory.NewPendingFundStore(),
			close:        func() {},
		}, nil
	}

	if env.PostgresDSN == "" {
		return nil, fmt.Errorf("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}
	pool, err := pgstore.NewPool(ctx, env.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	s := &allStores{
		compositions: pgstore.NewCompositionStore(pool),
		rebalances:   pgstore.NewRebalanceStore(pool),
		listings:     pgstore.NewListingSnapshotStore(pool),
		pendingFunds: pgstore.NewPendingFundStore(pool),
		close:        pool.Close,
	}

	if env.ClickHouseDSN != "" {
		conn, err := chstore.NewConn(ctx, env.ClickHouseDSN)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		s.history = chstore.NewHistoryStore(conn)
		s.close = func() {
			conn.Close()
			pool.Close()
		}
	}
	return s, nil
}

// loadIndexFile reads the index configuration named by --index-file.
func loadIndexFile() (*config.File, error) {
	return config.LoadFile(env.IndexFile)
}

// dialChains connects to every configured registry.
func dialChains(ctx context.Context, file *config.File) (*chain.Clients, error) {
	return chain.Dial(ctx, file.Endpoints(), &logger)
}

func providerOptions() []marketdata.Option {
	opts := []marketdata.Option{}
	if env.ProviderRPS > 0 {
		opts = append(opts, marketdata.WithRateLimit(env.ProviderRPS, 1))
	}
	return opts
}

func newPriceSource() *marketdata.CoinGecko {
	opts := providerOptions()
	if env.CoinGeckoAPIKey != "" {
		opts = append(opts, marketdata.WithAPIKey(marketdata.CoinGeckoAPIKeyHeader, env.CoinGeckoAPIKey))
	}
	return marketdata.NewCoinGecko(env.CoinGeckoURL, opts...)
}

func newExchange() *marketdata.Binance {
	return marketdata.NewBinance(env.BinanceURL, providerOptions()...)
}

// newLocker returns a Redis claim when --redis-addr is set, else an in-process one.
func newLocker() (lock.Locker, func()) {
	if env.RedisAddr == "" {
		return lock.NewMemory(), func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: env.RedisAddr})
	return lock.NewRedis(lock.RedisOptions{Client: client}), func() { _ = client.Close() }
}

// newNotifier returns a Kafka notifier when brokers are configured.
func newNotifier() (notify.Notifier, func()) {
	if len(env.KafkaBrokers) == 0 {
		return notify.Nop{}, func() {}
	}
	k := notify.NewKafka(notify.KafkaOptions{
		Brokers: env.KafkaBrokers,
		Topic:   env.KafkaTopic,
		Logger:  &logger,
	})
	return k, func() {
		if err := k.Close(); err != nil {
			logger.Warn().Err(err).Msg("close kafka writer")
		}
	}
}
