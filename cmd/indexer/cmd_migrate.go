package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"crypto-index-lab/internal/storage/migrations"
	pgstore "crypto-index-lab/internal/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply embedded PostgreSQL and ClickHouse migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if env.PostgresDSN == "" {
		return fmt.Errorf("--postgres-dsn is required")
	}
	pool, err := pgstore.NewPool(ctx, env.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return err
	}
	logger.Info().Msg("postgres migrations applied")

	if env.ClickHouseDSN == "" {
		logger.Info().Msg("no clickhouse dsn, skipping clickhouse migrations")
		return nil
	}
	conn, err := migrations.RunClickhouseMigrations(ctx, env.ClickHouseDSN)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info().Msg("clickhouse migrations applied")
	return nil
}
