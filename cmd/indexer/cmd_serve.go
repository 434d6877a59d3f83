package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"crypto-index-lab/internal/observability"
)

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Serve /metrics and /healthz",
	RunE:  runServeMetrics,
}

func init() {
	rootCmd.AddCommand(serveMetricsCmd)

	serveMetricsCmd.Flags().StringVar(&env.MetricsAddr, "addr", env.MetricsAddr, "Listen address")
}

func runServeMetrics(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	srv := &http.Server{
		Addr:              env.MetricsAddr,
		Handler:           observability.NewRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", env.MetricsAddr).Msg("serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info().Msg("shutting down metrics server")
		return srv.Shutdown(shutdownCtx)
	}
}
