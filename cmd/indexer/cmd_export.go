package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"crypto-index-lab/internal/history"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the rebalance table of an index as CSV",
	Long: `Write Timestamp, Date, Price and Weights columns, one row per recorded
rebalance, sorted by timestamp.

Examples:
  indexer export --index 21 --out rebalances.csv
  indexer export --index 21 --out -`,
	RunE: runExport,
}

var (
	exportIndex uint64
	exportOut   string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().Uint64Var(&exportIndex, "index", 0, "Index id")
	exportCmd.Flags().StringVar(&exportOut, "out", "-", "Output file (- for stdout)")
	_ = exportCmd.MarkFlagRequired("index")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	stores, err := createStores(ctx)
	if err != nil {
		return err
	}
	defer stores.close()

	var w io.Writer = cmd.OutOrStdout()
	if exportOut != "-" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportOut, err)
		}
		defer f.Close()
		w = f
	}

	svc := history.NewService(history.ServiceOptions{Rebalances: stores.rebalances, Logger: &logger})
	n, err := svc.Export(ctx, exportIndex, w)
	if err != nil {
		return err
	}
	logger.Info().Uint64("index_id", exportIndex).Int("rows", n).Str("out", exportOut).Msg("rebalances exported")
	return nil
}
