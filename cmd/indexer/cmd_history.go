package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Reconstruct index history from registry events",
	Long: `Rebuild the (timestamp, price, weights) timeline of an index from its
on-chain weight-update events and print it with a cumulative-return series.

Examples:
  indexer history --index 21
  indexer history --index 21 --base 1000 --store`,
	RunE: runHistory,
}

var (
	historyIndex     uint64
	historyBase      float64
	historyStore     bool
	historyFromBlock uint64
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().Uint64Var(&historyIndex, "index", 0, "Index id")
	historyCmd.Flags().Float64Var(&historyBase, "base", 10000, "Indexed value of the first point")
	historyCmd.Flags().BoolVar(&historyStore, "store", false, "Replace the stored history series")
	historyCmd.Flags().Uint64Var(&historyFromBlock, "from-block", 0, "First block scanned for events")
	_ = historyCmd.MarkFlagRequired("index")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	file, err := loadIndexFile()
	if err != nil {
		return err
	}
	def, err := file.Definition(historyIndex)
	if err != nil {
		return err
	}

	chains, err := dialChains(ctx, file)
	if err != nil {
		return err
	}
	defer chains.Close()

	registry, err := chains.Registry(def.ChainID)
	if err != nil {
		return err
	}

	opts := history.ServiceOptions{
		Reconstructor: history.NewReconstructor(history.Options{
			Registry:  registry,
			FromBlock: historyFromBlock,
			Logger:    &logger,
		}),
		Logger: &logger,
	}
	if historyStore {
		stores, err := createStores(ctx)
		if err != nil {
			return err
		}
		defer stores.close()
		opts.History = stores.history
	}
	svc := history.NewService(opts)

	var points []*domain.HistoryPoint
	if historyStore {
		points, err = svc.Rebuild(ctx, def.IndexID)
	} else {
		points, err = svc.Reconstruct(ctx, def.IndexID)
	}
	if err != nil {
		return err
	}

	indexed, err := history.DeriveIndexedSeries(points, historyBase)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tDATE\tPRICE\tINDEXED\tCONSTITUENTS\tBLOCK")
	for i, p := range points {
		fmt.Fprintf(w, "%d\t%s\t%.6f\t%.4f\t%d\t%d\n",
			p.Timestamp,
			time.Unix(p.Timestamp, 0).UTC().Format(time.RFC3339),
			p.Price,
			indexed[i].Value,
			len(p.Weights),
			p.BlockNumber,
		)
	}
	return w.Flush()
}
