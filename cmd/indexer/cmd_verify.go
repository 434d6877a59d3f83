package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"crypto-index-lab/internal/history"
	"crypto-index-lab/internal/verification"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Reconcile recorded rebalances with the on-chain registry history",
	Long: `Compare every locally recorded rebalance of an index with the weight
events published to its registry. Exits non-zero when any timestamp
diverges or is missing on either side.

Examples:
  indexer verify --index 21`,
	RunE: runVerify,
}

var (
	verifyIndex     uint64
	verifyFromBlock uint64
)

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().Uint64Var(&verifyIndex, "index", 0, "Index id")
	verifyCmd.Flags().Uint64Var(&verifyFromBlock, "from-block", 0, "First block scanned for events")
	_ = verifyCmd.MarkFlagRequired("index")
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	file, err := loadIndexFile()
	if err != nil {
		return err
	}
	def, err := file.Definition(verifyIndex)
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

	stores, err := createStores(ctx)
	if err != nil {
		return err
	}
	defer stores.close()

	reconstructor := history.NewReconstructor(history.Options{
		Registry:  registry,
		FromBlock: verifyFromBlock,
		Logger:    &logger,
	})
	report, err := verification.NewVerifier(reconstructor, stores.rebalances).VerifyIndex(ctx, def.IndexID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tSTATUS\tDETAIL")
	for _, r := range report.Results {
		if len(r.Divergences) == 0 {
			fmt.Fprintf(w, "%d\t%s\t\n", r.Timestamp, r.Status)
			continue
		}
		for _, d := range r.Divergences {
			fmt.Fprintf(w, "%d\t%s\t%s: local=%v chain=%v\n", r.Timestamp, r.Status, d.Field, d.Expected, d.Actual)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	logger.Info().
		Uint64("index_id", report.IndexID).
		Int("matched", report.Matched).
		Int("divergent", report.Divergent).
		Int("missing_on_chain", report.MissingOnChain).
		Int("missing_locally", report.MissingLocally).
		Msg("verification complete")

	if !report.Consistent() {
		return fmt.Errorf("index %d: %d divergent, %d missing on chain, %d missing locally",
			report.IndexID, report.Divergent, report.MissingOnChain, report.MissingLocally)
	}
	return nil
}
