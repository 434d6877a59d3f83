package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"crypto-index-lab/internal/recorder"
)

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Daily exchange listing snapshots",
}

var listingsSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Store today's exchange pair statuses",
	RunE:  runListingsSnapshot,
}

var listingsDiffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show pairs listed or delisted between two snapshot days",
	Long: `Compare two stored daily snapshots.

Examples:
  indexer listings diff
  indexer listings diff --prev 2024-02-29 --day 2024-03-01`,
	RunE: runListingsDiff,
}

var (
	listingsPrev string
	listingsDay  string
)

func init() {
	rootCmd.AddCommand(listingsCmd)
	listingsCmd.AddCommand(listingsSnapshotCmd)
	listingsCmd.AddCommand(listingsDiffCmd)

	listingsDiffCmd.Flags().StringVar(&listingsPrev, "prev", "", "Previous day, YYYY-MM-DD (default: day before --day)")
	listingsDiffCmd.Flags().StringVar(&listingsDay, "day", "", "Day, YYYY-MM-DD (default: today UTC)")
}

func runListingsSnapshot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	stores, err := createStores(ctx)
	if err != nil {
		return err
	}
	defer stores.close()

	n, err := recorder.NewListingSnapshotter(newExchange(), stores.listings, &logger).Snapshot(ctx, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "stored %d new listing rows\n", n)
	return nil
}

func runListingsDiff(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	day := time.Now().UTC()
	if listingsDay != "" {
		d, err := time.Parse("2006-01-02", listingsDay)
		if err != nil {
			return fmt.Errorf("invalid --day: %w", err)
		}
		day = d
	}
	prev := day.AddDate(0, 0, -1)
	if listingsPrev != "" {
		d, err := time.Parse("2006-01-02", listingsPrev)
		if err != nil {
			return fmt.Errorf("invalid --prev: %w", err)
		}
		prev = d
	}

	stores, err := createStores(ctx)
	if err != nil {
		return err
	}
	defer stores.close()

	diff, err := recorder.NewListingSnapshotter(newExchange(), stores.listings, &logger).Diff(ctx, prev, day)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "listed (%d): %s\n", len(diff.Listed), strings.Join(diff.Listed, ", "))
	fmt.Fprintf(out, "delisted (%d): %s\n", len(diff.Delisted), strings.Join(diff.Delisted, ", "))
	return nil
}
