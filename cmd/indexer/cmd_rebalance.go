package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"crypto-index-lab/internal/config"
	"crypto-index-lab/internal/domain"
	"crypto-index-lab/internal/eligibility"
	"crypto-index-lab/internal/orchestrator"
	"crypto-index-lab/internal/recorder"
	"crypto-index-lab/internal/retry"
)

var rebalanceCmd = &cobra.Command{
	Use:   "rebalance",
	Short: "Run one rebalance cycle",
	Long: `Run selection, allocation, persistence and on-chain sync for one index,
or for every configured index when --index is omitted.

Examples:
  indexer rebalance --index 21
  indexer rebalance --index 21 --at 2024-03-01T00:00:00Z
  indexer rebalance --use-memory`,
	RunE: runRebalance,
}

var (
	rebalanceIndex uint64
	rebalanceAt    string
)

func init() {
	rootCmd.AddCommand(rebalanceCmd)

	rebalanceCmd.Flags().Uint64Var(&rebalanceIndex, "index", 0, "Index id (omit to run every configured index)")
	rebalanceCmd.Flags().StringVar(&rebalanceAt, "at", "", "Cycle time, RFC3339 (default: start of the current UTC day)")
}

func runRebalance(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	at, err := cycleTime(rebalanceAt)
	if err != nil {
		return err
	}

	file, err := loadIndexFile()
	if err != nil {
		return err
	}
	defs, err := cycleDefinitions(file, rebalanceIndex, cmd.Flags().Changed("index"))
	if err != nil {
		return err
	}

	stores, err := createStores(ctx)
	if err != nil {
		return err
	}
	defer stores.close()

	chains, err := dialChains(ctx, file)
	if err != nil {
		return err
	}
	defer chains.Close()

	locker, closeLocker := newLocker()
	defer closeLocker()
	notifier, closeNotifier := newNotifier()
	defer closeNotifier()

	prices := newPriceSource()
	orch := orchestrator.New(orchestrator.Options{
		Selector: eligibility.New(eligibility.Options{
			Source:         prices,
			Exchange:       newExchange(),
			CategoryPolicy: retry.DefaultPolicy(),
			Logger:         &logger,
		}),
		Prices: prices,
		Recorder: recorder.New(recorder.Options{
			Compositions: stores.compositions,
			Rebalances:   stores.rebalances,
			Logger:       &logger,
		}),
		Chains:         chains,
		Locker:         locker,
		Notifier:       notifier,
		PendingFunds:   stores.pendingFunds,
		PublishTimeout: env.PublishTimeout,
		DeployTimeout:  env.DeployTimeout,
		PricePolicy:    retry.DefaultPolicy(),
		Logger:         &logger,
	})

	results, err := orch.RunAll(ctx, defs, at)
	for _, res := range results {
		if res == nil {
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "index %d at %s: %s (cycle %s)\n",
			res.IndexID, time.Unix(res.Timestamp, 0).UTC().Format(time.RFC3339), res.Outcome(), res.CycleID)
	}
	return err
}

// cycleTime parses --at, defaulting to the start of the current UTC day so
// reruns on the same day target the same timestamp.
func cycleTime(s string) (time.Time, error) {
	if s == "" {
		return time.Unix(recorder.DayStart(time.Now()), 0).UTC(), nil
	}
	at, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q: %w", s, err)
	}
	return at.UTC(), nil
}

// cycleDefinitions returns the single index named by --index, or every
// configured index when the flag was not given.
func cycleDefinitions(file *config.File, indexID uint64, only bool) ([]domain.IndexDefinition, error) {
	if !only {
		return file.Definitions(), nil
	}
	def, err := file.Definition(indexID)
	if err != nil {
		return nil, err
	}
	return []domain.IndexDefinition{def}, nil
}
