package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-index-lab/internal/config"
)

func indexFile() *config.File {
	return &config.File{Indices: []config.IndexConfig{
		{ID: 21, Name: "Top 100", Ticker: "TOP100", Scheme: "equal", TargetCount: 100},
		{ID: 22, Name: "Basket", Ticker: "BSK", Scheme: "equal", TargetCount: 10},
	}}
}

func parseIndexFlag(t *testing.T, args ...string) (uint64, bool) {
	t.Helper()
	var id uint64
	cmd := &cobra.Command{Use: "rebalance"}
	cmd.Flags().Uint64Var(&id, "index", 0, "")
	require.NoError(t, cmd.ParseFlags(args))
	return id, cmd.Flags().Changed("index")
}

func TestCycleDefinitions_AllWhenFlagOmitted(t *testing.T) {
	id, only := parseIndexFlag(t)

	defs, err := cycleDefinitions(indexFile(), id, only)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, uint64(21), defs[0].IndexID)
	assert.Equal(t, uint64(22), defs[1].IndexID)
}

func TestCycleDefinitions_SingleIndex(t *testing.T) {
	id, only := parseIndexFlag(t, "--index", "22")

	defs, err := cycleDefinitions(indexFile(), id, only)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, uint64(22), defs[0].IndexID)
}

func TestCycleDefinitions_ExplicitZeroIsNotAll(t *testing.T) {
	id, only := parseIndexFlag(t, "--index", "0")
	require.True(t, only)

	_, err := cycleDefinitions(indexFile(), id, only)
	assert.ErrorContains(t, err, "index 0 is not configured")
}
