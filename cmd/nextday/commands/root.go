package commands

import (
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "nextday",
	Short: "Next-day swing trade planner",
	Long: `nextday is a walk-forward predictive trading pipeline.

It retrieves daily bars for an equity universe, trains a gradient-boosted
classifier on technical features, evaluates it walk-forward, and emits a
sized next-day trade plan with sentiment-blended ranking. Realized
outcomes are reconciled into a performance ledger one session later.

Examples:
  nextday run
  nextday backtest --days 60 --top 5
  nextday plan show
  nextday api`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
