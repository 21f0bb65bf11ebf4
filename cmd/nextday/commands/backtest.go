package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantfold/nextday/internal/contracts"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a walk-forward backtest",
	Long: `Replays the trailing trading days: at each cutoff a fresh model is
trained on all history up to the cutoff and its top picks are scored
against the following day's closes. Per-day pick files are written under
the output directory for later replay.

Example:
  nextday backtest --days 60 --top 5`,
	RunE: runBacktest,
}

var (
	backtestDays int
	backtestTop  int
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.Flags().IntVar(&backtestDays, "days", 0, "trading days to replay (default: BACKTEST_DAYS)")
	backtestCmd.Flags().IntVar(&backtestTop, "top", 0, "picks per day (default: TOP_N)")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	days := backtestDays
	if days <= 0 {
		days = a.cfg.Trading.BacktestDays
	}
	top := backtestTop
	if top <= 0 {
		top = a.cfg.Trading.TopN
	}

	vectors, err := a.pipe.Dataset(cmd.Context())
	if err != nil {
		return err
	}

	res, err := a.evaluator.Evaluate(cmd.Context(), vectors, days, top)
	if err != nil {
		return fmt.Errorf("walk-forward: %w", err)
	}

	fmt.Printf("Walk-forward over %d days, top %d per day\n", res.Days, top)
	fmt.Printf("  steps:       %d\n", len(res.Steps))
	fmt.Printf("  trades:      %d (%d resolved)\n", len(res.Trades), res.Resolved)
	if res.Resolved > 0 {
		fmt.Printf("  win rate:    %.1f%%\n", res.WinRate*100)
		fmt.Printf("  mean return: %.3f%%\n", res.MeanReturn*100)
	}
	for _, step := range res.Steps {
		fmt.Printf("  %s  train=%d test=%d picks=%d miss=%d\n",
			step.Cutoff.Format(contracts.DateFormat),
			step.TrainRows, step.TestRows, step.Picks, step.JoinMiss)
	}
	return nil
}
