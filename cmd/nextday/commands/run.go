package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantfold/nextday/internal/contracts"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full daily pipeline",
	Long: `Runs the complete daily cycle: universe resolution, bar retrieval,
feature computation, model training with a held-out evaluation window,
a walk-forward backtest, plan generation, and reconciliation of the
prior plan when its exit session has closed.`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	res, err := a.pipe.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	fmt.Printf("Reference date:   %s\n", res.Date.Format(contracts.DateFormat))
	fmt.Printf("Universe:         %d instruments, %d kept, %d feature rows\n",
		res.UniverseSize, res.InstrumentsOK, res.FeatureRows)
	if m := res.HoldoutMetrics; m != nil {
		fmt.Printf("Holdout:          AUC %.3f  accuracy %.3f  precision@%.2f %.3f\n",
			m.AUC, m.Accuracy, m.Threshold, m.Precision)
	}
	if b := res.Backtest; b != nil {
		fmt.Printf("Walk-forward:     %d trades over %d steps, win rate %.1f%%, mean ret %.3f%%\n",
			len(b.Trades), len(b.Steps), b.WinRate*100, b.MeanReturn*100)
	}
	if p := res.Plan; p != nil {
		fmt.Printf("Plan:             %d positions for %s\n", len(p.Positions), p.Date.Format(contracts.DateFormat))
	}
	if s := res.Reconciled; s != nil {
		fmt.Printf("Reconciled:       %d/%d resolved, total PnL %.2f\n", s.Resolved, s.Trades, s.TotalPnL)
	}
	return nil
}
