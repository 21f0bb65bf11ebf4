package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfold/nextday/internal/contracts"
	"github.com/quantfold/nextday/internal/plan"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [date]",
	Short: "Settle a plan against realized exit closes",
	Long: `Looks up the cached close on the plan's exit date for every position
and upserts realized returns into the performance ledger. Positions whose
exit close is not yet available are recorded as unresolved and picked up
on a later reconcile of the same date.

Without a date argument the most recent persisted plan is reconciled.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReconcile,
}

var reconcileOffset int

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().IntVar(&reconcileOffset, "exit-offset", 1, "exit date as calendar days after the plan date")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	var date time.Time
	if len(args) == 1 {
		date, err = time.Parse(contracts.DateFormat, args[0])
		if err != nil {
			return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
		}
	} else {
		date, err = plan.LatestPlanDate(a.cfg.OutDir)
		if err != nil {
			return err
		}
		if date.IsZero() {
			return fmt.Errorf("no plan persisted yet")
		}
	}

	p, err := plan.ReadPlan(a.cfg.OutDir, date)
	if err != nil {
		return fmt.Errorf("read plan: %w", err)
	}

	s, err := a.rec.Reconcile(p, reconcileOffset)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	fmt.Printf("Reconciled %s: %d trades, %d resolved\n",
		date.Format(contracts.DateFormat), s.Trades, s.Resolved)
	if s.Resolved > 0 {
		fmt.Printf("  win rate:    %.1f%%\n", s.WinRate*100)
		fmt.Printf("  mean return: %.3f%%\n", s.MeanRet*100)
		fmt.Printf("  total PnL:   %.2f\n", s.TotalPnL)
	}
	return nil
}
