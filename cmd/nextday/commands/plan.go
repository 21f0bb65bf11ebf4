package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfold/nextday/internal/contracts"
	"github.com/quantfold/nextday/internal/plan"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Generate or inspect trade plans",
}

var planGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Train on current history and persist a plan",
	Long: `Trains a model on the full filtered dataset and writes the sized
next-day plan for the latest bar date. Plans are immutable: if a plan for
that date already exists the command fails rather than overwrite it.`,
	RunE: runPlanGenerate,
}

var planShowCmd = &cobra.Command{
	Use:   "show [date]",
	Short: "Print a persisted plan (latest when no date given)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPlanShow,
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.AddCommand(planGenerateCmd)
	planCmd.AddCommand(planShowCmd)
}

func runPlanGenerate(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	vectors, err := a.pipe.Dataset(cmd.Context())
	if err != nil {
		return err
	}

	m, err := a.trainer.Fit(vectors)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}

	p, err := a.generator.Generate(cmd.Context(), m, vectors, plan.Config{
		TopN:            a.cfg.Trading.TopN,
		Capital:         a.cfg.Trading.Capital,
		SentimentWeight: a.cfg.Trading.SentimentWeight,
	})
	if err != nil {
		return fmt.Errorf("generate plan: %w", err)
	}

	printPlan(p)
	return nil
}

func runPlanShow(cmd *cobra.Command, args []string) error {
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

	printPlan(p)
	return nil
}

func printPlan(p *contracts.Plan) {
	fmt.Printf("Trade plan for %s (%d positions)\n", p.Date.Format(contracts.DateFormat), len(p.Positions))
	fmt.Printf("%-10s %9s %7s %6s %6s %9s %9s %9s %9s %6s %10s\n",
		"instrument", "close", "score", "prob", "sent", "entry", "stop", "tp1", "tp2", "qty", "capital")
	for _, pos := range p.Positions {
		fmt.Printf("%-10s %9.4f %7.4f %6.3f %6.2f %9.4f %9.4f %9.4f %9.4f %6d %10.2f\n",
			pos.Instrument, pos.Close, pos.Score, pos.Prob, pos.Sentiment,
			pos.Entry, pos.Stop, pos.Target1, pos.Target2, pos.Quantity, pos.Capital)
	}
}
