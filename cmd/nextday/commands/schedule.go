package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quantfold/nextday/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the daily pipeline on its cron schedule",
	Long: `Blocks and runs the full pipeline on the configured cron schedule
(CRON_SPEC, default after the ASX close on weekdays). Use --now to also
fire one run immediately on startup.`,
	RunE: runSchedule,
}

var scheduleNow bool

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.Flags().BoolVar(&scheduleNow, "now", false, "run once immediately as well")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	sched := scheduler.New(a.log)
	job := scheduler.NewPipelineJob(a.pipe, a.cfg.CronSpec)
	if err := sched.AddJob(job); err != nil {
		return err
	}

	sched.Start()
	defer sched.Stop()

	if scheduleNow {
		if err := sched.RunNow(job.Name()); err != nil {
			return err
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	fmt.Printf("received %s, stopping scheduler\n", sig)
	return nil
}
