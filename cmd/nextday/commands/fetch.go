package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [instrument...]",
	Short: "Refresh the local bar cache",
	Long: `Fetches daily bars for the given instruments, or the whole universe
when none are given, and persists them to the CSV cache. Instruments
already fresh in the cache are served from disk.`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	instruments := args
	if len(instruments) == 0 {
		instruments, err = a.universe.ListInstruments(cmd.Context())
		if err != nil {
			return fmt.Errorf("list universe: %w", err)
		}
	}

	series := a.store.FetchAll(cmd.Context(), instruments, a.cfg.Data.LookbackYears, a.cfg.Data.FetchWorkers)

	ok := 0
	for _, bars := range series {
		if len(bars) > 0 {
			ok++
		}
	}
	fmt.Printf("Fetched %d/%d instruments into %s\n", ok, len(instruments), a.cfg.CacheDir)
	return nil
}
