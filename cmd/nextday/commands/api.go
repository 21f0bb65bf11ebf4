package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfold/nextday/internal/api"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the reporting API",
	Long: `Starts the read-only HTTP API over persisted artifacts.

Endpoints:
  GET /health                 - liveness
  GET /metrics                - Prometheus metrics (when enabled)
  GET /api/v1/plan/latest     - most recent trade plan
  GET /api/v1/plan/{date}     - plan for a date (YYYY-MM-DD)
  GET /api/v1/ledger          - performance ledger
  GET /api/v1/universe        - instrument universe`,
	RunE: runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	handler := api.NewReportHandler(a.cfg.OutDir, a.ledger, a.universe, a.log)
	router := api.NewRouter(handler, a.log, a.cfg.MetricsEnabled)
	server := api.New(a.cfg, a.log, router)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		fmt.Printf("received %s, shutting down\n", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
