package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/bess-scheduler/infra/logger"
	"github.com/kilianp07/bess-scheduler/pkg/export"
)

var (
	runStart  string
	runCount  int
	runFormat string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute, persist and publish schedules once",
	RunE:  runOnce,
}

func init() {
	runCmd.Flags().StringVar(&runStart, "start", "", "first timestep, RFC 3339 (default: now truncated to the hour)")
	runCmd.Flags().IntVar(&runCount, "runs", 1, "number of chained horizons")
	runCmd.Flags().StringVar(&runFormat, "format", "", "also print the schedules as csv or json")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	start := time.Now().UTC().Truncate(time.Hour)
	if runStart != "" {
		t, err := time.Parse(time.RFC3339, runStart)
		if err != nil {
			return fmt.Errorf("--start: %w", err)
		}
		start = t
	}
	if runCount <= 0 {
		return fmt.Errorf("--runs must be positive")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	svc, err := newService(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()

	results, err := svc.Runner.RunSequence(ctx, start, runCount, nil)
	for _, res := range results {
		fmt.Fprintf(cmd.ErrOrStderr(), "run %s: %s, %d steps, cost %.4f, final soc %.3f kWh\n",
			res.RunID, res.Mode, len(res.Entries), res.Cost, res.FinalSOC)
		if runFormat != "" {
			if werr := export.Write(cmd.OutOrStdout(), runFormat, res); werr != nil {
				return werr
			}
		}
	}
	return err
}
