package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilianp07/bess-scheduler/core/optimize"
	"github.com/kilianp07/bess-scheduler/infra/logger"
	"github.com/kilianp07/bess-scheduler/pkg/export"
	"github.com/kilianp07/bess-scheduler/pkg/scenario"
)

var (
	scenarioPath string
	outFormat    string
	outPath      string
	maxNodes     int
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Solve a scenario file offline and print the schedule",
	Long: `Solve a scenario file offline and print the schedule.

The scenario holds the battery, the initial state of charge, the forecast
series or a forecast CSV and optional dispatch windows. No configuration file
is read and nothing is persisted.`,
	RunE: runOptimize,
}

func init() {
	optimizeCmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario file (yaml or json)")
	optimizeCmd.Flags().StringVarP(&outFormat, "format", "f", "csv", "output format: csv or json")
	optimizeCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	optimizeCmd.Flags().IntVar(&maxNodes, "max-nodes", 0, "branch and bound node limit")
	_ = optimizeCmd.MarkFlagRequired("scenario")
	rootCmd.AddCommand(optimizeCmd)
}

func runOptimize(cmd *cobra.Command, args []string) error {
	sc, err := scenario.Load(scenarioPath)
	if err != nil {
		return err
	}
	req, err := sc.Request("scenario")
	if err != nil {
		return err
	}
	solver := optimize.NewBranchAndBound()
	if maxNodes > 0 {
		solver.MaxNodes = maxNodes
	}
	opt := optimize.New(solver, sc.OptionsOr(optimize.DefaultOptions()), logger.New("optimizer"), nil)
	res, err := opt.Optimize(cmd.Context(), req)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	if err := export.Write(w, outFormat, res); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s, cost %.4f, final soc %.3f kWh\n", sc.Name, res.Mode, res.Cost, res.FinalSOC)
	return nil
}
