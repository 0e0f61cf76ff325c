package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stitts-dev/lineup-predictor/internal/backtest"
	"github.com/stitts-dev/lineup-predictor/internal/models"
	"github.com/stitts-dev/lineup-predictor/pkg/logger"
)

var (
	predictPeriod int
	predictMode   string

	backtestStart int
	backtestEnd   int
	backtestMode  string
	backtestForce bool

	comparePeriod int
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict the best lineup for a period",
	Long: `Train on every period before the target, score the eligible entities and
select the highest scoring valid lineup.

Examples:
  lineupctl predict --period 20
  lineupctl predict --period 20 --mode heuristic --dataset season.json`,
	RunE: runPredict,
}

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay finished periods against their optimal lineups",
	Long: `Predict each finished period in range using only earlier data and compare
the selection with the realized optimal lineup. Stored predictions are reused
unless --force is given.

Examples:
  lineupctl backtest
  lineupctl backtest --start 6 --end 20 --mode learned --force`,
	RunE: runBacktest,
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare learned and heuristic estimators on a finished period",
	RunE:  runCompare,
}

func init() {
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(backtestCmd)
	rootCmd.AddCommand(compareCmd)

	predictCmd.Flags().IntVar(&predictPeriod, "period", 0, "Target period")
	predictCmd.Flags().StringVar(&predictMode, "mode", "", "Scoring mode: learned, heuristic, ensemble")
	_ = predictCmd.MarkFlagRequired("period")

	backtestCmd.Flags().IntVar(&backtestStart, "start", 0, "First period (default: first with enough history)")
	backtestCmd.Flags().IntVar(&backtestEnd, "end", 0, "Last period (default: latest finished)")
	backtestCmd.Flags().StringVar(&backtestMode, "mode", "", "Scoring mode: learned, heuristic, ensemble")
	backtestCmd.Flags().BoolVar(&backtestForce, "force", false, "Regenerate predictions that already exist")

	compareCmd.Flags().IntVar(&comparePeriod, "period", 0, "Finished period to compare on")
	_ = compareCmd.MarkFlagRequired("period")
}

func runPredict(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	mode, err := rt.mode(predictMode)
	if err != nil {
		return err
	}

	var p *models.Prediction
	err = rt.svc.WithLock(predictPeriod, rt.svc.ModelVersion(mode), func() error {
		var err error
		p, err = rt.svc.Generate(ctx, predictPeriod, mode)
		return err
	})
	if err != nil {
		return err
	}
	logger.WithPeriodContext(predictPeriod, string(mode)).WithField("prediction_id", p.ID).Info("Prediction stored")

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), p)
	}
	entities, err := rt.store.Entities(ctx)
	if err != nil {
		return err
	}
	return writePrediction(cmd.OutOrStdout(), p, entities)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	mode, err := rt.mode(backtestMode)
	if err != nil {
		return err
	}

	opts := backtest.RunOptions{
		Mode:  mode,
		Force: backtestForce,
		Progress: func(p backtest.Progress) {
			logger.WithRunID(p.RunID).WithFields(logrus.Fields{
				"period":    p.Period,
				"processed": p.Processed,
				"total":     p.Total,
				"status":    p.Status,
			}).Info("Backtest progress")
		},
	}
	if cmd.Flags().Changed("start") {
		opts.Start = &backtestStart
	}
	if cmd.Flags().Changed("end") {
		opts.End = &backtestEnd
	}

	summary, err := rt.harness().Run(ctx, opts)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), summary)
	}
	return writeSummary(cmd.OutOrStdout(), summary)
}

func runCompare(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	cmp, err := rt.svc.Compare(ctx, comparePeriod)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), cmp)
	}
	return writeComparison(cmd.OutOrStdout(), comparePeriod, cmp)
}
