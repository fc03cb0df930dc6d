package cmd

import (
	"context"
	"fmt"

	"github.com/rasnes/tiingo-powerbi-push/pipeline"
	"github.com/rasnes/tiingo-powerbi-push/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newEndOfDayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eod",
		Short: "End-of-day price pipelines",
	}

	cmd.AddCommand(
		newRunCmd("run", "", "Runs the pipeline with the configured range mode"),
		newRunCmd(utils.ModeHistory, utils.ModeHistory, "Fetches everything since range.inception_date"),
		newRunCmd(utils.ModeToday, utils.ModeToday, "Fetches today's bars"),
		newRunCmd(utils.ModeYesterday, utils.ModeYesterday, "Fetches yesterday's bars"),
		newRangeCmd(),
	)
	return cmd
}

// newRunCmd builds a subcommand that runs the pipeline. A non-empty mode
// overrides range.mode.
func newRunCmd(use, mode, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if mode != "" {
				viper.Set("range.mode", mode)
			}
			return runPipeline(cmd.Context())
		},
	}
}

func newRangeCmd() *cobra.Command {
	var start, end string

	cmd := &cobra.Command{
		Use:   "range",
		Short: "Fetches bars between --start and --end, both inclusive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			viper.Set("range.mode", utils.ModeRange)
			viper.Set("range.start_date", start)
			viper.Set("range.end_date", end)
			return runPipeline(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "first date, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "last date, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func runPipeline(ctx context.Context) error {
	cfg, log, err := initializeConfigAndLogger()
	if err != nil {
		return err
	}

	p, err := pipeline.New(cfg, log, utils.RealTimeProvider{})
	if err != nil {
		log.Error("Error creating pipeline", "error", err)
		return err
	}

	report, err := p.Run(ctx)
	if err != nil {
		log.Error("Error running pipeline", "error", err)
		return err
	}

	switch {
	case report.Empty:
		log.Info("Batch job completed without data", "range", report.Range.String())
	case !report.Push.Delivered():
		log.Warn(fmt.Sprintf("Batch job completed with %d of %d push batches rejected", len(report.Push.Failures), report.Push.Batches),
			"rows", report.Rows, "sent", report.Push.Sent)
	default:
		log.Info("Batch job completed without errors", "rows", report.Rows, "batches", report.Push.Batches)
	}
	return nil
}
