package cmd

import (
	"github.com/rasnes/tiingo-powerbi-push/load"
	"github.com/spf13/cobra"
)

func newCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact [path]",
		Short: "Removes duplicate (Symbol, date) rows from an append-mode CSV, keeping the last",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := initializeConfigAndLogger()
			if err != nil {
				return err
			}

			path := cfg.Sink.Path
			if len(args) == 1 {
				path = args[0]
			}

			removed, err := load.CompactCSV(path)
			if err != nil {
				log.Error("Error compacting CSV", "path", path, "error", err)
				return err
			}
			log.Info("Compacted CSV", "path", path, "removed", removed)
			return nil
		},
	}
}
