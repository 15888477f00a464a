package main

import (
	"github.com/spf13/cobra"

	"github.com/codemcp-dev/codemcp/internal/logging"
)

func newRunCmd() *cobra.Command {
	flags := &commonFlags{}
	cmd := &cobra.Command{
		Use:   "run <specs>...",
		Short: "Generate a manifest in-memory and serve it immediately",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve()
			if err != nil {
				return err
			}

			m, err := buildManifest(args, cfg.Frozen)
			if err != nil {
				return err
			}

			logger := logging.New(logging.Config{
				Level:      cfg.Logging.Level,
				Outputs:    cfg.Logging.Outputs,
				FilePath:   cfg.Logging.FilePath,
				MaxSizeMB:  cfg.Logging.MaxSizeMB,
				MaxBackups: cfg.Logging.MaxBackups,
			})

			return runServer(cfg, m, logger)
		},
	}
	flags.register(cmd)
	return cmd
}
