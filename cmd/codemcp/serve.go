package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/codemcp-dev/codemcp/internal/logging"
	"github.com/codemcp-dev/codemcp/internal/manifest"
)

func newServeCmd() *cobra.Command {
	flags := &commonFlags{}
	cmd := &cobra.Command{
		Use:   "serve <dir>",
		Short: "Serve the MCP tool surface from a pre-generated manifest directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(filepath.Join(args[0], "manifest.json"))
			if err != nil {
				return err
			}
			m, err := manifest.Unmarshal(data)
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
