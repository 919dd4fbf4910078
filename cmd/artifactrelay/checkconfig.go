package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cachehub/artifactrelay/internal/config"
)

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the config file without starting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config OK: listening on :%d, %s\n", cfg.ListenPort, cfg.UpstreamSummary())
			return nil
		},
	}
}
