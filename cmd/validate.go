package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"edge-gateway/internal/config"
)

func newValidateCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration file, including every provider section",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.ValidateProviders(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: %d provider(s) configured", len(cfg.Configured()))
			if cfg.DefaultProvider != "" {
				fmt.Fprintf(cmd.OutOrStdout(), ", default %s", cfg.DefaultProvider)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML configuration file")
	return cmd
}
