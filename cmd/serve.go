package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"edge-gateway/internal/config"
	"edge-gateway/internal/metrics"
	"edge-gateway/internal/provider/factory"
	"edge-gateway/internal/router"
	"edge-gateway/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		cfgPath         string
		overridePort    int
		upstreamTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("port") {
				if overridePort <= 0 || overridePort > 65535 {
					return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
				}
				cfg.Server.Port = overridePort
			}

			m := metrics.NewCollector()
			rt := router.New(cfg,
				router.WithHTTPClient(factory.NewHTTPClient(upstreamTimeout)),
				router.WithMetrics(m),
				router.WithLogger(slog.Default().With("component", "router")),
			)

			srv, err := server.New(cfg, rt, m)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML configuration file")
	cmd.Flags().IntVar(&overridePort, "port", 0, "override server port from configuration")
	cmd.Flags().DurationVar(&upstreamTimeout, "upstream-timeout", 0, "overall timeout for upstream requests, 0 disables it")
	return cmd
}
