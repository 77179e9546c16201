package main

import (
	"github.com/spf13/cobra"

	"github.com/zulandar/lectern/internal/dashboard"
)

func newDashboardCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Serve the JSON API and metrics",
		Long:  "Serves pipeline status, search, bias and queue endpoints plus /metrics until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if !cmd.Flags().Changed("port") {
				port = a.cfg.Dashboard.Port
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return dashboard.Start(ctx, dashboard.StartOpts{
				DB:      a.db,
				Queue:   a.optimizationQueue(),
				Metrics: a.metrics,
				Port:    port,
				Out:     cmd.OutOrStdout(),
				Logger:  a.log,
			})
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "listen port (defaults to dashboard.port)")
	return cmd
}
