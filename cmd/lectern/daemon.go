package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/zulandar/lectern/internal/daemon"
	"github.com/zulandar/lectern/internal/dashboard"
)

func newDaemonCmd() *cobra.Command {
	var (
		noDashboard bool
		once        string
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run ingestion, bias scans and the optimizer on a schedule",
		Long: `Runs the jobs configured under schedule: with cron expressions, posts
summaries to the configured chat targets and serves the dashboard. Use
--once <job> to run a single job now and exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, noDashboard, once)
		},
	}

	cmd.Flags().BoolVar(&noDashboard, "no-dashboard", false, "do not serve the dashboard")
	cmd.Flags().StringVar(&once, "once", "", "run one job (ingest, bias_scan, optimize) and exit")
	return cmd
}

func runDaemon(cmd *cobra.Command, noDashboard bool, once string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	r, err := a.runner()
	if err != nil {
		return err
	}
	s, err := a.scanner(false)
	if err != nil {
		return err
	}
	opts := daemon.Options{
		Schedule:  a.cfg.Schedule,
		Ingester:  r,
		Scanner:   s,
		Optimizer: a.optimizer(),
		Queue:     a.optimizationQueue(),
		Notifier:  a.notifier(),
		Logger:    a.log,
	}
	if !noDashboard && once == "" {
		opts.Dashboard = func(ctx context.Context) error {
			return dashboard.Start(ctx, dashboard.StartOpts{
				DB:      a.db,
				Queue:   a.optimizationQueue(),
				Metrics: a.metrics,
				Port:    a.cfg.Dashboard.Port,
				Out:     cmd.OutOrStdout(),
				Logger:  a.log,
			})
		}
	}

	d, err := daemon.New(opts)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if once != "" {
		if !slices.Contains(d.Jobs(), once) {
			return fmt.Errorf("job %q is not scheduled (have %v)", once, d.Jobs())
		}
		d.RunJob(ctx, once)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Daemon running jobs %v\n", d.Jobs())
	return d.Run(ctx)
}
