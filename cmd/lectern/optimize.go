package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/notify"
	"github.com/zulandar/lectern/internal/optimize"
)

func newOptimizeCmd() *cobra.Command {
	var (
		autoOnly        bool
		suggestionsOnly bool
		sendNotify      bool
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run the knowledge optimizer",
		Long: `Finds corrective actions and queues them. Tag merges and corroboration
rescoring are auto items and apply immediately. Re-ingest and delete
proposals wait for approval in 'lectern queue'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if autoOnly && suggestionsOnly {
				return fmt.Errorf("--auto-only and --suggestions-only are mutually exclusive")
			}
			return runOptimize(cmd, autoOnly, suggestionsOnly, sendNotify)
		},
	}

	cmd.Flags().BoolVar(&autoOnly, "auto-only", false, "only run auto-tier actions")
	cmd.Flags().BoolVar(&suggestionsOnly, "suggestions-only", false, "only queue suggestions")
	cmd.Flags().BoolVar(&sendNotify, "notify", false, "post a summary to the configured chat targets")
	return cmd
}

func runOptimize(cmd *cobra.Command, autoOnly, suggestionsOnly, sendNotify bool) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	o := a.optimizer()
	var rep optimize.Report
	switch {
	case autoOnly:
		rep, err = o.RunAuto(ctx)
	case suggestionsOnly:
		rep, err = o.RunSuggestions(ctx)
	default:
		rep, err = o.Run(ctx)
	}

	out := cmd.OutOrStdout()
	if !suggestionsOnly {
		fmt.Fprintf(out, "Auto: %d tag merges, %d categorized, %d tagged, %d entries rescored, %d failed\n",
			rep.TagMerges, rep.Categorized, rep.Tagged, rep.Rescored, rep.Failed)
	}
	if !autoOnly {
		fmt.Fprintf(out, "Suggestions queued: %d\n", rep.Suggestions)
	}
	if err != nil {
		return err
	}

	pending, err := a.optimizationQueue().List(ctx, models.QueueStatusPending)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Awaiting approval: %d\n", len(pending))
	if sendNotify {
		a.notify(ctx, notify.FormatOptimize(rep, len(pending)))
	}
	return nil
}
