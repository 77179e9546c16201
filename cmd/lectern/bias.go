package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/zulandar/lectern/internal/bias"
	"github.com/zulandar/lectern/internal/notify"
)

func newBiasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bias",
		Short: "Commercial bias detection commands",
	}

	cmd.AddCommand(newBiasScanCmd())
	cmd.AddCommand(newBiasReportCmd())
	return cmd
}

func newBiasScanCmd() *cobra.Command {
	var (
		all            bool
		limit          int
		heuristicsOnly bool
		entryID        uint
		sendNotify     bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan knowledge entries for commercial bias",
		Long: `Screens entries with brand and promotion heuristics and sends the suspicious
ones to the model in batches. If the model is unavailable the heuristic
findings are stored instead. Flags are only ever added.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBiasScan(cmd, bias.ScanOptions{All: all, Limit: limit}, heuristicsOnly, entryID, sendNotify)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "rescan entries that already carry flags")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entries to scan (0 = all)")
	cmd.Flags().BoolVar(&heuristicsOnly, "heuristics-only", false, "do not call the model")
	cmd.Flags().UintVar(&entryID, "entry", 0, "scan a single knowledge entry")
	cmd.Flags().BoolVar(&sendNotify, "notify", false, "post a summary to the configured chat targets")
	return cmd
}

func runBiasScan(cmd *cobra.Command, opts bias.ScanOptions, heuristicsOnly bool, entryID uint, sendNotify bool) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	out := cmd.OutOrStdout()

	s, err := a.scanner(heuristicsOnly)
	if err != nil {
		return err
	}

	if entryID != 0 {
		res, err := s.Scan(ctx, entryID)
		if err != nil {
			return err
		}
		if len(res.Flags) == 0 {
			fmt.Fprintf(out, "Entry %d: no bias detected\n", entryID)
			return nil
		}
		for _, f := range res.Flags {
			fmt.Fprintf(out, "Entry %d: %s (%s) %s\n", entryID, f.BiasType, f.Severity, f.Notes)
		}
		return nil
	}

	rep, err := s.ScanAll(ctx, opts)
	fmt.Fprintf(out, "Scanned %d entries: %d suspicious, %d flags stored, %d review items queued\n",
		rep.Scanned, rep.Suspicious, rep.Flagged, rep.Reviews)
	if rep.Fallbacks > 0 {
		fmt.Fprintf(out, "Model unavailable for %d batches; heuristic findings stored\n", rep.Fallbacks)
	}
	if sendNotify && (rep.Flagged > 0 || rep.Fallbacks > 0) {
		a.notify(ctx, notify.FormatBiasScan(rep))
	}
	return err
}

func newBiasReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Summarize stored bias flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			sum, err := bias.Summary(a.db.WithContext(cmd.Context()))
			if err != nil {
				return err
			}
			printBiasSummary(cmd.OutOrStdout(), sum)
			return nil
		},
	}
}

func printBiasSummary(out io.Writer, s *bias.FlagSummary) {
	fmt.Fprintf(out, "Flags:            %d\n", s.TotalFlags)
	fmt.Fprintf(out, "Flagged entries:  %d\n", s.FlaggedEntries)
	fmt.Fprintf(out, "Unreviewed:       %d\n", s.Unreviewed)
	for _, g := range []struct {
		title  string
		counts map[string]int64
	}{
		{"By type", s.ByType},
		{"By severity", s.BySeverity},
		{"By detector", s.ByDetector},
	} {
		if len(g.counts) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n%s:\n", g.title)
		keys := make([]string, 0, len(g.counts))
		for k := range g.counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %-20s %d\n", k, g.counts[k])
		}
	}
}
