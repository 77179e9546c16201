package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/store"
)

func newStatusCmd() *cobra.Command {
	var (
		failed bool
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pipeline status",
		Long:  "Displays video counts by ingestion status, knowledge and taxonomy totals, token usage and the approval backlog. Use --failed to list failed videos, --watch for auto-refresh.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, failed, watch)
		},
	}

	cmd.Flags().BoolVar(&failed, "failed", false, "list failed videos with their last error")
	cmd.Flags().BoolVar(&watch, "watch", false, "auto-refresh every 5 seconds")
	return cmd
}

func runStatus(cmd *cobra.Command, showFailed, watch bool) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	for {
		gdb := a.db.WithContext(ctx)
		st, err := store.GetPipelineStatus(gdb)
		if err != nil {
			return err
		}
		if watch {
			// Clear screen.
			fmt.Fprint(out, "\033[2J\033[H")
		}
		printStatus(out, st)

		if showFailed {
			failed, err := store.FailedVideos(gdb)
			if err != nil {
				return err
			}
			printFailed(out, failed)
		}

		if !watch {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(5 * time.Second):
		}
	}
}

func printStatus(out io.Writer, st *store.PipelineStatus) {
	fmt.Fprintln(out, "Lectern status")
	fmt.Fprintf(out, "  Channels:    %d\n", st.Channels)
	fmt.Fprintf(out, "  Videos:      %d\n", st.TotalVideos)
	for _, s := range models.IngestionStatuses {
		fmt.Fprintf(out, "    %-20s %d\n", s, st.VideosByStatus[s])
	}
	fmt.Fprintf(out, "  Entries:     %d\n", st.KnowledgeEntries)
	fmt.Fprintf(out, "  Categories:  %d\n", st.Categories)
	fmt.Fprintf(out, "  Tags:        %d\n", st.Tags)
	fmt.Fprintf(out, "  Bias flags:  %d\n", st.BiasFlags)
	fmt.Fprintf(out, "  Queue:       %d pending\n", st.PendingQueue)
	fmt.Fprintf(out, "  Tokens:      %s\n", formatTokenCount(st.TotalTokens))
}

func printFailed(out io.Writer, failed []store.FailedVideo) {
	fmt.Fprintln(out)
	if len(failed) == 0 {
		fmt.Fprintln(out, "No failed videos.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVIDEO\tTITLE\tSTEP\tERROR")
	for _, f := range failed {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", f.ID, f.VideoID, truncate(f.Title, 40), dash(f.LastStep), truncate(f.LastError, 60))
	}
	w.Flush()
}
