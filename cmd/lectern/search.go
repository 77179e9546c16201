package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/store"
)

func newSearchCmd() *cobra.Command {
	var (
		kind      string
		entryType string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over knowledge, transcripts or videos",
		Long:  "Searches the knowledge base. Any query word may match; results are ranked by relevance.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), kind, entryType, limit)
		},
	}

	cmd.Flags().StringVar(&kind, "in", "knowledge", "what to search: knowledge, transcripts or videos")
	cmd.Flags().StringVar(&entryType, "type", "", "knowledge entry type ("+strings.Join(models.EntryTypes, ", ")+")")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum results")
	return cmd
}

func runSearch(cmd *cobra.Command, query, kind, entryType string, limit int) error {
	if entryType != "" && !models.ValidEntryType(entryType) {
		return fmt.Errorf("unknown entry type %q", entryType)
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	gdb := a.db.WithContext(cmd.Context())
	out := cmd.OutOrStdout()

	switch kind {
	case "knowledge":
		res, err := store.SearchKnowledge(gdb, query, store.KnowledgeFilters{EntryType: entryType, Limit: limit})
		if err != nil {
			return err
		}
		if len(res) == 0 {
			fmt.Fprintln(out, "No results.")
			return nil
		}
		for i, r := range res {
			e := r.Entry
			fmt.Fprintf(out, "%d. [%s] %s (%.0f%%)\n", i+1, e.EntryType, e.Title, e.Confidence*100)
			fmt.Fprintf(out, "   %s\n", truncate(e.Content, 200))
			at := ""
			if e.SourceStartTime != nil {
				at = " @ " + formatTimestamp(*e.SourceStartTime)
			}
			fmt.Fprintf(out, "   %s / %s%s  %s\n\n", r.Video.ChannelName, truncate(r.Video.Title, 60), at, watchURL(r.Video.VideoID, e.SourceStartTime))
		}
	case "transcripts":
		res, err := store.SearchTranscripts(gdb, query, limit)
		if err != nil {
			return err
		}
		if len(res) == 0 {
			fmt.Fprintln(out, "No results.")
			return nil
		}
		for i, r := range res {
			fmt.Fprintf(out, "%d. %s / %s\n   %s\n\n", i+1, r.Video.ChannelName, r.Video.Title, r.Snippet)
		}
	case "videos":
		res, err := store.SearchVideos(gdb, query, limit)
		if err != nil {
			return err
		}
		if len(res) == 0 {
			fmt.Fprintln(out, "No results.")
			return nil
		}
		for i, r := range res {
			fmt.Fprintf(out, "%d. %s [%s] %s  %s\n", i+1, r.Video.Title, r.Video.IngestionStatus, r.ChannelName, watchURL(r.Video.VideoID, nil))
		}
	default:
		return fmt.Errorf("--in must be knowledge, transcripts or videos, got %q", kind)
	}
	return nil
}
