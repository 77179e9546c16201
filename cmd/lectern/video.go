package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/optimize"
	"github.com/zulandar/lectern/internal/proclog"
	"github.com/zulandar/lectern/internal/store"
)

func newVideoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "video",
		Short: "Video management commands",
	}

	cmd.AddCommand(newVideoAddCmd())
	cmd.AddCommand(newVideoImportCmd())
	cmd.AddCommand(newVideoListCmd())
	cmd.AddCommand(newVideoShowCmd())
	cmd.AddCommand(newVideoSkipCmd())
	cmd.AddCommand(newVideoReingestCmd())
	return cmd
}

func newVideoAddCmd() *cobra.Command {
	var (
		channelID string
		published string
		in        store.VideoInput
	)

	cmd := &cobra.Command{
		Use:   "add <video-id>",
		Short: "Register a video for ingestion",
		Long:  "Registers a single video under a known channel. The video starts pending.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.VideoID = args[0]
			t, err := parsePublished(published)
			if err != nil {
				return err
			}
			in.PublishedAt = t
			if in.Title == "" {
				in.Title = in.VideoID
			}
			return runVideoAdd(cmd, channelID, in)
		},
	}

	cmd.Flags().StringVar(&channelID, "channel", "", "external channel id (required)")
	cmd.Flags().StringVar(&in.Title, "title", "", "video title")
	cmd.Flags().StringVar(&in.Description, "description", "", "video description")
	cmd.Flags().StringVar(&published, "published", "", "publish date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&in.DurationSeconds, "duration", 0, "duration in seconds")
	cmd.MarkFlagRequired("channel")
	return cmd
}

func runVideoAdd(cmd *cobra.Command, channelID string, in store.VideoInput) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	gdb := a.db.WithContext(cmd.Context())
	ch, err := store.GetChannel(gdb, channelID)
	if err != nil {
		return fmt.Errorf("channel %s: %w (register it with 'lectern channel add')", channelID, err)
	}
	added, err := store.AddVideos(gdb, ch.ID, []store.VideoInput{in})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(added) == 0 {
		fmt.Fprintf(out, "Video %s is already registered\n", in.VideoID)
		return nil
	}
	fmt.Fprintf(out, "Added video %s as #%d (pending)\n", in.VideoID, added[0].ID)
	return nil
}

func newVideoImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <manifest>",
		Short: "Import a channel and its videos from a YAML or JSON manifest",
		Long:  "Registers (or refreshes) the manifest's channel and adds every video not already known. Known videos are left untouched.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVideoImport(cmd, args[0])
		},
	}
}

func runVideoImport(cmd *cobra.Command, path string) error {
	m, err := loadManifest(path)
	if err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	var added []models.Video
	var ch *models.Channel
	err = a.db.WithContext(cmd.Context()).Transaction(func(tx *gorm.DB) error {
		var err error
		if ch, err = store.UpsertChannel(tx, m.channelInput()); err != nil {
			return err
		}
		added, err = store.AddVideos(tx, ch.ID, m.videoInputs())
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Channel %s: %d new videos, %d already known\n",
		ch.Name, len(added), len(m.Videos)-len(added))
	return nil
}

func newVideoListCmd() *cobra.Command {
	var (
		status    string
		channelID string
		limit     int
		tokens    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List videos",
		Long:  "Lists videos, newest first, with optional filters. Output is formatted as a table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVideoList(cmd, status, channelID, limit, tokens)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by ingestion status")
	cmd.Flags().StringVar(&channelID, "channel", "", "filter by external channel id")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	cmd.Flags().BoolVar(&tokens, "tokens", false, "show token usage column")
	return cmd
}

func runVideoList(cmd *cobra.Command, status, channelID string, limit int, showTokens bool) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	gdb := a.db.WithContext(cmd.Context())
	f := store.VideoFilters{Status: status, Limit: limit}
	if channelID != "" {
		ch, err := store.GetChannel(gdb, channelID)
		if err != nil {
			return err
		}
		f.ChannelID = ch.ID
	}
	videos, err := store.ListVideos(gdb, f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(videos) == 0 {
		fmt.Fprintln(out, "No videos found.")
		return nil
	}

	var tokenMap map[uint]proclog.TokenSummary
	if showTokens {
		ids := make([]uint, len(videos))
		for i, v := range videos {
			ids[i] = v.ID
		}
		if tokenMap, err = proclog.VideoTokenMap(gdb, ids); err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if showTokens {
		fmt.Fprintln(w, "ID\tVIDEO\tTITLE\tSTATUS\tTOKENS")
	} else {
		fmt.Fprintln(w, "ID\tVIDEO\tTITLE\tSTATUS")
	}
	for _, v := range videos {
		if showTokens {
			t := "-"
			if ts, ok := tokenMap[v.ID]; ok && ts.TotalTokens > 0 {
				t = formatTokenCount(ts.TotalTokens)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", v.ID, v.VideoID, truncate(v.Title, 50), v.IngestionStatus, t)
		} else {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", v.ID, v.VideoID, truncate(v.Title, 50), v.IngestionStatus)
		}
	}
	return w.Flush()
}

// resolveVideo finds a video by external id, falling back to the numeric
// primary key.
func resolveVideo(gdb *gorm.DB, ref string) (*models.Video, error) {
	v, err := store.GetVideoByExternalID(gdb, ref)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return v, err
	}
	id, convErr := strconv.ParseUint(ref, 10, 64)
	if convErr != nil {
		return nil, err
	}
	return store.GetVideo(gdb, uint(id))
}

func newVideoShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <video>",
		Short: "Show video details and its processing history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVideoShow(cmd, args[0])
		},
	}
}

func runVideoShow(cmd *cobra.Command, ref string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	gdb := a.db.WithContext(cmd.Context())
	v, err := resolveVideo(gdb, ref)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Video #%d  %s\n", v.ID, v.VideoID)
	fmt.Fprintf(out, "Title:    %s\n", v.Title)
	fmt.Fprintf(out, "URL:      %s\n", watchURL(v.VideoID, nil))
	fmt.Fprintf(out, "Status:   %s\n", v.IngestionStatus)
	if v.FailureReason != "" {
		fmt.Fprintf(out, "Reason:   %s\n", v.FailureReason)
	}
	if v.FailedChunk != nil {
		fmt.Fprintf(out, "Chunk:    %d\n", *v.FailedChunk)
	}

	if t, err := store.GetTranscript(gdb, v.ID); err == nil {
		fmt.Fprintf(out, "Transcript: %d words (%s)\n", t.WordCount, t.LanguageCode)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	entries, err := store.ListEntries(gdb, store.EntryFilters{VideoID: v.ID})
	if err != nil {
		return err
	}
	usage, err := proclog.TokenUsage(gdb, v.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Entries:  %d\n", len(entries))
	fmt.Fprintf(out, "Tokens:   %s over %d calls\n", formatTokenCount(usage.TotalTokens), usage.Calls)

	steps, err := proclog.ForVideo(gdb, v.ID)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return nil
	}
	fmt.Fprintln(out, "\nProcessing log:")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSTEP\tCHUNK\tSTATUS\tERROR")
	for _, s := range steps {
		chunk := "-"
		if s.ChunkIndex != nil {
			chunk = strconv.Itoa(*s.ChunkIndex)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.CreatedAt.Format("2006-01-02 15:04:05"),
			s.Step, chunk, s.Status, truncate(dash(s.ErrorMessage), 60))
	}
	return w.Flush()
}

func newVideoSkipCmd() *cobra.Command {
	var (
		reason  string
		approve bool
		by      string
	)

	cmd := &cobra.Command{
		Use:   "skip <video>",
		Short: "Propose excluding a video from ingestion",
		Long:  "Queues a mark_skipped item for the video. With --approve the item is approved and applied at once.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVideoPropose(cmd, args[0], optimize.ActionMarkSkipped, optimize.Details{Reason: reason}, approve, by)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "skipped by operator", "reason recorded on the video")
	cmd.Flags().BoolVar(&approve, "approve", false, "approve and apply immediately")
	cmd.Flags().StringVar(&by, "by", "", "approver name (defaults to $USER)")
	return cmd
}

func newVideoReingestCmd() *cobra.Command {
	var (
		approve bool
		by      string
	)

	cmd := &cobra.Command{
		Use:   "reingest <video>",
		Short: "Propose re-ingesting a video from scratch",
		Long:  "Queues a re_ingest item that deletes the video's transcript and knowledge and returns it to pending. Allowed from failed, skipped and analyzed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVideoPropose(cmd, args[0], optimize.ActionReingest, optimize.Details{}, approve, by)
		},
	}

	cmd.Flags().BoolVar(&approve, "approve", false, "approve and apply immediately")
	cmd.Flags().StringVar(&by, "by", "", "approver name (defaults to $USER)")
	return cmd
}

func runVideoPropose(cmd *cobra.Command, ref, action string, details optimize.Details, approve bool, by string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	v, err := resolveVideo(a.db.WithContext(ctx), ref)
	if err != nil {
		return err
	}
	q := a.optimizationQueue()
	item, err := q.Enqueue(ctx, optimize.Proposal{
		Action:      action,
		Tier:        optimize.Suggestion,
		TargetID:    v.ID,
		Description: fmt.Sprintf("%s %q (requested by operator)", action, truncate(v.Title, 60)),
		Details:     details,
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !approve {
		fmt.Fprintf(out, "Queued item #%d (%s). Apply it with 'lectern queue approve %d'.\n", item.ID, action, item.ID)
		return nil
	}
	item, err = q.Approve(ctx, item.ID, operator(by))
	if err != nil {
		return err
	}
	printResolved(out, item)
	return nil
}
