package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zulandar/lectern/internal/ingest"
	"github.com/zulandar/lectern/internal/notify"
	"github.com/zulandar/lectern/internal/store"
)

func newIngestCmd() *cobra.Command {
	var (
		channelID  string
		videoRef   string
		limit      int
		sendNotify bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch transcripts and extract knowledge for pending videos",
		Long: `Moves pending videos through the ingestion pipeline: fetch transcript,
then analyze each chunk. Videos left at transcript_fetched by an interrupted
run are resumed. Use --video to process a single video.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, channelID, videoRef, limit, sendNotify)
		},
	}

	cmd.Flags().StringVar(&channelID, "channel", "", "only videos of this external channel id")
	cmd.Flags().StringVar(&videoRef, "video", "", "process a single video")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum videos to process (0 = all)")
	cmd.Flags().BoolVar(&sendNotify, "notify", false, "post a summary to the configured chat targets")
	return cmd
}

func runIngest(cmd *cobra.Command, channelID, videoRef string, limit int, sendNotify bool) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	out := cmd.OutOrStdout()

	if videoRef != "" {
		v, err := resolveVideo(a.db.WithContext(ctx), videoRef)
		if err != nil {
			return err
		}
		m, err := a.machine()
		if err != nil {
			return err
		}
		v, err = m.Process(ctx, v.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Video %s: %s\n", v.VideoID, v.IngestionStatus)
		if v.FailureReason != "" {
			fmt.Fprintf(out, "Reason: %s\n", v.FailureReason)
		}
		return nil
	}

	var chID uint
	if channelID != "" {
		ch, err := store.GetChannel(a.db.WithContext(ctx), channelID)
		if err != nil {
			return err
		}
		chID = ch.ID
	}
	r, err := a.runner()
	if err != nil {
		return err
	}
	sum, err := r.RunPending(ctx, chID, limit)
	printIngestSummary(cmd, sum)
	if sendNotify && sum.Processed > 0 {
		a.notify(ctx, notify.FormatIngest(sum))
	}
	return err
}

func printIngestSummary(cmd *cobra.Command, s ingest.Summary) {
	out := cmd.OutOrStdout()
	if s.Processed == 0 {
		fmt.Fprintln(out, "No pending videos.")
		return
	}
	fmt.Fprintf(out, "Processed %d videos: %d analyzed, %d failed, %d skipped, %d errors\n",
		s.Processed, s.Analyzed, s.Failed, s.Skipped, s.Errors)
}
