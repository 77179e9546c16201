package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zulandar/lectern/internal/store"
)

func newChannelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Channel management commands",
	}

	cmd.AddCommand(newChannelAddCmd())
	cmd.AddCommand(newChannelListCmd())
	return cmd
}

func newChannelAddCmd() *cobra.Command {
	var in store.ChannelInput

	cmd := &cobra.Command{
		Use:   "add <channel-id>",
		Short: "Register a channel",
		Long:  "Registers a channel by its external id. Adding a known channel refreshes its metadata.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.ChannelID = args[0]
			return runChannelAdd(cmd, in)
		},
	}

	cmd.Flags().StringVar(&in.Name, "name", "", "display name (defaults to the id)")
	cmd.Flags().StringVar(&in.URL, "url", "", "channel URL")
	cmd.Flags().StringVar(&in.Description, "description", "", "channel description")
	cmd.Flags().IntVar(&in.SubscriberCount, "subscribers", 0, "subscriber count")
	return cmd
}

func runChannelAdd(cmd *cobra.Command, in store.ChannelInput) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ch, err := store.UpsertChannel(a.db.WithContext(cmd.Context()), in)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Channel %s (%s) registered as #%d\n", ch.Name, ch.ChannelID, ch.ID)
	return nil
}

func newChannelListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List channels",
		Long:  "Lists channels with their video counts and ingestion progress.",
		RunE:  runChannelList,
	}
}

func runChannelList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	channels, err := store.ListChannels(a.db.WithContext(cmd.Context()))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(channels) == 0 {
		fmt.Fprintln(out, "No channels registered.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCHANNEL\tNAME\tVIDEOS\tANALYZED")
	for _, c := range channels {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\n", c.ID, c.ChannelID, truncate(c.Name, 40), c.Videos, c.Analyzed)
	}
	return w.Flush()
}
