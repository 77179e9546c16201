package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/optimize"
)

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Optimization queue commands",
		Long:  "Lists, approves and rejects queued corrective actions. Auto items run when queued; suggestion and destructive items wait here for an operator.",
	}

	cmd.AddCommand(newQueueListCmd())
	cmd.AddCommand(newQueueApproveCmd())
	cmd.AddCommand(newQueueRejectCmd())
	cmd.AddCommand(newQueueProposeCmd())
	cmd.AddCommand(newQueueExecuteApprovedCmd())
	return cmd
}

func newQueueListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueList(cmd, status)
		},
	}

	cmd.Flags().StringVar(&status, "status", models.QueueStatusPending, "filter by status (empty for all)")
	return cmd
}

func runQueueList(cmd *cobra.Command, status string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	items, err := a.optimizationQueue().List(cmd.Context(), status)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "Queue is empty.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tACTION\tTIER\tTARGET\tSTATUS\tDESCRIPTION")
	for _, it := range items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s %d\t%s\t%s\n",
			it.ID, it.ActionType, it.Severity, it.TargetType, it.TargetID, it.Status, truncate(it.Description, 70))
	}
	w.Flush()
	return nil
}

func newQueueApproveCmd() *cobra.Command {
	var by string

	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending item and apply it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueResolve(cmd, args[0], true, by)
		},
	}

	cmd.Flags().StringVar(&by, "by", "", "approver name (defaults to $USER)")
	return cmd
}

func newQueueRejectCmd() *cobra.Command {
	var by string

	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueResolve(cmd, args[0], false, by)
		},
	}

	cmd.Flags().StringVar(&by, "by", "", "rejecter name (defaults to $USER)")
	return cmd
}

func runQueueResolve(cmd *cobra.Command, arg string, approve bool, by string) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	q := a.optimizationQueue()
	var item *models.OptimizationQueueItem
	if approve {
		item, err = q.Approve(cmd.Context(), id, operator(by))
	} else {
		item, err = q.Reject(cmd.Context(), id, operator(by))
	}
	if err != nil {
		return err
	}
	printResolved(cmd.OutOrStdout(), item)
	return nil
}

// printResolved reports the terminal state of an item after approval or
// rejection.
func printResolved(out io.Writer, item *models.OptimizationQueueItem) {
	switch item.Status {
	case models.QueueStatusExecuted:
		fmt.Fprintf(out, "Item #%d executed: %s\n", item.ID, item.Description)
	case models.QueueStatusFailed:
		fmt.Fprintf(out, "Item #%d failed: %s\n", item.ID, item.Error)
	default:
		fmt.Fprintf(out, "Item #%d %s by %s\n", item.ID, item.Status, dash(item.ResolvedBy))
	}
}

func newQueueProposeCmd() *cobra.Command {
	var (
		p          optimize.Proposal
		tier       string
		confidence float64
		remove     []uint
	)

	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Queue a corrective action by hand",
		Long: `Queues an action against a target id. Without --tier the action's default
tier applies. Auto items run immediately; others wait for approval.

Actions: ` + strings.Join(optimize.Actions(), ", "),
		RunE: func(cmd *cobra.Command, args []string) error {
			p.Tier = optimize.Tier(tier)
			p.Details.RemoveIDs = remove
			if cmd.Flags().Changed("confidence") {
				p.Details.Confidence = &confidence
			}
			if p.Description == "" {
				p.Description = fmt.Sprintf("%s %d (operator)", p.Action, p.TargetID)
			}
			return runQueuePropose(cmd, p)
		},
	}

	cmd.Flags().StringVar(&p.Action, "action", "", "action type (required)")
	cmd.Flags().UintVar(&p.TargetID, "target", 0, "target id (required)")
	cmd.Flags().StringVar(&tier, "tier", "", "auto, suggestion or destructive")
	cmd.Flags().StringVar(&p.Description, "description", "", "what the item does")
	cmd.Flags().StringVar(&p.Details.EntryType, "entry-type", "", "new entry type for reclassify_entry")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "new confidence for update_confidence")
	cmd.Flags().UintVar(&p.Details.DropID, "drop", 0, "entry merged away by merge_entries")
	cmd.Flags().UintSliceVar(&remove, "remove", nil, "tag ids folded in by merge_tags")
	cmd.Flags().StringVar(&p.Details.Reason, "reason", "", "reason for mark_skipped")
	cmd.Flags().StringVar(&p.Details.Note, "note", "", "free-form note")
	cmd.MarkFlagRequired("action")
	cmd.MarkFlagRequired("target")
	return cmd
}

func runQueuePropose(cmd *cobra.Command, p optimize.Proposal) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	item, err := a.optimizationQueue().Enqueue(cmd.Context(), p)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if item.Status == models.QueueStatusPending {
		fmt.Fprintf(out, "Queued item #%d (%s, %s)\n", item.ID, item.ActionType, item.Severity)
		return nil
	}
	printResolved(out, item)
	return nil
}

func newQueueExecuteApprovedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "execute-approved",
		Short: "Run items left approved but not executed",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			items, err := a.optimizationQueue().ExecuteApproved(cmd.Context())
			out := cmd.OutOrStdout()
			for i := range items {
				printResolved(out, &items[i])
			}
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "Nothing to execute.")
			}
			return nil
		},
	}
}
