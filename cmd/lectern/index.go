package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/zulandar/lectern/internal/db"
	"github.com/zulandar/lectern/internal/searchindex"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Full-text index maintenance",
	}

	cmd.AddCommand(newIndexRebuildCmd())
	cmd.AddCommand(newIndexCheckCmd())
	return cmd
}

func newIndexRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild every search index from its source table",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			for _, e := range searchindex.Entities {
				var n int
				err := db.Transaction(cmd.Context(), a.db, func(tx *gorm.DB) error {
					var err error
					n, err = searchindex.Rebuild(tx, e)
					return err
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Rebuilt %s index: %d rows\n", e, n)
			}
			return nil
		},
	}
}

func newIndexCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Compare each search index with its source table",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			gdb := a.db.WithContext(cmd.Context())
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tMISSING\tORPHANED\tSTALE")
			dirty := false
			for _, e := range searchindex.Entities {
				d, err := searchindex.Check(gdb, e)
				if err != nil {
					return err
				}
				dirty = dirty || !d.Clean()
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", e, d.Missing, d.Orphaned, d.Stale)
			}
			w.Flush()
			if dirty {
				return fmt.Errorf("search index drift detected; run 'lectern index rebuild'")
			}
			return nil
		},
	}
}
