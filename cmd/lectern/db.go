package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zulandar/lectern/internal/db"
	"github.com/zulandar/lectern/internal/store"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the lectern database",
		Long:  "Creates the database if needed, migrates all tables and search indexes, and seeds the configured categories. Safe to run repeatedly.",
		RunE:  runDBInit,
	}
}

func runDBInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	gormDB, err := db.Init(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)

	switch cfg.Database.Driver {
	case "mysql":
		fmt.Fprintf(out, "Database %s ready on %s:%d\n", cfg.Database.Name, cfg.Database.Host, cfg.Database.Port)
	default:
		fmt.Fprintf(out, "Database ready at %s\n", cfg.Database.Path)
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	n, err := store.SeedCategories(gormDB, cfg.Categories)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d new categories (%d configured)\n", n, len(cfg.Categories))
	fmt.Fprintln(out, "\nLectern database initialized successfully.")
	return nil
}
