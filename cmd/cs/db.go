package main

import (
	"time"

	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore(st)

		applied, err := st.AppliedMigrations(ctx)
		if err != nil {
			return err
		}
		outputJSON(map[string]any{"db_path": cfg.DBPath, "applied": applied})
		return nil
	},
}

var dbVacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Rebuild the database file to reclaim space",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore(st)

		if err := st.Vacuum(ctx); err != nil {
			return err
		}
		outputJSON(map[string]any{"db_path": cfg.DBPath, "vacuumed": true})
		return nil
	},
}

var cachePruneDays int

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "HTTP cache maintenance",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete cached HTTP responses older than --days",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore(st)

		cutoff := time.Now().AddDate(0, 0, -cachePruneDays)
		n, err := st.PruneCache(ctx, cutoff)
		if err != nil {
			return err
		}
		outputJSON(map[string]any{"pruned": n, "days": cachePruneDays})
		return nil
	},
}

var logsPruneDays int

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Audit log maintenance",
}

var logsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete audit events older than --days",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore(st)

		cutoff := time.Now().AddDate(0, 0, -logsPruneDays)
		n, err := st.PruneAudit(ctx, cutoff)
		if err != nil {
			return err
		}
		outputJSON(map[string]any{"pruned": n, "days": logsPruneDays})
		return nil
	},
}

func init() {
	cachePruneCmd.Flags().IntVar(&cachePruneDays, "days", 30, "age cutoff in days")
	logsPruneCmd.Flags().IntVar(&logsPruneDays, "days", 90, "age cutoff in days")

	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbVacuumCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	logsCmd.AddCommand(logsPruneCmd)

	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(logsCmd)
}
