package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Polymerase3/elpis-v2/internal/metrics"
)

var migrationsDir string

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database schema and storage maintenance",
}

func init() {
	dbInitCmd.Flags().StringVar(&migrationsDir, "migrations", "migrations", "Directory containing migration scripts")

	dbCmd.AddCommand(dbInitCmd, dbSizeCmd, dbPingCmd)
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Apply pending migrations and seed the interval table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if err := connectDatabase(ctx); err != nil {
			return err
		}
		defer closeDatabase()

		applied, err := db.ApplyMigrations(ctx, migrationsDir)
		if err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}

		if err := repos.Interval.Seed(ctx); err != nil {
			return fmt.Errorf("failed to seed interval codes: %w", err)
		}

		fmt.Printf("✓ Applied %d migration(s), interval codes seeded\n", applied)
		return nil
	},
}

var dbSizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Report hypertable sizes and row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if err := connectDatabase(ctx); err != nil {
			return err
		}
		defer closeDatabase()

		sizes, err := repos.Stats.HypertableSizes(ctx)
		if err != nil {
			return err
		}
		for _, size := range sizes {
			metrics.UpdateHypertableBytes(size.Name, size.TotalBytes)
			fmt.Printf("%s.%s  %s\n", size.Schema, size.Name, fmtBytes(size.TotalBytes))
		}

		counts, err := repos.Stats.RowCounts(ctx)
		if err != nil {
			return err
		}
		for _, table := range []string{"instrument", "price", "strategy", "analysis", "parameter", "result"} {
			if count, ok := counts[table]; ok {
				fmt.Printf("market.%-12s %d rows\n", table, count)
			}
		}
		return nil
	},
}

var dbPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check database connectivity and extension health",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if err := connectDatabase(ctx); err != nil {
			return err
		}
		defer closeDatabase()

		if err := db.HealthCheck(ctx); err != nil {
			fmt.Printf("❌ Database unhealthy: %v\n", err)
			return err
		}

		fmt.Println("✓ Database is healthy")
		return nil
	},
}

func fmtBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for n/div >= unit && exp < 4 {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTP"[exp])
}
