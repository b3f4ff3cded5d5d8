package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Polymerase3/elpis-v2/internal/scheduler"
)

var watchOnce bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Scan the spool directories and ingest dropped batch files",
	Long: `Run the cron-driven spool scanner in the foreground. Files land in
<spool_dir>/{prices,instruments,strategies,analyses}/ and move to the
processed or failed tree after ingestion.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if err := connectDatabase(ctx); err != nil {
			return err
		}
		defer closeDatabase()

		spool := scheduler.NewScheduler(engine, &cfg.Ingest, appLog)

		if watchOnce {
			if err := spool.ScanOnce(ctx); err != nil {
				return err
			}
			printScanStats(spool.Stats())
			return nil
		}

		if err := spool.Start(); err != nil {
			return err
		}
		fmt.Printf("Watching %s on schedule %q, Ctrl-C to stop\n", cfg.Ingest.SpoolDir, cfg.Ingest.Schedule)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		if err := spool.Stop(); err != nil {
			appLog.WithError(err).Error("Scheduler shutdown failed")
		}
		printScanStats(spool.Stats())
		return nil
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "Scan once and exit instead of running on the cron schedule")
}

func printScanStats(stats scheduler.Stats) {
	fmt.Printf("✓ %d files processed, %d quarantined, %d records written, %d deferred\n",
		stats.FilesProcessed, stats.FilesQuarantined, stats.RecordsWritten, stats.ScanErrors)
}
