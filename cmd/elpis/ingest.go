package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Polymerase3/elpis-v2/internal/service"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest JSON batches into the market schema",
	Long:  `Read one or more JSON batch files and write them to the database. Pass "-" to read a single batch from stdin.`,
}

func init() {
	ingestCmd.AddCommand(ingestPricesCmd, ingestInstrumentsCmd, ingestStrategiesCmd, ingestAnalysesCmd)
}

var ingestPricesCmd = &cobra.Command{
	Use:   "prices FILE...",
	Short: "Upsert price bars",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(args, func(ctx context.Context, data []byte) (*service.BatchReport, error) {
			bars, err := service.DecodePriceBatch(data)
			if err != nil {
				return nil, err
			}
			return engine.IngestPrices(ctx, bars)
		})
	},
}

var ingestInstrumentsCmd = &cobra.Command{
	Use:   "instruments FILE...",
	Short: "Insert instrument reference data",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(args, func(ctx context.Context, data []byte) (*service.BatchReport, error) {
			instruments, err := service.DecodeInstrumentBatch(data)
			if err != nil {
				return nil, err
			}
			return engine.IngestInstruments(ctx, instruments)
		})
	},
}

var ingestStrategiesCmd = &cobra.Command{
	Use:   "strategies FILE...",
	Short: "Insert strategy reference data",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(args, func(ctx context.Context, data []byte) (*service.BatchReport, error) {
			strategies, err := service.DecodeStrategyBatch(data)
			if err != nil {
				return nil, err
			}
			return engine.IngestStrategies(ctx, strategies)
		})
	},
}

var ingestAnalysesCmd = &cobra.Command{
	Use:   "analyses FILE...",
	Short: "Insert backtest analyses with parameters and results",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(args, func(ctx context.Context, data []byte) (*service.BatchReport, error) {
			analyses, err := service.DecodeAnalysisBatch(data)
			if err != nil {
				return nil, err
			}
			return engine.IngestAnalyses(ctx, analyses)
		})
	},
}

func runIngest(paths []string, ingest func(context.Context, []byte) (*service.BatchReport, error)) error {
	ctx := context.Background()
	if err := connectDatabase(ctx); err != nil {
		return err
	}
	defer closeDatabase()

	for _, path := range paths {
		data, err := readBatchFile(path)
		if err != nil {
			return err
		}

		report, err := ingest(ctx, data)
		if err != nil {
			return fmt.Errorf("%s: %w", displayName(path), err)
		}

		printReport(displayName(path), report)
	}

	return nil
}

func readBatchFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func displayName(path string) string {
	if path == "-" {
		return "stdin"
	}
	return path
}

func printReport(source string, report *service.BatchReport) {
	fmt.Printf("✓ %s: received %d, written %d, skipped %d in %s (batch %s)\n",
		source, report.Received, report.Written, report.Skipped,
		report.Duration.Round(time.Millisecond), report.BatchID)
}
