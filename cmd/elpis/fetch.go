package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Polymerase3/elpis-v2/internal/models"
	"github.com/Polymerase3/elpis-v2/internal/saxo"
)

var (
	fetchUIC       int64
	fetchAssetType string
	fetchInterval  string
	fetchFrom      string
	fetchTo        string
	fetchDryRun    bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Pull data from the venue REST API into the database",
}

func init() {
	fetchBarsCmd.Flags().Int64Var(&fetchUIC, "uic", 0, "Venue instrument code")
	fetchBarsCmd.Flags().StringVar(&fetchAssetType, "asset-type", "", "Asset type (FxSpot, Stock, ...)")
	fetchBarsCmd.Flags().StringVar(&fetchInterval, "interval", "1h", "Bar interval (1m, 5m, 10m, 15m, 30m, 1h, 1d, 1mo)")
	fetchBarsCmd.Flags().StringVar(&fetchFrom, "from", "", "Range start (RFC3339 or YYYY-MM-DD)")
	fetchBarsCmd.Flags().StringVar(&fetchTo, "to", "", "Range end, defaults to now")
	fetchBarsCmd.Flags().BoolVar(&fetchDryRun, "dry-run", false, "Fetch and report without writing")

	fetchInstrumentsCmd.Flags().StringVar(&fetchAssetType, "asset-type", "", "Restrict the search to one asset type")

	fetchCmd.AddCommand(fetchBarsCmd, fetchInstrumentsCmd)
}

var fetchBarsCmd = &cobra.Command{
	Use:   "bars",
	Short: "Backfill price bars for a registered instrument",
	Long: `Fetch historical chart data from the venue and upsert it. The instrument
must already exist; register it first with "elpis fetch instruments".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		assetType, err := parseAssetType(fetchAssetType)
		if err != nil {
			return err
		}
		interval, err := parseInterval(fetchInterval)
		if err != nil {
			return err
		}
		start, err := parseTimeFlag(fetchFrom, "--from")
		if err != nil {
			return err
		}
		var end time.Time
		if fetchTo != "" {
			if end, err = parseTimeFlag(fetchTo, "--to"); err != nil {
				return err
			}
		}

		ctx := context.Background()
		if err := connectDatabase(ctx); err != nil {
			return err
		}
		defer closeDatabase()

		instrument, err := repos.Instrument.GetByKey(ctx, fetchUIC, assetType)
		if err != nil {
			return fmt.Errorf("instrument uic=%d asset_type=%s is not registered: %w", fetchUIC, assetType, err)
		}

		client := saxo.NewClient(&cfg.Saxo, appLog)
		defer client.Close()

		bars, err := client.GetChartData(ctx, saxo.ChartRequest{
			InstrumentID: instrument.ID,
			UIC:          instrument.UIC,
			AssetType:    instrument.AssetType,
			Interval:     interval,
			From:         start,
			To:           end,
		})
		if err != nil {
			return fmt.Errorf("chart fetch failed: %w", err)
		}
		if len(bars) == 0 {
			fmt.Println("Venue returned no bars for the window")
			return nil
		}
		if fetchDryRun {
			fmt.Printf("✓ Fetched %d bars for %s (dry run, nothing written)\n", len(bars), instrument.Symbol)
			return nil
		}

		batch := make([]*models.PriceBar, len(bars))
		for i := range bars {
			batch[i] = &bars[i]
		}

		report, err := engine.IngestPrices(ctx, batch)
		if err != nil {
			return err
		}

		printReport(instrument.Symbol, report)
		return nil
	},
}

var fetchInstrumentsCmd = &cobra.Command{
	Use:   "instruments QUERY",
	Short: "Search the venue for instruments and register the matches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var assetTypes []models.AssetType
		if fetchAssetType != "" {
			assetType, err := parseAssetType(fetchAssetType)
			if err != nil {
				return err
			}
			assetTypes = append(assetTypes, assetType)
		}

		ctx := context.Background()
		if err := connectDatabase(ctx); err != nil {
			return err
		}
		defer closeDatabase()

		client := saxo.NewClient(&cfg.Saxo, appLog)
		defer client.Close()

		matches, err := client.SearchInstruments(ctx, args[0], assetTypes...)
		if err != nil {
			return fmt.Errorf("venue search failed: %w", err)
		}
		if len(matches) == 0 {
			fmt.Println("No venue instruments matched")
			return nil
		}

		batch := make([]*models.Instrument, len(matches))
		for i := range matches {
			batch[i] = &matches[i]
			printInstrument(&matches[i])
		}

		report, err := engine.IngestInstruments(ctx, batch)
		if err != nil {
			return err
		}

		printReport("venue search", report)
		return nil
	},
}
