package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Polymerase3/elpis-v2/internal/models"
)

var (
	instrumentID        int64
	instrumentUIC       int64
	instrumentAssetType string
	searchLimit         int
	confirmDelete       bool
)

var instrumentCmd = &cobra.Command{
	Use:   "instrument",
	Short: "Inspect and maintain instrument reference data",
}

func init() {
	instrumentGetCmd.Flags().Int64Var(&instrumentID, "id", 0, "Instrument id")
	instrumentGetCmd.Flags().Int64Var(&instrumentUIC, "uic", 0, "Venue instrument code")
	instrumentGetCmd.Flags().StringVar(&instrumentAssetType, "asset-type", "", "Asset type (FxSpot, Stock, ...)")

	instrumentSearchCmd.Flags().IntVar(&searchLimit, "limit", 20, "Maximum number of matches")

	instrumentDeleteCmd.Flags().Int64Var(&instrumentUIC, "uic", 0, "Venue instrument code")
	instrumentDeleteCmd.Flags().StringVar(&instrumentAssetType, "asset-type", "", "Asset type (FxSpot, Stock, ...)")
	instrumentDeleteCmd.Flags().BoolVar(&confirmDelete, "yes", false, "Confirm the delete")

	instrumentCmd.AddCommand(instrumentGetCmd, instrumentSearchCmd, instrumentListCmd, instrumentDeleteCmd)
}

var instrumentGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show one instrument by id or by (uic, asset-type)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if err := connectDatabase(ctx); err != nil {
			return err
		}
		defer closeDatabase()

		instrument, err := lookupInstrument(ctx)
		if err != nil {
			return err
		}

		printInstrument(instrument)
		return nil
	},
}

var instrumentSearchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search instruments by symbol or description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if err := connectDatabase(ctx); err != nil {
			return err
		}
		defer closeDatabase()

		matches, err := repos.Instrument.Search(ctx, args[0], searchLimit)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			fmt.Println("No instruments found")
			return nil
		}

		for _, instrument := range matches {
			printInstrument(instrument)
		}
		return nil
	},
}

var instrumentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every stored instrument",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if err := connectDatabase(ctx); err != nil {
			return err
		}
		defer closeDatabase()

		instruments, err := repos.Instrument.List(ctx)
		if err != nil {
			return err
		}

		for _, instrument := range instruments {
			printInstrument(instrument)
		}
		fmt.Printf("%d instruments\n", len(instruments))
		return nil
	},
}

var instrumentDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete an instrument and all its price bars",
	Long:  `Delete one instrument by (uic, asset-type). Price bars cascade; analyses referencing the instrument block the delete.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		assetType, err := parseAssetType(instrumentAssetType)
		if err != nil {
			return err
		}
		if instrumentUIC <= 0 {
			return fmt.Errorf("--uic is required")
		}
		if !confirmDelete {
			return fmt.Errorf("refusing to delete without --yes")
		}

		ctx := context.Background()
		if err := connectDatabase(ctx); err != nil {
			return err
		}
		defer closeDatabase()

		keys := []models.InstrumentKey{{UIC: instrumentUIC, AssetType: assetType}}
		deleted, err := repos.Instrument.DeleteByKeys(ctx, keys)
		if err != nil {
			return err
		}

		auditLog.LogManualDelete("instrument", len(keys), deleted, os.Getenv("USER"))
		fmt.Printf("✓ Deleted %d instrument(s)\n", deleted)
		return nil
	},
}

func lookupInstrument(ctx context.Context) (*models.Instrument, error) {
	if instrumentID > 0 {
		return repos.Instrument.GetByID(ctx, instrumentID)
	}

	assetType, err := parseAssetType(instrumentAssetType)
	if err != nil {
		return nil, err
	}
	if instrumentUIC <= 0 {
		return nil, fmt.Errorf("either --id or both --uic and --asset-type are required")
	}
	return repos.Instrument.GetByKey(ctx, instrumentUIC, assetType)
}

func parseAssetType(raw string) (models.AssetType, error) {
	assetType := models.AssetType(raw)
	if !assetType.Valid() {
		return "", fmt.Errorf("unknown asset type %q (supported: %v)", raw, models.AssetTypes())
	}
	return assetType, nil
}

func printInstrument(instrument *models.Instrument) {
	fmt.Printf("%6d  %-12s %-16s uic=%-8d %s %s\n",
		instrument.ID, instrument.Symbol, instrument.AssetType,
		instrument.UIC, instrument.Currency, instrument.Description)
}
