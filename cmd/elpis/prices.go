package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Polymerase3/elpis-v2/internal/models"
)

var (
	pricesInstrumentID int64
	pricesInterval     string
	pricesFrom         string
	pricesTo           string
	pricesConfirm      bool
)

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Inspect and maintain stored price bars",
}

func init() {
	for _, cmd := range []*cobra.Command{pricesGetCmd, pricesLatestCmd, pricesDeleteCmd} {
		cmd.Flags().Int64Var(&pricesInstrumentID, "instrument", 0, "Instrument id")
		cmd.Flags().StringVar(&pricesInterval, "interval", "1h", "Bar interval (1m, 5m, 10m, 15m, 30m, 1h, 1d, 1mo)")
	}
	for _, cmd := range []*cobra.Command{pricesGetCmd, pricesDeleteCmd} {
		cmd.Flags().StringVar(&pricesFrom, "from", "", "Range start (RFC3339 or YYYY-MM-DD)")
		cmd.Flags().StringVar(&pricesTo, "to", "", "Range end, defaults to now")
	}
	pricesDeleteCmd.Flags().BoolVar(&pricesConfirm, "yes", false, "Confirm the delete")

	pricesCmd.AddCommand(pricesGetCmd, pricesLatestCmd, pricesDeleteCmd)
}

var pricesGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print bars for an instrument, interval and time range",
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, start, end, err := parseRangeFlags()
		if err != nil {
			return err
		}

		ctx := context.Background()
		if err := connectDatabase(ctx); err != nil {
			return err
		}
		defer closeDatabase()

		bars, err := repos.Price.GetRange(ctx, pricesInstrumentID, interval, start, end)
		if err != nil {
			return err
		}

		for _, bar := range bars {
			printBar(bar)
		}
		fmt.Printf("%d bars\n", len(bars))
		return nil
	},
}

var pricesLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the newest bar for an instrument and interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, err := parseInterval(pricesInterval)
		if err != nil {
			return err
		}
		if pricesInstrumentID <= 0 {
			return fmt.Errorf("--instrument is required")
		}

		ctx := context.Background()
		if err := connectDatabase(ctx); err != nil {
			return err
		}
		defer closeDatabase()

		bar, err := repos.Price.GetLatest(ctx, pricesInstrumentID, interval)
		if err != nil {
			return err
		}

		printBar(bar)
		return nil
	},
}

var pricesDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete bars for an instrument, interval and time range",
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, start, end, err := parseRangeFlags()
		if err != nil {
			return err
		}

		ctx := context.Background()
		if err := connectDatabase(ctx); err != nil {
			return err
		}
		defer closeDatabase()

		count, err := repos.Price.CountRange(ctx, pricesInstrumentID, interval, start, end)
		if err != nil {
			return err
		}
		if count == 0 {
			fmt.Println("No bars in range")
			return nil
		}
		if !pricesConfirm {
			return fmt.Errorf("would delete %d bars; rerun with --yes to confirm", count)
		}

		deleted, err := repos.Price.DeleteRange(ctx, pricesInstrumentID, interval, start, end)
		if err != nil {
			return err
		}

		auditLog.LogManualDelete("price", 1, deleted, os.Getenv("USER"))
		fmt.Printf("✓ Deleted %d bars\n", deleted)
		return nil
	},
}

func parseRangeFlags() (models.IntervalCode, time.Time, time.Time, error) {
	interval, err := parseInterval(pricesInterval)
	if err != nil {
		return 0, time.Time{}, time.Time{}, err
	}
	if pricesInstrumentID <= 0 {
		return 0, time.Time{}, time.Time{}, fmt.Errorf("--instrument is required")
	}

	start, err := parseTimeFlag(pricesFrom, "--from")
	if err != nil {
		return 0, time.Time{}, time.Time{}, err
	}

	end := time.Now().UTC()
	if pricesTo != "" {
		if end, err = parseTimeFlag(pricesTo, "--to"); err != nil {
			return 0, time.Time{}, time.Time{}, err
		}
	}

	return interval, start, end, nil
}

func parseInterval(label string) (models.IntervalCode, error) {
	interval, err := models.ParseIntervalLabel(label)
	if err != nil {
		return 0, fmt.Errorf("unknown interval %q: %w", label, err)
	}
	return interval, nil
}

func parseTimeFlag(value, name string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%s: cannot parse %q, want RFC3339 or YYYY-MM-DD", name, value)
}

func printBar(bar *models.PriceBar) {
	fmt.Printf("%s  o=%s h=%s l=%s c=%s v=%s\n",
		bar.TimePrice.Format(time.RFC3339),
		fmtPrice(bar.PriceOpen), fmtPrice(bar.PriceHigh),
		fmtPrice(bar.PriceLow), fmtPrice(bar.PriceClose),
		fmtPrice(bar.Volume))
}

func fmtPrice(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}
