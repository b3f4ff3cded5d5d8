// Package main provides the elpis management CLI.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Polymerase3/elpis-v2/internal/config"
	"github.com/Polymerase3/elpis-v2/internal/database"
	applogger "github.com/Polymerase3/elpis-v2/internal/logger"
	"github.com/Polymerase3/elpis-v2/internal/repository"
	"github.com/Polymerase3/elpis-v2/internal/service"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	configFile string
	cfg        *config.Config
	appLog     *logrus.Logger
	auditLog   *applogger.AuditLogger
	db         *database.DB
	repos      *repository.Repositories
	engine     *service.IngestionEngine
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
}

var rootCmd = &cobra.Command{
	Use:   "elpis",
	Short: "Manage the elpis market data store",
	Long:  `Ingest, inspect and maintain market price bars, instruments, strategies and backtest analyses.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		if err := loadConfig(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		appLog = applogger.NewLogger(cfg.App.LogLevel, cfg.App.Environment)
		auditLog = applogger.NewAuditLogger(appLog)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("elpis %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
	},
}

func main() {
	rootCmd.AddCommand(versionCmd, ingestCmd, instrumentCmd, pricesCmd, dbCmd, fetchCmd, watchCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.LoadWithDefaults(configFile)
	if err != nil {
		return err
	}

	// Load AWS secrets if enabled
	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			return fmt.Errorf("AWS_REGION and AWS_SECRET_NAME environment variables must be set when AWS_SECRETS_ENABLED is true")
		}
		if err := config.LoadSecretsFromAWS(cfg, region, secretName); err != nil {
			return fmt.Errorf("failed to load secrets: %w", err)
		}
	}

	return config.Validate(cfg)
}

// connectDatabase dials the database and builds the repository and ingest
// layers. Commands that only print or validate never call it, so they keep
// working without a reachable database.
func connectDatabase(ctx context.Context) error {
	var err error
	db, err = database.NewDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	repos, err = repository.NewRepositories(db)
	if err != nil {
		return fmt.Errorf("failed to initialize repositories: %w", err)
	}

	resolver := service.NewRefResolver(repos.Instrument, repos.Strategy, cfg.Ingest.ResolverTTL())
	engine = service.NewIngestionEngine(db, repos, resolver, appLog)

	return nil
}

func closeDatabase() {
	if db != nil {
		db.Close()
	}
}
