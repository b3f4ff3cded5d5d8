// Package main provides the entry point for the elpis feed daemon.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Polymerase3/elpis-v2/internal/config"
	"github.com/Polymerase3/elpis-v2/internal/database"
	"github.com/Polymerase3/elpis-v2/internal/feed"
	"github.com/Polymerase3/elpis-v2/internal/health"
	"github.com/Polymerase3/elpis-v2/internal/logger"
	"github.com/Polymerase3/elpis-v2/internal/metrics"
	"github.com/Polymerase3/elpis-v2/internal/models"
	"github.com/Polymerase3/elpis-v2/internal/repository"
	"github.com/Polymerase3/elpis-v2/internal/scheduler"
	"github.com/Polymerase3/elpis-v2/internal/service"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	configPath := os.Getenv("ELPIS_CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Load AWS secrets if enabled
	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			log.Fatalf("AWS_REGION and AWS_SECRET_NAME environment variables must be set when AWS_SECRETS_ENABLED is true")
		}
		if err := config.LoadSecretsFromAWS(cfg, region, secretName); err != nil {
			log.Fatalf("Failed to load secrets: %v", err)
		}
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Set up logging
	appLog := logger.NewLogger(cfg.App.LogLevel, cfg.App.Environment)
	appLog.WithFields(logrus.Fields{
		"environment": cfg.App.Environment,
		"log_level":   cfg.App.LogLevel,
	}).Info("Elpis feed daemon starting")

	metrics.InitRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection, verifying schema and extension
	db, err := database.Initialize(ctx, cfg)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	appLog.Info("Database connection established")

	// Initialize repositories and the ingestion engine
	repos, err := repository.NewRepositories(db)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize repositories")
	}

	resolver := service.NewRefResolver(repos.Instrument, repos.Strategy, cfg.Ingest.ResolverTTL())
	engine := service.NewIngestionEngine(db, repos, resolver, appLog)

	// Build the streaming collector
	stream := feed.NewStreamClient(&cfg.Saxo, &cfg.Feed, appLog)
	collector := feed.NewCollector(stream, engine, &cfg.Feed, appLog)

	subs, err := resolveSubscriptions(ctx, cfg, repos, appLog)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to resolve feed subscriptions")
	}

	if err := collector.Start(subs); err != nil {
		appLog.WithError(err).Fatal("Failed to start collector")
	}

	// Start the spool scanner alongside the feed
	spool := scheduler.NewScheduler(engine, &cfg.Ingest, appLog)
	if err := spool.Start(); err != nil {
		appLog.WithError(err).Fatal("Failed to start spool scheduler")
	}

	// Health endpoints
	healthServer := health.NewServer(health.Config{
		ServiceName: "elpis-feed",
		Version:     Version,
		Commit:      GitCommit,
		Port:        cfg.Health.Port,
		Logger:      appLog,
		DB:          db,
		Feed:        stream,
	})
	if err := healthServer.Start(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to start health server")
	}

	// Prometheus endpoint
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
		metricsServer = &http.Server{
			Addr:         ":" + strconv.Itoa(cfg.Metrics.Port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			appLog.WithFields(logrus.Fields{
				"port": cfg.Metrics.Port,
				"path": cfg.Metrics.Path,
			}).Info("Metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				appLog.WithError(err).Error("Metrics server error")
			}
		}()
	}

	// Drive the stream; it reconnects on its own until the context ends
	streamDone := make(chan error, 1)
	go func() {
		streamDone <- stream.Run(ctx)
	}()

	healthServer.SetReady(true)
	appLog.WithFields(logrus.Fields{
		"subscriptions": len(subs),
		"spool_dir":     cfg.Ingest.SpoolDir,
		"schedule":      cfg.Ingest.Schedule,
	}).Info("Feed daemon started successfully")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		appLog.WithField("signal", sig).Info("Shutdown signal received")
	case err := <-streamDone:
		if err != nil {
			appLog.WithError(err).Error("Stream terminated unexpectedly")
		}
	}

	// Graceful shutdown
	appLog.Info("Initiating graceful shutdown...")
	healthServer.SetReady(false)
	cancel()

	// Final flush of buffered bars, then stop everything else
	if err := collector.Stop(); err != nil {
		appLog.WithError(err).Error("Error during collector shutdown")
	}
	if err := spool.Stop(); err != nil {
		appLog.WithError(err).Error("Error during scheduler shutdown")
	}
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLog.WithError(err).Error("Error during metrics server shutdown")
		}
		shutdownCancel()
	}
	if err := healthServer.Shutdown(); err != nil {
		appLog.WithError(err).Error("Error during health server shutdown")
	}

	// Give components time to cleanup
	time.Sleep(2 * time.Second)

	appLog.Info("Elpis feed daemon shut down successfully")
}

// resolveSubscriptions maps the configured (uic, asset_type, interval) triples
// to stream subscriptions. Unregistered instruments are skipped with a warning
// so one missing row does not keep the rest of the feed down.
func resolveSubscriptions(ctx context.Context, cfg *config.Config, repos *repository.Repositories, appLog *logrus.Logger) ([]feed.Subscription, error) {
	if len(cfg.Feed.Subscriptions) == 0 {
		return nil, fmt.Errorf("feed.subscriptions is empty, nothing to stream")
	}

	subs := make([]feed.Subscription, 0, len(cfg.Feed.Subscriptions))
	for _, entry := range cfg.Feed.Subscriptions {
		assetType := models.AssetType(entry.AssetType)
		if !assetType.Valid() {
			return nil, fmt.Errorf("subscription uic=%d: unknown asset type %q", entry.UIC, entry.AssetType)
		}
		interval, err := models.ParseIntervalLabel(entry.Interval)
		if err != nil {
			return nil, fmt.Errorf("subscription uic=%d: unknown interval %q", entry.UIC, entry.Interval)
		}

		instrument, err := repos.Instrument.GetByKey(ctx, entry.UIC, assetType)
		if err != nil {
			appLog.WithError(err).WithFields(logrus.Fields{
				"uic":        entry.UIC,
				"asset_type": entry.AssetType,
			}).Warn("Skipping subscription for unregistered instrument")
			continue
		}

		subs = append(subs, feed.Subscription{
			ReferenceID:  fmt.Sprintf("bars-%s-%s", strings.ToLower(instrument.Symbol), interval.Label()),
			InstrumentID: instrument.ID,
			UIC:          instrument.UIC,
			AssetType:    instrument.AssetType,
			Interval:     interval,
		})
	}

	if len(subs) == 0 {
		return nil, fmt.Errorf("no configured subscription matched a registered instrument")
	}
	return subs, nil
}
