// Package config provides configuration management for the elpis ingestion
// service.
package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

const (
	validConfigPath            = "testdata/valid_config.yaml"
	expansionConfigPath        = "testdata/expansion_config.yaml"
	expansionConfigMissingPath = "testdata/expansion_config_missing.yaml"
	nonexistentConfigPath      = "testdata/nonexistent_config.yaml"
	expectedNoErrorLoading     = "expected no error loading config, got %v"
	expectedNoErrorMsg         = "expected no error, got %v"
	expectedNonNilConfig       = "expected non-nil config"
	elpisName                  = "elpis"
	developmentEnv             = "development"
	invalidEnv                 = "invalid"
	localhostHost              = "localhost"
	postgresPort               = 5432
	postgresPrefix             = "postgres://"
	testAppName                = "test-app"
	testDBPassword             = "TEST_DB_PASSWORD"
	testMissingVar             = "TEST_MISSING_VAR"
	expandedSecretValue        = "expanded_secret_value"
)

// TestLoadConfigSuccess tests loading a valid configuration file
func TestLoadConfigSuccess(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	if cfg == nil {
		t.Fatal(expectedNonNilConfig)
	}

	if cfg.App.Name != elpisName {
		t.Errorf("expected app name '%s', got '%s'", elpisName, cfg.App.Name)
	}

	if cfg.App.Environment != developmentEnv {
		t.Errorf("expected environment '%s', got '%s'", developmentEnv, cfg.App.Environment)
	}

	if cfg.Database.Host != localhostHost {
		t.Errorf("expected database host '%s', got '%s'", localhostHost, cfg.Database.Host)
	}

	if cfg.Database.Port != postgresPort {
		t.Errorf("expected database port %d, got %d", postgresPort, cfg.Database.Port)
	}

	if cfg.Saxo.PageSize != 1200 {
		t.Errorf("expected page size 1200, got %d", cfg.Saxo.PageSize)
	}
}

// TestLoadConfigFileNotFound tests handling of missing configuration file
func TestLoadConfigFileNotFound(t *testing.T) {
	_, err := Load(nonexistentConfigPath)
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

// TestLoadConfigEnvironmentVariables tests environment variable override
func TestLoadConfigEnvironmentVariables(t *testing.T) {
	os.Setenv("ELPIS_APP_NAME", testAppName)
	defer os.Unsetenv("ELPIS_APP_NAME")

	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	if cfg.App.Name != testAppName {
		t.Errorf("expected app name '%s' from environment, got '%s'", testAppName, cfg.App.Name)
	}
}

// TestLoadWithDefaults tests defaults when the config file is absent
func TestLoadWithDefaults(t *testing.T) {
	cfg, err := LoadWithDefaults(nonexistentConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	if cfg.App.Name != elpisName {
		t.Errorf("expected default app name '%s', got '%s'", elpisName, cfg.App.Name)
	}

	if cfg.Metrics.Port != 9091 {
		t.Errorf("expected default metrics port 9091, got %d", cfg.Metrics.Port)
	}

	if cfg.Saxo.PageSize != 1200 {
		t.Errorf("expected default page size 1200, got %d", cfg.Saxo.PageSize)
	}
}

// TestValidateSuccess tests validation of a valid configuration
func TestValidateSuccess(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoading, err)
	}

	err = Validate(cfg)
	if err != nil {
		t.Fatalf("expected no validation error, got %v", err)
	}
}

// TestValidateInvalidEnvironment tests validation of invalid environment
func TestValidateInvalidEnvironment(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoading, err)
	}

	cfg.App.Environment = invalidEnv
	err = Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for invalid environment")
	}
}

// TestValidateInvalidSchedule tests validation of a malformed cron expression
func TestValidateInvalidSchedule(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoading, err)
	}

	cfg.Ingest.Schedule = "every five minutes"
	err = Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for invalid cron expression")
	}

	if !strings.Contains(err.Error(), "cron") {
		t.Errorf("expected cron validation error, got: %v", err)
	}
}

// TestValidateReconnectWindow tests the feed reconnect cross-field rule
func TestValidateReconnectWindow(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoading, err)
	}

	cfg.Feed.ReconnectMinSeconds = 120
	cfg.Feed.ReconnectMaxSeconds = 30
	err = Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for inverted reconnect window")
	}
}

// TestValidateIdleConnections tests the pool size cross-field rule
func TestValidateIdleConnections(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoading, err)
	}

	cfg.Database.MaxIdleConnections = 50
	cfg.Database.MaxConnections = 10
	err = Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for idle connections exceeding pool size")
	}
}

// TestValidateProductionSSL tests production SSL enforcement
func TestValidateProductionSSL(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoading, err)
	}

	cfg.App.Environment = "production"
	cfg.Database.SSLMode = "disable"
	cfg.Saxo.Token = "real-looking-token-a8f3"
	err = Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for disabled SSL in production")
	}
}

// TestGetDatabaseDSN tests DSN generation
func TestGetDatabaseDSN(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoading, err)
	}

	dsn := cfg.GetDatabaseDSN()
	if dsn == "" {
		t.Fatal("expected non-empty DSN")
	}

	if !strings.HasPrefix(dsn, postgresPrefix) {
		t.Errorf("expected DSN to start with '%s', got '%s'", postgresPrefix, dsn)
	}

	if !strings.Contains(dsn, "sslmode=disable") {
		t.Errorf("expected DSN to carry ssl mode, got '%s'", dsn)
	}
}

// TestIsDevelopment tests environment check function
func TestIsDevelopment(t *testing.T) {
	cfg := &Config{
		App: AppConfig{Environment: developmentEnv},
	}

	if !cfg.IsDevelopment() {
		t.Error("expected IsDevelopment() to return true")
	}

	if cfg.IsProduction() {
		t.Error("expected IsProduction() to return false")
	}
}

// TestIsProduction tests production environment check
func TestIsProduction(t *testing.T) {
	cfg := &Config{
		App: AppConfig{Environment: "production"},
	}

	if !cfg.IsProduction() {
		t.Error("expected IsProduction() to return true")
	}

	if cfg.IsDevelopment() {
		t.Error("expected IsDevelopment() to return false")
	}
}

// TestIsStaging tests staging environment check
func TestIsStaging(t *testing.T) {
	cfg := &Config{
		App: AppConfig{Environment: "staging"},
	}

	if !cfg.IsStaging() {
		t.Error("expected IsStaging() to return true")
	}

	if cfg.IsDevelopment() {
		t.Error("expected IsDevelopment() to return false")
	}
}

// TestDurationAccessors tests second-count fields exposed as durations
func TestDurationAccessors(t *testing.T) {
	cfg := &Config{
		Saxo:   SaxoConfig{RequestTimeoutSeconds: 30},
		Feed:   FeedConfig{FlushIntervalSeconds: 15, ReconnectMinSeconds: 1, ReconnectMaxSeconds: 60},
		Ingest: IngestConfig{ResolverTTLSeconds: 600},
	}

	if cfg.Saxo.RequestTimeout() != 30*time.Second {
		t.Errorf("unexpected request timeout: %v", cfg.Saxo.RequestTimeout())
	}

	if cfg.Feed.FlushInterval() != 15*time.Second {
		t.Errorf("unexpected flush interval: %v", cfg.Feed.FlushInterval())
	}

	if cfg.Feed.ReconnectMin() != time.Second || cfg.Feed.ReconnectMax() != time.Minute {
		t.Errorf("unexpected reconnect window: %v - %v", cfg.Feed.ReconnectMin(), cfg.Feed.ReconnectMax())
	}

	if cfg.Ingest.ResolverTTL() != 10*time.Minute {
		t.Errorf("unexpected resolver TTL: %v", cfg.Ingest.ResolverTTL())
	}
}

// TestLoadConfigEnvironmentVariableExpansion tests ${VAR} expansion in the
// config file
func TestLoadConfigEnvironmentVariableExpansion(t *testing.T) {
	os.Setenv(testDBPassword, expandedSecretValue)
	defer os.Unsetenv(testDBPassword)

	cfg, err := Load(expansionConfigPath)
	if err != nil {
		t.Fatalf("expected no error loading config with expansion, got %v", err)
	}

	if cfg.Database.Password != expandedSecretValue {
		t.Errorf("expected password '%s' from environment expansion, got '%s'", expandedSecretValue, cfg.Database.Password)
	}
}

// TestLoadConfigMissingEnvironmentVariable tests handling of missing
// environment variables
func TestLoadConfigMissingEnvironmentVariable(t *testing.T) {
	os.Unsetenv(testMissingVar)

	cfg, err := Load(expansionConfigMissingPath)
	if err != nil {
		t.Fatalf(expectedNoErrorLoading, err)
	}

	// os.ExpandEnv replaces an unset ${VAR} with the empty string
	if cfg.Database.Password != "" {
		t.Errorf("expected empty password for unset variable, got %q", cfg.Database.Password)
	}
}

// TestOverlaySecrets tests applying a secrets overlay onto the configuration
func TestOverlaySecrets(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Password: "from-file"},
		Saxo:     SaxoConfig{Token: "from-file"},
	}

	overlaySecretsOnConfig(cfg, &SecretsOverlay{
		DatabasePassword: "from-aws",
		SaxoToken:        "",
		SaxoAccountKey:   "acc-123",
	})

	if cfg.Database.Password != "from-aws" {
		t.Errorf("expected overlaid password, got %q", cfg.Database.Password)
	}

	// Empty overlay values leave the file value in place
	if cfg.Saxo.Token != "from-file" {
		t.Errorf("expected token untouched, got %q", cfg.Saxo.Token)
	}

	if cfg.Saxo.AccountKey != "acc-123" {
		t.Errorf("expected overlaid account key, got %q", cfg.Saxo.AccountKey)
	}
}
