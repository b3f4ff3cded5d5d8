// Package config provides configuration management for the elpis ingestion
// service.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Saxo     SaxoConfig     `mapstructure:"saxo" validate:"required"`
	Feed     FeedConfig     `mapstructure:"feed" validate:"required"`
	Ingest   IngestConfig   `mapstructure:"ingest" validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics" validate:"required"`
	Health   HealthConfig   `mapstructure:"health" validate:"required"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host" validate:"required"`
	Port               int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name               string `mapstructure:"name" validate:"required"`
	User               string `mapstructure:"user" validate:"required"`
	Password           string `mapstructure:"password" validate:"required"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"required,gt=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"required,gt=0"`
}

// SaxoConfig represents the venue REST and streaming API configuration
type SaxoConfig struct {
	APIURL                string `mapstructure:"api_url" validate:"required,url"`
	StreamURL             string `mapstructure:"stream_url" validate:"required"`
	Token                 string `mapstructure:"token" validate:"required"`
	AccountKey            string `mapstructure:"account_key"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds" validate:"required,gt=0"`
	RetryAttempts         int    `mapstructure:"retry_attempts" validate:"required,gte=0"`
	RateLimitPerSecond    int    `mapstructure:"rate_limit_per_second" validate:"required,gt=0"`
	RateLimitBurst        int    `mapstructure:"rate_limit_burst" validate:"required,gt=0"`
	PageSize              int    `mapstructure:"page_size" validate:"required,gt=0,lte=1200"`
}

// FeedConfig represents the streaming collector configuration
type FeedConfig struct {
	BufferSize           int                `mapstructure:"buffer_size" validate:"required,gt=0"`
	FlushIntervalSeconds int                `mapstructure:"flush_interval_seconds" validate:"required,gt=0"`
	ReconnectMinSeconds  int                `mapstructure:"reconnect_min_seconds" validate:"required,gt=0"`
	ReconnectMaxSeconds  int                `mapstructure:"reconnect_max_seconds" validate:"required,gt=0"`
	Subscriptions        []FeedSubscription `mapstructure:"subscriptions" validate:"omitempty,dive"`
}

// FeedSubscription declares one chart series the feed daemon streams.
// The instrument must already be registered; the daemon resolves the
// (uic, asset_type) pair against market.instrument at startup.
type FeedSubscription struct {
	UIC       int64  `mapstructure:"uic" validate:"required,gt=0"`
	AssetType string `mapstructure:"asset_type" validate:"required"`
	Interval  string `mapstructure:"interval" validate:"required"`
}

// IngestConfig represents batch ingestion and spool directory configuration
type IngestConfig struct {
	SpoolDir           string `mapstructure:"spool_dir" validate:"required"`
	ProcessedDir       string `mapstructure:"processed_dir" validate:"required"`
	FailedDir          string `mapstructure:"failed_dir" validate:"required"`
	Schedule           string `mapstructure:"schedule" validate:"required,cron"`
	ResolverTTLSeconds int    `mapstructure:"resolver_ttl_seconds" validate:"required,gt=0"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path    string `mapstructure:"path" validate:"required"`
}

// HealthConfig represents the health endpoint configuration
type HealthConfig struct {
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsStaging checks if the application is running in staging mode
func (c *Config) IsStaging() bool {
	return c.App.Environment == "staging"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// RequestTimeout returns the venue request timeout as a duration
func (c *SaxoConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// FlushInterval returns the feed flush interval as a duration
func (c *FeedConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

// ReconnectMin returns the minimum reconnect backoff as a duration
func (c *FeedConfig) ReconnectMin() time.Duration {
	return time.Duration(c.ReconnectMinSeconds) * time.Second
}

// ReconnectMax returns the maximum reconnect backoff as a duration
func (c *FeedConfig) ReconnectMax() time.Duration {
	return time.Duration(c.ReconnectMaxSeconds) * time.Second
}

// ResolverTTL returns the reference cache TTL as a duration
func (c *IngestConfig) ResolverTTL() time.Duration {
	return time.Duration(c.ResolverTTLSeconds) * time.Second
}
