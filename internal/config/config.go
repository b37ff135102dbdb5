// Package config provides configuration management for the catalogue
// service. It loads configuration from YAML files and environment variables
// using Viper, with defaults and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete configuration for the catalogue service.
// It includes server settings, Redis configuration, PID registry settings,
// sweep scheduling and observability options.
//
// Configuration can be loaded from:
//   - YAML file (config/config.yaml)
//   - Environment variables (prefixed with CATWEAVE_)
//
// Example:
//
//	cfg, err := config.Load("config/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Registry      RegistryConfig      `mapstructure:"registry"`
	Sweeps        SweepsConfig        `mapstructure:"sweeps"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Host is the network interface to bind to (e.g., "0.0.0.0", "localhost")
	Host string `mapstructure:"host"`

	// Port is the HTTP server port (default: 8080)
	Port int `mapstructure:"port"`

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum duration to wait for the next request when keep-alives are enabled
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// GinMode sets the Gin framework mode ("debug", "release", "test")
	GinMode string `mapstructure:"gin_mode"`

	// RateLimit configures request rate limiting
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig contains request rate limiting configuration. Limits are
// enforced through Redis so they hold across replicas.
type RateLimitConfig struct {
	// Enabled enables rate limiting
	Enabled bool `mapstructure:"enabled"`

	// RequestsPerSecond is the sustained per-actor rate
	RequestsPerSecond int `mapstructure:"requests_per_second"`

	// BurstSize is the per-actor burst allowance
	BurstSize int `mapstructure:"burst_size"`

	// GlobalRequestsPerSecond caps the total request rate. Zero disables
	// the global cap.
	GlobalRequestsPerSecond int `mapstructure:"global_requests_per_second"`
}

// RedisConfig contains Redis client configuration.
type RedisConfig struct {
	// Mode specifies Redis deployment mode: "standalone" or "sentinel"
	Mode string `mapstructure:"mode"`

	// Addresses contains Redis server addresses
	// For standalone: ["localhost:6379"]
	// For sentinel: ["sentinel1:26379", "sentinel2:26379"]
	Addresses []string `mapstructure:"addresses"`

	// MasterName is required for Sentinel mode (e.g., "mymaster")
	MasterName string `mapstructure:"master_name"`

	// Password for Redis authentication (optional)
	Password string `mapstructure:"password"`

	// DB is the Redis database number (0-15)
	DB int `mapstructure:"db"`

	// PoolSize is the maximum number of socket connections
	PoolSize int `mapstructure:"pool_size"`

	// MaxRetries is the maximum number of retries before giving up
	MaxRetries int `mapstructure:"max_retries"`

	// DialTimeout is the timeout for establishing new connections
	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	// ReadTimeout is the timeout for socket reads
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the timeout for socket writes
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RegistryConfig contains PID registry client configuration.
type RegistryConfig struct {
	// Enabled enables persistent-identifier reconciliation
	Enabled bool `mapstructure:"enabled"`

	// BaseURL is the handle registry's API endpoint
	BaseURL string `mapstructure:"base_url"`

	// Prefix is the handle prefix resources are registered under
	Prefix string `mapstructure:"prefix"`

	// AdminHandle is the HS_ADMIN handle authorised to write under Prefix
	AdminHandle string `mapstructure:"admin_handle"`

	// MarketplaceURL is the base URL handles resolve to
	MarketplaceURL string `mapstructure:"marketplace_url"`

	// HTTPTimeout is the timeout for registry requests
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`

	// EnableMTLS enables mutual TLS towards the registry
	EnableMTLS bool `mapstructure:"enable_mtls"`

	// ClientCertFile is the path to the client certificate for mTLS
	ClientCertFile string `mapstructure:"client_cert_file"`

	// ClientKeyFile is the path to the client private key for mTLS
	ClientKeyFile string `mapstructure:"client_key_file"`

	// CACertFile is the path to the CA certificate for verifying the registry
	CACertFile string `mapstructure:"ca_cert_file"`

	// InsecureSkipVerify disables certificate verification (testing only)
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

// SweepsConfig contains consistency-sweep scheduling configuration.
type SweepsConfig struct {
	// Enabled enables the periodic sweep runner
	Enabled bool `mapstructure:"enabled"`

	// Interval is the time between sweep runs
	Interval time.Duration `mapstructure:"interval"`
}

// NotificationsConfig contains sweep-report delivery configuration.
type NotificationsConfig struct {
	// WebhookURL is where sweep reports are posted. Empty disables delivery.
	WebhookURL string `mapstructure:"webhook_url"`

	// HTTPTimeout is the timeout for report delivery
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

// ObservabilityConfig contains logging and metrics configuration.
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level sets the log level ("debug", "info", "warn", "error", "fatal")
	Level string `mapstructure:"level"`

	// Format sets the log format ("json", "console")
	Format string `mapstructure:"format"`

	// OutputPaths is a list of output destinations (e.g., ["stdout"])
	OutputPaths []string `mapstructure:"output_paths"`

	// ErrorOutputPaths is a list of error output destinations
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`

	// EnableCaller adds caller information to log entries
	EnableCaller bool `mapstructure:"enable_caller"`

	// EnableStacktrace adds stacktrace on errors
	EnableStacktrace bool `mapstructure:"enable_stacktrace"`

	// Development enables development mode (more verbose, console format)
	Development bool `mapstructure:"development"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled enables Prometheus metrics collection
	Enabled bool `mapstructure:"enabled"`

	// Path is the HTTP path for metrics endpoint (default: "/metrics")
	Path string `mapstructure:"path"`
}

// Load loads configuration from the specified file path and environment
// variables. Environment variables override file values and should be
// prefixed with CATWEAVE_ (e.g., CATWEAVE_SERVER_PORT=8080).
//
// Returns an error if the configuration file cannot be read or parsed.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/catweave")
	}

	v.SetEnvPrefix("CATWEAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional if all values come from env vars
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.gin_mode", "release")
	v.SetDefault("server.rate_limit.enabled", false)
	v.SetDefault("server.rate_limit.requests_per_second", 50)
	v.SetDefault("server.rate_limit.burst_size", 100)
	v.SetDefault("server.rate_limit.global_requests_per_second", 0)

	// Redis defaults
	v.SetDefault("redis.mode", "standalone")
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	// Registry defaults
	v.SetDefault("registry.enabled", false)
	v.SetDefault("registry.http_timeout", "10s")
	v.SetDefault("registry.enable_mtls", false)
	v.SetDefault("registry.insecure_skip_verify", false)

	// Sweep defaults
	v.SetDefault("sweeps.enabled", true)
	v.SetDefault("sweeps.interval", "6h")

	// Notification defaults
	v.SetDefault("notifications.webhook_url", "")
	v.SetDefault("notifications.http_timeout", "10s")

	// Logging defaults
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.output_paths", []string{"stdout"})
	v.SetDefault("observability.logging.error_output_paths", []string{"stderr"})
	v.SetDefault("observability.logging.enable_caller", true)
	v.SetDefault("observability.logging.enable_stacktrace", false)
	v.SetDefault("observability.logging.development", false)

	// Metrics defaults
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")
}

// Validate validates the configuration and returns an error if any values
// are invalid. This should be called after Load().
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateRedis(); err != nil {
		return err
	}

	if err := c.validateRegistry(); err != nil {
		return err
	}

	if err := c.validateSweeps(); err != nil {
		return err
	}

	if err := c.validateObservability(); err != nil {
		return err
	}

	return nil
}

// validateServer validates the server configuration.
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Server.GinMode != "debug" && c.Server.GinMode != "release" && c.Server.GinMode != "test" {
		return fmt.Errorf("invalid gin_mode: %s (must be debug, release, or test)", c.Server.GinMode)
	}

	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond < 1 {
		return fmt.Errorf("invalid rate limit: requests_per_second must be >= 1 when rate limiting is enabled")
	}

	return nil
}

// validateRedis validates the Redis configuration.
func (c *Config) validateRedis() error {
	if c.Redis.Mode != "standalone" && c.Redis.Mode != "sentinel" {
		return fmt.Errorf("invalid redis mode: %s (must be standalone or sentinel)", c.Redis.Mode)
	}

	if len(c.Redis.Addresses) == 0 {
		return fmt.Errorf("redis addresses cannot be empty")
	}

	if c.Redis.Mode == "sentinel" && c.Redis.MasterName == "" {
		return fmt.Errorf("redis master_name is required for sentinel mode")
	}

	if c.Redis.DB < 0 || c.Redis.DB > 15 {
		return fmt.Errorf("invalid redis db: %d (must be 0-15)", c.Redis.DB)
	}

	return nil
}

// validateRegistry validates the PID registry configuration.
func (c *Config) validateRegistry() error {
	if !c.Registry.Enabled {
		return nil
	}

	if c.Registry.BaseURL == "" {
		return fmt.Errorf("registry base_url is required when the registry is enabled")
	}

	if c.Registry.Prefix == "" {
		return fmt.Errorf("registry prefix is required when the registry is enabled")
	}

	if c.Registry.MarketplaceURL == "" {
		return fmt.Errorf("registry marketplace_url is required when the registry is enabled")
	}

	if c.Registry.EnableMTLS {
		if c.Registry.ClientCertFile == "" || c.Registry.ClientKeyFile == "" {
			return fmt.Errorf("registry client_cert_file and client_key_file are required for mTLS")
		}
	}

	return nil
}

// validateSweeps validates the sweep scheduling configuration.
func (c *Config) validateSweeps() error {
	if !c.Sweeps.Enabled {
		return nil
	}

	if c.Sweeps.Interval < time.Minute {
		return fmt.Errorf("invalid sweeps interval: %s (must be >= 1m)", c.Sweeps.Interval)
	}

	return nil
}

// validateObservability validates the observability configuration.
func (c *Config) validateObservability() error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Observability.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", c.Observability.Logging.Level)
	}

	if c.Observability.Logging.Format != "json" && c.Observability.Logging.Format != "console" {
		return fmt.Errorf("invalid logging format: %s (must be json or console)", c.Observability.Logging.Format)
	}

	if c.Observability.Metrics.Enabled && c.Observability.Metrics.Path == "" {
		return fmt.Errorf("metrics path cannot be empty when metrics are enabled")
	}

	return nil
}
