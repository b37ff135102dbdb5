// Package main is the entry point for the catalogue service. It starts the
// HTTP API that manages resource lifecycle state, the audit ledger, and the
// background consistency sweeps.
//
// The application performs the following initialization sequence:
//  1. Load configuration from config file and environment variables
//  2. Initialize structured logging with zap
//  3. Connect to Redis for envelope and vocabulary storage
//  4. Build the reference validator and the lifecycle guard
//  5. Optionally build the PID registry client and the sweep runner
//  6. Start the HTTP server with graceful shutdown support
//
// Graceful shutdown is triggered by SIGINT (Ctrl+C) or SIGTERM signals.
//
// Example usage:
//
//	# Start with default config lookup (./config, ., /etc/catweave)
//	./catalogue
//
//	# Start with custom config file
//	./catalogue --config=/etc/catweave/config.yaml
//
//	# Start with environment variable overrides
//	export CATWEAVE_SERVER_PORT=9090
//	export CATWEAVE_REDIS_ADDRESSES=redis.example.com:6379
//	./catalogue
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/piwi3910/catweave/internal/config"
	"github.com/piwi3910/catweave/internal/lifecycle"
	"github.com/piwi3910/catweave/internal/middleware"
	"github.com/piwi3910/catweave/internal/notify"
	"github.com/piwi3910/catweave/internal/observability"
	"github.com/piwi3910/catweave/internal/pid"
	"github.com/piwi3910/catweave/internal/refcheck"
	"github.com/piwi3910/catweave/internal/server"
	"github.com/piwi3910/catweave/internal/storage"
	"github.com/piwi3910/catweave/internal/sweep"
	"github.com/piwi3910/catweave/internal/vocab"
)

const (
	// Version is the application version (set via build flags).
	Version = "1.0.0"

	// ServiceName is the name of this service.
	ServiceName = "catweave-catalogue"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	showVersion = flag.Bool("version", false, "Show version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", ServiceName, Version)
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the main application logic. It returns an error if any
// critical initialization or runtime error occurs.
func run() error {
	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("catalogue service starting",
		zap.String("version", Version),
		zap.String("service", ServiceName),
	)

	components, err := initializeComponents(cfg, logger.Logger)
	if err != nil {
		return err
	}
	defer components.Close(logger.Logger)

	if components.sweepRunner != nil {
		components.sweepRunner.Start(context.Background())
		logger.Info("sweep runner started",
			zap.Duration("interval", cfg.Sweeps.Interval),
		)
	}

	// Start blocks until a shutdown signal arrives or the listener fails.
	return components.server.Start()
}

// applicationComponents holds all initialized application components.
type applicationComponents struct {
	store       *storage.RedisStore
	pidClient   *pid.Client
	sweepRunner *sweep.Runner
	server      *server.Server
}

// Close closes all components gracefully.
func (c *applicationComponents) Close(logger *zap.Logger) {
	if c.sweepRunner != nil {
		c.sweepRunner.Stop()
	}
	if c.pidClient != nil {
		if err := c.pidClient.Close(); err != nil {
			logger.Warn("failed to close PID registry client", zap.Error(err))
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			logger.Warn("failed to close Redis connection", zap.Error(err))
		}
	}
}

// loadConfiguration loads and validates the application configuration.
func loadConfiguration(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupLogger initializes the global structured logger from configuration.
func setupLogger(cfg *config.Config) (*observability.Logger, error) {
	logger, err := observability.InitLogger(observability.LoggerOptions{
		Level:            cfg.Observability.Logging.Level,
		Format:           cfg.Observability.Logging.Format,
		OutputPaths:      cfg.Observability.Logging.OutputPaths,
		ErrorOutputPaths: cfg.Observability.Logging.ErrorOutputPaths,
		EnableCaller:     cfg.Observability.Logging.EnableCaller,
		EnableStacktrace: cfg.Observability.Logging.EnableStacktrace,
		Development:      cfg.Observability.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger, nil
}

// initializeComponents initializes all application components.
func initializeComponents(cfg *config.Config, logger *zap.Logger) (*applicationComponents, error) {
	store, err := initializeRedisStorage(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize Redis storage", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize Redis storage: %w", err)
	}

	logger.Info("Redis storage initialized",
		zap.String("mode", cfg.Redis.Mode),
		zap.Strings("addresses", cfg.Redis.Addresses),
	)

	validator, err := refcheck.NewValidator(store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create reference validator: %w", err)
	}

	guard, err := lifecycle.NewGuard(store, validator, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create lifecycle guard: %w", err)
	}

	vocabStore, err := vocab.NewStore(store.Client(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create vocabulary store: %w", err)
	}

	pidClient, err := initializePIDClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	if pidClient != nil {
		guard.SetRegistry(pidClient)
	}

	sweepRunner, err := initializeSweepRunner(cfg, store, pidClient, logger)
	if err != nil {
		return nil, err
	}

	rateLimiter, err := initializeRateLimiter(cfg, store, logger)
	if err != nil {
		return nil, err
	}

	serverOpts := server.Options{
		Store:       store,
		Guard:       guard,
		Validator:   validator,
		VocabStore:  vocabStore,
		SweepRunner: sweepRunner,
		RateLimiter: rateLimiter,
	}
	if pidClient != nil {
		serverOpts.RegistryPing = pidClient.Ping
	}

	srv := server.New(cfg, logger, serverOpts)
	logger.Info("HTTP server created",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("mode", cfg.Server.GinMode),
	)

	return &applicationComponents{
		store:       store,
		pidClient:   pidClient,
		sweepRunner: sweepRunner,
		server:      srv,
	}, nil
}

// initializeRedisStorage creates the Redis store and verifies connectivity.
func initializeRedisStorage(cfg *config.Config, logger *zap.Logger) (*storage.RedisStore, error) {
	redisCfg := &storage.RedisConfig{
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		PoolSize:     cfg.Redis.PoolSize,
	}

	switch cfg.Redis.Mode {
	case "sentinel":
		redisCfg.UseSentinel = true
		redisCfg.SentinelAddrs = cfg.Redis.Addresses
		redisCfg.MasterName = cfg.Redis.MasterName
		logger.Info("configuring Redis in Sentinel mode",
			zap.Strings("sentinel_addresses", cfg.Redis.Addresses),
			zap.String("master_name", cfg.Redis.MasterName),
		)
	default:
		redisCfg.Addr = cfg.Redis.Addresses[0]
		logger.Info("configuring Redis in standalone mode",
			zap.String("address", redisCfg.Addr),
		)
	}

	store := storage.NewRedisStore(redisCfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("redis connectivity check failed: %w", err)
	}

	logger.Info("Redis connectivity verified")
	return store, nil
}

// initializePIDClient creates the handle registry client when the registry
// is enabled. Returns nil without error when it is not.
func initializePIDClient(cfg *config.Config, logger *zap.Logger) (*pid.Client, error) {
	if !cfg.Registry.Enabled {
		logger.Info("PID registry disabled, skipping client initialization")
		return nil, nil
	}

	client, err := pid.NewClient(&pid.Config{
		BaseURL:            cfg.Registry.BaseURL,
		Prefix:             cfg.Registry.Prefix,
		AdminHandle:        cfg.Registry.AdminHandle,
		MarketplaceURL:     cfg.Registry.MarketplaceURL,
		HTTPTimeout:        cfg.Registry.HTTPTimeout,
		EnableMTLS:         cfg.Registry.EnableMTLS,
		ClientCertFile:     cfg.Registry.ClientCertFile,
		ClientKeyFile:      cfg.Registry.ClientKeyFile,
		CACertFile:         cfg.Registry.CACertFile,
		InsecureSkipVerify: cfg.Registry.InsecureSkipVerify,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create PID registry client: %w", err)
	}

	logger.Info("PID registry client initialized",
		zap.String("base_url", cfg.Registry.BaseURL),
		zap.String("prefix", cfg.Registry.Prefix),
	)

	return client, nil
}

// initializeRateLimiter builds the Redis-backed rate limiter when rate
// limiting is enabled.
func initializeRateLimiter(cfg *config.Config, store *storage.RedisStore, logger *zap.Logger) (*middleware.RateLimiter, error) {
	if !cfg.Server.RateLimit.Enabled {
		return nil, nil
	}

	limiter, err := middleware.NewRateLimiter(&middleware.RateLimitConfig{
		Enabled: true,
		PerActor: middleware.ActorLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.Server.RateLimit.BurstSize,
		},
		Global: middleware.GlobalLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimit.GlobalRequestsPerSecond,
		},
		RedisClient: store.Client(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	logger.Info("rate limiting enabled",
		zap.Int("requests_per_second", cfg.Server.RateLimit.RequestsPerSecond),
		zap.Int("burst_size", cfg.Server.RateLimit.BurstSize),
	)

	return limiter, nil
}

// initializeSweepRunner builds the background sweep runner when sweeps are
// enabled. The PID reconciliation sweep is included only when a registry
// client is available.
func initializeSweepRunner(
	cfg *config.Config,
	store *storage.RedisStore,
	pidClient *pid.Client,
	logger *zap.Logger,
) (*sweep.Runner, error) {
	if !cfg.Sweeps.Enabled {
		logger.Info("consistency sweeps disabled")
		return nil, nil
	}

	mirrorChecker, err := sweep.NewMirrorChecker(store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create mirror checker: %w", err)
	}

	sweeps := []sweep.Sweep{mirrorChecker}

	if pidClient != nil {
		reconciler, err := sweep.NewPIDReconciler(store, pidClient, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create PID reconciler: %w", err)
		}
		sweeps = append(sweeps, reconciler)
	}

	notifier, err := notify.NewNotifier(&notify.Config{
		WebhookURL:  cfg.Notifications.WebhookURL,
		HTTPTimeout: cfg.Notifications.HTTPTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create report notifier: %w", err)
	}

	runner, err := sweep.NewRunner(sweeps, notifier, cfg.Sweeps.Interval, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create sweep runner: %w", err)
	}

	return runner, nil
}
