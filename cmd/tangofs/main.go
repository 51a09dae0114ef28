// Command tangofs mounts a Tango control system as a filesystem.
//
// The database's two views become directory hierarchies: servers/
// holds server/instance/class/device, devices/ holds
// domain/family/member. Device properties are editable files,
// attributes are directories of read-only value and configuration
// files, and commands are executable scripts. Slashes in device names
// appear as "%" in paths.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tangofs/tangofs/internal/cache"
	"github.com/tangofs/tangofs/internal/config"
	"github.com/tangofs/tangofs/internal/fuse"
	"github.com/tangofs/tangofs/internal/metrics"
	"github.com/tangofs/tangofs/internal/namespace"
	"github.com/tangofs/tangofs/internal/resolve"
	"github.com/tangofs/tangofs/internal/tango"
	"github.com/tangofs/tangofs/pkg/health"
	"github.com/tangofs/tangofs/pkg/retry"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	mountPoint := flag.String("mount", "", "mount point (overrides config)")
	gatewayURL := flag.String("gateway", "", "REST gateway base URL (overrides config)")
	cacheTTL := flag.Duration("ttl", 0, "namespace cache TTL (overrides config)")
	readOnly := flag.Bool("read-only", false, "mount read-only")
	allowOther := flag.Bool("allow-other", false, "allow other users to access the mount")
	metricsPort := flag.Int("metrics-port", 0, "serve Prometheus metrics on this port")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tangofs %s\n", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tangofs: %v\n", err)
		os.Exit(1)
	}

	// Flags override file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mount":
			cfg.Mount.MountPoint = *mountPoint
		case "gateway":
			cfg.Gateway.BaseURL = *gatewayURL
		case "ttl":
			cfg.Cache.TTL = *cacheTTL
		case "read-only":
			cfg.Mount.ReadOnly = *readOnly
		case "allow-other":
			cfg.Mount.AllowOther = *allowOther
		case "metrics-port":
			cfg.Metrics.Enabled = true
			cfg.Metrics.Port = *metricsPort
		case "log-level":
			cfg.Global.LogLevel = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "tangofs: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Global.LogLevel, cfg.Global.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tangofs: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Configuration, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := tango.NewRESTClient(tango.RESTConfig{
		BaseURL: cfg.Gateway.BaseURL,
		Timeout: cfg.Gateway.Timeout,
	}, logger)

	// Prove the gateway is reachable before mounting; a mount over a
	// dead gateway would only produce a tree of I/O errors.
	bootstrap := retry.New(retry.Config{
		MaxAttempts:  cfg.Startup.MaxAttempts,
		InitialDelay: cfg.Startup.BaseDelay,
		MaxDelay:     cfg.Startup.MaxDelay,
		Jitter:       true,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.Warn("gateway not reachable, retrying",
				zap.Int("attempt", attempt), zap.Duration("backoff", delay), zap.Error(err))
		},
	})
	if err := bootstrap.Do(ctx, func(ctx context.Context) error {
		_, err := client.Servers(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("gateway %s unreachable: %w", cfg.Gateway.BaseURL, err)
	}
	logger.Info("gateway reachable", zap.String("url", cfg.Gateway.BaseURL))

	monitor := health.NewMonitor(func(ctx context.Context) error {
		_, err := client.Servers(ctx)
		return err
	}, 30*time.Second, logger)
	monitor.Start(ctx)

	collector := metrics.NewCollector(&metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Port:    cfg.Metrics.Port,
	}, logger)
	collector.HandleFunc("/health", monitor.Handler())
	if err := collector.Start(ctx); err != nil {
		return fmt.Errorf("start metrics: %w", err)
	}
	defer func() { _ = collector.Stop(context.Background()) }()

	c := cache.New(cfg.Cache.TTL)
	tree := namespace.NewTree(client, c,
		namespace.WithLogger(logger),
		namespace.WithMetrics(collector),
		namespace.WithCommandScriptBase(cfg.Gateway.BaseURL),
	)
	resolver := resolve.NewResolver(tree, logger)

	manager := fuse.CreatePlatformMountManager(resolver, tree, c, &fuse.Config{
		MountPoint:   cfg.Mount.MountPoint,
		ReadOnly:     cfg.Mount.ReadOnly,
		AllowOther:   cfg.Mount.AllowOther,
		UID:          cfg.Mount.UID,
		GID:          cfg.Mount.GID,
		AttrTimeout:  cfg.Mount.AttrTimeout,
		EntryTimeout: cfg.Mount.EntryTimeout,
	}, logger)

	if err := manager.Mount(ctx); err != nil {
		return fmt.Errorf("mount: %w", err)
	}
	logger.Info("serving",
		zap.String("mountpoint", cfg.Mount.MountPoint),
		zap.Duration("cache_ttl", cfg.Cache.TTL),
		zap.Bool("read_only", cfg.Mount.ReadOnly))

	<-ctx.Done()
	logger.Info("shutting down")
	if err := manager.Unmount(); err != nil {
		return fmt.Errorf("unmount: %w", err)
	}
	return nil
}

func buildLogger(level, file string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.OutputPaths = []string{"stderr"}
	if file != "" {
		zcfg.OutputPaths = append(zcfg.OutputPaths, file)
	}
	return zcfg.Build()
}
