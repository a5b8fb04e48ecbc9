// Command apiserver serves the barplot view API over HTTP with a gRPC health
// endpoint, loading its dataset from the configured source.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/colinvwood/taxa-barplot/internal/application/barplot"
	"github.com/colinvwood/taxa-barplot/internal/bootstrap"
	"github.com/colinvwood/taxa-barplot/internal/config"
	"github.com/colinvwood/taxa-barplot/internal/domain/dataset"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/ingest"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/messaging/kafka"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/prometheus"
	grpcserver "github.com/colinvwood/taxa-barplot/internal/interfaces/grpc"
	httpserver "github.com/colinvwood/taxa-barplot/internal/interfaces/http"
	"github.com/colinvwood/taxa-barplot/internal/interfaces/http/handlers"
	"github.com/colinvwood/taxa-barplot/internal/interfaces/http/middleware"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

const (
	readinessInterval = 5 * time.Second
	consumerGroup     = "taxabar-apiserver"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: TAXABAR_* environment only)")
	httpPort := flag.Int("http-port", 0, "HTTP server port (overrides config)")
	grpcPort := flag.Int("grpc-port", 0, "gRPC server port (overrides config)")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *httpPort > 0 {
		cfg.Server.Port = *httpPort
	}
	if *grpcPort > 0 {
		cfg.GRPC.Port = *grpcPort
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *configPath, logger); err != nil {
		logger.Error("API server exited with error", logging.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, configPath string, logger logging.Logger) error {
	logger.Info("Starting taxabar API server",
		logging.String("version", version),
		logging.String("commit", commit),
		logging.String("dataset_source", cfg.Dataset.Source),
		logging.Int("http_port", cfg.Server.Port))

	var (
		collector prometheus.MetricsCollector
		metrics   = prometheus.NewNopAppMetrics()
	)
	if cfg.Metrics.Enabled {
		c, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			EnableProcessMetrics: true,
			EnableGoMetrics:      true,
		}, logger.Named("metrics"))
		if err != nil {
			return err
		}
		collector = c
		metrics = prometheus.NewAppMetrics(c)
	}

	stack, err := bootstrap.Open(ctx, cfg, logger, bootstrap.Options{Metrics: metrics})
	if err != nil {
		return err
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logger.Warn("Failed to close backends", logging.Err(err))
		}
	}()
	if stack.Publisher != nil {
		ensureTopics(ctx, cfg, stack.Publisher, logger)
	}

	svc := barplot.NewService(stack.ServiceOptions())
	src, label, err := stack.DatasetSource()
	if err != nil {
		return err
	}
	loadInitial(ctx, svc, src, label, logger)

	if cfg.Dataset.Source == config.SourceFile && cfg.Dataset.Watch {
		w, err := ingest.NewWatcher(stack.DirectorySource(), cfg.Dataset.WatchDebounce, logger,
			reloadInto(svc, label, logger), func(err error) {
				logger.Warn("Dataset reload failed", logging.Err(err))
			})
		if err != nil {
			return err
		}
		w.Start()
		defer w.Stop()
	}
	if configPath != "" {
		watchConfig(configPath, cfg, svc, logger)
	}
	if cfg.Kafka.Enabled && stack.Repository != nil {
		consumer, err := kafka.NewConsumer(&cfg.Kafka, consumerGroup, []string{cfg.Kafka.DatasetTopic}, false, logger.Named("consumer"))
		if err != nil {
			return err
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx, importedHandler(svc, stack.Repository, cfg.Dataset.ID, logger)); err != nil {
				logger.Error("Dataset event consumer stopped", logging.Err(err))
			}
		}()
	}

	healthHandler := handlers.NewHealthHandler(version, healthCheckers(svc, stack)...)
	logCfg := middleware.DefaultLoggingConfig()
	logCfg.SlowThreshold = cfg.Server.SlowThreshold
	if cfg.Metrics.Path != "" {
		logCfg.SkipPaths = append(logCfg.SkipPaths, cfg.Metrics.Path)
	}
	router := httpserver.NewRouter(httpserver.RouterConfig{
		ViewHandler:      handlers.NewViewHandler(svc, logger),
		HealthHandler:    healthHandler,
		CORSOrigins:      cfg.Server.CORSOrigins,
		Logging:          logCfg,
		Requests:         metrics,
		Logger:           logger,
		MetricsCollector: collector,
		MetricsPath:      cfg.Metrics.Path,
	})
	httpSrv := httpserver.NewServer(cfg.Server, router, logger)

	var grpcSrv *grpcserver.Server
	if cfg.GRPC.Enabled {
		grpcSrv, err = grpcserver.NewServer(cfg.Server.Host, cfg.GRPC, grpcserver.WithLogger(logger))
		if err != nil {
			return err
		}
	}

	errCh := make(chan error, 2)
	go func() { errCh <- httpSrv.Start() }()
	if grpcSrv != nil {
		go grpcSrv.TrackReadiness(ctx, svc.Ready, readinessInterval)
		go func() { errCh <- grpcSrv.Start() }()
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err = <-errCh:
		if err != nil {
			logger.Error("Server failed", logging.Err(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if grpcSrv != nil {
		grpcSrv.Stop(shutdownCtx)
	}
	if stopErr := httpSrv.Stop(shutdownCtx); stopErr != nil {
		logger.Error("HTTP server shutdown error", logging.Err(stopErr))
	}
	logger.Info("Servers stopped")
	return err
}

// loadInitial leaves the service unready on failure; readiness reports it
// and a watcher or import event may still supply the dataset.
func loadInitial(ctx context.Context, svc barplot.Service, src dataset.Source, label string, logger logging.Logger) {
	d, err := src.Load(ctx)
	if err == nil {
		err = svc.Load(ctx, d, label)
	}
	if err != nil {
		logger.Error("Initial dataset load failed", logging.String("source", label), logging.Err(err))
		return
	}
	sum, _ := svc.Current()
	logger.Info("Dataset loaded",
		logging.String("dataset_id", sum.ID),
		logging.Int("features", sum.FeatureCount),
		logging.Int("samples", sum.SampleCount))
}

func ensureTopics(ctx context.Context, cfg *config.Config, pub *kafka.EventPublisher, logger logging.Logger) {
	tm, err := kafka.NewTopicManager(cfg.Kafka.Brokers, logger.Named("kafka"))
	if err != nil {
		logger.Warn("Kafka topic manager unavailable", logging.Err(err))
		return
	}
	defer tm.Close()
	if err := tm.EnsureTopics(ctx, 1, pub.Topics()...); err != nil {
		logger.Warn("Failed to ensure Kafka topics", logging.Err(err))
	}
}

// watchConfig applies the hot-reloadable log level and view defaults.
func watchConfig(path string, cfg *config.Config, svc barplot.Service, logger logging.Logger) {
	err := config.Watch(path, configReloader(cfg.View, svc, logger), func(err error) {
		logger.Warn("Ignoring invalid config change", logging.Err(err))
	})
	if err != nil {
		logger.Warn("Config watch disabled", logging.Err(err))
	}
}
