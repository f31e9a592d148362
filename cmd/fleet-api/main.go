// Package main runs the fleet tracker daemon.
//
// The daemon aggregates submarine reports from every configured feed
// (HTTP and WebSocket pushes, NATS, Kafka, snapshot files), maintains the
// merged fleet state, and serves it over the HTTP API.
//
// Usage:
//
//	fleet-api [options]
//
// Options:
//
//	-config PATH        YAML file overlaying the environment
//	-port N             HTTP port (default: 8080, env: FLEET_HTTP_PORT)
//	-auth               Enable API key authentication (env: FLEET_AUTH_ENABLED)
//	-api-keys KEYS      Comma-separated list of valid API keys (env: FLEET_API_KEYS)
//	-driver NAME        State backend, sqlite or postgres (env: FLEET_STORAGE_DRIVER)
//	-refdb PATH         Reference database path (env: FLEET_REFERENCE_DB)
//	-log-level LEVEL    debug, info, warn, or error (env: FLEET_LOG_LEVEL)
//
// Precedence is flag > file > environment > default. Feeds are opt-in:
// an empty NATS URL, Kafka broker list, or snapshot path list leaves the
// corresponding consumer off.
//
// API Endpoints:
//
//	GET    /api/v1/health
//	GET    /api/v1/fleet
//	GET    /api/v1/fleet/summary
//	GET    /api/v1/estimates
//	GET    /api/v1/estimates/{fc_id}
//	GET    /api/v1/activity
//	GET    /api/v1/history/daily
//	POST   /api/v1/ingest/{source}
//	DELETE /api/v1/ingest/{source}
//	GET    /api/v1/ws
//	GET    /metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"fleet_tracker/internal/activity"
	"fleet_tracker/internal/aggregator"
	"fleet_tracker/internal/api"
	"fleet_tracker/internal/config"
	"fleet_tracker/internal/estimator"
	"fleet_tracker/internal/feed"
	"fleet_tracker/internal/refdata"
	"fleet_tracker/internal/stats"
	"fleet_tracker/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "HTTP port")
	authEnabled := flag.Bool("auth", false, "Enable API key authentication")
	apiKeys := flag.String("api-keys", "", "Comma-separated list of valid API keys")
	driver := flag.String("driver", "", "State backend: sqlite or postgres")
	refPath := flag.String("refdb", "", "Reference database path")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.HTTPPort = *port
		case "auth":
			cfg.AuthEnabled = *authEnabled
		case "api-keys":
			cfg.APIKeys = splitKeys(*apiKeys)
		case "driver":
			cfg.Storage.Driver = *driver
		case "refdb":
			cfg.Reference.Path = *refPath
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.Open(ctx, cfg.StorageConfig())
	if err != nil {
		logger.Error("opening storage", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// The tracker keeps working without reference data; views and
	// estimates degrade to zero route figures.
	var provider refdata.Provider
	refDB, err := refdata.OpenDB(cfg.Reference.Path)
	if err != nil {
		logger.Warn("reference data unavailable", "path", cfg.Reference.Path, "error", err)
	} else {
		provider = refDB
		defer refDB.Close()
	}

	if refDB != nil && cfg.RouteStats.URL != "" {
		refresher := refdata.NewRouteStatsRefresher(refDB, cfg.RouteStats.URL, cfg.RouteStats.Interval.Std(), logger)
		go refresher.Run(ctx)
	}

	var events activity.Store = db.State
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.ActivityTopic != "" {
		publisher := feed.NewActivityPublisher(cfg.Kafka.Brokers, cfg.Kafka.ActivityTopic, logger)
		defer publisher.Close()
		events = feed.NewPublishingStore(db.State, publisher, logger)
	}
	tracker := activity.NewTracker(provider, events, logger)

	// The recorder always records somewhere; the API only gets an archive
	// when voyage history is really on, so /history reports unavailable
	// instead of serving empty charts.
	recorderArchive := stats.Archive(stats.NoopArchive{})
	var historyArchive stats.Archive
	if db.Archive != nil {
		recorderArchive = db.Archive
		historyArchive = db.Archive
	}
	recorder := stats.NewRecorder(provider, recorderArchive, logger)

	manager := aggregator.New(provider, db.State, tracker, recorder, logger)
	if err := manager.LoadSaved(ctx); err != nil {
		logger.Warn("restoring saved sources", "error", err)
	}

	for _, fcID := range cfg.HiddenFCs {
		if err := db.State.SetFCHidden(ctx, fcID, true); err != nil {
			logger.Warn("hiding fc", "fc", fcID, "error", err)
		}
	}

	keyring := feed.NewKeyring(cfg.AuthEnabled, cfg.APIKeys)
	processor := feed.NewProcessor(manager, keyring, logger)

	if cfg.NATS.URL != "" {
		consumer := feed.NewNATSConsumer(feed.NATSConfig{URL: cfg.NATS.URL, Subject: cfg.NATS.Subject}, processor, logger)
		if err := consumer.Start(); err != nil {
			logger.Error("starting nats consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Stop()
	}
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.IngestTopic != "" {
		consumer := feed.NewKafkaConsumer(feed.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.IngestTopic}, processor, logger)
		go consumer.Run(ctx)
	}
	if len(cfg.Snapshots.Paths) > 0 {
		watcher := feed.NewSnapshotWatcher(cfg.Snapshots.Paths, cfg.Snapshots.Interval.Std(), manager, logger)
		go watcher.Run(ctx)
	}

	server := api.New(api.Deps{
		Manager:   manager,
		Ref:       provider,
		Estimator: estimator.New(provider),
		Events:    events,
		Archive:   historyArchive,
		Processor: processor,
		Logger:    logger,
	}, api.Config{
		Port:        cfg.HTTPPort,
		AuthEnabled: cfg.AuthEnabled,
		APIKeys:     cfg.APIKeys,
	})

	go func() {
		sigCh := make(chan os.Signal, 2)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	if err := server.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("api server", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

func splitKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
