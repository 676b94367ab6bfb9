package main

import (
	"context"
	"net/http"
	"os"

	"github.com/Ireoluwatomide/swift-track-relay/internal/api"
	"github.com/Ireoluwatomide/swift-track-relay/internal/app"
	"github.com/Ireoluwatomide/swift-track-relay/internal/auth"
	"github.com/Ireoluwatomide/swift-track-relay/internal/config"
	"github.com/Ireoluwatomide/swift-track-relay/internal/debug"
	"github.com/Ireoluwatomide/swift-track-relay/internal/dispatch"
	"github.com/Ireoluwatomide/swift-track-relay/internal/domain"
	"github.com/Ireoluwatomide/swift-track-relay/internal/history"
	"github.com/Ireoluwatomide/swift-track-relay/internal/ingest"
	"github.com/Ireoluwatomide/swift-track-relay/internal/lifecycle"
	"github.com/Ireoluwatomide/swift-track-relay/internal/logging"
	"github.com/Ireoluwatomide/swift-track-relay/internal/logstream"
	_ "github.com/Ireoluwatomide/swift-track-relay/internal/observability/otel"
	_ "github.com/Ireoluwatomide/swift-track-relay/internal/observability/prometheus"
	"github.com/Ireoluwatomide/swift-track-relay/internal/registry"
	"github.com/Ireoluwatomide/swift-track-relay/internal/snapshot"
	"github.com/Ireoluwatomide/swift-track-relay/internal/stream"
)

func main() {
	logging.Init()
	log := logging.Component("main")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	services, err := app.Init(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}
	log.Info("connected to redis", "pool_size", cfg.Redis.PoolSize)

	snapshots := snapshot.NewStore(services.Redis).WithTTL(cfg.Redis.SnapshotTTL)
	streams := stream.NewStreams(cfg.Stream.RingSize, cfg.Stream.SkewThreshold)
	dispatcher := dispatch.New(streams, services.Metrics, cfg.Dispatch.QueueDepth, cfg.Dispatch.SendTimeout)

	codec := auth.NewTokenCodec(cfg.Auth.SigningKey, cfg.Auth.TokenTTL)
	deliveries := domain.NewStaticLifecycle()
	if cfg.Auth.AllowUnknownDeliveries {
		deliveries.AllowUnknown()
		log.Warn("unknown delivery IDs are accepted; disable ALLOW_UNKNOWN_DELIVERIES in production")
	}
	reg := registry.New(auth.NewTokenAuthorizer(codec), deliveries)

	// Durable history is optional; without it the ring and the Redis
	// snapshot are the only retention.
	var (
		historyStore *history.Store
		sink         *history.Sink
		retention    *history.Retention
		recorder     ingest.HistoryRecorder
	)
	if services.Pool != nil {
		historyStore = history.NewStore(services.Pool)
		sink = history.NewSink(historyStore, services.Metrics).
			WithBuffering(cfg.History.BufferSize, cfg.History.BatchSize, cfg.History.FlushInterval)
		sink.Start(ctx)
		recorder = sink
		retention = history.NewRetention(historyStore, cfg.History.Retention, cfg.History.PruneInterval)
		retention.Start(ctx)
		log.Info("history sink enabled",
			"batch_size", cfg.History.BatchSize,
			"flush_interval", cfg.History.FlushInterval,
			"retention", cfg.History.Retention,
		)
	}

	gateway := ingest.New(reg, streams, dispatcher, deliveries, snapshots, recorder, services.Metrics, cfg.Ingest.MinReportInterval)

	activityHub := logstream.NewHub(0)
	activity := logstream.NewTrackLogger(activityHub)
	gateway.SetActivity(activity)

	manager := lifecycle.NewManager(lifecycle.Config{
		CheckInterval: cfg.Lifecycle.CheckInterval,
		StaleTimeout:  cfg.Lifecycle.StaleTimeout,
		CloseTimeout:  cfg.Lifecycle.CloseTimeout,
		StreamTTL:     cfg.Stream.TTL,
	}, reg, streams, dispatcher, deliveries, snapshots, services.Metrics)
	manager.SetActivity(activity)
	manager.Start(ctx)

	serverCfg := api.ServerConfig{
		MetricsHandler: services.MetricsHandler,
		Metrics:        services.Metrics,
		Tracer:         services.Tracer,
		Snapshots:      snapshots,
		AdminKey:       cfg.Auth.AdminKey,
		Inspector:      debug.NewInspector(reg, streams, dispatcher),
		Activity:       activityHub,
		ActivityLog:    activity,
	}
	if historyStore != nil {
		serverCfg.History = historyStore
	}
	server := api.NewServer(reg, streams, gateway, dispatcher, manager, deliveries, codec, serverCfg)

	// No global read/write deadlines: the socket and SSE transports hold
	// their connections open far longer than any REST request. REST routes
	// carry their own timeout middleware.
	httpServer := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: cfg.API.ReadTimeout,
		IdleTimeout:       cfg.API.IdleTimeout,
	}

	go func() {
		log.Info("starting relay", "addr", cfg.API.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	app.WaitForShutdown()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	manager.Stop()
	if retention != nil {
		retention.Stop()
	}
	if sink != nil {
		sink.Stop()
	}
	services.Close(shutdownCtx)
	log.Info("relay stopped")
}
