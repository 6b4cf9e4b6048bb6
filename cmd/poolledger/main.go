package main

import (
	"PoolLedger/internal/config"
	"PoolLedger/internal/core"
	"PoolLedger/internal/event"
	"PoolLedger/internal/ingestion"
	"PoolLedger/internal/metadata"
	"PoolLedger/internal/observability"
	"PoolLedger/internal/persistence"
	"PoolLedger/internal/pool"
	"PoolLedger/internal/pricing"
	"PoolLedger/internal/query"
	"PoolLedger/internal/server"
	"PoolLedger/internal/store"
	"PoolLedger/migrations"
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// drainTimeout bounds how long shutdown waits for the persistence worker.
const drainTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		bootLogger := observability.NewLogger("main")
		bootLogger.Fatal().Err(err).Msg("load config")
	}

	level := observability.ParseLogLevel(cfg.LogLevel)
	componentLogger := func(component string) zerolog.Logger {
		return observability.NewLoggerWithLevel(component, level)
	}
	logger := componentLogger("main")
	logger.Info().Msg("PoolLedger starting")

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("postgres ping")
	}
	logger.Info().Msg("postgres connected")

	// --- Run SQL migrations ---
	var migrationFS fs.FS = migrations.FS
	if cfg.MigrationsDir != "" {
		migrationFS = os.DirFS(cfg.MigrationsDir)
	}
	applied, err := persistence.NewMigrator(db, migrationFS, componentLogger("migrator")).Up(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}
	logger.Info().Int("applied", applied).Msg("migrations up to date")

	// --- Observability ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	healthChecker := observability.NewHealthChecker()

	// --- Domain wiring ---
	provider, err := newMetadataProvider(ctx, cfg, metrics, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("metadata provider")
	}
	normalizer := pricing.NewNormalizer(cfg.FXAggregators, cfg.XAUToken, metrics, componentLogger("pricing"))
	reducer := pool.NewReducer(provider, normalizer, cfg.VaultAddress, componentLogger("reducer"))

	// --- Channels ---
	// The persist channel blocks (backpressure); the publish channel drops.
	persistCoreChan := make(chan core.CoreOutput, cfg.PersistChanSize)
	publishCoreChan := make(chan core.CoreOutput, cfg.PublishChanSize)
	persistWorkerChan := make(chan persistence.CoreOutput, cfg.PersistChanSize)
	publishWorkerChan := make(chan ingestion.PublishableEvent, cfg.PublishChanSize)

	engine, err := core.NewEngine(store.NewMemoryStore(), reducer, core.EngineConfig{
		LRUCapacity: cfg.IdempotencyLRUCapacity,
		PersistChan: persistCoreChan,
		PublishChan: publishCoreChan,
		DBChecker:   persistence.NewPostgresIdempotencyChecker(db),
		Metrics:     metrics,
		Logger:      componentLogger("engine"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create engine")
	}

	// --- Recovery: checkpoint + replay ---
	checkpointMgr := persistence.NewCheckpointManager(db)
	if err := recoverEngine(ctx, engine, checkpointMgr, cfg.ReplayBatchSize, logger); err != nil {
		logger.Fatal().Err(err).Msg("recovery failed")
	}
	checkpoints := newCheckpointer(engine, checkpointMgr, cfg.CheckpointsKept, metrics, componentLogger("checkpoint"))

	// --- Workers ---
	errChan := make(chan error, 8)
	var workers sync.WaitGroup

	persistWorker := persistence.NewPersistenceWorker(
		db, persistWorkerChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout, metrics, componentLogger("persistence"),
	)
	// The worker stops when its input closes, after the engine has drained.
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	persistDone := make(chan struct{})
	go func() {
		defer close(persistDone)
		if err := persistWorker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- err
		}
	}()

	workers.Add(2)
	go func() {
		defer workers.Done()
		bridgePersistOutputs(persistCoreChan, persistWorkerChan, componentLogger("bridge"))
	}()
	go func() {
		defer workers.Done()
		bridgePublishOutputs(publishCoreChan, publishWorkerChan, metrics)
	}()

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL, componentLogger("nats"))
	if err != nil {
		logger.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		logger.Fatal().Err(err).Msg("ensure inbound stream")
	}
	if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
		logger.Fatal().Err(err).Msg("ensure outbound stream")
	}

	publisher := ingestion.NewOutboundPublisher(js, publishWorkerChan, componentLogger("publisher"))
	go func() {
		if err := publisher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- err
		}
	}()

	rawEventChan := make(chan ingestion.RawEvent, 1)
	subscriber := ingestion.NewNATSSubscriber(js, rawEventChan, componentLogger("subscriber"))

	adminEventChan := make(chan event.Event, 64)
	var ingest sync.WaitGroup
	ingest.Add(2)
	go func() {
		defer ingest.Done()
		runIngestionLoop(ctx, engine, rawEventChan, componentLogger("ingestion"))
	}()
	go func() {
		defer ingest.Done()
		runAdminLoop(ctx, engine, adminEventChan, componentLogger("admin"))
	}()

	if err := subscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		logger.Fatal().Err(err).Msg("nats subscribe")
	}

	// --- API servers ---
	srv := server.NewServer(cfg.GRPCAddr, cfg.HTTPAddr, &server.ServerDeps{
		QueryService:  query.NewQueryService(db, cfg.VaultAddress),
		IngestService: ingestion.NewAdminIngestService(adminEventChan),
		Engine:        engine,
		Checkpoint:    checkpoints.Take,
		HealthChecker: healthChecker,
		Metrics:       metrics,
		Logger:        componentLogger("server"),
	})
	go func() {
		if err := srv.StartGRPC(ctx); err != nil {
			errChan <- err
		}
	}()
	go func() {
		if err := srv.StartHTTP(ctx); err != nil {
			errChan <- err
		}
	}()

	metricsServer := startMetricsServer(cfg.MetricsAddr, registry, healthChecker, errChan)

	// --- Periodic checkpoints ---
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()
	if _, err := scheduler.Every(cfg.CheckpointInterval).Do(func() {
		if _, err := checkpoints.Take(ctx); err != nil {
			logger.Error().Err(err).Msg("periodic checkpoint failed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Msg("schedule checkpoints")
	}
	scheduler.StartAsync()

	healthChecker.SetReady(true)
	srv.SetServing(true)
	logger.Info().
		Int64("sequence", engine.GetSequence()).
		Str("grpc", cfg.GRPCAddr).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Msg("PoolLedger ready")

	// --- Wait for shutdown ---
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("component failed, shutting down")
	}

	healthChecker.SetReady(false)
	srv.SetServing(false)
	scheduler.Stop()
	subscriber.Stop()
	cancel()

	// No engine writes after this point, so the output channels can close.
	ingest.Wait()
	close(persistCoreChan)
	close(publishCoreChan)
	workers.Wait()

	select {
	case <-persistDone:
	case <-time.After(drainTimeout):
		logger.Error().Msg("persistence drain timed out")
		cancelWorker()
		<-persistDone
	}

	finalCtx, finalCancel := context.WithTimeout(context.Background(), drainTimeout)
	defer finalCancel()
	if seq, err := checkpoints.Take(finalCtx); err != nil {
		logger.Error().Err(err).Msg("final checkpoint failed")
	} else {
		logger.Info().Int64("sequence", seq).Msg("final checkpoint saved")
	}

	metricsServer.Shutdown(finalCtx)
	logger.Info().Msg("PoolLedger stopped")
}

// newMetadataProvider reads on-chain metadata through Multicall3 behind a
// cache. Without an RPC endpoint every read reports failure and the
// reducer falls back to its documented defaults.
func newMetadataProvider(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger zerolog.Logger) (metadata.Provider, error) {
	if cfg.RPCURL == "" {
		logger.Warn().Msg("POOL_RPC_URL not set, contract reads disabled")
		return metadata.NewStaticProvider(), nil
	}

	mc, err := metadata.NewMulticallProvider(ctx, metadata.MulticallConfig{
		RPCURL:   cfg.RPCURL,
		Timeout:  cfg.MetadataCallTimeout,
		Attempts: cfg.MetadataCallAttempts,
	}, metrics)
	if err != nil {
		return nil, err
	}
	c, err := metadata.NewCache(cfg.MetadataCacheEntries)
	if err != nil {
		return nil, err
	}
	return metadata.NewCachedProvider(mc, c, cfg.MetadataCacheTTL, metrics), nil
}

func startMetricsServer(addr string, reg *prometheus.Registry, health *observability.HealthChecker, errChan chan<- error) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", health.LivenessHandler)
	mux.HandleFunc("/readyz", health.ReadinessHandler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	return srv
}
