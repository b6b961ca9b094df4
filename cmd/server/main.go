package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"civreg/internal/event/draft"
	"civreg/internal/event/feed"
	"civreg/internal/event/ledger"
	"civreg/internal/event/projection"
	eventstore "civreg/internal/event/store"
	memorystore "civreg/internal/event/store/memory"
	postgresstore "civreg/internal/event/store/postgres"
	"civreg/internal/event/validation"
	"civreg/internal/health"
	"civreg/internal/platform/config"
	"civreg/internal/platform/httpserver"
	"civreg/internal/platform/kafka/producer"
	"civreg/internal/platform/logger"
	"civreg/internal/platform/metrics"
	"civreg/internal/platform/postgres"
	platformredis "civreg/internal/platform/redis"
	"civreg/internal/storage"
	httptransport "civreg/internal/transport/http"
)

// main wires dependencies and keeps the lifecycle small. Business logic
// lives in the internal packages.
func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	meter := metrics.New()

	var checks []health.Check

	// Store: Postgres when configured, in-memory for local development.
	var st eventstore.Store
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgresstore.Migrate(ctx, db); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		st = postgresstore.New(db)
		checks = append(checks, health.Check{Name: "postgres", Probe: db.PingContext})
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store")
		st = memorystore.New()
	}

	// Projection cache: optional.
	var cache ledger.ProjectionCache
	redisClient, err := platformredis.New(ctx, cfg.RedisURL, platformredis.Options{
		PoolSize:     cfg.RedisPoolSize,
		DialTimeout:  cfg.RedisDialTimeout,
		ReadTimeout:  cfg.RedisReadTimeout,
		WriteTimeout: cfg.RedisWriteTimeout,
	})
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		cache = projection.New(redisClient.Client, cfg.ProjectionTTL, log)
		checks = append(checks, health.Check{Name: "redis", Probe: redisClient.Health})
	}

	// File storage client for attachment GC.
	var files storage.Client
	if cfg.StorageURL != "" {
		httpFiles := storage.NewHTTPClient(cfg.StorageURL, cfg.StorageTimeout)
		files = httpFiles
		checks = append(checks, health.Check{Name: "storage", Probe: httpFiles.Health})
	}

	drafts := draft.NewManager(st, files, log, meter)
	schemas := validation.DefaultSchemas()
	svc := ledger.NewService(st, drafts, cache, schemas, log, meter)

	// Change feed: outbox poller publishing to Kafka when brokers are set.
	var feedWorker *feed.Worker
	if len(cfg.KafkaBrokers) > 0 {
		pub, err := producer.New(cfg.KafkaBrokers, cfg.FeedTopic)
		if err != nil {
			log.Error("kafka unavailable", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		feedWorker = feed.NewWorker(st, pub, log, meter, cfg.OutboxInterval)
		checks = append(checks, health.Check{Name: "kafka", Probe: pub.Health})
	} else {
		log.Warn("KAFKA_BROKERS not set, change feed disabled")
	}

	checker := health.NewChecker(checks...)
	handler := httptransport.NewHandler(svc, drafts, checker, log, meter, cfg.AwaitMaxWait)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler))

	workerDone := make(chan struct{})
	if feedWorker != nil {
		go func() {
			defer close(workerDone)
			if err := feedWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("feed worker stopped", "error", err)
			}
		}()
	} else {
		close(workerDone)
	}

	go func() {
		log.Info("starting civreg", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	<-workerDone

	// One last outbox pass so committed actions reach the feed before exit.
	if feedWorker != nil {
		if err := feedWorker.Drain(shutdownCtx); err != nil {
			log.Warn("final outbox drain incomplete", "error", err)
		}
	}
}
