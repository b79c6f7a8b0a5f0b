package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"Trendline/backend/go/internal/archive"
	"Trendline/backend/go/internal/config"
	"Trendline/backend/go/internal/database/kafka"
	"Trendline/backend/go/internal/database/minio"
	"Trendline/backend/go/internal/database/mongo"
	"Trendline/backend/go/internal/database/redis"
	"Trendline/backend/go/internal/entity"
	"Trendline/backend/go/internal/ingestion"
	"Trendline/backend/go/internal/ledger"
	"Trendline/backend/go/internal/llm"
	"Trendline/backend/go/internal/merger"
	"Trendline/backend/go/internal/models"
	"Trendline/backend/go/internal/scheduler"
	"Trendline/backend/go/internal/state"
	"Trendline/backend/go/internal/tracker"
	"Trendline/backend/go/internal/trend_service/api"
	"Trendline/backend/go/internal/trend_service/consumer"
	"Trendline/backend/go/internal/trend_service/publisher"
	"Trendline/backend/go/internal/trend_service/service"
	"Trendline/backend/go/pkg/httpmiddleware"
	"Trendline/backend/go/pkg/logger"
	"Trendline/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

const defaultConfigPath = "backend/go/internal/config/config.yaml"

func main() {
	// .env 是可选的
	_ = godotenv.Load()

	path := os.Getenv("TRENDLINE_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	serviceLogger := logger.New("TrendService", "", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := entity.Builtins(cfg.Trend.RollupThreshold)
	store := buildStore(ctx, cfg, registry, serviceLogger)

	oracle, err := llm.NewClient(ctx, cfg.LLM, cfg.Middleware.CircuitBreaker)
	if err != nil {
		serviceLogger.WithErr("llm_error", err).Fatal("Failed to create LLM client")
	}

	var mergerOpts []merger.Option
	if cfg.Databases.MinIO.Endpoint != "" {
		mc, err := minio.GetClient(ctx, &cfg.Databases.MinIO, serviceLogger)
		if err != nil {
			serviceLogger.WithErr("minio_error", err).Fatal("Failed to connect to MinIO")
		}
		mergerOpts = append(mergerOpts, merger.WithArchiver(archive.NewMinioArchive(mc, cfg.Databases.MinIO.Bucket)))
	}
	summaryMerger := merger.New(store, oracle, merger.Config{
		MaxSentences:    cfg.Trend.MaxSentences,
		OracleTimeout:   config.Duration(cfg.LLM.Timeout, 60*time.Second),
		AcceptPlainText: !llm.SupportsSchema(oracle),
		Policies:        registry.Policies(),
	}, serviceLogger, mergerOpts...)
	entities := entity.NewService(registry, store, summaryMerger, serviceLogger)

	fetcher := buildFetcher(cfg, serviceLogger)
	globalRef := models.EntityRef{Kind: models.KindGlobal, ID: cfg.Trend.GlobalID}
	newsCycle := service.NewNewsCycle(fetcher, ledger.New(store), summaryMerger, globalRef, cfg.Search.Query, serviceLogger)

	kinds := make([]models.EntityKind, 0, len(cfg.Trend.TrackedKinds))
	for _, k := range cfg.Trend.TrackedKinds {
		kinds = append(kinds, models.EntityKind(k))
	}
	pollTracker := tracker.New(store, kinds, serviceLogger)

	loop := scheduler.New(
		func(ctx context.Context) error {
			_, err := pollTracker.Tick(ctx)
			return err
		},
		newsCycle.Run,
		config.Duration(cfg.Trend.FastInterval, 3*time.Second),
		config.Duration(cfg.Trend.SlowInterval, 600*time.Second),
		config.Duration(cfg.Trend.Sleep, time.Second),
		serviceLogger,
	)

	// Kafka 可选：未配置 brokers 时活动直接同步合并
	var (
		activityPublisher *publisher.ActivityPublisher
		activityConsumer  *consumer.ActivityConsumer
		pub               service.ActivityPublisher
	)
	kafkaCfg := &cfg.Databases.Kafka
	if len(kafkaCfg.Brokers) > 0 {
		if err := kafka.EnsureTopic(kafkaCfg, serviceLogger); err != nil {
			serviceLogger.WithErr("kafka_error", err).Fatal("Failed to prepare Kafka topic")
		}
		activityPublisher = publisher.NewActivityPublisher(kafka.NewWriter(kafkaCfg), kafkaCfg.Topic, serviceLogger)
		activityConsumer = consumer.NewActivityConsumer(kafka.NewReader(kafkaCfg), serviceLogger, consumer.WithRetryable(service.Retryable))
		pub = activityPublisher
	}
	activity := service.NewActivityService(entities, fetcher, pub, globalRef, serviceLogger)
	if activityConsumer != nil {
		activityConsumer.Start(ctx, activity.HandleMessage)
		serviceLogger.Info("Kafka activity consumer started")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = loop.Run(ctx)
	}()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), httpmiddleware.RequestLogger(serviceLogger))
	var writes []gin.HandlerFunc
	if in := cfg.Middleware.RateLimiter.Inbound; cfg.Middleware.RateLimiter.Enabled && in.Rate > 0 {
		writes = append(writes, httpmiddleware.RateLimit(ratelimiter.NewTokenBucket(in.Rate, in.Capacity)))
	}
	stylist := service.NewStylist(entities, activity, oracle, config.Duration(cfg.LLM.Timeout, 60*time.Second), serviceLogger)
	handlers := api.NewAPI(entities, service.NewDashboard(pollTracker, store), activity, stylist, serviceLogger)
	if store.health != nil {
		handlers.AddHealthCheck(store.name, store.health)
	}
	if cfg.Databases.MinIO.Endpoint != "" {
		handlers.AddHealthCheck("minio", minio.HealthCheck)
	}
	api.RegisterRoutes(router, handlers, writes...)

	srv := &http.Server{
		Addr:    cfg.App.HTTPAddr,
		Handler: router,
	}
	go func() {
		serviceLogger.Info("Starting HTTP server on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serviceLogger.WithErr("http_error", err).Fatal("HTTP server failed to start")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	serviceLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		serviceLogger.WithErr("http_error", err).Error("Server forced to shutdown")
	}

	cancel()
	wg.Wait()
	if activityConsumer != nil {
		if err := activityConsumer.Close(); err != nil {
			serviceLogger.WithErr("kafka_error", err).Error("Error closing Kafka consumer")
		}
	}
	if activityPublisher != nil {
		if err := activityPublisher.Close(); err != nil {
			serviceLogger.WithErr("kafka_error", err).Error("Error closing Kafka publisher")
		}
	}
	if store.close != nil {
		if err := store.close(context.Background()); err != nil {
			serviceLogger.WithErr("store_error", err).WithField("backend", store.name).Error("Error closing state store")
		}
	}

	serviceLogger.Info("Server gracefully stopped")
}

// storeBackend is the configured state store together with its connection lifecycle.
type storeBackend struct {
	state.Store
	name   string
	health api.HealthCheck
	close  func(ctx context.Context) error
}

func buildStore(ctx context.Context, cfg *config.AppConfig, registry *entity.Registry, log *logger.Logger) storeBackend {
	switch cfg.Databases.Store.Backend {
	case "redis":
		conn, err := redis.Connect(ctx, &cfg.Databases.Redis, log)
		if err != nil {
			log.WithErr("redis_error", err).Fatal("Failed to connect to Redis")
		}
		return storeBackend{
			Store:  conn.Store(registry.Initializer()),
			name:   "redis",
			health: conn.HealthCheck,
			close:  func(context.Context) error { return conn.Close() },
		}
	case "mongo":
		conn, err := mongo.Connect(ctx, &cfg.Databases.MongoDB, log)
		if err != nil {
			log.WithErr("mongo_error", err).Fatal("Failed to connect to MongoDB")
		}
		s, err := conn.Store(ctx, registry.Initializer())
		if err != nil {
			log.WithErr("mongo_error", err).Fatal("Failed to prepare MongoDB store")
		}
		return storeBackend{Store: s, name: "mongo", health: conn.HealthCheck, close: conn.Close}
	default:
		log.Warn("Using in-memory state store; summaries are lost on restart")
		return storeBackend{Store: state.NewMemoryStore(state.WithMemoryInitializer(registry.Initializer())), name: "memory"}
	}
}

func buildFetcher(cfg *config.AppConfig, log *logger.Logger) *ingestion.Fetcher {
	fetcher, err := ingestion.NewFromConfig(cfg.Search, cfg.Middleware, log)
	if err != nil {
		log.WithErr("http_error", err).Fatal("Failed to create ingestion fetcher")
	}
	return fetcher
}
