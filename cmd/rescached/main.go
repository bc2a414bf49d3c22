// Package main is the entry point for the resource cache server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/prn-tf/rescache/internal/authctx"
	"github.com/prn-tf/rescache/internal/blobstore"
	"github.com/prn-tf/rescache/internal/blobstore/filesystem"
	"github.com/prn-tf/rescache/internal/blobstore/s3"
	"github.com/prn-tf/rescache/internal/config"
	"github.com/prn-tf/rescache/internal/handler"
	"github.com/prn-tf/rescache/internal/lock"
	"github.com/prn-tf/rescache/internal/metrics"
	"github.com/prn-tf/rescache/internal/rescache"
	"github.com/prn-tf/rescache/internal/sharedcache"
	"github.com/prn-tf/rescache/internal/sharedcache/localcache"
	"github.com/prn-tf/rescache/internal/sharedcache/rediscache"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("starting resource cache server")

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx := context.Background()

	blobBackend, err := initBlobBackend(ctx, cfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize blob backend")
	}

	store, redisClient := initSharedCache(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var locker lock.Locker
	if redisClient != nil {
		locker = lock.NewRedisLocker(redisClient)
		log.Info().Msg("using redis-backed distributed lock")
	} else {
		locker = lock.NewMemoryLocker()
		log.Info().Msg("using in-memory lock (single-node mode)")
	}
	lockService := lock.NewService(locker)
	defer lockService.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		log.Info().Int("port", cfg.Metrics.Port).Msg("prometheus metrics enabled")
	}

	service := rescache.NewService(blobBackend, store, lockService, rescache.Config{
		MaxSize:            cfg.Rescache.MaxSize,
		SyncPeriod:         cfg.Rescache.SyncPeriod,
		SyncDelay:          cfg.Rescache.SyncDelay,
		SyncBatch:          cfg.Rescache.SyncBatch,
		CacheExpiration:    cfg.Rescache.CacheExpiration,
		CompressionMinSize: cfg.Rescache.CompressionMinSize,
		QueueKey:           cfg.Rescache.QueueKey,
	}, m, log.Logger)
	defer service.Close()

	resourceHandler := handler.NewResourceHandler(service, cfg.Server.MaxBodySize, log.Logger)

	var authMiddleware func(http.Handler) http.Handler
	if len(cfg.Auth.Tokens) > 0 {
		authMiddleware = authctx.Middleware(authctx.Config{
			Resolver:  authctx.StaticTokens(cfg.Auth.Tokens),
			SkipPaths: cfg.Auth.SkipPaths,
		})
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = metrics.Handler()
	}

	router := handler.NewRouter(handler.RouterConfig{
		ResourceHandler: resourceHandler,
		AuthMiddleware:  authMiddleware,
		MetricsHandler:  metricsHandler,
		Logger:          log.Logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}

// initBlobBackend selects the blob storage backend based on configuration.
func initBlobBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (blobstore.Backend, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return s3.NewBackend(ctx, s3.Config{
			Bucket:          cfg.Storage.S3.Bucket,
			Region:          cfg.Storage.S3.Region,
			Endpoint:        cfg.Storage.S3.Endpoint,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
			UsePathStyle:    cfg.Storage.S3.UsePathStyle,
		}, logger)
	default:
		return filesystem.NewBackend(filesystem.Config{
			DataDir: cfg.Storage.DataDir,
		}, logger)
	}
}

// initSharedCache selects the shared cache backend based on configuration.
// It returns the Redis client alongside the store so main can close it on
// shutdown; both are nil when Redis is disabled.
func initSharedCache(cfg *config.Config) (sharedcache.Store, *redis.Client) {
	if !cfg.Redis.Enabled {
		log.Info().Msg("using in-memory shared cache (single-node mode)")
		return localcache.New(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr(),
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	log.Info().Str("addr", cfg.Redis.Addr()).Msg("using redis shared cache")
	return rediscache.New(client), client
}
