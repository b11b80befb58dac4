package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dotframe/snapbooth/internal/camera"
	"github.com/dotframe/snapbooth/internal/config"
	"github.com/dotframe/snapbooth/internal/queue"
	"github.com/dotframe/snapbooth/internal/ratelimit"
	"github.com/dotframe/snapbooth/internal/session"
	"github.com/dotframe/snapbooth/internal/storage"
	"github.com/dotframe/snapbooth/internal/store"
	"github.com/dotframe/snapbooth/internal/telemetry"
	"github.com/dotframe/snapbooth/internal/web"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "snapbooth-api",
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	objectStore, err := storage.NewClient(storage.Config{
		Endpoint:      cfg.Storage.Endpoint,
		Access:        cfg.Storage.AccessKey,
		Secret:        cfg.Storage.SecretKey,
		Bucket:        cfg.Storage.Bucket,
		UseSSL:        cfg.Storage.UseSSL,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	})
	if err != nil {
		logger.Fatalf("object storage client failed: %v", err)
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Fatalf("ensure bucket %s failed: %v", objectStore.Bucket(), err)
	}

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	records, closeRecords, err := newRecordStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("record store failed: %v", err)
	}
	defer closeRecords()

	sessions := session.NewManager(logger, objectStore, func() camera.Device {
		return camera.NewRemoteDevice()
	}, cfg.Session.TTL)
	defer sessions.Close()
	go sessions.Janitor(ctx, cfg.Session.JanitorInterval)

	app := web.NewServer(logger, sessions, records, queueClient, objectStore)
	if cfg.Telemetry.Exporter != "none" {
		app.EnableTracing()
	}
	wireRateLimiter(app, cfg, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Println("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func newRecordStore(ctx context.Context, cfg config.Config, logger *log.Logger) (store.RecordStore, func(), error) {
	if cfg.Database.DSN == "" {
		logger.Println("no POSTGRES_DSN set, capture records are in-memory")
		return store.NewMemoryRecordStore(), func() {}, nil
	}

	pg, err := store.NewPostgresRecordStore(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, err
	}
	return pg, func() {
		if err := pg.Close(); err != nil {
			logger.Printf("record store close error: %v", err)
		}
	}, nil
}

func wireRateLimiter(app *web.Server, cfg config.Config, logger *log.Logger) {
	if cfg.RateLimit.Capacity <= 0 {
		return
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		DB:       cfg.Queue.RedisDB,
	})
	limiter, err := ratelimit.NewRedisTokenBucket(client, cfg.RateLimit.Capacity, cfg.RateLimit.Window, "snapbooth:ratelimit")
	if err != nil {
		logger.Printf("rate limiter disabled: %v", err)
		return
	}
	app.SetRateLimiter(limiter)
}
