package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/dotframe/snapbooth/internal/config"
	"github.com/dotframe/snapbooth/internal/render"
	"github.com/dotframe/snapbooth/internal/storage"
	"github.com/dotframe/snapbooth/internal/store"
	"github.com/dotframe/snapbooth/internal/telemetry"
	"github.com/dotframe/snapbooth/internal/webhook"
	"github.com/dotframe/snapbooth/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmsgprefix)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "snapbooth-worker",
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

	if err := render.Startup(); err != nil {
		logger.Fatalf("render runtime startup failed: %v", err)
	}
	defer render.Shutdown()

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

	records, closeRecords, err := newRecordStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("record store failed: %v", err)
	}
	defer closeRecords()

	var webhookClient *webhook.Client
	if cfg.Webhook.URL != "" {
		webhookClient = webhook.NewClient(webhook.Config{
			SigningSecret: cfg.Webhook.SigningSecret,
			MaxAttempts:   3,
		})
	}

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, cfg.Webhook, objectStore, webhookClient, records)
	if err != nil {
		logger.Fatalf("worker setup failed: %v", err)
	}

	go func() {
		addr := ":9091"
		logger.Printf("worker metrics on %s/metrics", addr)
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", srv.MetricsHandler())
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Printf("metrics server stopped: %v", err)
		}
	}()

	logger.Printf(
		"starting worker concurrency=%d max_active_renders=%d queue=%s redis=%s",
		cfg.Worker.Concurrency,
		cfg.Worker.MaxActiveRenders,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
	)

	if err := srv.Run(); err != nil {
		logger.Fatalf("worker failed: %v", err)
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
