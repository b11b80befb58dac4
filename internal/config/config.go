package config

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
)

type Config struct {
	Server    ServerConfig
	Session   SessionConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Telemetry TelemetryConfig
	Booth     BoothConfig
}

type ServerConfig struct {
	Addr string
}

type SessionConfig struct {
	TTL             time.Duration
	JanitorInterval time.Duration
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency      int
	MaxActiveRenders int
	ProcessedPrefix  string
}

type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

type DatabaseConfig struct {
	DSN string
}

type RateLimitConfig struct {
	Capacity int
	Window   time.Duration
}

type WebhookConfig struct {
	URL           string
	SigningSecret string
}

type TelemetryConfig struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

// BoothConfig drives the headless one-shot capture binary. A non-zero
// PresignTTL makes the booth print a presigned link instead of the public
// URL, for buckets that are not world readable.
type BoothConfig struct {
	CameraDevice int
	Filter       string
	Width        int
	Height       int
	PresignTTL   time.Duration
}

func Load() Config {
	defaultRenderSlots := max(1, runtime.NumCPU()/2)

	return Config{
		Server: ServerConfig{
			Addr: env("SNAPBOOTH_ADDR", ":8080"),
		},
		Session: SessionConfig{
			TTL:             envDuration("SNAPBOOTH_SESSION_TTL", 10*time.Minute),
			JanitorInterval: envDuration("SNAPBOOTH_SESSION_JANITOR_INTERVAL", time.Minute),
		},
		Queue: QueueConfig{
			RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
			RedisPassword: env("REDIS_PASSWORD", ""),
			RedisDB:       envInt("REDIS_DB", 0),
			Name:          env("ASYNC_QUEUE", "default"),
		},
		Worker: WorkerConfig{
			Concurrency:      envInt("WORKER_CONCURRENCY", max(2, runtime.NumCPU())),
			MaxActiveRenders: envInt("WORKER_MAX_ACTIVE_RENDERS", defaultRenderSlots),
			ProcessedPrefix:  env("WORKER_PROCESSED_PREFIX", "processed"),
		},
		Storage: StorageConfig{
			Endpoint:      env("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey:     env("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey:     env("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:        env("MINIO_BUCKET", "snapbooth-photos"),
			UseSSL:        envBool("MINIO_USE_SSL", false),
			PublicBaseURL: env("SNAPBOOTH_PUBLIC_BASE_URL", ""),
		},
		Database: DatabaseConfig{
			DSN: env("POSTGRES_DSN", ""),
		},
		RateLimit: RateLimitConfig{
			Capacity: envInt("SNAPBOOTH_RATE_LIMIT_CAPACITY", 30),
			Window:   envDuration("SNAPBOOTH_RATE_LIMIT_WINDOW", time.Minute),
		},
		Webhook: WebhookConfig{
			URL:           env("SNAPBOOTH_WEBHOOK_URL", ""),
			SigningSecret: env("SNAPBOOTH_WEBHOOK_SECRET", ""),
		},
		Telemetry: TelemetryConfig{
			Exporter:     env("SNAPBOOTH_TRACE_EXPORTER", "none"),
			OTLPEndpoint: env("SNAPBOOTH_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("SNAPBOOTH_OTLP_INSECURE", false),
		},
		Booth: BoothConfig{
			CameraDevice: envInt("SNAPBOOTH_CAMERA_DEVICE", 0),
			Filter:       env("SNAPBOOTH_BOOTH_FILTER", "classic"),
			Width:        envInt("SNAPBOOTH_CAMERA_WIDTH", 1280),
			Height:       envInt("SNAPBOOTH_CAMERA_HEIGHT", 720),
			PresignTTL:   envDuration("SNAPBOOTH_PRESIGN_TTL", 0),
		},
	}
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
