package worker

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"path"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dotframe/snapbooth/internal/config"
	"github.com/dotframe/snapbooth/internal/domain"
	"github.com/dotframe/snapbooth/internal/filter"
	"github.com/dotframe/snapbooth/internal/queue"
	"github.com/dotframe/snapbooth/internal/render"
	"github.com/dotframe/snapbooth/internal/storage"
	"github.com/dotframe/snapbooth/internal/store"
	"github.com/dotframe/snapbooth/internal/webhook"
)

// Server renders filter derivatives out of band: it never touches the
// capture session, only the bucket and the record trail.
type Server struct {
	logger          *log.Logger
	server          *asynq.Server
	sem             chan struct{}
	objects         objectStore
	renderer        render.Renderer
	records         store.RecordStore
	webhookClient   webhookSender
	webhookURL      string
	processedPrefix string
	metrics         *metrics
	tracer          trace.Tracer
}

type objectStore interface {
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
	Upload(ctx context.Context, objectKey string, data []byte, contentType, cacheControl string) error
	PublicURL(objectKey string) string
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	webhookCfg config.WebhookConfig,
	storageClient *storage.Client,
	webhookClient *webhook.Client,
	records store.RecordStore,
) (*Server, error) {
	if storageClient == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if records == nil {
		return nil, fmt.Errorf("record store is required")
	}

	renderer, err := render.New()
	if err != nil {
		return nil, fmt.Errorf("initialize renderer: %w", err)
	}

	processedPrefix := workerCfg.ProcessedPrefix
	if processedPrefix == "" {
		processedPrefix = "processed"
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:             make(chan struct{}, max(1, workerCfg.MaxActiveRenders)),
		objects:         storageClient,
		renderer:        renderer,
		records:         records,
		webhookClient:   webhookClient,
		webhookURL:      webhookCfg.URL,
		processedPrefix: processedPrefix,
		metrics:         newMetrics(),
		tracer:          otel.Tracer("snapbooth/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeRenderPhoto, s.handleRenderPhoto)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleRenderPhoto(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.RecordStatusRenderFailed

	payload, err := queue.ParseRenderPhotoPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.render_photo", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("record.id", payload.RecordID),
		attribute.String("record.filter", payload.FilterID),
		attribute.String("record.object_key", payload.ObjectKey),
	)
	defer span.End()
	defer func() {
		s.metrics.renderDuration.WithLabelValues(payload.FilterID, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.rendersTotal.WithLabelValues(payload.FilterID, outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeRenders.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeRenders.Dec()
	}()

	s.logger.Printf("Rendering... record_id=%s filter=%s object_key=%s", payload.RecordID, payload.FilterID, payload.ObjectKey)

	chosen, err := filter.Lookup(payload.FilterID)
	if err != nil {
		s.failRender(ctx, span, payload, err)
		return fmt.Errorf("lookup filter: %v: %w", err, asynq.SkipRetry)
	}

	// A record can outlive its object when the bucket is pruned; retrying
	// will not bring the original back.
	exists, err := s.objects.ObjectExists(ctx, payload.ObjectKey)
	if err != nil {
		s.failRender(ctx, span, payload, err)
		return fmt.Errorf("check original %s: %w", payload.ObjectKey, err)
	}
	if !exists {
		cause := fmt.Errorf("original %s is gone", payload.ObjectKey)
		s.failRender(ctx, span, payload, cause)
		return fmt.Errorf("%v: %w", cause, asynq.SkipRetry)
	}

	s.updateRecordStatus(ctx, payload.RecordID, domain.RecordStatusRendering)

	original, err := s.objects.ReadObject(ctx, payload.ObjectKey)
	if err != nil {
		s.failRender(ctx, span, payload, err)
		return fmt.Errorf("fetch original: %w", err)
	}

	data, width, height, err := s.renderer.Render(ctx, original, chosen)
	if err != nil {
		s.failRender(ctx, span, payload, err)
		return fmt.Errorf("render filter %s: %w", chosen.ID, err)
	}

	processedKey := path.Join(s.processedPrefix, path.Base(payload.ObjectKey))
	if err := s.objects.Upload(ctx, processedKey, data, "image/png", ""); err != nil {
		s.failRender(ctx, span, payload, err)
		return fmt.Errorf("write processed object: %w", err)
	}

	if _, err := s.records.MarkRendered(ctx, payload.RecordID, processedKey); err != nil {
		s.logger.Printf("record update failed record_id=%s err=%v", payload.RecordID, err)
	}

	s.metrics.pixelsRenderedTotal.Add(float64(width * height))
	s.metrics.processedBytesTotal.Add(float64(len(data)))
	s.logger.Printf("Rendered record_id=%s processed_key=%s size=%dx%d", payload.RecordID, processedKey, width, height)

	s.dispatchWebhook(ctx, webhook.EventPhotoRendered, map[string]any{
		"record_id":     payload.RecordID,
		"status":        domain.RecordStatusRendered,
		"filter_id":     payload.FilterID,
		"object_key":    payload.ObjectKey,
		"processed_key": processedKey,
		"processed_url": s.objects.PublicURL(processedKey),
		"requested_at":  payload.RequestedAt,
		"rendered_at":   time.Now().UTC(),
	})

	outcome = domain.RecordStatusRendered
	span.SetStatus(codes.Ok, "rendered")
	return nil
}

func (s *Server) failRender(ctx context.Context, span trace.Span, payload queue.RenderPhotoPayload, cause error) {
	span.RecordError(cause)
	span.SetStatus(codes.Error, "render failed")
	s.updateRecordStatus(ctx, payload.RecordID, domain.RecordStatusRenderFailed)
	s.dispatchWebhook(ctx, webhook.EventPhotoRenderFailed, map[string]any{
		"record_id":    payload.RecordID,
		"status":       domain.RecordStatusRenderFailed,
		"filter_id":    payload.FilterID,
		"object_key":   payload.ObjectKey,
		"requested_at": payload.RequestedAt,
		"failed_at":    time.Now().UTC(),
		"error":        cause.Error(),
	})
}

func (s *Server) updateRecordStatus(ctx context.Context, recordID, status string) {
	if s.records == nil {
		return
	}
	if _, err := s.records.UpdateStatus(ctx, recordID, status); err != nil {
		s.logger.Printf("record status update failed record_id=%s status=%s err=%v", recordID, status, err)
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, event string, body map[string]any) {
	if s.webhookURL == "" || s.webhookClient == nil {
		return
	}
	if err := s.webhookClient.Send(ctx, s.webhookURL, event, body); err != nil {
		s.logger.Printf("webhook delivery failed event=%s err=%v", event, err)
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
