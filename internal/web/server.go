// Package web exposes the capture flow over HTTP: the embedded single page,
// the JSON session API it drives, and the websocket frame feed that turns
// the visitor's browser camera into the session's remote device.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dotframe/snapbooth/internal/domain"
	"github.com/dotframe/snapbooth/internal/filter"
	"github.com/dotframe/snapbooth/internal/id"
	"github.com/dotframe/snapbooth/internal/queue"
	"github.com/dotframe/snapbooth/internal/session"
	"github.com/dotframe/snapbooth/internal/store"
)

//go:embed static
var staticFS embed.FS

type Server struct {
	logger        *log.Logger
	sessions      *session.Manager
	records       store.RecordStore
	enqueuer      renderEnqueuer
	objects       objectReader
	rateLimiter   RateLimiter
	metrics       *metrics
	tracer        trace.Tracer
	maxFrameBytes int64
	mux           *http.ServeMux
}

type renderEnqueuer interface {
	EnqueueRenderPhoto(ctx context.Context, payload queue.RenderPhotoPayload) (*asynq.TaskInfo, error)
}

type objectReader interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
}

func NewServer(logger *log.Logger, sessions *session.Manager, records store.RecordStore, enqueuer renderEnqueuer, objects objectReader) *Server {
	s := &Server{
		logger:        logger,
		sessions:      sessions,
		records:       records,
		enqueuer:      enqueuer,
		objects:       objects,
		metrics:       newMetrics(),
		maxFrameBytes: defaultMaxFrameBytes,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

// SetRateLimiter enables request throttling on mutating session routes.
func (s *Server) SetRateLimiter(rl RateLimiter) {
	s.rateLimiter = rl
}

// EnableTracing turns on per-request spans.
func (s *Server) EnableTracing() {
	s.tracer = otel.Tracer("snapbooth/web")
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.withRateLimit(h)
	h = s.withTracing(h)
	h = s.metrics.withHTTPMetrics(h)
	return h
}

func (s *Server) routes() {
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(fmt.Sprintf("embedded static assets: %v", err))
	}

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("GET /v1/filters", s.handleListFilters)
	s.mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("POST /v1/sessions/{id}/capture", s.handleCapture)
	s.mux.HandleFunc("POST /v1/sessions/{id}/filter", s.handleSelectFilter)
	s.mux.HandleFunc("POST /v1/sessions/{id}/retake", s.handleRetake)
	s.mux.HandleFunc("GET /v1/sessions/{id}/download", s.handleDownload)
	s.mux.HandleFunc("GET /v1/sessions/{id}/stream", s.handleStream)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListFilters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"filters": filter.All()})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sessionID, flow := s.sessions.Create(r.Context())
	s.metrics.sessionsStarted.Inc()
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sessionID,
		"session":    flow.Snapshot(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	flow, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": flow.Snapshot()})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Remove(r.PathValue("id")) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	flow, ok := s.lookup(w, r)
	if !ok {
		return
	}

	view, err := flow.Capture(r.Context())
	if err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": view})
}

type selectFilterRequest struct {
	FilterID string `json:"filter_id"`
}

func (s *Server) handleSelectFilter(w http.ResponseWriter, r *http.Request) {
	flow, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req selectFilterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	upload, err := flow.SelectFilter(r.Context(), req.FilterID)
	if errors.Is(err, filter.ErrUnknownFilter) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		var phaseErr *session.PhaseError
		switch {
		case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrClosed),
			errors.As(err, &phaseErr), errors.Is(err, session.ErrNoPhoto):
			s.writeFlowError(w, err)
		default:
			// Upload failed: the flow already fell back to preview carrying
			// the generic message; surface the state, not the cause.
			s.logger.Printf("upload failed session=%s err=%v", r.PathValue("id"), err)
			s.metrics.uploadsTotal.WithLabelValues("failed").Inc()
			writeJSON(w, http.StatusBadGateway, map[string]any{"session": flow.Snapshot()})
		}
		return
	}

	s.metrics.uploadsTotal.WithLabelValues("succeeded").Inc()
	recordID := s.trackUpload(r.Context(), r.PathValue("id"), upload)

	writeJSON(w, http.StatusOK, map[string]any{
		"session":   flow.Snapshot(),
		"record_id": recordID,
	})
}

// trackUpload persists the capture record and enqueues the filter render.
// Both are best effort: the visitor already has their result URL.
func (s *Server) trackUpload(ctx context.Context, sessionID string, upload session.Upload) string {
	rec := domain.CaptureRecord{
		ID:        id.New(),
		SessionID: sessionID,
		Status:    domain.RecordStatusUploaded,
		FilterID:  upload.FilterID,
		ObjectKey: upload.ObjectKey,
		PublicURL: upload.PublicURL,
		Width:     upload.Width,
		Height:    upload.Height,
		Bytes:     upload.Bytes,
		CreatedAt: upload.At,
		UpdatedAt: upload.At,
	}
	if s.records != nil {
		if err := s.records.Create(ctx, rec); err != nil {
			s.logger.Printf("capture record create failed record_id=%s err=%v", rec.ID, err)
		}
	}

	if s.enqueuer != nil {
		_, err := s.enqueuer.EnqueueRenderPhoto(ctx, queue.RenderPhotoPayload{
			RecordID:    rec.ID,
			ObjectKey:   upload.ObjectKey,
			FilterID:    upload.FilterID,
			RequestedAt: upload.At,
		})
		if err != nil {
			s.logger.Printf("render enqueue failed record_id=%s err=%v", rec.ID, err)
		} else {
			s.metrics.rendersEnqueued.Inc()
		}
	}

	return rec.ID
}

func (s *Server) handleRetake(w http.ResponseWriter, r *http.Request) {
	flow, ok := s.lookup(w, r)
	if !ok {
		return
	}

	if err := flow.Retake(r.Context()); err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": flow.Snapshot()})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	flow, ok := s.lookup(w, r)
	if !ok {
		return
	}

	key, err := flow.ResultKey()
	if err != nil {
		s.writeFlowError(w, err)
		return
	}

	data, err := s.objects.ReadObject(r.Context(), key)
	if err != nil {
		s.logger.Printf("download fetch failed key=%s err=%v", key, err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "failed to fetch photo"})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", session.DownloadFilename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Flow, bool) {
	flow, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return nil, false
	}
	return flow, true
}

func (s *Server) writeFlowError(w http.ResponseWriter, err error) {
	var phaseErr *session.PhaseError
	switch {
	case errors.Is(err, session.ErrBusy):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, session.ErrClosed):
		writeJSON(w, http.StatusGone, map[string]string{"error": err.Error()})
	case errors.Is(err, session.ErrNoResult), errors.Is(err, session.ErrNoPhoto):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &phaseErr):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
