package worker

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/dotframe/snapbooth/internal/domain"
	"github.com/dotframe/snapbooth/internal/queue"
	"github.com/dotframe/snapbooth/internal/render"
	"github.com/dotframe/snapbooth/internal/store"
)

type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	readErr error
	writes  []string
}

func (f *fakeObjectStore) ObjectExists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return false, f.readErr
	}
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeObjectStore) ReadObject(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object missing")
	}
	return data, nil
}

func (f *fakeObjectStore) Upload(_ context.Context, key string, data []byte, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[key] = data
	f.writes = append(f.writes, key)
	return nil
}

func (f *fakeObjectStore) PublicURL(key string) string {
	return "https://photos.example.test/" + key
}

func testServer(t *testing.T, objects *fakeObjectStore, records store.RecordStore) *Server {
	t.Helper()
	renderer, err := render.New()
	if err != nil {
		t.Fatalf("build renderer: %v", err)
	}
	return &Server{
		logger:          log.New(io.Discard, "", 0),
		sem:             make(chan struct{}, 1),
		objects:         objects,
		renderer:        renderer,
		records:         records,
		processedPrefix: "processed",
		metrics:         newMetrics(),
		tracer:          otel.Tracer("snapbooth/worker-test"),
	}
}

func encodedPhoto(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 24))); err != nil {
		t.Fatalf("encode photo: %v", err)
	}
	return buf.Bytes()
}

func seedRecord(t *testing.T, records store.RecordStore) domain.CaptureRecord {
	t.Helper()
	rec := domain.CaptureRecord{
		ID:        "rec-1",
		SessionID: "sess-1",
		Status:    domain.RecordStatusUploaded,
		FilterID:  "noir",
		ObjectKey: "originals/photo-1700000000.png",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := records.Create(context.Background(), rec); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	return rec
}

func TestHandleRenderPhotoWritesProcessedDerivative(t *testing.T) {
	records := store.NewMemoryRecordStore()
	rec := seedRecord(t, records)

	objects := &fakeObjectStore{objects: map[string][]byte{
		rec.ObjectKey: encodedPhoto(t),
	}}
	s := testServer(t, objects, records)

	task, err := queue.NewRenderPhotoTask(queue.RenderPhotoPayload{
		RecordID:    rec.ID,
		ObjectKey:   rec.ObjectKey,
		FilterID:    rec.FilterID,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	if err := s.handleRenderPhoto(context.Background(), task); err != nil {
		t.Fatalf("handleRenderPhoto returned error: %v", err)
	}

	got, ok, err := records.Get(context.Background(), rec.ID)
	if err != nil || !ok {
		t.Fatalf("record lookup: ok=%v err=%v", ok, err)
	}
	if got.Status != domain.RecordStatusRendered {
		t.Fatalf("expected rendered status, got %s", got.Status)
	}
	if got.ProcessedKey != "processed/photo-1700000000.png" {
		t.Fatalf("unexpected processed key %q", got.ProcessedKey)
	}

	if len(objects.writes) != 1 || !strings.HasPrefix(objects.writes[0], "processed/") {
		t.Fatalf("expected exactly one write under processed/, got %v", objects.writes)
	}
	if _, err := png.Decode(bytes.NewReader(objects.objects[got.ProcessedKey])); err != nil {
		t.Fatalf("processed object is not valid png: %v", err)
	}
}

func TestHandleRenderPhotoFetchFailureMarksRecordFailed(t *testing.T) {
	records := store.NewMemoryRecordStore()
	rec := seedRecord(t, records)

	objects := &fakeObjectStore{readErr: errors.New("storage down")}
	s := testServer(t, objects, records)

	task, err := queue.NewRenderPhotoTask(queue.RenderPhotoPayload{
		RecordID:  rec.ID,
		ObjectKey: rec.ObjectKey,
		FilterID:  rec.FilterID,
	})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	if err := s.handleRenderPhoto(context.Background(), task); err == nil {
		t.Fatal("expected fetch error to propagate for retry")
	}

	got, _, err := records.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("record lookup: %v", err)
	}
	if got.Status != domain.RecordStatusRenderFailed {
		t.Fatalf("expected render_failed status, got %s", got.Status)
	}
}

func TestHandleRenderPhotoMissingOriginalSkipsRetry(t *testing.T) {
	records := store.NewMemoryRecordStore()
	rec := seedRecord(t, records)

	objects := &fakeObjectStore{objects: map[string][]byte{}}
	s := testServer(t, objects, records)

	task, err := queue.NewRenderPhotoTask(queue.RenderPhotoPayload{
		RecordID:  rec.ID,
		ObjectKey: rec.ObjectKey,
		FilterID:  rec.FilterID,
	})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	err = s.handleRenderPhoto(context.Background(), task)
	if err == nil {
		t.Fatal("expected error for a pruned original")
	}
	if !strings.Contains(err.Error(), "skip retry") {
		t.Fatalf("expected SkipRetry error, got %v", err)
	}

	got, _, err := records.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("record lookup: %v", err)
	}
	if got.Status != domain.RecordStatusRenderFailed {
		t.Fatalf("expected render_failed status, got %s", got.Status)
	}
	if len(objects.writes) != 0 {
		t.Fatalf("nothing should be written for a missing original, got %v", objects.writes)
	}
}

func TestHandleRenderPhotoUnknownFilterSkipsRetry(t *testing.T) {
	records := store.NewMemoryRecordStore()
	rec := seedRecord(t, records)

	objects := &fakeObjectStore{objects: map[string][]byte{rec.ObjectKey: encodedPhoto(t)}}
	s := testServer(t, objects, records)

	task, err := queue.NewRenderPhotoTask(queue.RenderPhotoPayload{
		RecordID:  rec.ID,
		ObjectKey: rec.ObjectKey,
		FilterID:  "does-not-exist",
	})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	err = s.handleRenderPhoto(context.Background(), task)
	if err == nil {
		t.Fatal("expected error for unknown filter")
	}
	if !strings.Contains(err.Error(), "skip retry") {
		t.Fatalf("expected SkipRetry error, got %v", err)
	}
}
