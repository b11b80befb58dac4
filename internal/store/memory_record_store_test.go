package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dotframe/snapbooth/internal/domain"
)

func TestMemoryRecordStoreLifecycle(t *testing.T) {
	s := NewMemoryRecordStore()
	ctx := context.Background()

	rec := domain.CaptureRecord{
		ID:        "rec-1",
		SessionID: "sess-1",
		Status:    domain.RecordStatusUploaded,
		FilterID:  "classic",
		ObjectKey: "originals/photo-1700000000.png",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, ok, err := s.Get(ctx, "rec-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.FilterID != "classic" {
		t.Fatalf("expected filter classic, got %s", got.FilterID)
	}

	updated, err := s.UpdateStatus(ctx, "rec-1", domain.RecordStatusRendering)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.RecordStatusRendering {
		t.Fatalf("expected rendering status, got %s", updated.Status)
	}

	rendered, err := s.MarkRendered(ctx, "rec-1", "processed/photo-1700000000.png")
	if err != nil {
		t.Fatalf("mark rendered: %v", err)
	}
	if rendered.Status != domain.RecordStatusRendered {
		t.Fatalf("expected rendered status, got %s", rendered.Status)
	}
	if rendered.ProcessedKey != "processed/photo-1700000000.png" {
		t.Fatalf("expected processed key recorded, got %q", rendered.ProcessedKey)
	}
}

func TestMemoryRecordStoreMissingRecord(t *testing.T) {
	s := NewMemoryRecordStore()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "nope")
	if err != nil || ok {
		t.Fatalf("expected miss without error, got ok=%v err=%v", ok, err)
	}
	if _, err := s.UpdateStatus(ctx, "nope", domain.RecordStatusRendering); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if _, err := s.MarkRendered(ctx, "nope", "x"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}
