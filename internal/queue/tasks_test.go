package queue

import (
	"testing"
	"time"
)

func TestRenderPhotoTaskRoundTrip(t *testing.T) {
	payload := RenderPhotoPayload{
		RecordID:    "rec-123",
		ObjectKey:   "originals/photo-1700000000.png",
		FilterID:    "noir",
		RequestedAt: time.Now().UTC(),
	}

	task, err := NewRenderPhotoTask(payload)
	if err != nil {
		t.Fatalf("NewRenderPhotoTask returned error: %v", err)
	}
	if task.Type() != TypeRenderPhoto {
		t.Fatalf("expected task type %s, got %s", TypeRenderPhoto, task.Type())
	}

	parsed, err := ParseRenderPhotoPayload(task)
	if err != nil {
		t.Fatalf("ParseRenderPhotoPayload returned error: %v", err)
	}
	if parsed.RecordID != payload.RecordID {
		t.Fatalf("expected record_id %q, got %q", payload.RecordID, parsed.RecordID)
	}
	if parsed.FilterID != "noir" {
		t.Fatalf("expected filter_id noir, got %q", parsed.FilterID)
	}
}
