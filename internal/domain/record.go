package domain

import "time"

const (
	RecordStatusUploaded     = "uploaded"
	RecordStatusRendering    = "rendering"
	RecordStatusRendered     = "rendered"
	RecordStatusRenderFailed = "render_failed"
)

// CaptureRecord is the server-side trail of one uploaded photo. The capture
// session itself is never persisted; records exist so the render worker and
// operators can find what landed in the bucket.
type CaptureRecord struct {
	ID           string
	SessionID    string
	Status       string
	FilterID     string
	ObjectKey    string
	ProcessedKey string
	PublicURL    string
	Width        int
	Height       int
	Bytes        int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
