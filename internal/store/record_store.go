package store

import (
	"context"

	"github.com/dotframe/snapbooth/internal/domain"
)

type RecordStore interface {
	Create(ctx context.Context, rec domain.CaptureRecord) error
	Get(ctx context.Context, id string) (domain.CaptureRecord, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.CaptureRecord, error)
	MarkRendered(ctx context.Context, id, processedKey string) (domain.CaptureRecord, error)
}
