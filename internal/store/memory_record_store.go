package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dotframe/snapbooth/internal/domain"
)

var ErrRecordNotFound = errors.New("capture record not found")

type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]domain.CaptureRecord
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		records: make(map[string]domain.CaptureRecord),
	}
}

func (s *MemoryRecordStore) Create(_ context.Context, rec domain.CaptureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryRecordStore) Get(_ context.Context, id string) (domain.CaptureRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok, nil
}

func (s *MemoryRecordStore) UpdateStatus(_ context.Context, id, status string) (domain.CaptureRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return domain.CaptureRecord{}, ErrRecordNotFound
	}

	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	s.records[id] = rec
	return rec, nil
}

func (s *MemoryRecordStore) MarkRendered(_ context.Context, id, processedKey string) (domain.CaptureRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return domain.CaptureRecord{}, ErrRecordNotFound
	}

	rec.Status = domain.RecordStatusRendered
	rec.ProcessedKey = processedKey
	rec.UpdatedAt = time.Now().UTC()
	s.records[id] = rec
	return rec, nil
}
