package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dotframe/snapbooth/internal/camera"
)

// Manager tracks live flows by session ID. Nothing is persisted: a session
// exists between its first render and unmount, reload, or idle expiry, and
// expiry closes the flow so camera streams cannot outlive their visitor.
type Manager struct {
	logger    *log.Logger
	uploader  Uploader
	newDevice func() camera.Device
	ttl       time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	flow     *Flow
	device   camera.Device
	lastSeen time.Time
}

func NewManager(logger *log.Logger, uploader Uploader, newDevice func() camera.Device, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Manager{
		logger:    logger,
		uploader:  uploader,
		newDevice: newDevice,
		ttl:       ttl,
		entries:   make(map[string]*entry),
	}
}

// Create starts a new flow and acquires its camera stream. Acquisition
// failure is not fatal: the flow starts with a blank preview.
func (m *Manager) Create(ctx context.Context) (string, *Flow) {
	device := m.newDevice()
	flow := NewFlow(m.logger, device, m.uploader)
	_ = flow.AcquireCamera(ctx)

	id := uuid.NewString()
	m.mu.Lock()
	m.entries[id] = &entry{flow: flow, device: device, lastSeen: time.Now()}
	m.mu.Unlock()
	return id, flow
}

func (m *Manager) Get(id string) (*Flow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = time.Now()
	return e.flow, true
}

// Device returns the camera device backing a session, for handlers that
// feed remote frames into it.
func (m *Manager) Device(id string) (camera.Device, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = time.Now()
	return e.device, true
}

// Remove closes and forgets a session.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	e, ok := m.entries[id]
	delete(m.entries, id)
	m.mu.Unlock()

	if ok {
		e.flow.Close()
	}
	return ok
}

// CloseIdle closes sessions unseen for longer than the TTL and reports how
// many were reaped.
func (m *Manager) CloseIdle(now time.Time) int {
	m.mu.Lock()
	var stale []*entry
	for id, e := range m.entries {
		if now.Sub(e.lastSeen) > m.ttl {
			stale = append(stale, e)
			delete(m.entries, id)
		}
	}
	m.mu.Unlock()

	for _, e := range stale {
		e.flow.Close()
	}
	return len(stale)
}

// Janitor reaps idle sessions until ctx is done.
func (m *Manager) Janitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if reaped := m.CloseIdle(now); reaped > 0 {
				m.logger.Printf("reaped %d idle sessions", reaped)
			}
		}
	}
}

// Close tears down every live session.
func (m *Manager) Close() {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.entries))
	for id, e := range m.entries {
		entries = append(entries, e)
		delete(m.entries, id)
	}
	m.mu.Unlock()

	for _, e := range entries {
		e.flow.Close()
	}
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
