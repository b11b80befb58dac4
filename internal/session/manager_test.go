package session

import (
	"context"
	"testing"
	"time"

	"github.com/dotframe/snapbooth/internal/camera"
)

func TestManagerCreateGetRemove(t *testing.T) {
	device := camera.NewSyntheticDevice(0, 0)
	m := NewManager(testLogger(), &fakeUploader{}, func() camera.Device { return device }, time.Minute)

	id, flow := m.Create(context.Background())
	if flow.Snapshot().Phase != PhaseCamera {
		t.Fatalf("new session must start in camera phase")
	}
	if got := device.ActiveStreams(); got != 1 {
		t.Fatalf("expected camera acquired on create, got %d streams", got)
	}

	got, ok := m.Get(id)
	if !ok || got != flow {
		t.Fatal("expected to look up the created flow")
	}
	if _, ok := m.Device(id); !ok {
		t.Fatal("expected to look up the session device")
	}

	if !m.Remove(id) {
		t.Fatal("expected remove to find the session")
	}
	if got := device.ActiveStreams(); got != 0 {
		t.Fatalf("remove must release the camera stream, got %d", got)
	}
	if _, ok := m.Get(id); ok {
		t.Fatal("removed session must be gone")
	}
}

func TestManagerCloseIdleReleasesStreams(t *testing.T) {
	device := camera.NewSyntheticDevice(0, 0)
	m := NewManager(testLogger(), &fakeUploader{}, func() camera.Device { return device }, 50*time.Millisecond)

	m.Create(context.Background())
	if reaped := m.CloseIdle(time.Now()); reaped != 0 {
		t.Fatalf("fresh session must not be reaped, got %d", reaped)
	}

	if reaped := m.CloseIdle(time.Now().Add(time.Second)); reaped != 1 {
		t.Fatalf("expected one reaped session, got %d", reaped)
	}
	if got := device.ActiveStreams(); got != 0 {
		t.Fatalf("reaping must release streams, got %d active", got)
	}
	if m.Len() != 0 {
		t.Fatalf("expected empty manager, got %d sessions", m.Len())
	}
}
