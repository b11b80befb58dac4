// Package camera models the device camera as an explicitly owned resource:
// a Device hands out Streams, and every Stream must be closed by its owner,
// which stops all of its tracks. A leaked stream keeps the hardware busy and
// can block the next acquisition, so the acquire/release discipline here is
// the one resource contract the capture flow depends on.
package camera

import (
	"context"
	"errors"
	"image"
	"sync"
)

type Facing string

const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

type Constraints struct {
	Facing Facing
	Width  int
	Height int
}

var (
	ErrNoFrame      = errors.New("no frame available yet")
	ErrStreamClosed = errors.New("camera stream is closed")
)

type Device interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// Track is one media track of an acquired stream. Streams here only carry a
// single video track, but release still goes track by track so a caller can
// verify nothing was left running.
type Track interface {
	Kind() string
	Stop()
	Stopped() bool
}

type Stream interface {
	// Frame returns the most recent frame of the live stream.
	Frame(ctx context.Context) (image.Image, error)
	Tracks() []Track
	// Close stops every track. Closing twice is safe.
	Close()
}

type videoTrack struct {
	mu      sync.Mutex
	stopped bool
	onStop  func()
}

func newVideoTrack(onStop func()) *videoTrack {
	return &videoTrack{onStop: onStop}
}

func (t *videoTrack) Kind() string { return "video" }

func (t *videoTrack) Stop() {
	t.mu.Lock()
	already := t.stopped
	t.stopped = true
	t.mu.Unlock()

	if !already && t.onStop != nil {
		t.onStop()
	}
}

func (t *videoTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
