package camera

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
)

// RemoteDevice is a camera whose frames arrive from elsewhere, in practice
// the visitor's browser relaying its getUserMedia preview over a websocket.
// Push replaces the latest frame; acquired streams always read the most
// recent one, matching live-preview semantics.
type RemoteDevice struct {
	mu     sync.RWMutex
	latest image.Image

	active atomic.Int64
}

func NewRemoteDevice() *RemoteDevice {
	return &RemoteDevice{}
}

// Push installs img as the current live frame. Frames pushed while no stream
// is acquired are kept; the next acquisition sees them.
func (d *RemoteDevice) Push(img image.Image) {
	if img == nil {
		return
	}
	d.mu.Lock()
	d.latest = img
	d.mu.Unlock()
}

func (d *RemoteDevice) Acquire(ctx context.Context, _ Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.active.Add(1)
	s := &remoteStream{device: d}
	s.track = newVideoTrack(func() { d.active.Add(-1) })
	return s, nil
}

func (d *RemoteDevice) ActiveStreams() int {
	return int(d.active.Load())
}

type remoteStream struct {
	device *RemoteDevice
	track  *videoTrack
}

func (s *remoteStream) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.track.Stopped() {
		return nil, ErrStreamClosed
	}

	s.device.mu.RLock()
	img := s.device.latest
	s.device.mu.RUnlock()

	if img == nil {
		return nil, ErrNoFrame
	}
	return img, nil
}

func (s *remoteStream) Tracks() []Track { return []Track{s.track} }

func (s *remoteStream) Close() { s.track.Stop() }
