//go:build gocv

package camera

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"
)

// LocalDevice captures from real hardware through OpenCV. Built only with
// the gocv tag; without it NewLocalDevice falls back to the test pattern.
type LocalDevice struct {
	deviceID int
	active   atomic.Int64
}

func NewLocalDevice(deviceID int) (Device, error) {
	if deviceID < 0 {
		return nil, fmt.Errorf("invalid camera device id: %d", deviceID)
	}
	return &LocalDevice{deviceID: deviceID}, nil
}

func (d *LocalDevice) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	capture, err := gocv.OpenVideoCapture(d.deviceID)
	if err != nil {
		return nil, fmt.Errorf("open camera device %d: %w", d.deviceID, err)
	}
	if c.Width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
	}
	if c.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	}

	d.active.Add(1)
	s := &localStream{capture: capture}
	s.track = newVideoTrack(func() {
		s.mu.Lock()
		_ = s.capture.Close()
		s.mu.Unlock()
		d.active.Add(-1)
	})
	return s, nil
}

func (d *LocalDevice) ActiveStreams() int {
	return int(d.active.Load())
}

type localStream struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	track   *videoTrack
}

func (s *localStream) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.track.Stopped() {
		return nil, ErrStreamClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mat := gocv.NewMat()
	defer mat.Close()

	if ok := s.capture.Read(&mat); !ok || mat.Empty() {
		return nil, ErrNoFrame
	}

	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert camera frame: %w", err)
	}
	return img, nil
}

func (s *localStream) Tracks() []Track { return []Track{s.track} }

func (s *localStream) Close() { s.track.Stop() }
