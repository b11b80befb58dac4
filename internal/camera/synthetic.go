package camera

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
)

// SyntheticDevice produces a moving test pattern. It backs tests and the
// no-hardware booth build, and it counts active streams so release bugs
// show up as a nonzero count.
type SyntheticDevice struct {
	Width  int
	Height int

	active atomic.Int64
}

func NewSyntheticDevice(width, height int) *SyntheticDevice {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	return &SyntheticDevice{Width: width, Height: height}
}

func (d *SyntheticDevice) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	width, height := d.Width, d.Height
	if c.Width > 0 {
		width = c.Width
	}
	if c.Height > 0 {
		height = c.Height
	}

	d.active.Add(1)
	s := &syntheticStream{width: width, height: height}
	s.track = newVideoTrack(func() { d.active.Add(-1) })
	return s, nil
}

// ActiveStreams reports streams acquired and not yet released.
func (d *SyntheticDevice) ActiveStreams() int {
	return int(d.active.Load())
}

type syntheticStream struct {
	width  int
	height int
	track  *videoTrack

	mu    sync.Mutex
	frame int
}

func (s *syntheticStream) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.track.Stopped() {
		return nil, ErrStreamClosed
	}

	s.mu.Lock()
	n := s.frame
	s.frame++
	s.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	bar := (n * 8) % s.width
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			c := color.RGBA{
				R: uint8((x * 255) / s.width),
				G: uint8((y * 255) / s.height),
				B: 0x40,
				A: 0xff,
			}
			if x >= bar && x < bar+12 {
				c = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img, nil
}

func (s *syntheticStream) Tracks() []Track { return []Track{s.track} }

func (s *syntheticStream) Close() { s.track.Stop() }
