// Package raster is the off-screen drawing surface: it snapshots a live
// video frame into a still raster buffer at the frame's native resolution
// and serializes it losslessly as PNG.
package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	_ "image/jpeg"

	_ "golang.org/x/image/webp"
)

const ContentType = "image/png"

// Buffer is one captured frame. PNG always holds the lossless encoding of
// the frame at Width x Height.
type Buffer struct {
	Width  int
	Height int
	PNG    []byte
}

// Snapshot draws the frame into a fresh raster sized to the frame's bounds
// and encodes it.
func Snapshot(frame image.Image) (*Buffer, error) {
	if frame == nil {
		return nil, errors.New("frame is required")
	}

	bounds := frame.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("frame has invalid dimensions %dx%d", bounds.Dx(), bounds.Dy())
	}

	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), frame, bounds.Min, draw.Src)

	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := encoder.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode raster png: %w", err)
	}

	return &Buffer{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		PNG:    buf.Bytes(),
	}, nil
}

// Decode parses an encoded frame back into pixels. webp and jpeg decoders
// are registered for frames relayed by browsers that do not produce png.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode raster: %w", err)
	}
	return img, nil
}
