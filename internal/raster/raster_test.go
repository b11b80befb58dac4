package raster

import (
	"image"
	"image/color"
	"testing"
)

func TestSnapshotKeepsNativeResolution(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for y := 0; y < 480; y += 40 {
		for x := 0; x < 640; x += 40 {
			frame.SetRGBA(x, y, color.RGBA{R: 200, A: 255})
		}
	}

	buf, err := Snapshot(frame)
	if err != nil {
		t.Fatalf("snapshot returned error: %v", err)
	}
	if buf.Width != 640 || buf.Height != 480 {
		t.Fatalf("expected 640x480 raster, got %dx%d", buf.Width, buf.Height)
	}
	if len(buf.PNG) == 0 {
		t.Fatal("expected non-empty encoded payload")
	}

	decoded, err := Decode(buf.PNG)
	if err != nil {
		t.Fatalf("decode round trip: %v", err)
	}
	if decoded.Bounds().Dx() != 640 || decoded.Bounds().Dy() != 480 {
		t.Fatalf("decoded raster lost dimensions: %v", decoded.Bounds())
	}
}

func TestSnapshotOffsetBounds(t *testing.T) {
	frame := image.NewRGBA(image.Rect(10, 20, 110, 70))

	buf, err := Snapshot(frame)
	if err != nil {
		t.Fatalf("snapshot returned error: %v", err)
	}
	if buf.Width != 100 || buf.Height != 50 {
		t.Fatalf("expected 100x50 raster, got %dx%d", buf.Width, buf.Height)
	}
}

func TestSnapshotRejectsNilFrame(t *testing.T) {
	if _, err := Snapshot(nil); err == nil {
		t.Fatal("expected error for nil frame")
	}
}
