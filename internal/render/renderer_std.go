package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/dotframe/snapbooth/internal/domain"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type stdlibRenderer struct{}

func (r stdlibRenderer) Render(ctx context.Context, original []byte, f domain.Filter) ([]byte, int, int, error) {
	select {
	case <-ctx.Done():
		return nil, 0, 0, ctx.Err()
	default:
	}

	src, _, err := image.Decode(bytes.NewReader(original))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode original image: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy()))
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)

	switch f.ID {
	case "classic":
		drawBorder(dst, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	case "noir":
		toGrayscale(dst)
	case "golden":
		tint(dst, 1.12, 1.0, 0.82)
	case "frost":
		tint(dst, 0.88, 0.97, 1.15)
		drawBorder(dst, color.RGBA{R: 235, G: 244, B: 255, A: 255})
	case "postcard":
		drawBorder(dst, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		drawCaption(dst, f.Name)
	default:
		return nil, 0, 0, unsupported(f)
	}

	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := encoder.Encode(&buf, dst); err != nil {
		return nil, 0, 0, fmt.Errorf("encode processed png: %w", err)
	}

	return buf.Bytes(), dst.Bounds().Dx(), dst.Bounds().Dy(), nil
}

func drawBorder(img *image.RGBA, c color.RGBA) {
	bounds := img.Bounds()
	t := borderThickness(bounds.Dx(), bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			nearEdge := x < bounds.Min.X+t || x >= bounds.Max.X-t ||
				y < bounds.Min.Y+t || y >= bounds.Max.Y-t
			if nearEdge {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

func toGrayscale(img *image.RGBA) {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.RGBAAt(x, y)
			// Rec. 601 luma weights.
			g := uint8((299*int(c.R) + 587*int(c.G) + 114*int(c.B)) / 1000)
			img.SetRGBA(x, y, color.RGBA{R: g, G: g, B: g, A: c.A})
		}
	}
}

func tint(img *image.RGBA, r, g, b float64) {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.RGBAAt(x, y)
			img.SetRGBA(x, y, color.RGBA{
				R: clamp8(float64(c.R) * r),
				G: clamp8(float64(c.G) * g),
				B: clamp8(float64(c.B) * b),
				A: c.A,
			})
		}
	}
}

func drawCaption(img *image.RGBA, text string) {
	if text == "" {
		return
	}

	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{R: 40, G: 40, B: 40, A: 255}),
		Face: face,
	}

	bounds := img.Bounds()
	pad := borderThickness(bounds.Dx(), bounds.Dy()) + 6
	width := drawer.MeasureString(text).Ceil()
	drawer.Dot = fixed.P(bounds.Max.X-width-pad, bounds.Max.Y-pad)
	drawer.DrawString(text)
}

func clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
