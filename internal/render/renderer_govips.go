//go:build govips && cgo

package render

import (
	"context"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dotframe/snapbooth/internal/domain"
)

type govipsRenderer struct{}

func (r govipsRenderer) Render(ctx context.Context, original []byte, f domain.Filter) ([]byte, int, int, error) {
	select {
	case <-ctx.Done():
		return nil, 0, 0, ctx.Err()
	default:
	}

	img, err := vips.NewImageFromBuffer(original)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode original image: %w", err)
	}
	defer img.Close()

	switch f.ID {
	case "classic":
		err = embedBorder(img, vips.ExtendWhite)
	case "noir":
		err = img.Modulate(1, 0, 0)
	case "golden":
		err = img.Linear([]float64{1.12, 1.0, 0.82}, []float64{0, 0, 0})
	case "frost":
		if err = img.Linear([]float64{0.88, 0.97, 1.15}, []float64{0, 0, 0}); err == nil {
			err = embedBorder(img, vips.ExtendWhite)
		}
	case "postcard":
		if err = embedBorder(img, vips.ExtendWhite); err == nil {
			err = img.Label(&vips.LabelParams{
				Text:    f.Name,
				Width:   vips.Scalar{Value: 0.3, Relative: true},
				Height:  vips.Scalar{Value: 0.05, Relative: true},
				OffsetX: vips.Scalar{Value: 0.65, Relative: true},
				OffsetY: vips.Scalar{Value: 0.92, Relative: true},
				Opacity: 0.9,
			})
		}
	default:
		return nil, 0, 0, unsupported(f)
	}
	if err != nil {
		return nil, 0, 0, fmt.Errorf("apply filter %s: %w", f.ID, err)
	}

	data, _, err := img.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, 0, 0, fmt.Errorf("export processed png: %w", err)
	}

	return data, img.Width(), img.Height(), nil
}

func embedBorder(img *vips.ImageRef, extend vips.ExtendStrategy) error {
	t := borderThickness(img.Width(), img.Height())
	return img.Embed(t, t, img.Width()+2*t, img.Height()+2*t, extend)
}
