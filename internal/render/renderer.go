// Package render turns an uploaded original plus a catalog filter into the
// processed derivative. The capture flow never waits on it: rendering runs
// out of band in the worker.
package render

import (
	"context"
	"errors"
	"fmt"

	"github.com/dotframe/snapbooth/internal/domain"
)

var ErrUnsupportedFilter = errors.New("unsupported render filter")

type Renderer interface {
	// Render returns the processed image as lossless PNG plus its dimensions.
	Render(ctx context.Context, original []byte, f domain.Filter) (data []byte, width, height int, err error)
}

// New returns the vips-backed renderer when compiled with the govips tag,
// otherwise the stdlib one.
func New() (Renderer, error) {
	return newRenderer()
}

func borderThickness(width, height int) int {
	min := width
	if height < min {
		min = height
	}
	t := min / 40
	if t < 4 {
		t = 4
	}
	return t
}

func unsupported(f domain.Filter) error {
	return fmt.Errorf("%w: %q", ErrUnsupportedFilter, f.ID)
}
