// Package filter holds the static, read-only catalog of decorative filters.
// No network or storage dependency: the catalog is compiled in.
package filter

import (
	"fmt"

	"github.com/dotframe/snapbooth/internal/domain"
)

var ErrUnknownFilter = fmt.Errorf("unknown filter")

var catalog = []domain.Filter{
	{ID: "classic", Name: "Classic", DisplayImage: "/static/filters/classic.svg"},
	{ID: "noir", Name: "Noir", DisplayImage: "/static/filters/noir.svg"},
	{ID: "golden", Name: "Golden Hour", DisplayImage: "/static/filters/golden.svg"},
	{ID: "frost", Name: "Frost", DisplayImage: "/static/filters/frost.svg"},
	{ID: "postcard", Name: "Postcard", DisplayImage: "/static/filters/postcard.svg"},
}

// All returns a copy so callers cannot mutate the catalog.
func All() []domain.Filter {
	out := make([]domain.Filter, len(catalog))
	copy(out, catalog)
	return out
}

func Lookup(id string) (domain.Filter, error) {
	for _, f := range catalog {
		if f.ID == id {
			return f, nil
		}
	}
	return domain.Filter{}, fmt.Errorf("%w: %q", ErrUnknownFilter, id)
}
