package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Filter is one entry in the static decorative-filter catalog. DisplayImage
// is the asset path the picker page shows; the render worker maps the ID to
// an actual transformation.
type Filter struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DisplayImage string `json:"display_image"`
}

func (f Filter) Validate() error {
	if strings.TrimSpace(f.ID) == "" {
		return errors.New("filter id is required")
	}
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("filter %s: name is required", f.ID)
	}
	return nil
}
