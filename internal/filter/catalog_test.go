package filter

import (
	"errors"
	"testing"
)

func TestCatalogEntriesAreValid(t *testing.T) {
	filters := All()
	if len(filters) == 0 {
		t.Fatal("catalog is empty")
	}

	seen := make(map[string]bool, len(filters))
	for _, f := range filters {
		if err := f.Validate(); err != nil {
			t.Errorf("catalog entry %q: %v", f.ID, err)
		}
		if seen[f.ID] {
			t.Errorf("duplicate catalog id %q", f.ID)
		}
		seen[f.ID] = true
		if f.DisplayImage == "" {
			t.Errorf("catalog entry %q has no display image", f.ID)
		}
	}
}

func TestAllReturnsACopy(t *testing.T) {
	All()[0].ID = "mutated"
	if All()[0].ID == "mutated" {
		t.Fatal("catalog leaked a mutable reference")
	}
}

func TestLookup(t *testing.T) {
	f, err := Lookup("noir")
	if err != nil {
		t.Fatalf("lookup noir: %v", err)
	}
	if f.Name != "Noir" {
		t.Fatalf("lookup noir returned %+v", f)
	}

	if _, err := Lookup("vaporwave"); !errors.Is(err, ErrUnknownFilter) {
		t.Fatalf("expected ErrUnknownFilter, got %v", err)
	}
}
