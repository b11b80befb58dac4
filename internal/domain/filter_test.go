package domain

import "testing"

func TestFilterValidate(t *testing.T) {
	cases := []struct {
		name    string
		filter  Filter
		wantErr bool
	}{
		{name: "valid", filter: Filter{ID: "noir", Name: "Noir"}},
		{name: "missing id", filter: Filter{Name: "Noir"}, wantErr: true},
		{name: "blank id", filter: Filter{ID: "   ", Name: "Noir"}, wantErr: true},
		{name: "missing name", filter: Filter{ID: "noir"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.filter.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
