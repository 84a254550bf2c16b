// Package uuid tests for UUID v4 generation and validation.
package uuid

import "testing"

// TestNew verifies generated ids are valid v4 and unique.
func TestNew(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := New()
		if !IsValid(id) {
			t.Fatalf("New() produced invalid UUID v4: %q", id)
		}
		if seen[id] {
			t.Fatalf("New() produced duplicate UUID: %q", id)
		}
		seen[id] = true
	}
}

// TestIsValid verifies strict v4 format checking.
func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"valid v4", "123e4567-e89b-42d3-a456-426614174000", true},
		{"valid v4 uppercase", "123E4567-E89B-42D3-A456-426614174000", true},
		{"wrong version", "123e4567-e89b-12d3-a456-426614174000", false},
		{"wrong variant", "123e4567-e89b-42d3-c456-426614174000", false},
		{"no dashes", "123e4567e89b42d3a456426614174000", false},
		{"too short", "123e4567-e89b-42d3-a456", false},
		{"empty", "", false},
		{"garbage", "not-a-uuid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.in); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// TestValidate verifies error reporting.
func TestValidate(t *testing.T) {
	if err := Validate(New()); err != nil {
		t.Errorf("Validate of generated id failed: %v", err)
	}
	if err := Validate("bogus"); err == nil {
		t.Error("Validate of garbage should fail")
	}
}
