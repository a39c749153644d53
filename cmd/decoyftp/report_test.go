package main

import "testing"

func TestClip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"long hash", "a3f1b2c4d5e6f7a8b9c0", 12, "a3f1b2c4d5e6"},
		{"exact length", "abcdef", 6, "abcdef"},
		{"shorter than limit", "ab", 8, "ab"},
		{"empty", "", 8, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clip(tt.in, tt.n); got != tt.want {
				t.Errorf("clip(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}
