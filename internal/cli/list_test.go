// Package cli — list_test.go contains unit tests for the pure formatting
// functions used by the list command and other CLI output helpers.
package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestFormatPortsList verifies that FormatPortsList correctly converts a
// worktree's port map into a comma-separated, numerically-sorted string.
func TestFormatPortsList(t *testing.T) {
	tests := []struct {
		name  string
		ports map[string]int
		want  string
	}{
		{name: "empty map returns dash", ports: map[string]int{}, want: "-"},
		{name: "nil map returns dash", ports: nil, want: "-"},
		{name: "single port", ports: map[string]int{"app": 13000}, want: "13000"},
		{
			name:  "multiple ports sorted numerically not lexicographically",
			ports: map[string]int{"app": 13000, "db": 15432, "cache": 16379},
			want:  "13000,15432,16379",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatPortsList(tt.ports)
			assert.Equal(t, tt.want, got)
		})
	}
}
