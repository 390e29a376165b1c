package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReduction(t *testing.T) {
	tests := []struct {
		name       string
		cleaned    int
		duplicates int
		want       float64
	}{
		{"empty", 0, 0, 0},
		{"no duplicates", 5, 0, 0},
		{"quarter", 3, 1, 25.0},
		{"all duplicates", 0, 4, 100.0},
		{"rounds to two decimals", 2, 1, 33.33},
		{"rounds up", 1, 2, 66.67},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reduction(tt.cleaned, tt.duplicates))
		})
	}
}
