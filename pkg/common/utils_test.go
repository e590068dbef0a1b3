package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp01(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"below range", -0.5, 0},
		{"lower bound", 0, 0},
		{"inside range", 0.42, 0.42},
		{"upper bound", 1, 1},
		{"above range", 1.7, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clamp01(tt.in))
		})
	}
}

func TestClampRange(t *testing.T) {
	assert.Equal(t, 0.8, ClampRange(0.5, 0.8, 1.2))
	assert.Equal(t, 1.2, ClampRange(3.0, 0.8, 1.2))
	assert.Equal(t, 1.0, ClampRange(1.0, 0.8, 1.2))
}
