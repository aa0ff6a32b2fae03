package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a    []float32
		b    []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"mismatched lengths", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
		{"zero norm", []float32{0, 0}, []float32{1, 2}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			require.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCosineScaleInvariant(t *testing.T) {
	a := []float32{0.5, 1.5, -2}
	scaled := []float32{1, 3, -4}

	assert.InDelta(t, 1.0, Cosine(a, scaled), 1e-6)
}
