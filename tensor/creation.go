package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// Zeros creates a tensor filled with zeros.
func Zeros(shape Shape) *Tensor {
	t, err := New(shape)
	if err != nil {
		panic(err) // shape validation should prevent this for literal shapes
	}
	return t
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape) *Tensor {
	t := Zeros(shape)
	t.Fill(1)
	return t
}

// Full creates a tensor filled with a specific value.
func Full(shape Shape, value float32) *Tensor {
	t := Zeros(shape)
	t.Fill(value)
	return t
}

// FromSlice creates a tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	t, err := New(shape)
	if err != nil {
		return nil, err
	}
	copy(t.data, data)
	return t, nil
}

// Randn creates a tensor with values drawn from a standard normal
// distribution using the Box-Muller transform. The seed makes results
// reproducible; math/rand is intentional for statistical purposes.
func Randn(shape Shape, seed int64) *Tensor {
	t := Zeros(shape)
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible init, not crypto
	data := t.data
	for i := 0; i < len(data); i += 2 {
		u1 := rng.Float64()
		u2 := rng.Float64()
		r := math.Sqrt(-2.0 * math.Log(u1))
		data[i] = float32(r * math.Cos(2.0*math.Pi*u2))
		if i+1 < len(data) {
			data[i+1] = float32(r * math.Sin(2.0*math.Pi*u2))
		}
	}
	return t
}

// Rand creates a tensor with values uniformly distributed in [0, 1),
// reproducible from the given seed.
func Rand(shape Shape, seed int64) *Tensor {
	t := Zeros(shape)
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible init, not crypto
	for i := range t.data {
		t.data[i] = rng.Float32()
	}
	return t
}
