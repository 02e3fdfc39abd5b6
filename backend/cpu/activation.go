package cpu

import (
	"math"

	"github.com/pkg/errors"

	"github.com/flintml/flint/tensor"
)

// ReLU applies max(0, x) element-wise.
func (c *Backend) ReLU(t *tensor.Tensor) (*tensor.Tensor, error) {
	return mapUnary(t, func(x float32) float32 {
		if x > 0 {
			return x
		}
		return 0
	})
}

// Sigmoid applies 1/(1+exp(-x)) element-wise.
func (c *Backend) Sigmoid(t *tensor.Tensor) (*tensor.Tensor, error) {
	return mapUnary(t, func(x float32) float32 {
		return float32(1.0 / (1.0 + math.Exp(-float64(x))))
	})
}

// Tanh applies the hyperbolic tangent element-wise.
func (c *Backend) Tanh(t *tensor.Tensor) (*tensor.Tensor, error) {
	return mapUnary(t, func(x float32) float32 {
		return float32(math.Tanh(float64(x)))
	})
}

// Softmax normalizes along the last axis so each row sums to one.
// The row maximum is subtracted before exponentiation for numerical
// stability.
func (c *Backend) Softmax(t *tensor.Tensor) (*tensor.Tensor, error) {
	if t == nil {
		return nil, errors.New("cpu: nil operand")
	}
	if t.Rank() == 0 {
		return nil, errors.Wrap(ErrShapeMismatch, "softmax: scalar input")
	}

	cols := t.Shape()[t.Rank()-1]
	rows := t.NumElements() / cols

	result := tensor.Zeros(t.Shape())
	src, dst := t.Data(), result.Data()
	for r := 0; r < rows; r++ {
		row := src[r*cols : (r+1)*cols]
		out := dst[r*cols : (r+1)*cols]

		max := row[0]
		for _, v := range row[1:] {
			if v > max {
				max = v
			}
		}

		var sum float32
		for i, v := range row {
			e := float32(math.Exp(float64(v - max)))
			out[i] = e
			sum += e
		}
		for i := range out {
			out[i] /= sum
		}
	}
	return result, nil
}

func mapUnary(t *tensor.Tensor, fn func(float32) float32) (*tensor.Tensor, error) {
	if t == nil {
		return nil, errors.New("cpu: nil operand")
	}
	result := tensor.Zeros(t.Shape())
	src, dst := t.Data(), result.Data()
	for i, v := range src {
		dst[i] = fn(v)
	}
	return result, nil
}
