package cpu

import (
	"github.com/pkg/errors"

	"github.com/flintml/flint/tensor"
)

// Add performs element-wise addition with dimension-aligned broadcasting.
func (c *Backend) Add(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return c.binaryOp(a, b, func(x, y float32) float32 { return x + y })
}

// Sub performs element-wise subtraction with dimension-aligned broadcasting.
func (c *Backend) Sub(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return c.binaryOp(a, b, func(x, y float32) float32 { return x - y })
}

// Mul performs element-wise multiplication with dimension-aligned
// broadcasting.
func (c *Backend) Mul(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return c.binaryOp(a, b, func(x, y float32) float32 { return x * y })
}

func (c *Backend) binaryOp(a, b *tensor.Tensor, fn func(x, y float32) float32) (*tensor.Tensor, error) {
	if a == nil || b == nil {
		return nil, errors.New("cpu: nil operand")
	}

	// Fast path: identical shapes.
	if a.Shape().Equal(b.Shape()) {
		result := tensor.Zeros(a.Shape())
		out, av, bv := result.Data(), a.Data(), b.Data()
		for i := range out {
			out[i] = fn(av[i], bv[i])
		}
		return result, nil
	}

	outShape, _, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		return nil, errors.Wrap(ErrShapeMismatch, err.Error())
	}

	result := tensor.Zeros(outShape)
	out := result.Data()
	outStrides := outShape.ComputeStrides()
	aIdx := broadcastIndexer(a.Shape(), outShape)
	bIdx := broadcastIndexer(b.Shape(), outShape)
	av, bv := a.Data(), b.Data()

	idx := make([]int, len(outShape))
	for i := range out {
		offset := i
		for d := range outShape {
			idx[d] = offset / outStrides[d]
			offset %= outStrides[d]
		}
		out[i] = fn(av[aIdx(idx)], bv[bIdx(idx)])
	}
	return result, nil
}

// broadcastIndexer maps an index vector in the output shape to a flat
// offset into a tensor of the given (possibly smaller-rank) shape,
// collapsing broadcast dimensions to 0.
func broadcastIndexer(shape, outShape tensor.Shape) func(idx []int) int {
	strides := shape.ComputeStrides()
	pad := len(outShape) - len(shape)
	return func(idx []int) int {
		offset := 0
		for d, dim := range shape {
			v := idx[d+pad]
			if dim == 1 {
				v = 0
			}
			offset += v * strides[d]
		}
		return offset
	}
}
