package cpu

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/flintml/flint/tensor"
)

// MatMul performs matrix multiplication. Supported operand ranks:
//
//	(M, K) x (K, N) -> (M, N)
//	(M, K) x (K,)   -> (M,)
//	(K,)   x (K,)   -> (1,)   dot product
func (c *Backend) MatMul(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	if a == nil || b == nil {
		return nil, errors.New("cpu: nil operand")
	}

	switch {
	case a.Rank() == 2 && b.Rank() == 2:
		return matmul2D(a, b)
	case a.Rank() == 2 && b.Rank() == 1:
		return matVec(a, b)
	case a.Rank() == 1 && b.Rank() == 1:
		return dot(a, b)
	default:
		return nil, errors.Wrapf(ErrShapeMismatch, "matmul: unsupported ranks %d x %d", a.Rank(), b.Rank())
	}
}

func matmul2D(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	m, k := a.Shape()[0], a.Shape()[1]
	kb, n := b.Shape()[0], b.Shape()[1]
	if k != kb {
		return nil, errors.Wrapf(ErrShapeMismatch, "matmul: inner dimensions %d and %d", k, kb)
	}

	result := tensor.Zeros(tensor.Shape{m, n})
	am := blas32.General{Rows: m, Cols: k, Stride: k, Data: a.Data()}
	bm := blas32.General{Rows: k, Cols: n, Stride: n, Data: b.Data()}
	cm := blas32.General{Rows: m, Cols: n, Stride: n, Data: result.Data()}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, am, bm, 0, cm)
	return result, nil
}

func matVec(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	m, k := a.Shape()[0], a.Shape()[1]
	if k != b.Shape()[0] {
		return nil, errors.Wrapf(ErrShapeMismatch, "matmul: matrix columns %d, vector length %d", k, b.Shape()[0])
	}

	result := tensor.Zeros(tensor.Shape{m})
	am := blas32.General{Rows: m, Cols: k, Stride: k, Data: a.Data()}
	bv := blas32.Vector{N: k, Inc: 1, Data: b.Data()}
	cv := blas32.Vector{N: m, Inc: 1, Data: result.Data()}
	blas32.Gemv(blas.NoTrans, 1, am, bv, 0, cv)
	return result, nil
}

func dot(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	if a.Shape()[0] != b.Shape()[0] {
		return nil, errors.Wrapf(ErrShapeMismatch, "dot: lengths %d and %d", a.Shape()[0], b.Shape()[0])
	}
	n := a.Shape()[0]
	av := blas32.Vector{N: n, Inc: 1, Data: a.Data()}
	bv := blas32.Vector{N: n, Inc: 1, Data: b.Data()}
	result := tensor.Zeros(tensor.Shape{1})
	result.Data()[0] = blas32.Dot(av, bv)
	return result, nil
}

// Transpose2D swaps the two axes of a rank-2 tensor.
func (c *Backend) Transpose2D(t *tensor.Tensor) (*tensor.Tensor, error) {
	if t.Rank() != 2 {
		return nil, errors.Wrapf(ErrShapeMismatch, "transpose2d: rank %d", t.Rank())
	}
	rows, cols := t.Shape()[0], t.Shape()[1]
	result := tensor.Zeros(tensor.Shape{cols, rows})
	src, dst := t.Data(), result.Data()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dst[j*rows+i] = src[i*cols+j]
		}
	}
	return result, nil
}
