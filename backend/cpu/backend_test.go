package cpu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flintml/flint/backend"
	"github.com/flintml/flint/tensor"
)

func fromSlice(t *testing.T, data []float32, shape tensor.Shape) *tensor.Tensor {
	t.Helper()
	out, err := tensor.FromSlice(data, shape)
	require.NoError(t, err)
	return out
}

func TestAdd(t *testing.T) {
	c := New()
	a := fromSlice(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	b := fromSlice(t, []float32{10, 20, 30, 40}, tensor.Shape{2, 2})

	out, err := c.Add(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 22, 33, 44}, out.Data())
}

func TestAddBroadcastRow(t *testing.T) {
	c := New()
	a := fromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	b := fromSlice(t, []float32{10, 20, 30}, tensor.Shape{3})

	out, err := c.Add(a, b)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, out.Data())
}

func TestAddShapeMismatch(t *testing.T) {
	c := New()
	a := tensor.Zeros(tensor.Shape{2, 3})
	b := tensor.Zeros(tensor.Shape{4, 2})

	_, err := c.Add(a, b)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestSubMul(t *testing.T) {
	c := New()
	a := fromSlice(t, []float32{5, 6, 7, 8}, tensor.Shape{4})
	b := fromSlice(t, []float32{1, 2, 3, 4}, tensor.Shape{4})

	diff, err := c.Sub(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 4, 4, 4}, diff.Data())

	prod, err := c.Mul(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 12, 21, 32}, prod.Data())
}

func TestMatMul(t *testing.T) {
	c := New()
	a := fromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	b := fromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{3, 2})

	out, err := c.MatMul(a, b)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.Equal(t, []float32{22, 28, 49, 64}, out.Data())
}

func TestMatMulVector(t *testing.T) {
	c := New()
	a := fromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	v := fromSlice(t, []float32{1, 1, 1}, tensor.Shape{3})

	out, err := c.MatMul(a, v)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2}, out.Shape())
	assert.Equal(t, []float32{6, 15}, out.Data())
}

func TestMatMulDot(t *testing.T) {
	c := New()
	a := fromSlice(t, []float32{1, 2, 3}, tensor.Shape{3})
	b := fromSlice(t, []float32{4, 5, 6}, tensor.Shape{3})

	out, err := c.MatMul(a, b)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1}, out.Shape())
	assert.InDelta(t, 32.0, out.Data()[0], 1e-6)
}

func TestMatMulInnerMismatch(t *testing.T) {
	c := New()
	a := tensor.Zeros(tensor.Shape{2, 3})
	b := tensor.Zeros(tensor.Shape{4, 2})

	_, err := c.MatMul(a, b)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestTranspose2D(t *testing.T) {
	c := New()
	a := fromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})

	out, err := c.Transpose2D(a)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 2}, out.Shape())
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, out.Data())
}

func TestReLU(t *testing.T) {
	c := New()
	a := fromSlice(t, []float32{-2, -0.5, 0, 0.5, 2}, tensor.Shape{5})

	out, err := c.ReLU(a)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 0.5, 2}, out.Data())
}

func TestSigmoid(t *testing.T) {
	c := New()
	a := fromSlice(t, []float32{0, 100, -100}, tensor.Shape{3})

	out, err := c.Sigmoid(a)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out.Data()[0], 1e-6)
	assert.InDelta(t, 1.0, out.Data()[1], 1e-6)
	assert.InDelta(t, 0.0, out.Data()[2], 1e-6)
}

func TestTanh(t *testing.T) {
	c := New()
	a := fromSlice(t, []float32{0, 1}, tensor.Shape{2})

	out, err := c.Tanh(a)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, out.Data()[0], 1e-6)
	assert.InDelta(t, math.Tanh(1), out.Data()[1], 1e-6)
}

func TestSoftmaxRowsSumToOne(t *testing.T) {
	c := New()
	a := fromSlice(t, []float32{1, 2, 3, 10, 20, 30}, tensor.Shape{2, 3})

	out, err := c.Softmax(a)
	require.NoError(t, err)
	for r := 0; r < 2; r++ {
		var sum float32
		for j := 0; j < 3; j++ {
			sum += out.Data()[r*3+j]
		}
		assert.InDelta(t, 1.0, sum, 1e-4)
	}
}

func TestSoftmaxShiftInvariant(t *testing.T) {
	c := New()
	a := fromSlice(t, []float32{1, 2, 3}, tensor.Shape{3})
	b := fromSlice(t, []float32{1001, 1002, 1003}, tensor.Shape{3})

	outA, err := c.Softmax(a)
	require.NoError(t, err)
	outB, err := c.Softmax(b)
	require.NoError(t, err)
	for i := range outA.Data() {
		assert.InDelta(t, outA.Data()[i], outB.Data()[i], 1e-5)
	}
}

func TestSoftmaxRowIndependence(t *testing.T) {
	c := New()
	a := fromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	single := fromSlice(t, []float32{1, 2, 3}, tensor.Shape{1, 3})

	full, err := c.Softmax(a)
	require.NoError(t, err)
	row, err := c.Softmax(single)
	require.NoError(t, err)
	for j := 0; j < 3; j++ {
		assert.InDelta(t, row.Data()[j], full.Data()[j], 1e-6)
	}
}

func TestMSE(t *testing.T) {
	c := New()
	pred := fromSlice(t, []float32{1, 2, 3, 4}, tensor.Shape{4})
	target := fromSlice(t, []float32{1.5, 2.5, 2.5, 3.5}, tensor.Shape{4})

	out, err := c.MSE(pred, target)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1}, out.Shape())
	assert.InDelta(t, 0.25, out.Data()[0], 1e-6)
}

func TestCrossEntropy(t *testing.T) {
	c := New()
	// One-hot target on the first class; prediction 0.7 there.
	pred := fromSlice(t, []float32{0.7, 0.2, 0.1}, tensor.Shape{1, 3})
	target := fromSlice(t, []float32{1, 0, 0}, tensor.Shape{1, 3})

	out, err := c.CrossEntropy(pred, target)
	require.NoError(t, err)
	assert.InDelta(t, -math.Log(0.7), out.Data()[0], 1e-5)
}

func TestBinaryCrossEntropy(t *testing.T) {
	c := New()
	pred := fromSlice(t, []float32{0.9, 0.1}, tensor.Shape{2})
	target := fromSlice(t, []float32{1, 0}, tensor.Shape{2})

	out, err := c.BinaryCrossEntropy(pred, target)
	require.NoError(t, err)
	assert.InDelta(t, -math.Log(0.9), out.Data()[0], 1e-5)
}

func TestLossShapeMismatch(t *testing.T) {
	c := New()
	pred := tensor.Zeros(tensor.Shape{2, 3})
	target := tensor.Zeros(tensor.Shape{3, 2})

	_, err := c.MSE(pred, target)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestOpsRegistration(t *testing.T) {
	reg := backend.NewRegistry[backend.OpFunc]()
	New().Ops(reg)

	for _, name := range backend.AcceleratedOps {
		_, ok := reg.Lookup(name)
		assert.True(t, ok, "missing op %q", name)
		assert.Equal(t, 0, reg.Priority(name))
	}
}
