package optim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flintml/flint/tensor"
)

func paramWithGrad(t *testing.T, data, grad []float32) *tensor.Tensor {
	t.Helper()
	p, err := tensor.FromSlice(data, tensor.Shape{len(data)})
	require.NoError(t, err)
	p.SetRequiresGrad(true)
	copy(p.GradBuffer(), grad)
	return p
}

func TestSGDStep(t *testing.T) {
	p := paramWithGrad(t, []float32{1, 2}, []float32{0.5, -0.5})
	opt := NewSGD([]*tensor.Tensor{p}, 0.1, 0)

	opt.Step()
	assert.InDelta(t, 0.95, p.Data()[0], 1e-6)
	assert.InDelta(t, 2.05, p.Data()[1], 1e-6)
}

func TestSGDMomentumAccelerates(t *testing.T) {
	p := paramWithGrad(t, []float32{0}, []float32{1})
	opt := NewSGD([]*tensor.Tensor{p}, 0.1, 0.9)

	// Constant gradient: velocity builds up across steps.
	opt.Step()
	first := -p.Data()[0]
	copy(p.GradBuffer(), []float32{1})
	opt.Step()
	second := -p.Data()[0] - first

	assert.InDelta(t, 0.1, first, 1e-6)
	assert.Greater(t, second, first)
}

func TestSGDSkipsParamsWithoutGrad(t *testing.T) {
	p, err := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2})
	require.NoError(t, err)
	opt := NewSGD([]*tensor.Tensor{p}, 0.1, 0)

	opt.Step()
	assert.Equal(t, []float32{1, 2}, p.Data())
}

func TestZeroGrad(t *testing.T) {
	p := paramWithGrad(t, []float32{1}, []float32{3})
	opt := NewSGD([]*tensor.Tensor{p}, 0.1, 0)

	opt.ZeroGrad()
	assert.Equal(t, []float32{0}, p.Grad())
}

func TestAdamFirstStep(t *testing.T) {
	p := paramWithGrad(t, []float32{1}, []float32{0.5})
	opt := NewAdam([]*tensor.Tensor{p}, 0.001)

	opt.Step()
	// With bias correction the first step is close to lr in magnitude
	// regardless of gradient scale.
	assert.InDelta(t, 1-0.001, p.Data()[0], 1e-4)
}

func TestAdamConvergesOnQuadratic(t *testing.T) {
	// Minimize f(x) = x^2 with gradient 2x.
	p := paramWithGrad(t, []float32{5}, []float32{10})
	opt := NewAdam([]*tensor.Tensor{p}, 0.1)

	for i := 0; i < 200; i++ {
		opt.ZeroGrad()
		copy(p.GradBuffer(), []float32{2 * p.Data()[0]})
		opt.Step()
	}
	assert.InDelta(t, 0.0, p.Data()[0], 0.1)
}

func TestNewByName(t *testing.T) {
	p := paramWithGrad(t, []float32{1}, []float32{1})

	sgd, err := New("sgd", []*tensor.Tensor{p}, Config{LR: 0.1})
	require.NoError(t, err)
	assert.IsType(t, &SGD{}, sgd)

	adam, err := New("adam", []*tensor.Tensor{p}, Config{LR: 0.01})
	require.NoError(t, err)
	assert.IsType(t, &Adam{}, adam)

	_, err = New("lbfgs", []*tensor.Tensor{p}, Config{LR: 0.1})
	assert.Error(t, err)

	_, err = New("sgd", []*tensor.Tensor{p}, Config{})
	assert.Error(t, err)
}
