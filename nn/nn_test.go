package nn

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flintml/flint/engine"
	"github.com/flintml/flint/tensor"
)

func TestLinearForwardShape(t *testing.T) {
	e := engine.New(engine.WithSeed(1))
	defer e.Close()

	layer := NewLinear(e, 4, 3)
	x := tensor.Ones(tensor.Shape{2, 4})

	out, err := layer.Forward(e, x)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
}

func TestLinearInitialization(t *testing.T) {
	e := engine.New(engine.WithSeed(1))
	defer e.Close()

	layer := NewLinear(e, 16, 8)
	assert.True(t, layer.Weight.RequiresGrad())
	assert.True(t, layer.Bias.RequiresGrad())

	var nonzero bool
	for _, v := range layer.Weight.Data() {
		if v != 0 {
			nonzero = true
		}
	}
	assert.True(t, nonzero, "weights should not all be zero")

	for _, v := range layer.Bias.Data() {
		assert.Zero(t, v)
	}
}

func TestSequentialForward(t *testing.T) {
	e := engine.New(engine.WithSeed(2))
	defer e.Close()

	net := Sequential(
		NewLinear(e, 2, 4),
		ReLU(),
		NewLinear(e, 4, 1),
		Sigmoid(),
	)

	x := tensor.Ones(tensor.Shape{3, 2})
	out, err := net.Forward(e, x)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 1}, out.Shape())
	for _, v := range out.Data() {
		assert.Greater(t, v, float32(0))
		assert.Less(t, v, float32(1))
	}
}

func TestNetworkParameters(t *testing.T) {
	e := engine.New()
	defer e.Close()

	net := Sequential(NewLinear(e, 2, 4), ReLU(), NewLinear(e, 4, 1))
	// Two linear layers contribute weight+bias each.
	assert.Len(t, net.Parameters(), 4)
}

func TestNetworkBackward(t *testing.T) {
	e := engine.New(engine.WithSeed(3))
	defer e.Close()

	net := Sequential(NewLinear(e, 2, 2), Tanh(), NewLinear(e, 2, 1))
	x := tensor.Ones(tensor.Shape{1, 2})
	target := tensor.Zeros(tensor.Shape{1, 1})

	out, err := net.Forward(e, x)
	require.NoError(t, err)
	loss, err := e.MSE(out, target)
	require.NoError(t, err)
	require.NoError(t, e.Backward(loss))

	for i, p := range net.Parameters() {
		assert.NotNil(t, p.Grad(), "parameter %d has no gradient", i)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	e := engine.New(engine.WithSeed(4))
	defer e.Close()

	net := Sequential(NewLinear(e, 3, 5), ReLU(), NewLinear(e, 5, 2), Softmax())

	var buf bytes.Buffer
	require.NoError(t, net.Save(&buf))

	loaded, err := Load(&buf, e)
	require.NoError(t, err)
	require.Len(t, loaded.Layers(), 4)

	origParams := net.Parameters()
	loadedParams := loaded.Parameters()
	require.Len(t, loadedParams, len(origParams))
	for i := range origParams {
		assert.Equal(t, origParams[i].Shape(), loadedParams[i].Shape())
		assert.Equal(t, origParams[i].Data(), loadedParams[i].Data())
		assert.True(t, loadedParams[i].RequiresGrad())
	}

	// Both networks produce the same output.
	x := tensor.Ones(tensor.Shape{1, 3})
	want, err := net.Forward(e, x)
	require.NoError(t, err)
	got, err := loaded.Forward(e, x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want.Data(), got.Data(), 1e-6)
}

func TestLoadUnknownLayer(t *testing.T) {
	e := engine.New()
	defer e.Close()

	var buf bytes.Buffer
	require.NoError(t, writeUint32(&buf, 1))
	require.NoError(t, writeUint32(&buf, 7))
	buf.WriteString("bogus42")
	require.NoError(t, writeUint32(&buf, 0))

	_, err := Load(&buf, e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus42")
}

func TestLoadTruncated(t *testing.T) {
	e := engine.New(engine.WithSeed(5))
	defer e.Close()

	net := Sequential(NewLinear(e, 2, 2))
	var buf bytes.Buffer
	require.NoError(t, net.Save(&buf))

	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()/2])
	_, err := Load(truncated, e)
	assert.Error(t, err)
}
