package webgpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flintml/flint/backend"
	"github.com/flintml/flint/backend/cpu"
	"github.com/flintml/flint/tensor"
)

func TestIsAvailable(t *testing.T) {
	available := IsAvailable()
	t.Logf("WebGPU available: %v", available)
	// This test reports status; a missing GPU is not a failure.
}

func newBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New()
	if err != nil {
		t.Logf("WebGPU not available: %v", err)
		t.Skip("WebGPU not available on this system")
	}
	t.Cleanup(b.Release)
	return b
}

func TestNew(t *testing.T) {
	b := newBackend(t)
	assert.NotEmpty(t, b.Name())
	t.Logf("Backend name: %s", b.Name())
}

func TestGPUAdd(t *testing.T) {
	b := newBackend(t)
	a, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{4})
	require.NoError(t, err)
	c, err := tensor.FromSlice([]float32{10, 20, 30, 40}, tensor.Shape{4})
	require.NoError(t, err)

	out, err := b.runBinaryOp(a, c, "add", addShader)
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 22, 33, 44}, out.Data())
}

func TestGPUMatMul(t *testing.T) {
	b := newBackend(t)
	a, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	require.NoError(t, err)
	c, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{3, 2})
	require.NoError(t, err)

	out, err := b.runMatMul(a, c)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.InDeltaSlice(t, []float32{22, 28, 49, 64}, out.Data(), 1e-4)
}

func TestGPUSoftmax(t *testing.T) {
	b := newBackend(t)
	a, err := tensor.FromSlice([]float32{1, 2, 3, 10, 20, 30}, tensor.Shape{2, 3})
	require.NoError(t, err)

	out, err := b.runSoftmax(a)
	require.NoError(t, err)
	for r := 0; r < 2; r++ {
		var sum float32
		for j := 0; j < 3; j++ {
			sum += out.Data()[r*3+j]
		}
		assert.InDelta(t, 1.0, sum, 1e-4)
	}
}

func TestOpsOutrankCPU(t *testing.T) {
	b := newBackend(t)
	c := cpu.New()

	reg := backend.NewRegistry[backend.OpFunc]()
	c.Ops(reg)
	b.Ops(reg, c)

	for _, name := range backend.AcceleratedOps {
		assert.Equal(t, Priority, reg.Priority(name), "op %q", name)
	}
	// Unaccelerated ops keep their CPU registration.
	assert.Equal(t, 0, reg.Priority(backend.LossMSE))
}

func TestBinaryFallsBackOnBroadcast(t *testing.T) {
	b := newBackend(t)
	c := cpu.New()

	reg := backend.NewRegistry[backend.OpFunc]()
	c.Ops(reg)
	b.Ops(reg, c)

	add, ok := reg.Lookup(backend.OpAdd)
	require.True(t, ok)

	// Mismatched shapes route to the CPU broadcast path.
	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	require.NoError(t, err)
	y, err := tensor.FromSlice([]float32{10, 20, 30}, tensor.Shape{3})
	require.NoError(t, err)

	out, err := add(x, y)
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, out.Data())
}
