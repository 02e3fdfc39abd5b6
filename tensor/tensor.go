package tensor

import "fmt"

// Tensor is a dense N-dimensional float32 buffer with an optional gradient
// buffer and the linkage needed for reverse-mode automatic differentiation.
//
// A tensor produced by a differentiable operation records the operation's
// name and non-owning references to its operands; the autograd package walks
// those references backwards to accumulate gradients. Tensors created by
// factory functions are graph leaves (empty op name, no inputs).
type Tensor struct {
	shape  Shape
	stride []int
	data   []float32
	grad   []float32 // allocated lazily, same length as data

	requiresGrad bool
	op           string    // operation that produced this tensor, "" for leaves
	inputs       []*Tensor // operands of op; never owned by this tensor

	view bool // true when data borrows a parent tensor's backing array
}

// New creates a zero-initialized tensor with the given shape.
func New(shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &Tensor{
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		data:   make([]float32, shape.NumElements()),
	}, nil
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Strides returns the tensor's row-major memory strides.
func (t *Tensor) Strides() []int {
	return t.stride
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return len(t.data)
}

// Data returns the tensor's backing slice.
// Modifications to the returned slice modify the tensor.
func (t *Tensor) Data() []float32 {
	return t.data
}

// Grad returns the gradient buffer, or nil if none has been accumulated.
func (t *Tensor) Grad() []float32 {
	return t.grad
}

// GradBuffer returns the gradient buffer, allocating it (zeroed) on first
// use. Used by backward rules that accumulate with +=.
func (t *Tensor) GradBuffer() []float32 {
	if t.grad == nil {
		t.grad = make([]float32, len(t.data))
	}
	return t.grad
}

// ZeroGrad clears the gradient buffer if one has been allocated.
// Calling it repeatedly is harmless.
func (t *Tensor) ZeroGrad() {
	for i := range t.grad {
		t.grad[i] = 0
	}
}

// RequiresGrad reports whether this tensor participates in gradient
// computation.
func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

// SetRequiresGrad marks or unmarks this tensor for gradient computation.
// Returns the tensor itself for chaining.
func (t *Tensor) SetRequiresGrad(v bool) *Tensor {
	t.requiresGrad = v
	return t
}

// Op returns the name of the operation that produced this tensor,
// or "" for leaves.
func (t *Tensor) Op() string {
	return t.op
}

// Inputs returns the operands of the producing operation.
// The returned slice must not be mutated.
func (t *Tensor) Inputs() []*Tensor {
	return t.inputs
}

// AttachOp wires this tensor into the autograd graph as the output of the
// named operation over the given inputs. The tensor is marked as requiring
// gradients iff any input does; otherwise the linkage is not recorded and
// the tensor stays a plain leaf.
func (t *Tensor) AttachOp(name string, inputs ...*Tensor) {
	anyGrad := false
	for _, in := range inputs {
		if in != nil && in.requiresGrad {
			anyGrad = true
			break
		}
	}
	if !anyGrad {
		return
	}
	t.requiresGrad = true
	t.op = name
	t.inputs = append([]*Tensor(nil), inputs...)
}

// Detach returns a tensor sharing this tensor's data with no gradient
// tracking and no graph linkage.
func (t *Tensor) Detach() *Tensor {
	return &Tensor{
		shape:  t.shape.Clone(),
		stride: append([]int(nil), t.stride...),
		data:   t.data,
		view:   true,
	}
}

// Clone creates a deep copy of the tensor's data. The clone is a leaf:
// gradient buffer and graph linkage are not copied.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.data))
	copy(data, t.data)
	return &Tensor{
		shape:  t.shape.Clone(),
		stride: append([]int(nil), t.stride...),
		data:   data,
	}
}

// IsView reports whether this tensor borrows another tensor's memory.
func (t *Tensor) IsView() bool {
	return t.view
}

// Slice returns a view over rows [start, end) of the leading dimension.
// The view shares this tensor's backing memory and must not outlive it.
func (t *Tensor) Slice(start, end int) (*Tensor, error) {
	if len(t.shape) == 0 {
		return nil, fmt.Errorf("cannot slice a scalar tensor")
	}
	if start < 0 || end > t.shape[0] || start >= end {
		return nil, fmt.Errorf("slice bounds [%d, %d) out of range for dimension of size %d", start, end, t.shape[0])
	}

	rowSize := 1
	for _, dim := range t.shape[1:] {
		rowSize *= dim
	}

	shape := t.shape.Clone()
	shape[0] = end - start
	return &Tensor{
		shape:  shape,
		stride: shape.ComputeStrides(),
		data:   t.data[start*rowSize : end*rowSize],
		view:   true,
	}, nil
}

// Item returns the value of a single-element tensor.
// Panics otherwise.
func (t *Tensor) Item() float32 {
	if len(t.data) != 1 {
		panic(fmt.Sprintf("Item() requires a single-element tensor, got shape %v", t.shape))
	}
	return t.data[0]
}

// At returns the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor) At(indices ...int) float32 {
	return t.data[t.offsetOf(indices)]
}

// Set sets the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor) Set(value float32, indices ...int) {
	t.data[t.offsetOf(indices)] = value
}

func (t *Tensor) offsetOf(indices []int) int {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(t.shape), len(indices)))
	}
	offset := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, t.shape[i]))
		}
		offset += idx * t.stride[i]
	}
	return offset
}

// Fill overwrites every element with the given value.
func (t *Tensor) Fill(value float32) {
	for i := range t.data {
		t.data[i] = value
	}
}

// CopyFrom copies data from src into this tensor.
// Shapes must match exactly.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if !t.shape.Equal(src.shape) {
		return fmt.Errorf("copy: shape mismatch %v vs %v", t.shape, src.shape)
	}
	copy(t.data, src.data)
	return nil
}

// String returns a human-readable representation of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v grad=%v", t.shape, t.requiresGrad)
}
